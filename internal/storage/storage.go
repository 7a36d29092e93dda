// Package storage persists issued predictions for audit and review.
// It uses BoltDB as the underlying storage engine; every prediction the
// service returns is appended to a time-ordered history that supports
// efficient range queries and retention pruning.
//
// All operations are safe for concurrent use.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/leungkcofficial/detect-pd/internal/ml"
)

const historyBucket = "predictions"

// Store is a BoltDB-backed prediction history. It satisfies the serving
// layer's audit hook, so a failed write never fails the prediction that
// triggered it.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) the history database at path. Parent directories
// are created as needed. Returns an error if the database cannot be opened
// or the history bucket cannot be created.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(historyBucket)); err != nil {
			return fmt.Errorf("create predictions bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// OpenReadOnly opens an existing history database for offline reads, such
// as exports while the service is stopped. It never creates a missing file
// and rejects files that hold no prediction history.
func OpenReadOnly(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{ReadOnly: true, Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(historyBucket)) == nil {
			return fmt.Errorf("no prediction history in %s", path)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully. It should be called
// when the storage is no longer needed to ensure proper cleanup of
// database resources.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Append stores one issued prediction. Keys are issue-time ordered with
// the prediction id as tiebreaker, so range scans come back chronological.
func (s *Store) Append(ctx context.Context, p *ml.Prediction) error {
	// BoltDB transactions do not take a context; the guard keeps a
	// cancelled caller from queueing another write.
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(historyBucket))

		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal prediction: %w", err)
		}

		return b.Put(historyKey(p.Timestamp, p.ID), data)
	})
}

// Range retrieves predictions issued within [start, end], both ends
// inclusive, in chronological order. Records that no longer unmarshal are
// skipped.
func (s *Store) Range(ctx context.Context, start, end time.Time) ([]ml.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var preds []ml.Prediction
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(historyBucket)).Cursor()

		startKey := []byte(fmt.Sprintf("%020d", start.UnixNano()))
		endKey := []byte(fmt.Sprintf("%020d", end.UnixNano()+1))

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, endKey) < 0; k, v = c.Next() {
			var p ml.Prediction
			if err := json.Unmarshal(v, &p); err != nil {
				continue
			}
			preds = append(preds, p)
		}
		return nil
	})

	return preds, err
}

// Recent returns up to n predictions, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]ml.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, nil
	}

	var preds []ml.Prediction
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(historyBucket)).Cursor()

		for k, v := c.Last(); k != nil && len(preds) < n; k, v = c.Prev() {
			var p ml.Prediction
			if err := json.Unmarshal(v, &p); err != nil {
				continue
			}
			preds = append(preds, p)
		}
		return nil
	})

	return preds, err
}

// Prune deletes every prediction issued before cutoff and reports how many
// were removed. The retention loop calls this periodically.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	removed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(historyBucket))
		c := b.Cursor()

		cutKey := []byte(fmt.Sprintf("%020d", cutoff.UnixNano()))

		// Collect first: deleting while the cursor walks the same pages
		// is not safe.
		var stale [][]byte
		for k, _ := c.First(); k != nil && bytes.Compare(k, cutKey) < 0; k, _ = c.Next() {
			stale = append(stale, append([]byte(nil), k...))
		}

		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("delete stale prediction: %w", err)
			}
		}
		removed = len(stale)
		return nil
	})

	return removed, err
}

// Count reports how many predictions the history currently holds.
func (s *Store) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	n := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket([]byte(historyBucket)).Stats().KeyN
		return nil
	})
	return n, err
}

func historyKey(ts time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%020d_%s", ts.UnixNano(), id))
}
