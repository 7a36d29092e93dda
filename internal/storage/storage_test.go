package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.etcd.io/bbolt"

	"github.com/leungkcofficial/detect-pd/internal/booster"
	"github.com/leungkcofficial/detect-pd/internal/ml"
)

func samplePrediction(id string, ts time.Time) *ml.Prediction {
	return &ml.Prediction{
		ID:    id,
		Model: "pd-stage",
		Result: &booster.PredictionResult{
			ModelVersion:  "pd-stage-0a1b2c3d4e5f",
			Margins:       []float64{-1.2, -1.4, 1.9, -0.3},
			Probabilities: []float64{0.05, 0.05, 0.8, 0.1},
			PredClass:     2,
			TopK:          []int{2, 3},
		},
		LatencyMs: 1.2,
		Timestamp: ts,
	}
}

func TestNew(t *testing.T) {
	tempDir := t.TempDir()

	// Nested directories are created on demand.
	dbPath := filepath.Join(tempDir, "history", "predictions.db")
	store, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	if store.db == nil {
		t.Error("Store database is nil")
	}

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestNew_InvalidPath(t *testing.T) {
	// A regular file where the parent directory should be.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("Failed to write blocker file: %v", err)
	}

	_, err := New(filepath.Join(blocker, "predictions.db"))
	if err == nil {
		t.Error("Expected error for invalid path, got nil")
	}
}

func TestStore_Close(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "predictions.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	err = store.Close()
	if err != nil {
		t.Errorf("Error closing store: %v", err)
	}

	// Test closing already closed store
	err = store.Close()
	if err != nil {
		t.Errorf("Error closing already closed store: %v", err)
	}
}

func TestStore_CloseNilDB(t *testing.T) {
	store := &Store{db: nil}
	err := store.Close()
	if err != nil {
		t.Errorf("Expected no error for nil db, got: %v", err)
	}
}

func TestOpenReadOnly(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "predictions.db")

	store, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	ctx := context.Background()
	ts := time.Unix(1700000000, 0)
	if err := store.Append(ctx, samplePrediction("ro1", ts)); err != nil {
		t.Fatalf("Failed to append prediction: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Failed to close store: %v", err)
	}

	ro, err := OpenReadOnly(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen read-only: %v", err)
	}
	defer ro.Close()

	got, err := ro.Range(ctx, ts.Add(-time.Minute), ts.Add(time.Minute))
	if err != nil {
		t.Fatalf("Failed to range predictions: %v", err)
	}
	if len(got) != 1 || got[0].ID != "ro1" {
		t.Errorf("Expected the stored prediction back, got %+v", got)
	}

	if err := ro.Append(ctx, samplePrediction("ro2", ts)); err == nil {
		t.Error("Expected append to fail on a read-only store")
	}
}

func TestOpenReadOnly_MissingFile(t *testing.T) {
	_, err := OpenReadOnly(filepath.Join(t.TempDir(), "absent.db"))
	if err == nil {
		t.Error("Expected error for missing file, got nil")
	}
}

func TestOpenReadOnly_NoHistory(t *testing.T) {
	// A valid bolt file that was never used for predictions.
	dbPath := filepath.Join(t.TempDir(), "other.db")
	db, err := bbolt.Open(dbPath, 0o600, nil)
	if err != nil {
		t.Fatalf("Failed to create bolt file: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Failed to close bolt file: %v", err)
	}

	_, err = OpenReadOnly(dbPath)
	if err == nil {
		t.Error("Expected error for file without prediction history, got nil")
	}
}

func TestAppendAndRange(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "predictions.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	preds := []*ml.Prediction{
		samplePrediction("a1", now),
		samplePrediction("a2", now.Add(time.Second)),
		samplePrediction("a3", now.Add(2*time.Second)),
		samplePrediction("a4", now.Add(10*time.Second)), // Outside range
	}
	for _, p := range preds {
		if err := store.Append(ctx, p); err != nil {
			t.Fatalf("Failed to append prediction: %v", err)
		}
	}

	got, err := store.Range(ctx, now.Add(-time.Second), now.Add(5*time.Second))
	if err != nil {
		t.Fatalf("Failed to range predictions: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("Expected 3 predictions, got %d", len(got))
	}

	// Chronological order, oldest first.
	if got[0].ID != "a1" || got[2].ID != "a3" {
		t.Errorf("Expected chronological order a1..a3, got %s..%s", got[0].ID, got[2].ID)
	}
	if got[0].Result == nil || got[0].Result.PredClass != 2 {
		t.Errorf("Result did not round-trip: %+v", got[0].Result)
	}
}

func TestRange_InclusiveEnd(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "predictions.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	ts := time.Unix(1700000000, 0)

	if err := store.Append(ctx, samplePrediction("edge", ts)); err != nil {
		t.Fatalf("Failed to append prediction: %v", err)
	}

	got, err := store.Range(ctx, ts.Add(-time.Minute), ts)
	if err != nil {
		t.Fatalf("Failed to range predictions: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Expected prediction at the end instant to be included, got %d", len(got))
	}
}

func TestRange_EmptyResult(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "predictions.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	now := time.Now()
	got, err := store.Range(context.Background(), now.Add(-time.Hour), now.Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("Failed to range predictions: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected empty result, got %d predictions", len(got))
	}
}

func TestRecent(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "predictions.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	now := time.Now()
	for i, id := range []string{"r1", "r2", "r3", "r4", "r5"} {
		p := samplePrediction(id, now.Add(time.Duration(i)*time.Second))
		if err := store.Append(ctx, p); err != nil {
			t.Fatalf("Failed to append prediction: %v", err)
		}
	}

	got, err := store.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Failed to get recent predictions: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 predictions, got %d", len(got))
	}
	if got[0].ID != "r5" || got[1].ID != "r4" || got[2].ID != "r3" {
		t.Errorf("Expected newest first r5,r4,r3, got %s,%s,%s", got[0].ID, got[1].ID, got[2].ID)
	}

	// Asking for more than stored returns everything.
	all, err := store.Recent(ctx, 50)
	if err != nil {
		t.Fatalf("Failed to get recent predictions: %v", err)
	}
	if len(all) != 5 {
		t.Errorf("Expected all 5 predictions, got %d", len(all))
	}

	none, err := store.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Failed to get recent predictions: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("Expected no predictions for n=0, got %d", len(none))
	}
}

func TestPrune(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "predictions.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	stale := []*ml.Prediction{
		samplePrediction("old1", now.Add(-48*time.Hour)),
		samplePrediction("old2", now.Add(-36*time.Hour)),
	}
	fresh := []*ml.Prediction{
		samplePrediction("new1", now.Add(-time.Hour)),
		samplePrediction("new2", now),
	}
	for _, p := range append(stale, fresh...) {
		if err := store.Append(ctx, p); err != nil {
			t.Fatalf("Failed to append prediction: %v", err)
		}
	}

	removed, err := store.Prune(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Failed to prune: %v", err)
	}
	if removed != 2 {
		t.Errorf("Expected 2 pruned predictions, got %d", removed)
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 remaining predictions, got %d", count)
	}

	remaining, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Failed to get recent predictions: %v", err)
	}
	for _, p := range remaining {
		if p.ID == "old1" || p.ID == "old2" {
			t.Errorf("Pruned prediction %s still present", p.ID)
		}
	}

	// Pruning again removes nothing.
	removed, err = store.Prune(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Failed to prune: %v", err)
	}
	if removed != 0 {
		t.Errorf("Expected idempotent prune, removed %d", removed)
	}
}

func TestAppendCancelledContext(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "predictions.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Append(ctx, samplePrediction("c1", time.Now())); err == nil {
		t.Error("Expected error for cancelled context, got nil")
	}

	count, err := store.Count(context.Background())
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected nothing stored after cancelled append, got %d", count)
	}
}

func TestExportCSV(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "predictions.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	now := time.Now()
	for i, id := range []string{"e1", "e2"} {
		p := samplePrediction(id, now.Add(time.Duration(i)*time.Second))
		if err := store.Append(ctx, p); err != nil {
			t.Fatalf("Failed to append prediction: %v", err)
		}
	}

	var buf bytes.Buffer
	rows, err := store.ExportCSV(ctx, &buf, now.Add(-time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Failed to export: %v", err)
	}
	if rows != 2 {
		t.Errorf("Expected 2 exported rows, got %d", rows)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse exported CSV: %v", err)
	}
	if len(records) != 3 { // header + 2 rows
		t.Fatalf("Expected 3 CSV records, got %d", len(records))
	}
	if records[0][0] != "prediction_id" {
		t.Errorf("Expected header row, got %v", records[0])
	}
	if records[1][0] != "e1" || records[1][3] != "2" {
		t.Errorf("Unexpected first row: %v", records[1])
	}
	if records[1][4] != "0.05|0.05|0.8|0.1" {
		t.Errorf("Unexpected probabilities column: %v", records[1][4])
	}
}

func TestConcurrentAccess(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "predictions.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	// Concurrent appends and reads.
	done := make(chan bool, 10)

	for i := 0; i < 5; i++ {
		go func(id int) {
			now := time.Now()
			for j := 0; j < 10; j++ {
				p := samplePrediction("w", now.Add(time.Duration(id*100+j)*time.Millisecond))
				store.Append(ctx, p)
			}
			done <- true
		}(i)
	}

	for i := 0; i < 5; i++ {
		go func(id int) {
			now := time.Now()
			for j := 0; j < 10; j++ {
				store.Recent(ctx, 5)
				store.Range(ctx, now.Add(-time.Second), now.Add(time.Second))
			}
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}

func BenchmarkAppend(b *testing.B) {
	store, err := New(filepath.Join(b.TempDir(), "predictions.db"))
	if err != nil {
		b.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	// Pre-allocate predictions to avoid allocation in hot loop
	baseTime := time.Now()
	preds := make([]*ml.Prediction, b.N)
	for i := 0; i < b.N; i++ {
		preds[i] = samplePrediction("bench", baseTime.Add(time.Duration(i)*time.Nanosecond))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.Append(ctx, preds[i])
	}
}
