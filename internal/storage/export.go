package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// ExportCSV writes every prediction issued within [start, end] as one CSV
// row and reports how many rows were written. The full probability vector
// is pipe-joined into a single column so the file stays one-row-per-case
// for the retraining pipeline. Records without a result are skipped.
func (s *Store) ExportCSV(ctx context.Context, w io.Writer, start, end time.Time) (int, error) {
	preds, err := s.Range(ctx, start, end)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	header := []string{"prediction_id", "model", "model_version", "pred_class", "probabilities", "latency_ms", "timestamp"}
	if err := cw.Write(header); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	rows := 0
	for _, p := range preds {
		if p.Result == nil {
			continue
		}

		probs := make([]string, len(p.Result.Probabilities))
		for i, v := range p.Result.Probabilities {
			probs[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}

		row := []string{
			p.ID,
			p.Model,
			p.Result.ModelVersion,
			strconv.Itoa(p.Result.PredClass),
			strings.Join(probs, "|"),
			strconv.FormatFloat(p.LatencyMs, 'g', -1, 64),
			p.Timestamp.UTC().Format(time.RFC3339Nano),
		}
		if err := cw.Write(row); err != nil {
			return rows, fmt.Errorf("write row: %w", err)
		}
		rows++
	}

	cw.Flush()
	return rows, cw.Error()
}
