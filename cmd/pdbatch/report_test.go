package main

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leungkcofficial/detect-pd/internal/booster"
	"github.com/leungkcofficial/detect-pd/internal/ml"
)

func scoredRow(patient string, line, class int, probs []float64, latency float64) RowResult {
	return RowResult{
		Patient: patient,
		Line:    line,
		Prediction: &ml.Prediction{
			ID:    patient + "-pred",
			Model: "pd-stage",
			Result: &booster.PredictionResult{
				ModelVersion:  "pd-stage-0a1b2c3d4e5f",
				Probabilities: probs,
				PredClass:     class,
				TopK:          []int{class},
			},
			LatencyMs: latency,
			Timestamp: time.Now().UTC(),
		},
	}
}

func TestResultsAggregation(t *testing.T) {
	res := NewResults("pd-stage", "cohort.csv", 1)
	res.Add(scoredRow("P-001", 2, 2, []float64{0.1, 0.1, 0.7, 0.1}, 1.0))
	res.Add(scoredRow("P-002", 3, 2, []float64{0.0, 0.2, 0.6, 0.2}, 3.0))
	res.Add(scoredRow("P-003", 4, 0, []float64{0.9, 0.1, 0.0, 0.0}, 2.0))
	res.Add(RowResult{Patient: "P-004", Line: 5, Error: "model is not configured"})
	res.Finalize()

	assert.Equal(t, 3, res.Scored)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.SkippedRows)
	assert.Equal(t, "pd-stage-0a1b2c3d4e5f", res.ModelVersion)
	assert.Equal(t, map[int]int{0: 1, 2: 2}, res.ClassCounts)
	assert.InDelta(t, 2.0, res.AvgLatencyMs, 1e-9)
	require.Len(t, res.MeanProbs, 4)
	assert.InDelta(t, (0.7+0.6+0.0)/3, res.MeanProbs[2], 1e-9)
	assert.False(t, res.Finished.IsZero())
	require.Len(t, res.Rows, 4)
}

func TestResultsAllFailed(t *testing.T) {
	res := NewResults("pd-stage", "cohort.csv", 0)
	res.Add(RowResult{Patient: "P-001", Line: 2, Error: "load failed"})
	res.Finalize()

	assert.Equal(t, 0, res.Scored)
	assert.Equal(t, 1, res.Failed)
	assert.Zero(t, res.AvgLatencyMs)
	assert.Nil(t, res.MeanProbs)
}

func TestGenerateReportWritesAllFormats(t *testing.T) {
	res := NewResults("pd-stage", "cohort.csv", 0)
	res.Add(scoredRow("P-001", 2, 2, []float64{0.05, 0.05, 0.8, 0.1}, 1.5))
	res.Add(RowResult{Patient: "P-002", Line: 3, Error: "walk tree 0: node index out of range"})
	res.Finalize()

	dir := filepath.Join(t.TempDir(), "reports")
	reporter := NewReporter(res, dir)
	require.NoError(t, reporter.GenerateReport())

	summary, err := os.ReadFile(filepath.Join(dir, "cohort_summary.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "COHORT SCORING SUMMARY")
	assert.Contains(t, string(summary), "pd-stage (pd-stage-0a1b2c3d4e5f)")
	assert.Contains(t, string(summary), "class 2: 1 rows")

	logFile, err := os.Open(filepath.Join(dir, "predictions.csv"))
	require.NoError(t, err)
	defer logFile.Close()
	records, err := csv.NewReader(logFile).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "patient_id", records[0][0])
	assert.Equal(t, "2", records[1][2])
	assert.Equal(t, "0.05|0.05|0.8|0.1", records[1][3])
	assert.Equal(t, "walk tree 0: node index out of range", records[2][6])

	raw, err := os.ReadFile(filepath.Join(dir, "cohort_results.json"))
	require.NoError(t, err)
	var report map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &report))
	assert.Contains(t, report, "summary")
	assert.Contains(t, report, "predictions")
}
