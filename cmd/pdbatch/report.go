package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/leungkcofficial/detect-pd/internal/ml"
)

// RowResult is one scored cohort row.
type RowResult struct {
	Patient    string         `json:"patient_id"`
	Line       int            `json:"line"`
	Prediction *ml.Prediction `json:"prediction,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Results aggregates one cohort run.
type Results struct {
	Model        string      `json:"model"`
	ModelVersion string      `json:"model_version,omitempty"`
	Input        string      `json:"input"`
	Started      time.Time   `json:"started"`
	Finished     time.Time   `json:"finished"`
	Scored       int         `json:"scored"`
	Failed       int         `json:"failed"`
	SkippedRows  int         `json:"skipped_rows"`
	ClassCounts  map[int]int `json:"class_counts"`
	MeanProbs    []float64   `json:"mean_probabilities,omitempty"`
	AvgLatencyMs float64     `json:"avg_latency_ms"`
	Rows         []RowResult `json:"-"`
}

// NewResults seeds the aggregate for one run.
func NewResults(model, input string, skipped int) *Results {
	return &Results{
		Model:       model,
		Input:       input,
		SkippedRows: skipped,
		ClassCounts: make(map[int]int),
		Started:     time.Now(),
	}
}

// Add folds one row into the aggregate.
func (res *Results) Add(row RowResult) {
	res.Rows = append(res.Rows, row)
	if row.Prediction == nil || row.Prediction.Result == nil {
		res.Failed++
		return
	}

	r := row.Prediction.Result
	res.Scored++
	res.ClassCounts[r.PredClass]++
	res.AvgLatencyMs += row.Prediction.LatencyMs
	if res.ModelVersion == "" {
		res.ModelVersion = r.ModelVersion
	}
	if res.MeanProbs == nil {
		res.MeanProbs = make([]float64, len(r.Probabilities))
	}
	for i, p := range r.Probabilities {
		if i < len(res.MeanProbs) {
			res.MeanProbs[i] += p
		}
	}
}

// Finalize turns the accumulated sums into averages.
func (res *Results) Finalize() {
	res.Finished = time.Now()
	if res.Scored == 0 {
		return
	}
	res.AvgLatencyMs /= float64(res.Scored)
	for i := range res.MeanProbs {
		res.MeanProbs[i] /= float64(res.Scored)
	}
}

// Reporter renders a finished cohort run.
type Reporter struct {
	results    *Results
	outputPath string
}

// NewReporter creates a reporter writing under outputPath.
func NewReporter(results *Results, outputPath string) *Reporter {
	return &Reporter{results: results, outputPath: outputPath}
}

// GenerateReport writes every report format.
func (r *Reporter) GenerateReport() error {
	if err := os.MkdirAll(r.outputPath, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	if err := r.generateSummary(); err != nil {
		return err
	}
	if err := r.generatePredictionLog(); err != nil {
		return err
	}
	return r.generateJSONReport()
}

// generateSummary writes the human-readable run summary.
func (r *Reporter) generateSummary() error {
	summaryPath := filepath.Join(r.outputPath, "cohort_summary.txt")
	file, err := os.Create(summaryPath)
	if err != nil {
		return fmt.Errorf("create summary file: %w", err)
	}
	defer file.Close()

	res := r.results
	fmt.Fprintf(file, "COHORT SCORING SUMMARY\n")
	fmt.Fprintf(file, "======================\n\n")

	fmt.Fprintf(file, "Model: %s", res.Model)
	if res.ModelVersion != "" {
		fmt.Fprintf(file, " (%s)", res.ModelVersion)
	}
	fmt.Fprintf(file, "\nInput: %s\n", res.Input)
	fmt.Fprintf(file, "Run: %s to %s (%s)\n\n",
		res.Started.Format("2006-01-02 15:04:05"),
		res.Finished.Format("2006-01-02 15:04:05"),
		res.Finished.Sub(res.Started).Round(time.Millisecond))

	fmt.Fprintf(file, "ROWS\n")
	fmt.Fprintf(file, "----\n")
	fmt.Fprintf(file, "Scored: %d\n", res.Scored)
	fmt.Fprintf(file, "Failed: %d\n", res.Failed)
	fmt.Fprintf(file, "Skipped: %d\n", res.SkippedRows)
	fmt.Fprintf(file, "Avg Latency: %.3f ms\n", res.AvgLatencyMs)

	if len(res.MeanProbs) > 0 {
		fmt.Fprintf(file, "\nCLASS DISTRIBUTION\n")
		fmt.Fprintf(file, "------------------\n")
		for class := 0; class < len(res.MeanProbs); class++ {
			count := res.ClassCounts[class]
			share := 0.0
			if res.Scored > 0 {
				share = float64(count) / float64(res.Scored) * 100
			}
			fmt.Fprintf(file, "class %d: %d rows (%.1f%%), mean p=%.4f\n",
				class, count, share, res.MeanProbs[class])
		}
	}

	log.Info().Str("file", summaryPath).Msg("summary report generated")
	return nil
}

// generatePredictionLog writes the per-row CSV log.
func (r *Reporter) generatePredictionLog() error {
	csvPath := filepath.Join(r.outputPath, "predictions.csv")
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("create prediction log: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"patient_id", "line", "pred_class", "probabilities", "top_k", "latency_ms", "error"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, row := range r.results.Rows {
		record := []string{row.Patient, strconv.Itoa(row.Line), "", "", "", "", row.Error}
		if row.Prediction != nil && row.Prediction.Result != nil {
			pr := row.Prediction.Result
			record[2] = strconv.Itoa(pr.PredClass)
			record[3] = joinFloats(pr.Probabilities)
			record[4] = joinInts(pr.TopK)
			record[5] = strconv.FormatFloat(row.Prediction.LatencyMs, 'f', 3, 64)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}

	log.Info().Str("file", csvPath).Msg("prediction log generated")
	return nil
}

// generateJSONReport writes the machine-readable run report.
func (r *Reporter) generateJSONReport() error {
	jsonPath := filepath.Join(r.outputPath, "cohort_results.json")

	report := map[string]interface{}{
		"summary":      r.results,
		"predictions":  r.results.Rows,
		"generated_at": time.Now(),
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	if err := os.WriteFile(jsonPath, data, 0o600); err != nil {
		return fmt.Errorf("write results: %w", err)
	}

	log.Info().Str("file", jsonPath).Msg("results file generated")
	return nil
}

// PrintSummary prints the run outcome to the console.
func (r *Reporter) PrintSummary() {
	res := r.results
	fmt.Println("\n=== COHORT SCORING RESULTS ===")
	fmt.Printf("Model: %s", res.Model)
	if res.ModelVersion != "" {
		fmt.Printf(" (%s)", res.ModelVersion)
	}
	fmt.Println()
	fmt.Printf("Scored: %d  Failed: %d  Skipped: %d\n", res.Scored, res.Failed, res.SkippedRows)
	fmt.Printf("Avg Latency: %.3f ms\n", res.AvgLatencyMs)
	for class := 0; class < len(res.MeanProbs); class++ {
		share := 0.0
		if res.Scored > 0 {
			share = float64(res.ClassCounts[class]) / float64(res.Scored) * 100
		}
		fmt.Printf("class %d: %d (%.1f%%)\n", class, res.ClassCounts[class], share)
	}
	fmt.Println("==============================")
}

func joinFloats(vals []float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, "|")
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, "|")
}
