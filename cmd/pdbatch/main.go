package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/leungkcofficial/detect-pd/internal/cfg"
	"github.com/leungkcofficial/detect-pd/internal/common"
	"github.com/leungkcofficial/detect-pd/internal/drivers"
	"github.com/leungkcofficial/detect-pd/internal/ml"
)

func main() {
	// Parse command line arguments
	var (
		input       = flag.String("input", "", "Path to cohort CSV")
		modelPath   = flag.String("model", "", "Path to model artifact JSON")
		modelName   = flag.String("name", cfg.DefaultModelName, "Model name used in reports")
		calibration = flag.String("calibration", "", "Optional calibration sidecar JSON")
		baselines   = flag.String("baselines", "", "Optional cohort baselines for driver explanations")
		outputPath  = flag.String("output", "", "Output directory for reports (console only when empty)")
		workers     = flag.Int("workers", common.DefaultBatchWorkers, "Concurrent scoring workers")
		topK        = flag.Int("topk", 0, "Top-k classes per row (model default when 0)")
		logLevel    = flag.String("log-level", common.DefaultLogLevel, "Log level: debug, info, warn, error")
	)
	flag.Parse()

	// Setup logging
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *input == "" || *modelPath == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *workers < 1 {
		*workers = 1
	}

	// Print configuration
	fmt.Println("=== Cohort Scoring Configuration ===")
	fmt.Printf("Input: %s\n", *input)
	fmt.Printf("Model: %s (%s)\n", *modelName, *modelPath)
	fmt.Printf("Output Directory: %s\n", *outputPath)
	fmt.Printf("Workers: %d\n", *workers)
	fmt.Println("====================================")

	ctx := context.Background()

	cohort, err := LoadCohort(*input)
	if err != nil {
		log.Fatal().Err(err).Msg("cohort load failed")
	}
	if len(cohort.Rows) == 0 {
		log.Fatal().Str("file", *input).Msg("cohort holds no scorable rows")
	}

	predictor, registry := buildPredictor(*modelName, *modelPath, *calibration, *baselines)

	// Fail before the fanout when the artifact itself is bad.
	if _, err := registry.Get(ctx, *modelName); err != nil {
		log.Fatal().Err(err).Msg("model load failed")
	}

	log.Info().Int("rows", len(cohort.Rows)).Int("workers", *workers).Msg("scoring cohort")
	results := NewResults(*modelName, *input, cohort.Skipped)

	rows, err := scoreCohort(ctx, predictor, cohort, *modelName, *topK, *workers)
	if err != nil {
		log.Fatal().Err(err).Msg("cohort scoring failed")
	}
	for _, row := range rows {
		results.Add(row)
	}
	results.Finalize()

	reporter := NewReporter(results, *outputPath)
	if *outputPath != "" {
		if err := reporter.GenerateReport(); err != nil {
			log.Error().Err(err).Msg("report generation failed")
		}
	}
	reporter.PrintSummary()

	log.Info().
		Int("scored", results.Scored).
		Int("failed", results.Failed).
		Msg("cohort scoring completed")
}

// buildPredictor assembles a registry and predictor around one local
// artifact. Batch runs scrape no metrics; a nil sink disables reporting.
func buildPredictor(name, path, calibration, baselines string) (*ml.Predictor, *ml.Registry) {
	settings := cfg.Settings{
		Models: map[string]cfg.ModelConfig{
			name: {Path: path, Calibration: calibration},
		},
		DefaultModel: name,
		LoadTimeout:  30 * time.Second,
		TopK:         2,
	}

	registry, err := ml.NewRegistry(settings, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("model registry setup failed")
	}
	predictor := ml.NewPredictor(registry, settings, nil)

	if baselines != "" {
		ref, err := drivers.Load(baselines)
		if err != nil {
			log.Warn().Err(err).Msg("baselines load failed, rows carry no drivers")
		} else {
			predictor.WithDrivers(ref)
		}
	}
	return predictor, registry
}

// scoreCohort fans rows out to a bounded worker group. Row-level scoring
// problems land in that row's result; only a cancelled run aborts the
// whole cohort.
func scoreCohort(ctx context.Context, predictor *ml.Predictor, cohort *Cohort, model string, topK, workers int) ([]RowResult, error) {
	results := make([]RowResult, len(cohort.Rows))
	jobs := make(chan int)

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := range jobs {
				row := cohort.Rows[i]
				out := RowResult{Patient: row.Patient, Line: row.Line}
				pred, err := predictor.Predict(ctx, ml.PredictionRequest{
					Model:    model,
					Features: row.Features,
					TopK:     topK,
				})
				if err != nil {
					out.Error = err.Error()
				} else {
					out.Prediction = pred
				}
				results[i] = out
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(jobs)
		for i := range cohort.Rows {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
