package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/leungkcofficial/detect-pd/internal/cfg"
	"github.com/leungkcofficial/detect-pd/internal/drivers"
	"github.com/leungkcofficial/detect-pd/internal/ml"
)

var (
	predictModel       string
	predictCalibration string
	predictBaselines   string
	predictTopK        int
)

var predictCmd = &cobra.Command{
	Use:   "predict [features.json]",
	Short: "Score one feature file offline",
	Long: `Loads a model artifact and scores a single JSON feature map the
same way the serving API would, printing the prediction as JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: runPredict,
}

func init() {
	predictCmd.Flags().StringVar(&predictModel, "model", "", "Path to model artifact JSON (required)")
	predictCmd.Flags().StringVar(&predictCalibration, "calibration", "", "Calibration sidecar attached to the result")
	predictCmd.Flags().StringVar(&predictBaselines, "baselines", "", "Cohort baselines for driver explanations")
	predictCmd.Flags().IntVar(&predictTopK, "topk", 0, "Top-k classes (model default when 0)")
	predictCmd.MarkFlagRequired("model")
	rootCmd.AddCommand(predictCmd)
}

func runPredict(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read features: %w", err)
	}
	var features map[string]any
	if err := json.Unmarshal(raw, &features); err != nil {
		return fmt.Errorf("parse features: %w", err)
	}

	settings := cfg.Settings{
		Models: map[string]cfg.ModelConfig{
			cfg.DefaultModelName: {Path: predictModel, Calibration: predictCalibration},
		},
		DefaultModel: cfg.DefaultModelName,
		LoadTimeout:  30 * time.Second,
		TopK:         2,
	}
	registry, err := ml.NewRegistry(settings, nil)
	if err != nil {
		return err
	}
	predictor := ml.NewPredictor(registry, settings, nil)
	if predictBaselines != "" {
		ref, err := drivers.Load(predictBaselines)
		if err != nil {
			return fmt.Errorf("load baselines: %w", err)
		}
		predictor.WithDrivers(ref)
	}

	pred, err := predictor.Predict(cmd.Context(), ml.PredictionRequest{
		Features: features,
		TopK:     predictTopK,
	})
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(pred, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(out))
	return nil
}
