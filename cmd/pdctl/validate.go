package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leungkcofficial/detect-pd/internal/booster"
)

var validateCalibration string

var validateCmd = &cobra.Command{
	Use:   "validate [artifact]",
	Short: "Check that an artifact loads cleanly",
	Long: `Parses and validates a model artifact without serving it: field
presence, array shapes, index bounds, and the objective family. Exits
non-zero when the artifact would be rejected at load time.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&validateCalibration, "calibration", "", "Calibration sidecar to check alongside the artifact")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read artifact: %w", err)
	}

	doc, err := booster.Load(raw)
	if err != nil {
		return fmt.Errorf("artifact rejected: %w", err)
	}

	if validateCalibration != "" {
		calRaw, err := os.ReadFile(validateCalibration)
		if err != nil {
			return fmt.Errorf("read calibration: %w", err)
		}
		var cal booster.Calibration
		if err := json.Unmarshal(calRaw, &cal); err != nil {
			return fmt.Errorf("calibration rejected: %w", err)
		}
	}

	cmd.Printf("%s is valid: %d trees, %d features, %d classes\n",
		args[0], len(doc.Trees), len(doc.FeatureNames), doc.Classes())
	return nil
}
