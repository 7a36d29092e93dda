package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leungkcofficial/detect-pd/internal/booster"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [artifact]",
	Short: "Summarize a model artifact",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read artifact: %w", err)
	}

	doc, err := booster.Load(raw)
	if err != nil {
		return fmt.Errorf("load artifact: %w", err)
	}

	// Same digest the registry embeds in served versions.
	sum := sha256.Sum256(raw)

	cmd.Printf("Artifact: %s\n\n", args[0])
	cmd.Printf("  Digest:      %s\n", hex.EncodeToString(sum[:6]))
	cmd.Printf("  Objective:   %s\n", doc.Objective)
	cmd.Printf("  Classes:     %d\n", doc.Classes())
	cmd.Printf("  Trees:       %d\n", len(doc.Trees))
	cmd.Printf("  Base margin: %g\n", doc.BaseMargin)
	cmd.Printf("  Features:    %d\n", len(doc.FeatureNames))
	for _, name := range doc.FeatureNames {
		cmd.Printf("    %s\n", name)
	}
	return nil
}
