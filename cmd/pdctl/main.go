package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pdctl",
	Short: "Administer detect-pd model artifacts and serving data",
	Long: `pdctl inspects and validates gradient-boosted model artifacts,
scores single feature files offline, and exports the serving audit
history.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
