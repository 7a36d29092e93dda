package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/leungkcofficial/detect-pd/internal/common"
	"github.com/leungkcofficial/detect-pd/internal/storage"
)

var (
	exportDB     string
	exportOutput string
	exportStart  string
	exportEnd    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export audit history as CSV",
	Long: `Reads the serving audit database and writes issued predictions as
CSV. Run it against a stopped service or a copied database file; the
history is opened read-only.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportDB, "db", os.Getenv(common.EnvDataPath), "Path to history database")
	exportCmd.Flags().StringVar(&exportOutput, "output", "", "Output CSV path (stdout when empty)")
	exportCmd.Flags().StringVar(&exportStart, "start", "", "Start date (YYYY-MM-DD)")
	exportCmd.Flags().StringVar(&exportEnd, "end", "", "End date (YYYY-MM-DD)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	if exportDB == "" {
		return errors.New("no history database: set --db or DATA_PATH")
	}

	start := time.Unix(0, 0)
	if exportStart != "" {
		t, err := time.Parse("2006-01-02", exportStart)
		if err != nil {
			return fmt.Errorf("invalid start date: %w", err)
		}
		start = t
	}
	end := time.Now()
	if exportEnd != "" {
		t, err := time.Parse("2006-01-02", exportEnd)
		if err != nil {
			return fmt.Errorf("invalid end date: %w", err)
		}
		// The whole end day stays inside the range.
		end = t.Add(24*time.Hour - time.Nanosecond)
	}

	store, err := storage.OpenReadOnly(exportDB)
	if err != nil {
		return err
	}
	defer store.Close()

	var w io.Writer = cmd.OutOrStdout()
	if exportOutput != "" {
		file, err := os.Create(exportOutput)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer file.Close()
		w = file
	}

	n, err := store.ExportCSV(cmd.Context(), w, start, end)
	if err != nil {
		return err
	}
	cmd.PrintErrf("exported %d predictions\n", n)
	return nil
}
