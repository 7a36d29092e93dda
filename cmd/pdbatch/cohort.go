package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// patientColumn names the cohort CSV column holding the patient identifier.
const patientColumn = "patient_id"

// CohortRow is one patient awaiting scoring. Features holds the raw CSV
// cells keyed by column name; the scoring boundary parses and validates
// them.
type CohortRow struct {
	Patient  string
	Line     int
	Features map[string]any
}

// Cohort is a parsed scoring input file.
type Cohort struct {
	Rows    []CohortRow
	Columns []string
	Skipped int
}

// LoadCohort reads a cohort CSV: a header naming the feature columns, one
// patient per row. Empty and NA cells become missing features; rows with
// the wrong column count are skipped and counted. Rows without a
// patient_id get a generated one so every report line stays addressable.
func LoadCohort(path string) (*Cohort, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cohort file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read cohort header: %w", err)
	}

	idCol := -1
	columns := make([]string, len(header))
	for i, col := range header {
		col = strings.TrimSpace(col)
		columns[i] = col
		if col == patientColumn {
			idCol = i
		}
	}
	if idCol < 0 {
		log.Warn().Str("file", path).Msg("cohort has no patient_id column, generating ids")
	}

	cohort := &Cohort{Columns: columns}
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil || len(record) != len(columns) {
			cohort.Skipped++
			continue
		}

		row := CohortRow{Line: line, Features: make(map[string]any, len(columns))}
		for i, cell := range record {
			cell = strings.TrimSpace(cell)
			if i == idCol {
				row.Patient = cell
				continue
			}
			if isMissingCell(cell) {
				continue
			}
			row.Features[columns[i]] = cell
		}
		if row.Patient == "" {
			row.Patient = uuid.New().String()
		}
		cohort.Rows = append(cohort.Rows, row)
	}

	return cohort, nil
}

// isMissingCell reports cells that mean "not observed" rather than a value.
func isMissingCell(cell string) bool {
	switch strings.ToLower(cell) {
	case "", "na", "n/a", "nan", "null", "none":
		return true
	}
	return false
}
