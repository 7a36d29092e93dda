package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stageArtifact() string {
	return filepath.Join("..", "..", "internal", "ml", "testdata", "pd_stage_v4.json")
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return buf.String(), err
}

func TestInspectCmd_Use(t *testing.T) {
	assert.Equal(t, "inspect [artifact]", inspectCmd.Use)
}

func TestInspectCmd_RequiresExactlyOneArg(t *testing.T) {
	_, err := runCommand(t, "inspect")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestInspectCmd_SummarizesArtifact(t *testing.T) {
	out, err := runCommand(t, "inspect", stageArtifact())
	require.NoError(t, err)

	assert.Contains(t, out, "Objective:   multi:softprob")
	assert.Contains(t, out, "Classes:     4")
	assert.Contains(t, out, "Trees:       8")
	assert.Contains(t, out, "Features:    10")
	assert.Contains(t, out, "blood_creatinine")
	assert.Contains(t, out, "pdf_creatinine")
}

func TestInspectCmd_RejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := runCommand(t, "inspect", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load artifact")
}

func TestInspectCmd_MissingFile(t *testing.T) {
	_, err := runCommand(t, "inspect", filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read artifact")
}
