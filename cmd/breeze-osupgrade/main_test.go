package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/breeze-rmm/osupgrade/internal/audit"
	"github.com/breeze-rmm/osupgrade/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() {
		cfgFile, dryRun, elevation, logLevel, logFormat, forceInit = "", false, "", "", "", false
		resetFlags(rootCmd.PersistentFlags(), configInitCmd.Flags())
	})

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := executeRoot(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "--config", filepath.Join(t.TempDir(), "none.yaml"), "version")
	require.NoError(t, err)
	assert.Equal(t, "breeze-osupgrade v"+version+"\n", out)
}

func TestConfigShowAppliesFlagOverrides(t *testing.T) {
	out, err := execute(t, "--config", filepath.Join(t.TempDir(), "none.yaml"), "--dry-run", "--elevation", "none", "config", "show")
	require.NoError(t, err)

	var shown config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &shown))
	assert.True(t, shown.DryRun)
	assert.Equal(t, "none", shown.Elevation)
	assert.Equal(t, config.DefaultMirror, shown.DefaultMirror)
}

func TestInvalidElevationIsRejected(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "none.yaml"), "--elevation", "pkexec", "config", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "osupgrade.yaml")

	out, err := execute(t, "--config", path, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+path)

	_, err = os.Stat(path)
	require.NoError(t, err)

	_, err = execute(t, "--config", path, "config", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = execute(t, "--config", path, "config", "init", "--force")
	require.NoError(t, err)
}

// resetFlags clears the Changed state left behind by a previous Execute.
func resetFlags(sets ...*pflag.FlagSet) {
	for _, fs := range sets {
		fs.VisitAll(func(f *pflag.Flag) {
			f.Changed = false
		})
	}
}

func TestAuditTrailRecordsRunAndVerifies(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "osupgrade.yaml")
	auditPath := filepath.Join(dir, "audit.jsonl")
	require.NoError(t, os.WriteFile(cfgPath, []byte("audit_file: "+auditPath+"\n"), 0o600))

	_, err := execute(t, "--config", cfgPath, "version")
	require.NoError(t, err)

	out, err := execute(t, "--config", cfgPath, "audit", "verify")
	require.NoError(t, err)
	// The verify run appends its own start entry before reading the file.
	assert.Contains(t, out, "3 entries, chain intact")
}

func readAuditEntries(t *testing.T, path string) []audit.Entry {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var entries []audit.Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry audit.Entry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		entries = append(entries, entry)
	}
	require.NoError(t, scanner.Err())
	return entries
}

func TestFailedCommandStillClosesAuditTrail(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "osupgrade.yaml")
	auditPath := filepath.Join(dir, "audit.jsonl")
	require.NoError(t, os.WriteFile(cfgPath, []byte("audit_file: "+auditPath+"\n"), 0o600))

	_, err := execute(t, "--config", cfgPath, "audit", "verify", filepath.Join(dir, "missing.jsonl"))
	require.Error(t, err)
	assert.Nil(t, trail)

	entries := readAuditEntries(t, auditPath)
	require.Len(t, entries, 2)
	assert.Equal(t, audit.EventRunStart, entries[0].EventType)
	assert.Equal(t, audit.EventRunStop, entries[1].EventType)
	assert.Equal(t, "error", entries[1].Details["status"])
	assert.Contains(t, entries[1].Details["error"], "missing.jsonl")

	n, err := audit.Verify(auditPath)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRunRejectsUnknownStepBeforeSetup(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "osupgrade.yaml")
	auditPath := filepath.Join(dir, "audit.jsonl")
	require.NoError(t, os.WriteFile(cfgPath, []byte("audit_file: "+auditPath+"\n"), 0o600))

	_, err := execute(t, "--config", cfgPath, "run", "patches", "bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown step "bogus"`)

	_, statErr := os.Stat(auditPath)
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}
