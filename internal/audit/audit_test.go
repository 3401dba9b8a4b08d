package audit

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogBuildsVerifiableChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	l, err := Open(path, 1, 1)
	require.NoError(t, err)
	l.Log(EventRunStart, map[string]any{"mode": "real"})
	l.RecordCommand([]string{"/usr/bin/doas", "/usr/sbin/syspatch", "-c"}, 0, nil)
	l.RecordCommand([]string{"/usr/bin/doas", "/usr/sbin/syspatch"}, 1, errors.New("exit 1"))
	require.NoError(t, l.Close())

	n, err := Verify(path)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"prevHash":"genesis"`)
	assert.Contains(t, string(data), `"error":"exit 1"`)
}

func TestChainContinuesAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	first, err := Open(path, 1, 1)
	require.NoError(t, err)
	first.Log(EventRunStart, nil)
	require.NoError(t, first.Close())

	second, err := Open(path, 1, 1)
	require.NoError(t, err)
	second.Log(EventRunStop, nil)
	require.NoError(t, second.Close())

	n, err := Verify(path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestVerifyDetectsTampering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	l, err := Open(path, 1, 1)
	require.NoError(t, err)
	l.now = func() time.Time { return time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC) }
	l.RecordCommand([]string{"/usr/sbin/sysupgrade", "-n"}, 0, nil)
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := strings.Replace(string(data), "sysupgrade", "sysupgrad3", 1)
	require.NoError(t, os.WriteFile(path, []byte(tampered), 0o600))

	_, err = Verify(path)
	assert.ErrorContains(t, err, "hash mismatch")
}

func TestVerifyDetectsTruncatedHead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	l, err := Open(path, 1, 1)
	require.NoError(t, err)
	l.Log(EventRunStart, nil)
	l.Log(EventRunStop, nil)
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.SplitAfter(string(data), "\n")
	require.NoError(t, os.WriteFile(path, []byte(lines[1]), 0o600))

	_, err = Verify(path)
	assert.ErrorContains(t, err, "does not start at genesis")

	// A rotated backup accounts for the missing head.
	require.NoError(t, os.WriteFile(path+".1", []byte(lines[0]), 0o600))
	n, err := Verify(path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNilLoggerIsNoop(t *testing.T) {
	var l *Logger
	l.Log(EventRunStart, nil)
	l.RecordCommand([]string{"true"}, 0, nil)
	assert.NoError(t, l.Close())
}
