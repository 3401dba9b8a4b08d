package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadReadsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "osupgrade.yaml")
	body := "dry_run: true\nelevation: doas\nenabled_steps:\n  - patches\ncommand_timeout_seconds: 7200\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, "doas", cfg.Elevation)
	assert.Equal(t, []string{"patches"}, cfg.EnabledSteps)
	assert.Equal(t, 7200, cfg.CommandTimeoutSeconds)
	assert.Equal(t, DefaultMirror, cfg.DefaultMirror)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "osupgrade.yaml")
	require.NoError(t, os.WriteFile(path, []byte("elevation: sudo\n"), 0o600))
	t.Setenv("BREEZE_OSUPGRADE_ELEVATION", "none")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "none", cfg.Elevation)
}

func TestSaveToRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "osupgrade.yaml")
	cfg := Default()
	cfg.DryRun = true
	cfg.LogFile = "/var/log/breeze-osupgrade.log"

	require.NoError(t, SaveTo(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestReadInstallURL(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file falls back", func(t *testing.T) {
		got := ReadInstallURL(filepath.Join(dir, "none"), DefaultMirror+"/")
		assert.Equal(t, DefaultMirror, got)
	})

	t.Run("first usable line wins", func(t *testing.T) {
		path := filepath.Join(dir, "installurl")
		body := "# local mirror\n\nhttps://mirror.example.org/pub/OpenBSD/\nhttps://second.example.org\n"
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		assert.Equal(t, "https://mirror.example.org/pub/OpenBSD", ReadInstallURL(path, DefaultMirror))
	})

	t.Run("empty file falls back", func(t *testing.T) {
		path := filepath.Join(dir, "empty")
		require.NoError(t, os.WriteFile(path, []byte("\n\n"), 0o644))
		assert.Equal(t, DefaultMirror, ReadInstallURL(path, DefaultMirror))
	})
}
