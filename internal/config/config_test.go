package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 200_000, cfg.ContextWindow)
	assert.Equal(t, 0.80, cfg.Threshold)
	assert.Equal(t, 10, cfg.MaxSessions)
	assert.True(t, cfg.SkipManual)
	assert.Contains(t, cfg.ManualKeywords, "browser")
	assert.Contains(t, cfg.ManualKeywords, "手動")
	assert.NotEmpty(t, cfg.FatalPatterns)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chainrunner.yaml")
	data := []byte("threshold: 0.5\nmax_sessions: 3\nplan_file: TODO.md\n")
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.Threshold)
	assert.Equal(t, 3, cfg.MaxSessions)
	assert.Equal(t, "TODO.md", cfg.PlanFile)
	// Untouched fields keep their defaults.
	assert.Equal(t, 200_000, cfg.ContextWindow)
	assert.Equal(t, "HANDOVER.md", cfg.HandoverFile)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chainrunner.yaml")
	require.NoError(t, os.WriteFile(path, []byte("threshold: 1.5\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "chainrunner.yaml")

	cfg := DefaultConfig()
	cfg.Threshold = 0.65
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
