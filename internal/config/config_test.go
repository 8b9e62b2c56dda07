package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qtdlabs/muletrace/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MULETRACE_DB", "")
	t.Setenv("MULETRACE_KEY_FILE", "")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "data/muletrace.db", cfg.DBPath)
	assert.Equal(t, "data/master.key", cfg.KeyPath)
	assert.Empty(t, cfg.ScorerURL)
	assert.False(t, cfg.Verbose)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MULETRACE_DB", "/tmp/audit.db")
	t.Setenv("MULETRACE_SCORER_URL", "http://scorer.local/score")
	t.Setenv("MULETRACE_VERBOSE", "true")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/audit.db", cfg.DBPath)
	assert.Equal(t, "http://scorer.local/score", cfg.ScorerURL)
	assert.True(t, cfg.Verbose)
}
