package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goadesign/agentic-core/agentic/config"
)

func TestDefaultMatchesDocumentedValues(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, 32, cfg.Session.MaxTurns)
	assert.True(t, cfg.Session.EnableCompression)
	assert.Equal(t, 0.8, cfg.Session.CompressionThreshold)
	assert.Equal(t, 4, cfg.Tool.MaxConcurrency)
	assert.True(t, cfg.Tool.ConfirmBeforeRun)
}

func TestLoadOverridesOnlyProvidedFields(t *testing.T) {
	cfg, err := config.Load([]byte(`
session:
  max_turns: 10
tool:
  max_concurrency: 2
`))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Session.MaxTurns)
	assert.Equal(t, 2, cfg.Tool.MaxConcurrency)
	// untouched fields keep their defaults
	assert.True(t, cfg.Session.EnableCompression)
	assert.True(t, cfg.Tool.ConfirmBeforeRun)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	_, err := config.Load([]byte("session: [this is not a mapping"))
	assert.Error(t, err)
}
