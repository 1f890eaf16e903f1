package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Research.MaxReviewIterations)
	assert.Equal(t, 10, cfg.Research.MaxToolCalls)
	assert.Equal(t, 5, cfg.Research.MaxDiscoverIterations)
	assert.True(t, cfg.Research.AllowClarification)
	assert.Equal(t, "deep-research", cfg.Temporal.TaskQueue)
}

func TestLoadFromFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orchestrator.yaml")
	body := `research:
  max_review_iterations: 3
  max_tool_calls: 20
llm:
  service_url: http://llm.internal:8000
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("LLM_SERVICE_URL", "http://override:9000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Research.MaxReviewIterations)
	assert.Equal(t, 20, cfg.Research.MaxToolCalls)
	assert.Equal(t, "http://override:9000", cfg.LLM.ServiceURL)
}

func TestValidateRejectsBadCaps(t *testing.T) {
	cfg := &Config{}
	cfg.LLM.ServiceURL = "http://x"
	cfg.Research = ResearchDefaults{MaxReviewIterations: 0, MaxToolCalls: 10, MaxDiscoverIterations: 5}
	assert.Error(t, cfg.Validate())

	cfg.Research.MaxReviewIterations = 11
	assert.Error(t, cfg.Validate())

	cfg.Research.MaxReviewIterations = 10
	assert.NoError(t, cfg.Validate())

	cfg.Research.MaxToolCalls = 51
	assert.Error(t, cfg.Validate())

	cfg.Research.MaxToolCalls = 50
	cfg.Research.MaxDiscoverIterations = 21
	assert.Error(t, cfg.Validate())
}

func TestEstimatedWorstCase(t *testing.T) {
	cfg := &Config{}
	cfg.Research = ResearchDefaults{
		MaxReviewIterations:   2,
		MaxToolCalls:          10,
		MaxDiscoverIterations: 5,
		PerCallTimeout:        30 * time.Second,
	}

	// 3 rounds * (10 calls * 4 sections) * 30s + 5 * 30s
	want := 3*40*30*time.Second + 150*time.Second
	assert.Equal(t, want, cfg.EstimatedWorstCase(4))
}
