package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.Chroma.BaseURL)
	assert.Equal(t, "smart_chunks", cfg.Chroma.Collection)
	assert.Equal(t, "cosine", cfg.Chroma.Metric)
	assert.True(t, cfg.Neo4j.Enabled)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 15, cfg.Retrieval.InitialK)
	assert.Equal(t, 2, cfg.Retrieval.MaxHops)
	assert.True(t, cfg.Retrieval.FailSoft)
	assert.NoError(t, cfg.Validate())
}

func TestLoader_FromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
chroma:
  base_url: http://chroma:8000
  metric: l2
retrieval:
  top_k: 8
  initial_k: 24
log:
  level: debug
`), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "http://chroma:8000", cfg.Chroma.BaseURL)
	assert.Equal(t, "l2", cfg.Chroma.Metric)
	assert.Equal(t, 8, cfg.Retrieval.TopK)
	assert.Equal(t, 24, cfg.Retrieval.InitialK)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "smart_chunks", cfg.Chroma.Collection, "unset keys keep defaults")
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("MEDIRAG_CHROMA_BASE_URL", "http://override:9000")
	t.Setenv("MEDIRAG_RETRIEVAL_TOP_K", "3")
	t.Setenv("MEDIRAG_RETRIEVAL_FAIL_SOFT", "false")
	t.Setenv("MEDIRAG_REDIS_RESULT_TTL", "90s")
	t.Setenv("MEDIRAG_EMBEDDING_RPS", "2.5")
	t.Setenv("MEDIRAG_LOG_OUTPUT_PATHS", "stdout, /var/log/medirag.log")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "http://override:9000", cfg.Chroma.BaseURL)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.False(t, cfg.Retrieval.FailSoft)
	assert.Equal(t, 90*time.Second, cfg.Redis.ResultTTL)
	assert.Equal(t, 2.5, cfg.Embedding.RPS)
	assert.Equal(t, []string{"stdout", "/var/log/medirag.log"}, cfg.Log.OutputPaths)
}

func TestLoader_EnvBeatsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retrieval:\n  top_k: 8\n"), 0o644))
	t.Setenv("MEDIRAG_RETRIEVAL_TOP_K", "2")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Retrieval.TopK)
}

func TestLoader_CustomValidator(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(c *Config) error {
			return assert.AnError
		}).
		Load()
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults pass", func(c *Config) {}, false},
		{"zero top_k", func(c *Config) { c.Retrieval.TopK = 0 }, true},
		{"initial_k below top_k", func(c *Config) { c.Retrieval.InitialK = 2 }, true},
		{"bad metric", func(c *Config) { c.Chroma.Metric = "hamming" }, true},
		{"temperature out of range", func(c *Config) { c.LLM.Temperature = 3.0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
