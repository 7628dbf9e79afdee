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
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 120, cfg.Index.NumBarrels)
	assert.Equal(t, 4, cfg.Search.Workers)
	assert.Equal(t, "weighted", cfg.Search.Scorer)
	assert.Equal(t, filepath.Join("data/index", "barrels"), cfg.Index.BarrelPath())
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	body := `
index:
  numBarrels: 16
  compression: zstd
search:
  workers: 8
  timeout: 250ms
  scorer: bm25
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Index.NumBarrels)
	assert.Equal(t, "zstd", cfg.Index.Compression)
	assert.Equal(t, 8, cfg.Search.Workers)
	assert.Equal(t, 250*time.Millisecond, cfg.Search.Timeout)
	assert.Equal(t, "bm25", cfg.Search.Scorer)
	// untouched sections keep their defaults
	assert.Equal(t, 10, cfg.Search.DefaultPerPage)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("RS_INDEX_NUM_BARRELS", "7")
	t.Setenv("RS_KAFKA_BROKERS", "a:9092,b:9092")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Index.NumBarrels)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero barrels", func(c *Config) { c.Index.NumBarrels = 0 }},
		{"unknown compression", func(c *Config) { c.Index.Compression = "lz4" }},
		{"unknown scorer", func(c *Config) { c.Search.Scorer = "tfidf" }},
		{"no workers", func(c *Config) { c.Search.Workers = 0 }},
		{"per page above max", func(c *Config) { c.Search.DefaultPerPage = 500 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
