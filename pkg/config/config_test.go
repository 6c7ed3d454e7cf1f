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
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "member-index-published", cfg.Kafka.Topics.IndexPublished)
	assert.Equal(t, 10, cfg.Search.DefaultLimit)
	assert.Equal(t, 1024, cfg.Redis.LocalCacheSize)
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlDoc := `
server:
  port: 9000
indexer:
  dataDir: /var/lib/msi
  watch: true
  sources:
    - name: aot
      path: docs/member-search-index.js
search:
  defaultLimit: 20
  maxResults: 50
  timeoutPerSource: 3s
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))
	t.Setenv("MSI_SERVER_PORT", "9100")
	t.Setenv("MSI_LOGGING_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "/var/lib/msi", cfg.Indexer.DataDir)
	assert.True(t, cfg.Indexer.Watch)
	assert.Equal(t, []SourceConfig{{Name: "aot", Path: "docs/member-search-index.js"}}, cfg.Indexer.Sources)
	assert.Equal(t, 3*time.Second, cfg.Search.TimeoutPerSource)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadLimits(t *testing.T) {
	cfg := defaultConfig()
	cfg.Search.MaxResults = 5
	cfg.Search.DefaultLimit = 10
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsDuplicateSources(t *testing.T) {
	cfg := defaultConfig()
	cfg.Indexer.Sources = []SourceConfig{
		{Name: "aot", Path: "a.js"},
		{Name: "aot", Path: "b.js"},
	}
	assert.ErrorContains(t, cfg.Validate(), "duplicate source name")
}

func TestParseSources(t *testing.T) {
	got := ParseSources("aot=docs/a.js, build/member-search-index.js ,")
	assert.Equal(t, []SourceConfig{
		{Name: "aot", Path: "docs/a.js"},
		{Name: "member-search-index", Path: "build/member-search-index.js"},
	}, got)
}

func TestLoadDevelopmentConfig(t *testing.T) {
	t.Setenv("MSI_ANALYTICS_PORT", "9183")
	cfg, err := Load("../../configs/development.yaml")
	require.NoError(t, err)
	assert.Equal(t, []SourceConfig{{Name: "aot", Path: "internal/jsindex/testdata/member-search-index.js"}}, cfg.Indexer.Sources)
	assert.True(t, cfg.Indexer.Watch)
	assert.Equal(t, 250*time.Millisecond, cfg.Indexer.WatchDebounce)
	assert.Equal(t, int64(16<<20), cfg.Ingestion.MaxBodyBytes)
	assert.Equal(t, 9183, cfg.Analytics.Port)
	assert.Equal(t, "member-index-published", cfg.Kafka.Topics.IndexPublished)
}
