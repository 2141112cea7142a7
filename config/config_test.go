package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/guarded/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "guarded.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "guarded.db", cfg.Database.Path)
	assert.Equal(t, "embeddinggemma", cfg.Embedding.Model)
	assert.Equal(t, search.DefaultOverfetch, cfg.Search.Overfetch)
	assert.Equal(t, 10, cfg.Search.Limit)
	assert.Empty(t, cfg.Authz.APIURL)
	assert.False(t, cfg.AuthzConfig().Enabled())
	require.NoError(t, cfg.AIConfig().Validate())
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /var/lib/guarded
embedding:
  model: text-embedding-3-small
  dimension: 1536
  retry_delay: 250ms
authz:
  api_url: http://localhost:8080
  store_id: store-1
  timeout: 2s
search:
  overfetch: 3
  surface_indeterminate: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/guarded", cfg.Database.Path)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	assert.Equal(t, 1536, cfg.Embedding.Dimension)
	assert.Equal(t, 250*time.Millisecond, cfg.Embedding.RetryDelay)
	assert.Equal(t, 2*time.Second, cfg.Authz.Timeout)
	assert.Equal(t, 3, cfg.Search.Overfetch)
	assert.True(t, cfg.Search.SurfaceIndeterminate)

	// Unset fields keep their defaults
	assert.Equal(t, "http://localhost:11434/v1", cfg.Embedding.Host)
	assert.Equal(t, search.DefaultMaxOverfetch, cfg.Search.MaxOverfetch)
	assert.Equal(t, "doc", cfg.Authz.ObjectType)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "search: [unterminated")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestConfig_SecretsFromEnvironment(t *testing.T) {
	t.Setenv("TEST_GUARDED_KEY", "sk-test")
	t.Setenv("TEST_GUARDED_TOKEN", "fga-token")

	path := writeConfig(t, `
embedding:
  api_key_env: TEST_GUARDED_KEY
authz:
  api_url: http://localhost:8080/
  store_id: store-1
  token_env: TEST_GUARDED_TOKEN
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	aiCfg := cfg.AIConfig()
	assert.Equal(t, "sk-test", aiCfg.APIKey)

	authzCfg := cfg.AuthzConfig()
	assert.True(t, authzCfg.Enabled())
	assert.Equal(t, "fga-token", authzCfg.APIToken)
	require.NoError(t, authzCfg.Validate())
	assert.Equal(t, "http://localhost:8080", authzCfg.APIURL)
}

func TestConfig_MissingSecretKeepsDefault(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Embedding.APIKeyEnv = "TEST_GUARDED_UNSET_KEY"
	assert.Equal(t, "none", cfg.AIConfig().APIKey)
}

func TestConfig_SearchOptions(t *testing.T) {
	cfg := DefaultConfig()
	assert.Len(t, cfg.SearchOptions(), 8)
}

func TestConfig_SaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "guarded.yaml")
	cfg := DefaultConfig()
	cfg.Search.Limit = 3
	cfg.Embedding.RetryDelay = time.Second

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
