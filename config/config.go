// Package config loads application settings for the guarded CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/poiesic/guarded/ai"
	"github.com/poiesic/guarded/authz"
	"github.com/poiesic/guarded/search"
	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Authz     AuthzConfig     `yaml:"authz"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Search    SearchConfig    `yaml:"search"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DatabaseConfig locates the local index.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// EmbeddingConfig configures the OpenAI-compatible embedding service.
type EmbeddingConfig struct {
	Host        string        `yaml:"host"`
	Model       string        `yaml:"model"`
	APIKeyEnv   string        `yaml:"api_key_env"` // Environment variable holding the API key
	Dimension   int           `yaml:"dimension"`
	MaxAttempts int           `yaml:"max_attempts"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
}

// AuthzConfig configures the authorization service. An empty api_url selects
// the embedded tuple store.
type AuthzConfig struct {
	APIURL               string        `yaml:"api_url"`
	StoreID              string        `yaml:"store_id"`
	AuthorizationModelID string        `yaml:"authorization_model_id"`
	TokenEnv             string        `yaml:"token_env"` // Environment variable holding the bearer token
	UserType             string        `yaml:"user_type"`
	ObjectType           string        `yaml:"object_type"`
	Timeout              time.Duration `yaml:"timeout"`
	RequestsPerSecond    float64       `yaml:"requests_per_second"`
	Burst                int           `yaml:"burst"`
}

// IngestConfig configures the ingest command.
type IngestConfig struct {
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
	PoolSize int      `yaml:"pool_size"`
	MaxChars int      `yaml:"max_chars"`
}

// SearchConfig configures the secure retriever.
type SearchConfig struct {
	Limit                int           `yaml:"limit"`
	Overfetch            int           `yaml:"overfetch"`
	GrowthFactor         int           `yaml:"growth_factor"`
	MaxOverfetch         int           `yaml:"max_overfetch"`
	MaxCandidates        int           `yaml:"max_candidates"`
	BatchSize            int           `yaml:"batch_size"`
	PoolSize             int           `yaml:"pool_size"`
	Timeout              time.Duration `yaml:"timeout"`
	SurfaceIndeterminate bool          `yaml:"surface_indeterminate"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	aiDefaults := ai.DefaultConfig()
	authzDefaults := authz.DefaultConfig()
	return &Config{
		Database: DatabaseConfig{Path: "guarded.db"},
		Embedding: EmbeddingConfig{
			Host:        aiDefaults.EmbeddingHost,
			Model:       aiDefaults.EmbeddingModel,
			APIKeyEnv:   "OPENAI_API_KEY",
			MaxAttempts: aiDefaults.MaxAttempts,
			RetryDelay:  aiDefaults.RetryDelay,
		},
		Authz: AuthzConfig{
			TokenEnv:          "FGA_API_TOKEN",
			UserType:          authzDefaults.UserType,
			ObjectType:        authzDefaults.ObjectType,
			Timeout:           authzDefaults.Timeout,
			RequestsPerSecond: authzDefaults.RequestsPerSecond,
			Burst:             authzDefaults.Burst,
		},
		Ingest: IngestConfig{
			Includes: []string{"**/*.txt", "**/*.md", "**/*.markdown", "**/*.html", "**/*.htm"},
			Excludes: []string{"**/.git/**", "**/node_modules/**", "**/vendor/**"},
		},
		Search: SearchConfig{
			Limit:         10,
			Overfetch:     search.DefaultOverfetch,
			GrowthFactor:  search.DefaultGrowthFactor,
			MaxOverfetch:  search.DefaultMaxOverfetch,
			MaxCandidates: search.DefaultMaxCandidates,
			BatchSize:     search.DefaultBatchSize,
			PoolSize:      search.DefaultPoolSize,
			Timeout:       search.DefaultQueryTimeout,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML config from path over the defaults. A missing file yields
// the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to path, creating directories as needed.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// AIConfig builds the embedding provider config. The API key is read from the
// environment variable named by api_key_env.
func (c *Config) AIConfig() *ai.Config {
	e := c.Embedding
	opts := []ai.ConfigOption{
		ai.WithEmbeddingHost(e.Host),
		ai.WithEmbeddingModel(e.Model),
		ai.WithDimension(e.Dimension),
		ai.WithRetry(e.MaxAttempts, e.RetryDelay),
	}
	if key := lookupEnv(e.APIKeyEnv); key != "" {
		opts = append(opts, ai.WithAPIKey(key))
	}
	return ai.NewConfig(opts...)
}

// AuthzConfig builds the authorization service config. The bearer token is
// read from the environment variable named by token_env.
func (c *Config) AuthzConfig() *authz.Config {
	a := c.Authz
	return authz.NewConfig(
		authz.WithAPIURL(a.APIURL),
		authz.WithStoreID(a.StoreID),
		authz.WithAuthorizationModelID(a.AuthorizationModelID),
		authz.WithAPIToken(lookupEnv(a.TokenEnv)),
		authz.WithTypes(a.UserType, a.ObjectType),
		authz.WithTimeout(a.Timeout),
		authz.WithRateLimit(a.RequestsPerSecond, a.Burst),
	)
}

// SearchOptions translates the search section into searcher options.
func (c *Config) SearchOptions() []search.Option {
	s := c.Search
	return []search.Option{
		search.WithOverfetch(s.Overfetch),
		search.WithGrowthFactor(s.GrowthFactor),
		search.WithMaxOverfetch(s.MaxOverfetch),
		search.WithMaxCandidates(s.MaxCandidates),
		search.WithBatchSize(s.BatchSize),
		search.WithPoolSize(s.PoolSize),
		search.WithQueryTimeout(s.Timeout),
		search.WithSurfaceIndeterminate(s.SurfaceIndeterminate),
	}
}

func lookupEnv(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}
