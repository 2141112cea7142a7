package ai

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NotNil(t, cfg)
	assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
	assert.Equal(t, "embeddinggemma", cfg.EmbeddingModel)
	assert.Equal(t, "none", cfg.APIKey)
	assert.Equal(t, 0, cfg.Dimension)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.NoError(t, cfg.Validate())
}

func TestNewConfig(t *testing.T) {
	t.Run("with no options", func(t *testing.T) {
		cfg := NewConfig()
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("with all options", func(t *testing.T) {
		cfg := NewConfig(
			WithEmbeddingHost("https://azure.example.com/openai/v1"),
			WithEmbeddingModel("text-embedding-ada-002"),
			WithAPIKey("secret"),
			WithDimension(1536),
			WithRetry(5, time.Second),
		)

		assert.Equal(t, "https://azure.example.com/openai/v1", cfg.EmbeddingHost)
		assert.Equal(t, "text-embedding-ada-002", cfg.EmbeddingModel)
		assert.Equal(t, "secret", cfg.APIKey)
		assert.Equal(t, 1536, cfg.Dimension)
		assert.Equal(t, 5, cfg.MaxAttempts)
		assert.Equal(t, time.Second, cfg.RetryDelay)
	})
}

func TestConfig_Normalize(t *testing.T) {
	tests := []struct {
		name string
		host string
		want string
	}{
		{"adds suffix", "http://localhost:11434", "http://localhost:11434/v1"},
		{"strips trailing slash", "http://localhost:11434/", "http://localhost:11434/v1"},
		{"keeps existing suffix", "http://localhost:11434/v1", "http://localhost:11434/v1"},
		{"leaves empty host", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{EmbeddingHost: tt.host}
			cfg.Normalize()
			assert.Equal(t, tt.want, cfg.EmbeddingHost)
			assert.Equal(t, "none", cfg.APIKey)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing host", func(c *Config) { c.EmbeddingHost = "" }, "EmbeddingHost is required"},
		{"missing model", func(c *Config) { c.EmbeddingModel = "" }, "EmbeddingModel is required"},
		{"negative dimension", func(c *Config) { c.Dimension = -1 }, "Dimension cannot be negative"},
		{"no attempts", func(c *Config) { c.MaxAttempts = 0 }, "MaxAttempts must be at least 1"},
		{"negative delay", func(c *Config) { c.RetryDelay = -time.Second }, "RetryDelay cannot be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_Backoff(t *testing.T) {
	cfg := NewConfig(WithRetry(4, 10*time.Millisecond))
	b := cfg.Backoff()
	assert.Equal(t, 4, b.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, b.BaseDelay)
	assert.Equal(t, DefaultBackoff().MaxDelay, b.MaxDelay)
}
