package authz

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewConfig(t *testing.T) {
	cfg := NewConfig(
		WithAPIURL("http://localhost:8080/"),
		WithStoreID("01HSTORE"),
		WithAuthorizationModelID("01HMODEL"),
		WithAPIToken("secret"),
		WithTimeout(time.Second),
		WithRateLimit(5, 2),
	)

	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "http://localhost:8080", cfg.APIURL)
	assert.Equal(t, "01HSTORE", cfg.StoreID)
	assert.Equal(t, "01HMODEL", cfg.AuthorizationModelID)
	assert.Equal(t, "secret", cfg.APIToken)
	assert.Equal(t, 5.0, cfg.RequestsPerSecond)
	assert.Equal(t, 2, cfg.Burst)
	assert.True(t, cfg.Enabled())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		opts   []ConfigOption
		expect error
	}{
		{"missing url", []ConfigOption{WithStoreID("s")}, ErrAPIURLRequired},
		{"missing store", []ConfigOption{WithAPIURL("http://x")}, ErrStoreIDRequired},
		{"negative rate", []ConfigOption{WithAPIURL("http://x"), WithStoreID("s"), WithRateLimit(-1, 0)}, ErrInvalidRateLimit},
		{"zero timeout", []ConfigOption{WithAPIURL("http://x"), WithStoreID("s"), WithTimeout(0)}, ErrInvalidTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, NewConfig(tt.opts...).Validate(), tt.expect)
		})
	}
}

func TestConfig_Enabled(t *testing.T) {
	var nilCfg *Config
	assert.False(t, nilCfg.Enabled())
	assert.False(t, DefaultConfig().Enabled())
}

func TestConfig_Qualify(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "user:demo_user", cfg.Subject("demo_user"))
	assert.Equal(t, "user:demo_user", cfg.Subject("user:demo_user"))
	assert.Equal(t, "doc:demo.pdf", cfg.Object("demo.pdf"))

	cfg = NewConfig(WithTypes("", "document"))
	assert.Equal(t, "demo_user", cfg.Subject("demo_user"))
	assert.Equal(t, "document:demo.pdf", cfg.Object("demo.pdf"))
}
