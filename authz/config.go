package authz

import (
	"strings"
	"time"
)

// Config holds connection settings for a remote authorization service.
type Config struct {
	// APIURL is the service base URL, e.g. "http://localhost:8080".
	APIURL string

	// StoreID selects the authorization store.
	StoreID string

	// AuthorizationModelID pins checks and writes to a model version. Optional.
	AuthorizationModelID string

	// APIToken is sent as a bearer token when set.
	APIToken string

	// UserType prefixes subjects ("user" yields "user:alice").
	UserType string

	// ObjectType prefixes objects ("doc" yields "doc:report.pdf").
	ObjectType string

	// Timeout bounds a single HTTP request.
	Timeout time.Duration

	// RequestsPerSecond throttles outgoing requests. Zero disables throttling.
	RequestsPerSecond float64

	// Burst is the token bucket size. Zero means 1.
	Burst int
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithAPIURL sets the service base URL.
func WithAPIURL(url string) ConfigOption {
	return func(c *Config) { c.APIURL = url }
}

// WithStoreID sets the store ID.
func WithStoreID(id string) ConfigOption {
	return func(c *Config) { c.StoreID = id }
}

// WithAuthorizationModelID pins the authorization model.
func WithAuthorizationModelID(id string) ConfigOption {
	return func(c *Config) { c.AuthorizationModelID = id }
}

// WithAPIToken sets the bearer token.
func WithAPIToken(token string) ConfigOption {
	return func(c *Config) { c.APIToken = token }
}

// WithTypes sets the subject and object type names.
func WithTypes(userType, objectType string) ConfigOption {
	return func(c *Config) {
		c.UserType = userType
		c.ObjectType = objectType
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ConfigOption {
	return func(c *Config) { c.Timeout = d }
}

// WithRateLimit throttles requests to rps with the given burst.
func WithRateLimit(rps float64, burst int) ConfigOption {
	return func(c *Config) {
		c.RequestsPerSecond = rps
		c.Burst = burst
	}
}

// DefaultConfig returns a Config with the default type names and limits.
// APIURL and StoreID have no sensible default and must be set.
func DefaultConfig() *Config {
	return &Config{
		UserType:          "user",
		ObjectType:        "doc",
		Timeout:           10 * time.Second,
		RequestsPerSecond: 50,
		Burst:             10,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Enabled reports whether a remote service is configured.
func (c *Config) Enabled() bool {
	return c != nil && c.APIURL != ""
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	c.APIURL = strings.TrimSuffix(c.APIURL, "/")
	if c.APIURL == "" {
		return ErrAPIURLRequired
	}
	if c.StoreID == "" {
		return ErrStoreIDRequired
	}
	if c.RequestsPerSecond < 0 || c.Burst < 0 {
		return ErrInvalidRateLimit
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	return nil
}

// Subject returns the wire form of a subject.
func (c *Config) Subject(subject string) string {
	return qualify(c.UserType, subject)
}

// Object returns the wire form of an object.
func (c *Config) Object(object string) string {
	return qualify(c.ObjectType, object)
}

func qualify(typ, id string) string {
	if typ == "" || strings.HasPrefix(id, typ+":") {
		return id
	}
	return typ + ":" + id
}
