package openaicompat

import "time"

// Config holds configuration for an OpenAI-compatible backend.
type Config struct {
	// BaseURL is the server URL (e.g., "http://localhost:8000"). When it
	// already ends in /chat/completions it is used as the endpoint verbatim.
	BaseURL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Timeout bounds one synchronous call. Defaults to 60s. Streams are
	// bounded by the caller's context instead.
	Timeout time.Duration

	// ConnectTimeout bounds TCP connection setup for both strategies.
	// Defaults to 10s.
	ConnectTimeout time.Duration

	// MaxRetries for network failures and premature stream closes.
	// Defaults to 1; negative disables retries.
	MaxRetries int

	// RetryInitialInterval and RetryMaxInterval shape the exponential
	// backoff between attempts.
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration

	// ModelMapper optionally rewrites the model name before it is sent.
	ModelMapper func(string) string
}

// DefaultConfig returns a Config with defaults applied.
func DefaultConfig(baseURL string) Config {
	cfg := Config{BaseURL: baseURL}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 1
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryInitialInterval == 0 {
		c.RetryInitialInterval = 250 * time.Millisecond
	}
	if c.RetryMaxInterval == 0 {
		c.RetryMaxInterval = 2 * time.Second
	}
}
