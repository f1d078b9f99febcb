package types

import (
	"errors"
	"time"
)

var (
	ErrMissingAPIKey  = errors.New("API key is required")
	ErrMissingBaseURL = errors.New("base URL is required")
)

// Config is the common adapter configuration
type Config struct {
	APIKey  string            // API key
	BaseURL string            // API base URL (empty = provider default)
	Timeout time.Duration     // request timeout
	Model   string            // default model
	Headers map[string]string // custom HTTP headers
}

// Validate verifies the configuration and fills defaults
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	return nil
}
