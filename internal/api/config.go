package api

import "fmt"

// Config holds server configuration.
type Config struct {
	Addr string
	// BaseDir confines every path a client names.
	BaseDir string
	// MaxJobs bounds the job store; finished jobs are evicted oldest first.
	MaxJobs           int
	RateLimitRequests int        // Requests per minute (0 = disabled)
	RateLimitBurst    int        // Burst size
	Auth              AuthConfig // Authentication configuration
	AllowedOrigins    []string   // WebSocket origins (empty = same host only)
}

// Validate checks the configuration before the server starts.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.BaseDir == "" {
		return fmt.Errorf("base directory is required")
	}
	return ValidateAuthConfig(c.Auth)
}
