package backend

import "time"

// Config holds settings for the remote backend client.
type Config struct {
	// BaseURL is the HTTP endpoint of the backend, e.g. https://api.example.com
	BaseURL string `yaml:"base_url" json:"base_url" env:"BASE_URL"`
	// Timeout is the per-request timeout
	Timeout time.Duration `yaml:"timeout" json:"timeout" env:"TIMEOUT"`
	// Retries is number of retry attempts for transient failures of idempotent calls
	Retries int `yaml:"retries" json:"retries" env:"RETRIES"`
	// Backoff is the base backoff between retries
	Backoff time.Duration `yaml:"backoff" json:"backoff" env:"BACKOFF"`
	// CircuitFailureThreshold opens circuit after this many consecutive failures
	CircuitFailureThreshold int `yaml:"circuit_failure_threshold" json:"circuit_failure_threshold" env:"CIRCUIT_FAILURE_THRESHOLD"`
	// CircuitReset is the duration after which the circuit attempts to half-open
	CircuitReset time.Duration `yaml:"circuit_reset" json:"circuit_reset" env:"CIRCUIT_RESET"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:                 "http://localhost:3000",
		Timeout:                 10 * time.Second,
		Retries:                 2,
		Backoff:                 200 * time.Millisecond,
		CircuitFailureThreshold: 5,
		CircuitReset:            30 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultConfig. Retries may stay 0.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.Backoff <= 0 {
		c.Backoff = d.Backoff
	}
	if c.CircuitFailureThreshold <= 0 {
		c.CircuitFailureThreshold = d.CircuitFailureThreshold
	}
	if c.CircuitReset <= 0 {
		c.CircuitReset = d.CircuitReset
	}
	return c
}
