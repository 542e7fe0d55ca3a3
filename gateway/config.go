package gateway

import "time"

// Config is a configuration for the gateway application
type Config struct {
	HTTPAddr        string
	AcquirerURL     string
	AcquirerTimeout time.Duration

	// AllowedOrigins lists merchant front-ends allowed to call the gateway
	// from a browser.
	AllowedOrigins []string
}

func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:        "localhost:8081",
		AcquirerURL:     "http://localhost:8082",
		AcquirerTimeout: 15 * time.Second,
		AllowedOrigins:  []string{"http://localhost:*"},
	}
}
