package acquirer

import "time"

// Config is a configuration for the acquirer application
type Config struct {
	HTTPAddr string

	// Issuers maps an issuer id to the address of its ISO 8583 endpoint.
	Issuers map[string]string
	// BINRoutes maps a card number prefix to an issuer id.
	BINRoutes map[string]string
	// RoutingFile replaces Issuers and BINRoutes with a YAML table.
	RoutingFile string

	IssuerTimeout time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:      "localhost:8082",
		Issuers:       map[string]string{"local": "localhost:8583"},
		BINRoutes:     map[string]string{"1234": "local"},
		IssuerTimeout: 10 * time.Second,
	}
}
