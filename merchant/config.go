package merchant

import "time"

// Config is a configuration for the merchant application
type Config struct {
	HTTPAddr       string
	GatewayURL     string
	GatewayTimeout time.Duration

	// MerchantRef is sent with every payment so the issuer knows where to
	// deliver the outcome.
	MerchantRef     string
	DefaultCurrency string

	// CallbackSecret verifies the signature of issuer callbacks.
	CallbackSecret string
}

func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:        "localhost:9090",
		GatewayURL:      "http://localhost:8081",
		GatewayTimeout:  20 * time.Second,
		MerchantRef:     "merchantXYZ",
		DefaultCurrency: "USD",
		CallbackSecret:  "dev-callback-secret",
	}
}
