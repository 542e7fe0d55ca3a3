package issuer

import (
	"time"

	"github.com/alovak/cardflow-3ds/internal/models"
)

// Config is a configuration for the issuer application
type Config struct {
	HTTPAddr    string
	ISO8583Addr string

	// AuthorizeTimeout bounds one authorization received over ISO 8583.
	AuthorizeTimeout time.Duration

	// ChallengeBaseURL is the public base of the cardholder channel used in
	// challenge references. Empty means http://<bound HTTP address>.
	ChallengeBaseURL string

	// AttemptLimit bounds failed cardholder logins per token.
	AttemptLimit int

	// CallbackURL is where outcomes go when the merchant reference of a
	// transaction has no entry in MerchantCallbacks.
	CallbackURL       string
	MerchantCallbacks map[string]string
	CallbackTimeout   time.Duration
	CallbackSecret    string

	// DirectoryFile is a YAML list of cardholders. When empty the demo
	// cardholder below is the only known card.
	DirectoryFile  string
	DemoCardholder models.Cardholder
	DemoPassword   string

	// JournalDSN enables the Postgres transition journal.
	JournalDSN string
	PANHashKey string
}

func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:          "localhost:7071",
		ISO8583Addr:       "localhost:8583",
		AuthorizeTimeout:  10 * time.Second,
		AttemptLimit:      3,
		CallbackURL:       "http://localhost:9090/payment-callback",
		CallbackTimeout:   5 * time.Second,
		CallbackSecret:    "dev-callback-secret",
		MerchantCallbacks: map[string]string{},
		DemoCardholder: models.Cardholder{
			CardNumber:  "1234123412341234",
			CVV:         "123",
			ExpiryMonth: "12",
			ExpiryYear:  "2025",
			Name:        "Joe",
		},
		DemoPassword: "password",
		PANHashKey:   "dev-secret-pepper",
	}
}
