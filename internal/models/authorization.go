package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuthorizationRequest is created by the Merchant and relayed unchanged by
// the Gateway and the Acquirer to the Issuer.
type AuthorizationRequest struct {
	Token               string          `json:"token"`
	CardNumber          string          `json:"cardNumber"`
	ExpiryMonth         string          `json:"expiryMonth"`
	ExpiryYear          string          `json:"expiryYear"`
	CVV                 string          `json:"cvv"`
	CardholderName      string          `json:"cardholderName"`
	Amount              decimal.Decimal `json:"amount"`
	Currency            string          `json:"currency,omitempty"`
	MerchantCallbackRef string          `json:"merchantCallbackRef,omitempty"`
}

// MaxMinorUnitDigits bounds the amount in minor units, the width of the
// amount field on the issuer link.
const MaxMinorUnitDigits = 12

// ValidAmount reports whether amount is non-negative, has at most two
// decimals and fits in MaxMinorUnitDigits minor units.
func ValidAmount(amount decimal.Decimal) bool {
	if amount.IsNegative() || !amount.Equal(amount.Round(2)) {
		return false
	}
	return amount.Shift(2).LessThan(decimal.New(1, MaxMinorUnitDigits))
}

// ValidCurrency accepts an ISO 4217 alphabetic or numeric code. Empty means
// the issuer default.
func ValidCurrency(currency string) bool {
	if currency == "" {
		return true
	}
	if len(currency) != 3 {
		return false
	}
	for i := 0; i < len(currency); i++ {
		c := currency[i]
		if !(c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

// ChallengeReference is the opaque reference the Issuer hands back for the
// cardholder challenge. Only the Issuer interprets it.
type ChallengeReference string

func (r ChallengeReference) String() string { return string(r) }

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusConfirmed TransactionStatus = "CONFIRMED"
	TransactionStatusCancelled TransactionStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed.
func (s TransactionStatus) Terminal() bool {
	return s == TransactionStatusConfirmed || s == TransactionStatusCancelled
}

// TransactionRecord is owned by the Issuer and keyed by token.
type TransactionRecord struct {
	Token               string            `json:"token"`
	Status              TransactionStatus `json:"status"`
	CreatedAt           time.Time         `json:"createdAt"`
	UpdatedAt           time.Time         `json:"updatedAt"`
	Amount              decimal.Decimal   `json:"amount"`
	Currency            string            `json:"currency"`
	MerchantCallbackRef string            `json:"merchantCallbackRef,omitempty"`
}

// CardholderSession tracks the login side of the challenge for one token.
type CardholderSession struct {
	Token         string `json:"token"`
	LoginAttempts int    `json:"loginAttempts"`
	Authenticated bool   `json:"authenticated"`
}

// Cardholder is a known-cardholder record from the issuer directory.
type Cardholder struct {
	CardNumber   string `json:"cardNumber" yaml:"cardNumber"`
	CVV          string `json:"cvv" yaml:"cvv"`
	ExpiryMonth  string `json:"expiryMonth" yaml:"expiryMonth"`
	ExpiryYear   string `json:"expiryYear" yaml:"expiryYear"`
	Name         string `json:"name" yaml:"name"`
	PasswordHash string `json:"-" yaml:"passwordHash"`
}

// CallbackNotification is what the Issuer posts to the Merchant once the
// cardholder has decided.
type CallbackNotification struct {
	Token        string `json:"token"`
	IsSuccessful bool   `json:"isSuccessful"`
}

// ChallengeAction is the cardholder decision on the challenge page.
type ChallengeAction string

const (
	ActionConfirm ChallengeAction = "confirm"
	ActionCancel  ChallengeAction = "cancel"
)
