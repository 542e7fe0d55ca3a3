package merchant

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slog"

	"github.com/alovak/cardflow-3ds/internal/metrics"
	"github.com/alovak/cardflow-3ds/internal/models"
)

// TokenPrefix starts every transaction token this merchant generates.
const TokenPrefix = "MERCH_TOK_"

var (
	ErrNotFound = fmt.Errorf("not found")
	ErrConflict = fmt.Errorf("conflict")
)

// Gateway is the hop the merchant initiates payments with.
type Gateway interface {
	Authorize(ctx context.Context, req models.AuthorizationRequest) (models.ChallengeReference, error)
}

type PaymentStatus string

const (
	// PaymentStatusChallenge waits for the cardholder at the issuer.
	PaymentStatusChallenge PaymentStatus = "CHALLENGE"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusSucceeded PaymentStatus = "SUCCEEDED"
	PaymentStatusDeclined  PaymentStatus = "DECLINED"
)

type Payment struct {
	Token        string          `json:"token"`
	Status       PaymentStatus   `json:"status"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	ChallengeURL string          `json:"challengeUrl,omitempty"`
	ErrorCode    string          `json:"errorCode,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// CheckoutRequest is what the shopper enters on the payment form.
type CheckoutRequest struct {
	CardNumber     string          `json:"cardNumber"`
	ExpiryMonth    string          `json:"expiryMonth"`
	ExpiryYear     string          `json:"expiryYear"`
	CVV            string          `json:"cvv"`
	CardholderName string          `json:"cardholderName"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency,omitempty"`
}

type Service struct {
	gateway Gateway
	config  *Config
	logger  *slog.Logger

	mu       sync.RWMutex
	payments map[string]*Payment
}

func NewService(logger *slog.Logger, gateway Gateway, config *Config) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	return &Service{
		gateway:  gateway,
		config:   config,
		logger:   logger,
		payments: make(map[string]*Payment),
	}
}

// NewToken generates a transaction token.
func NewToken() string {
	return TokenPrefix + uuid.New().String()
}

// Checkout starts a payment under a fresh token. A gateway error is kept on
// the payment and returned.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (Payment, error) {
	currency := req.Currency
	if currency == "" {
		currency = s.config.DefaultCurrency
	}

	now := time.Now()
	payment := &Payment{
		Token:     NewToken(),
		Amount:    req.Amount,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}

	ref, err := s.gateway.Authorize(ctx, models.AuthorizationRequest{
		Token:               payment.Token,
		CardNumber:          req.CardNumber,
		ExpiryMonth:         req.ExpiryMonth,
		ExpiryYear:          req.ExpiryYear,
		CVV:                 req.CVV,
		CardholderName:      req.CardholderName,
		Amount:              req.Amount,
		Currency:            currency,
		MerchantCallbackRef: s.config.MerchantRef,
	})
	if err != nil {
		payment.Status = PaymentStatusFailed
		payment.ErrorCode = string(models.CodeOf(err))
	} else {
		payment.Status = PaymentStatusChallenge
		payment.ChallengeURL = ref.String()
	}

	s.mu.Lock()
	s.payments[payment.Token] = payment
	s.mu.Unlock()

	s.logger.Info("payment initiated",
		slog.String("token", payment.Token),
		slog.String("status", string(payment.Status)),
		slog.String("error_code", payment.ErrorCode),
	)
	return *payment, err
}

// HandleCallback records the outcome the issuer sent for a token. Repeating
// the same outcome is acknowledged again; a different outcome for a settled
// payment is a conflict.
func (s *Service) HandleCallback(note models.CallbackNotification) (Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payment, ok := s.payments[note.Token]
	if !ok {
		return Payment{}, ErrNotFound
	}

	outcome := PaymentStatusDeclined
	if note.IsSuccessful {
		outcome = PaymentStatusSucceeded
	}

	switch payment.Status {
	case outcome:
		return *payment, nil
	case PaymentStatusSucceeded, PaymentStatusDeclined:
		return *payment, fmt.Errorf("payment already %s: %w", payment.Status, ErrConflict)
	case PaymentStatusFailed:
		return *payment, fmt.Errorf("payment failed at initiation: %w", ErrConflict)
	}

	payment.Status = outcome
	payment.UpdatedAt = time.Now()
	metrics.Outcomes.WithLabelValues(string(outcome)).Inc()
	s.logger.Info("payment outcome", slog.String("token", note.Token), slog.String("status", string(outcome)))

	return *payment, nil
}

func (s *Service) GetPayment(token string) (Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payment, ok := s.payments[token]
	if !ok {
		return Payment{}, ErrNotFound
	}
	return *payment, nil
}

