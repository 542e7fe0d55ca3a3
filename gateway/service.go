package gateway

import (
	"context"

	"github.com/alovak/cardflow-3ds/internal/expiry"
	"github.com/alovak/cardflow-3ds/internal/metrics"
	"github.com/alovak/cardflow-3ds/internal/models"
	"golang.org/x/exp/slog"
)

// Acquirer is the next hop of the gateway.
type Acquirer interface {
	Authorize(ctx context.Context, req models.AuthorizationRequest) (models.ChallengeReference, error)
}

// Service relays payment initiations from merchants to the acquirer.
type Service struct {
	acquirer Acquirer
	logger   *slog.Logger
}

func NewService(logger *slog.Logger, acquirer Acquirer) *Service {
	return &Service{
		acquirer: acquirer,
		logger:   logger,
	}
}

// Initiate checks the shape of req and passes it on. Whatever the acquirer
// or issuer answer comes back unchanged.
func (s *Service) Initiate(ctx context.Context, req models.AuthorizationRequest) (models.ChallengeReference, error) {
	if err := Validate(req); err != nil {
		metrics.Initiations.WithLabelValues(string(models.CodeOf(err))).Inc()
		return "", err
	}

	ref, err := s.acquirer.Authorize(ctx, req)
	if err != nil {
		metrics.Initiations.WithLabelValues(string(models.CodeOf(err))).Inc()
		s.logger.Info("initiation failed", slog.String("token", req.Token), slog.String("code", string(models.CodeOf(err))))
		return "", err
	}

	metrics.Initiations.WithLabelValues("approved").Inc()
	return ref, nil
}

// Validate is the gateway's shape check. Card number format is left to the
// acquirer.
func Validate(req models.AuthorizationRequest) error {
	if req.Token == "" {
		return models.NewError(models.CodeMissingField, "token is required")
	}
	if req.CardNumber == "" {
		return models.NewError(models.CodeMissingField, "card number is required").WithToken(req.Token)
	}
	if err := expiry.ValidateMonthYear(req.ExpiryMonth, req.ExpiryYear); err != nil {
		return models.WrapError(models.CodeInvalidExpiry, err, "invalid expiry").WithToken(req.Token)
	}
	if !models.ValidAmount(req.Amount) {
		return models.NewError(models.CodeInvalidAmount, "amount must be non-negative with at most two decimals and %d digits", models.MaxMinorUnitDigits).WithToken(req.Token)
	}
	if !models.ValidCurrency(req.Currency) {
		return models.NewError(models.CodeInvalidCurrency, "currency must be a 3 character ISO 4217 code").WithToken(req.Token)
	}
	return nil
}
