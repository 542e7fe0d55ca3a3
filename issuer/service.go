package issuer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/alovak/cardflow-3ds/internal/auth"
	"github.com/alovak/cardflow-3ds/internal/cardgen"
	"github.com/alovak/cardflow-3ds/internal/metrics"
	"github.com/alovak/cardflow-3ds/internal/models"
	"golang.org/x/exp/slog"
)

// LoginResult is the answer to a login that did not end the transaction.
type LoginResult struct {
	Authenticated     bool `json:"authenticated"`
	RemainingAttempts int  `json:"remainingAttempts"`
}

// Challenge is what the cardholder may see once logged in.
type Challenge struct {
	Token         string                   `json:"token"`
	LoginRequired bool                     `json:"loginRequired"`
	Status        models.TransactionStatus `json:"status,omitempty"`
	Amount        string                   `json:"amount,omitempty"`
	Currency      string                   `json:"currency,omitempty"`
}

// Service is the issuer access control server: it authorizes cards,
// authenticates the cardholder and commits the cardholder's decision.
type Service struct {
	store     *Store
	directory CardholderDirectory
	notifier  Notifier
	journal   Journal
	config    *Config
	logger    *slog.Logger
	hashKey   []byte
	now       func() time.Time

	// ChallengeBaseURL prefixes challenge references.
	ChallengeBaseURL string
}

func NewService(logger *slog.Logger, store *Store, directory CardholderDirectory, notifier Notifier, journal Journal, config *Config) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	if journal == nil {
		journal = NewMemoryJournal()
	}
	return &Service{
		store:            store,
		directory:        directory,
		notifier:         notifier,
		journal:          journal,
		config:           config,
		logger:           logger,
		hashKey:          []byte(config.PANHashKey),
		now:              time.Now,
		ChallengeBaseURL: strings.TrimRight(config.ChallengeBaseURL, "/"),
	}
}

func (s *Service) attemptLimit() int {
	if s.config.AttemptLimit <= 0 {
		return 3
	}
	return s.config.AttemptLimit
}

// Authorize checks the card against the directory and, when it is known,
// opens a PENDING transaction and returns the challenge reference.
func (s *Service) Authorize(ctx context.Context, req models.AuthorizationRequest) (models.ChallengeReference, error) {
	ref, err := s.authorize(ctx, req)
	if err != nil {
		metrics.Authorizations.WithLabelValues(string(models.CodeOf(err))).Inc()
		return "", err
	}
	metrics.Authorizations.WithLabelValues("approved").Inc()
	return ref, nil
}

func (s *Service) authorize(ctx context.Context, req models.AuthorizationRequest) (models.ChallengeReference, error) {
	if req.Token == "" {
		return "", models.NewError(models.CodeMissingField, "token is required")
	}
	if req.CardNumber == "" {
		return "", models.NewError(models.CodeMissingField, "card number is required").WithToken(req.Token)
	}

	if !s.cardMatches(req) {
		s.logger.Info("unknown card",
			slog.String("token", req.Token),
			slog.String("card", cardgen.MaskPAN(req.CardNumber)),
		)
		return "", models.NewError(models.CodeUnknownCard, "card not recognized").WithToken(req.Token)
	}

	now := s.now()
	record := models.TransactionRecord{
		Token:               req.Token,
		Status:              models.TransactionStatusPending,
		CreatedAt:           now,
		UpdatedAt:           now,
		Amount:              req.Amount,
		Currency:            req.Currency,
		MerchantCallbackRef: req.MerchantCallbackRef,
	}
	if err := s.store.Create(record, req.CardNumber); err != nil {
		if errors.Is(err, ErrConflict) {
			return "", models.NewError(models.CodeDuplicateToken, "token already used").WithToken(req.Token)
		}
		return "", fmt.Errorf("creating transaction: %w", err)
	}
	s.journalAppend(ctx, NewTransition(record, "", "authorized", req.CardNumber, s.hashKey))

	s.logger.Info("transaction pending",
		slog.String("token", req.Token),
		slog.String("card", cardgen.MaskPAN(req.CardNumber)),
	)
	return s.challengeReference(req.Token), nil
}

// cardMatches compares the presented 5-tuple to the directory record as one
// exact match.
func (s *Service) cardMatches(req models.AuthorizationRequest) bool {
	ch, err := s.directory.Lookup(req.CardNumber)
	if err != nil {
		return false
	}
	return ch.CardNumber == req.CardNumber &&
		ch.CVV == req.CVV &&
		ch.ExpiryMonth == req.ExpiryMonth &&
		ch.ExpiryYear == req.ExpiryYear &&
		ch.Name == req.CardholderName
}

func (s *Service) challengeReference(token string) models.ChallengeReference {
	return models.ChallengeReference(s.ChallengeBaseURL + "/challenge?token=" + url.QueryEscape(token))
}

// Login checks the cardholder credentials for token. A wrong login returns a
// result with the remaining attempts; the failure that uses up the last
// attempt cancels the transaction and returns TOO_MANY_ATTEMPTS.
func (s *Service) Login(ctx context.Context, token, name, password, cardNumber string) (LoginResult, error) {
	limit := s.attemptLimit()
	var result LoginResult
	var cancelled *Transition

	err := s.store.Update(token, func(e *Entry) error {
		if e.Record.Status != models.TransactionStatusPending {
			return models.NewError(models.CodeNoActiveTransaction, "transaction is %s", e.Record.Status)
		}
		if e.Session == nil {
			e.Session = &models.CardholderSession{Token: token}
		}

		if e.Session.LoginAttempts >= limit {
			t := s.cancelLocked(e, "attempt limit reached")
			cancelled = &t
			return models.NewError(models.CodeTooManyAttempts, "attempt limit reached")
		}

		if s.credentialsMatch(e, name, password, cardNumber) {
			e.Session.Authenticated = true
			e.Session.LoginAttempts = 0
			result = LoginResult{Authenticated: true, RemainingAttempts: limit}
			return nil
		}

		e.Session.LoginAttempts++
		if e.Session.LoginAttempts >= limit {
			t := s.cancelLocked(e, "attempt limit reached")
			cancelled = &t
			return models.NewError(models.CodeTooManyAttempts, "attempt limit reached")
		}
		result = LoginResult{RemainingAttempts: limit - e.Session.LoginAttempts}
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		err = models.NewError(models.CodeNoActiveTransaction, "no transaction for token")
	}

	if cancelled != nil {
		s.afterForcedCancel(ctx, *cancelled)
	}

	switch {
	case err != nil:
		metrics.Logins.WithLabelValues(string(models.CodeOf(err))).Inc()
		return LoginResult{}, withToken(err, token)
	case result.Authenticated:
		metrics.Logins.WithLabelValues("success").Inc()
		s.logger.Info("cardholder authenticated", slog.String("token", token))
	default:
		metrics.Logins.WithLabelValues("failure").Inc()
		s.logger.Info("cardholder login failed",
			slog.String("token", token),
			slog.Int("remaining_attempts", result.RemainingAttempts),
		)
	}
	return result, nil
}

func (s *Service) credentialsMatch(e *Entry, name, password, cardNumber string) bool {
	if cardNumber == "" || cardNumber != e.CardNumber {
		return false
	}
	ch, err := s.directory.Lookup(cardNumber)
	if err != nil {
		return false
	}
	if ch.Name != name {
		return false
	}
	return auth.VerifyPassword(password, ch.PasswordHash) == nil
}

// cancelLocked forces the record to CANCELLED and drops the session. The
// caller holds the slot lock.
func (s *Service) cancelLocked(e *Entry, reason string) Transition {
	from := e.Record.Status
	e.Record.Status = models.TransactionStatusCancelled
	e.Record.UpdatedAt = s.now()
	e.Session = nil
	return NewTransition(*e.Record, from, reason, e.CardNumber, s.hashKey)
}

// afterForcedCancel journals a forced cancellation and tells the merchant.
// The cancellation stands whatever the merchant answers.
func (s *Service) afterForcedCancel(ctx context.Context, t Transition) {
	metrics.Decisions.WithLabelValues("forced_cancel").Inc()
	s.logger.Info("transaction cancelled", slog.String("token", t.Token), slog.String("reason", t.Reason))
	s.journalAppend(ctx, t)

	record, _, err := s.store.Get(t.Token)
	if err != nil {
		return
	}
	if err := s.notify(ctx, record.MerchantCallbackRef, models.CallbackNotification{Token: t.Token}); err != nil {
		s.logger.Error("notifying merchant of forced cancellation", slog.String("token", t.Token), slog.Any("err", err))
	}
}

// AccessChallenge reports whether the confirm/cancel choice may be shown for
// token. It never changes state.
func (s *Service) AccessChallenge(token string) (Challenge, error) {
	record, session, err := s.store.Get(token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Challenge{}, models.NewError(models.CodeNoActiveTransaction, "no transaction for token").WithToken(token)
		}
		return Challenge{}, err
	}

	if session == nil && record.Status != models.TransactionStatusPending {
		return Challenge{}, models.NewError(models.CodeNoActiveTransaction, "transaction is %s", record.Status).WithToken(token)
	}
	if session == nil || !session.Authenticated {
		return Challenge{Token: token, LoginRequired: true}, nil
	}
	if record.Status != models.TransactionStatusPending || session.LoginAttempts >= s.attemptLimit() {
		return Challenge{}, models.NewError(models.CodeInvalidOrExpired, "challenge no longer valid").WithToken(token)
	}

	return Challenge{
		Token:    token,
		Status:   record.Status,
		Amount:   record.Amount.StringFixed(2),
		Currency: record.Currency,
	}, nil
}

// Decide notifies the merchant of the cardholder's choice and commits the
// terminal status only once the merchant acknowledged it. On a failed
// callback nothing changes, so the same decision can be submitted again.
func (s *Service) Decide(ctx context.Context, token string, action models.ChallengeAction) (models.TransactionStatus, error) {
	if action != models.ActionConfirm && action != models.ActionCancel {
		return "", models.NewError(models.CodeMissingField, "action must be confirm or cancel").WithToken(token)
	}
	isSuccessful := action == models.ActionConfirm
	limit := s.attemptLimit()

	var committed *Transition
	err := s.store.Update(token, func(e *Entry) error {
		if e.Session == nil || !e.Session.Authenticated ||
			e.Record.Status != models.TransactionStatusPending ||
			e.Session.LoginAttempts >= limit {
			return models.NewError(models.CodeInvalidOrExpired, "challenge no longer valid")
		}

		note := models.CallbackNotification{Token: token, IsSuccessful: isSuccessful}
		if err := s.notify(ctx, e.Record.MerchantCallbackRef, note); err != nil {
			return err
		}

		from := e.Record.Status
		e.Record.Status = models.TransactionStatusCancelled
		if isSuccessful {
			e.Record.Status = models.TransactionStatusConfirmed
		}
		e.Record.UpdatedAt = s.now()
		e.Session = nil

		t := NewTransition(*e.Record, from, string(action), e.CardNumber, s.hashKey)
		committed = &t
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		err = models.NewError(models.CodeInvalidOrExpired, "no transaction for token")
	}
	if err != nil {
		metrics.Decisions.WithLabelValues(string(models.CodeOf(err))).Inc()
		s.logger.Info("decision not committed", slog.String("token", token), slog.Any("err", err))
		return "", withToken(err, token)
	}

	metrics.Decisions.WithLabelValues(string(committed.To)).Inc()
	s.journalAppend(ctx, *committed)
	s.logger.Info("transaction committed", slog.String("token", token), slog.String("status", string(committed.To)))
	return committed.To, nil
}

// GetTransaction returns a copy of the record of token.
func (s *Service) GetTransaction(token string) (models.TransactionRecord, error) {
	record, _, err := s.store.Get(token)
	return record, err
}

// Session returns a copy of the cardholder session of token, nil if none.
func (s *Service) Session(token string) (*models.CardholderSession, error) {
	_, session, err := s.store.Get(token)
	return session, err
}

func (s *Service) notify(ctx context.Context, merchantRef string, note models.CallbackNotification) error {
	if s.config.CallbackTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.CallbackTimeout)
		defer cancel()
	}

	err := s.notifier.Notify(ctx, merchantRef, note)
	if err != nil {
		metrics.Callbacks.WithLabelValues("failed").Inc()
		if models.CodeOf(err) != models.CodeCallbackFailed {
			err = models.WrapError(models.CodeCallbackFailed, err, "notifying merchant")
		}
		return err
	}
	metrics.Callbacks.WithLabelValues("acknowledged").Inc()
	return nil
}

func (s *Service) journalAppend(ctx context.Context, t Transition) {
	if err := s.journal.Append(ctx, t); err != nil {
		s.logger.Error("appending to journal", slog.String("token", t.Token), slog.Any("err", err))
	}
}

func (s *Service) Ready(ctx context.Context) error {
	return s.journal.Ping(ctx)
}

func withToken(err error, token string) error {
	var pe *models.Error
	if errors.As(err, &pe) && pe.Token == "" {
		return pe.WithToken(token)
	}
	return err
}
