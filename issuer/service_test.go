package issuer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/alovak/cardflow-3ds/internal/logger"
	"github.com/alovak/cardflow-3ds/internal/models"
)

const demoPassword = "password"

type fakeNotifier struct {
	mu    sync.Mutex
	fail  bool
	calls []models.CallbackNotification
	refs  []string
}

func (n *fakeNotifier) Notify(_ context.Context, ref string, note models.CallbackNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, note)
	n.refs = append(n.refs, ref)
	if n.fail {
		return models.NewError(models.CodeCallbackFailed, "HTTP 503")
	}
	return nil
}

func (n *fakeNotifier) setFail(v bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fail = v
}

func (n *fakeNotifier) Calls() []models.CallbackNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.CallbackNotification(nil), n.calls...)
}

type fixture struct {
	svc      *Service
	notifier *fakeNotifier
	journal  *MemoryJournal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	config := DefaultConfig()
	config.ChallengeBaseURL = "http://acs.test"

	hash, err := bcrypt.GenerateFromPassword([]byte(demoPassword), bcrypt.MinCost)
	require.NoError(t, err)
	demo := config.DemoCardholder
	demo.PasswordHash = string(hash)

	notifier := &fakeNotifier{}
	journal := NewMemoryJournal()
	svc := NewService(logger.Discard(), NewStore(), NewStaticDirectory(demo), notifier, journal, config)

	return &fixture{svc: svc, notifier: notifier, journal: journal}
}

func demoRequest(token string) models.AuthorizationRequest {
	return models.AuthorizationRequest{
		Token:               token,
		CardNumber:          "1234123412341234",
		ExpiryMonth:         "12",
		ExpiryYear:          "2025",
		CVV:                 "123",
		CardholderName:      "Joe",
		Amount:              decimal.RequireFromString("99.99"),
		Currency:            "USD",
		MerchantCallbackRef: "merchantXYZ",
	}
}

func (f *fixture) authorize(t *testing.T, token string) {
	t.Helper()
	ref, err := f.svc.Authorize(context.Background(), demoRequest(token))
	require.NoError(t, err)
	require.Equal(t, models.ChallengeReference("http://acs.test/challenge?token="+token), ref)
}

func (f *fixture) login(t *testing.T, token string) {
	t.Helper()
	res, err := f.svc.Login(context.Background(), token, "Joe", demoPassword, "1234123412341234")
	require.NoError(t, err)
	require.True(t, res.Authenticated)
}

func TestScenarioA_ConfirmWithAcknowledgedCallback(t *testing.T) {
	f := newFixture(t)
	f.authorize(t, "tokA")

	record, err := f.svc.GetTransaction("tokA")
	require.NoError(t, err)
	require.Equal(t, models.TransactionStatusPending, record.Status)

	f.login(t, "tokA")

	status, err := f.svc.Decide(context.Background(), "tokA", models.ActionConfirm)
	require.NoError(t, err)
	require.Equal(t, models.TransactionStatusConfirmed, status)

	record, err = f.svc.GetTransaction("tokA")
	require.NoError(t, err)
	require.Equal(t, models.TransactionStatusConfirmed, record.Status)

	session, err := f.svc.Session("tokA")
	require.NoError(t, err)
	require.Nil(t, session)

	require.Equal(t, []models.CallbackNotification{{Token: "tokA", IsSuccessful: true}}, f.notifier.Calls())
	require.Equal(t, "merchantXYZ", f.notifier.refs[0])

	entries := f.journal.Entries("tokA")
	require.Len(t, entries, 2)
	require.Equal(t, models.TransactionStatusPending, entries[0].To)
	require.Equal(t, models.TransactionStatusConfirmed, entries[1].To)
	require.Equal(t, "1234", entries[1].Last4)
	require.NotEmpty(t, entries[1].PANHash)
}

func TestScenarioB_UnknownCard(t *testing.T) {
	f := newFixture(t)

	req := demoRequest("tokB")
	req.CardNumber = "9999999999999999"

	_, err := f.svc.Authorize(context.Background(), req)
	require.True(t, errors.Is(err, models.ErrUnknownCard))

	var pe *models.Error
	require.True(t, errors.As(err, &pe))
	require.Equal(t, "tokB", pe.Token)

	_, err = f.svc.GetTransaction("tokB")
	require.True(t, errors.Is(err, ErrNotFound))

	_, err = f.svc.Login(context.Background(), "tokB", "Joe", demoPassword, "9999999999999999")
	require.True(t, errors.Is(err, models.ErrNoActiveTransaction))
	_, err = f.svc.Session("tokB")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestAuthorize_AnyFieldMismatchIsUnknownCard(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*models.AuthorizationRequest)
	}{
		{"cvv", func(r *models.AuthorizationRequest) { r.CVV = "124" }},
		{"month", func(r *models.AuthorizationRequest) { r.ExpiryMonth = "11" }},
		{"year", func(r *models.AuthorizationRequest) { r.ExpiryYear = "2026" }},
		{"name", func(r *models.AuthorizationRequest) { r.CardholderName = "joe" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := demoRequest("tok")
			tt.modify(&req)

			_, err := f.svc.Authorize(context.Background(), req)
			require.True(t, errors.Is(err, models.ErrUnknownCard))
		})
	}
}

func TestAuthorize_DuplicateToken(t *testing.T) {
	f := newFixture(t)
	f.authorize(t, "dup")

	_, err := f.svc.Authorize(context.Background(), demoRequest("dup"))
	require.True(t, errors.Is(err, models.ErrDuplicateToken))
}

func TestAuthorize_MissingToken(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Authorize(context.Background(), demoRequest(""))
	require.True(t, errors.Is(err, models.ErrMissingField))
}

func TestScenarioC_TooManyAttempts(t *testing.T) {
	f := newFixture(t)
	f.authorize(t, "tokC")
	ctx := context.Background()

	res, err := f.svc.Login(ctx, "tokC", "Joe", "wrong", "1234123412341234")
	require.NoError(t, err)
	require.False(t, res.Authenticated)
	require.Equal(t, 2, res.RemainingAttempts)

	res, err = f.svc.Login(ctx, "tokC", "Joe", "wrong", "1234123412341234")
	require.NoError(t, err)
	require.Equal(t, 1, res.RemainingAttempts)

	_, err = f.svc.Login(ctx, "tokC", "Joe", "wrong", "1234123412341234")
	require.True(t, errors.Is(err, models.ErrTooManyAttempts))

	record, err := f.svc.GetTransaction("tokC")
	require.NoError(t, err)
	require.Equal(t, models.TransactionStatusCancelled, record.Status)

	session, err := f.svc.Session("tokC")
	require.NoError(t, err)
	require.Nil(t, session)

	_, err = f.svc.AccessChallenge("tokC")
	require.True(t, errors.Is(err, models.ErrNoActiveTransaction))

	_, err = f.svc.Login(ctx, "tokC", "Joe", demoPassword, "1234123412341234")
	require.True(t, errors.Is(err, models.ErrNoActiveTransaction))

	// the merchant hears about the forced cancellation once
	require.Equal(t, []models.CallbackNotification{{Token: "tokC", IsSuccessful: false}}, f.notifier.Calls())
}

func TestForcedCancellation_StandsWhenCallbackFails(t *testing.T) {
	f := newFixture(t)
	f.authorize(t, "tok")
	f.notifier.setFail(true)

	for i := 0; i < 2; i++ {
		_, err := f.svc.Login(context.Background(), "tok", "Joe", "wrong", "1234123412341234")
		require.NoError(t, err)
	}
	_, err := f.svc.Login(context.Background(), "tok", "Joe", "wrong", "1234123412341234")
	require.True(t, errors.Is(err, models.ErrTooManyAttempts))

	record, err := f.svc.GetTransaction("tok")
	require.NoError(t, err)
	require.Equal(t, models.TransactionStatusCancelled, record.Status)
}

func TestLogin_AttemptLimitCheckedBeforeCredentials(t *testing.T) {
	f := newFixture(t)
	f.authorize(t, "tok")

	// a session already at the limit, as left by a larger configured limit
	require.NoError(t, f.svc.store.Update("tok", func(e *Entry) error {
		e.Session = &models.CardholderSession{Token: "tok", LoginAttempts: 3}
		return nil
	}))

	_, err := f.svc.Login(context.Background(), "tok", "Joe", demoPassword, "1234123412341234")
	require.True(t, errors.Is(err, models.ErrTooManyAttempts))

	record, err := f.svc.GetTransaction("tok")
	require.NoError(t, err)
	require.Equal(t, models.TransactionStatusCancelled, record.Status)
}

func TestLogin_SuccessResetsAttempts(t *testing.T) {
	f := newFixture(t)
	f.authorize(t, "tok")

	for i := 0; i < 2; i++ {
		_, err := f.svc.Login(context.Background(), "tok", "Joe", "wrong", "1234123412341234")
		require.NoError(t, err)
	}
	f.login(t, "tok")

	session, err := f.svc.Session("tok")
	require.NoError(t, err)
	require.True(t, session.Authenticated)
	require.Equal(t, 0, session.LoginAttempts)
}

func TestLogin_EachCredentialCounts(t *testing.T) {
	tests := []struct {
		name, holder, password, card string
	}{
		{"name", "Jo", demoPassword, "1234123412341234"},
		{"password", "Joe", "Password", "1234123412341234"},
		{"card", "Joe", demoPassword, "1234123412341235"},
		{"empty card", "Joe", demoPassword, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.authorize(t, "tok")

			res, err := f.svc.Login(context.Background(), "tok", tt.holder, tt.password, tt.card)
			require.NoError(t, err)
			require.False(t, res.Authenticated)
			require.Equal(t, 2, res.RemainingAttempts)
		})
	}
}

func TestAccessChallenge(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AccessChallenge("nope")
	require.True(t, errors.Is(err, models.ErrNoActiveTransaction))

	f.authorize(t, "tok")

	ch, err := f.svc.AccessChallenge("tok")
	require.NoError(t, err)
	require.True(t, ch.LoginRequired)

	_, err = f.svc.Login(context.Background(), "tok", "Joe", "wrong", "1234123412341234")
	require.NoError(t, err)
	ch, err = f.svc.AccessChallenge("tok")
	require.NoError(t, err)
	require.True(t, ch.LoginRequired)

	f.login(t, "tok")

	// repeated access never mutates state
	for i := 0; i < 3; i++ {
		ch, err = f.svc.AccessChallenge("tok")
		require.NoError(t, err)
		require.False(t, ch.LoginRequired)
		require.Equal(t, "99.99", ch.Amount)
	}
	session, err := f.svc.Session("tok")
	require.NoError(t, err)
	require.Equal(t, models.CardholderSession{Token: "tok", Authenticated: true}, *session)
	record, err := f.svc.GetTransaction("tok")
	require.NoError(t, err)
	require.Equal(t, models.TransactionStatusPending, record.Status)

	_, err = f.svc.Decide(context.Background(), "tok", models.ActionConfirm)
	require.NoError(t, err)

	_, err = f.svc.AccessChallenge("tok")
	require.True(t, errors.Is(err, models.ErrNoActiveTransaction))
}

func TestAccessChallenge_AuthenticatedButRecordNotPending(t *testing.T) {
	f := newFixture(t)
	f.authorize(t, "tok")
	f.login(t, "tok")

	require.NoError(t, f.svc.store.Update("tok", func(e *Entry) error {
		e.Record.Status = models.TransactionStatusCancelled
		return nil
	}))

	_, err := f.svc.AccessChallenge("tok")
	require.True(t, errors.Is(err, models.ErrInvalidOrExpired))
}

func TestDecide_BeforeLogin(t *testing.T) {
	f := newFixture(t)
	f.authorize(t, "tok")

	_, err := f.svc.Decide(context.Background(), "tok", models.ActionConfirm)
	require.True(t, errors.Is(err, models.ErrInvalidOrExpired))
	require.Empty(t, f.notifier.Calls())

	_, err = f.svc.Decide(context.Background(), "unknown", models.ActionConfirm)
	require.True(t, errors.Is(err, models.ErrInvalidOrExpired))
}

func TestDecide_CallbackFailureKeepsStateForRetry(t *testing.T) {
	f := newFixture(t)
	f.authorize(t, "tok")
	f.login(t, "tok")

	f.notifier.setFail(true)
	_, err := f.svc.Decide(context.Background(), "tok", models.ActionConfirm)
	require.True(t, errors.Is(err, models.ErrCallbackFailed))

	record, err := f.svc.GetTransaction("tok")
	require.NoError(t, err)
	require.Equal(t, models.TransactionStatusPending, record.Status)
	session, err := f.svc.Session("tok")
	require.NoError(t, err)
	require.NotNil(t, session)
	require.True(t, session.Authenticated)

	f.notifier.setFail(false)
	status, err := f.svc.Decide(context.Background(), "tok", models.ActionConfirm)
	require.NoError(t, err)
	require.Equal(t, models.TransactionStatusConfirmed, status)
	require.Len(t, f.notifier.Calls(), 2)
}

func TestScenarioD_Cancel(t *testing.T) {
	f := newFixture(t)
	f.authorize(t, "tokD")
	f.login(t, "tokD")

	status, err := f.svc.Decide(context.Background(), "tokD", models.ActionCancel)
	require.NoError(t, err)
	require.Equal(t, models.TransactionStatusCancelled, status)

	record, err := f.svc.GetTransaction("tokD")
	require.NoError(t, err)
	require.Equal(t, models.TransactionStatusCancelled, record.Status)
	require.Equal(t, []models.CallbackNotification{{Token: "tokD", IsSuccessful: false}}, f.notifier.Calls())
}

func TestDecide_TerminalIsFinal(t *testing.T) {
	f := newFixture(t)
	f.authorize(t, "tok")
	f.login(t, "tok")

	_, err := f.svc.Decide(context.Background(), "tok", models.ActionCancel)
	require.NoError(t, err)

	_, err = f.svc.Decide(context.Background(), "tok", models.ActionConfirm)
	require.True(t, errors.Is(err, models.ErrInvalidOrExpired))

	_, err = f.svc.Login(context.Background(), "tok", "Joe", demoPassword, "1234123412341234")
	require.True(t, errors.Is(err, models.ErrNoActiveTransaction))
}

func TestDecide_UnknownAction(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Decide(context.Background(), "tok", "maybe")
	require.True(t, errors.Is(err, models.ErrMissingField))
}

func TestDecide_ConcurrentConfirmCommitsOnce(t *testing.T) {
	f := newFixture(t)
	f.authorize(t, "tok")
	f.login(t, "tok")

	var wg sync.WaitGroup
	results := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Decide(context.Background(), "tok", models.ActionConfirm)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok int
	for err := range results {
		if err == nil {
			ok++
			continue
		}
		require.True(t, errors.Is(err, models.ErrInvalidOrExpired))
	}
	require.Equal(t, 1, ok)
	require.Len(t, f.notifier.Calls(), 1)
}

func TestLogin_ConcurrentFailuresNeverLoseAttempts(t *testing.T) {
	f := newFixture(t)
	f.authorize(t, "tok")

	var wg sync.WaitGroup
	var mu sync.Mutex
	var tooMany, failures int
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Login(context.Background(), "tok", "Joe", "wrong", "1234123412341234")
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, models.ErrTooManyAttempts) {
				tooMany++
			} else if err == nil {
				failures++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, tooMany)
	require.Equal(t, 2, failures)

	record, err := f.svc.GetTransaction("tok")
	require.NoError(t, err)
	require.Equal(t, models.TransactionStatusCancelled, record.Status)
}

func TestDecide_MerchantNeverAnswers(t *testing.T) {
	config := DefaultConfig()
	config.ChallengeBaseURL = "http://acs.test"
	config.CallbackURL = hangingMerchant(t)
	config.CallbackTimeout = 200 * time.Millisecond

	hash, err := bcrypt.GenerateFromPassword([]byte(demoPassword), bcrypt.MinCost)
	require.NoError(t, err)
	demo := config.DemoCardholder
	demo.PasswordHash = string(hash)

	svc := NewService(logger.Discard(), NewStore(), NewStaticDirectory(demo), NewHTTPNotifier(config, nil), nil, config)
	f := &fixture{svc: svc}
	f.authorize(t, "tokHang")
	f.login(t, "tokHang")

	start := time.Now()
	_, err = svc.Decide(context.Background(), "tokHang", models.ActionConfirm)
	require.True(t, errors.Is(err, models.ErrCallbackFailed), "got %v", err)
	require.Less(t, time.Since(start), 2*time.Second)

	record, err := svc.GetTransaction("tokHang")
	require.NoError(t, err)
	require.Equal(t, models.TransactionStatusPending, record.Status)

	session, err := svc.Session("tokHang")
	require.NoError(t, err)
	require.NotNil(t, session)
	require.True(t, session.Authenticated)
}
