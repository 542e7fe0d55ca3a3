package issuer

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alovak/cardflow-3ds/internal/models"
	"github.com/stretchr/testify/require"
)

func pendingRecord(token string) models.TransactionRecord {
	now := time.Now()
	return models.TransactionRecord{
		Token:     token,
		Status:    models.TransactionStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestStore_CreateRejectsKnownToken(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Create(pendingRecord("t1"), "1234123412341234"))

	err := s.Create(pendingRecord("t1"), "1234123412341234")
	require.True(t, errors.Is(err, ErrConflict))
	require.Equal(t, 1, s.Len())
}

func TestStore_UpdateUnknownToken(t *testing.T) {
	s := NewStore()
	err := s.Update("missing", func(e *Entry) error { return nil })
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestStore_GetReturnsCopies(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Create(pendingRecord("t1"), ""))
	require.NoError(t, s.Update("t1", func(e *Entry) error {
		e.Session = &models.CardholderSession{Token: "t1", LoginAttempts: 1}
		return nil
	}))

	record, session, err := s.Get("t1")
	require.NoError(t, err)
	record.Status = models.TransactionStatusConfirmed
	session.LoginAttempts = 99

	record, session, err = s.Get("t1")
	require.NoError(t, err)
	require.Equal(t, models.TransactionStatusPending, record.Status)
	require.Equal(t, 1, session.LoginAttempts)
}

func TestStore_UpdateIsAtomicPerToken(t *testing.T) {
	s := NewStore()
	tokens := []string{"a", "b", "c"}
	for _, tok := range tokens {
		require.NoError(t, s.Create(pendingRecord(tok), ""))
		require.NoError(t, s.Update(tok, func(e *Entry) error {
			e.Session = &models.CardholderSession{Token: tok}
			return nil
		}))
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		for _, tok := range tokens {
			wg.Add(1)
			go func(tok string) {
				defer wg.Done()
				_ = s.Update(tok, func(e *Entry) error {
					// read, yield, write: lost updates show up without the slot lock
					n := e.Session.LoginAttempts
					time.Sleep(time.Microsecond)
					e.Session.LoginAttempts = n + 1
					return nil
				})
			}(tok)
		}
	}
	wg.Wait()

	for _, tok := range tokens {
		_, session, err := s.Get(tok)
		require.NoError(t, err)
		require.Equal(t, 50, session.LoginAttempts, fmt.Sprintf("token %s", tok))
	}
}
