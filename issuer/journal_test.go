package issuer

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/alovak/cardflow-3ds/internal/models"
)

func TestNewTransition_NeverKeepsClearPAN(t *testing.T) {
	record := models.TransactionRecord{
		Token:     "tok",
		Status:    models.TransactionStatusConfirmed,
		UpdatedAt: time.Now(),
		Amount:    decimal.RequireFromString("10.50"),
	}

	tr := NewTransition(record, models.TransactionStatusPending, "confirm", "1234123412341234", []byte("k"))
	require.Equal(t, "123412", tr.BIN)
	require.Equal(t, "1234", tr.Last4)
	require.Len(t, tr.PANHash, 32)
	require.NotContains(t, string(tr.PANHash), "1234123412341234")
}

func TestMemoryJournal(t *testing.T) {
	j := NewMemoryJournal()
	tr := Transition{ID: uuid.New().String(), Token: "tok", To: models.TransactionStatusPending}

	require.NoError(t, j.Append(context.Background(), tr))
	require.True(t, errors.Is(j.Append(context.Background(), tr), ErrConflict))
	require.Len(t, j.Entries("tok"), 1)
	require.Empty(t, j.Entries("other"))
}

// TestPGJournal_Transitions verifies that transitions are stored with the
// card fingerprint and that a token commits at most one terminal status.
// Skips unless DB_DSN is provided and REPO_BACKEND=pg.
func TestPGJournal_Transitions(t *testing.T) {
	if os.Getenv("REPO_BACKEND") != "pg" {
		t.Skip("REPO_BACKEND != pg; skipping DB integration test")
	}
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		t.Skip("DB_DSN not set; skipping DB integration test")
	}

	ctx := context.Background()
	j, err := OpenPGJournal(ctx, dsn)
	require.NoError(t, err)
	defer j.Close()

	token := "MERCH_TOK_" + uuid.New().String()
	now := time.Now().UTC().Truncate(time.Millisecond)
	record := models.TransactionRecord{
		Token:     token,
		Status:    models.TransactionStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		Amount:    decimal.RequireFromString("99.99"),
		Currency:  "USD",
	}
	key := []byte("test-pan-hash-key")

	require.NoError(t, j.Append(ctx, NewTransition(record, "", "authorized", "1234123412341234", key)))

	record.Status = models.TransactionStatusConfirmed
	record.UpdatedAt = now.Add(time.Second)
	require.NoError(t, j.Append(ctx, NewTransition(record, models.TransactionStatusPending, "confirm", "1234123412341234", key)))

	err = j.Append(ctx, NewTransition(record, models.TransactionStatusPending, "confirm", "1234123412341234", key))
	require.True(t, errors.Is(err, ErrConflict))

	entries, err := j.Entries(ctx, token)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, models.TransactionStatusConfirmed, entries[1].To)
	require.Equal(t, "1234", entries[1].Last4)
	require.True(t, entries[1].Amount.Equal(record.Amount))
}
