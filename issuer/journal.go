package issuer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/alovak/cardflow-3ds/internal/cardgen"
	"github.com/alovak/cardflow-3ds/internal/models"
)

// Transition is one audit entry of a record changing status. From is empty
// for the creation of the record.
type Transition struct {
	ID       string
	Token    string
	From     models.TransactionStatus
	To       models.TransactionStatus
	Reason   string
	PANHash  []byte
	Last4    string
	BIN      string
	Amount   decimal.Decimal
	Currency string
	At       time.Time
}

// NewTransition fills the card fingerprint so the clear PAN never reaches
// the journal.
func NewTransition(record models.TransactionRecord, from models.TransactionStatus, reason, pan string, hashKey []byte) Transition {
	pan = cardgen.NormalizePAN(pan)
	bin := pan
	if len(bin) > 6 {
		bin = bin[:6]
	}
	return Transition{
		ID:       uuid.New().String(),
		Token:    record.Token,
		From:     from,
		To:       record.Status,
		Reason:   reason,
		PANHash:  cardgen.HashPANHMAC(pan, hashKey),
		Last4:    cardgen.LastN(pan, 4),
		BIN:      bin,
		Amount:   record.Amount,
		Currency: record.Currency,
		At:       record.UpdatedAt,
	}
}

// Journal is an append-only audit trail of record transitions. It is never
// read to rebuild state.
type Journal interface {
	Append(ctx context.Context, t Transition) error
	Ping(ctx context.Context) error
}

type MemoryJournal struct {
	mu      sync.RWMutex
	entries []Transition
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

func (j *MemoryJournal) Append(_ context.Context, t Transition) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, e := range j.entries {
		if e.ID == t.ID {
			return ErrConflict
		}
	}
	j.entries = append(j.entries, t)
	return nil
}

func (j *MemoryJournal) Ping(context.Context) error { return nil }

// Entries returns the transitions of token in append order.
func (j *MemoryJournal) Entries(token string) []Transition {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var out []Transition
	for _, e := range j.entries {
		if e.Token == token {
			out = append(out, e)
		}
	}
	return out
}

const journalSchema = `
CREATE SCHEMA IF NOT EXISTS issuer;
CREATE TABLE IF NOT EXISTS issuer.transitions (
    transition_id uuid PRIMARY KEY,
    token         text        NOT NULL,
    from_status   text        NOT NULL DEFAULT '',
    to_status     text        NOT NULL,
    reason        text        NOT NULL DEFAULT '',
    pan_hash      bytea       NOT NULL,
    last4         text        NOT NULL,
    bin           text        NOT NULL,
    amount        numeric(18,2) NOT NULL,
    currency      text        NOT NULL DEFAULT '',
    created_at    timestamptz NOT NULL,
    UNIQUE (token, to_status)
);`

// PGJournal writes transitions to Postgres.
type PGJournal struct {
	db *sql.DB
}

// NewPGJournal constructs a db-backed journal.
func NewPGJournal(db *sql.DB) *PGJournal {
	return &PGJournal{db: db}
}

// OpenPGJournal opens dsn, checks the connection and creates the table.
func OpenPGJournal(ctx context.Context, dsn string) (*PGJournal, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(10)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	j := NewPGJournal(db)
	if err := j.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *PGJournal) Migrate(ctx context.Context) error {
	if _, err := j.db.ExecContext(ctx, journalSchema); err != nil {
		return fmt.Errorf("creating journal schema: %w", err)
	}
	return nil
}

// Append inserts t. A second terminal transition for the same token violates
// the unique constraint and is reported as ErrConflict.
func (j *PGJournal) Append(ctx context.Context, t Transition) error {
	_, err := j.db.ExecContext(ctx, `
        INSERT INTO issuer.transitions(transition_id, token, from_status, to_status, reason, pan_hash, last4, bin, amount, currency, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
    `, t.ID, t.Token, string(t.From), string(t.To), t.Reason, t.PANHash, t.Last4, t.BIN, t.Amount, t.Currency, t.At)
	if isUniqueViolation(err) {
		return fmt.Errorf("transition %s for %s: %w", t.To, t.Token, ErrConflict)
	}
	return err
}

// Entries returns the transitions of token in time order.
func (j *PGJournal) Entries(ctx context.Context, token string) ([]Transition, error) {
	rows, err := j.db.QueryContext(ctx, `
        SELECT transition_id, token, from_status, to_status, reason, pan_hash, last4, bin, amount, currency, created_at
          FROM issuer.transitions WHERE token=$1 ORDER BY created_at, to_status DESC
    `, token)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var t Transition
		var from, to string
		if err := rows.Scan(&t.ID, &t.Token, &from, &to, &t.Reason, &t.PANHash, &t.Last4, &t.BIN, &t.Amount, &t.Currency, &t.At); err != nil {
			return nil, err
		}
		t.From = models.TransactionStatus(from)
		t.To = models.TransactionStatus(to)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Ping returns DB readiness
func (j *PGJournal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

func (j *PGJournal) Close() error {
	return j.db.Close()
}

func isUniqueViolation(err error) bool {
	var pe *pq.Error
	if errors.As(err, &pe) && pe.Code == "23505" {
		return true
	}
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) && pgerr.Code == "23505" {
		return true
	}
	return false
}
