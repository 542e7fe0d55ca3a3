package issuer

import (
	"fmt"
	"sync"

	"github.com/alovak/cardflow-3ds/internal/models"
)

var (
	ErrNotFound = fmt.Errorf("not found")
	ErrConflict = fmt.Errorf("conflict")
)

// Entry is everything the issuer keeps for one token. It is only touched
// while the token's slot lock is held.
type Entry struct {
	Record  *models.TransactionRecord
	Session *models.CardholderSession

	// CardNumber is the card the transaction was authorized for. The
	// cardholder must present the same card at login.
	CardNumber string
}

type slot struct {
	mu    sync.Mutex
	entry Entry
}

// Store keeps one slot per token. The map is guarded by a short-held store
// lock; every read-modify-write on a token runs under that token's slot
// lock, so distinct tokens never contend.
type Store struct {
	mu    sync.RWMutex
	slots map[string]*slot
}

func NewStore() *Store {
	return &Store{slots: make(map[string]*slot)}
}

// Create registers a new record. A token that was ever seen, whatever its
// status, is a conflict.
func (s *Store) Create(record models.TransactionRecord, cardNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.slots[record.Token]; ok {
		return fmt.Errorf("token %s: %w", record.Token, ErrConflict)
	}
	s.slots[record.Token] = &slot{entry: Entry{Record: &record, CardNumber: cardNumber}}
	return nil
}

func (s *Store) lookup(token string) (*slot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.slots[token]
	return sl, ok
}

// Update runs fn with the token's slot locked. Changes fn makes to the
// entry are kept even when it returns an error.
func (s *Store) Update(token string, fn func(e *Entry) error) error {
	sl, ok := s.lookup(token)
	if !ok {
		return ErrNotFound
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	return fn(&sl.entry)
}

// Get returns copies of the record and session of token; the session is nil
// when none exists.
func (s *Store) Get(token string) (models.TransactionRecord, *models.CardholderSession, error) {
	sl, ok := s.lookup(token)
	if !ok {
		return models.TransactionRecord{}, nil, ErrNotFound
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	record := *sl.entry.Record
	var session *models.CardholderSession
	if sl.entry.Session != nil {
		c := *sl.entry.Session
		session = &c
	}
	return record, session, nil
}

// Len is the number of tokens the store has seen.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots)
}
