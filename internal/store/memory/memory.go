// Package memory implements the store interfaces in process memory. It backs
// dry-run sessions that have no database configured; nothing survives a
// restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/updownlabs/updownbot/internal/domain"
)

// RiskStateStore keeps the risk ledger in memory.
type RiskStateStore struct {
	mu    sync.Mutex
	state domain.RiskState
	saved bool
}

// NewRiskStateStore creates an empty in-memory ledger store.
func NewRiskStateStore() *RiskStateStore {
	return &RiskStateStore{}
}

// Save implements domain.RiskStateStore.
func (s *RiskStateStore) Save(_ context.Context, state domain.RiskState) error {
	s.mu.Lock()
	s.state = state
	s.saved = true
	s.mu.Unlock()
	return nil
}

// Load implements domain.RiskStateStore.
func (s *RiskStateStore) Load(context.Context) (domain.RiskState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.saved {
		return domain.RiskState{}, nil
	}
	return s.state, nil
}

// AuditEntry is one in-memory audit record.
type AuditEntry struct {
	Event    string
	Detail   map[string]any
	LoggedAt time.Time
}

// AuditStore keeps the audit trail in memory.
type AuditStore struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// NewAuditStore creates an empty in-memory audit store.
func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

// Append implements domain.AuditStore.
func (s *AuditStore) Append(_ context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	s.entries = append(s.entries, AuditEntry{
		Event:    event,
		Detail:   detail,
		LoggedAt: time.Now().UTC(),
	})
	s.mu.Unlock()
	return nil
}

// Entries returns a copy of all recorded entries.
func (s *AuditStore) Entries() []AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// TradeStore keeps executed trades in memory.
type TradeStore struct {
	mu     sync.Mutex
	trades []domain.TradeRecord
}

// NewTradeStore creates an empty in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{}
}

// Insert implements domain.TradeStore.
func (s *TradeStore) Insert(_ context.Context, trade domain.TradeRecord) error {
	s.mu.Lock()
	s.trades = append(s.trades, trade)
	s.mu.Unlock()
	return nil
}

// ListSince implements domain.TradeStore.
func (s *TradeStore) ListSince(_ context.Context, since time.Time) ([]domain.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TradeRecord
	for _, t := range s.trades {
		if !t.ExecutedAt.Before(since) {
			out = append(out, t)
		}
	}
	return out, nil
}
