package domain

import (
	"context"
	"time"
)

// RiskStateStore persists the risk ledger for crash recovery. Save is a
// write-through after every mutation; Load returns the zero state when
// nothing has been written yet.
type RiskStateStore interface {
	Save(ctx context.Context, state RiskState) error
	Load(ctx context.Context) (RiskState, error)
}

// AuditStore is an append-only transaction audit trail. Entries are never
// updated or deleted.
type AuditStore interface {
	Append(ctx context.Context, event string, detail map[string]any) error
}

// TradeRecord is one executed fill as persisted for accounting.
type TradeRecord struct {
	ID         string
	IntentID   string
	Strategy   StrategyTag
	MarketSlug string
	Outcome    Outcome
	Quantity   float64
	AvgPrice   float64
	Cost       float64
	Simulated  bool
	ExecutedAt time.Time
}

// TradeStore persists executed fills.
type TradeStore interface {
	Insert(ctx context.Context, trade TradeRecord) error
	ListSince(ctx context.Context, since time.Time) ([]TradeRecord, error)
}

// TickPublisher mirrors the latest reference tick to an external cache for
// operational visibility. Implementations must never block the feed.
type TickPublisher interface {
	PublishTick(ctx context.Context, asset string, tick ReferenceTick) error
}

// EventBus publishes trade, settlement, and risk events for out-of-process
// consumers.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}
