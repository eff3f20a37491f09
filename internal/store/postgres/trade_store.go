package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/updownlabs/updownbot/internal/domain"
)

// TradeStore implements domain.TradeStore.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a store backed by the given pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Insert persists one executed fill.
func (s *TradeStore) Insert(ctx context.Context, trade domain.TradeRecord) error {
	const query = `
		INSERT INTO trades (id, intent_id, strategy, market_slug, outcome,
			quantity, avg_price, cost, simulated, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.pool.Exec(ctx, query,
		trade.ID, trade.IntentID, string(trade.Strategy), trade.MarketSlug,
		string(trade.Outcome), trade.Quantity, trade.AvgPrice, trade.Cost,
		trade.Simulated, trade.ExecutedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", trade.ID, err)
	}
	return nil
}

// ListSince returns trades executed at or after the given time, oldest first.
func (s *TradeStore) ListSince(ctx context.Context, since time.Time) ([]domain.TradeRecord, error) {
	const query = `
		SELECT id, intent_id, strategy, market_slug, outcome,
			quantity, avg_price, cost, simulated, executed_at
		FROM trades WHERE executed_at >= $1 ORDER BY executed_at`

	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.TradeRecord
	for rows.Next() {
		var t domain.TradeRecord
		var strategy, outcome string
		if err := rows.Scan(&t.ID, &t.IntentID, &strategy, &t.MarketSlug, &outcome,
			&t.Quantity, &t.AvgPrice, &t.Cost, &t.Simulated, &t.ExecutedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		t.Strategy = domain.StrategyTag(strategy)
		t.Outcome = domain.Outcome(outcome)
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate trades: %w", err)
	}
	return trades, nil
}
