package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/updownlabs/updownbot/internal/domain"
)

// RiskStateStore implements domain.RiskStateStore with a single-row upsert.
type RiskStateStore struct {
	pool *pgxpool.Pool
}

// NewRiskStateStore creates a store backed by the given pool.
func NewRiskStateStore(pool *pgxpool.Pool) *RiskStateStore {
	return &RiskStateStore{pool: pool}
}

// Save writes the ledger through to the single risk_state row.
func (s *RiskStateStore) Save(ctx context.Context, state domain.RiskState) error {
	const query = `
		INSERT INTO risk_state (id, day, daily_realized_loss, daily_realized_pnl,
			total_exposure, last_trade_at, halted, halt_reason, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			day = EXCLUDED.day,
			daily_realized_loss = EXCLUDED.daily_realized_loss,
			daily_realized_pnl = EXCLUDED.daily_realized_pnl,
			total_exposure = EXCLUDED.total_exposure,
			last_trade_at = EXCLUDED.last_trade_at,
			halted = EXCLUDED.halted,
			halt_reason = EXCLUDED.halt_reason,
			updated_at = EXCLUDED.updated_at`

	var lastTrade any
	if !state.LastTradeAt.IsZero() {
		lastTrade = state.LastTradeAt
	}
	_, err := s.pool.Exec(ctx, query,
		state.Day, state.DailyRealizedLoss, state.DailyRealizedPnL,
		state.TotalExposure, lastTrade, state.Halted, state.HaltReason, state.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: save risk state: %w", err)
	}
	return nil
}

// Load reads the persisted ledger. A missing row returns the zero state and
// no error, which a fresh deployment treats as a clean slate.
func (s *RiskStateStore) Load(ctx context.Context) (domain.RiskState, error) {
	const query = `
		SELECT day, daily_realized_loss, daily_realized_pnl, total_exposure,
			last_trade_at, halted, halt_reason, updated_at
		FROM risk_state WHERE id = 1`

	var state domain.RiskState
	var lastTrade sql.NullTime
	err := s.pool.QueryRow(ctx, query).Scan(
		&state.Day, &state.DailyRealizedLoss, &state.DailyRealizedPnL,
		&state.TotalExposure, &lastTrade, &state.Halted, &state.HaltReason, &state.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RiskState{}, nil
	}
	if err != nil {
		return domain.RiskState{}, fmt.Errorf("postgres: load risk state: %w", err)
	}
	if lastTrade.Valid {
		state.LastTradeAt = lastTrade.Time
	}
	return state, nil
}
