// Package risk enforces the hard trading limits: daily realized loss,
// total exposure, single-bet size, and the inter-trade cooldown. All checks
// and reservations happen atomically under one lock so concurrent intents
// cannot both pass against the same headroom.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/updownlabs/updownbot/internal/config"
	"github.com/updownlabs/updownbot/internal/domain"
)

// Manager owns the risk ledger. Every mutation is written through to the
// state store so limits survive a restart.
type Manager struct {
	cfg    config.RiskConfig
	store  domain.RiskStateStore
	logger *slog.Logger
	now    func() time.Time

	mu           sync.Mutex
	state        domain.RiskState
	reservations map[string]float64 // intent ID -> reserved notional
}

// NewManager creates a manager seeded from the persisted state. A persisted
// day older than today starts fresh counters; a persisted daily-loss halt
// from today stays in force.
func NewManager(ctx context.Context, cfg config.RiskConfig, store domain.RiskStateStore, logger *slog.Logger) (*Manager, error) {
	m := &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logger.With(slog.String("component", "risk")),
		now:          func() time.Time { return time.Now().UTC() },
		reservations: make(map[string]float64),
	}

	state, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("risk: load state: %w", err)
	}

	today := dayOf(m.now())
	if state.Day == today {
		m.state = state
		if state.Halted {
			m.logger.Warn("resuming halted",
				slog.String("reason", state.HaltReason),
				slog.Float64("daily_realized_loss", state.DailyRealizedLoss))
		}
	} else {
		m.state = domain.RiskState{Day: today}
		if state.Day != "" {
			m.logger.Info("new trading day, counters reset", slog.String("previous_day", state.Day))
		}
	}
	return m, nil
}

// Authorize checks an intent against all limits and, when it passes,
// reserves the intent's notional against total exposure in the same
// critical section. Callers must later settle or release the reservation.
func (m *Manager) Authorize(ctx context.Context, intent domain.OrderIntent) domain.Authorization {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.rolloverLocked(ctx, now)

	if auth := m.gateLocked(ctx, now); !auth.OK {
		return auth
	}
	if auth := m.limitsLocked(intent.Notional(), intent.Notional()); !auth.OK {
		return auth
	}

	m.state.TotalExposure += intent.Notional()
	m.state.LastTradeAt = now
	m.reservations[intent.ID] = intent.Notional()
	m.persistLocked(ctx)
	return domain.Approved()
}

// AuthorizePair authorizes the two legs of an arbitrage pair as one
// opportunity: the cooldown is checked and stamped once for the pair, the
// single-bet limit applies per leg, and both reservations are taken in the
// same critical section so no other intent can slip between the legs.
func (m *Manager) AuthorizePair(ctx context.Context, up, down domain.OrderIntent) domain.Authorization {
	now := m.now()
	combined := up.Notional() + down.Notional()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.rolloverLocked(ctx, now)

	if auth := m.gateLocked(ctx, now); !auth.OK {
		return auth
	}
	if auth := m.limitsLocked(math.Max(up.Notional(), down.Notional()), combined); !auth.OK {
		return auth
	}

	m.state.TotalExposure += combined
	m.state.LastTradeAt = now
	m.reservations[up.ID] = up.Notional()
	m.reservations[down.ID] = down.Notional()
	m.persistLocked(ctx)
	return domain.Approved()
}

// gateLocked runs the checks that apply to a whole trading opportunity:
// halt, cooldown, and the daily loss limit.
func (m *Manager) gateLocked(ctx context.Context, now time.Time) domain.Authorization {
	if m.state.Halted {
		return domain.Rejected(domain.RejectHalted, m.state.HaltReason)
	}
	if !m.state.LastTradeAt.IsZero() && now.Sub(m.state.LastTradeAt) < m.cfg.Cooldown.Duration {
		remaining := m.cfg.Cooldown.Duration - now.Sub(m.state.LastTradeAt)
		return domain.Rejected(domain.RejectCooldown, fmt.Sprintf("%.1fs remaining", remaining.Seconds()))
	}
	if m.state.DailyRealizedLoss >= m.cfg.MaxDailyLoss {
		m.haltLocked(ctx, domain.HaltReasonDailyLoss)
		return domain.Rejected(domain.RejectDailyLoss,
			fmt.Sprintf("realized loss %.2f >= limit %.2f", m.state.DailyRealizedLoss, m.cfg.MaxDailyLoss))
	}
	return domain.Approved()
}

// limitsLocked checks the per-bet and total-exposure limits for one intent.
func (m *Manager) limitsLocked(single, added float64) domain.Authorization {
	if single > m.cfg.MaxSingleBet {
		return domain.Rejected(domain.RejectSingleBet,
			fmt.Sprintf("notional %.2f > limit %.2f", single, m.cfg.MaxSingleBet))
	}
	if m.state.TotalExposure+added > m.cfg.MaxPositionSize {
		return domain.Rejected(domain.RejectExposure,
			fmt.Sprintf("exposure %.2f + %.2f > limit %.2f", m.state.TotalExposure, added, m.cfg.MaxPositionSize))
	}
	return domain.Approved()
}

// SettleFill replaces an intent's reservation with the actual fill cost.
// A partial fill shrinks exposure to what was really spent.
func (m *Manager) SettleFill(ctx context.Context, intentID string, actualCost float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reserved, ok := m.reservations[intentID]
	if !ok {
		return
	}
	delete(m.reservations, intentID)
	m.state.TotalExposure += actualCost - reserved
	if m.state.TotalExposure < 0 {
		m.state.TotalExposure = 0
	}
	m.persistLocked(ctx)
}

// Release drops an intent's reservation without any fill, for rejected or
// fully unwound orders.
func (m *Manager) Release(ctx context.Context, intentID string) {
	m.SettleFill(ctx, intentID, 0)
}

// RecordSettlement applies a market resolution: exposure held by the
// position is freed and its realized result feeds the daily counters.
// Returns true when this settlement tripped the daily loss halt.
func (m *Manager) RecordSettlement(ctx context.Context, s domain.SettlementOutcome) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rolloverLocked(ctx, m.now())

	m.state.TotalExposure -= s.Cost
	if m.state.TotalExposure < 0 {
		m.state.TotalExposure = 0
	}
	m.state.DailyRealizedPnL += s.PnL
	if s.PnL < 0 {
		m.state.DailyRealizedLoss += -s.PnL
	}

	tripped := false
	if !m.state.Halted && m.state.DailyRealizedLoss >= m.cfg.MaxDailyLoss {
		m.haltLocked(ctx, domain.HaltReasonDailyLoss)
		tripped = true
	} else {
		m.persistLocked(ctx)
	}
	return tripped
}

// Rollover resets daily counters when the calendar day has changed. A halt
// carried from the previous day is lifted; the new day starts clean.
func (m *Manager) Rollover(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverLocked(ctx, m.now())
}

// Snapshot returns a copy of the current ledger.
func (m *Manager) Snapshot() domain.RiskState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Halted reports whether trading is currently halted.
func (m *Manager) Halted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Halted
}

func (m *Manager) rolloverLocked(ctx context.Context, now time.Time) {
	today := dayOf(now)
	if m.state.Day == today {
		return
	}
	m.logger.Info("daily rollover",
		slog.String("previous_day", m.state.Day),
		slog.Float64("previous_pnl", m.state.DailyRealizedPnL))
	m.state.Day = today
	m.state.DailyRealizedLoss = 0
	m.state.DailyRealizedPnL = 0
	m.state.Halted = false
	m.state.HaltReason = ""
	m.persistLocked(ctx)
}

func (m *Manager) haltLocked(ctx context.Context, reason string) {
	m.state.Halted = true
	m.state.HaltReason = reason
	m.logger.Error("trading halted",
		slog.String("reason", reason),
		slog.Float64("daily_realized_loss", m.state.DailyRealizedLoss))
	m.persistLocked(ctx)
}

func (m *Manager) persistLocked(ctx context.Context) {
	m.state.UpdatedAt = m.now()
	if err := m.store.Save(ctx, m.state); err != nil {
		m.logger.Error("persist risk state", slog.String("error", err.Error()))
	}
}

func dayOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
