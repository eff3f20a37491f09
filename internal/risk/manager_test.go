package risk

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/updownlabs/updownbot/internal/config"
	"github.com/updownlabs/updownbot/internal/domain"
	"github.com/updownlabs/updownbot/internal/store/memory"
)

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		MaxDailyLoss:    500,
		MaxPositionSize: 5000,
		MaxSingleBet:    500,
		Cooldown:        config.Duration{Duration: 5 * time.Second},
	}
}

// clock is a settable time source for deterministic tests.
type clock struct {
	t time.Time
}

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestManager(t *testing.T, store domain.RiskStateStore) (*Manager, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	m, err := NewManager(context.Background(), testRiskConfig(), store, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	m.now = c.now
	// Re-seed the day against the test clock rather than the wall clock.
	m.state.Day = dayOf(c.t)
	return m, c
}

func intent(id string, size, price float64) domain.OrderIntent {
	return domain.OrderIntent{
		ID:         id,
		Strategy:   domain.StrategyPure,
		MarketID:   "cond-1",
		Outcome:    domain.OutcomeUp,
		Side:       domain.OrderSideBuy,
		Size:       size,
		LimitPrice: price,
	}
}

func TestAuthorizeReservesExposure(t *testing.T) {
	m, _ := newTestManager(t, memory.NewRiskStateStore())
	ctx := context.Background()

	auth := m.Authorize(ctx, intent("a", 100, 0.50))
	require.True(t, auth.OK)

	state := m.Snapshot()
	assert.Equal(t, 50.0, state.TotalExposure)
	assert.False(t, state.LastTradeAt.IsZero())
}

func TestAuthorizeCooldown(t *testing.T) {
	m, c := newTestManager(t, memory.NewRiskStateStore())
	ctx := context.Background()

	require.True(t, m.Authorize(ctx, intent("a", 100, 0.50)).OK)

	auth := m.Authorize(ctx, intent("b", 100, 0.50))
	require.False(t, auth.OK)
	assert.Equal(t, domain.RejectCooldown, auth.Reason)

	c.advance(6 * time.Second)
	assert.True(t, m.Authorize(ctx, intent("c", 100, 0.50)).OK)
}

func TestAuthorizeSingleBetLimit(t *testing.T) {
	m, _ := newTestManager(t, memory.NewRiskStateStore())

	auth := m.Authorize(context.Background(), intent("a", 2000, 0.50))
	require.False(t, auth.OK)
	assert.Equal(t, domain.RejectSingleBet, auth.Reason)
	assert.Zero(t, m.Snapshot().TotalExposure)
}

func TestAuthorizeExposureLimit(t *testing.T) {
	m, c := newTestManager(t, memory.NewRiskStateStore())
	ctx := context.Background()

	// Ten bets of 500 fill the 5000 exposure cap exactly.
	for i := 0; i < 10; i++ {
		require.True(t, m.Authorize(ctx, intent(string(rune('a'+i)), 1000, 0.50)).OK)
		c.advance(6 * time.Second)
	}
	assert.Equal(t, 5000.0, m.Snapshot().TotalExposure)

	auth := m.Authorize(ctx, intent("k", 1000, 0.50))
	require.False(t, auth.OK)
	assert.Equal(t, domain.RejectExposure, auth.Reason)
}

func pair(prefix string, size, upPrice, downPrice float64) (domain.OrderIntent, domain.OrderIntent) {
	up := intent(prefix+"-up", size, upPrice)
	down := intent(prefix+"-down", size, downPrice)
	down.Outcome = domain.OutcomeDown
	return up, down
}

func TestAuthorizePairReservesBothLegs(t *testing.T) {
	m, _ := newTestManager(t, memory.NewRiskStateStore())
	ctx := context.Background()

	up, down := pair("p1", 100, 0.47, 0.51)
	require.True(t, m.AuthorizePair(ctx, up, down).OK)
	assert.InDelta(t, 98.0, m.Snapshot().TotalExposure, 1e-9)

	// Each leg holds its own reservation and releases independently.
	m.Release(ctx, up.ID)
	assert.InDelta(t, 51.0, m.Snapshot().TotalExposure, 1e-9)
	m.Release(ctx, down.ID)
	assert.Zero(t, m.Snapshot().TotalExposure)
}

func TestAuthorizePairStampsCooldownOnce(t *testing.T) {
	m, c := newTestManager(t, memory.NewRiskStateStore())
	ctx := context.Background()

	// Both legs pass as one opportunity; only the next opportunity waits.
	up, down := pair("p1", 100, 0.47, 0.51)
	require.True(t, m.AuthorizePair(ctx, up, down).OK)

	up2, down2 := pair("p2", 100, 0.47, 0.51)
	auth := m.AuthorizePair(ctx, up2, down2)
	require.False(t, auth.OK)
	assert.Equal(t, domain.RejectCooldown, auth.Reason)

	c.advance(6 * time.Second)
	assert.True(t, m.AuthorizePair(ctx, up2, down2).OK)
}

func TestAuthorizePairSingleBetAppliesPerLeg(t *testing.T) {
	m, _ := newTestManager(t, memory.NewRiskStateStore())

	// Down leg is fine at 480 but the up leg's 600 breaks the 500 cap.
	up, down := pair("p1", 1200, 0.50, 0.40)
	auth := m.AuthorizePair(context.Background(), up, down)
	require.False(t, auth.OK)
	assert.Equal(t, domain.RejectSingleBet, auth.Reason)
	assert.Zero(t, m.Snapshot().TotalExposure)
}

func TestAuthorizePairExposureCountsBothLegs(t *testing.T) {
	m, c := newTestManager(t, memory.NewRiskStateStore())
	ctx := context.Background()

	// Five pairs of 980 combined notional reach 4900 of the 5000 cap.
	for i := 0; i < 5; i++ {
		up, down := pair(fmt.Sprintf("p%d", i), 1000, 0.49, 0.49)
		require.True(t, m.AuthorizePair(ctx, up, down).OK)
		c.advance(6 * time.Second)
	}
	assert.InDelta(t, 4900.0, m.Snapshot().TotalExposure, 1e-9)

	up, down := pair("p5", 1000, 0.49, 0.49)
	auth := m.AuthorizePair(ctx, up, down)
	require.False(t, auth.OK)
	assert.Equal(t, domain.RejectExposure, auth.Reason)
	assert.InDelta(t, 4900.0, m.Snapshot().TotalExposure, 1e-9)
}

func TestSettleFillAdjustsReservation(t *testing.T) {
	m, _ := newTestManager(t, memory.NewRiskStateStore())
	ctx := context.Background()

	require.True(t, m.Authorize(ctx, intent("a", 100, 0.50)).OK)
	require.Equal(t, 50.0, m.Snapshot().TotalExposure)

	// Partial fill: only 30 USDC actually spent.
	m.SettleFill(ctx, "a", 30)
	assert.Equal(t, 30.0, m.Snapshot().TotalExposure)

	// Settling an unknown intent is a no-op.
	m.SettleFill(ctx, "missing", 99)
	assert.Equal(t, 30.0, m.Snapshot().TotalExposure)
}

func TestReleaseFreesReservation(t *testing.T) {
	m, _ := newTestManager(t, memory.NewRiskStateStore())
	ctx := context.Background()

	require.True(t, m.Authorize(ctx, intent("a", 100, 0.50)).OK)
	m.Release(ctx, "a")
	assert.Zero(t, m.Snapshot().TotalExposure)
}

func TestRecordSettlementTripsHalt(t *testing.T) {
	m, c := newTestManager(t, memory.NewRiskStateStore())
	ctx := context.Background()

	tripped := m.RecordSettlement(ctx, domain.SettlementOutcome{Cost: 300, PnL: -300})
	assert.False(t, tripped)
	assert.False(t, m.Halted())

	tripped = m.RecordSettlement(ctx, domain.SettlementOutcome{Cost: 250, PnL: -250})
	assert.True(t, tripped)
	assert.True(t, m.Halted())

	state := m.Snapshot()
	assert.Equal(t, domain.HaltReasonDailyLoss, state.HaltReason)
	assert.Equal(t, 550.0, state.DailyRealizedLoss)
	assert.Equal(t, -550.0, state.DailyRealizedPnL)

	c.advance(time.Minute)
	auth := m.Authorize(ctx, intent("a", 100, 0.50))
	require.False(t, auth.OK)
	assert.Equal(t, domain.RejectHalted, auth.Reason)

	// A second losing settlement does not re-trip.
	assert.False(t, m.RecordSettlement(ctx, domain.SettlementOutcome{Cost: 10, PnL: -10}))
}

func TestRecordSettlementWinFreesExposure(t *testing.T) {
	m, c := newTestManager(t, memory.NewRiskStateStore())
	ctx := context.Background()

	require.True(t, m.Authorize(ctx, intent("a", 100, 0.50)).OK)
	c.advance(6 * time.Second)

	m.RecordSettlement(ctx, domain.SettlementOutcome{Cost: 50, PnL: 50, Won: true})
	state := m.Snapshot()
	assert.Zero(t, state.TotalExposure)
	assert.Equal(t, 50.0, state.DailyRealizedPnL)
	assert.Zero(t, state.DailyRealizedLoss)
}

func TestRolloverClearsHaltAndCounters(t *testing.T) {
	m, c := newTestManager(t, memory.NewRiskStateStore())
	ctx := context.Background()

	m.RecordSettlement(ctx, domain.SettlementOutcome{Cost: 600, PnL: -600})
	require.True(t, m.Halted())

	c.advance(24 * time.Hour)
	m.Rollover(ctx)

	state := m.Snapshot()
	assert.False(t, state.Halted)
	assert.Empty(t, state.HaltReason)
	assert.Zero(t, state.DailyRealizedLoss)
	assert.Zero(t, state.DailyRealizedPnL)
	assert.Equal(t, dayOf(c.t), state.Day)

	c.advance(time.Minute)
	assert.True(t, m.Authorize(ctx, intent("a", 100, 0.50)).OK)
}

// TestExposureStaysUnderCapAcrossRandomFlows hammers the ledger with random
// authorizations, fills, releases, and resolutions, checking the exposure cap
// after every step. Authorization is the only path that grows exposure, so
// the cap must hold no matter how the flows interleave.
func TestExposureStaysUnderCapAcrossRandomFlows(t *testing.T) {
	cfg := testRiskConfig()
	rng := rand.New(rand.NewSource(20260301))

	for run := 0; run < 10; run++ {
		m, c := newTestManager(t, memory.NewRiskStateStore())
		ctx := context.Background()

		reserved := make(map[string]float64)
		var open []string
		seq := 0

		for step := 0; step < 400; step++ {
			switch rng.Intn(6) {
			case 0, 1:
				id := fmt.Sprintf("s%d", seq)
				seq++
				in := intent(id, float64(rng.Intn(900)+100), 0.10+0.80*rng.Float64())
				if m.Authorize(ctx, in).OK {
					reserved[id] = in.Notional()
					open = append(open, id)
				}
			case 2:
				up, down := pair(fmt.Sprintf("p%d", seq),
					float64(rng.Intn(900)+100), 0.10+0.45*rng.Float64(), 0.10+0.45*rng.Float64())
				seq++
				if m.AuthorizePair(ctx, up, down).OK {
					reserved[up.ID] = up.Notional()
					reserved[down.ID] = down.Notional()
					open = append(open, up.ID, down.ID)
				}
			case 3:
				// Fill at or under the reservation.
				if len(open) > 0 {
					i := rng.Intn(len(open))
					id := open[i]
					open = append(open[:i], open[i+1:]...)
					m.SettleFill(ctx, id, reserved[id]*rng.Float64())
					delete(reserved, id)
				}
			case 4:
				if len(open) > 0 {
					i := rng.Intn(len(open))
					id := open[i]
					open = append(open[:i], open[i+1:]...)
					m.Release(ctx, id)
					delete(reserved, id)
				}
			case 5:
				cost := float64(rng.Intn(200))
				pnl := cost*rng.Float64()*2 - cost
				m.RecordSettlement(ctx, domain.SettlementOutcome{Cost: cost, PnL: pnl, Won: pnl > 0})
			}

			if exp := m.Snapshot().TotalExposure; exp > cfg.MaxPositionSize+1e-9 {
				t.Fatalf("run %d step %d: exposure %.2f over cap %.2f",
					run, step, exp, cfg.MaxPositionSize)
			}
			c.advance(time.Duration(rng.Intn(8)) * time.Second)
		}
	}
}

func TestHaltSurvivesRestartSameDay(t *testing.T) {
	store := memory.NewRiskStateStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domain.RiskState{
		Day:               dayOf(time.Now().UTC()),
		DailyRealizedLoss: 600,
		Halted:            true,
		HaltReason:        domain.HaltReasonDailyLoss,
	}))

	m, err := NewManager(ctx, testRiskConfig(), store, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.True(t, m.Halted())
}

func TestStaleStateStartsFreshDay(t *testing.T) {
	store := memory.NewRiskStateStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domain.RiskState{
		Day:               "2020-01-01",
		DailyRealizedLoss: 600,
		Halted:            true,
		HaltReason:        domain.HaltReasonDailyLoss,
	}))

	m, err := NewManager(ctx, testRiskConfig(), store, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.False(t, m.Halted())
	assert.Zero(t, m.Snapshot().DailyRealizedLoss)
}
