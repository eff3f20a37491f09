// Package obs tracks the money side of a trading session. Every fill becomes
// a tracked transaction, settlements book revenue back against it, and the
// tracker derives ROI, burn rate, and budget headroom from the stream. A
// breached hard budget rule halts further evaluation the same way the risk
// manager's daily-loss limit halts trading.
package obs

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/updownlabs/updownbot/internal/domain"
)

// BudgetRule caps spend inside a rolling window. A zero window covers the
// whole session.
type BudgetRule struct {
	Name         string
	MaxAmount    float64
	Window       time.Duration
	HaltOnBreach bool
}

// Snapshot is a point-in-time view of the session's financials.
type Snapshot struct {
	TxCount      int
	TotalSpent   float64
	TotalRevenue float64
	TotalPnL     float64

	ROIPct   float64 // (revenue - spend) / spend * 100
	ROIKnown bool

	WinRatePct   float64 // settled transactions with positive net
	WinRateKnown bool

	BurnRatePerHour float64
	RunwayHours     float64 // remaining budget at the current burn rate
	RunwayKnown     bool
}

type tx struct {
	ref      string
	strategy domain.StrategyTag
	amount   float64
	revenue  float64
	settled  bool
	at       time.Time
}

// Tracker is the session spend ledger. All methods are safe for concurrent
// use; metrics may be nil when no exporter is configured.
type Tracker struct {
	rules       []BudgetRule
	budgetTotal float64
	metrics     *Metrics
	logger      *slog.Logger
	now         func() time.Time

	mu         sync.Mutex
	txs        []tx
	halted     bool
	haltReason string
}

// NewTracker creates a tracker. budgetTotal bounds the runway estimate;
// zero disables it.
func NewTracker(rules []BudgetRule, budgetTotal float64, metrics *Metrics, logger *slog.Logger) *Tracker {
	return &Tracker{
		rules:       rules,
		budgetTotal: budgetTotal,
		metrics:     metrics,
		logger:      logger.With(slog.String("component", "obs")),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Track records one spend, keyed by ref so a later settlement can book its
// revenue. Budget rules are checked against the stream including this spend;
// a breached halt rule latches the tracker halted.
func (t *Tracker) Track(ref string, strategy domain.StrategyTag, amount float64) {
	if amount <= 0 {
		return
	}
	now := t.now()

	t.mu.Lock()
	t.txs = append(t.txs, tx{ref: ref, strategy: strategy, amount: amount, at: now})
	for _, rule := range t.rules {
		spent := t.windowSpendLocked(rule.Window, now)
		if spent <= rule.MaxAmount {
			continue
		}
		if rule.HaltOnBreach && !t.halted {
			t.halted = true
			t.haltReason = fmt.Sprintf("budget %q breached: spent %.2f > limit %.2f",
				rule.Name, spent, rule.MaxAmount)
		}
		t.logger.Warn("budget rule breached",
			slog.String("rule", rule.Name),
			slog.Float64("spent", spent),
			slog.Float64("limit", rule.MaxAmount),
			slog.Bool("halts", rule.HaltOnBreach))
	}
	snap := t.snapshotLocked(now)
	headroom := t.headroomLocked(now)
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.onTrack(strategy, amount)
		t.metrics.onSnapshot(snap, headroom)
	}
}

// Settle books revenue against the oldest unsettled transaction with the
// given ref. Unknown refs are ignored; positions opened before a restart have
// no tracked spend.
func (t *Tracker) Settle(ref string, revenue float64) {
	now := t.now()

	t.mu.Lock()
	for i := range t.txs {
		if t.txs[i].ref == ref && !t.txs[i].settled {
			t.txs[i].revenue = revenue
			t.txs[i].settled = true
			break
		}
	}
	snap := t.snapshotLocked(now)
	headroom := t.headroomLocked(now)
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.onSettle(revenue)
		t.metrics.onSnapshot(snap, headroom)
	}
}

// Halted reports whether a halt-on-breach budget rule has tripped.
func (t *Tracker) Halted() (bool, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.halted, t.haltReason
}

// Snapshot computes the current financial metrics.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked(t.now())
}

// Headroom returns the remaining budget per rule.
func (t *Tracker) Headroom() map[string]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.headroomLocked(t.now())
}

func (t *Tracker) windowSpendLocked(window time.Duration, now time.Time) float64 {
	var cutoff time.Time
	if window > 0 {
		cutoff = now.Add(-window)
	}
	var spent float64
	for _, x := range t.txs {
		if !x.at.Before(cutoff) {
			spent += x.amount
		}
	}
	return spent
}

func (t *Tracker) headroomLocked(now time.Time) map[string]float64 {
	out := make(map[string]float64, len(t.rules))
	for _, rule := range t.rules {
		remaining := rule.MaxAmount - t.windowSpendLocked(rule.Window, now)
		if remaining < 0 {
			remaining = 0
		}
		out[rule.Name] = remaining
	}
	return out
}

func (t *Tracker) snapshotLocked(now time.Time) Snapshot {
	snap := Snapshot{TxCount: len(t.txs)}
	if len(t.txs) == 0 {
		return snap
	}

	var settled, wins int
	for _, x := range t.txs {
		snap.TotalSpent += x.amount
		snap.TotalRevenue += x.revenue
		if x.settled {
			settled++
			if x.revenue > x.amount {
				wins++
			}
		}
	}
	snap.TotalPnL = snap.TotalRevenue - snap.TotalSpent

	if snap.TotalSpent > 0 {
		snap.ROIPct = snap.TotalPnL / snap.TotalSpent * 100
		snap.ROIKnown = true
	}
	if settled > 0 {
		snap.WinRatePct = float64(wins) / float64(settled) * 100
		snap.WinRateKnown = true
	}

	span := t.txs[len(t.txs)-1].at.Sub(t.txs[0].at)
	if span > 0 {
		snap.BurnRatePerHour = snap.TotalSpent / span.Hours()
	}
	if snap.BurnRatePerHour > 0 && t.budgetTotal > 0 {
		remaining := t.budgetTotal - snap.TotalSpent
		if remaining < 0 {
			remaining = 0
		}
		snap.RunwayHours = remaining / snap.BurnRatePerHour
		snap.RunwayKnown = true
	}
	return snap
}
