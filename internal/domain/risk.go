package domain

import "time"

// HaltReasonDailyLoss is the sticky halt reason set when the daily realized
// loss limit is breached.
const HaltReasonDailyLoss = "daily_loss_limit"

// RiskState is the process-wide risk ledger. One instance exists for the
// lifetime of the process; it is owned and mutated exclusively by the risk
// manager and persisted after every mutation so limits survive a restart.
type RiskState struct {
	Day               string // calendar day the daily counters belong to, YYYY-MM-DD
	DailyRealizedLoss float64
	DailyRealizedPnL  float64
	TotalExposure     float64
	LastTradeAt       time.Time
	Halted            bool
	HaltReason        string
	UpdatedAt         time.Time
}

// RejectReason classifies why an intent was not authorized.
type RejectReason string

const (
	RejectHalted    RejectReason = "halted"
	RejectCooldown  RejectReason = "cooldown"
	RejectExposure  RejectReason = "max_position_size"
	RejectSingleBet RejectReason = "max_single_bet"
	RejectDailyLoss RejectReason = HaltReasonDailyLoss
)

// Authorization is the typed result of a risk check. Either OK is true or
// Reason explains the rejection.
type Authorization struct {
	OK     bool
	Reason RejectReason
	Detail string
}

// Approved returns a passing authorization.
func Approved() Authorization {
	return Authorization{OK: true}
}

// Rejected returns a failing authorization with the given reason.
func Rejected(reason RejectReason, detail string) Authorization {
	return Authorization{OK: false, Reason: reason, Detail: detail}
}
