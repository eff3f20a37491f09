// Package notify pushes operator alerts to Telegram and Discord. Alerts are
// filtered by event name so a deployment can subscribe to, say, halts and
// settlements without every fill.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Event names emitted by the engine and executor.
const (
	EventTradeFilled      = "trade_filled"
	EventPairUnwound      = "pair_unwound"
	EventRiskHalt         = "risk_halt"
	EventMarketSettled    = "market_settled"
	EventEngineStarted    = "engine_started"
	EventEngineStopped    = "engine_stopped"
	EventFeedUnhealthy    = "feed_unhealthy"
	EventMarketDiscovered = "market_discovered"
)

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans an alert out to every configured sender. With a non-empty
// allow list only matching events are delivered; Notify never fails the
// caller's path, delivery errors are logged and returned for tests.
type Notifier struct {
	senders []Sender
	allowed map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a notifier. An empty events list allows everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		allowed: allowed,
		logger:  logger.With(slog.String("component", "notify")),
	}
}

// Notify delivers the alert to all senders when the event passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.allowed) > 0 && !n.allowed[event] {
		return nil
	}
	if len(n.senders) == 0 {
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.Error("alert delivery failed",
				slog.String("sender", s.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
