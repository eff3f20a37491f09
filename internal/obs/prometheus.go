package obs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/updownlabs/updownbot/internal/domain"
)

// Metrics exports the tracker's financials as Prometheus series on a
// dedicated registry, keeping the /metrics page free of runtime collectors.
type Metrics struct {
	registry *prometheus.Registry

	txTotal        *prometheus.CounterVec
	spendTotal     prometheus.Counter
	revenueTotal   prometheus.Counter
	pnl            prometheus.Gauge
	roiPct         prometheus.Gauge
	burnRate       prometheus.Gauge
	budgetHeadroom *prometheus.GaugeVec
}

// NewMetrics creates the metric set on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		txTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "updownbot_tx_total",
			Help: "Tracked spend transactions.",
		}, []string{"strategy"}),
		spendTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "updownbot_spend_usd_total",
			Help: "Total USD spent on fills.",
		}),
		revenueTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "updownbot_revenue_usd_total",
			Help: "Total USD received from settlements.",
		}),
		pnl: factory.NewGauge(prometheus.GaugeOpts{
			Name: "updownbot_pnl_usd",
			Help: "Session revenue minus spend.",
		}),
		roiPct: factory.NewGauge(prometheus.GaugeOpts{
			Name: "updownbot_roi_pct",
			Help: "Session return on spend, percent.",
		}),
		burnRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "updownbot_burn_rate_usd_per_hour",
			Help: "Average spend per hour over the session.",
		}),
		budgetHeadroom: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "updownbot_budget_headroom_usd",
			Help: "Remaining budget per rule.",
		}, []string{"rule"}),
	}
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs a /metrics endpoint on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("metrics endpoint listening", slog.String("addr", addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (m *Metrics) onTrack(strategy domain.StrategyTag, amount float64) {
	m.txTotal.WithLabelValues(string(strategy)).Inc()
	m.spendTotal.Add(amount)
}

func (m *Metrics) onSettle(revenue float64) {
	if revenue > 0 {
		m.revenueTotal.Add(revenue)
	}
}

func (m *Metrics) onSnapshot(snap Snapshot, headroom map[string]float64) {
	m.pnl.Set(snap.TotalPnL)
	if snap.ROIKnown {
		m.roiPct.Set(snap.ROIPct)
	}
	m.burnRate.Set(snap.BurnRatePerHour)
	for rule, remaining := range headroom {
		m.budgetHeadroom.WithLabelValues(rule).Set(remaining)
	}
}
