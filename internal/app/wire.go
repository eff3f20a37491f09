package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/updownlabs/updownbot/internal/book"
	redisCache "github.com/updownlabs/updownbot/internal/cache/redis"
	"github.com/updownlabs/updownbot/internal/config"
	"github.com/updownlabs/updownbot/internal/crypto"
	"github.com/updownlabs/updownbot/internal/domain"
	"github.com/updownlabs/updownbot/internal/executor"
	"github.com/updownlabs/updownbot/internal/feed"
	"github.com/updownlabs/updownbot/internal/notify"
	"github.com/updownlabs/updownbot/internal/obs"
	"github.com/updownlabs/updownbot/internal/platform/polymarket"
	"github.com/updownlabs/updownbot/internal/registry"
	"github.com/updownlabs/updownbot/internal/risk"
	"github.com/updownlabs/updownbot/internal/store/memory"
	"github.com/updownlabs/updownbot/internal/store/postgres"
)

// Dependencies bundles everything the trading loop needs. It is constructed
// by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Feed     *feed.Binance
	Registry *registry.Registry
	Books    *book.View
	Risk     *risk.Manager
	Executor *executor.Executor
	Notifier *notify.Notifier

	Audit   domain.AuditStore
	Trades  domain.TradeStore
	Ticks   domain.TickPublisher // nil without Redis
	Bus     domain.EventBus      // nil without Redis
	FinObs  *obs.Tracker         // nil when obs is disabled
	Metrics *obs.Metrics         // nil without a metrics listen address
}

// Wire builds all dependencies. Stores go to Postgres when a DSN is set and
// fall back to process memory in dry-run mode; Redis is optional either way.
func Wire(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var (
		riskStore  domain.RiskStateStore
		auditStore domain.AuditStore
		tradeStore domain.TradeStore
	)
	if cfg.Postgres.DSN != "" {
		pg, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("app: postgres: %w", err)
		}
		closers = append(closers, pg.Close)
		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("app: migrations: %w", err)
			}
		}
		riskStore = postgres.NewRiskStateStore(pg.Pool())
		auditStore = postgres.NewAuditStore(pg.Pool())
		tradeStore = postgres.NewTradeStore(pg.Pool())
	} else {
		riskStore = memory.NewRiskStateStore()
		auditStore = memory.NewAuditStore()
		tradeStore = memory.NewTradeStore()
		logger.Info("no postgres DSN, using in-memory stores")
	}

	var (
		ticks domain.TickPublisher
		bus   domain.EventBus
	)
	if cfg.Redis.Addr != "" {
		rc, err := redisCache.New(ctx, cfg.Redis)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("app: redis: %w", err)
		}
		closers = append(closers, func() { _ = rc.Close() })
		ticks = redisCache.NewTickMirror(rc)
		bus = redisCache.NewEventBus(rc)
	}

	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	notifier := notify.NewNotifier(senders, cfg.Notify.Events, logger)

	var (
		signer *crypto.Signer
		wallet string
	)
	if cfg.Wallet.PrivateKey != "" {
		s, err := crypto.NewSigner(cfg.Wallet.PrivateKey, cfg.Venue.ChainID)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("app: signer: %w", err)
		}
		signer = s
		wallet = s.Address().Hex()
	}

	clob := polymarket.NewClobClient(cfg.Venue.ClobHost, signer)
	if !cfg.Engine.DryRun {
		if err := clob.DeriveAPIKey(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("app: derive api key: %w", err)
		}
	}
	gamma := polymarket.NewGammaClient(cfg.Venue.GammaHost)

	var (
		finobs  *obs.Tracker
		metrics *obs.Metrics
	)
	if cfg.Obs.Enabled {
		if cfg.Obs.ListenAddr != "" {
			metrics = obs.NewMetrics()
		}
		budgetTotal := cfg.Risk.MaxPositionSize
		if cfg.Engine.DryRun {
			budgetTotal = cfg.Engine.SimBalance
		}
		rules := []obs.BudgetRule{
			{Name: "hourly", MaxAmount: cfg.Risk.MaxSingleBet * 5, Window: time.Hour},
			{Name: "daily", MaxAmount: cfg.Risk.MaxPositionSize, Window: 24 * time.Hour, HaltOnBreach: true},
		}
		finobs = obs.NewTracker(rules, budgetTotal, metrics, logger)
	}

	riskMgr, err := risk.NewManager(ctx, cfg.Risk, riskStore, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("app: risk manager: %w", err)
	}

	deps := &Dependencies{
		Feed:     feed.NewBinance(cfg.Feed, logger),
		Registry: registry.New(gamma, cfg.Engine.Asset, cfg.Engine.ClosingBuffer.Duration, logger),
		Books:    book.NewView(clob, cfg.Engine.MaxQuoteAge.Duration, logger),
		Risk:     riskMgr,
		Notifier: notifier,
		Audit:    auditStore,
		Trades:   tradeStore,
		Ticks:    ticks,
		Bus:      bus,
		FinObs:   finobs,
		Metrics:  metrics,
	}
	deps.Executor = executor.New(clob, signer, riskMgr, notifier,
		auditStore, tradeStore, wallet, cfg.Wallet.Funder, cfg.Wallet.SignatureType,
		domain.OrderType(cfg.Engine.OrderType), cfg.Engine.DryRun, logger)

	return deps, cleanup, nil
}
