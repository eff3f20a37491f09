// Package config defines the typed configuration for the updown bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by UPDOWN_* environment variables.
type Config struct {
	Wallet   WalletConfig   `toml:"wallet"`
	Venue    VenueConfig    `toml:"venue"`
	Feed     FeedConfig     `toml:"feed"`
	Pure     PureConfig     `toml:"pure"`
	Temporal TemporalConfig `toml:"temporal"`
	Risk     RiskConfig     `toml:"risk"`
	Engine   EngineConfig   `toml:"engine"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Notify   NotifyConfig   `toml:"notify"`
	Obs      ObsConfig      `toml:"obs"`
	LogLevel string         `toml:"log_level"`
}

// WalletConfig holds the trading wallet credentials.
type WalletConfig struct {
	PrivateKey    string `toml:"private_key"`
	Funder        string `toml:"funder"`
	SignatureType int    `toml:"signature_type"`
}

// VenueConfig holds the prediction-market venue endpoints.
type VenueConfig struct {
	ClobHost  string `toml:"clob_host"`
	GammaHost string `toml:"gamma_host"`
	ChainID   int    `toml:"chain_id"`
}

// Duration wraps time.Duration so the TOML decoder can parse strings like
// "30s" or "5m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// FeedConfig holds the external reference price feed parameters.
type FeedConfig struct {
	StreamURL     string   `toml:"stream_url"`
	RestURL       string   `toml:"rest_url"`
	Symbol        string   `toml:"symbol"`
	MaxTickAge    Duration `toml:"max_tick_age"`
	MaxReconnects int      `toml:"max_reconnects"` // consecutive failures before unhealthy
	BackoffBase   Duration `toml:"backoff_base"`
	BackoffCap    Duration `toml:"backoff_cap"`
}

// PureConfig holds the pure arbitrage strategy parameters.
type PureConfig struct {
	TargetPairCost float64 `toml:"target_pair_cost"` // strictly below 1.0
	OrderSize      float64 `toml:"order_size"`       // shares per leg
}

// TemporalConfig holds the temporal arbitrage strategy parameters.
type TemporalConfig struct {
	Enabled             bool    `toml:"enabled"`
	OrderSize           float64 `toml:"order_size"`
	ConfidenceThreshold float64 `toml:"confidence_threshold"`
	PriceThreshold      float64 `toml:"price_threshold"`
}

// RiskConfig holds the hard risk limits.
type RiskConfig struct {
	MaxDailyLoss    float64  `toml:"max_daily_loss"`
	MaxPositionSize float64  `toml:"max_position_size"`
	MaxSingleBet    float64  `toml:"max_single_bet"`
	Cooldown        Duration `toml:"cooldown"`
}

// EngineConfig holds the orchestrator parameters.
type EngineConfig struct {
	Asset         string   `toml:"asset"`
	TickInterval  Duration `toml:"tick_interval"`
	ClosingBuffer Duration `toml:"closing_buffer"`
	MaxQuoteAge   Duration `toml:"max_quote_age"`
	OrderType     string   `toml:"order_type"` // FOK or GTC
	DryRun        bool     `toml:"dry_run"`
	SimBalance    float64  `toml:"sim_balance"`
}

// PostgresConfig holds the durable store connection parameters. An empty DSN
// combined with dry_run selects the in-memory stores.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	MaxConns      int    `toml:"max_conns"`
	MinConns      int    `toml:"min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds the optional cache/bus connection parameters. An empty
// Addr disables the tick mirror and event bus.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// ObsConfig holds the financial observability parameters. The budget rules
// are derived from the risk limits at wire time; an empty ListenAddr keeps
// the Prometheus endpoint off.
type ObsConfig struct {
	Enabled    bool   `toml:"enabled"`
	ListenAddr string `toml:"listen_addr"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config pre-populated with sane defaults. Load merges the
// TOML file on top of these.
func Defaults() Config {
	return Config{
		Venue: VenueConfig{
			ClobHost:  "https://clob.polymarket.com",
			GammaHost: "https://gamma-api.polymarket.com",
			ChainID:   137,
		},
		Feed: FeedConfig{
			StreamURL:     "wss://stream.binance.com:9443/ws",
			RestURL:       "https://api.binance.com/api/v3",
			Symbol:        "BTCUSDT",
			MaxTickAge:    Duration{10 * time.Second},
			MaxReconnects: 5,
			BackoffBase:   Duration{time.Second},
			BackoffCap:    Duration{30 * time.Second},
		},
		Pure: PureConfig{
			TargetPairCost: 0.993,
			OrderSize:      50,
		},
		Temporal: TemporalConfig{
			Enabled:             true,
			OrderSize:           100,
			ConfidenceThreshold: 0.70,
			PriceThreshold:      0.55,
		},
		Risk: RiskConfig{
			MaxDailyLoss:    500,
			MaxPositionSize: 5000,
			MaxSingleBet:    500,
			Cooldown:        Duration{5 * time.Second},
		},
		Engine: EngineConfig{
			Asset:         "BTC",
			TickInterval:  Duration{3 * time.Second},
			ClosingBuffer: Duration{30 * time.Second},
			MaxQuoteAge:   Duration{10 * time.Second},
			OrderType:     "FOK",
			DryRun:        true,
			SimBalance:    1000,
		},
		Postgres: PostgresConfig{
			MaxConns:      4,
			MinConns:      1,
			RunMigrations: true,
		},
		Obs: ObsConfig{
			Enabled: true,
		},
		LogLevel: "info",
	}
}

// Validate checks the configuration for values the engine cannot safely run
// with. It returns the first problem found.
func (c *Config) Validate() error {
	if c.Pure.TargetPairCost <= 0 || c.Pure.TargetPairCost >= 1.0 {
		return fmt.Errorf("config: pure.target_pair_cost must be in (0, 1), got %v", c.Pure.TargetPairCost)
	}
	if c.Pure.OrderSize <= 0 {
		return fmt.Errorf("config: pure.order_size must be positive")
	}
	if c.Temporal.Enabled {
		if c.Temporal.ConfidenceThreshold <= 0 || c.Temporal.ConfidenceThreshold > 1 {
			return fmt.Errorf("config: temporal.confidence_threshold must be in (0, 1]")
		}
		if c.Temporal.PriceThreshold <= 0 || c.Temporal.PriceThreshold >= 1 {
			return fmt.Errorf("config: temporal.price_threshold must be in (0, 1)")
		}
		if c.Temporal.OrderSize <= 0 {
			return fmt.Errorf("config: temporal.order_size must be positive")
		}
	}
	if c.Risk.MaxDailyLoss <= 0 || c.Risk.MaxPositionSize <= 0 || c.Risk.MaxSingleBet <= 0 {
		return fmt.Errorf("config: risk limits must be positive")
	}
	if c.Risk.Cooldown.Duration < 0 {
		return fmt.Errorf("config: risk.cooldown must not be negative")
	}
	switch strings.ToUpper(c.Engine.OrderType) {
	case "FOK", "GTC":
	default:
		return fmt.Errorf("config: engine.order_type must be FOK or GTC, got %q", c.Engine.OrderType)
	}
	if c.Engine.TickInterval.Duration <= 0 {
		return fmt.Errorf("config: engine.tick_interval must be positive")
	}
	if c.Engine.ClosingBuffer.Duration <= 0 {
		return fmt.Errorf("config: engine.closing_buffer must be positive")
	}
	if !c.Engine.DryRun {
		if c.Wallet.PrivateKey == "" {
			return fmt.Errorf("config: wallet.private_key is required for live trading")
		}
		if c.Postgres.DSN == "" {
			return fmt.Errorf("config: postgres.dsn is required for live trading")
		}
	}
	return nil
}
