package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies UPDOWN_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known UPDOWN_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This lets
// operators inject secrets at deploy time without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "UPDOWN_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.Funder, "UPDOWN_WALLET_FUNDER")
	setInt(&cfg.Wallet.SignatureType, "UPDOWN_WALLET_SIGNATURE_TYPE")

	// ── Venue ──
	setStr(&cfg.Venue.ClobHost, "UPDOWN_VENUE_CLOB_HOST")
	setStr(&cfg.Venue.GammaHost, "UPDOWN_VENUE_GAMMA_HOST")
	setInt(&cfg.Venue.ChainID, "UPDOWN_VENUE_CHAIN_ID")

	// ── Feed ──
	setStr(&cfg.Feed.StreamURL, "UPDOWN_FEED_STREAM_URL")
	setStr(&cfg.Feed.RestURL, "UPDOWN_FEED_REST_URL")
	setStr(&cfg.Feed.Symbol, "UPDOWN_FEED_SYMBOL")
	setDuration(&cfg.Feed.MaxTickAge, "UPDOWN_FEED_MAX_TICK_AGE")
	setInt(&cfg.Feed.MaxReconnects, "UPDOWN_FEED_MAX_RECONNECTS")

	// ── Pure arbitrage ──
	setFloat64(&cfg.Pure.TargetPairCost, "UPDOWN_PURE_TARGET_PAIR_COST")
	setFloat64(&cfg.Pure.OrderSize, "UPDOWN_PURE_ORDER_SIZE")

	// ── Temporal arbitrage ──
	setBool(&cfg.Temporal.Enabled, "UPDOWN_TEMPORAL_ENABLED")
	setFloat64(&cfg.Temporal.OrderSize, "UPDOWN_TEMPORAL_ORDER_SIZE")
	setFloat64(&cfg.Temporal.ConfidenceThreshold, "UPDOWN_TEMPORAL_CONFIDENCE_THRESHOLD")
	setFloat64(&cfg.Temporal.PriceThreshold, "UPDOWN_TEMPORAL_PRICE_THRESHOLD")

	// ── Risk ──
	setFloat64(&cfg.Risk.MaxDailyLoss, "UPDOWN_RISK_MAX_DAILY_LOSS")
	setFloat64(&cfg.Risk.MaxPositionSize, "UPDOWN_RISK_MAX_POSITION_SIZE")
	setFloat64(&cfg.Risk.MaxSingleBet, "UPDOWN_RISK_MAX_SINGLE_BET")
	setDuration(&cfg.Risk.Cooldown, "UPDOWN_RISK_COOLDOWN")

	// ── Engine ──
	setStr(&cfg.Engine.Asset, "UPDOWN_ENGINE_ASSET")
	setDuration(&cfg.Engine.TickInterval, "UPDOWN_ENGINE_TICK_INTERVAL")
	setDuration(&cfg.Engine.ClosingBuffer, "UPDOWN_ENGINE_CLOSING_BUFFER")
	setDuration(&cfg.Engine.MaxQuoteAge, "UPDOWN_ENGINE_MAX_QUOTE_AGE")
	setStr(&cfg.Engine.OrderType, "UPDOWN_ENGINE_ORDER_TYPE")
	setBool(&cfg.Engine.DryRun, "UPDOWN_ENGINE_DRY_RUN")
	setFloat64(&cfg.Engine.SimBalance, "UPDOWN_ENGINE_SIM_BALANCE")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "UPDOWN_POSTGRES_DSN")
	setInt(&cfg.Postgres.MaxConns, "UPDOWN_POSTGRES_MAX_CONNS")
	setInt(&cfg.Postgres.MinConns, "UPDOWN_POSTGRES_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "UPDOWN_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "UPDOWN_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "UPDOWN_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "UPDOWN_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "UPDOWN_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "UPDOWN_REDIS_TLS_ENABLED")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "UPDOWN_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "UPDOWN_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "UPDOWN_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "UPDOWN_NOTIFY_EVENTS")

	// ── Obs ──
	setBool(&cfg.Obs.Enabled, "UPDOWN_OBS_ENABLED")
	setStr(&cfg.Obs.ListenAddr, "UPDOWN_OBS_LISTEN_ADDR")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "UPDOWN_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			*dst = out
		}
	}
}
