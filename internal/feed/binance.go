package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/updownlabs/updownbot/internal/config"
	"github.com/updownlabs/updownbot/internal/domain"
)

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	handshakeTimeout = 15 * time.Second

	// historyRetention covers the longest momentum lookback plus the full
	// market window, so window-open prices can be recovered from history.
	historyRetention = 16 * time.Minute
)

// tradeEvent is the Binance trade stream payload. Prices arrive as strings.
type tradeEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"` // epoch millis
	Symbol    string `json:"s"`
	Price     string `json:"p"`
}

// Binance streams trades for one symbol over WebSocket and exposes the
// latest price as a snapshot cell: readers always get the newest tick,
// never a queue. A REST poll covers the gaps while the stream reconnects.
type Binance struct {
	cfg        config.FeedConfig
	logger     *slog.Logger
	httpClient *http.Client

	mu       sync.RWMutex
	latest   domain.ReferenceTick
	seq      uint64
	failures int

	history *History

	openMu      sync.RWMutex
	windowOpens map[int64]float64 // window start unix -> reference price
}

// NewBinance creates the reference price feed. Run must be called before
// Latest returns fresh data.
func NewBinance(cfg config.FeedConfig, logger *slog.Logger) *Binance {
	return &Binance{
		cfg:         cfg,
		logger:      logger.With(slog.String("component", "feed")),
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		history:     NewHistory(historyRetention),
		windowOpens: make(map[int64]float64),
	}
}

// Run connects to the trade stream and blocks until ctx is cancelled,
// reconnecting with exponential backoff on any stream failure. While the
// stream is down it polls the REST ticker so staleness windows stay short.
func (b *Binance) Run(ctx context.Context) error {
	delay := b.cfg.BackoffBase.Duration

	for {
		before := b.Latest().Seq
		err := b.streamOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if b.Latest().Seq > before {
			// The session delivered data, so the outage is new.
			delay = b.cfg.BackoffBase.Duration
		}

		failures := b.addFailure()
		b.logger.Warn("stream disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Int("consecutive_failures", failures),
			slog.Duration("backoff", delay))

		if price, rerr := b.fetchREST(ctx); rerr == nil {
			b.record(price, time.Now().UTC())
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > b.cfg.BackoffCap.Duration {
			delay = b.cfg.BackoffCap.Duration
		}
	}
}

// streamOnce dials the stream and consumes trades until the connection
// breaks or ctx is cancelled.
func (b *Binance) streamOnce(ctx context.Context) error {
	streamURL := fmt.Sprintf("%s/%s@trade", strings.TrimRight(b.cfg.StreamURL, "/"), strings.ToLower(b.cfg.Symbol))

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, streamURL, nil)
	if err != nil {
		return fmt.Errorf("feed: dial %s: %w", streamURL, err)
	}
	defer conn.Close()

	b.logger.Info("stream connected", slog.String("url", streamURL))

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read: %w", domain.ErrWSDisconnect)
		}

		var ev tradeEvent
		if err := json.Unmarshal(msg, &ev); err != nil || ev.EventType != "trade" {
			continue
		}
		price, err := strconv.ParseFloat(ev.Price, 64)
		if err != nil || price <= 0 {
			continue
		}

		at := time.UnixMilli(ev.EventTime).UTC()
		if ev.EventTime == 0 {
			at = time.Now().UTC()
		}
		b.record(price, at)
	}
}

// record updates the snapshot cell and appends to history. Ticks older than
// the current latest are dropped so the cell is latest-value-wins.
func (b *Binance) record(price float64, at time.Time) {
	b.mu.Lock()
	if at.Before(b.latest.Timestamp) {
		b.mu.Unlock()
		return
	}
	b.seq++
	b.latest = domain.ReferenceTick{Price: price, Timestamp: at, Seq: b.seq}
	b.failures = 0
	b.mu.Unlock()

	b.history.Append(price, at)
}

// Latest returns the newest observed tick. The zero tick means no data yet.
func (b *Binance) Latest() domain.ReferenceTick {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.latest
}

// Healthy reports whether the newest tick is within the configured max age
// and the stream has not crossed the consecutive-failure limit.
func (b *Binance) Healthy(now time.Time) bool {
	b.mu.RLock()
	failures := b.failures
	tick := b.latest
	b.mu.RUnlock()

	if b.cfg.MaxReconnects > 0 && failures >= b.cfg.MaxReconnects {
		return false
	}
	return tick.Fresh(now, b.cfg.MaxTickAge.Duration)
}

func (b *Binance) addFailure() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	return b.failures
}

// ChangePct returns the percentage move between the price observed ago
// before now and the latest price. The bool is false when history does not
// yet reach back far enough or the feed has no data.
func (b *Binance) ChangePct(now time.Time, ago time.Duration) (float64, bool) {
	latest := b.Latest()
	if latest.Price <= 0 {
		return 0, false
	}
	then, ok := b.history.At(now, ago)
	if !ok || then <= 0 {
		return 0, false
	}
	return (latest.Price - then) / then * 100, true
}

// MarkWindowOpen pins the reference price at a market window's open so the
// change-since-open signal survives history eviction. Calling it again for
// the same window is a no-op. Entries for long-expired windows are pruned.
func (b *Binance) MarkWindowOpen(windowStart time.Time) {
	latest := b.Latest()
	if latest.Price <= 0 {
		return
	}

	key := windowStart.Unix()
	b.openMu.Lock()
	defer b.openMu.Unlock()
	if _, ok := b.windowOpens[key]; ok {
		return
	}
	b.windowOpens[key] = latest.Price
	for k := range b.windowOpens {
		if key-k > 4*int64(15*60) {
			delete(b.windowOpens, k)
		}
	}
}

// WindowOpenPrice returns the reference price pinned at the window's open,
// falling back to history when the window was never marked.
func (b *Binance) WindowOpenPrice(now time.Time, windowStart time.Time) (float64, bool) {
	b.openMu.RLock()
	price, ok := b.windowOpens[windowStart.Unix()]
	b.openMu.RUnlock()
	if ok {
		return price, true
	}
	return b.history.At(now, now.Sub(windowStart))
}

// fetchREST grabs a spot price from the REST ticker endpoint. Used only to
// bridge stream outages.
func (b *Binance) fetchREST(ctx context.Context) (float64, error) {
	url := fmt.Sprintf("%s/ticker/price?symbol=%s", strings.TrimRight(b.cfg.RestURL, "/"), strings.ToUpper(b.cfg.Symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("feed: create ticker request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("feed: ticker request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("feed: read ticker response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("feed: ticker HTTP %d: %s", resp.StatusCode, string(body))
	}

	var ticker struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &ticker); err != nil {
		return 0, fmt.Errorf("feed: decode ticker: %w", err)
	}
	price, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("feed: bad ticker price %q", ticker.Price)
	}
	return price, nil
}
