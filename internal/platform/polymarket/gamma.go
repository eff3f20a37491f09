package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/updownlabs/updownbot/internal/domain"
)

// GammaClient is the REST client for the Polymarket Gamma API, which
// provides market discovery and metadata.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGammaClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string) *GammaClient {
	return &GammaClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// GetMarketBySlug looks up one up/down market by its deterministic slug.
// Returns domain.ErrNoMarket when the slug does not exist yet, which is the
// normal case when probing for a window the venue has not listed.
func (g *GammaClient) GetMarketBySlug(ctx context.Context, slug, asset string) (domain.Market, error) {
	params := url.Values{}
	params.Set("slug", slug)

	body, err := g.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: get market by slug %s: %w", slug, err)
	}

	var apiMarkets []APIMarket
	if err := json.Unmarshal(body, &apiMarkets); err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}
	for i := range apiMarkets {
		if !apiMarkets[i].Tradeable() {
			continue
		}
		market, err := apiMarkets[i].ToDomainMarket(asset)
		if err != nil {
			return domain.Market{}, fmt.Errorf("polymarket/gamma: %w", err)
		}
		return market, nil
	}
	return domain.Market{}, fmt.Errorf("polymarket/gamma: slug %s: %w", slug, domain.ErrNoMarket)
}

// SearchUpDownMarkets finds open markets in the 15-minute up/down series for
// the asset via the Gamma tag-filtered event listing. It is the fallback
// discovery path when slug probing misses.
func (g *GammaClient) SearchUpDownMarkets(ctx context.Context, asset, tag string) ([]domain.Market, error) {
	params := url.Values{}
	params.Set("tag", tag)
	params.Set("closed", "false")
	params.Set("limit", "50")

	body, err := g.doGet(ctx, "/events?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: search up/down events: %w", err)
	}

	var events []APIEvent
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: decode events: %w", err)
	}

	var markets []domain.Market
	for i := range events {
		ev := &events[i]
		if ev.Closed || !bool(ev.Active) {
			continue
		}
		for j := range ev.Markets {
			am := &ev.Markets[j]
			if !IsUpDownSlug(am.Slug, asset) || !am.Tradeable() {
				continue
			}
			market, err := am.ToDomainMarket(asset)
			if err != nil {
				continue
			}
			markets = append(markets, market)
		}
	}
	return markets, nil
}

func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}
