package market

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"buyback-bot-go/internal/config"
	"buyback-bot-go/internal/dashboard"
	"buyback-bot-go/pkg/utils"

	"github.com/sirupsen/logrus"
)

// Fetcher refreshes token price and market cap from the Helius DAS API.
// Refreshes are rate-limited by a TTL; failures retain the previous values.
type Fetcher struct {
	url        string
	apiKey     string
	mint       string
	ttl        time.Duration
	httpClient *http.Client
	logger     *logrus.Logger
	state      *dashboard.State

	mu          sync.Mutex
	lastRefresh time.Time
	now         func() time.Time
}

// FetcherConfig contains market data fetcher configuration
type FetcherConfig struct {
	URL     string
	APIKey  string
	Mint    string
	TTL     time.Duration
	Timeout time.Duration
}

// assetResponse mirrors the parts of the Helius getAsset reply we read
type assetResponse struct {
	Result struct {
		TokenInfo struct {
			Supply    *float64 `json:"supply"`
			Decimals  int      `json:"decimals"`
			PriceInfo struct {
				PricePerToken float64 `json:"price_per_token"`
			} `json:"price_info"`
		} `json:"token_info"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewFetcher creates a market data fetcher writing into state
func NewFetcher(cfg FetcherConfig, state *dashboard.State, logger *logrus.Logger) *Fetcher {
	if cfg.TTL == 0 {
		cfg.TTL = config.DefaultMarketCacheTTLSec * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}

	return &Fetcher{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		mint:       cfg.Mint,
		ttl:        cfg.TTL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		state:      state,
		now:        time.Now,
	}
}

// Refresh updates price and market cap in the dashboard state. It is a no-op
// inside the cache TTL or without an API key, and never returns an error to
// the caller: failures are logged and the stale values retained.
func (f *Fetcher) Refresh(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.now().Sub(f.lastRefresh) < f.ttl {
		return
	}
	if f.apiKey == "" {
		// No credential configured; keep whatever we have
		return
	}

	price, marketCap, err := f.fetch(ctx)
	if err != nil {
		f.logger.WithError(err).Warn("Market data refresh failed, keeping stale values")
		return
	}

	f.state.SetMarketData(
		utils.RoundTo(price, config.PriceDecimals),
		utils.RoundTo(marketCap, config.MarketCapDecimals),
	)
	f.lastRefresh = f.now()

	f.logger.WithFields(logrus.Fields{
		"price_usd":      price,
		"market_cap_usd": marketCap,
	}).Debug("Market data refreshed")
}

// fetch performs a single getAsset call and derives the market cap from the
// price and the decimal-adjusted supply
func (f *Fetcher) fetch(ctx context.Context) (float64, float64, error) {
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      "1",
		"method":  "getAsset",
		"params": map[string]interface{}{
			"id":             f.mint,
			"displayOptions": map[string]interface{}{"showFungibleTokens": true},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to marshal getAsset request: %w", err)
	}

	url := f.url + "?api-key=" + f.apiKey
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("getAsset request failed: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(responseBody))
	}

	var asset assetResponse
	if err := json.Unmarshal(responseBody, &asset); err != nil {
		return 0, 0, fmt.Errorf("failed to unmarshal getAsset response: %w", err)
	}
	if asset.Error != nil {
		return 0, 0, fmt.Errorf("getAsset error %d: %s", asset.Error.Code, asset.Error.Message)
	}

	info := asset.Result.TokenInfo
	price := info.PriceInfo.PricePerToken

	var supply float64
	if info.Supply != nil {
		supply = *info.Supply
	}
	adjustedSupply := supply / math.Pow(10, float64(info.Decimals))

	return price, price * adjustedSupply, nil
}
