// Package rates supplies fiat->settlement-asset exchange rates. The Client
// fetches live quotes from a market-data API; the StaticProvider serves a
// fixed table and doubles as the fallback when no API key is configured.
package rates

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	httpClient "github.com/tesseralabs/tessera-api/internal/client/http"
	"github.com/tesseralabs/tessera-api/internal/logger"
)

const (
	defaultBaseURL = "https://pro-api.coinmarketcap.com"
	defaultTimeout = 10 * time.Second
	cacheTTL       = time.Minute
)

// StaticProvider serves rates from a fixed table keyed by fiat currency and
// settlement asset.
type StaticProvider struct {
	table map[string]map[string]*big.Rat
}

// NewStaticProvider creates a provider over the given table
func NewStaticProvider(table map[string]map[string]*big.Rat) *StaticProvider {
	return &StaticProvider{table: table}
}

// DefaultTable returns the built-in rate table used when no market-data API
// is configured.
func DefaultTable() map[string]map[string]*big.Rat {
	return map[string]map[string]*big.Rat{
		"USD": {
			"native": big.NewRat(1, 2500), // 2500 USD per unit
			"USDC":   big.NewRat(1, 1),
			"USDT":   big.NewRat(1, 1),
		},
		"EUR": {
			"native": big.NewRat(1, 2300),
			"USDC":   big.NewRat(108, 100),
			"USDT":   big.NewRat(108, 100),
		},
	}
}

// Rate returns settlement units per fiat major unit
func (p *StaticProvider) Rate(ctx context.Context, fiatCurrency, settlementAsset string) (*big.Rat, error) {
	assets, ok := p.table[fiatCurrency]
	if !ok {
		return nil, fmt.Errorf("unsupported fiat currency %q", fiatCurrency)
	}
	rate, ok := assets[settlementAsset]
	if !ok {
		return nil, fmt.Errorf("no rate for asset %q in %s", settlementAsset, fiatCurrency)
	}
	return new(big.Rat).Set(rate), nil
}

// Client fetches live quotes from the market-data API and caches them
// briefly. On any fetch failure it falls back to the static table, logging a
// warning, so quoting keeps working through upstream outages.
type Client struct {
	apiKey     string
	httpClient *httpClient.HTTPClient
	fallback   *StaticProvider

	mu    sync.Mutex
	cache map[string]cachedRate
}

type cachedRate struct {
	rate      *big.Rat
	fetchedAt time.Time
}

type quoteResponse struct {
	Data map[string][]struct {
		Symbol string `json:"symbol"`
		Quote  map[string]struct {
			Price float64 `json:"price"`
		} `json:"quote"`
	} `json:"data"`
}

// NewClient creates a market-data client with the static table as fallback
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey: apiKey,
		httpClient: httpClient.NewHTTPClient(
			httpClient.WithBaseURL(defaultBaseURL),
			httpClient.WithTimeout(defaultTimeout),
			httpClient.WithRetryConfig(httpClient.DefaultRetryConfig()),
			httpClient.WithDefaultHeader("Accept", "application/json"),
		),
		fallback: NewStaticProvider(DefaultTable()),
	}
}

// Rate returns settlement units per fiat major unit, live when possible
func (c *Client) Rate(ctx context.Context, fiatCurrency, settlementAsset string) (*big.Rat, error) {
	if c.apiKey == "" {
		return c.fallback.Rate(ctx, fiatCurrency, settlementAsset)
	}

	key := fiatCurrency + "/" + settlementAsset
	c.mu.Lock()
	cached, ok := c.cache[key]
	c.mu.Unlock()
	if ok && time.Since(cached.fetchedAt) < cacheTTL {
		return new(big.Rat).Set(cached.rate), nil
	}

	rate, err := c.fetchRate(ctx, fiatCurrency, settlementAsset)
	if err != nil {
		logger.Warn("Live rate fetch failed, using static table",
			zap.String("fiat", fiatCurrency),
			zap.String("asset", settlementAsset),
			zap.Error(err),
		)
		return c.fallback.Rate(ctx, fiatCurrency, settlementAsset)
	}

	c.mu.Lock()
	if c.cache == nil {
		c.cache = make(map[string]cachedRate)
	}
	c.cache[key] = cachedRate{rate: rate, fetchedAt: time.Now()}
	c.mu.Unlock()

	return new(big.Rat).Set(rate), nil
}

func (c *Client) fetchRate(ctx context.Context, fiatCurrency, settlementAsset string) (*big.Rat, error) {
	symbol := settlementAsset
	if symbol == "native" {
		symbol = "ETH"
	}

	path := fmt.Sprintf("/v2/cryptocurrency/quotes/latest?symbol=%s&convert=%s", symbol, fiatCurrency)
	resp, err := c.httpClient.Get(ctx, path, httpClient.WithHeader("X-CMC_PRO_API_KEY", c.apiKey))
	if err != nil {
		return nil, errors.Wrap(err, "market-data request failed")
	}

	var decoded quoteResponse
	if err := c.httpClient.ProcessJSONResponse(resp, &decoded); err != nil {
		return nil, errors.Wrap(err, "failed to decode market-data response")
	}

	entries, ok := decoded.Data[symbol]
	if !ok || len(entries) == 0 {
		return nil, fmt.Errorf("no quote data for symbol %s", symbol)
	}
	fiat, ok := entries[0].Quote[fiatCurrency]
	if !ok || fiat.Price <= 0 {
		return nil, fmt.Errorf("no %s quote for symbol %s", fiatCurrency, symbol)
	}

	// API returns fiat per asset; the provider contract is assets per fiat.
	price := new(big.Rat).SetFloat64(fiat.Price)
	if price == nil || price.Sign() <= 0 {
		return nil, fmt.Errorf("invalid price %v for symbol %s", fiat.Price, symbol)
	}
	return price.Inv(price), nil
}
