// Package fiat prices the reference token in a fiat currency.
package fiat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/buywatcher/internal/indexing/metrics"
)

// ErrNoPrice is returned when the response has no price for the coin.
var ErrNoPrice = errors.New("price missing from response")

// Config configures a CoinGecko source.
type Config struct {
	URL        string
	CoinID     string
	VsCurrency string
	TTL        time.Duration
	Timeout    time.Duration
}

type cache struct {
	value       decimal.Decimal
	lastUpdated time.Time
}

// CoinGecko reads the simple/price endpoint and caches the result for TTL.
type CoinGecko struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time
	log        *slog.Logger

	mu    sync.Mutex
	cache cache
}

func NewCoinGecko(cfg Config) *CoinGecko {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.VsCurrency == "" {
		cfg.VsCurrency = "usd"
	}
	return &CoinGecko{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
		log:        slog.Default().With("component", "fiat", "coin", cfg.CoinID),
	}
}

// WithClock overrides the time source used for cache expiry.
func (c *CoinGecko) WithClock(now func() time.Time) *CoinGecko {
	c.now = now
	return c
}

// Price returns the cached price while fresh. After expiry it refetches; a failed
// fetch returns the last cached value, which is zero before the first success.
func (c *CoinGecko) Price(ctx context.Context) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !c.cache.lastUpdated.IsZero() && now.Sub(c.cache.lastUpdated) < c.cfg.TTL {
		return c.cache.value, nil
	}

	price, err := c.fetch(ctx)
	if err != nil {
		c.log.Warn("fiat price fetch failed, using cached value", "cached", c.cache.value.String(), "error", err)
		return c.cache.value, nil
	}

	c.cache = cache{value: price, lastUpdated: now}
	metrics.FiatPrice.Set(price.InexactFloat64())
	return price, nil
}

func (c *CoinGecko) fetch(ctx context.Context) (decimal.Decimal, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("ids", c.cfg.CoinID)
	q.Set("vs_currencies", c.cfg.VsCurrency)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return decimal.Zero, fmt.Errorf("coingecko status %d: %s", resp.StatusCode, body)
	}

	// {"meridian-mst": {"usd": 0.0123}}
	var out map[string]map[string]decimal.Decimal
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return decimal.Zero, fmt.Errorf("decode response: %w", err)
	}
	price, ok := out[c.cfg.CoinID][c.cfg.VsCurrency]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s/%s", ErrNoPrice, c.cfg.CoinID, c.cfg.VsCurrency)
	}
	return price, nil
}

// Static is a fixed price, configured with fiat.provider static.
type Static decimal.Decimal

func (s Static) Price(context.Context) (decimal.Decimal, error) {
	return decimal.Decimal(s), nil
}
