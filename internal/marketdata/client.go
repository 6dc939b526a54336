package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/bastion/backend/internal/contracts"
	"github.com/wonny/bastion/backend/pkg/config"
	"github.com/wonny/bastion/backend/pkg/httputil"
	"github.com/wonny/bastion/backend/pkg/logger"
	"github.com/wonny/bastion/backend/pkg/redis"
)

// Client fetches market/account snapshots from the quotes service.
// ⭐ SSOT: 시세 스냅샷 수집은 이 클라이언트에서만
//
// 조회 순서: Redis 캐시 → REST JSON → HTML 폴백.
// 스트림이 살아있으면 가격만 스트림 틱으로 덮어씀
type Client struct {
	cfg        config.QuotesConfig
	http       *httputil.Client
	limiter    *rate.Limiter // 프로세스 로컬 보조 제한 (Redis 제한과 별개)
	cache      *redis.Cache  // nil이면 캐싱 없이 동작
	priceCache *PriceCache   // nil이면 스트림 미사용
	logger     *logger.Logger
}

func NewClient(cfg config.QuotesConfig, redisClient *redis.Client, limiter *redis.RateLimiter, priceCache *PriceCache, log *logger.Logger) *Client {
	httpClient := httputil.New(log, cfg.HTTPTimeout)
	if limiter != nil {
		httpClient = httpClient.WithRateLimiter(limiter, redis.QuotesRateLimit)
	}

	var snapCache *redis.Cache
	if redisClient != nil && redisClient.Enabled() {
		snapCache = redis.NewCache(redisClient, "quotes:snapshot")
	}

	return &Client{
		cfg:        cfg,
		http:       httpClient,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RateBurst),
		cache:      snapCache,
		priceCache: priceCache,
		logger:     log,
	}
}

var _ contracts.SnapshotProvider = (*Client)(nil)

// snapshotResponse is the quotes service wire format.
// 포인터 필드가 null이면 결측
type snapshotResponse struct {
	Symbol         string   `json:"symbol"`
	Price          *float64 `json:"price"`
	Volatility     *float64 `json:"volatility"`
	MarketTrend    *float64 `json:"market_trend"`
	PositionQty    int64    `json:"position_qty"`
	Concentration  float64  `json:"concentration"`
	PortfolioValue *float64 `json:"portfolio_value"`
}

// Snapshot implements contracts.SnapshotProvider
func (c *Client) Snapshot(ctx context.Context, symbol string) (*contracts.MarketSnapshot, error) {
	if c.cache != nil {
		var cached contracts.MarketSnapshot
		hit, err := c.cache.Get(ctx, symbol, &cached)
		if err != nil {
			c.logger.WithError(err).Debug("Snapshot cache read failed")
		}
		if hit {
			c.overlayStreamPrice(&cached)
			return &cached, nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	snap, err := c.fetchJSON(ctx, symbol)
	if err != nil {
		c.logger.WithError(err).WithField("symbol", symbol).
			Warn("Snapshot JSON fetch failed, trying HTML fallback")

		snap, err = c.fetchHTML(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("snapshot fetch failed for %s: %w", symbol, err)
		}
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, symbol, snap, c.cfg.CacheTTL); err != nil {
			c.logger.WithError(err).Debug("Snapshot cache write failed")
		}
	}

	c.overlayStreamPrice(snap)
	return snap, nil
}

// fetchJSON calls the primary REST endpoint
func (c *Client) fetchJSON(ctx context.Context, symbol string) (*contracts.MarketSnapshot, error) {
	url := fmt.Sprintf("%s/v1/snapshot/%s", c.cfg.BaseURL, symbol)

	resp, err := c.http.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body failed: %w", err)
	}

	var wire snapshotResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("decode snapshot failed: %w", err)
	}

	snap := &contracts.MarketSnapshot{
		Symbol:        symbol,
		PositionQty:   wire.PositionQty,
		Concentration: wire.Concentration,
	}
	if wire.Price != nil {
		snap.Price, snap.HasPrice = *wire.Price, true
	}
	if wire.Volatility != nil {
		snap.Volatility, snap.HasVolatility = *wire.Volatility, true
	}
	if wire.MarketTrend != nil {
		snap.MarketTrend, snap.HasTrend = *wire.MarketTrend, true
	}
	if wire.PortfolioValue != nil {
		snap.PortfolioValue, snap.HasPortfolioData = *wire.PortfolioValue, true
	}

	return snap, nil
}

// fetchHTML scrapes the legacy quote page when the JSON endpoint is down
func (c *Client) fetchHTML(ctx context.Context, symbol string) (*contracts.MarketSnapshot, error) {
	url := fmt.Sprintf("%s/quote/%s", c.cfg.BaseURL, symbol)

	resp, err := c.http.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("HTML request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body failed: %w", err)
	}

	snap, err := parseQuoteHTML(string(body), symbol)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// overlayStreamPrice replaces the snapshot price with a fresher stream tick
func (c *Client) overlayStreamPrice(snap *contracts.MarketSnapshot) {
	if c.priceCache == nil {
		return
	}

	tick, ok := c.priceCache.Get(snap.Symbol)
	if !ok || tick.IsStale {
		return
	}

	snap.Price = tick.Price
	snap.HasPrice = true
}

// WarmUp pre-fetches snapshots for a symbol list (스트림 구독 준비용)
func (c *Client) WarmUp(ctx context.Context, symbols []string) {
	for _, symbol := range symbols {
		if _, err := c.Snapshot(ctx, symbol); err != nil {
			c.logger.WithError(err).WithField("symbol", symbol).Debug("Snapshot warm-up failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(50 * time.Millisecond):
		}
	}
}
