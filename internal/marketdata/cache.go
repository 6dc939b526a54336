package marketdata

import (
	"sync"
	"time"

	"github.com/wonny/bastion/backend/pkg/logger"
)

// PriceCache is an in-memory cache for real-time prices
// ⭐ SSOT: 실시간 가격 캐싱은 이 구조체에서만
type PriceCache struct {
	mu     sync.RWMutex
	prices map[string]*PriceTick
	ttl    time.Duration
	logger *logger.Logger
}

func NewPriceCache(ttl time.Duration, log *logger.Logger) *PriceCache {
	return &PriceCache{
		prices: make(map[string]*PriceTick),
		ttl:    ttl,
		logger: log,
	}
}

// Update stores a tick, rejecting data older than what is cached
func (c *PriceCache) Update(tick *PriceTick) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, exists := c.prices[tick.Symbol]
	if exists && tick.Timestamp.Before(existing.Timestamp) {
		c.logger.WithFields(map[string]interface{}{
			"symbol":   tick.Symbol,
			"new_time": tick.Timestamp,
			"old_time": existing.Timestamp,
		}).Debug("Rejected older price data")
		return false
	}

	tick.IsStale = time.Since(tick.Timestamp) > c.ttl
	c.prices[tick.Symbol] = tick
	return true
}

// Get retrieves the cached tick, flagging staleness against the TTL
func (c *PriceCache) Get(symbol string) (*PriceTick, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tick, exists := c.prices[symbol]
	if !exists {
		return nil, false
	}

	copied := *tick
	copied.IsStale = time.Since(tick.Timestamp) > c.ttl
	return &copied, true
}

// CleanStale removes ticks older than the TTL, returning the count removed
func (c *PriceCache) CleanStale() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for symbol, tick := range c.prices {
		if time.Since(tick.Timestamp) > c.ttl {
			delete(c.prices, symbol)
			removed++
		}
	}
	return removed
}

// Size returns the number of cached symbols
func (c *PriceCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.prices)
}
