package marketdata

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/finchat-labs/finflow/capability"
)

// DefaultQuoteTTL keeps a cached quote fresh enough for conversational use.
const DefaultQuoteTTL = 30 * time.Second

// Cache fronts a MarketData source with Redis. Cache trouble never fails a
// request: a miss, a poisoned entry, or a dead Redis all degrade to the
// backing source, and writes are best effort.
type Cache struct {
	backing capability.MarketData
	rdb     *redis.Client
	ttl     time.Duration
}

// CacheOption configures the cache.
type CacheOption func(*Cache)

// WithTTL overrides the cache entry lifetime.
func WithTTL(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// NewCache wraps backing with a Redis quote cache.
func NewCache(backing capability.MarketData, rdb *redis.Client, opts ...CacheOption) *Cache {
	c := &Cache{backing: backing, rdb: rdb, ttl: DefaultQuoteTTL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Quote implements capability.MarketData.
func (c *Cache) Quote(ctx context.Context, symbol string) (capability.Quote, error) {
	key := quoteKey(symbol)

	if data, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var quote capability.Quote
		if jerr := json.Unmarshal(data, &quote); jerr == nil {
			return quote, nil
		}
		// Poisoned entry; refetch below and overwrite it.
	}

	quote, err := c.backing.Quote(ctx, symbol)
	if err != nil {
		return capability.Quote{}, err
	}

	if data, err := json.Marshal(quote); err == nil {
		c.rdb.Set(ctx, key, data, c.ttl)
	}
	return quote, nil
}

func quoteKey(symbol string) string {
	return "quote:" + symbol
}

var _ capability.MarketData = (*Cache)(nil)
