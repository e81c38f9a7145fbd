package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/finchat-labs/finflow/capability"
)

func cacheFixture(t *testing.T) (*Cache, *capability.FakeMarket, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	backing := &capability.FakeMarket{Quotes: map[string]capability.Quote{
		"005930": {Price: 71500, ChangePct: 2.1, Volume: 12345678, Sector: "전기전자"},
	}}
	return NewCache(backing, rdb), backing, mr
}

func TestCacheServesRepeatsFromRedis(t *testing.T) {
	cache, backing, mr := cacheFixture(t)
	ctx := context.Background()

	first, err := cache.Quote(ctx, "005930")
	if err != nil {
		t.Fatalf("first Quote() error: %v", err)
	}
	second, err := cache.Quote(ctx, "005930")
	if err != nil {
		t.Fatalf("second Quote() error: %v", err)
	}
	if first != second {
		t.Errorf("cached quote %+v differs from source %+v", second, first)
	}
	if got := len(backing.Calls); got != 1 {
		t.Errorf("backing hit %d times, want 1", got)
	}
	if !mr.Exists("quote:005930") {
		t.Error("quote not written to the cache")
	}
}

func TestCacheExpires(t *testing.T) {
	cache, backing, mr := cacheFixture(t)
	ctx := context.Background()

	if _, err := cache.Quote(ctx, "005930"); err != nil {
		t.Fatalf("Quote() error: %v", err)
	}
	mr.FastForward(DefaultQuoteTTL + time.Second)

	if _, err := cache.Quote(ctx, "005930"); err != nil {
		t.Fatalf("Quote() after expiry error: %v", err)
	}
	if got := len(backing.Calls); got != 2 {
		t.Errorf("backing hit %d times, want a refetch after expiry", got)
	}
}

func TestCachePoisonedEntryRefetched(t *testing.T) {
	cache, backing, mr := cacheFixture(t)
	ctx := context.Background()

	if err := mr.Set("quote:005930", "not json"); err != nil {
		t.Fatalf("seed poisoned entry: %v", err)
	}

	quote, err := cache.Quote(ctx, "005930")
	if err != nil {
		t.Fatalf("Quote() error: %v", err)
	}
	if quote.Price != 71500 {
		t.Errorf("Price = %v, want the backing quote", quote.Price)
	}
	if got := len(backing.Calls); got != 1 {
		t.Errorf("backing hit %d times, want 1", got)
	}
	if data, err := mr.Get("quote:005930"); err != nil || data == "not json" {
		t.Errorf("poisoned entry not overwritten: %q, %v", data, err)
	}
}

func TestCacheDegradesWhenRedisDown(t *testing.T) {
	cache, backing, mr := cacheFixture(t)
	mr.Close()

	quote, err := cache.Quote(context.Background(), "005930")
	if err != nil {
		t.Fatalf("Quote() with a dead cache error: %v", err)
	}
	if quote.Price != 71500 {
		t.Errorf("Price = %v, want the backing quote", quote.Price)
	}
	if got := len(backing.Calls); got != 1 {
		t.Errorf("backing hit %d times, want 1", got)
	}
}

func TestCachePropagatesSourceErrors(t *testing.T) {
	cache, _, _ := cacheFixture(t)

	_, err := cache.Quote(context.Background(), "999999")
	if !errors.Is(err, capability.ErrSymbolUnlisted) {
		t.Errorf("error = %v, want ErrSymbolUnlisted from the backing source", err)
	}
}
