package server

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// RateLimiter hands out one token bucket per client address. Idle buckets
// expire from the cache so the set stays bounded.
type RateLimiter struct {
	mu    sync.Mutex
	cache *gocache.Cache
	rps   rate.Limit
	burst int
}

// NewRateLimiter builds a limiter allowing rps requests per second with the
// given burst per client.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		cache: gocache.New(10*time.Minute, 15*time.Minute),
		rps:   rate.Limit(rps),
		burst: burst,
	}
}

// Allow reports whether the client may make another request now
func (rl *RateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	v, found := rl.cache.Get(client)
	if !found {
		v = rate.NewLimiter(rl.rps, rl.burst)
		rl.cache.Set(client, v, gocache.DefaultExpiration)
	}
	rl.mu.Unlock()
	return v.(*rate.Limiter).Allow()
}
