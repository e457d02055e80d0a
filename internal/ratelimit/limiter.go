package ratelimit

import (
	"context"
	"os"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// API represents the different external APIs we interact with
type API string

const (
	// APIGuildWars2 represents the Guild Wars 2 items and commerce API
	APIGuildWars2 API = "gw2"
	// APIDataWars represents the datawars2 price history API
	APIDataWars API = "datawars"
	// APIHypixel represents the Hypixel Skyblock bazaar API
	APIHypixel API = "hypixel"
)

// APIs lists every API with a limiter.
var APIs = []API{APIGuildWars2, APIDataWars, APIHypixel}

// Limiter manages rate limits for different APIs
type Limiter struct {
	limiters map[API]*rate.Limiter
	mu       sync.RWMutex
}

var (
	instance *Limiter
	once     sync.Once
)

// GetLimiter returns the singleton rate limiter instance
func GetLimiter() *Limiter {
	once.Do(func() {
		instance = New()
	})
	return instance
}

// New creates a Limiter with the default limits. Most callers want the
// shared GetLimiter instance.
func New() *Limiter {
	l := &Limiter{
		limiters: make(map[API]*rate.Limiter),
	}
	l.initLimiters()
	return l
}

// initLimiters initializes rate limiters for each API with conservative defaults
func (l *Limiter) initLimiters() {
	// Tests hit local httptest servers, so never throttle them
	if os.Getenv("GO_TESTING") == "1" || isTestMode() {
		l.limiters[APIGuildWars2] = rate.NewLimiter(rate.Inf, 1)
		l.limiters[APIDataWars] = rate.NewLimiter(rate.Inf, 1)
		l.limiters[APIHypixel] = rate.NewLimiter(rate.Inf, 1)
		return
	}

	// GW2: 600 requests per minute per IP, bursts of up to 300 are tolerated
	l.limiters[APIGuildWars2] = rate.NewLimiter(rate.Limit(10), 10)

	// datawars2 publishes no limit; stay polite
	l.limiters[APIDataWars] = rate.NewLimiter(rate.Limit(5), 1)

	// Hypixel bazaar is a single snapshot endpoint refreshed every few seconds
	l.limiters[APIHypixel] = rate.NewLimiter(rate.Limit(1), 1)
}

// isTestMode checks if we're running in test mode
func isTestMode() bool {
	for _, arg := range os.Args {
		if strings.HasPrefix(arg, "-test.") {
			return true
		}
	}
	return false
}

// Set replaces the limit for api.
func (l *Limiter) Set(api API, limit rate.Limit, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limiters[api] = rate.NewLimiter(limit, burst)
}

// Wait blocks until the rate limiter permits an event for the given API
// It returns an error if the context is canceled before the event can proceed
func (l *Limiter) Wait(ctx context.Context, api API) error {
	l.mu.RLock()
	limiter, exists := l.limiters[api]
	l.mu.RUnlock()

	if !exists {
		return nil
	}

	return limiter.Wait(ctx)
}
