// Package ratelimit provides per-client request budgets backed by token
// buckets.
package ratelimit

import (
	"sync"
	"time"
)

// bucketIdleTimeout is how long an untouched bucket survives before the
// cleanup pass drops it.
const bucketIdleTimeout = time.Hour

// tokenBucket is one client+endpoint budget: capacity tokens that refill
// continuously at refillRate per second.
type tokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	refillRate float64
	tokens     float64
	lastRefill time.Time
}

func newTokenBucket(capacity int, refillRate float64) *tokenBucket {
	return &tokenBucket{
		capacity:   float64(capacity),
		refillRate: refillRate,
		tokens:     float64(capacity),
		lastRefill: time.Now(),
	}
}

// refill credits tokens for the time elapsed since the last refill. The
// caller must hold mu.
func (b *tokenBucket) refill(now time.Time) {
	b.tokens = min(b.capacity, b.tokens+now.Sub(b.lastRefill).Seconds()*b.refillRate)
	b.lastRefill = now
}

// take consumes one token if available. It reports the tokens left after
// the attempt and the time at which the bucket is full again.
func (b *tokenBucket) take() (allowed bool, remaining int, reset time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.refill(now)
	if b.tokens >= 1 {
		b.tokens--
		allowed = true
	}

	reset = now
	if b.tokens < b.capacity {
		refillSeconds := (b.capacity - b.tokens) / b.refillRate
		reset = now.Add(time.Duration(refillSeconds * float64(time.Second)))
	}
	return allowed, int(b.tokens), reset
}

// Info describes the budget consulted for one request. Limit 0 means the
// request was not metered (disabled, whitelisted, or an unlimited route).
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// Config is the limiter's full configuration, usually built by LoadConfig.
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	CleanupInterval time.Duration
	Whitelist       map[string]bool
	Blacklist       map[string]bool
	EndpointConfigs []EndpointConfig
}

// Limiter tracks one token bucket per client+endpoint+method and answers
// whether a request fits its budget.
type Limiter struct {
	config *Config

	mu         sync.Mutex
	buckets    map[string]*tokenBucket
	lastAccess map[string]time.Time

	cleanupTicker *time.Ticker
	cleanupStop   chan struct{}
}

// NewLimiter creates a limiter and, when cleanup is configured, starts the
// background pass that drops idle buckets. A nil config gets permissive
// defaults.
func NewLimiter(config *Config) *Limiter {
	if config == nil {
		config = &Config{
			Enabled:         true,
			DefaultLimit:    1000,
			DefaultWindow:   time.Minute,
			CleanupInterval: 5 * time.Minute,
		}
	}

	l := &Limiter{
		config:     config,
		buckets:    make(map[string]*tokenBucket),
		lastAccess: make(map[string]time.Time),
	}
	if config.Enabled && config.CleanupInterval > 0 {
		l.cleanupTicker = time.NewTicker(config.CleanupInterval)
		l.cleanupStop = make(chan struct{})
		go l.cleanupLoop()
	}
	return l
}

// Allow reports whether one more request from clientID fits the budget for
// endpoint+method, with limit metadata for response headers.
func (l *Limiter) Allow(clientID, endpoint, method string) (bool, Info) {
	if !l.config.Enabled || l.config.Whitelist[clientID] {
		return true, Info{Allowed: true}
	}
	if l.config.Blacklist[clientID] {
		return false, Info{}
	}

	ec := MatchEndpoint(endpoint, method, l.config.EndpointConfigs)
	if ec == nil {
		ec = &EndpointConfig{Limit: l.config.DefaultLimit, Window: l.config.DefaultWindow}
	}
	if ec.Limit <= 0 {
		return true, Info{Allowed: true}
	}

	allowed, remaining, reset := l.bucket(clientID+":"+endpoint+":"+method, ec).take()

	info := Info{
		Allowed:   allowed,
		Limit:     ec.Limit,
		Remaining: remaining,
		ResetTime: reset,
	}
	if !allowed {
		if retry := time.Until(reset); retry > 0 {
			info.RetryAfter = retry
		}
	}
	return allowed, info
}

// bucket returns the budget for key, creating it on first sight, and marks
// it accessed for the cleanup pass.
func (l *Limiter) bucket(key string, ec *EndpointConfig) *tokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		capacity := ec.Burst
		if capacity <= 0 {
			capacity = ec.Limit
		}
		b = newTokenBucket(capacity, float64(ec.Limit)/ec.Window.Seconds())
		l.buckets[key] = b
	}
	l.lastAccess[key] = time.Now()
	return b
}

func (l *Limiter) cleanupLoop() {
	for {
		select {
		case <-l.cleanupTicker.C:
			l.dropIdleBuckets(time.Now().Add(-bucketIdleTimeout))
		case <-l.cleanupStop:
			return
		}
	}
}

// dropIdleBuckets removes buckets untouched since the cutoff so one-off
// clients do not accumulate forever.
func (l *Limiter) dropIdleBuckets(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, last := range l.lastAccess {
		if last.Before(cutoff) {
			delete(l.buckets, key)
			delete(l.lastAccess, key)
		}
	}
}

// Stop ends the background cleanup pass.
func (l *Limiter) Stop() {
	if l.cleanupTicker != nil {
		l.cleanupTicker.Stop()
		close(l.cleanupStop)
	}
}
