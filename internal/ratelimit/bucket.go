// Package ratelimit implements the interval token bucket used by the API
// gateway: tokens come back in whole refill periods, never continuously.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

type Config struct {
	Capacity     int
	RefillTokens int
	Period       time.Duration
}

// UnknownRemaining marks a decision made without consulting any bucket.
const UnknownRemaining = -1

type Decision struct {
	Allowed bool
	// Remaining is UnknownRemaining when the limiter failed open.
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether the client identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) Decision
}

type Bucket struct {
	mu         sync.Mutex
	tokens     int
	lastRefill time.Time
}

func newBucket(capacity int, now time.Time) *Bucket {
	return &Bucket{tokens: capacity, lastRefill: now}
}

// TryConsume refills by whole elapsed periods and then takes one token.
func (b *Bucket) TryConsume(cfg Config, now time.Time) Decision {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cfg.Period > 0 && cfg.RefillTokens > 0 {
		elapsed := now.Sub(b.lastRefill)
		if periods := int64(elapsed / cfg.Period); periods > 0 {
			b.tokens = refill(b.tokens, periods, cfg)
			b.lastRefill = b.lastRefill.Add(time.Duration(periods) * cfg.Period)
		}
	}

	if b.tokens > 0 {
		b.tokens--
		return Decision{Allowed: true, Remaining: b.tokens}
	}

	retry := b.lastRefill.Add(cfg.Period).Sub(now)
	if retry < 0 {
		retry = 0
	}
	return Decision{Allowed: false, Remaining: 0, RetryAfter: retry}
}

func refill(tokens int, periods int64, cfg Config) int {
	// Compare before multiplying so a long idle gap cannot overflow.
	if periods >= int64(cfg.Capacity) {
		return cfg.Capacity
	}
	added := periods * int64(cfg.RefillTokens)
	if int64(tokens)+added >= int64(cfg.Capacity) {
		return cfg.Capacity
	}
	return tokens + int(added)
}

// Registry holds one bucket per client key. Buckets are created full on first
// use and kept for the life of the process.
type Registry struct {
	cfg     Config
	buckets sync.Map
	now     func() time.Time
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg, now: time.Now}
}

func (r *Registry) Allow(_ context.Context, key string) Decision {
	now := r.now()
	b, ok := r.buckets.Load(key)
	if !ok {
		b, _ = r.buckets.LoadOrStore(key, newBucket(r.cfg.Capacity, now))
	}
	return b.(*Bucket).TryConsume(r.cfg, now)
}

func (r *Registry) Config() Config {
	return r.cfg
}
