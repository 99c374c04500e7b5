// Package ratelimit is a single-process per-principal limiter: a token
// bucket for request rate plus a semaphore for in-flight requests.
package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sync"
	"time"
)

type Config struct {
	RPS   float64
	Burst int

	MaxConcurrentRequests int

	// Operational bounds for the in-memory map.
	MaxEntries int
	EntryTTL   time.Duration
}

type Limiter struct {
	cfg Config

	mu sync.Mutex
	m  map[string]*principalLimiter
}

type principalLimiter struct {
	mu sync.Mutex

	tb     tokenBucket
	sem    chan struct{}
	seenAt time.Time
}

type tokenBucket struct {
	tokens float64
	last   time.Time
}

func New(cfg Config) *Limiter {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10_000
	}
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = 30 * time.Minute
	}
	return &Limiter{
		cfg: cfg,
		m:   make(map[string]*principalLimiter),
	}
}

// PrincipalKeyFromAPIKey buckets a bearer key without keeping it in memory.
func PrincipalKeyFromAPIKey(apiKey string) string {
	return "k_" + digest(apiKey)
}

// PrincipalKeyFromIP buckets an anonymous caller, such as the mobile app,
// by client address.
func PrincipalKeyFromIP(ip string) string {
	return "ip_" + digest(ip)
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}

type Permit struct {
	release func()
}

func (p *Permit) Release() {
	if p == nil || p.release == nil {
		return
	}
	p.release()
	p.release = nil
}

type Decision struct {
	Allowed    bool
	RetryAfter int // seconds
	Permit     *Permit
}

// Acquire admits one request for principal. An allowed Decision carries a
// Permit the caller must release when the request finishes.
func (l *Limiter) Acquire(principal string, now time.Time) Decision {
	if principal == "" {
		principal = "anonymous"
	}
	pl := l.getOrCreate(principal, now)

	if l.cfg.RPS > 0 && l.cfg.Burst > 0 {
		if ok, retryAfter := pl.take(now, l.cfg.RPS, float64(l.cfg.Burst)); !ok {
			return Decision{RetryAfter: retryAfter}
		}
	}

	if l.cfg.MaxConcurrentRequests <= 0 {
		return Decision{Allowed: true, Permit: &Permit{release: func() {}}}
	}
	select {
	case pl.sem <- struct{}{}:
		return Decision{Allowed: true, Permit: &Permit{release: func() { <-pl.sem }}}
	default:
		return Decision{RetryAfter: 1}
	}
}

// Len reports how many principals are tracked.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

func (l *Limiter) getOrCreate(principal string, now time.Time) *principalLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if pl, ok := l.m[principal]; ok {
		pl.seenAt = now
		return pl
	}

	if len(l.m) >= l.cfg.MaxEntries {
		for k, v := range l.m {
			if now.Sub(v.seenAt) > l.cfg.EntryTTL {
				delete(l.m, k)
			}
		}
		// Still full: evict an arbitrary entry to keep memory bounded.
		if len(l.m) >= l.cfg.MaxEntries {
			for k := range l.m {
				delete(l.m, k)
				break
			}
		}
	}

	pl := &principalLimiter{
		sem:    make(chan struct{}, max(1, l.cfg.MaxConcurrentRequests)),
		seenAt: now,
	}
	l.m[principal] = pl
	return pl
}

func (pl *principalLimiter) take(now time.Time, rps, capacity float64) (bool, int) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.tb.last.IsZero() {
		pl.tb = tokenBucket{tokens: capacity, last: now}
	}
	if elapsed := now.Sub(pl.tb.last).Seconds(); elapsed > 0 {
		pl.tb.tokens = math.Min(capacity, pl.tb.tokens+elapsed*rps)
		pl.tb.last = now
	}

	if pl.tb.tokens >= 1 {
		pl.tb.tokens--
		return true, 0
	}
	return false, max(1, int(math.Ceil((1-pl.tb.tokens)/rps)))
}
