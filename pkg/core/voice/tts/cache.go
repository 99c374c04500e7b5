package tts

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/kisansetu/voicecore/pkg/core/types"
)

const (
	// DefaultCacheSize is the number of clips kept.
	DefaultCacheSize = 100
	// CacheKeyPrefix is how many leading characters of the text form the key.
	CacheKeyPrefix = 100
	// MaxCacheableText is the exclusive upper bound on cached text length.
	MaxCacheableText = 200
	// FlightTimeout bounds a shared synthesis once it no longer follows any
	// single caller's context.
	FlightTimeout = 30 * time.Second
)

type cacheKey struct {
	lang   types.Language
	prefix string
}

func (k cacheKey) String() string {
	return string(k.lang) + "\x00" + k.prefix
}

// Cache is a process-wide LRU of synthesized clips with get-or-compute
// semantics: concurrent misses for the same key share one provider call.
type Cache struct {
	entries *lru.Cache[cacheKey, *Synthesis]
	group   singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64

	afterMiss func() // test hook, runs between the first lookup and the flight
}

// NewCache creates a cache holding up to size clips.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[cacheKey, *Synthesis](size)
	if err != nil {
		return nil, fmt.Errorf("create tts cache: %w", err)
	}
	return &Cache{entries: entries}, nil
}

// Cacheable reports whether text is short enough to be cached.
func Cacheable(text string) bool {
	return len([]rune(text)) < MaxCacheableText
}

func keyFor(lang types.Language, text string) cacheKey {
	r := []rune(text)
	if len(r) > CacheKeyPrefix {
		r = r[:CacheKeyPrefix]
	}
	return cacheKey{lang: lang, prefix: string(r)}
}

// Get returns a cached clip.
func (c *Cache) Get(lang types.Language, text string) (*Synthesis, bool) {
	if !Cacheable(text) {
		return nil, false
	}
	return c.entries.Get(keyFor(lang, text))
}

// GetOrSynthesize returns the cached clip for (lang, text) or runs compute
// once for all concurrent callers and stores a successful result. Long texts
// bypass the cache entirely. hit reports whether the clip came from cache.
func (c *Cache) GetOrSynthesize(ctx context.Context, lang types.Language, text string, compute func(context.Context) (*Synthesis, error)) (syn *Synthesis, hit bool, err error) {
	if !Cacheable(text) {
		syn, err = compute(ctx)
		return syn, false, err
	}

	key := keyFor(lang, text)
	if v, ok := c.entries.Get(key); ok {
		c.hits.Add(1)
		return v, true, nil
	}
	if c.afterMiss != nil {
		c.afterMiss()
	}

	// The flight is detached from the caller that started it so one
	// disconnect does not fail the other callers waiting on the same key.
	ch := c.group.DoChan(key.String(), func() (any, error) {
		if v, ok := c.entries.Get(key); ok {
			return flight{syn: v, hit: true}, nil
		}
		c.misses.Add(1)
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), FlightTimeout)
		defer cancel()
		v, err := compute(flightCtx)
		if err != nil {
			return nil, err
		}
		if v != nil && len(v.Audio) > 0 {
			c.entries.Add(key, v)
		}
		return flight{syn: v}, nil
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, false, r.Err
		}
		f := r.Val.(flight)
		if f.hit {
			c.hits.Add(1)
		}
		return f.syn, f.hit, nil
	}
}

type flight struct {
	syn *Synthesis
	hit bool
}

// Len returns the number of cached clips.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Stats returns hit and miss counters.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
