// Package cache stores settled verification verdicts keyed by reference text.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"

	"github.com/factchecker/citecheck/internal/config"
	"github.com/factchecker/citecheck/internal/models"
)

// APIVersion is part of every key so that verdicts from older scoring rules
// are never served after an upgrade.
const APIVersion = "1.0"

// Key derives the cache key for a raw reference string.
func Key(text string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(text))))
	return "verify:" + APIVersion + ":" + hex.EncodeToString(sum[:])
}

// Stats counts cache traffic for one run. Callers own the value and pass it
// into every Get and Set; it is safe for concurrent use and may be nil.
type Stats struct {
	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
}

func (s *Stats) Hits() int64   { return s.hits.Load() }
func (s *Stats) Misses() int64 { return s.misses.Load() }
func (s *Stats) Sets() int64   { return s.sets.Load() }

func (s *Stats) hit() {
	if s != nil {
		s.hits.Add(1)
	}
}

func (s *Stats) miss() {
	if s != nil {
		s.misses.Add(1)
	}
}

func (s *Stats) set() {
	if s != nil {
		s.sets.Add(1)
	}
}

// Store is the persistent tier. Implementations return nil, nil on a miss.
type Store interface {
	GetCacheEntry(ctx context.Context, key string, now time.Time) ([]byte, error)
	PutCacheEntry(ctx context.Context, key string, value []byte, expiresAt time.Time) error
	DeleteCacheEntries(ctx context.Context) (int64, error)
	CountCacheEntries(ctx context.Context, now time.Time) (int, error)
	PurgeExpiredCache(ctx context.Context, now time.Time) (int64, error)
}

// Info describes the current cache contents.
type Info struct {
	Enabled         bool   `json:"enabled"`
	MemoryEntries   int    `json:"memory_entries"`
	PersistentCount int    `json:"persistent_entries"`
	TTL             string `json:"ttl"`
	MaxEntries      int    `json:"max_entries"`
	APIVersion      string `json:"api_version"`
}

// Cache layers an expiring in-memory LRU over an optional persistent store.
type Cache struct {
	lru   *expirable.LRU[string, models.VerificationResult]
	store Store
	ttl   time.Duration
	max   int
	now   func() time.Time
}

// New creates a cache. A nil store keeps the cache memory-only.
func New(cfg config.CacheConfig, store Store) *Cache {
	if !cfg.Persistent {
		store = nil
	}
	return &Cache{
		lru:   expirable.NewLRU[string, models.VerificationResult](cfg.MaxEntries, nil, cfg.TTL),
		store: store,
		ttl:   cfg.TTL,
		max:   cfg.MaxEntries,
		now:   time.Now,
	}
}

// Get looks up a verdict for text. The returned result still carries the
// index and text of the run that stored it; callers overwrite both.
func (c *Cache) Get(ctx context.Context, text string, stats *Stats) (models.VerificationResult, bool) {
	if c == nil {
		return models.VerificationResult{}, false
	}
	key := Key(text)

	if r, ok := c.lru.Get(key); ok {
		stats.hit()
		return r, true
	}

	if c.store != nil {
		data, err := c.store.GetCacheEntry(ctx, key, c.now())
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Persistent cache lookup failed")
		} else if data != nil {
			var r models.VerificationResult
			if err := json.Unmarshal(data, &r); err == nil {
				c.lru.Add(key, r)
				stats.hit()
				return r, true
			}
			log.Warn().Str("key", key).Msg("Discarding undecodable cache entry")
		}
	}

	stats.miss()
	return models.VerificationResult{}, false
}

// Set stores a settled verdict. Error and pending results are ignored.
func (c *Cache) Set(ctx context.Context, text string, result models.VerificationResult, stats *Stats) {
	if c == nil || !result.Status.Cacheable() {
		return
	}
	key := Key(text)
	c.lru.Add(key, result)
	stats.set()

	if c.store == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := c.store.PutCacheEntry(ctx, key, data, c.now().Add(c.ttl)); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Persistent cache write failed")
	}
}

// Clear drops every entry from both tiers and returns the number of
// persistent rows removed.
func (c *Cache) Clear(ctx context.Context) (int64, error) {
	if c == nil {
		return 0, nil
	}
	c.lru.Purge()
	if c.store == nil {
		return 0, nil
	}
	return c.store.DeleteCacheEntries(ctx)
}

// Purge removes expired persistent rows.
func (c *Cache) Purge(ctx context.Context) (int64, error) {
	if c == nil || c.store == nil {
		return 0, nil
	}
	return c.store.PurgeExpiredCache(ctx, c.now())
}

// Info reports the cache size and settings.
func (c *Cache) Info(ctx context.Context) (Info, error) {
	if c == nil {
		return Info{APIVersion: APIVersion}, nil
	}
	info := Info{
		Enabled:       true,
		MemoryEntries: c.lru.Len(),
		TTL:           c.ttl.String(),
		MaxEntries:    c.max,
		APIVersion:    APIVersion,
	}
	if c.store != nil {
		n, err := c.store.CountCacheEntries(ctx, c.now())
		if err != nil {
			return info, err
		}
		info.PersistentCount = n
	}
	return info, nil
}
