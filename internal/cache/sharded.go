// Package cache provides a sharded, TTL-aware store for completed DNSSEC
// proofs, keyed by the hash of the (name, type) that was proved.
package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// Number of shards - power of 2 for fast modulo via bitmasking
	defaultShardCount = 256

	// Default cache size per shard
	defaultShardSize = 10000

	// Cleanup interval for expired entries
	cleanupInterval = 60 * time.Second
)

// Entry represents a cached, previously-built proof.
type Entry struct {
	// Proof holds the RFC 9102 AuthenticationChain bytes as returned by
	// proof.Builder.FinishProof.
	Proof []byte

	// ExpiresAt is computed from the builder's min_ttl at insertion time.
	ExpiresAt time.Time
	MinTTL    uint32

	// Hits is incremented on every successful Get.
	Hits atomic.Uint64

	// Query metadata, retained for ForEach/debugging.
	QName  string
	QType  uint16
	QClass uint16
}

// IsExpired reports whether the entry's TTL has elapsed.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// IsStale reports whether an expired entry is still inside the
// serve-stale grace window.
func (e *Entry) IsStale(maxStale time.Duration) bool {
	if !e.IsExpired() {
		return false
	}
	return time.Since(e.ExpiresAt) < maxStale
}

// shard holds a partition of the keyspace behind its own lock.
type shard struct {
	mu      sync.RWMutex
	entries map[uint64]*Entry
	maxSize int
}

// ShardedCache is a thread-safe, low-contention store of built proofs.
// The key is wire.HashQuery(name, qtype, class); ExpiresAt is derived from the
// builder's min_ttl, so callers that honour it get the TTL discipline
// downstream caches are expected to apply to a finished proof.
type ShardedCache struct {
	shards []*shard

	shardCount int
	shardMask  uint64

	serveStale   bool
	maxStaleTTL  time.Duration
	staleRefresh bool

	hits        atomic.Uint64
	misses      atomic.Uint64
	evictions   atomic.Uint64
	expirations atomic.Uint64

	stopCleanup chan struct{}
	cleanupDone sync.WaitGroup
}

// Config holds cache configuration.
type Config struct {
	MaxEntries int
	ShardCount int

	ServeStale   bool
	MaxStaleTTL  time.Duration
	StaleRefresh bool
}

// NewShardedCache creates a new proof cache.
func NewShardedCache(cfg Config) *ShardedCache {
	if cfg.ShardCount == 0 {
		cfg.ShardCount = defaultShardCount
	}
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = defaultShardSize * cfg.ShardCount
	}

	if cfg.ShardCount&(cfg.ShardCount-1) != 0 {
		n := 1
		for n < cfg.ShardCount {
			n <<= 1
		}
		cfg.ShardCount = n
	}

	shardSize := cfg.MaxEntries / cfg.ShardCount

	c := &ShardedCache{
		shards:       make([]*shard, cfg.ShardCount),
		shardCount:   cfg.ShardCount,
		shardMask:    uint64(cfg.ShardCount - 1),
		serveStale:   cfg.ServeStale,
		maxStaleTTL:  cfg.MaxStaleTTL,
		staleRefresh: cfg.StaleRefresh,
		stopCleanup:  make(chan struct{}),
	}

	for i := 0; i < cfg.ShardCount; i++ {
		c.shards[i] = &shard{
			entries: make(map[uint64]*Entry, shardSize),
			maxSize: shardSize,
		}
	}

	c.cleanupDone.Add(1)
	go c.cleanupExpired()

	return c
}

func (c *ShardedCache) getShard(hash uint64) *shard {
	return c.shards[hash&c.shardMask]
}

// Get retrieves a cached proof by query hash.
func (c *ShardedCache) Get(hash uint64) (*Entry, bool) {
	s := c.getShard(hash)

	s.mu.RLock()
	entry, ok := s.entries[hash]
	s.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	if entry.IsExpired() {
		if !c.serveStale || !entry.IsStale(c.maxStaleTTL) {
			c.misses.Add(1)
			return nil, false
		}
		c.misses.Add(1)
	} else {
		c.hits.Add(1)
	}

	entry.Hits.Add(1)
	return entry, true
}

// Set stores a freshly built proof, keyed by query hash.
func (c *ShardedCache) Set(hash uint64, entry *Entry) {
	s := c.getShard(hash)

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) >= s.maxSize {
		c.evictOldest(s)
	}

	s.entries[hash] = entry
}

// Delete removes a cached proof.
func (c *ShardedCache) Delete(hash uint64) {
	s := c.getShard(hash)

	s.mu.Lock()
	delete(s.entries, hash)
	s.mu.Unlock()
}

func (c *ShardedCache) evictOldest(s *shard) {
	var oldestHash uint64
	var oldestTime time.Time
	first := true

	for hash, entry := range s.entries {
		if first || entry.ExpiresAt.Before(oldestTime) {
			oldestHash = hash
			oldestTime = entry.ExpiresAt
			first = false
		}
	}

	if !first {
		delete(s.entries, oldestHash)
		c.evictions.Add(1)
	}
}

// Flush clears all entries from the cache.
func (c *ShardedCache) Flush() {
	for _, s := range c.shards {
		s.mu.Lock()
		s.entries = make(map[uint64]*Entry, s.maxSize)
		s.mu.Unlock()
	}
}

func (c *ShardedCache) cleanupExpired() {
	defer c.cleanupDone.Done()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.performCleanup()
		case <-c.stopCleanup:
			return
		}
	}
}

func (c *ShardedCache) performCleanup() {
	for _, s := range c.shards {
		s.mu.Lock()

		var expired []uint64
		for hash, entry := range s.entries {
			if c.serveStale {
				if entry.IsExpired() && !entry.IsStale(c.maxStaleTTL) {
					expired = append(expired, hash)
				}
			} else if entry.IsExpired() {
				expired = append(expired, hash)
			}
		}

		for _, hash := range expired {
			delete(s.entries, hash)
			c.expirations.Add(1)
		}

		s.mu.Unlock()

		if len(expired) > 0 {
			time.Sleep(time.Millisecond)
		}
	}
}

// Stats summarizes cache activity.
type Stats struct {
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	Expirations uint64
	Size        int
	HitRate     float64
}

// GetStats returns current cache statistics.
func (c *ShardedCache) GetStats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	total := hits + misses
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	size := 0
	for _, s := range c.shards {
		s.mu.RLock()
		size += len(s.entries)
		s.mu.RUnlock()
	}

	return Stats{
		Hits:        hits,
		Misses:      misses,
		Evictions:   c.evictions.Load(),
		Expirations: c.expirations.Load(),
		Size:        size,
		HitRate:     hitRate,
	}
}

// Close stops the background cleanup goroutine.
func (c *ShardedCache) Close() {
	close(c.stopCleanup)
	c.cleanupDone.Wait()
}

// ForEach iterates over all cached entries. Locks shards sequentially;
// use sparingly.
func (c *ShardedCache) ForEach(fn func(hash uint64, entry *Entry)) {
	for _, s := range c.shards {
		s.mu.RLock()
		for hash, entry := range s.entries {
			fn(hash, entry)
		}
		s.mu.RUnlock()
	}
}
