// Package colmap memoizes header-to-field matching and skip-pattern compilation
// per vendor, layout and header set.
package colmap

import (
	"errors"
	"regexp"
	"sync"
	"time"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultMaxEntries bounds the cache size.
const DefaultMaxEntries = 256

// Entry is a resolved mapping. Entries are shared and must not be modified.
type Entry struct {
	FieldMap    FieldMap
	SkipMatcher *regexp.Regexp
	BuildCost   time.Duration
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits       uint64
	Misses     uint64
	Size       int
	MaxEntries int
	TimeSaved  time.Duration
	Enabled    bool
}

// HitRate returns hits over lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache is safe for concurrent use. One mutex covers lookup, build, insert and
// eviction so two callers never build the same key twice.
type Cache struct {
	entries    map[string]*Entry
	metrics    *metrics
	order      []string
	maxEntries int
	hits       uint64
	misses     uint64
	timeSaved  time.Duration
	mu         sync.Mutex
	enabled    bool
}

// Option configures a Cache.
type Option func(*Cache)

// WithMaxEntries sets the entry bound.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithEnabled turns caching on or off. A disabled cache builds on every call.
func WithEnabled(enabled bool) Option {
	return func(c *Cache) {
		c.enabled = enabled
	}
}

// WithRegisterer exports cache counters to reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Cache) {
		c.metrics = newMetrics(reg)
	}
}

// New creates a cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:    make(map[string]*Entry),
		maxEntries: DefaultMaxEntries,
		enabled:    true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the mapping for header under layout l, building it on a miss.
func (c *Cache) Get(vendor string, l *model.Layout, header []string) (*Entry, error) {
	if l == nil {
		return nil, errors.New("colmap: nil layout")
	}
	key := Key(vendor, l, header)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.enabled {
		if e, ok := c.entries[key]; ok {
			c.hits++
			c.timeSaved += e.BuildCost
			c.metrics.hit(e.BuildCost)
			return e, nil
		}
	}

	e := build(l, header)
	c.misses++
	c.metrics.miss()

	if c.enabled {
		if len(c.entries) >= c.maxEntries {
			c.evictLocked()
		}
		c.entries[key] = e
		c.order = append(c.order, key)
	}
	return e, nil
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:       c.hits,
		Misses:     c.misses,
		Size:       len(c.entries),
		MaxEntries: c.maxEntries,
		TimeSaved:  c.timeSaved,
		Enabled:    c.enabled,
	}
}

// Clear drops all entries and resets counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Entry)
	c.order = nil
	c.hits = 0
	c.misses = 0
	c.timeSaved = 0
}

// evictLocked drops the oldest quarter of entries by insertion order.
func (c *Cache) evictLocked() {
	n := c.maxEntries / 4
	if n < 1 {
		n = 1
	}
	if n > len(c.order) {
		n = len(c.order)
	}
	for _, key := range c.order[:n] {
		delete(c.entries, key)
	}
	c.order = append([]string(nil), c.order[n:]...)
	c.metrics.evicted(n)
}

func build(l *model.Layout, header []string) *Entry {
	start := time.Now()
	e := &Entry{
		FieldMap:    BuildFieldMap(l, header),
		SkipMatcher: CompileSkipMatcher(l),
	}
	e.BuildCost = time.Since(start)
	if e.BuildCost <= 0 {
		e.BuildCost = time.Nanosecond
	}
	return e
}
