// Package cache holds loaded vector indexes in memory so queries do not
// re-read and decode them from storage. The cache is a bounded LRU keyed by
// document id; eviction only costs a reload on the next query.
package cache

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/54b3r/docqa-go/internal/rag"
)

// DefaultMaxEntries is the capacity used when Config.MaxEntries is not positive.
const DefaultMaxEntries = 32

// Loader fetches the index for documentID from durable storage.
type Loader func(ctx context.Context, documentID string) (*rag.VectorIndex, error)

// Config holds the parameters for New.
type Config struct {
	// MaxEntries is the number of indexes kept resident. Defaults to
	// DefaultMaxEntries.
	MaxEntries int
	// Loader is called on a miss. Required.
	Loader Loader
	// Registerer receives the cache metrics. Defaults to
	// prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	// Logger is used for eviction and load logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// entry is the value stored in each list element.
type entry struct {
	id    string
	index *rag.VectorIndex
}

// Cache is a bounded, concurrency-safe LRU of loaded indexes.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*list.Element // document id -> element holding *entry
	lru     *list.List               // front is most recently used
	max     int
	load    Loader
	metrics *cacheMetrics
	log     *slog.Logger
}

// cacheMetrics holds the Prometheus metrics owned by a Cache.
type cacheMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions prometheus.Counter
	entries   prometheus.Gauge
}

func newCacheMetrics(reg prometheus.Registerer) *cacheMetrics {
	factory := promauto.With(reg)
	return &cacheMetrics{
		hits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Index lookups served from memory.",
		}),
		misses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Index lookups that required a load from storage.",
		}),
		evictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Indexes dropped to stay within capacity.",
		}),
		entries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "docqa",
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Indexes currently resident in memory.",
		}),
	}
}

// New constructs a Cache from cfg.
func New(cfg Config) (*Cache, error) {
	if cfg.Loader == nil {
		return nil, fmt.Errorf("cache: loader must not be nil")
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.DefaultRegisterer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Cache{
		entries: make(map[string]*list.Element),
		lru:     list.New(),
		max:     cfg.MaxEntries,
		load:    cfg.Loader,
		metrics: newCacheMetrics(cfg.Registerer),
		log:     cfg.Logger,
	}, nil
}

// Get returns the resident index for documentID without loading.
func (c *Cache) Get(documentID string) (*rag.VectorIndex, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[documentID]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(el)
	return el.Value.(*entry).index, true
}

// GetOrLoad returns the index for documentID, calling the loader on a miss.
// The load runs without the lock held. If another caller inserted an entry
// for the same id while the load was in flight, that entry is kept and
// returned.
func (c *Cache) GetOrLoad(ctx context.Context, documentID string) (*rag.VectorIndex, error) {
	if ix, ok := c.Get(documentID); ok {
		c.metrics.hits.Inc()
		return ix, nil
	}
	c.metrics.misses.Inc()

	ix, err := c.load(ctx, documentID)
	if err != nil {
		return nil, err
	}
	c.log.Debug("index loaded", "document_id", documentID, "entries", ix.Len())

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[documentID]; ok {
		c.lru.MoveToFront(el)
		return el.Value.(*entry).index, nil
	}
	c.insert(documentID, ix)
	return ix, nil
}

// Put stores ix under documentID, replacing any existing entry.
func (c *Cache) Put(documentID string, ix *rag.VectorIndex) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[documentID]; ok {
		el.Value.(*entry).index = ix
		c.lru.MoveToFront(el)
		return
	}
	c.insert(documentID, ix)
}

// Remove drops documentID from the cache. It is a no-op when absent.
func (c *Cache) Remove(documentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[documentID]; ok {
		c.lru.Remove(el)
		delete(c.entries, documentID)
		c.metrics.entries.Set(float64(c.lru.Len()))
	}
}

// Len returns the number of resident indexes.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// insert adds a new entry and evicts from the back until within capacity.
// Must be called with c.mu held.
func (c *Cache) insert(documentID string, ix *rag.VectorIndex) {
	c.entries[documentID] = c.lru.PushFront(&entry{id: documentID, index: ix})
	for c.lru.Len() > c.max {
		back := c.lru.Back()
		evicted := back.Value.(*entry)
		c.lru.Remove(back)
		delete(c.entries, evicted.id)
		c.metrics.evictions.Inc()
		c.log.Debug("index evicted", "document_id", evicted.id)
	}
	c.metrics.entries.Set(float64(c.lru.Len()))
}
