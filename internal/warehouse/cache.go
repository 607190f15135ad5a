package warehouse

import (
	"context"
	"sync"

	"github.com/couchcryptid/seismic-ingest/internal/domain"
	"github.com/couchcryptid/seismic-ingest/internal/observability"
)

// unifiedReader is the read surface a CachedReader decorates. *Client
// satisfies it; tests can substitute a fake.
type unifiedReader interface {
	GetUnifiedEvent(ctx context.Context, unifiedEventID string) (domain.UnifiedEvent, bool, error)
}

// CachedReader wraps a unifiedReader with an in-memory LRU cache keyed by
// unified_event_id, avoiding a warehouse round trip for events that are
// looked up repeatedly. Entries never expire; a cached event is only
// replaced through Put or evicted when the cache is full.
type CachedReader struct {
	inner   unifiedReader
	cache   *unifiedLRU
	metrics *observability.Metrics
}

// NewCachedReader creates a cache decorator around a unified event reader.
func NewCachedReader(inner unifiedReader, maxEntries int, metrics *observability.Metrics) *CachedReader {
	return &CachedReader{
		inner:   inner,
		cache:   newUnifiedLRU(maxEntries),
		metrics: metrics,
	}
}

// GetUnifiedEvent returns the cached event if present, otherwise falls
// through to inner and caches the result on a hit.
func (c *CachedReader) GetUnifiedEvent(ctx context.Context, unifiedEventID string) (domain.UnifiedEvent, bool, error) {
	if event, ok := c.cache.get(unifiedEventID); ok {
		c.metrics.WarehouseCacheHits.Inc()
		return event, true, nil
	}
	c.metrics.WarehouseCacheMisses.Inc()

	event, found, err := c.inner.GetUnifiedEvent(ctx, unifiedEventID)
	if err != nil {
		return domain.UnifiedEvent{}, false, err
	}
	if found {
		c.cache.put(unifiedEventID, event)
	}
	return event, found, nil
}

// Put inserts or refreshes a cache entry directly, letting a caller warm
// the cache without a warehouse read.
func (c *CachedReader) Put(unifiedEventID string, event domain.UnifiedEvent) {
	c.cache.put(unifiedEventID, event)
}

// unifiedLRU is a thread-safe, fixed-capacity LRU cache for UnifiedEvents.
type unifiedLRU struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*unifiedEntry
	head       *unifiedEntry // most recently used
	tail       *unifiedEntry // least recently used
}

type unifiedEntry struct {
	key   string
	value domain.UnifiedEvent
	prev  *unifiedEntry
	next  *unifiedEntry
}

func newUnifiedLRU(maxEntries int) *unifiedLRU {
	return &unifiedLRU{
		maxEntries: maxEntries,
		entries:    make(map[string]*unifiedEntry),
	}
}

func (c *unifiedLRU) get(key string) (domain.UnifiedEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.UnifiedEvent{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *unifiedLRU) put(key string, value domain.UnifiedEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &unifiedEntry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *unifiedLRU) moveToFront(e *unifiedEntry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *unifiedLRU) addToFront(e *unifiedEntry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *unifiedLRU) remove(e *unifiedEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *unifiedLRU) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
