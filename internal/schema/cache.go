// Package schema caches DocType field metadata so repeated document
// operations do not refetch it from the remote store.
package schema

import (
	"context"
	"sync"
	"time"

	"erpnext-bridge/internal/common/logger"
	"erpnext-bridge/internal/common/metrics"
	"erpnext-bridge/internal/models"
)

// Fetcher retrieves schemas from the remote store.
type Fetcher interface {
	FetchSchema(ctx context.Context, doctype string) (*models.DocTypeSchema, error)
}

// SnapshotStore persists fetched schemas so the bridge can keep working
// through short remote outages. Load returns (nil, nil) when no snapshot
// exists.
type SnapshotStore interface {
	Load(ctx context.Context, doctype string) (*models.DocTypeSchema, error)
	Save(ctx context.Context, schema *models.DocTypeSchema) error
}

type entry struct {
	schema    *models.DocTypeSchema
	expiresAt time.Time
}

// inflight tracks one in-progress fetch; late callers wait on done instead
// of issuing their own request.
type inflight struct {
	done   chan struct{}
	schema *models.DocTypeSchema
	err    error
}

// Cache is a TTL cache over a Fetcher. Concurrent lookups for the same
// DocType coalesce onto a single remote fetch.
type Cache struct {
	fetcher   Fetcher
	snapshots SnapshotStore
	ttl       time.Duration
	now       func() time.Time
	logger    logger.Logger

	mu       sync.Mutex
	entries  map[string]*entry
	inFlight map[string]*inflight
}

type CacheOption func(*Cache)

// WithSnapshotStore attaches a persistent fallback consulted when the
// remote fetch fails.
func WithSnapshotStore(store SnapshotStore) CacheOption {
	return func(c *Cache) { c.snapshots = store }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

func NewCache(fetcher Fetcher, ttl time.Duration, log logger.Logger, opts ...CacheOption) *Cache {
	c := &Cache{
		fetcher:  fetcher,
		ttl:      ttl,
		now:      time.Now,
		logger:   log.WithFields(map[string]interface{}{"component": "schema_cache"}),
		entries:  make(map[string]*entry),
		inFlight: make(map[string]*inflight),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the schema for a DocType, fetching it on a miss or after the
// TTL has elapsed. Returned schemas are shared and must not be mutated.
func (c *Cache) Get(ctx context.Context, doctype string) (*models.DocTypeSchema, error) {
	c.mu.Lock()

	if e, ok := c.entries[doctype]; ok && c.now().Before(e.expiresAt) {
		c.mu.Unlock()
		metrics.SchemaCacheHits.Inc()
		return e.schema, nil
	}

	if fl, ok := c.inFlight[doctype]; ok {
		c.mu.Unlock()
		metrics.SchemaCacheCoalesced.Inc()
		select {
		case <-fl.done:
			return fl.schema, fl.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	fl := &inflight{done: make(chan struct{})}
	c.inFlight[doctype] = fl
	c.mu.Unlock()

	metrics.SchemaCacheMisses.Inc()
	schema, err := c.fetch(ctx, doctype)

	c.mu.Lock()
	delete(c.inFlight, doctype)
	if err == nil {
		c.entries[doctype] = &entry{schema: schema, expiresAt: c.now().Add(c.ttl)}
	}
	c.mu.Unlock()

	fl.schema, fl.err = schema, err
	close(fl.done)
	return schema, err
}

// fetch hits the remote store, persisting the result to the snapshot store
// on success and falling back to it on failure.
func (c *Cache) fetch(ctx context.Context, doctype string) (*models.DocTypeSchema, error) {
	schema, err := c.fetcher.FetchSchema(ctx, doctype)
	if err == nil {
		if c.snapshots != nil {
			if saveErr := c.snapshots.Save(ctx, schema); saveErr != nil {
				c.logger.Warn("failed to save schema snapshot", map[string]interface{}{
					"doctype": doctype,
					"error":   saveErr.Error(),
				})
			}
		}
		return schema, nil
	}

	if c.snapshots != nil {
		snapshot, loadErr := c.snapshots.Load(ctx, doctype)
		if loadErr == nil && snapshot != nil {
			c.logger.Warn("serving schema from snapshot after fetch failure", map[string]interface{}{
				"doctype": doctype,
				"error":   err.Error(),
			})
			return snapshot, nil
		}
	}

	return nil, err
}

// Invalidate drops the cached schema for one DocType.
func (c *Cache) Invalidate(doctype string) {
	c.mu.Lock()
	delete(c.entries, doctype)
	c.mu.Unlock()
}

// InvalidateAll drops every cached schema.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.mu.Unlock()
}

// Cached lists the DocTypes currently held with an unexpired entry.
func (c *Cache) Cached() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	names := make([]string, 0, len(c.entries))
	for doctype, e := range c.entries {
		if now.Before(e.expiresAt) {
			names = append(names, doctype)
		}
	}
	return names
}
