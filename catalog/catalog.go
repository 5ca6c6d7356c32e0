package catalog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/relayhq/eventrelay/id"
	"github.com/relayhq/eventrelay/internal/entity"
)

// Catalog is the in-memory cached service managing optional per-event-type
// JSON Schemas. It is an enrichment on top of the ingestion path: an event
// type with nothing registered here is accepted exactly as the grammar in
// spec §6 allows.
type Catalog struct {
	store    Store
	cache    map[string]*EventType
	cacheTTL time.Duration
	lastLoad time.Time
	mu       sync.RWMutex
	logger   *slog.Logger
}

// Config configures the catalog service.
type Config struct {
	CacheTTL time.Duration
}

// NewCatalog creates a new Catalog backed by the given store.
func NewCatalog(store Store, cfg Config, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		store:    store,
		cache:    make(map[string]*EventType),
		cacheTTL: cfg.CacheTTL,
		logger:   logger,
	}
}

// RegisterType registers or updates an event type's schema.
func (c *Catalog) RegisterType(ctx context.Context, def WebhookDefinition) (*EventType, error) {
	et := &EventType{
		Entity:     entity.New(),
		ID:         id.NewEventTypeID(),
		Definition: def,
	}

	if err := c.store.RegisterType(ctx, et); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[def.Name] = et
	c.mu.Unlock()

	return et, nil
}

// GetType returns a registered schema by event type name, using the cache
// when available. Returns (nil, nil) when nothing is registered.
func (c *Catalog) GetType(ctx context.Context, name string) (*EventType, error) {
	c.mu.RLock()
	if et, ok := c.cache[name]; ok && !c.cacheExpired() {
		c.mu.RUnlock()
		return et, nil
	}
	c.mu.RUnlock()

	et, err := c.store.GetType(ctx, name)
	if err != nil {
		return nil, err
	}
	if et == nil {
		return nil, nil
	}

	c.mu.Lock()
	c.cache[name] = et
	c.mu.Unlock()

	return et, nil
}

// ListTypes returns all registered event type schemas.
func (c *Catalog) ListTypes(ctx context.Context, opts ListOpts) ([]*EventType, error) {
	return c.store.ListTypes(ctx, opts)
}

// DeleteType removes a registered schema and evicts it from cache.
func (c *Catalog) DeleteType(ctx context.Context, name string) error {
	if err := c.store.DeleteType(ctx, name); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.cache, name)
	c.mu.Unlock()

	return nil
}

// InvalidateCache clears the in-memory cache, forcing fresh reads from the store.
func (c *Catalog) InvalidateCache() {
	c.mu.Lock()
	c.cache = make(map[string]*EventType)
	c.lastLoad = time.Time{}
	c.mu.Unlock()
}

// cacheExpired returns true if the cache TTL has elapsed. Must be called with at least RLock held.
func (c *Catalog) cacheExpired() bool {
	if c.cacheTTL == 0 {
		return false
	}
	return time.Since(c.lastLoad) > c.cacheTTL
}

// WarmCache preloads the cache from the store.
func (c *Catalog) WarmCache(ctx context.Context) error {
	types, err := c.store.ListTypes(ctx, ListOpts{})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[string]*EventType, len(types))
	for _, et := range types {
		c.cache[et.Definition.Name] = et
	}
	c.lastLoad = time.Now()
	return nil
}
