package aggregator

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"storepulse/api/models"
	"storepulse/api/utils"
)

const (
	DefaultStoreID   = "demo"
	DefaultTenantTTL = 30 * time.Minute
)

type RegistryConfig struct {
	DefaultStoreID string
	// TTL evicts tenants that received no event and no read for this long.
	// Zero disables eviction.
	TTL     time.Duration
	Catalog Catalog
	// Options are applied to every aggregator the registry creates.
	Options []Option
	Now     func() time.Time
}

type tenant struct {
	agg      *Aggregator
	lastSeen time.Time
}

// Registry owns one Aggregator per store id. Each aggregator serializes its
// own mutations; the registry lock only guards the tenant map.
type Registry struct {
	cfg RegistryConfig

	mu      sync.Mutex
	tenants map[string]*tenant
}

func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.DefaultStoreID == "" {
		cfg.DefaultStoreID = DefaultStoreID
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Registry{cfg: cfg, tenants: make(map[string]*tenant)}
}

func (r *Registry) resolve(storeID string) string {
	return utils.StoreIDOrDefault(storeID, r.cfg.DefaultStoreID)
}

// Get returns the aggregator for storeID, creating, loading and seeding it on
// first use.
func (r *Registry) Get(ctx context.Context, storeID string) *Aggregator {
	id := r.resolve(storeID)

	r.mu.Lock()
	t, ok := r.tenants[id]
	if ok {
		t.lastSeen = r.cfg.Now()
		r.mu.Unlock()
		return t.agg
	}
	opts := append(append([]Option(nil), r.cfg.Options...), WithStoreID(id))
	agg := New(opts...)
	r.tenants[id] = &tenant{agg: agg, lastSeen: r.cfg.Now()}
	r.mu.Unlock()

	r.bootstrap(ctx, agg)
	return agg
}

func (r *Registry) bootstrap(ctx context.Context, agg *Aggregator) {
	if r.cfg.Catalog != nil {
		products, err := r.cfg.Catalog.Products(ctx, agg.StoreID())
		if err != nil {
			log.Printf("Error loading catalog for store %s: %v", agg.StoreID(), err)
		} else {
			agg.LoadCatalog(products)
		}
	}
	agg.Seed(ctx)
}

// Lookup returns an existing aggregator without creating one.
func (r *Registry) Lookup(storeID string) (*Aggregator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[r.resolve(storeID)]
	if !ok {
		return nil, false
	}
	t.lastSeen = r.cfg.Now()
	return t.agg, true
}

// Apply routes evt to its store's aggregator.
func (r *Registry) Apply(ctx context.Context, evt models.TrackingEvent) {
	r.Get(ctx, evt.StoreID).Apply(evt)
}

// Handler adapts the registry to a channel subscriber.
func (r *Registry) Handler() func(models.TrackingEvent) {
	return func(evt models.TrackingEvent) {
		r.Apply(context.Background(), evt)
	}
}

// Reset clears a store's state. It reports false if the store is unknown.
func (r *Registry) Reset(ctx context.Context, storeID string) bool {
	agg, ok := r.Lookup(storeID)
	if !ok {
		return false
	}
	agg.Reset()
	r.bootstrap(ctx, agg)
	return true
}

// Stores lists known store ids in order.
func (r *Registry) Stores() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.tenants))
	for id := range r.tenants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sweep disposes of tenants idle longer than the TTL and returns their ids.
func (r *Registry) Sweep(now time.Time) []string {
	if r.cfg.TTL <= 0 {
		return nil
	}
	r.mu.Lock()
	var evicted []string
	var disposed []*Aggregator
	for id, t := range r.tenants {
		if now.Sub(t.lastSeen) > r.cfg.TTL {
			evicted = append(evicted, id)
			disposed = append(disposed, t.agg)
			delete(r.tenants, id)
		}
	}
	r.mu.Unlock()

	for _, agg := range disposed {
		agg.Dispose()
	}
	sort.Strings(evicted)
	return evicted
}

// GrowAll advances synthetic series of tenants still in bootstrap mode.
func (r *Registry) GrowAll() {
	r.mu.Lock()
	aggs := make([]*Aggregator, 0, len(r.tenants))
	for _, t := range r.tenants {
		aggs = append(aggs, t.agg)
	}
	r.mu.Unlock()
	for _, agg := range aggs {
		agg.Grow()
	}
}

// Run sweeps idle tenants and grows bootstrap series every interval until
// ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := r.Sweep(r.cfg.Now()); len(evicted) > 0 {
				log.Printf("Evicted %d idle store(s): %v", len(evicted), evicted)
			}
			r.GrowAll()
		}
	}
}
