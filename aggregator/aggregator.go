// Package aggregator maintains live storefront metrics from an unordered,
// at-most-once stream of tracking events. State is in memory only.
package aggregator

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"storepulse/api/models"
)

const (
	// RecentCapacity bounds the recent events log.
	RecentCapacity = 20
	// ConversionIncrementStep is what the legacy mode adds per add_to_cart.
	ConversionIncrementStep = 0.1
	DefaultSeedPeriods      = 6
)

// ConversionMode selects how conversionRate is maintained.
type ConversionMode int

const (
	// ConversionRatio recomputes salesCount / visitorsCount * 100.
	ConversionRatio ConversionMode = iota
	// ConversionIncrement adds a fixed step per add_to_cart, the legacy
	// dashboard behaviour. Kept for comparison; it is not a rate.
	ConversionIncrement
)

func ParseConversionMode(s string) ConversionMode {
	if s == "increment" {
		return ConversionIncrement
	}
	return ConversionRatio
}

// Catalog supplies the known products for a store.
type Catalog interface {
	Products(ctx context.Context, storeID string) ([]models.Product, error)
}

// BackfillSource supplies historical monthly buckets, oldest first, ending
// with the month containing now.
type BackfillSource interface {
	MonthlyBuckets(ctx context.Context, storeID string, months int, now time.Time) ([]models.TimeBucket, error)
}

type Option func(*Aggregator)

func WithStoreID(id string) Option { return func(a *Aggregator) { a.storeID = id } }

func WithProducts(products []models.Product) Option {
	return func(a *Aggregator) { a.baseline = append([]models.Product(nil), products...) }
}

func WithConversionMode(m ConversionMode) Option { return func(a *Aggregator) { a.mode = m } }

func WithClock(now func() time.Time) Option { return func(a *Aggregator) { a.now = now } }

// WithRand makes synthetic seeding deterministic.
func WithRand(r *rand.Rand) Option { return func(a *Aggregator) { a.rng = r } }

func WithSeedPeriods(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.periods = n
		}
	}
}

func WithBackfill(src BackfillSource) Option { return func(a *Aggregator) { a.backfill = src } }

func WithIDGenerator(fn func() string) Option { return func(a *Aggregator) { a.newID = fn } }

// Aggregator owns the derived metrics of one store. Each event is applied
// to completion under a single lock, so concurrent producers are serialized.
type Aggregator struct {
	mu sync.Mutex

	storeID  string
	mode     ConversionMode
	now      func() time.Time
	rng      *rand.Rand
	periods  int
	backfill BackfillSource
	newID    func() string
	baseline []models.Product

	visitorsCount   int64
	salesCount      int64
	activeCustomers int64
	conversionRate  float64
	series          []models.TimeBucket
	lastMonth       time.Time // month of the last bucket
	recent          *recentLog[models.RecentEvent]
	products        map[string]*models.ProductStats
	bootstrapped    bool
	seeded          bool
	disposed        bool
	updatedAt       time.Time
}

func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		now:     time.Now,
		periods: DefaultSeedPeriods,
		newID:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.rng == nil {
		a.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	a.resetLocked()
	return a
}

func (a *Aggregator) StoreID() string { return a.storeID }

func (a *Aggregator) resetLocked() {
	a.visitorsCount = 0
	a.salesCount = 0
	a.activeCustomers = 0
	a.conversionRate = 0
	a.lastMonth = MonthStart(a.now())
	a.series = []models.TimeBucket{{Label: MonthLabel(a.lastMonth)}}
	a.recent = newRecentLog[models.RecentEvent](RecentCapacity)
	a.products = make(map[string]*models.ProductStats, len(a.baseline))
	a.mergeProductsLocked(a.baseline)
	a.bootstrapped = false
	a.seeded = false
	a.updatedAt = a.now()
}

// LoadCatalog adds products not already tracked, starting from their
// baseline counters. Counters of known products are left alone.
func (a *Aggregator) LoadCatalog(products []models.Product) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range products {
		if _, ok := a.products[p.ID]; !ok && p.ID != "" {
			a.baseline = append(a.baseline, p)
		}
	}
	a.mergeProductsLocked(products)
}

func (a *Aggregator) mergeProductsLocked(products []models.Product) {
	for _, p := range products {
		if p.ID == "" {
			continue
		}
		if _, ok := a.products[p.ID]; ok {
			continue
		}
		a.products[p.ID] = &models.ProductStats{Name: p.Name, Views: p.Views, Sales: p.Sales}
	}
}

// Apply consumes one event. Unknown types only reach the recent log.
func (a *Aggregator) Apply(evt models.TrackingEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disposed {
		return
	}

	now := a.now()
	a.bootstrapped = true
	a.rollLocked(now)
	last := &a.series[len(a.series)-1]

	switch evt.EventType {
	case models.EventVisitorInfo, models.EventPageView:
		a.visitorsCount++
		last.VisitorCount++
		a.recomputeConversionLocked()
	case models.EventUserInteraction, models.EventClick:
		a.activeCustomers++
	case models.EventAddToCart:
		if a.mode == ConversionIncrement {
			a.conversionRate = round2(a.conversionRate + ConversionIncrementStep)
		}
		if stats, ok := a.products[productID(evt.Payload)]; ok {
			stats.Sales++
		}
	case models.EventPurchase, models.EventBeginCheckout:
		a.salesCount++
		last.SaleCount++
		a.recomputeConversionLocked()
	case models.EventProductImpressions:
		for _, id := range impressionIDs(evt.Payload["products"]) {
			if stats, ok := a.products[id]; ok {
				stats.Views++
			}
		}
	}

	a.recent.Push(models.RecentEvent{ID: a.newID(), Event: evt, ReceivedAt: now})
	a.updatedAt = now
}

// rollLocked opens a bucket for the current month once the clock has moved
// past the last one, keeping the window length.
func (a *Aggregator) rollLocked(now time.Time) {
	month := MonthStart(now)
	for a.lastMonth.Before(month) {
		a.lastMonth = a.lastMonth.AddDate(0, 1, 0)
		a.series = append(a.series, models.TimeBucket{Label: MonthLabel(a.lastMonth)})
		if len(a.series) > a.periods {
			a.series = a.series[1:]
		}
	}
}

func (a *Aggregator) recomputeConversionLocked() {
	if a.mode != ConversionRatio {
		return
	}
	if a.visitorsCount == 0 {
		a.conversionRate = 0
		return
	}
	a.conversionRate = round2(float64(a.salesCount) / float64(a.visitorsCount) * 100)
}

func (a *Aggregator) Bootstrapped() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bootstrapped
}

// Snapshot returns a deep copy of the current state.
func (a *Aggregator) Snapshot() models.MetricsSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	products := make(map[string]models.ProductStats, len(a.products))
	for id, p := range a.products {
		products[id] = *p
	}
	return models.MetricsSnapshot{
		StoreID:         a.storeID,
		VisitorsCount:   a.visitorsCount,
		SalesCount:      a.salesCount,
		ActiveCustomers: a.activeCustomers,
		ConversionRate:  a.conversionRate,
		TimeSeries:      append([]models.TimeBucket(nil), a.series...),
		RecentEvents:    a.recent.Items(),
		Products:        products,
		Bootstrapped:    a.bootstrapped,
		UpdatedAt:       a.updatedAt,
	}
}

func (a *Aggregator) RecentEvents() []models.RecentEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recent.Items()
}

func (a *Aggregator) TimeSeries() []models.TimeBucket {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.TimeBucket(nil), a.series...)
}

// Reset returns the aggregator to its just-constructed state.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resetLocked()
}

// Dispose releases state; later events are ignored.
func (a *Aggregator) Dispose() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.disposed = true
	a.recent.Clear()
	a.products = map[string]*models.ProductStats{}
	a.series = []models.TimeBucket{{Label: MonthLabel(a.lastMonth)}}
}

func (a *Aggregator) Disposed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.disposed
}

func productID(p models.Payload) string {
	for _, key := range []string{"product_id", "productId", "id"} {
		if v := p.String(key); v != "" {
			return v
		}
	}
	return ""
}

// impressionIDs accepts the shapes products arrive in: decoded JSON arrays,
// in-process summaries, or bare id lists.
func impressionIDs(v any) []string {
	var ids []string
	add := func(item any) {
		switch it := item.(type) {
		case string:
			ids = append(ids, it)
		case map[string]any:
			if id := productID(it); id != "" {
				ids = append(ids, id)
			}
		case models.Payload:
			if id := productID(it); id != "" {
				ids = append(ids, id)
			}
		}
	}
	switch list := v.(type) {
	case []any:
		for _, item := range list {
			add(item)
		}
	case []map[string]any:
		for _, item := range list {
			add(item)
		}
	case []string:
		ids = append(ids, list...)
	}
	return ids
}

// MonthStart is the first instant of t's calendar month.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// MonthLabel names the time series bucket for t's month.
func MonthLabel(t time.Time) string { return t.Format("Jan 2006") }

func round2(f float64) float64 { return math.Round(f*100) / 100 }
