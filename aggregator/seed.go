package aggregator

import (
	"context"
	"log"
	"time"

	"storepulse/api/models"
)

const backfillTimeout = 5 * time.Second

// Seed fills a not-yet-bootstrapped aggregator with a baseline series so
// dashboards are never empty. Historical buckets from the backfill source
// are preferred; otherwise a synthetic, monotonically increasing series is
// generated. Seed runs at most once per Reset, and never after a real event
// has been applied; otherwise it returns false.
func (a *Aggregator) Seed(ctx context.Context) bool {
	a.mu.Lock()
	if a.bootstrapped || a.seeded || a.disposed {
		a.mu.Unlock()
		return false
	}
	backfill, storeID, periods, now := a.backfill, a.storeID, a.periods, a.now()
	a.mu.Unlock()

	var history []models.TimeBucket
	if backfill != nil {
		bctx, cancel := context.WithTimeout(ctx, backfillTimeout)
		buckets, err := backfill.MonthlyBuckets(bctx, storeID, periods, now)
		cancel()
		if err != nil {
			log.Printf("Error backfilling store %s, falling back to synthetic seed: %v", storeID, err)
		} else {
			history = buckets
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	// A live event may have arrived while the backfill ran.
	if a.bootstrapped || a.seeded || a.disposed {
		return false
	}
	if len(history) == 0 {
		history = a.syntheticSeriesLocked(now)
	}
	a.installSeriesLocked(history, now)
	a.seeded = true
	return true
}

// Grow advances the synthetic series by one small step. It is a no-op once
// live data has arrived or before Seed.
func (a *Aggregator) Grow() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bootstrapped || !a.seeded || a.disposed {
		return false
	}
	last := &a.series[len(a.series)-1]
	visitors := int64(a.rng.IntN(10) + 1)
	sales := int64(a.rng.IntN(3))
	last.VisitorCount += visitors
	last.SaleCount += sales
	a.visitorsCount += visitors
	a.salesCount += sales
	a.activeCustomers += int64(a.rng.IntN(2))
	a.recomputeSeedConversionLocked()
	a.updatedAt = a.now()
	return true
}

func (a *Aggregator) Seeded() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.seeded
}

func (a *Aggregator) syntheticSeriesLocked(now time.Time) []models.TimeBucket {
	end := MonthStart(now)
	series := make([]models.TimeBucket, a.periods)
	visitors := int64(800 + a.rng.IntN(400))
	sales := int64(20 + a.rng.IntN(20))
	for i := range series {
		month := end.AddDate(0, i-(a.periods-1), 0)
		series[i] = models.TimeBucket{
			Label:        MonthLabel(month),
			VisitorCount: visitors,
			SaleCount:    sales,
		}
		visitors += int64(50 + a.rng.IntN(300))
		sales += int64(1 + a.rng.IntN(15))
	}
	return series
}

func (a *Aggregator) installSeriesLocked(series []models.TimeBucket, now time.Time) {
	if len(series) > a.periods {
		series = series[len(series)-a.periods:]
	}
	a.series = append([]models.TimeBucket(nil), series...)
	a.lastMonth = MonthStart(now)

	a.visitorsCount, a.salesCount = 0, 0
	for _, b := range a.series {
		a.visitorsCount += b.VisitorCount
		a.salesCount += b.SaleCount
	}
	last := a.series[len(a.series)-1]
	a.activeCustomers = last.VisitorCount / 10
	a.recomputeSeedConversionLocked()
	a.updatedAt = now
}

// recomputeSeedConversionLocked derives the rate from seeded totals in either
// mode; the increment mode only departs from it once live add_to_cart
// events arrive.
func (a *Aggregator) recomputeSeedConversionLocked() {
	if a.visitorsCount == 0 {
		a.conversionRate = 0
		return
	}
	a.conversionRate = round2(float64(a.salesCount) / float64(a.visitorsCount) * 100)
}
