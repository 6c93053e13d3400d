package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"storepulse/api/aggregator"
	"storepulse/api/database"
	"storepulse/api/models"
	"storepulse/api/utils"
)

// AnalyticsStore reads monthly visitor and sale counts from the ingestion
// backend's ClickHouse table. It never writes.
type AnalyticsStore struct {
	DB       *database.ClickHouseClient
	Interval string
}

func NewAnalyticsStore(chClient *database.ClickHouseClient) *AnalyticsStore {
	return &AnalyticsStore{
		DB:       chClient,
		Interval: "Month",
	}
}

type bucketCounts struct {
	visitors uint64
	sales    uint64
}

// MonthlyBuckets returns exactly months buckets ending with now's month.
// Months without rows are zero.
func (s *AnalyticsStore) MonthlyBuckets(ctx context.Context, storeID string, months int, now time.Time) ([]models.TimeBucket, error) {
	if !utils.IsValidInterval(s.Interval) {
		return nil, fmt.Errorf("invalid interval: %s", s.Interval)
	}
	if months <= 0 {
		return nil, nil
	}

	start, end := monthWindow(now, months)

	query := fmt.Sprintf(`
		SELECT
			toStartOf%s(timestamp) AS time_bucket,
			countIf(event_type IN ('page_view', 'visitor_info')) AS visitors,
			countIf(event_type IN ('purchase', 'begin_checkout')) AS sales
		FROM analytics_events
		WHERE store_id = ? AND timestamp >= ? AND timestamp < ?
		GROUP BY time_bucket
		ORDER BY time_bucket ASC
	`, s.Interval)

	rows, err := s.DB.Conn.Query(ctx, query, storeID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly buckets: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]bucketCounts)
	for rows.Next() {
		var (
			bucket          time.Time
			visitors, sales uint64
		)
		if err := rows.Scan(&bucket, &visitors, &sales); err != nil {
			log.Printf("Error scanning row for monthly buckets: %v", err)
			continue
		}
		counts[aggregator.MonthLabel(bucket.UTC())] = bucketCounts{visitors: visitors, sales: sales}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for monthly buckets: %w", err)
	}

	if len(counts) == 0 {
		return nil, nil
	}
	return fillMonths(counts, months, now), nil
}

// monthWindow spans the months calendar months, in UTC, that end with
// now's month.
func monthWindow(now time.Time, months int) (start, end time.Time) {
	end = aggregator.MonthStart(now.UTC()).AddDate(0, 1, 0)
	return end.AddDate(0, -months, 0), end
}

// fillMonths labels buckets with the UTC months monthWindow queries.
func fillMonths(counts map[string]bucketCounts, months int, now time.Time) []models.TimeBucket {
	last := aggregator.MonthStart(now.UTC())
	out := make([]models.TimeBucket, months)
	for i := range out {
		label := aggregator.MonthLabel(last.AddDate(0, i-(months-1), 0))
		c := counts[label]
		out[i] = models.TimeBucket{
			Label:        label,
			VisitorCount: int64(c.visitors),
			SaleCount:    int64(c.sales),
		}
	}
	return out
}
