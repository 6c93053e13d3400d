package models

import "time"

type TimeBucket struct {
	Label        string `json:"label"`
	VisitorCount int64  `json:"visitorCount"`
	SaleCount    int64  `json:"saleCount"`
}

// RecentEvent is one entry of the operator-facing recent events log.
type RecentEvent struct {
	ID         string        `json:"id"`
	Event      TrackingEvent `json:"event"`
	ReceivedAt time.Time     `json:"receivedAt"`
}

// MetricsSnapshot is a read-only copy of an aggregator's state.
type MetricsSnapshot struct {
	StoreID         string                  `json:"storeId"`
	VisitorsCount   int64                   `json:"visitorsCount"`
	SalesCount      int64                   `json:"salesCount"`
	ActiveCustomers int64                   `json:"activeCustomers"`
	ConversionRate  float64                 `json:"conversionRate"`
	TimeSeries      []TimeBucket            `json:"timeSeries"`
	RecentEvents    []RecentEvent           `json:"recentEvents"`
	Products        map[string]ProductStats `json:"products"`
	Bootstrapped    bool                    `json:"bootstrapped"`
	UpdatedAt       time.Time               `json:"updatedAt"`
}
