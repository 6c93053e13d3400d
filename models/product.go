package models

// Product is a catalog entry supplied by the catalog collaborator.
// Sales and Views are the baseline counters the aggregator starts from.
type Product struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Sales int64   `json:"sales"`
	Views int64   `json:"views"`
}

type ProductStats struct {
	Name  string `json:"name"`
	Views int64  `json:"views"`
	Sales int64  `json:"sales"`
}
