package services

import (
	"sort"

	"grocery-tracker/models"
)

// SnapshotBuilder aggregates the listing records of one (store, date) across
// every category crawled for that store. The same product id can show up in
// more than one category; the last record written wins.
type SnapshotBuilder struct {
	storeName string
	date      string
	byProduct map[int64]models.ListingRecord
}

// NewSnapshotBuilder creates an empty builder for one store and date.
func NewSnapshotBuilder(storeName, date string) *SnapshotBuilder {
	return &SnapshotBuilder{
		storeName: storeName,
		date:      date,
		byProduct: make(map[int64]models.ListingRecord),
	}
}

// Add merges records into the snapshot, deduplicating by product id.
func (b *SnapshotBuilder) Add(records ...models.ListingRecord) {
	for _, rec := range records {
		rec.StoreName = b.storeName
		rec.Date = b.date
		b.byProduct[rec.ProductID] = rec
	}
}

// Len returns the number of distinct products collected so far.
func (b *SnapshotBuilder) Len() int {
	return len(b.byProduct)
}

// Records returns the deduplicated snapshot in product-id order.
func (b *SnapshotBuilder) Records() []models.ListingRecord {
	out := make([]models.ListingRecord, 0, len(b.byProduct))
	for _, rec := range b.byProduct {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}
