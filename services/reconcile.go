package services

import (
	"context"
	"fmt"
	"sort"

	"grocery-tracker/models"
	"grocery-tracker/storage"
	"grocery-tracker/utils"
)

// Reconciler diffs the snapshot table against the observation history. It
// runs three passes in a fixed order: new products first (a product seen for
// the first time has no current observation to compare against), then
// attribute changes, then availability. Each pass is idempotent, so re-running
// a cycle over the same snapshot data changes nothing.
type Reconciler struct {
	store  *storage.Store
	logger *utils.Logger
}

// NewReconciler creates a Reconciler reading and writing through the store.
func NewReconciler(store *storage.Store, logger *utils.Logger) *Reconciler {
	return &Reconciler{store: store, logger: logger.Component("reconcile")}
}

// Run executes one full reconciliation cycle over all snapshot data. It must
// only be called after every crawl of the day has been committed.
func (r *Reconciler) Run(ctx context.Context) error {
	snapshots, err := r.store.LoadSnapshots(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: load snapshots: %w", err)
	}
	if len(snapshots) == 0 {
		r.logger.Info("no snapshot data, nothing to reconcile")
		return nil
	}

	latest := latestPerPair(snapshots)

	if err := r.detectNewProducts(ctx, latest); err != nil {
		return err
	}
	if err := r.detectChanges(ctx, latest); err != nil {
		return err
	}
	if err := r.detectUnavailable(ctx, snapshots); err != nil {
		return err
	}
	return nil
}

// latestPerPair reduces the snapshot rows to the latest-dated row per
// (product, store) pair.
func latestPerPair(snapshots []models.SnapshotRow) map[models.ProductStoreKey]models.SnapshotRow {
	latest := make(map[models.ProductStoreKey]models.SnapshotRow)
	for _, row := range snapshots {
		k := models.ProductStoreKey{ProductID: row.ProductID, StoreID: row.StoreID}
		if prev, ok := latest[k]; !ok || row.Date > prev.Date {
			latest[k] = row
		}
	}
	return latest
}

func sortedPairs(m map[models.ProductStoreKey]models.SnapshotRow) []models.ProductStoreKey {
	keys := make([]models.ProductStoreKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ProductID != keys[j].ProductID {
			return keys[i].ProductID < keys[j].ProductID
		}
		return keys[i].StoreID < keys[j].StoreID
	})
	return keys
}

// detectNewProducts upserts the product catalog from the latest snapshot rows
// (new ids are inserted, drifting names/categories refreshed) and opens a
// current observation for every (product, store) pair seen for the first
// time.
func (r *Reconciler) detectNewProducts(ctx context.Context, latest map[models.ProductStoreKey]models.SnapshotRow) error {
	known, err := r.store.KnownProductIDs(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: known products: %w", err)
	}
	observed, err := r.store.ObservedPairs(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: observed pairs: %w", err)
	}

	seen := make(map[int64]struct{})
	var products []models.Product
	var observations []models.Observation
	newIDs := 0

	for _, k := range sortedPairs(latest) {
		row := latest[k]
		if _, dup := seen[row.ProductID]; !dup {
			seen[row.ProductID] = struct{}{}
			products = append(products, models.Product{
				ProductID:   row.ProductID,
				ProductName: row.ProductName,
				HasBioLabel: row.HasBioLabel,
				CategoryID:  row.CategoryID,
			})
			if _, ok := known[row.ProductID]; !ok {
				newIDs++
			}
		}
		if _, ok := observed[k]; !ok {
			observations = append(observations, models.Observation{
				StoreID:      row.StoreID,
				ProductID:    row.ProductID,
				Date:         row.Date,
				ListedPrice:  row.ListedPrice,
				ListedAmount: row.ListedAmount,
				ListedUnit:   row.ListedUnit,
				IsOnOffer:    row.IsOnOffer,
				IsAvailable:  true,
			})
		}
	}

	if len(products) > 0 {
		if err := r.store.UpsertProducts(ctx, products); err != nil {
			return fmt.Errorf("reconcile: upsert products: %w", err)
		}
	}
	if len(observations) > 0 {
		if err := r.store.InsertObservations(ctx, observations); err != nil {
			return fmt.Errorf("reconcile: insert observations: %w", err)
		}
	}
	r.logger.Info("new products: %d, first observations: %d", newIDs, len(observations))
	return nil
}

// detectChanges compares every current observation against the latest
// snapshot row of its pair. On any difference in price, amount, unit or offer
// flag, the current row is flipped to unavailable and a replacement current
// row is inserted in the same transaction, preserving the at-most-one-current
// invariant for concurrent readers.
func (r *Reconciler) detectChanges(ctx context.Context, latest map[models.ProductStoreKey]models.SnapshotRow) error {
	current, err := r.store.CurrentObservations(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: current observations: %w", err)
	}

	changed := 0
	for _, k := range sortedPairs(latest) {
		row := latest[k]
		obs, ok := current[k]
		if !ok || !obs.Changed(row) {
			continue
		}
		next := models.Observation{
			StoreID:      row.StoreID,
			ProductID:    row.ProductID,
			Date:         row.Date,
			ListedPrice:  row.ListedPrice,
			ListedAmount: row.ListedAmount,
			ListedUnit:   row.ListedUnit,
			IsOnOffer:    row.IsOnOffer,
			IsAvailable:  true,
		}
		if err := r.store.ReplaceCurrentObservation(ctx, k, next); err != nil {
			return fmt.Errorf("reconcile: replace observation for product %d store %d: %w",
				k.ProductID, k.StoreID, err)
		}
		changed++
	}
	r.logger.Info("changed observations: %d", changed)
	return nil
}

// detectUnavailable flips the current observation of every pair whose product
// no longer appears among the latest-dated snapshot rows, with no replacement
// inserted.
func (r *Reconciler) detectUnavailable(ctx context.Context, snapshots []models.SnapshotRow) error {
	present := make(map[int64]struct{}, len(snapshots))
	for _, row := range snapshots {
		present[row.ProductID] = struct{}{}
	}

	current, err := r.store.CurrentObservations(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: current observations: %w", err)
	}

	keys := make([]models.ProductStoreKey, 0, len(current))
	for k := range current {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ProductID != keys[j].ProductID {
			return keys[i].ProductID < keys[j].ProductID
		}
		return keys[i].StoreID < keys[j].StoreID
	})

	gone := 0
	for _, k := range keys {
		if _, ok := present[k.ProductID]; ok {
			continue
		}
		if err := r.store.MarkUnavailable(ctx, k); err != nil {
			return fmt.Errorf("reconcile: mark unavailable product %d store %d: %w",
				k.ProductID, k.StoreID, err)
		}
		gone++
	}
	r.logger.Info("products no longer listed: %d", gone)
	return nil
}
