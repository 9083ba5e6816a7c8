package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"grocery-tracker/models"
)

// UpsertSnapshot writes one (store, date) batch of listing records into
// daily_data in a single transaction. Store and category surrogate ids are
// resolved (and lazily created) inside the same transaction, so readers
// either see the whole batch or none of it.
func (s *Store) UpsertSnapshot(ctx context.Context, records []models.ListingRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("snapshot: begin: %w", err)
	}
	defer tx.Rollback()

	storeIDs := make(map[string]int64)
	categoryIDs := make(map[string]int64)
	rows := make([]map[string]any, 0, len(records))

	for _, rec := range records {
		storeID, ok := storeIDs[rec.StoreName]
		if !ok {
			storeID, err = s.ensureStore(ctx, tx, rec.StoreName)
			if err != nil {
				return err
			}
			storeIDs[rec.StoreName] = storeID
		}
		categoryID, ok := categoryIDs[rec.CategorySlug]
		if !ok {
			categoryID, err = s.ensureCategory(ctx, tx, rec.CategorySlug)
			if err != nil {
				return err
			}
			categoryIDs[rec.CategorySlug] = categoryID
		}

		rows = append(rows, map[string]any{
			"date":          rec.Date,
			"store_id":      storeID,
			"product_id":    rec.ProductID,
			"product_name":  rec.Name,
			"has_bio_label": rec.HasBioLabel,
			"category_id":   categoryID,
			"listed_price":  round2(rec.ListedPrice),
			"listed_amount": round2(rec.Amount),
			"listed_unit":   rec.Unit,
			"is_on_offer":   rec.IsOnOffer,
		})
	}

	if err := s.upsertTx(ctx, tx, TableDailyData, rows); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ensureStore(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		s.rebind(`SELECT store_id FROM stores WHERE store_name = ?`), name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("snapshot: look up store %q: %w", name, err)
	}
	id, err = s.insertReturningID(ctx, tx,
		`INSERT INTO stores (store_name) VALUES (?)`, name)
	if err != nil {
		return 0, fmt.Errorf("snapshot: create store %q: %w", name, err)
	}
	return id, nil
}

func (s *Store) ensureCategory(ctx context.Context, tx *sql.Tx, slug string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		s.rebind(`SELECT category_id FROM categories WHERE category_name = ?`), slug).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("snapshot: look up category %q: %w", slug, err)
	}
	id, err = s.insertReturningID(ctx, tx,
		`INSERT INTO categories (category_name) VALUES (?)`, slug)
	if err != nil {
		return 0, fmt.Errorf("snapshot: create category %q: %w", slug, err)
	}
	return id, nil
}

// StoreID resolves a store display name to its surrogate id.
func (s *Store) StoreID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT store_id FROM stores WHERE store_name = ?`), name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("storage: store %q: %w", name, err)
	}
	return id, nil
}

// CategoryID resolves a category slug to its surrogate id.
func (s *Store) CategoryID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT category_id FROM categories WHERE category_name = ?`), name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("storage: category %q: %w", name, err)
	}
	return id, nil
}

// LoadSnapshots returns every daily_data row.
func (s *Store) LoadSnapshots(ctx context.Context) ([]models.SnapshotRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT CAST(date AS TEXT), store_id, product_id, product_name, has_bio_label,
		       category_id, listed_price, listed_amount, listed_unit, is_on_offer
		FROM daily_data
		ORDER BY date, store_id, product_id`)
	if err != nil {
		return nil, fmt.Errorf("storage: load snapshots: %w", err)
	}
	defer rows.Close()

	var out []models.SnapshotRow
	for rows.Next() {
		var r models.SnapshotRow
		if err := rows.Scan(
			&r.Date, &r.StoreID, &r.ProductID, &r.ProductName, &r.HasBioLabel,
			&r.CategoryID, &r.ListedPrice, &r.ListedAmount, &r.ListedUnit, &r.IsOnOffer,
		); err != nil {
			return nil, fmt.Errorf("storage: scan snapshot row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DrainSnapshots removes all daily_data rows. Only meaningful after the
// reconciliation and statistics engines have dispersed the data.
func (s *Store) DrainSnapshots(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM daily_data`); err != nil {
		return fmt.Errorf("storage: drain snapshots: %w", err)
	}
	return nil
}

// KnownProductIDs returns the set of product ids already in the catalog.
func (s *Store) KnownProductIDs(ctx context.Context) (map[int64]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT product_id FROM products`)
	if err != nil {
		return nil, fmt.Errorf("storage: known products: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("storage: scan product id: %w", err)
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

// UpsertProducts writes the product catalog rows through the upsert
// primitive, refreshing names and categories of known ids.
func (s *Store) UpsertProducts(ctx context.Context, products []models.Product) error {
	rows := make([]map[string]any, len(products))
	for i, p := range products {
		rows[i] = map[string]any{
			"product_id":    p.ProductID,
			"product_name":  p.ProductName,
			"has_bio_label": p.HasBioLabel,
			"category_id":   p.CategoryID,
		}
	}
	return s.Upsert(ctx, TableProducts, rows)
}

// ObservedPairs returns every (product, store) pair with at least one
// observation row, current or historical.
func (s *Store) ObservedPairs(ctx context.Context) (map[models.ProductStoreKey]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT product_id, store_id FROM product_observations`)
	if err != nil {
		return nil, fmt.Errorf("storage: observed pairs: %w", err)
	}
	defer rows.Close()

	out := make(map[models.ProductStoreKey]struct{})
	for rows.Next() {
		var k models.ProductStoreKey
		if err := rows.Scan(&k.ProductID, &k.StoreID); err != nil {
			return nil, fmt.Errorf("storage: scan pair: %w", err)
		}
		out[k] = struct{}{}
	}
	return out, rows.Err()
}

// CurrentObservations returns the current (is_available) observation per
// (product, store) pair.
func (s *Store) CurrentObservations(ctx context.Context) (map[models.ProductStoreKey]models.Observation, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT observation_id, store_id, product_id, CAST(date AS TEXT),
		       listed_price, listed_amount, listed_unit, is_on_offer, is_available
		FROM product_observations
		WHERE is_available = ?`), true)
	if err != nil {
		return nil, fmt.Errorf("storage: current observations: %w", err)
	}
	defer rows.Close()

	out := make(map[models.ProductStoreKey]models.Observation)
	for rows.Next() {
		var o models.Observation
		if err := rows.Scan(
			&o.ObservationID, &o.StoreID, &o.ProductID, &o.Date,
			&o.ListedPrice, &o.ListedAmount, &o.ListedUnit, &o.IsOnOffer, &o.IsAvailable,
		); err != nil {
			return nil, fmt.Errorf("storage: scan observation: %w", err)
		}
		out[models.ProductStoreKey{ProductID: o.ProductID, StoreID: o.StoreID}] = o
	}
	return out, rows.Err()
}

// InsertObservations appends history rows. Observation ids are generated by
// the backend.
func (s *Store) InsertObservations(ctx context.Context, observations []models.Observation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin: %w", err)
	}
	defer tx.Rollback()

	for _, o := range observations {
		if err := s.insertObservation(ctx, tx, o); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ReplaceCurrentObservation flips the pair's current row to unavailable and
// inserts the replacement in one transaction, so the at-most-one-current
// invariant holds for concurrent readers at every point.
func (s *Store) ReplaceCurrentObservation(ctx context.Context, key models.ProductStoreKey, next models.Observation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind(`
		UPDATE product_observations SET is_available = ?
		WHERE product_id = ? AND store_id = ? AND is_available = ?`),
		false, key.ProductID, key.StoreID, true); err != nil {
		return fmt.Errorf("storage: retire observation: %w", err)
	}
	if err := s.insertObservation(ctx, tx, next); err != nil {
		return err
	}
	return tx.Commit()
}

// MarkUnavailable flips the pair's current observation with no replacement.
func (s *Store) MarkUnavailable(ctx context.Context, key models.ProductStoreKey) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE product_observations SET is_available = ?
		WHERE product_id = ? AND store_id = ? AND is_available = ?`),
		false, key.ProductID, key.StoreID, true); err != nil {
		return fmt.Errorf("storage: mark unavailable: %w", err)
	}
	return nil
}

func (s *Store) insertObservation(ctx context.Context, tx *sql.Tx, o models.Observation) error {
	if _, err := tx.ExecContext(ctx, s.rebind(`
		INSERT INTO product_observations
			(store_id, product_id, date, listed_price, listed_amount,
			 listed_unit, is_on_offer, is_available)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		o.StoreID, o.ProductID, o.Date, round2(o.ListedPrice), round2(o.ListedAmount),
		o.ListedUnit, o.IsOnOffer, o.IsAvailable); err != nil {
		return fmt.Errorf("storage: insert observation: %w", err)
	}
	return nil
}

// ObservationsFor returns the full history of one pair, newest first.
func (s *Store) ObservationsFor(ctx context.Context, key models.ProductStoreKey) ([]models.Observation, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT observation_id, store_id, product_id, CAST(date AS TEXT),
		       listed_price, listed_amount, listed_unit, is_on_offer, is_available
		FROM product_observations
		WHERE product_id = ? AND store_id = ?
		ORDER BY observation_id DESC`), key.ProductID, key.StoreID)
	if err != nil {
		return nil, fmt.Errorf("storage: observations for pair: %w", err)
	}
	defer rows.Close()

	var out []models.Observation
	for rows.Next() {
		var o models.Observation
		if err := rows.Scan(
			&o.ObservationID, &o.StoreID, &o.ProductID, &o.Date,
			&o.ListedPrice, &o.ListedAmount, &o.ListedUnit, &o.IsOnOffer, &o.IsAvailable,
		); err != nil {
			return nil, fmt.Errorf("storage: scan observation: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// UpsertDailyStatistic writes one daily_statistics row.
func (s *Store) UpsertDailyStatistic(ctx context.Context, stat models.DailyStatistic) error {
	row := statisticsRow(stat.PriceStatistics)
	row["date"] = stat.Date
	row["store_id"] = stat.StoreID
	return s.Upsert(ctx, TableDailyStatistics, []map[string]any{row})
}

// UpsertCategoryStatistic writes one category_statistics row.
func (s *Store) UpsertCategoryStatistic(ctx context.Context, stat models.CategoryStatistic) error {
	row := statisticsRow(stat.PriceStatistics)
	row["date"] = stat.Date
	row["store_id"] = stat.StoreID
	row["category_id"] = stat.CategoryID
	row["green_premium"] = stat.GreenPremium
	row["average_savings"] = stat.AverageSavings
	return s.Upsert(ctx, TableCategoryStatistics, []map[string]any{row})
}

// DailyStatisticFor returns the daily_statistics row of one (date, store).
func (s *Store) DailyStatisticFor(ctx context.Context, date string, storeID int64) (models.DailyStatistic, error) {
	stat := models.DailyStatistic{Date: date, StoreID: storeID}
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT `+statisticsColumns+`
		FROM daily_statistics
		WHERE date = ? AND store_id = ?`), date, storeID).
		Scan(statisticsDest(&stat.PriceStatistics)...)
	if err != nil {
		return models.DailyStatistic{}, fmt.Errorf("storage: daily statistic %s/%d: %w", date, storeID, err)
	}
	return stat, nil
}

// CategoryStatisticFor returns the category_statistics row of one
// (date, store, category).
func (s *Store) CategoryStatisticFor(ctx context.Context, date string, storeID, categoryID int64) (models.CategoryStatistic, error) {
	stat := models.CategoryStatistic{Date: date, StoreID: storeID, CategoryID: categoryID}
	dest := append(statisticsDest(&stat.PriceStatistics), &stat.GreenPremium, &stat.AverageSavings)
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT `+statisticsColumns+`, green_premium, average_savings
		FROM category_statistics
		WHERE date = ? AND store_id = ? AND category_id = ?`), date, storeID, categoryID).
		Scan(dest...)
	if err != nil {
		return models.CategoryStatistic{}, fmt.Errorf("storage: category statistic %s/%d/%d: %w",
			date, storeID, categoryID, err)
	}
	return stat, nil
}

const statisticsColumns = `price_min, price_max, price_mean, price_median, price_skewness,
	       price_standard_deviation, price_variance, price_range, price_quartile_1,
	       price_quartile_3, iqr, amount_total_products, amount_bio_products,
	       amount_reduced_products, percentage_bio_products, percentage_reduced_products`

func statisticsDest(ps *models.PriceStatistics) []any {
	return []any{
		&ps.PriceMin, &ps.PriceMax, &ps.PriceMean, &ps.PriceMedian, &ps.PriceSkewness,
		&ps.PriceStandardDeviation, &ps.PriceVariance, &ps.PriceRange, &ps.PriceQuartile1,
		&ps.PriceQuartile3, &ps.IQR, &ps.AmountTotalProducts, &ps.AmountBioProducts,
		&ps.AmountReducedProducts, &ps.PercentageBioProducts, &ps.PercentageReducedProducts,
	}
}

func statisticsRow(ps models.PriceStatistics) map[string]any {
	return map[string]any{
		"price_min":                   ps.PriceMin,
		"price_max":                   ps.PriceMax,
		"price_mean":                  ps.PriceMean,
		"price_median":                ps.PriceMedian,
		"price_skewness":              ps.PriceSkewness,
		"price_standard_deviation":    ps.PriceStandardDeviation,
		"price_variance":              ps.PriceVariance,
		"price_range":                 ps.PriceRange,
		"price_quartile_1":            ps.PriceQuartile1,
		"price_quartile_3":            ps.PriceQuartile3,
		"iqr":                         ps.IQR,
		"amount_total_products":       ps.AmountTotalProducts,
		"amount_bio_products":         ps.AmountBioProducts,
		"amount_reduced_products":     ps.AmountReducedProducts,
		"percentage_bio_products":     ps.PercentageBioProducts,
		"percentage_reduced_products": ps.PercentageReducedProducts,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
