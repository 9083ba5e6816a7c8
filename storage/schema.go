package storage

import "fmt"

// migrate bootstraps the schema. The dashboard and any migration tooling own
// schema evolution; this only guarantees a fresh database is usable.
func (s *Store) migrate() error {
	statements := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS stores (
				store_id   %s,
				store_name TEXT NOT NULL UNIQUE
			)`, s.dialect.serialPK),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS categories (
				category_id   %s,
				category_name TEXT NOT NULL UNIQUE
			)`, s.dialect.serialPK),
		`
			CREATE TABLE IF NOT EXISTS products (
				product_id    BIGINT PRIMARY KEY,
				product_name  TEXT NOT NULL,
				has_bio_label BOOLEAN NOT NULL DEFAULT FALSE,
				category_id   BIGINT NOT NULL REFERENCES categories(category_id)
			)`,
		`
			CREATE TABLE IF NOT EXISTS daily_data (
				date          DATE NOT NULL,
				store_id      BIGINT NOT NULL REFERENCES stores(store_id),
				product_id    BIGINT NOT NULL,
				product_name  TEXT NOT NULL,
				has_bio_label BOOLEAN NOT NULL DEFAULT FALSE,
				category_id   BIGINT NOT NULL REFERENCES categories(category_id),
				listed_price  NUMERIC(10,2),
				listed_amount NUMERIC(10,2),
				listed_unit   TEXT,
				is_on_offer   BOOLEAN NOT NULL,
				PRIMARY KEY (date, store_id, product_id)
			)`,
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS product_observations (
				observation_id %s,
				store_id       BIGINT NOT NULL REFERENCES stores(store_id),
				product_id     BIGINT NOT NULL,
				date           DATE NOT NULL,
				listed_price   NUMERIC(10,2),
				listed_amount  NUMERIC(10,2),
				listed_unit    TEXT,
				is_on_offer    BOOLEAN NOT NULL,
				is_available   BOOLEAN NOT NULL
			)`, s.dialect.serialPK),
		`
			CREATE TABLE IF NOT EXISTS daily_statistics (
				date                        DATE NOT NULL,
				store_id                    BIGINT NOT NULL,
				price_min                   NUMERIC(10,4),
				price_max                   NUMERIC(10,4),
				price_mean                  NUMERIC(10,4),
				price_median                NUMERIC(10,4),
				price_skewness              NUMERIC(10,3),
				price_standard_deviation    NUMERIC(10,4),
				price_variance              NUMERIC(10,4),
				price_range                 NUMERIC(10,4),
				price_quartile_1            NUMERIC(10,4),
				price_quartile_3            NUMERIC(10,4),
				iqr                         NUMERIC(10,4),
				amount_total_products       INTEGER,
				amount_bio_products         INTEGER,
				amount_reduced_products     INTEGER,
				percentage_bio_products     NUMERIC(10,4),
				percentage_reduced_products NUMERIC(10,4),
				PRIMARY KEY (date, store_id)
			)`,
		`
			CREATE TABLE IF NOT EXISTS category_statistics (
				date                        DATE NOT NULL,
				store_id                    BIGINT NOT NULL,
				category_id                 BIGINT NOT NULL,
				price_min                   NUMERIC(10,4),
				price_max                   NUMERIC(10,4),
				price_mean                  NUMERIC(10,4),
				price_median                NUMERIC(10,4),
				price_skewness              NUMERIC(10,3),
				price_standard_deviation    NUMERIC(10,4),
				price_variance              NUMERIC(10,4),
				price_range                 NUMERIC(10,4),
				price_quartile_1            NUMERIC(10,4),
				price_quartile_3            NUMERIC(10,4),
				iqr                         NUMERIC(10,4),
				amount_total_products       INTEGER,
				amount_bio_products         INTEGER,
				amount_reduced_products     INTEGER,
				percentage_bio_products     NUMERIC(10,4),
				percentage_reduced_products NUMERIC(10,4),
				green_premium               NUMERIC(10,4),
				average_savings             NUMERIC(10,4),
				PRIMARY KEY (date, store_id, category_id)
			)`,
		`CREATE INDEX IF NOT EXISTS idx_daily_data_date        ON daily_data(date)`,
		`CREATE INDEX IF NOT EXISTS idx_daily_data_store       ON daily_data(store_id)`,
		`CREATE INDEX IF NOT EXISTS idx_observations_pair      ON product_observations(product_id, store_id)`,
		`CREATE INDEX IF NOT EXISTS idx_observations_available ON product_observations(is_available)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
