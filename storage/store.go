package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// dialect captures the per-backend SQL differences the store needs: the
// placeholder style, whether INSERT … ON CONFLICT is available, and the
// autoincrement primary key fragment used by the schema.
type dialect struct {
	name         string
	nativeUpsert bool
	dollarParams bool
	serialPK     string
}

var (
	sqliteDialect = dialect{
		name:         "sqlite",
		nativeUpsert: true,
		serialPK:     "INTEGER PRIMARY KEY AUTOINCREMENT",
	}
	postgresDialect = dialect{
		name:         "postgres",
		nativeUpsert: true,
		dollarParams: true,
		serialPK:     "BIGSERIAL PRIMARY KEY",
	}
)

// Store persists snapshots, the product catalog, observation history and the
// aggregate statistics tables.
type Store struct {
	db      *sql.DB
	dialect dialect
}

// Open connects to the configured backend, verifies the connection and
// bootstraps the schema.
func Open(driver, dsn string) (*Store, error) {
	var d dialect
	switch driver {
	case "sqlite":
		d = sqliteDialect
	case "postgres":
		d = postgresDialect
	default:
		return nil, fmt.Errorf("storage: unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}
	if driver == "sqlite" {
		// modernc/sqlite allows one writer; serializing through a single
		// connection avoids SQLITE_BUSY during the snapshot batches.
		db.SetMaxOpenConns(1)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: ping failed after retries: %w", err)
	}

	s := &Store{db: db, dialect: d}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// rebind rewrites ?-style placeholders into the backend's style. Queries in
// this package are written with ?.
func (s *Store) rebind(query string) string {
	if !s.dialect.dollarParams {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// insertReturningID runs an INSERT that yields a generated surrogate key.
func (s *Store) insertReturningID(ctx context.Context, tx *sql.Tx, query string, args ...any) (int64, error) {
	if s.dialect.dollarParams {
		var id int64
		err := tx.QueryRowContext(ctx, s.rebind(query+" RETURNING "+returningColumn(query)), args...).Scan(&id)
		return id, err
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// returningColumn maps the insert target to its surrogate key column.
func returningColumn(query string) string {
	switch {
	case strings.Contains(query, "INTO stores"):
		return "store_id"
	case strings.Contains(query, "INTO categories"):
		return "category_id"
	default:
		return "rowid"
	}
}
