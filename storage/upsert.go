package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// Table describes an upsert target. The primary key column set is the
// authority for conflict resolution; every other column present in the row
// maps gets overwritten on conflict.
type Table struct {
	Name       string
	PrimaryKey []string
}

var (
	TableProducts = Table{
		Name:       "products",
		PrimaryKey: []string{"product_id"},
	}
	TableDailyData = Table{
		Name:       "daily_data",
		PrimaryKey: []string{"date", "store_id", "product_id"},
	}
	TableDailyStatistics = Table{
		Name:       "daily_statistics",
		PrimaryKey: []string{"date", "store_id"},
	}
	TableCategoryStatistics = Table{
		Name:       "category_statistics",
		PrimaryKey: []string{"date", "store_id", "category_id"},
	}
)

// upsertBatchSize bounds the bind parameters of a single statement.
const upsertBatchSize = 100

// Upsert inserts the rows, overwriting all non-key columns of rows whose
// primary key already exists. The whole batch runs in one transaction, so
// readers never observe a partially applied batch.
func (s *Store) Upsert(ctx context.Context, table Table, rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert %s: begin: %w", table.Name, err)
	}
	defer tx.Rollback()

	if err := s.upsertTx(ctx, tx, table, rows); err != nil {
		return err
	}
	return tx.Commit()
}

// upsertTx is the transaction-scoped body of Upsert, shared with the
// snapshot writer which batches more work into the same transaction.
func (s *Store) upsertTx(ctx context.Context, tx *sql.Tx, table Table, rows []map[string]any) error {
	columns := rowColumns(rows[0])

	if !s.dialect.nativeUpsert {
		return s.upsertEachRow(ctx, tx, table, columns, rows)
	}

	for start := 0; start < len(rows); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := s.upsertNative(ctx, tx, table, columns, rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// upsertNative issues one multi-row INSERT … ON CONFLICT (pk) DO UPDATE.
func (s *Store) upsertNative(ctx context.Context, tx *sql.Tx, table Table, columns []string, rows []map[string]any) error {
	updatable := nonKeyColumns(table, columns)

	valueRow := "(" + strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",") + ")"
	valueRows := make([]string, len(rows))
	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		valueRows[i] = valueRow
		for _, col := range columns {
			args = append(args, row[col])
		}
	}

	conflict := "DO NOTHING"
	if len(updatable) > 0 {
		assignments := make([]string, len(updatable))
		for i, col := range updatable {
			assignments[i] = fmt.Sprintf("%s = excluded.%s", col, col)
		}
		conflict = "DO UPDATE SET " + strings.Join(assignments, ", ")
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES %s ON CONFLICT (%s) %s",
		table.Name,
		strings.Join(columns, ", "),
		strings.Join(valueRows, ","),
		strings.Join(table.PrimaryKey, ", "),
		conflict,
	)
	if _, err := tx.ExecContext(ctx, s.rebind(query), args...); err != nil {
		return fmt.Errorf("upsert %s: %w", table.Name, err)
	}
	return nil
}

// upsertEachRow is the fallback for backends without native upsert support:
// update by key first, insert only when no row matched.
func (s *Store) upsertEachRow(ctx context.Context, tx *sql.Tx, table Table, columns []string, rows []map[string]any) error {
	updatable := nonKeyColumns(table, columns)

	for _, row := range rows {
		matched := int64(1)
		if len(updatable) > 0 {
			assignments := make([]string, len(updatable))
			args := make([]any, 0, len(columns))
			for i, col := range updatable {
				assignments[i] = col + " = ?"
				args = append(args, row[col])
			}
			conditions := make([]string, len(table.PrimaryKey))
			for i, col := range table.PrimaryKey {
				conditions[i] = col + " = ?"
				args = append(args, row[col])
			}
			query := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
				table.Name, strings.Join(assignments, ", "), strings.Join(conditions, " AND "))
			res, err := tx.ExecContext(ctx, s.rebind(query), args...)
			if err != nil {
				return fmt.Errorf("upsert %s: update: %w", table.Name, err)
			}
			matched, err = res.RowsAffected()
			if err != nil {
				return fmt.Errorf("upsert %s: rows affected: %w", table.Name, err)
			}
		} else {
			// Nothing to update when every column is part of the key; an
			// existence probe decides whether the insert is needed.
			conditions := make([]string, len(table.PrimaryKey))
			args := make([]any, 0, len(table.PrimaryKey))
			for i, col := range table.PrimaryKey {
				conditions[i] = col + " = ?"
				args = append(args, row[col])
			}
			query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s",
				table.Name, strings.Join(conditions, " AND "))
			if err := tx.QueryRowContext(ctx, s.rebind(query), args...).Scan(&matched); err != nil {
				return fmt.Errorf("upsert %s: probe: %w", table.Name, err)
			}
		}
		if matched > 0 {
			continue
		}

		args := make([]any, 0, len(columns))
		for _, col := range columns {
			args = append(args, row[col])
		}
		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			table.Name,
			strings.Join(columns, ", "),
			strings.TrimSuffix(strings.Repeat("?,", len(columns)), ","))
		if _, err := tx.ExecContext(ctx, s.rebind(query), args...); err != nil {
			return fmt.Errorf("upsert %s: insert: %w", table.Name, err)
		}
	}
	return nil
}

func rowColumns(row map[string]any) []string {
	columns := make([]string, 0, len(row))
	for col := range row {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	return columns
}

func nonKeyColumns(table Table, columns []string) []string {
	keys := make(map[string]struct{}, len(table.PrimaryKey))
	for _, col := range table.PrimaryKey {
		keys[col] = struct{}{}
	}
	var out []string
	for _, col := range columns {
		if _, isKey := keys[col]; !isKey {
			out = append(out, col)
		}
	}
	return out
}
