package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite", filepath.Join(t.TempDir(), "bazaar.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedCategory(t *testing.T, s *Store, name string) {
	t.Helper()
	if _, err := s.db.Exec(`INSERT INTO categories (category_name) VALUES (?)`, name); err != nil {
		t.Fatalf("seed category: %v", err)
	}
}

func productRow(id int64, name string) map[string]any {
	return map[string]any{
		"product_id":    id,
		"product_name":  name,
		"has_bio_label": false,
		"category_id":   int64(1),
	}
}

func productName(t *testing.T, s *Store, id int64) string {
	t.Helper()
	var name string
	if err := s.db.QueryRow(`SELECT product_name FROM products WHERE product_id = ?`, id).Scan(&name); err != nil {
		t.Fatalf("read product %d: %v", id, err)
	}
	return name
}

func tableCount(t *testing.T, s *Store, table string) int {
	t.Helper()
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestUpsertInsertThenUpdate(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	seedCategory(t, s, "obst-gemuese")

	if err := s.Upsert(ctx, TableProducts, []map[string]any{productRow(1, "Apfel")}); err != nil {
		t.Fatalf("initial upsert: %v", err)
	}
	if err := s.Upsert(ctx, TableProducts, []map[string]any{productRow(1, "Bio Apfel")}); err != nil {
		t.Fatalf("conflicting upsert: %v", err)
	}

	if n := tableCount(t, s, "products"); n != 1 {
		t.Errorf("row count = %d, want 1", n)
	}
	if name := productName(t, s, 1); name != "Bio Apfel" {
		t.Errorf("product name = %q, want overwritten value", name)
	}
}

func TestUpsertBatching(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	seedCategory(t, s, "obst-gemuese")

	// more rows than fit in one statement batch
	rows := make([]map[string]any, 0, 150)
	for i := int64(1); i <= 150; i++ {
		rows = append(rows, productRow(i, fmt.Sprintf("Produkt %d", i)))
	}
	if err := s.Upsert(ctx, TableProducts, rows); err != nil {
		t.Fatalf("batched upsert: %v", err)
	}
	if n := tableCount(t, s, "products"); n != 150 {
		t.Errorf("row count = %d, want 150", n)
	}
}

func TestUpsertFallbackPath(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	s.dialect.nativeUpsert = false
	seedCategory(t, s, "obst-gemuese")

	if err := s.Upsert(ctx, TableProducts, []map[string]any{productRow(1, "Apfel")}); err != nil {
		t.Fatalf("initial upsert: %v", err)
	}
	if err := s.Upsert(ctx, TableProducts, []map[string]any{
		productRow(1, "Bio Apfel"),
		productRow(2, "Milch"),
	}); err != nil {
		t.Fatalf("mixed update/insert upsert: %v", err)
	}

	if n := tableCount(t, s, "products"); n != 2 {
		t.Errorf("row count = %d, want 2", n)
	}
	if name := productName(t, s, 1); name != "Bio Apfel" {
		t.Errorf("product name = %q, want overwritten value", name)
	}
	if name := productName(t, s, 2); name != "Milch" {
		t.Errorf("product name = %q, want inserted value", name)
	}
}

func TestUpsertFallbackKeyOnlyRows(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	s.dialect.nativeUpsert = false

	// every column is part of the key, so there is nothing to update and the
	// second round must not attempt a duplicate insert
	row := map[string]any{"date": "2026-08-29", "store_id": int64(1)}
	table := Table{Name: "daily_statistics", PrimaryKey: []string{"date", "store_id"}}

	for i := 0; i < 2; i++ {
		if err := s.Upsert(ctx, table, []map[string]any{row}); err != nil {
			t.Fatalf("upsert round %d: %v", i+1, err)
		}
	}
	if n := tableCount(t, s, "daily_statistics"); n != 1 {
		t.Errorf("row count = %d, want 1", n)
	}
}

func TestUpsertEmptyBatch(t *testing.T) {
	s := openTestStore(t)
	if err := s.Upsert(context.Background(), TableProducts, nil); err != nil {
		t.Errorf("empty batch upsert: %v", err)
	}
}
