package storage

import (
	"context"
	"testing"

	"grocery-tracker/models"
)

func snapshotRecord(id int64, price float64, slug string) models.ListingRecord {
	return models.ListingRecord{
		ProductID:    id,
		Name:         "Apfel",
		Amount:       500,
		Unit:         models.UnitGram,
		ListedPrice:  price,
		CategorySlug: slug,
		StoreName:    "REWE Center",
		Date:         "2026-08-29",
	}
}

func TestUpsertSnapshotCreatesDimensions(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	records := []models.ListingRecord{
		snapshotRecord(101, 0.59, "obst-gemuese"),
		snapshotRecord(102, 1.19, "kuehlregal"),
	}
	if err := s.UpsertSnapshot(ctx, records); err != nil {
		t.Fatalf("upsert snapshot: %v", err)
	}

	storeID, err := s.StoreID(ctx, "REWE Center")
	if err != nil {
		t.Fatalf("store not created lazily: %v", err)
	}
	if _, err := s.CategoryID(ctx, "obst-gemuese"); err != nil {
		t.Fatalf("category not created lazily: %v", err)
	}
	if _, err := s.CategoryID(ctx, "kuehlregal"); err != nil {
		t.Fatalf("second category not created lazily: %v", err)
	}

	rows, err := s.LoadSnapshots(ctx)
	if err != nil {
		t.Fatalf("load snapshots: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("snapshot rows = %d, want 2", len(rows))
	}
	if rows[0].StoreID != storeID || rows[0].Date != "2026-08-29" {
		t.Errorf("row identity = %+v, want store %d on 2026-08-29", rows[0], storeID)
	}
}

func TestUpsertSnapshotSameDayOverwrite(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.UpsertSnapshot(ctx, []models.ListingRecord{snapshotRecord(101, 0.59, "obst-gemuese")}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := s.UpsertSnapshot(ctx, []models.ListingRecord{snapshotRecord(101, 0.79, "obst-gemuese")}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	rows, err := s.LoadSnapshots(ctx)
	if err != nil {
		t.Fatalf("load snapshots: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("snapshot rows = %d, want 1", len(rows))
	}
	if rows[0].ListedPrice != 0.79 {
		t.Errorf("price = %v, want same-day overwrite to 0.79", rows[0].ListedPrice)
	}
}

func TestUpsertSnapshotRoundsMoney(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	rec := snapshotRecord(101, 1.999, "obst-gemuese")
	rec.Amount = 0.333
	if err := s.UpsertSnapshot(ctx, []models.ListingRecord{rec}); err != nil {
		t.Fatalf("upsert snapshot: %v", err)
	}

	rows, err := s.LoadSnapshots(ctx)
	if err != nil {
		t.Fatalf("load snapshots: %v", err)
	}
	if rows[0].ListedPrice != 2.0 || rows[0].ListedAmount != 0.33 {
		t.Errorf("persisted values = (%v, %v), want rounded (2, 0.33)",
			rows[0].ListedPrice, rows[0].ListedAmount)
	}
}

func TestReplaceCurrentObservation(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if err := s.UpsertSnapshot(ctx, []models.ListingRecord{snapshotRecord(101, 1.99, "obst-gemuese")}); err != nil {
		t.Fatalf("seed store row: %v", err)
	}
	storeID, err := s.StoreID(ctx, "REWE Center")
	if err != nil {
		t.Fatalf("store id: %v", err)
	}
	key := models.ProductStoreKey{ProductID: 101, StoreID: storeID}

	first := models.Observation{
		StoreID: storeID, ProductID: 101, Date: "2026-08-28",
		ListedPrice: 1.99, ListedAmount: 500, ListedUnit: models.UnitGram,
		IsAvailable: true,
	}
	if err := s.InsertObservations(ctx, []models.Observation{first}); err != nil {
		t.Fatalf("insert observation: %v", err)
	}

	next := first
	next.Date = "2026-08-29"
	next.ListedPrice = 2.49
	if err := s.ReplaceCurrentObservation(ctx, key, next); err != nil {
		t.Fatalf("replace observation: %v", err)
	}

	history, err := s.ObservationsFor(ctx, key)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if !history[0].IsAvailable || history[0].ListedPrice != 2.49 {
		t.Errorf("newest row = %+v, want available at 2.49", history[0])
	}
	if history[1].IsAvailable {
		t.Errorf("retired row still available: %+v", history[1])
	}

	current, err := s.CurrentObservations(ctx)
	if err != nil {
		t.Fatalf("current observations: %v", err)
	}
	if len(current) != 1 {
		t.Errorf("current observations = %d, want 1", len(current))
	}
}

func TestMarkUnavailable(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if err := s.UpsertSnapshot(ctx, []models.ListingRecord{snapshotRecord(101, 1.99, "obst-gemuese")}); err != nil {
		t.Fatalf("seed store row: %v", err)
	}
	storeID, err := s.StoreID(ctx, "REWE Center")
	if err != nil {
		t.Fatalf("store id: %v", err)
	}
	key := models.ProductStoreKey{ProductID: 101, StoreID: storeID}

	obs := models.Observation{
		StoreID: storeID, ProductID: 101, Date: "2026-08-28",
		ListedPrice: 1.99, ListedUnit: models.UnitGram, IsAvailable: true,
	}
	if err := s.InsertObservations(ctx, []models.Observation{obs}); err != nil {
		t.Fatalf("insert observation: %v", err)
	}
	if err := s.MarkUnavailable(ctx, key); err != nil {
		t.Fatalf("mark unavailable: %v", err)
	}

	current, err := s.CurrentObservations(ctx)
	if err != nil {
		t.Fatalf("current observations: %v", err)
	}
	if len(current) != 0 {
		t.Errorf("current observations = %d, want 0", len(current))
	}
	history, err := s.ObservationsFor(ctx, key)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].IsAvailable {
		t.Errorf("history = %+v, want one unavailable row", history)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open("mysql", "dsn"); err == nil {
		t.Error("Open accepted an unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	s := &Store{dialect: postgresDialect}
	got := s.rebind("INSERT INTO t (a, b) VALUES (?, ?) ON CONFLICT DO NOTHING WHERE c = ?")
	want := "INSERT INTO t (a, b) VALUES ($1, $2) ON CONFLICT DO NOTHING WHERE c = $3"
	if got != want {
		t.Errorf("rebind = %q, want %q", got, want)
	}

	s = &Store{dialect: sqliteDialect}
	if got := s.rebind("SELECT ?"); got != "SELECT ?" {
		t.Errorf("sqlite rebind rewrote placeholders: %q", got)
	}
}
