package services

import (
	"testing"

	"grocery-tracker/models"
)

func TestSnapshotBuilderDeduplicates(t *testing.T) {
	b := NewSnapshotBuilder("REWE Center", "2026-08-29")

	b.Add(
		models.ListingRecord{ProductID: 2, Name: "Milch", ListedPrice: 1.19, CategorySlug: "kuehlregal"},
		models.ListingRecord{ProductID: 1, Name: "Apfel", ListedPrice: 0.59, CategorySlug: "obst-gemuese"},
	)
	// same product surfaces again in another category with a newer price
	b.Add(models.ListingRecord{ProductID: 2, Name: "Milch", ListedPrice: 0.99, CategorySlug: "angebote"})

	if b.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", b.Len())
	}

	records := b.Records()
	if records[0].ProductID != 1 || records[1].ProductID != 2 {
		t.Errorf("Records() not in product-id order: %v, %v", records[0].ProductID, records[1].ProductID)
	}
	if records[1].ListedPrice != 0.99 || records[1].CategorySlug != "angebote" {
		t.Errorf("duplicate product not overwritten by later record: %+v", records[1])
	}
	for _, rec := range records {
		if rec.StoreName != "REWE Center" || rec.Date != "2026-08-29" {
			t.Errorf("record not stamped with builder identity: %+v", rec)
		}
	}
}

func TestSnapshotBuilderEmpty(t *testing.T) {
	b := NewSnapshotBuilder("REWE Center", "2026-08-29")
	if b.Len() != 0 {
		t.Errorf("Len() = %d, want 0", b.Len())
	}
	if got := b.Records(); len(got) != 0 {
		t.Errorf("Records() = %v, want empty", got)
	}
}
