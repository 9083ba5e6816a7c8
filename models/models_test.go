package models

import "testing"

func TestObservationChanged(t *testing.T) {
	base := Observation{ListedPrice: 1.99, ListedAmount: 500, ListedUnit: UnitGram}
	row := SnapshotRow{ListedPrice: 1.99, ListedAmount: 500, ListedUnit: UnitGram}

	if base.Changed(row) {
		t.Error("Changed reported a difference for identical attributes")
	}

	tests := []struct {
		name   string
		mutate func(*SnapshotRow)
	}{
		{"price", func(r *SnapshotRow) { r.ListedPrice = 2.49 }},
		{"amount", func(r *SnapshotRow) { r.ListedAmount = 250 }},
		{"unit", func(r *SnapshotRow) { r.ListedUnit = UnitMillilitre }},
		{"offer flag", func(r *SnapshotRow) { r.IsOnOffer = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mutated := row
			tt.mutate(&mutated)
			if !base.Changed(mutated) {
				t.Errorf("Changed missed a %s difference", tt.name)
			}
		})
	}
}
