package services

import (
	"testing"

	"grocery-tracker/models"
)

func TestNormalizeQuantity(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		amount float64
		unit   string
	}{
		{"plain grams", "500g", 500, models.UnitGram},
		{"spaced grams", "500 g", 500, models.UnitGram},
		{"kilograms", "1kg", 1, models.UnitKilogram},
		{"decimal litres", "0,75l", 0.75, models.UnitLitre},
		{"millilitres", "330ml", 330, models.UnitMillilitre},
		{"multipack with base price note", "6x330ml (1l = 1,82€)", 1980, models.UnitMillilitre},
		{"spaced multipack", "2 x 50g", 100, models.UnitGram},
		{"deposit notice stripped", "0,75l zzgl. 0,25 Pfand", 0.75, models.UnitLitre},
		{"quoted value", `"200g"`, 200, models.UnitGram},
		{"empty string", "", 1, models.UnitPiece},
		{"free text without unit", "je Stück", 1, models.UnitPiece},
		{"multipack without unit", "4x Becher", 4, models.UnitPiece},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, unit := NormalizeQuantity(tt.raw)
			if amount != tt.amount || unit != tt.unit {
				t.Errorf("NormalizeQuantity(%q) = (%v, %q), want (%v, %q)",
					tt.raw, amount, unit, tt.amount, tt.unit)
			}
		})
	}
}
