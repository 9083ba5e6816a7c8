package services

import (
	"regexp"
	"strconv"
	"strings"

	"grocery-tracker/models"
)

var (
	// parenRe matches parenthetical annotations such as "(1l = 1,82€)"
	parenRe = regexp.MustCompile(`\(.*?\)`)
	// quoteRe matches stray quote characters around quantity strings
	quoteRe = regexp.MustCompile(`["']`)
	// depositRe matches bottle deposit notices appended to the quantity
	depositRe = regexp.MustCompile(`zzgl\..*?Pfand`)
	// multiplierRe captures a leading multi-pack multiplier, e.g. "6x" or "6 x"
	multiplierRe = regexp.MustCompile(`^\s*(\d+)\s*[xX]`)
)

// unitRes is ordered by match priority: a numeral directly in front of the
// token wins, so "330ml" resolves before "l" gets a chance.
var unitRes = []struct {
	unit string
	re   *regexp.Regexp
}{
	{models.UnitGram, regexp.MustCompile(`(\d+(?:,\d+)?)\s*g\b`)},
	{models.UnitMillilitre, regexp.MustCompile(`(\d+(?:,\d+)?)\s*ml\b`)},
	{models.UnitKilogram, regexp.MustCompile(`(\d+(?:,\d+)?)\s*kg\b`)},
	{models.UnitLitre, regexp.MustCompile(`(\d+(?:,\d+)?)\s*l\b`)},
}

// NormalizeQuantity maps a free-text quantity string to an (amount, unit)
// pair. Units are recorded as matched; kg/l are not converted down to g/ml
// here. Anything unparseable falls back to a single piece; this function
// never fails.
func NormalizeQuantity(raw string) (float64, string) {
	s := parenRe.ReplaceAllString(raw, "")
	s = quoteRe.ReplaceAllString(s, "")
	s = depositRe.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")

	amount := 1.0
	unit := models.UnitPiece

	for _, cand := range unitRes {
		m := cand.re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
		if err != nil {
			continue
		}
		amount = v
		unit = cand.unit
		break
	}

	if m := multiplierRe.FindStringSubmatch(s); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			amount *= float64(n)
		}
	}

	return amount, unit
}
