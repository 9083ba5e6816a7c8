package services

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	"grocery-tracker/models"
	"grocery-tracker/storage"
	"grocery-tracker/utils"
)

// Scope selects the subset a statistics computation runs over: the whole
// snapshot, or one category of it.
type Scope struct {
	CategoryID  int64
	PerCategory bool
}

// Overall is the whole-snapshot scope.
var Overall = Scope{}

// CategoryScope restricts the computation to one category.
func CategoryScope(id int64) Scope {
	return Scope{CategoryID: id, PerCategory: true}
}

// Calculate computes the descriptive price statistics over the scope's
// subset of rows. greenPremium and averageSavings are only meaningful for
// category scopes and are 0 otherwise. ok is false when the subset is empty,
// in which case no statistics row must be written.
func Calculate(rows []models.SnapshotRow, scope Scope) (ps models.PriceStatistics, greenPremium, averageSavings float64, ok bool) {
	subset := rows
	if scope.PerCategory {
		subset = nil
		for _, r := range rows {
			if r.CategoryID == scope.CategoryID {
				subset = append(subset, r)
			}
		}
	}
	if len(subset) == 0 {
		return models.PriceStatistics{}, 0, 0, false
	}

	prices := make([]float64, 0, len(subset))
	var bioPrices, regularPrices []float64
	bio, reduced := 0, 0
	for _, r := range subset {
		prices = append(prices, r.ListedPrice)
		if r.HasBioLabel {
			bio++
			bioPrices = append(bioPrices, r.ListedPrice)
		}
		if r.IsOnOffer {
			reduced++
		} else {
			regularPrices = append(regularPrices, r.ListedPrice)
		}
	}

	min, _ := stats.Min(prices)
	max, _ := stats.Max(prices)
	mean, _ := stats.Mean(prices)
	median, _ := stats.Median(prices)

	var stddev, variance float64
	if len(prices) > 1 {
		stddev, _ = stats.StandardDeviationSample(prices)
		variance, _ = stats.SampleVariance(prices)
	}

	sorted := append([]float64(nil), prices...)
	sort.Float64s(sorted)
	q1 := quantile(sorted, 0.25)
	q3 := quantile(sorted, 0.75)

	total := len(subset)
	ps = models.PriceStatistics{
		PriceMin:               round(min, 4),
		PriceMax:               round(max, 4),
		PriceMean:              round(mean, 4),
		PriceMedian:            round(median, 4),
		PriceSkewness:          round(skewness(prices, mean), 3),
		PriceStandardDeviation: round(stddev, 4),
		PriceVariance:          round(variance, 4),
		PriceRange:             round(max-min, 4),
		PriceQuartile1:         round(q1, 4),
		PriceQuartile3:         round(q3, 4),
		IQR:                    round(q3-q1, 4),
		AmountTotalProducts:    total,
		AmountBioProducts:      bio,
		AmountReducedProducts:  reduced,
	}
	if bio > 0 {
		ps.PercentageBioProducts = round(float64(bio)/float64(total)*100, 4)
	}
	if reduced > 0 {
		ps.PercentageReducedProducts = round(float64(reduced)/float64(total)*100, 4)
	}

	if scope.PerCategory {
		if bio > 0 {
			bioMedian, _ := stats.Median(bioPrices)
			greenPremium = round(bioMedian-median, 4)
		}
		// Faithful to the source system: median of the rows NOT on offer
		// minus the overall median, gated on offer rows existing at all.
		if reduced > 0 && len(regularPrices) > 0 {
			regularMedian, _ := stats.Median(regularPrices)
			averageSavings = round(regularMedian-median, 4)
		}
	}

	return ps, greenPremium, averageSavings, true
}

// quantile interpolates linearly between the two closest ranks of an already
// sorted sample; stats.Percentile uses a different method and does not
// reproduce these values.
func quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	h := p * float64(n-1)
	lo := int(math.Floor(h))
	frac := h - float64(lo)
	if lo >= n-1 {
		return sorted[n-1]
	}
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// skewness is the adjusted Fisher-Pearson coefficient, matching what the
// aggregate tables historically held. Undefined below three samples or for a
// constant series; reported as 0 then.
func skewness(prices []float64, mean float64) float64 {
	n := float64(len(prices))
	if n < 3 {
		return 0
	}
	var m2, m3 float64
	for _, p := range prices {
		d := p - mean
		m2 += d * d
		m3 += d * d * d
	}
	m2 /= n
	m3 /= n
	if m2 == 0 {
		return 0
	}
	g1 := m3 / math.Pow(m2, 1.5)
	return g1 * math.Sqrt(n*(n-1)) / (n - 2)
}

func round(v float64, places int) float64 {
	r, err := stats.Round(v, places)
	if err != nil {
		return 0
	}
	return r
}

// StatisticsEngine computes and persists the aggregate tables for every
// (date, store) snapshot currently held, and for every category present in
// each of those snapshots.
type StatisticsEngine struct {
	store  *storage.Store
	logger *utils.Logger
}

// NewStatisticsEngine creates a StatisticsEngine writing through the store.
func NewStatisticsEngine(store *storage.Store, logger *utils.Logger) *StatisticsEngine {
	return &StatisticsEngine{store: store, logger: logger.Component("statistics")}
}

type dateStoreKey struct {
	date    string
	storeID int64
}

// Run loads all snapshots and upserts one daily_statistics row per
// (date, store) group plus one category_statistics row per category present
// in that group. Empty groups and empty category subsets produce no rows.
func (e *StatisticsEngine) Run(ctx context.Context) error {
	snapshots, err := e.store.LoadSnapshots(ctx)
	if err != nil {
		return fmt.Errorf("statistics: load snapshots: %w", err)
	}
	if len(snapshots) == 0 {
		e.logger.Info("no snapshot data, nothing to compute")
		return nil
	}

	groups := make(map[dateStoreKey][]models.SnapshotRow)
	for _, row := range snapshots {
		k := dateStoreKey{row.Date, row.StoreID}
		groups[k] = append(groups[k], row)
	}
	keys := make([]dateStoreKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].date != keys[j].date {
			return keys[i].date < keys[j].date
		}
		return keys[i].storeID < keys[j].storeID
	})

	for _, k := range keys {
		rows := groups[k]

		ps, _, _, ok := Calculate(rows, Overall)
		if !ok {
			continue
		}
		e.logger.Info("daily statistics — date: %s store: %d products: %d",
			k.date, k.storeID, ps.AmountTotalProducts)
		if err := e.store.UpsertDailyStatistic(ctx, models.DailyStatistic{
			Date:            k.date,
			StoreID:         k.storeID,
			PriceStatistics: ps,
		}); err != nil {
			return fmt.Errorf("statistics: upsert daily row: %w", err)
		}

		for _, categoryID := range distinctCategories(rows) {
			cs, greenPremium, averageSavings, ok := Calculate(rows, CategoryScope(categoryID))
			if !ok {
				continue
			}
			e.logger.Info("category statistics — date: %s store: %d category: %d",
				k.date, k.storeID, categoryID)
			if err := e.store.UpsertCategoryStatistic(ctx, models.CategoryStatistic{
				Date:            k.date,
				StoreID:         k.storeID,
				CategoryID:      categoryID,
				PriceStatistics: cs,
				GreenPremium:    greenPremium,
				AverageSavings:  averageSavings,
			}); err != nil {
				return fmt.Errorf("statistics: upsert category row: %w", err)
			}
		}
	}
	return nil
}

func distinctCategories(rows []models.SnapshotRow) []int64 {
	seen := make(map[int64]struct{})
	var out []int64
	for _, r := range rows {
		if _, ok := seen[r.CategoryID]; !ok {
			seen[r.CategoryID] = struct{}{}
			out = append(out, r.CategoryID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
