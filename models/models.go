package models

// DateFormat is the layout used for all persisted dates. Both SQLite and
// Postgres DATE columns accept it as-is.
const DateFormat = "2006-01-02"

// Units a listing amount can be expressed in. Kilogram and litre amounts are
// stored as matched; converting them down to g/ml is a presentation concern.
const (
	UnitGram       = "g"
	UnitMillilitre = "ml"
	UnitKilogram   = "kg"
	UnitLitre      = "l"
	UnitPiece      = "piece"
)

// StoreLocation is a physical store, created lazily on first sighting.
type StoreLocation struct {
	StoreID   int64
	StoreName string
}

// Category is a product category derived from a URL slug, created lazily.
type Category struct {
	CategoryID   int64
	CategoryName string
}

// Product is one tracked product. The ID is the retailer's and is stable;
// name and category may drift between scrapes.
type Product struct {
	ProductID   int64
	ProductName string
	HasBioLabel bool
	CategoryID  int64
}

// ListingRecord is the in-memory result of extracting one product element.
// It is never persisted directly; the snapshot builder turns a batch of these
// into SnapshotRows.
type ListingRecord struct {
	ProductID    int64
	Name         string
	Amount       float64
	Unit         string
	ListedPrice  float64
	IsOnOffer    bool
	HasBioLabel  bool
	CategorySlug string
	StoreName    string
	Date         string
}

// SnapshotRow is one daily_data row: the latest scrape outcome for a
// (date, store, product) key.
type SnapshotRow struct {
	Date         string
	StoreID      int64
	ProductID    int64
	ProductName  string
	HasBioLabel  bool
	CategoryID   int64
	ListedPrice  float64
	ListedAmount float64
	ListedUnit   string
	IsOnOffer    bool
}

// ProductStoreKey identifies the (product, store) pair that observation
// history is tracked by.
type ProductStoreKey struct {
	ProductID int64
	StoreID   int64
}

// Observation is one product_observations row. For every (product, store)
// pair at most one row is current (IsAvailable = true); the rest are history.
type Observation struct {
	ObservationID int64
	StoreID       int64
	ProductID     int64
	Date          string
	ListedPrice   float64
	ListedAmount  float64
	ListedUnit    string
	IsOnOffer     bool
	IsAvailable   bool
}

// Changed reports whether the tracked attributes of the observation differ
// from the snapshot row for the same (product, store) pair.
func (o Observation) Changed(row SnapshotRow) bool {
	return o.ListedPrice != row.ListedPrice ||
		o.ListedAmount != row.ListedAmount ||
		o.ListedUnit != row.ListedUnit ||
		o.IsOnOffer != row.IsOnOffer
}

// PriceStatistics is the metric set shared by daily_statistics and
// category_statistics rows. All values are rounded before persistence
// (4 decimal places, skewness 3).
type PriceStatistics struct {
	PriceMin                  float64
	PriceMax                  float64
	PriceMean                 float64
	PriceMedian               float64
	PriceSkewness             float64
	PriceStandardDeviation    float64
	PriceVariance             float64
	PriceRange                float64
	PriceQuartile1            float64
	PriceQuartile3            float64
	IQR                       float64
	AmountTotalProducts       int
	AmountBioProducts         int
	AmountReducedProducts     int
	PercentageBioProducts     float64
	PercentageReducedProducts float64
}

// DailyStatistic is one daily_statistics row, keyed by (date, store).
type DailyStatistic struct {
	Date    string
	StoreID int64
	PriceStatistics
}

// CategoryStatistic is one category_statistics row, keyed by
// (date, store, category). GreenPremium and AverageSavings only exist at
// category granularity.
type CategoryStatistic struct {
	Date       string
	StoreID    int64
	CategoryID int64
	PriceStatistics
	GreenPremium   float64
	AverageSavings float64
}
