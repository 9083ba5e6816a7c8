package main

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"grocery-tracker/config"
	"grocery-tracker/models"
	"grocery-tracker/scraper/storefront"
	"grocery-tracker/services"
	"grocery-tracker/storage"
	"grocery-tracker/utils"
)

func main() {
	logger := utils.NewLogger()
	start := time.Now()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Configuration error: %v", err)
		os.Exit(1)
	}

	logger.Info("=== Grocery price tracker starting ===")
	logger.Info("Config — stores: %d | categories: %d | concurrency: %d | politeness: %dms",
		len(cfg.Stores), len(cfg.CategoryURLs), cfg.MaxConcurrency, cfg.PolitenessMs)

	store, err := storage.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		logger.Error("Failed to open database: %v", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	date := time.Now().Format(models.DateFormat)
	counters := &utils.Counters{}

	builders, failed := crawlAll(ctx, cfg, date, counters, logger)

	// Persistence continues on a fresh context: completed work is committed
	// even when the crawl phase was cancelled.
	dbCtx := context.Background()

	runFailed := len(failed) > 0
	committed := 0
	for _, storeName := range sortedStoreNames(cfg.Stores) {
		if failed[storeName] {
			logger.Warn("Skipping snapshot for %s — crawl incomplete", storeName)
			continue
		}
		b := builders[storeName]
		if b == nil || b.Len() == 0 {
			logger.Warn("No listings collected for %s", storeName)
			continue
		}
		if err := store.UpsertSnapshot(dbCtx, b.Records()); err != nil {
			logger.Error("Snapshot upsert for %s failed: %v", storeName, err)
			runFailed = true
			continue
		}
		logger.Info("Snapshot committed for %s — %d products", storeName, b.Len())
		committed++
	}

	// Reconciliation and statistics need the complete day: partial-day data
	// would produce bogus availability flips and skewed aggregates.
	if runFailed {
		logger.Error("Run incomplete — skipping reconciliation and statistics")
	} else if committed > 0 {
		reconciler := services.NewReconciler(store, logger)
		if err := reconciler.Run(dbCtx); err != nil {
			logger.Error("Reconciliation failed: %v", err)
			runFailed = true
		}

		if !runFailed {
			engine := services.NewStatisticsEngine(store, logger)
			if err := engine.Run(dbCtx); err != nil {
				logger.Error("Statistics failed: %v", err)
				runFailed = true
			}
		}

		if !runFailed && cfg.DrainSnapshots {
			if err := store.DrainSnapshots(dbCtx); err != nil {
				logger.Error("Draining snapshots failed: %v", err)
				runFailed = true
			}
		}
	}

	elapsed := time.Since(start)
	logger.Info("FINISHED — HTTP calls: %d | items found: %d | snapshots committed: %d | runtime: %dm%ds",
		counters.HTTPCalls(), counters.TotalItems(), committed,
		int(elapsed.Minutes()), int(elapsed.Seconds())%60)

	if runFailed {
		os.Exit(1)
	}
}

// crawlAll runs one crawl unit per (store, category) pair through a bounded
// worker pool, gated by a single process-global politeness limiter, and
// collects the listings into one snapshot builder per store.
func crawlAll(ctx context.Context, cfg *config.Config, date string,
	counters *utils.Counters, logger *utils.Logger) (map[string]*services.SnapshotBuilder, map[string]bool) {

	type unitResult struct {
		storeName string
		result    *storefront.Result
		err       error
	}

	limiter := utils.NewRateLimiter(time.Duration(cfg.PolitenessMs) * time.Millisecond)
	pool := utils.NewWorkerPool(cfg.MaxConcurrency)
	results := make(chan unitResult, len(cfg.Stores)*len(cfg.CategoryURLs))

	for _, storeName := range sortedStoreNames(cfg.Stores) {
		for _, categoryURL := range cfg.CategoryURLs {
			storeName, categoryURL := storeName, categoryURL
			pool.Submit(func() {
				crawler := storefront.New(cfg, storeName, categoryURL, limiter, counters, logger)
				result, err := crawler.Crawl(ctx, date)
				results <- unitResult{storeName: storeName, result: result, err: err}
			})
		}
	}
	pool.Wait()
	close(results)

	builders := make(map[string]*services.SnapshotBuilder)
	failed := make(map[string]bool)
	for r := range results {
		if r.err != nil {
			logger.Error("Crawl unit for %s failed: %v", r.storeName, r.err)
			failed[r.storeName] = true
			continue
		}
		b := builders[r.storeName]
		if b == nil {
			b = services.NewSnapshotBuilder(r.storeName, date)
			builders[r.storeName] = b
		}
		b.Add(r.result.Listings...)
	}
	return builders, failed
}

func sortedStoreNames(stores map[string]string) []string {
	names := make([]string, 0, len(stores))
	for name := range stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
