package storefront

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"grocery-tracker/config"
	"grocery-tracker/models"
	"grocery-tracker/utils"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Crawler fetches every page of one category for one store location. Each
// crawler owns its HTTP client: the session cookie differs per store and
// must not leak across workers.
type Crawler struct {
	client   *http.Client
	logger   *utils.Logger
	limiter  *utils.RateLimiter
	retry    *utils.RetryBudget
	counters *utils.Counters

	storeName   string
	storeCookie string
	cfClearance string
	categoryURL string
	referer     string
	perPage     int
}

// Result carries what one crawl unit produced.
type Result struct {
	Listings []models.ListingRecord
	Pages    int
}

// New creates a crawler for one (store, category) pair. The transient
// failure budget belongs to the crawler, not to any single page.
func New(cfg *config.Config, storeName, categoryURL string,
	limiter *utils.RateLimiter, counters *utils.Counters, logger *utils.Logger) *Crawler {
	logger = logger.Component("storefront")
	return &Crawler{
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
		retry: &utils.RetryBudget{
			MaxFailures: cfg.MaxRetries,
			Delay:       time.Duration(cfg.RetryBackoffMs) * time.Millisecond,
			Logger:      logger,
		},
		limiter:     limiter,
		counters:    counters,
		storeName:   storeName,
		storeCookie: cfg.Stores[storeName],
		cfClearance: cfg.CFClearance,
		categoryURL: categoryURL,
		referer:     refererFor(categoryURL),
		perPage:     cfg.ObjectsPerPage,
	}
}

// refererFor reduces a category URL to its origin, the referer the shop
// frontend itself would send.
func refererFor(categoryURL string) string {
	u, err := url.Parse(categoryURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host + "/"
}

// Crawl walks the category's pages in increasing order. Page 1 discovers the
// last page number; later pages rely on it. A cancelled context lets the
// in-flight page finish, then aborts with the context error. Transient
// failures retry the same page and draw from a budget shared across all
// pages of the unit; exhausting it is fatal for the whole run.
func (c *Crawler) Crawl(ctx context.Context, date string) (*Result, error) {
	slug := CategorySlug(c.categoryURL)
	c.logger.Info("%s — starting to crawl %s", c.storeName, slug)

	result := &Result{}
	page, lastPage := 1, 1
	for page <= lastPage {
		if err := ctx.Err(); err != nil {
			c.logger.Warn("%s — crawl of %s aborted at page %d", c.storeName, slug, page)
			return nil, err
		}

		pageURL := fmt.Sprintf("%s/?objectsPerPage=%d&page=%d", c.categoryURL, c.perPage, page)

		var body []byte
		for {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
			fetched, fetchErr := c.fetch(ctx, pageURL)
			if fetchErr == nil {
				body = fetched
				break
			}
			if err := c.retry.Failure(ctx, fmt.Sprintf("%s page %d", slug, page), fetchErr); err != nil {
				return nil, fmt.Errorf("crawl %s %s: %w", c.storeName, slug, err)
			}
		}

		parsed, err := ParsePage(body, slug, c.storeName, date, c.counters, c.logger)
		if err != nil {
			return nil, fmt.Errorf("crawl %s %s page %d: %w", c.storeName, slug, page, err)
		}
		if page == 1 && parsed.LastPage > 1 {
			lastPage = parsed.LastPage
			c.logger.Info("%s — %s has %d pages", c.storeName, slug, lastPage)
		}

		result.Listings = append(result.Listings, parsed.Listings...)
		result.Pages = page
		c.logger.Info("%s — scraped %s page %d/%d (%d listings)",
			c.storeName, slug, page, lastPage, len(parsed.Listings))
		page++
	}

	c.logger.Info("%s — finished %s: %d pages, %d listings",
		c.storeName, slug, result.Pages, len(result.Listings))
	return result, nil
}

// fetch issues one page request. Every issued call counts towards the HTTP
// total, including retried ones. Non-2xx responses are transient failures
// handled by the retry budget.
func (c *Crawler) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "de-DE,de;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Connection", "keep-alive")
	if c.referer != "" {
		req.Header.Set("Referer", c.referer)
	}
	req.AddCookie(&http.Cookie{Name: "_rdfa", Value: c.storeCookie})
	req.AddCookie(&http.Cookie{Name: "cf_clearance", Value: c.cfClearance})

	c.counters.AddHTTPCall()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("get %s: unexpected status %d", pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", pageURL, err)
	}
	return body, nil
}
