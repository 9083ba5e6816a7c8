package utils

import "sync/atomic"

// Counters tracks the process-wide observability totals: HTTP calls issued
// and listing elements encountered (including discarded ones). Crawl units
// share one instance instead of mutating ambient globals.
type Counters struct {
	httpCalls  atomic.Int64
	totalItems atomic.Int64
}

func (c *Counters) AddHTTPCall()      { c.httpCalls.Add(1) }
func (c *Counters) AddItems(n int)    { c.totalItems.Add(int64(n)) }
func (c *Counters) HTTPCalls() int64  { return c.httpCalls.Load() }
func (c *Counters) TotalItems() int64 { return c.totalItems.Load() }
