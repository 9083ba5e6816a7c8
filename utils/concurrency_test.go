package utils

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	pool := NewWorkerPool(2)

	var active, peak, total atomic.Int64
	for i := 0; i < 8; i++ {
		pool.Submit(func() {
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			active.Add(-1)
			total.Add(1)
		})
	}
	pool.Wait()

	if total.Load() != 8 {
		t.Errorf("completed jobs = %d, want 8", total.Load())
	}
	if peak.Load() > 2 {
		t.Errorf("peak concurrency = %d, want at most 2", peak.Load())
	}
}

func TestWorkerPoolMinimumSize(t *testing.T) {
	pool := NewWorkerPool(0)
	ran := false
	pool.Submit(func() { ran = true })
	pool.Wait()
	if !ran {
		t.Error("job never ran in a zero-size pool")
	}
}

func TestRateLimiterSpacing(t *testing.T) {
	interval := 30 * time.Millisecond
	rl := NewRateLimiter(interval)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 2*interval {
		t.Errorf("three requests took %v, want at least %v between them", elapsed, 2*interval)
	}
}

func TestRateLimiterCancelled(t *testing.T) {
	rl := NewRateLimiter(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	cancel()
	if err := rl.Wait(ctx); err == nil {
		t.Error("wait ignored a cancelled context")
	}
}
