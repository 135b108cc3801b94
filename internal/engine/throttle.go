package engine

import (
	"context"
	"sync"
	"time"

	"github.com/IshaanNene/bookharvest/internal/fetcher"
	"github.com/IshaanNene/bookharvest/internal/types"
)

// Throttle enforces a fixed per-domain politeness delay between fetches.
type Throttle struct {
	delay    time.Duration
	domains  map[string]*domainThrottle
	mu       sync.Mutex
	now      func() time.Time
	sleepCtx func(ctx context.Context, d time.Duration) error
}

// domainThrottle tracks the last fetch time for one domain.
type domainThrottle struct {
	lastFetch time.Time
	mu        sync.Mutex
}

// NewThrottle creates a throttle. A delay of zero disables it.
func NewThrottle(delay time.Duration) *Throttle {
	return &Throttle{
		delay:    delay,
		domains:  make(map[string]*domainThrottle),
		now:      time.Now,
		sleepCtx: sleepCtx,
	}
}

// Wait blocks until the domain may be fetched again or ctx is done.
func (t *Throttle) Wait(ctx context.Context, domain string) error {
	if t == nil || t.delay <= 0 {
		return nil
	}

	t.mu.Lock()
	d, ok := t.domains[domain]
	if !ok {
		d = &domainThrottle{}
		t.domains[domain] = d
	}
	t.mu.Unlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.lastFetch.IsZero() {
		if elapsed := t.now().Sub(d.lastFetch); elapsed < t.delay {
			if err := t.sleepCtx(ctx, t.delay-elapsed); err != nil {
				return err
			}
		}
	}
	d.lastFetch = t.now()
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// throttledFetcher applies a Throttle before every fetch attempt.
type throttledFetcher struct {
	fetcher.Fetcher
	throttle *Throttle
}

func (f throttledFetcher) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	if err := f.throttle.Wait(ctx, req.Domain()); err != nil {
		return nil, err
	}
	return f.Fetcher.Fetch(ctx, req)
}
