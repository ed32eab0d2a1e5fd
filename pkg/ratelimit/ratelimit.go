// Package ratelimit bounds outbound request pressure per target host.
//
// Each host gets an independent budget of {max concurrent requests,
// minimum interval between request starts}. A slow or heavily limited host
// never throttles requests to unrelated hosts.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Budget configures the per-host limits. Zero values disable the
// corresponding limit.
type Budget struct {
	// MaxConcurrent caps in-flight requests to one host.
	MaxConcurrent int
	// MinInterval spaces out request starts to one host.
	MinInterval time.Duration
}

// Permit represents the right to issue one request to a host. Release must
// be called exactly once when the request attempt completes.
type Permit struct {
	release func()
}

func (p Permit) Release() {
	if p.release != nil {
		p.release()
	}
}

type hostLimiter struct {
	sem    *semaphore.Weighted
	pacer  *rate.Limiter
	budget Budget
}

// Table tracks independent limiters per host. The zero value is not usable;
// construct with NewTable.
type Table struct {
	defaults Budget
	overrides map[string]Budget

	mu    sync.Mutex
	hosts map[string]*hostLimiter
}

// NewTable builds a limiter table with a default budget and optional
// per-host overrides.
func NewTable(defaults Budget, overrides map[string]Budget) *Table {
	ov := make(map[string]Budget, len(overrides))
	for h, b := range overrides {
		ov[h] = b
	}
	return &Table{
		defaults:  defaults,
		overrides: ov,
		hosts:     make(map[string]*hostLimiter),
	}
}

// Admit blocks until the host's budget allows one more request, or the
// context is done. Waiters for the concurrency slot are served in arrival
// order (semaphore.Weighted queues FIFO), so a burst never starves an
// earlier caller.
func (t *Table) Admit(ctx context.Context, host string) (Permit, error) {
	hl := t.forHost(host)

	if hl.sem != nil {
		if err := hl.sem.Acquire(ctx, 1); err != nil {
			return Permit{}, err
		}
	}
	if hl.pacer != nil {
		if err := hl.pacer.Wait(ctx); err != nil {
			if hl.sem != nil {
				hl.sem.Release(1)
			}
			return Permit{}, err
		}
	}

	var once sync.Once
	return Permit{release: func() {
		once.Do(func() {
			if hl.sem != nil {
				hl.sem.Release(1)
			}
		})
	}}, nil
}

func (t *Table) forHost(host string) *hostLimiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	if hl, ok := t.hosts[host]; ok {
		return hl
	}

	b := t.defaults
	if ov, ok := t.overrides[host]; ok {
		b = ov
	}

	hl := &hostLimiter{budget: b}
	if b.MaxConcurrent > 0 {
		hl.sem = semaphore.NewWeighted(int64(b.MaxConcurrent))
	}
	if b.MinInterval > 0 {
		hl.pacer = rate.NewLimiter(rate.Every(b.MinInterval), 1)
	}
	t.hosts[host] = hl
	return hl
}
