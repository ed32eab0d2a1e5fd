package ratelimit_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/scholarpipe/harvester/pkg/ratelimit"
)

func TestAdmitCapsConcurrencyPerHost(t *testing.T) {
	t.Parallel()

	table := ratelimit.NewTable(ratelimit.Budget{MaxConcurrent: 2}, nil)

	var inFlight atomic.Int32
	var peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			permit, err := table.Admit(context.Background(), "api.example.org")
			if err != nil {
				t.Errorf("admit: %v", err)
				return
			}
			defer permit.Release()

			cur := inFlight.Add(1)
			for {
				p := peak.Load()
				if cur <= p || peak.CompareAndSwap(p, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
		}()
	}
	wg.Wait()

	if got := peak.Load(); got > 2 {
		t.Fatalf("peak in-flight = %d, budget allows 2", got)
	}
}

func TestAdmitPacesRequestStarts(t *testing.T) {
	t.Parallel()

	table := ratelimit.NewTable(ratelimit.Budget{MaxConcurrent: 1, MinInterval: 20 * time.Millisecond}, nil)

	start := time.Now()
	for i := 0; i < 5; i++ {
		permit, err := table.Admit(context.Background(), "slow.example.org")
		if err != nil {
			t.Fatalf("admit %d: %v", i, err)
		}
		permit.Release()
	}
	elapsed := time.Since(start)

	// 5 starts with a 20ms minimum interval need at least 4 gaps.
	if elapsed < 80*time.Millisecond {
		t.Fatalf("5 admits finished in %s, want >= 80ms", elapsed)
	}
}

func TestHostsAreIndependent(t *testing.T) {
	t.Parallel()

	table := ratelimit.NewTable(
		ratelimit.Budget{MaxConcurrent: 4},
		map[string]ratelimit.Budget{"limited.example.org": {MaxConcurrent: 1, MinInterval: time.Hour}},
	)

	// Saturate the limited host without releasing.
	permit, err := table.Admit(context.Background(), "limited.example.org")
	if err != nil {
		t.Fatalf("admit limited: %v", err)
	}
	defer permit.Release()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	other, err := table.Admit(ctx, "fast.example.org")
	if err != nil {
		t.Fatalf("unrelated host blocked by limited host: %v", err)
	}
	other.Release()
}

func TestAdmitHonorsContextCancel(t *testing.T) {
	t.Parallel()

	table := ratelimit.NewTable(ratelimit.Budget{MaxConcurrent: 1}, nil)

	held, err := table.Admit(context.Background(), "api.example.org")
	if err != nil {
		t.Fatalf("first admit: %v", err)
	}
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := table.Admit(ctx, "api.example.org"); err == nil {
		t.Fatal("expected admit to fail once the context expired")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	t.Parallel()

	table := ratelimit.NewTable(ratelimit.Budget{MaxConcurrent: 1}, nil)

	permit, err := table.Admit(context.Background(), "api.example.org")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	permit.Release()
	permit.Release() // second release must not free a slot twice

	// The single slot must still behave like a single slot.
	p1, err := table.Admit(context.Background(), "api.example.org")
	if err != nil {
		t.Fatalf("re-admit: %v", err)
	}
	defer p1.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := table.Admit(ctx, "api.example.org"); err == nil {
		t.Fatal("double release freed an extra slot")
	}
}
