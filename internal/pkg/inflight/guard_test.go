package inflight

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestGuardRejectsConcurrentDuplicate(t *testing.T) {
	guard := NewGuard(NewMemoryStore(), time.Second)
	ctx := context.Background()

	if err := guard.Acquire(ctx, "acct-1", "dires_gen_image"); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	if err := guard.Acquire(ctx, "acct-1", "dires_gen_image"); !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest, got %v", err)
	}
}

func TestGuardDistinguishesPairs(t *testing.T) {
	guard := NewGuard(NewMemoryStore(), time.Second)
	ctx := context.Background()

	if err := guard.Acquire(ctx, "acct-1", "dires_gen_image"); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if err := guard.Acquire(ctx, "acct-1", "dires_gen_video"); err != nil {
		t.Fatalf("different product should not collide: %v", err)
	}
	if err := guard.Acquire(ctx, "acct-2", "dires_gen_image"); err != nil {
		t.Fatalf("different account should not collide: %v", err)
	}
}

func TestGuardReleaseAllowsReacquire(t *testing.T) {
	guard := NewGuard(NewMemoryStore(), time.Second)
	ctx := context.Background()

	if err := guard.Acquire(ctx, "acct-1", "dires_gen_image"); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	guard.Release(ctx, "acct-1", "dires_gen_image")
	if err := guard.Acquire(ctx, "acct-1", "dires_gen_image"); err != nil {
		t.Fatalf("acquire after release failed: %v", err)
	}
}

func TestGuardMarkerExpires(t *testing.T) {
	guard := NewGuard(NewMemoryStore(), 10*time.Millisecond)
	ctx := context.Background()

	if err := guard.Acquire(ctx, "acct-1", "dires_gen_image"); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if err := guard.Acquire(ctx, "acct-1", "dires_gen_image"); err != nil {
		t.Fatalf("acquire after expiry failed: %v", err)
	}
}

func TestGuardSingleWinnerUnderContention(t *testing.T) {
	guard := NewGuard(NewMemoryStore(), time.Second)
	ctx := context.Background()

	const goroutines = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := guard.Acquire(ctx, "acct-1", "dires_gen_image"); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}
