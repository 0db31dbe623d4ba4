package agent

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiter_Burst(t *testing.T) {
	rl := NewRateLimiter(3, 60.0)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("burst token %d: %v", i, err)
		}
	}
}

func TestRateLimiter_RefillWait(t *testing.T) {
	rl := NewRateLimiter(1, 600.0) // 10/sec

	ctx := context.Background()
	if err := rl.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := rl.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("expected to wait for a refill, waited %v", elapsed)
	}
}

func TestRateLimiter_Cancelled(t *testing.T) {
	rl := NewRateLimiter(1, 1.0)
	ctx, cancel := context.WithCancel(context.Background())
	if err := rl.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	if err := rl.Wait(ctx); err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestRateLimiter_NilNeverBlocks(t *testing.T) {
	rl := NewRateLimiter(5, 0)
	if rl != nil {
		t.Fatal("expected nil limiter for zero rate")
	}
	for i := 0; i < 100; i++ {
		if err := rl.Wait(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
}
