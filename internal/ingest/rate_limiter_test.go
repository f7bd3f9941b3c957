package ingest

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiterSpacesSameHost(t *testing.T) {
	limiter := NewRateLimiter(100 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()

	if err := limiter.Wait(ctx, "https://tierheim.example/tiere/rex"); err != nil {
		t.Errorf("First request failed: %v", err)
	}
	if err := limiter.Wait(ctx, "https://tierheim.example/tiere/max"); err != nil {
		t.Errorf("Second request failed: %v", err)
	}

	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("Same-host requests not spaced, elapsed %v", elapsed)
	}
}

func TestRateLimiterHostsAreIndependent(t *testing.T) {
	limiter := NewRateLimiter(200 * time.Millisecond)
	ctx := context.Background()

	if err := limiter.Wait(ctx, "https://tierheim.example/tiere"); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	start := time.Now()
	if err := limiter.Wait(ctx, "https://hundehilfe.example/vermittlung"); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("Different host was delayed, elapsed %v", elapsed)
	}
}

func TestRateLimiterHostOverride(t *testing.T) {
	limiter := NewRateLimiter(50 * time.Millisecond)
	limiter.SetHostDelay("slow.example", 200*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	if err := limiter.Wait(ctx, "https://slow.example/a"); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if err := limiter.Wait(ctx, "https://slow.example/b"); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Errorf("Host override not applied, elapsed %v", elapsed)
	}
}

func TestRateLimiterContextCancellation(t *testing.T) {
	limiter := NewRateLimiter(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	if err := limiter.Wait(ctx, "https://tierheim.example/a"); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	if err := limiter.Wait(ctx, "https://tierheim.example/b"); err == nil {
		t.Error("Expected cancellation error while waiting")
	}
}
