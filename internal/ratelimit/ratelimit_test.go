package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryRateLimiter_AllowsUnderLimit(t *testing.T) {
	limiter := NewInMemoryRateLimiter()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		allowed, remaining, _, err := limiter.Allow(ctx, "acct", 5)
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		if remaining != 5-i-1 {
			t.Errorf("request %d remaining = %d, want %d", i+1, remaining, 5-i-1)
		}
	}
}

func TestInMemoryRateLimiter_RejectsOverLimit(t *testing.T) {
	limiter := NewInMemoryRateLimiter()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		limiter.Allow(ctx, "acct", 3)
	}

	allowed, remaining, resetAt, err := limiter.Allow(ctx, "acct", 3)
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if allowed {
		t.Error("request over limit should be rejected")
	}
	if remaining != 0 {
		t.Errorf("remaining = %d, want 0", remaining)
	}
	if !resetAt.After(time.Now()) {
		t.Error("resetAt should be in the future")
	}
}

func TestInMemoryRateLimiter_IsolatesAccounts(t *testing.T) {
	limiter := NewInMemoryRateLimiter()
	ctx := context.Background()

	limiter.Allow(ctx, "a", 1)

	allowed, _, _, _ := limiter.Allow(ctx, "b", 1)
	if !allowed {
		t.Error("account b should not share account a's window")
	}
}
