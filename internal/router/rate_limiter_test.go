package router

import (
	"testing"
	"time"
)

// TestRateLimiter_ExactLimits tests exact rate limiting behavior
func TestRateLimiter_ExactLimits(t *testing.T) {
	limiter := NewRateLimiter(100)
	key := "conn1"

	for i := 0; i < 100; i++ {
		if !limiter.Allow(key) {
			t.Fatalf("event %d should be allowed (within 100 limit)", i+1)
		}
	}
	if limiter.Allow(key) {
		t.Error("101st event should be denied")
	}
	if !limiter.Allow("conn2") {
		t.Error("limits are per key")
	}
}

func TestRateLimiter_WindowReset(t *testing.T) {
	limiter := NewRateLimiter(1)
	now := time.Unix(1000, 0)
	limiter.now = func() time.Time { return now }

	if !limiter.Allow("k") || limiter.Allow("k") {
		t.Fatal("limit of one per window not enforced")
	}
	now = now.Add(time.Minute)
	if !limiter.Allow("k") {
		t.Error("new window should allow again")
	}
}

func TestRateLimiter_Forget(t *testing.T) {
	limiter := NewRateLimiter(1)
	limiter.Allow("k")
	limiter.Forget("k")
	if !limiter.Allow("k") {
		t.Error("forgotten key should start fresh")
	}
}

func TestRouter_ErrorRepliesAreCapped(t *testing.T) {
	h := newHarness(t)
	ch := h.open("c1")
	for i := 0; i < DefaultErrorRepliesPerMinute+20; i++ {
		h.send("c1", "garbage")
	}
	if ch.count() != DefaultErrorRepliesPerMinute {
		t.Errorf("error replies = %d, want %d", ch.count(), DefaultErrorRepliesPerMinute)
	}
}
