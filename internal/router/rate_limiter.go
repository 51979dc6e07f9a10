package router

import (
	"sync"
	"time"
)

// DefaultErrorRepliesPerMinute caps error events sent back to one connection.
const DefaultErrorRepliesPerMinute = 100

// RateLimiter implements per-key fixed-window rate limiting.
// The router uses it so a client sending garbage cannot turn every frame into
// an outbound error event. Inbound intents themselves are never throttled.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clients map[string]*ClientLimit
	now     func() time.Time
}

// ClientLimit tracks usage for a single key within the current window.
type ClientLimit struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter allows limit events per key per minute.
func NewRateLimiter(limit int) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  time.Minute,
		clients: make(map[string]*ClientLimit),
		now:     time.Now,
	}
}

// Allow reports whether key may emit one more event in the current window.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	limit, exists := rl.clients[key]
	if !exists {
		rl.clients[key] = &ClientLimit{count: 1, windowStart: now}
		return true
	}

	if now.Sub(limit.windowStart) >= rl.window {
		limit.count = 1
		limit.windowStart = now
		return true
	}

	if limit.count >= rl.limit {
		return false
	}
	limit.count++
	return true
}

// Forget drops the state kept for key, e.g. when its connection closes.
func (rl *RateLimiter) Forget(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.clients, key)
}
