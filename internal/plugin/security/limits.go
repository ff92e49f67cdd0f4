package security

import (
	"sync"
	"time"
)

// Limits defines per-plugin resource limits.
type Limits struct {
	// HookTimeout is the maximum time a single lifecycle or event hook may run.
	// Zero means no timeout.
	HookTimeout time.Duration

	// FileOpsPerSecond limits host file operations. Zero means no limit.
	FileOpsPerSecond int

	// FetchesPerSecond limits host network fetches. Zero means no limit.
	FetchesPerSecond int

	// MaxFetchBytes caps the size of a fetched response body.
	MaxFetchBytes int64
}

// DefaultLimits returns the limits applied to plugins unless configured otherwise.
func DefaultLimits() Limits {
	return Limits{
		HookTimeout:      5 * time.Second,
		FileOpsPerSecond: 100,
		FetchesPerSecond: 10,
		MaxFetchBytes:    4 << 20,
	}
}

// StrictLimits returns tighter limits for untrusted plugins.
func StrictLimits() Limits {
	return Limits{
		HookTimeout:      time.Second,
		FileOpsPerSecond: 20,
		FetchesPerSecond: 2,
		MaxFetchBytes:    512 << 10,
	}
}

// RateLimiter is a token bucket rate limiter.
type RateLimiter struct {
	mu sync.Mutex

	rate       float64 // tokens per second
	tokens     float64
	maxTokens  float64 // burst size
	lastRefill time.Time
	now        func() time.Time
}

// NewRateLimiter creates a rate limiter allowing ratePerSecond operations.
// A non-positive rate disables limiting.
func NewRateLimiter(ratePerSecond int) *RateLimiter {
	rl := &RateLimiter{now: time.Now}
	if ratePerSecond <= 0 {
		return rl
	}
	rl.rate = float64(ratePerSecond)
	rl.tokens = rl.rate
	rl.maxTokens = rl.rate
	rl.lastRefill = rl.now()
	return rl
}

// Allow returns true if an operation is allowed and consumes a token.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// No limit
	if rl.rate == 0 {
		return true
	}

	now := rl.now()
	if elapsed := now.Sub(rl.lastRefill); elapsed > 0 {
		rl.tokens += elapsed.Seconds() * rl.rate
		if rl.tokens > rl.maxTokens {
			rl.tokens = rl.maxTokens
		}
		rl.lastRefill = now
	}

	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}

// Reset refills the bucket.
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.tokens = rl.maxTokens
	rl.lastRefill = rl.now()
}
