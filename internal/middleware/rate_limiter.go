package middleware

import (
	"context"
	"sync"
	"time"
)

const cleanupInterval = 5 * time.Minute

// RateLimiter implements a simple in-memory fixed-window limiter per user
type RateLimiter struct {
	userLimits map[int64]*userLimit
	mu         sync.RWMutex

	userMaxRequests int
	window          time.Duration
	now             func() time.Time
}

type userLimit struct {
	requests  int
	resetTime time.Time
}

// NewRateLimiter creates a new rate limiter. A non-positive limit disables limiting.
func NewRateLimiter(userMaxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		userLimits:      make(map[int64]*userLimit),
		userMaxRequests: userMaxRequests,
		window:          window,
		now:             time.Now,
	}
}

// Run removes expired entries until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

// CheckUserLimit checks if user has exceeded rate limit
func (rl *RateLimiter) CheckUserLimit(userID int64) bool {
	if rl.userMaxRequests <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	// Get or create user limit
	limit, exists := rl.userLimits[userID]
	if !exists || now.After(limit.resetTime) {
		rl.userLimits[userID] = &userLimit{
			requests:  1,
			resetTime: now.Add(rl.window),
		}
		return true
	}

	// Check if limit exceeded
	if limit.requests >= rl.userMaxRequests {
		return false
	}

	// Increment counter
	limit.requests++
	return true
}

// RetryAfter returns how long the user has to wait before the next request is accepted.
// It is zero when the user is not throttled.
func (rl *RateLimiter) RetryAfter(userID int64) time.Duration {
	if rl.userMaxRequests <= 0 {
		return 0
	}

	rl.mu.RLock()
	defer rl.mu.RUnlock()

	now := rl.now()
	limit, exists := rl.userLimits[userID]
	if !exists || now.After(limit.resetTime) || limit.requests < rl.userMaxRequests {
		return 0
	}
	return limit.resetTime.Sub(now)
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	// Drop windows that already ended
	for userID, limit := range rl.userLimits {
		if now.After(limit.resetTime) {
			delete(rl.userLimits, userID)
		}
	}
}
