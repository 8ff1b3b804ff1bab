package infrastructure

import (
	"sync"
	"time"
)

// MessageRateLimiter implements token bucket rate limiting per contact.
// Used by the messaging gateways, which do not pass through the HTTP
// middleware chain.
type MessageRateLimiter struct {
	mu          sync.RWMutex
	buckets     map[string]*tokenBucket
	rate        float64 // tokens per second
	maxTokens   float64 // burst capacity
	cleanupTick time.Duration
}

type tokenBucket struct {
	tokens     float64
	lastUpdate time.Time
}

// NewMessageRateLimiter creates a rate limiter with specified rate and burst
// rate: messages per second allowed
// burst: maximum burst capacity
func NewMessageRateLimiter(rate float64, burst int) *MessageRateLimiter {
	rl := &MessageRateLimiter{
		buckets:     make(map[string]*tokenBucket),
		rate:        rate,
		maxTokens:   float64(burst),
		cleanupTick: 5 * time.Minute,
	}

	// Start cleanup goroutine
	go rl.cleanup()

	return rl
}

// Allow checks if a contact can send a message (consumes 1 token if allowed)
func (rl *MessageRateLimiter) Allow(contact string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	bucket, exists := rl.buckets[contact]
	now := time.Now()

	if !exists {
		// Create new bucket with full tokens
		rl.buckets[contact] = &tokenBucket{
			tokens:     rl.maxTokens - 1, // Consume 1 token
			lastUpdate: now,
		}
		return true
	}

	// Refill tokens based on time elapsed
	elapsed := now.Sub(bucket.lastUpdate).Seconds()
	bucket.tokens += elapsed * rl.rate
	if bucket.tokens > rl.maxTokens {
		bucket.tokens = rl.maxTokens
	}
	bucket.lastUpdate = now

	// Check if we have a token
	if bucket.tokens >= 1 {
		bucket.tokens -= 1
		return true
	}

	return false
}

// Reset removes rate limit state for a contact
func (rl *MessageRateLimiter) Reset(contact string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.buckets, contact)
}

// cleanup removes stale buckets periodically
func (rl *MessageRateLimiter) cleanup() {
	ticker := time.NewTicker(rl.cleanupTick)
	for range ticker.C {
		rl.mu.Lock()
		now := time.Now()
		for contact, bucket := range rl.buckets {
			// Remove buckets not used in last 10 minutes
			if now.Sub(bucket.lastUpdate) > 10*time.Minute {
				delete(rl.buckets, contact)
			}
		}
		rl.mu.Unlock()
	}
}
