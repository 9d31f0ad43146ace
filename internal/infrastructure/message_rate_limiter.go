package infrastructure

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RecipientLimiter throttles outbound messages per recipient phone number
type RecipientLimiter struct {
	mu          sync.Mutex
	limiters    map[string]*recipientBucket
	rate        rate.Limit
	burst       int
	idleTTL     time.Duration
	cleanupTick time.Duration
	lastCleanup time.Time
}

type recipientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRecipientLimiter creates a limiter allowing perSecond messages to each
// recipient with the given burst capacity
func NewRecipientLimiter(perSecond float64, burst int) *RecipientLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RecipientLimiter{
		limiters:    make(map[string]*recipientBucket),
		rate:        rate.Limit(perSecond),
		burst:       burst,
		idleTTL:     10 * time.Minute,
		cleanupTick: 5 * time.Minute,
		lastCleanup: time.Now(),
	}
}

// Wait blocks until a message to phone is allowed. A nil limiter never blocks.
func (l *RecipientLimiter) Wait(ctx context.Context, phone string) error {
	if l == nil || l.rate <= 0 {
		return nil
	}
	return l.get(phone).Wait(ctx)
}

func (l *RecipientLimiter) get(phone string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastCleanup) > l.cleanupTick {
		l.cleanupLocked(now)
	}

	b, ok := l.limiters[phone]
	if !ok {
		b = &recipientBucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[phone] = b
	}
	b.lastSeen = now
	return b.limiter
}

// cleanupLocked drops buckets not used within the idle TTL
func (l *RecipientLimiter) cleanupLocked(now time.Time) {
	for phone, b := range l.limiters {
		if now.Sub(b.lastSeen) > l.idleTTL {
			delete(l.limiters, phone)
		}
	}
	l.lastCleanup = now
}

// GetStats returns rate limiter statistics
func (l *RecipientLimiter) GetStats() map[string]interface{} {
	if l == nil {
		return map[string]interface{}{"enabled": false}
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	return map[string]interface{}{
		"enabled":           l.rate > 0,
		"active_recipients": len(l.limiters),
		"rate":              float64(l.rate),
		"burst":             l.burst,
	}
}
