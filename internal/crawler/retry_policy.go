package crawler

import (
	"crypto/rand"
	"math/big"
	"time"
)

// Default retry settings for report downloads.
const (
	DefaultMaxRetries    = 5
	DefaultBackoffBase   = 5 * time.Second
	DefaultBackoffJitter = 5 * time.Second
)

// LinearRetryPolicy implements RetryPolicy with a delay that grows with the
// attempt count plus random jitter.
type LinearRetryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	jitter     time.Duration
}

// NewLinearRetryPolicy builds a policy; non-positive values fall back to defaults.
func NewLinearRetryPolicy(maxRetries int, base, jitter time.Duration) *LinearRetryPolicy {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	if base < 0 {
		base = DefaultBackoffBase
	}
	if jitter < 0 {
		jitter = DefaultBackoffJitter
	}
	return &LinearRetryPolicy{
		maxRetries: maxRetries,
		baseDelay:  base,
		jitter:     jitter,
	}
}

// MaxRetries reports the retry bound.
func (p *LinearRetryPolicy) MaxRetries() int {
	return p.maxRetries
}

// ShouldRetry decides whether the error from the given attempt (1-based) is
// retryable. Permanent HTTP statuses and cancellation are never retried.
func (p *LinearRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt > p.maxRetries {
		return false
	}
	return IsTransient(err)
}

// Backoff returns the wait before retry number attempt.
func (p *LinearRetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return time.Duration(attempt)*p.baseDelay + RandomJitter(p.jitter)
}

// RandomJitter returns a uniform duration in [0, limit).
func RandomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
