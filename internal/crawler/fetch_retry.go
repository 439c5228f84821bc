package crawler

import (
	"context"
	"fmt"
	"time"
)

// RetryObserver is called before the pause preceding retry number retry.
type RetryObserver func(retry int, delay time.Duration, err error)

// FetchWithRetry fetches req, retrying transient failures as allowed by
// policy. It returns the response, the number of attempts made and, on
// failure, the last error. A failure that outlasts the retry bound wraps
// ErrRetriesExhausted.
func FetchWithRetry(
	ctx context.Context,
	fetcher Fetcher,
	req FetchRequest,
	policy RetryPolicy,
	pauser Pauser,
	observe RetryObserver,
) (FetchResponse, int, error) {
	for attempt := 1; ; attempt++ {
		resp, err := fetcher.Fetch(ctx, req)
		if err == nil {
			return resp, attempt, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return FetchResponse{}, attempt, fmt.Errorf("fetch %s: %w", req.URL, ctxErr)
		}
		if !IsTransient(err) {
			return FetchResponse{}, attempt, err
		}
		if policy == nil || !policy.ShouldRetry(err, attempt) {
			return FetchResponse{}, attempt, fmt.Errorf("%w after %d attempt(s): %w", ErrRetriesExhausted, attempt, err)
		}

		delay := policy.Backoff(attempt)
		if observe != nil {
			observe(attempt, delay, err)
		}
		if pauser != nil {
			pauser.Pause(ctx, delay)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return FetchResponse{}, attempt, fmt.Errorf("fetch %s: %w", req.URL, ctxErr)
		}
	}
}
