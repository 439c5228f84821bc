package crawler

import (
	"context"
	"time"
)

// Politeness is a fixed delay plus uniform jitter applied between requests.
type Politeness struct {
	Base   time.Duration
	Jitter time.Duration
}

// Next returns the delay to apply before the next request.
func (p Politeness) Next() time.Duration {
	return p.Base + RandomJitter(p.Jitter)
}

// Wait pauses for the next delay using pauser.
func (p Politeness) Wait(ctx context.Context, pauser Pauser) {
	if pauser == nil {
		return
	}
	pauser.Pause(ctx, p.Next())
}

// TimerPauser sleeps on a timer and returns early on cancellation.
type TimerPauser struct{}

// Pause blocks for delay or until ctx is done.
func (TimerPauser) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
