package banksync

import (
	"context"
	"fmt"
	"time"
)

// Clock supplies the current time and context-aware sleeping.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall-clock implementation of Clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Sleep blocks for d or until ctx is done.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pacer spaces gateway requests within one run. The first request goes out
// immediately; every later one waits the configured delay, whichever account
// or phase issues it.
type Pacer struct {
	clock  Clock
	delay  time.Duration
	issued int
}

// NewPacer creates a pacer for a single run.
func NewPacer(clock Clock, delay time.Duration) *Pacer {
	return &Pacer{clock: clock, delay: delay}
}

// Wait blocks until the next request may be issued.
func (p *Pacer) Wait(ctx context.Context) error {
	if p.issued > 0 && p.delay > 0 {
		if err := p.clock.Sleep(ctx, p.delay); err != nil {
			return fmt.Errorf("waiting for request slot: %w", err)
		}
	}
	p.issued++
	return nil
}

// Issued returns how many requests have been paced so far.
func (p *Pacer) Issued() int {
	return p.issued
}
