package messaging

import (
	"context"
	"time"
)

// RetryPolicy retries a call with a fixed delay between attempts.
type RetryPolicy struct {
	// Retries is the number of attempts made after the first one.
	Retries int
	Wait    time.Duration

	// OnRetry, when set, is called before each wait with the failed attempt
	// number (starting at 1) and its error.
	OnRetry func(attempt int, err error)
}

// Do calls fn until it succeeds or the retries are used up, returning the
// last error. Cancellation stops the loop early.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt > p.Retries || ctx.Err() != nil {
			return err
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if Sleep(ctx, p.Wait) != nil {
			return err
		}
	}
}

// Forever calls fn until it succeeds. It only gives up when ctx is done and
// then returns the context error.
func (p RetryPolicy) Forever(ctx context.Context, fn func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if err := Sleep(ctx, p.Wait); err != nil {
			return err
		}
	}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
