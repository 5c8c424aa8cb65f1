package retry

import (
	"context"
	"time"
)

// Policy describes a bounded exponential backoff schedule. The zero value is
// not usable; construct with DefaultPolicy or fill all fields.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// DefaultPolicy mirrors the scraper defaults: one retry after 750ms, doubling.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 2,
		BaseDelay:   750 * time.Millisecond,
		Multiplier:  2,
		MaxDelay:    30 * time.Second,
	}
}

// Backoff returns the delay to sleep after the given zero-based attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Do runs op up to MaxAttempts times, sleeping the backoff schedule between
// attempts. It returns nil on the first success, the last error otherwise.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	return p.DoIf(ctx, op, func(error) bool { return true })
}

// DoIf is Do with a predicate deciding whether an error is worth retrying.
// A non-retryable error is returned immediately.
func (p Policy) DoIf(ctx context.Context, op func(ctx context.Context) error, shouldRetry func(error) bool) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if !shouldRetry(err) {
			return err
		}
		if attempt < attempts-1 {
			if serr := Sleep(ctx, p.Backoff(attempt)); serr != nil {
				return serr
			}
		}
	}
	return err
}

// Sleep waits for d or until the context is cancelled, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
