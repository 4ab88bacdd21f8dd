package retry

import (
	"context"
	"math"
	"time"
)

// Policy is an exponential backoff with symmetric jitter, clamped to
// [Floor, Max].
type Policy struct {
	Base   time.Duration
	Factor float64
	Max    time.Duration
	Jitter float64 // fraction of the base delay, applied as ±Jitter
	Floor  time.Duration
}

// DefaultPolicy returns 1s doubling per attempt, capped at 8s, with ±25%
// jitter and a 500ms floor.
func DefaultPolicy() Policy {
	return Policy{
		Base:   time.Second,
		Factor: 2,
		Max:    8 * time.Second,
		Jitter: 0.25,
		Floor:  500 * time.Millisecond,
	}
}

// Delay returns the delay before retry attempt (1-based). r is a random
// value in [0, 1); 0.5 yields the un-jittered delay.
func (p Policy) Delay(attempt int, r float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := float64(p.Base) * math.Pow(p.Factor, exp)
	d := base * (1 + p.Jitter*(2*r-1))
	if p.Max > 0 {
		d = math.Min(d, float64(p.Max))
	}
	d = math.Max(d, float64(p.Floor))
	return time.Duration(math.Round(d/float64(time.Millisecond))) * time.Millisecond
}

// SleepWithContext sleeps for d, returning ctx.Err() if ctx is done first.
func SleepWithContext(ctx context.Context, d time.Duration) error {
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
