package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/jonboulle/clockwork"

	apperrors "flickrheat/pkg/errors"
)

// BackoffStrategy returns how long to sleep before retry number attempt.
// Attempts start at 1; anything lower means no wait.
type BackoffStrategy interface {
	NextDelay(attempt int, err error) time.Duration
}

// ExponentialBackoff grows BaseDelay by Multiplier per attempt up to MaxDelay,
// then spreads the result by ±JitterFactor.
type ExponentialBackoff struct {
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64
}

func (eb *ExponentialBackoff) NextDelay(attempt int, _ error) time.Duration {
	if attempt < 1 {
		return 0
	}
	d := eb.BaseDelay
	for i := 1; i < attempt; i++ {
		if eb.MaxDelay > 0 && d >= eb.MaxDelay {
			break
		}
		d = time.Duration(float64(d) * eb.Multiplier)
	}
	if eb.MaxDelay > 0 && d > eb.MaxDelay {
		d = eb.MaxDelay
	}
	return spread(d, eb.JitterFactor)
}

// spread returns d moved by a uniform random offset in [-d·f, +d·f]
func spread(d time.Duration, f float64) time.Duration {
	span := int64(float64(d) * f)
	if span <= 0 {
		return d
	}
	return d - time.Duration(span) + time.Duration(rand.Int63n(2*span+1))
}

// ConstantBackoff always waits Delay
type ConstantBackoff struct {
	Delay time.Duration
}

func (cb ConstantBackoff) NextDelay(attempt int, _ error) time.Duration {
	if attempt < 1 {
		return 0
	}
	return cb.Delay
}

// ErrorTypeBackoff chooses a strategy by the kind of the failing error.
// A nil slot falls back to Default, and a nil Default means no wait.
type ErrorTypeBackoff struct {
	Network     BackoffStrategy
	RateLimit   BackoffStrategy
	ServerError BackoffStrategy
	Default     BackoffStrategy
}

// NewErrorTypeBackoff derives every slot from base. A 429 from the photo
// search waits ten times longer than a dropped connection.
func NewErrorTypeBackoff(base time.Duration) *ErrorTypeBackoff {
	expo := func(first, ceiling time.Duration, mult, jitter float64) *ExponentialBackoff {
		return &ExponentialBackoff{BaseDelay: first, MaxDelay: ceiling, Multiplier: mult, JitterFactor: jitter}
	}
	return &ErrorTypeBackoff{
		Network:     expo(base, 30*time.Second, 2, 0.2),
		RateLimit:   expo(10*base, 2*time.Minute, 1.5, 0.3),
		ServerError: expo(2*base, time.Minute, 2, 0.1),
		Default:     expo(base, 30*time.Second, 2, 0.1),
	}
}

func (etb *ErrorTypeBackoff) NextDelay(attempt int, err error) time.Duration {
	slot := etb.Default
	switch apperrors.TypeOf(err) {
	case apperrors.ErrorTypeNetwork:
		slot = pick(etb.Network, slot)
	case apperrors.ErrorTypeRateLimit:
		slot = pick(etb.RateLimit, slot)
	case apperrors.ErrorTypeServerError:
		slot = pick(etb.ServerError, slot)
	}
	if slot == nil {
		return 0
	}
	return slot.NextDelay(attempt, err)
}

func pick(s, fallback BackoffStrategy) BackoffStrategy {
	if s != nil {
		return s
	}
	return fallback
}

// Wait sleeps on the real clock; see WaitOn.
func Wait(ctx context.Context, delay time.Duration) error {
	return WaitOn(ctx, clockwork.NewRealClock(), delay)
}

// WaitOn blocks for delay as measured by clock, returning early with the
// context error if ctx ends first.
func WaitOn(ctx context.Context, clock clockwork.Clock, delay time.Duration) error {
	if err := ctx.Err(); err != nil || delay <= 0 {
		return err
	}
	timer := clock.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.Chan():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
