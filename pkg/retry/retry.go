package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	apperrors "flickrheat/pkg/errors"
	"flickrheat/pkg/logger"
)

// Operation is one attempt at a call that may fail transiently
type Operation func(ctx context.Context) error

// OperationWithResult is an Operation that also yields a value
type OperationWithResult[T any] func(ctx context.Context) (T, error)

// Config controls Do. The zero value makes a single attempt.
type Config struct {
	// MaxAttempts counts the first call
	MaxAttempts int
	Backoff     BackoffStrategy
	// RetryIf defaults to DefaultRetryIf
	RetryIf func(error) bool
	// OnRetry runs after the delay is chosen and before sleeping
	OnRetry func(attempt int, err error, delay time.Duration)
	Logger  logger.Logger
	// Clock measures backoff sleeps; nil uses the wall clock
	Clock clockwork.Clock
}

// DefaultConfig makes three attempts with error-kind backoff
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		Backoff:     NewErrorTypeBackoff(500 * time.Millisecond),
		RetryIf:     DefaultRetryIf,
		Logger:      logger.GetLogger(),
	}
}

// DefaultRetryIf accepts only typed errors with a transient kind or status
// code. Untyped errors and context endings are final.
func DefaultRetryIf(err error) bool {
	var appErr *apperrors.Error
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case !errors.As(err, &appErr):
		return false
	case appErr.Code != 0:
		return apperrors.IsRetryableStatusCode(appErr.Code)
	default:
		return apperrors.IsRetryable(appErr.Type)
	}
}

// withDefaults fills every nil hook so Do never branches on them
func (c Config) withDefaults() Config {
	if c.RetryIf == nil {
		c.RetryIf = DefaultRetryIf
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.Logger == nil {
		c.Logger = logger.NewNopLogger()
	}
	if c.Backoff == nil {
		c.Backoff = ConstantBackoff{}
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.OnRetry == nil {
		c.OnRetry = func(int, error, time.Duration) {}
	}
	return c
}

// Do runs op until it succeeds or fails for good. Exhausting MaxAttempts
// wraps the last error, so errors.As still sees its kind.
func Do(ctx context.Context, op Operation, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := cfg.withDefaults()

	attempt := 0
	for {
		attempt++
		err := op(ctx)
		switch {
		case err == nil:
			if attempt > 1 {
				c.Logger.DebugWithFields("operation recovered", map[string]interface{}{"attempt": attempt})
			}
			return nil
		case !c.RetryIf(err):
			return err
		case attempt >= c.MaxAttempts:
			c.Logger.ErrorWithFields("giving up", map[string]interface{}{
				"attempts":   attempt,
				"last_error": err.Error(),
			})
			return fmt.Errorf("max retry attempts (%d) exceeded: %w", c.MaxAttempts, err)
		}

		delay := c.Backoff.NextDelay(attempt, err)
		c.OnRetry(attempt, err, delay)
		c.Logger.WarnWithFields("retrying", map[string]interface{}{
			"attempt":      attempt,
			"max_attempts": c.MaxAttempts,
			"delay_ms":     delay.Milliseconds(),
			"error":        err.Error(),
		})
		if werr := WaitOn(ctx, c.Clock, delay); werr != nil {
			return fmt.Errorf("retry cancelled: %w", werr)
		}
	}
}

// DoWithResult is Do for operations that return a value. The value from
// the final attempt is returned even when it failed.
func DoWithResult[T any](ctx context.Context, op OperationWithResult[T], cfg *Config) (T, error) {
	var out T
	err := Do(ctx, func(ctx context.Context) (err error) {
		out, err = op(ctx)
		return err
	}, cfg)
	return out, err
}
