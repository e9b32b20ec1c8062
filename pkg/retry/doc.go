// Package retry re-runs operations that fail with transient errors.
//
// Only typed errors from flickrheat/pkg/errors whose kind or status code is
// transient (network, 429, 5xx) are retried. Signature rejections, parse
// failures and context cancellation return immediately.
//
//	snap, err := retry.DoWithResult(ctx, func(ctx context.Context) (snapshot.Snapshot, error) {
//	    return s.get(ctx, username)
//	}, &retry.Config{
//	    MaxAttempts: 3,
//	    Backoff:     retry.NewErrorTypeBackoff(500 * time.Millisecond),
//	    Logger:      log,
//	})
//
// ErrorTypeBackoff waits longer after a rate-limit reply than after a
// network error.
package retry
