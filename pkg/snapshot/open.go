package snapshot

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"flickrheat/pkg/config"
	apperrors "flickrheat/pkg/errors"
	"flickrheat/pkg/logger"
	"flickrheat/pkg/retry"
)

const defaultTimeout = 10 * time.Second

// Open builds the store selected by cfg.Backend. The "none" backend (or
// an empty one) returns a nil Store and no error.
func Open(ctx context.Context, cfg *config.Config, log logger.Logger) (Store, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	sc := cfg.Snapshot
	if sc.Timeout <= 0 {
		sc.Timeout = defaultTimeout
	}
	log = log.WithField("snapshot_backend", sc.Backend)

	var (
		store Store
		err   error
	)
	switch strings.ToLower(sc.Backend) {
	case "", "none":
		return nil, nil
	case "file":
		store, err = NewFileStore(sc.Dir, log)
	case "http":
		rc := retry.DefaultConfig()
		rc.MaxAttempts = cfg.RateLimit.MaxRetries + 1
		rc.Backoff = retry.NewErrorTypeBackoff(cfg.RateLimit.RetryDelay)
		rc.Logger = log
		store, err = NewHTTPStore(sc.URL, HTTPOptions{
			HTTPClient: &http.Client{Timeout: sc.Timeout},
			Retry:      rc,
			Logger:     log,
		})
	case "sqlite":
		store, err = NewSQLiteStore(sc.SQLitePath, log)
	case "redis":
		ctx, cancel := context.WithTimeout(ctx, sc.Timeout)
		defer cancel()
		store, err = NewRedisStore(ctx, sc.RedisURL, log)
	case "dynamodb":
		ctx, cancel := context.WithTimeout(ctx, sc.Timeout)
		defer cancel()
		store, err = NewDynamoStore(ctx, sc.DynamoRegion, sc.DynamoEndpoint, sc.DynamoTable, log)
	default:
		return nil, apperrors.Configuration(fmt.Sprintf("invalid snapshot backend: %s", sc.Backend))
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}
