package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	apperrors "flickrheat/pkg/errors"
	"flickrheat/pkg/logger"
)

const redisKeyPrefix = "snapshot:"

// RedisStore keeps each snapshot as a JSON string under snapshot:{username}
type RedisStore struct {
	rdb    redis.UniversalClient
	logger logger.Logger
}

// NewRedisStore connects to redisURL (e.g. "redis://localhost:6379/0")
// and verifies the connection.
func NewRedisStore(ctx context.Context, redisURL string, log logger.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, apperrors.Configuration(fmt.Sprintf("failed to parse redis URL: %v", err))
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, apperrors.Network(err)
	}
	return NewRedisStoreFromClient(rdb, log), nil
}

// NewRedisStoreFromClient wraps an existing client
func NewRedisStoreFromClient(rdb redis.UniversalClient, log logger.Logger) *RedisStore {
	if log == nil {
		log = logger.GetLogger()
	}
	return &RedisStore{rdb: rdb, logger: log}
}

// RedisKey returns the key a username's snapshot is stored under
func RedisKey(username string) string {
	return redisKeyPrefix + Key(username)
}

func (r *RedisStore) Put(ctx context.Context, snap Snapshot) (err error) {
	defer func() { observe("redis", "put", err) }()

	if err := snap.Validate(); err != nil {
		return err
	}
	snap.Username = Key(snap.Username)
	payload, err := encode(snap)
	if err != nil {
		return err
	}

	if err := r.rdb.Set(ctx, RedisKey(snap.Username), payload, 0).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	r.logger.DebugWithFields("Snapshot saved", map[string]interface{}{
		"backend":  "redis",
		"username": snap.Username,
		"year":     snap.Year,
	})
	return nil
}

func (r *RedisStore) Get(ctx context.Context, username string) (snap Snapshot, err error) {
	defer func() { observe("redis", "get", err) }()

	if Key(username) == "" {
		return Snapshot{}, apperrors.Validation("snapshot username is required")
	}

	payload, err := r.rdb.Get(ctx, RedisKey(username)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return decode(payload)
}

func (r *RedisStore) Close() error {
	return r.rdb.Close()
}
