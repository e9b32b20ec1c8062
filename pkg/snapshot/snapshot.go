package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"flickrheat/pkg/activity"
	apperrors "flickrheat/pkg/errors"
	"flickrheat/pkg/metrics"
)

// ErrNotFound is returned by Get when no snapshot exists for a username
var ErrNotFound = errors.New("snapshot not found")

// Snapshot is a previously computed series stored by username
type Snapshot struct {
	Username     string         `json:"username"`
	Data         []activity.Day `json:"data"`
	Year         int            `json:"year"`
	ActivityType string         `json:"activityType"`
	// Timestamp is unix milliseconds
	Timestamp int64 `json:"timestamp"`
}

// Store persists snapshots with last-write-wins semantics per username
type Store interface {
	Put(ctx context.Context, s Snapshot) error
	Get(ctx context.Context, username string) (Snapshot, error)
	Close() error
}

// Validate rejects snapshots that cannot be keyed or replayed
func (s Snapshot) Validate() error {
	if strings.TrimSpace(s.Username) == "" {
		return apperrors.Validation("snapshot username is required")
	}
	if s.Data == nil {
		return apperrors.Validation("snapshot data is required")
	}
	return nil
}

// Time returns Timestamp as a time.Time
func (s Snapshot) Time() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// FromHeatmap builds a snapshot of hm stored under username
func FromHeatmap(username string, hm activity.Heatmap, now time.Time) Snapshot {
	return Snapshot{
		Username:     username,
		Data:         hm.Days,
		Year:         hm.Year,
		ActivityType: hm.Mode.ActivityType(),
		Timestamp:    now.UnixMilli(),
	}
}

// Key normalizes a username into a storage key. Flickr screen names are
// case-insensitive, so "Alice" and "@alice" share one snapshot.
func Key(username string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(username), "@"))
}

func encode(s Snapshot) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, apperrors.Parsing("failed to encode snapshot", err)
	}
	return data, nil
}

func decode(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, apperrors.Parsing("failed to decode snapshot", err)
	}
	return s, nil
}

// observe records an operation; a miss is not an error
func observe(backend, op string, err error) {
	status := metrics.Status(err)
	if errors.Is(err, ErrNotFound) {
		status = "not_found"
	}
	metrics.SnapshotOperationsTotal.WithLabelValues(backend, op, status).Inc()
}
