package snapshot

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flickrheat/pkg/activity"
	"flickrheat/pkg/config"
	apperrors "flickrheat/pkg/errors"
	"flickrheat/pkg/logger"
)

func sampleSnapshot(username string) Snapshot {
	return Snapshot{
		Username: username,
		Data: []activity.Day{
			{Date: "2025-03-01", Count: 3, Level: 4},
			{Date: "2025-03-02", Count: 1, Level: 2},
			{Date: "2025-03-03", Count: 0, Level: 0},
		},
		Year:         2025,
		ActivityType: "uploaded",
		Timestamp:    1740787200000,
	}
}

func TestSnapshotJSONFieldNames(t *testing.T) {
	data, err := json.Marshal(sampleSnapshot("bees"))
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"username", "data", "year", "activityType", "timestamp"} {
		assert.Contains(t, raw, key)
	}
	day := raw["data"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "2025-03-01", day["date"])
	assert.Equal(t, float64(3), day["count"])
	assert.Equal(t, float64(4), day["level"])
}

func TestSnapshotValidate(t *testing.T) {
	assert.NoError(t, sampleSnapshot("bees").Validate())

	s := sampleSnapshot(" ")
	assert.True(t, apperrors.IsType(s.Validate(), apperrors.ErrorTypeValidation))

	s = sampleSnapshot("bees")
	s.Data = nil
	assert.True(t, apperrors.IsType(s.Validate(), apperrors.ErrorTypeValidation))

	s.Data = []activity.Day{}
	assert.NoError(t, s.Validate(), "an empty series is still a valid snapshot")
}

func TestFromHeatmap(t *testing.T) {
	now := time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)
	hm := activity.Heatmap{
		UserID: "1@N01",
		Year:   2025,
		Mode:   activity.ModeTaken,
		Days:   sampleSnapshot("x").Data,
	}

	s := FromHeatmap("bees", hm, now)
	assert.Equal(t, "bees", s.Username)
	assert.Equal(t, "taken", s.ActivityType)
	assert.Equal(t, 2025, s.Year)
	assert.Equal(t, now.UnixMilli(), s.Timestamp)
	assert.True(t, s.Time().Equal(now))
	assert.Len(t, s.Data, 3)

	hm.Mode = activity.ModeUpload
	assert.Equal(t, "uploaded", FromHeatmap("bees", hm, now).ActivityType)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "bees", Key(" @bees "))
	assert.Equal(t, "alice", Key("Alice"))
	assert.Equal(t, "alice", Key("@ALICE"))
	assert.Equal(t, "snapshot:bees", RedisKey("@Bees"))
	assert.Equal(t, "snapshot:bees", RedisKey("@bees"))
	assert.Equal(t, "SNAPSHOT#bees", DynamoKey("bees"))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	log := logger.NewNopLogger()

	cfg := config.DefaultConfig()
	store, err := Open(ctx, cfg, log)
	require.NoError(t, err)
	assert.Nil(t, store)

	cfg.Snapshot.Backend = "file"
	cfg.Snapshot.Dir = t.TempDir()
	store, err = Open(ctx, cfg, log)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)

	cfg.Snapshot.Backend = "sqlite"
	cfg.Snapshot.SQLitePath = t.TempDir() + "/snap.db"
	store, err = Open(ctx, cfg, log)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
	require.NoError(t, store.Close())

	cfg.Snapshot.Backend = "http"
	cfg.Snapshot.URL = "http://snapshots.internal"
	store, err = Open(ctx, cfg, log)
	require.NoError(t, err)
	assert.IsType(t, &HTTPStore{}, store)

	cfg.Snapshot.Backend = "memcached"
	_, err = Open(ctx, cfg, log)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConfiguration))
}
