package snapshot

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flickrheat/pkg/logger"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "snapshots.db"), logger.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "bees")
	assert.ErrorIs(t, err, ErrNotFound)

	want := sampleSnapshot("bees")
	require.NoError(t, store.Put(ctx, want))

	got, err := store.Get(ctx, "bees")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSQLiteStoreUpsert(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, sampleSnapshot("bees")))
	updated := sampleSnapshot("bees")
	updated.ActivityType = "taken"
	updated.Timestamp++
	require.NoError(t, store.Put(ctx, updated))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.Get(ctx, "bees")
	require.NoError(t, err)
	assert.Equal(t, "taken", got.ActivityType)
	assert.Equal(t, updated.Timestamp, got.Timestamp)
}

func TestSQLiteStoreConcurrentWriters(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := sampleSnapshot("bees")
			s.Timestamp = int64(i)
			assert.NoError(t, store.Put(ctx, s))
		}(i)
	}
	wg.Wait()

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	_, err := NewSQLiteStore("", nil)
	assert.Error(t, err)
}
