package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studiumhq/studium-go/internal/model"
)

func newTestCache(t *testing.T) *SQLiteCache {
	t.Helper()
	cache, err := NewSQLiteCache(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache
}

func notif(id int64, createdAt time.Time, read bool) model.Notification {
	return model.Notification{
		ID:        id,
		TypeName:  "user_events",
		Message:   "hello",
		IsRead:    read,
		CreatedAt: createdAt,
	}
}

func TestUpsertAndListNewestFirst(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, cache.Upsert(ctx, notif(1, base, false)))
	require.NoError(t, cache.Upsert(ctx, notif(2, base.Add(2*time.Minute), false)))
	require.NoError(t, cache.Upsert(ctx, notif(3, base.Add(time.Minute), true)))

	got, err := cache.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(2), got[0].ID)
	assert.Equal(t, int64(3), got[1].ID)
	assert.Equal(t, int64(1), got[2].ID)
	assert.True(t, got[1].IsRead)
}

func TestUpsertReplacesById(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, cache.Upsert(ctx, notif(1, at, false)))

	updated := notif(1, at, true)
	updated.Message = "edited"
	require.NoError(t, cache.Upsert(ctx, updated))

	got, err := cache.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "edited", got[0].Message)
	assert.True(t, got[0].IsRead)
}

func TestMarkRead(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, cache.Upsert(ctx, notif(1, at, false)))
	require.NoError(t, cache.Upsert(ctx, notif(2, at.Add(time.Minute), false)))

	require.NoError(t, cache.MarkRead(ctx, 1))

	got, err := cache.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, n := range got {
		assert.Equal(t, n.ID == 1, n.IsRead)
	}
}

func TestMarkAllRead(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, cache.Upsert(ctx, notif(1, at, false)))
	require.NoError(t, cache.Upsert(ctx, notif(2, at.Add(time.Minute), false)))

	require.NoError(t, cache.MarkAllRead(ctx))

	got, err := cache.List(ctx)
	require.NoError(t, err)
	for _, n := range got {
		assert.True(t, n.IsRead)
	}
}

func TestClear(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Upsert(ctx, notif(1, time.Now().UTC(), false)))
	require.NoError(t, cache.Clear(ctx))

	got, err := cache.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache.db")

	first, err := NewSQLiteCache(dbPath)
	require.NoError(t, err)
	require.NoError(t, first.Upsert(context.Background(), notif(1, time.Now().UTC(), false)))
	require.NoError(t, first.Close())

	// Reopening runs the migration check against the existing schema.
	second, err := NewSQLiteCache(dbPath)
	require.NoError(t, err)
	defer second.Close()

	got, err := second.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
