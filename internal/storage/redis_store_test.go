package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client), mr
}

func sampleRecord(roomID string, active bool) SnapshotRecord {
	return SnapshotRecord{
		RoomID:       roomID,
		HostID:       "host",
		Phase:        "night",
		Turn:         2,
		StartedAt:    time.UnixMilli(1_699_999_000_000),
		LastActionAt: time.UnixMilli(1_700_000_000_000),
		Active:       active,
		Data:         []byte(`{"room_id":"` + roomID + `"}`),
	}
}

func TestRedisStore_SaveLoadSnapshot(t *testing.T) {
	t.Parallel()

	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	rec := sampleRecord("123456", true)
	require.NoError(t, store.SaveSnapshot(ctx, rec))

	loaded, err := store.LoadSnapshot(ctx, "123456")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, rec, *loaded)

	missing, err := store.LoadSnapshot(ctx, "000000")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRedisStore_UpsertKeepsOneSnapshot(t *testing.T) {
	t.Parallel()

	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	first := sampleRecord("111111", true)
	require.NoError(t, store.SaveSnapshot(ctx, first))

	second := first
	second.Turn = 5
	second.Phase = "voting"
	require.NoError(t, store.SaveSnapshot(ctx, second))

	active, err := store.LoadActiveSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 5, active[0].Turn)
	assert.Equal(t, "voting", active[0].Phase)
}

func TestRedisStore_MarkInactive(t *testing.T) {
	t.Parallel()

	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSnapshot(ctx, sampleRecord("a", true)))
	require.NoError(t, store.SaveSnapshot(ctx, sampleRecord("b", true)))
	require.NoError(t, store.MarkInactive(ctx, "a"))

	active, err := store.LoadActiveSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "b", active[0].RoomID)

	// 数据保留
	kept, err := store.LoadSnapshot(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.False(t, kept.Active)
}

func TestRedisStore_CorruptHashIsReturnedEmpty(t *testing.T) {
	t.Parallel()

	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	mr.HSet(snapshotKeyPrefix+"bad", "room_id", "bad", "turn", "x", "last_action_at", "y", "data", "{}")
	_, err := mr.SAdd(activeSnapshotsKey, "bad")
	require.NoError(t, err)

	active, err := store.LoadActiveSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "bad", active[0].RoomID)
	assert.Empty(t, active[0].Data)
}
