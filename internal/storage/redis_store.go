package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Redis key 前缀
	snapshotKeyPrefix  = "room:snapshot:"
	activeSnapshotsKey = "room:snapshots:active"
)

// RedisStore Redis 存储
type RedisStore struct {
	client *redis.Client
	*LeaderboardManager
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore 创建 Redis 存储
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:             client,
		LeaderboardManager: NewLeaderboardManager(client),
	}
}

// --- 快照存储 ---

// SaveSnapshot 保存快照，同一房间只保留一份
func (rs *RedisStore) SaveSnapshot(ctx context.Context, rec SnapshotRecord) error {
	if rec.RoomID == "" {
		return fmt.Errorf("room id is required")
	}

	key := snapshotKeyPrefix + rec.RoomID
	pipe := rs.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"room_id":        rec.RoomID,
		"host_id":        rec.HostID,
		"phase":          rec.Phase,
		"turn":           rec.Turn,
		"started_at":     toMillis(rec.StartedAt),
		"ended_at":       toMillis(rec.EndedAt),
		"last_action_at": rec.LastActionAt.UnixMilli(),
		"active":         boolToInt(rec.Active),
		"data":           rec.Data,
	})
	if rec.Active {
		pipe.SAdd(ctx, activeSnapshotsKey, rec.RoomID)
	} else {
		pipe.SRem(ctx, activeSnapshotsKey, rec.RoomID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("保存快照失败: %w", err)
	}
	return nil
}

// LoadSnapshot 加载单个快照，不存在时返回 nil
func (rs *RedisStore) LoadSnapshot(ctx context.Context, roomID string) (*SnapshotRecord, error) {
	fields, err := rs.client.HGetAll(ctx, snapshotKeyPrefix+roomID).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return recordFromHash(fields)
}

// LoadActiveSnapshots 加载全部活跃快照
func (rs *RedisStore) LoadActiveSnapshots(ctx context.Context) ([]SnapshotRecord, error) {
	ids, err := rs.client.SMembers(ctx, activeSnapshotsKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	records := make([]SnapshotRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := rs.LoadSnapshot(ctx, id)
		if errors.Is(err, ErrCorruptSnapshot) {
			// 交给上层解码失败后标记为非活跃
			records = append(records, SnapshotRecord{RoomID: id, Active: true})
			continue
		}
		if err != nil {
			return nil, err
		}
		if rec == nil {
			// 集合里残留的房间号
			rs.client.SRem(ctx, activeSnapshotsKey, id)
			continue
		}
		records = append(records, *rec)
	}
	return records, nil
}

// MarkInactive 标记快照为非活跃
func (rs *RedisStore) MarkInactive(ctx context.Context, roomID string) error {
	key := snapshotKeyPrefix + roomID
	pipe := rs.client.TxPipeline()
	pipe.SRem(ctx, activeSnapshotsKey, roomID)
	pipe.HSet(ctx, key, "active", 0)
	_, err := pipe.Exec(ctx)
	return err
}

// Close 关闭连接
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}

func recordFromHash(fields map[string]string) (*SnapshotRecord, error) {
	turn, err := strconv.Atoi(fields["turn"])
	if err != nil {
		return nil, fmt.Errorf("%w: bad turn %q", ErrCorruptSnapshot, fields["turn"])
	}
	lastAction, err := strconv.ParseInt(fields["last_action_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad last_action_at %q", ErrCorruptSnapshot, fields["last_action_at"])
	}
	startedAt, _ := strconv.ParseInt(fields["started_at"], 10, 64)
	endedAt, _ := strconv.ParseInt(fields["ended_at"], 10, 64)
	return &SnapshotRecord{
		RoomID:       fields["room_id"],
		HostID:       fields["host_id"],
		Phase:        fields["phase"],
		Turn:         turn,
		StartedAt:    fromMillis(startedAt),
		EndedAt:      fromMillis(endedAt),
		LastActionAt: time.UnixMilli(lastAction),
		Active:       fields["active"] == "1",
		Data:         []byte(fields["data"]),
	}, nil
}

// toMillis 零值时间记为 0
func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
