// Package persistence 定期保存进行中的房间，并在进程启动时从快照恢复
package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/palemoky/werewolf/internal/game/role"
	"github.com/palemoky/werewolf/internal/game/room"
	"github.com/palemoky/werewolf/internal/logger"
	"github.com/palemoky/werewolf/internal/storage"
)

const (
	defaultStaleThreshold = 24 * time.Hour
	storeTimeout          = 5 * time.Second
)

// 快照被丢弃的原因
const (
	DiscardStale     = "stale"
	DiscardCorrupt   = "corrupt"
	DiscardDuplicate = "duplicate"
)

// Rooms 网关需要的房间注册表能力，由 room.Manager 实现
type Rooms interface {
	ActiveRooms() []*room.GameRoom
	Adopt(r *room.GameRoom) bool
	Catalog() *role.Catalog
}

// Metrics 持久化指标
type Metrics interface {
	SnapshotSaved()
	SnapshotFailed()
	RoomRecovered()
	SnapshotDiscarded(reason string)
}

type nopMetrics struct{}

func (nopMetrics) SnapshotSaved()           {}
func (nopMetrics) SnapshotFailed()          {}
func (nopMetrics) RoomRecovered()           {}
func (nopMetrics) SnapshotDiscarded(string) {}

// Gateway 持久化网关。同时作为房间监听者，在游戏结束时标记快照失效并记录统计
type Gateway struct {
	room.NopListener

	store          storage.Store
	metrics        Metrics
	staleThreshold time.Duration
	now            func() time.Time

	// writeMu 串行化对同一存储的快照写入，保证结束标记不会被旧快照覆盖
	writeMu sync.Mutex
	wg      sync.WaitGroup
}

// Option 网关选项
type Option func(*Gateway)

// WithMetrics 设置指标收集
func WithMetrics(m Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithStaleThreshold 快照过期阈值
func WithStaleThreshold(d time.Duration) Option {
	return func(g *Gateway) { g.staleThreshold = d }
}

// WithClock 替换时钟
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// New 创建持久化网关
func New(store storage.Store, opts ...Option) *Gateway {
	g := &Gateway{
		store:          store,
		metrics:        nopMetrics{},
		staleThreshold: defaultStaleThreshold,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SnapshotAll 保存所有进行中的房间，返回成功数量
func (g *Gateway) SnapshotAll(ctx context.Context, rooms Rooms) int {
	saved := 0
	for _, r := range rooms.ActiveRooms() {
		if err := g.save(ctx, r); err != nil {
			g.metrics.SnapshotFailed()
			logger.LogError("💾 保存房间 %s 快照失败: %v", r.ID, err)
			continue
		}
		g.metrics.SnapshotSaved()
		saved++
	}
	return saved
}

func (g *Gateway) save(ctx context.Context, r *room.GameRoom) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	snap := r.Snapshot()
	data, err := storage.EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	rec := storage.SnapshotRecord{
		RoomID:       snap.RoomID,
		HostID:       snap.HostID,
		Phase:        snap.Phase,
		Turn:         snap.Turn,
		StartedAt:    millis(snap.StartedAt),
		EndedAt:      millis(snap.EndedAt),
		LastActionAt: millis(snap.LastActionAt),
		Active:       snap.Active,
		Data:         data,
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	return g.store.SaveSnapshot(ctx, rec)
}

func millis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Run 按固定间隔保存快照，ctx 取消后再保存一次并退出
func (g *Gateway) Run(ctx context.Context, rooms Rooms, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			n := g.SnapshotAll(context.WithoutCancel(ctx), rooms)
			logger.LogInfo("💾 停止前保存了 %d 个房间快照", n)
			return
		case <-ticker.C:
			if n := g.SnapshotAll(ctx, rooms); n > 0 {
				logger.LogDebug("💾 已保存 %d 个房间快照", n)
			}
		}
	}
}

// GameEnded 实现 room.Listener。在房间锁内被调用，存储操作转到协程
func (g *Gateway) GameEnded(result *storage.GameResult) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.LogPanic(r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()

		g.writeMu.Lock()
		err := g.store.MarkInactive(ctx, result.RoomID)
		g.writeMu.Unlock()
		if err != nil {
			logger.LogError("💾 标记房间 %s 快照失效失败: %v", result.RoomID, err)
		}

		if err := g.store.RecordGameResult(ctx, result); err != nil {
			logger.LogError("📈 记录房间 %s 对局统计失败: %v", result.RoomID, err)
			return
		}
		logger.LogInfo("📈 房间 %s 对局统计已记录（%d 名玩家）", result.RoomID, len(result.Players))
	}()
}

// Wait 等待后台写入完成
func (g *Gateway) Wait() {
	g.wg.Wait()
}

// Recover 加载活跃快照并交给注册表接管。过期或损坏的快照被标记为失效，
// 只有读取快照列表失败才返回错误
func (g *Gateway) Recover(ctx context.Context, rooms Rooms) (int, error) {
	records, err := g.store.LoadActiveSnapshots(ctx)
	if err != nil {
		return 0, fmt.Errorf("load active snapshots: %w", err)
	}

	now := g.now()
	recovered := 0
	for _, rec := range records {
		if err := g.recoverOne(rooms, rec, now); err != nil {
			reason := DiscardCorrupt
			switch {
			case errors.Is(err, errStale):
				reason = DiscardStale
				logger.LogInfo("🗑️ 房间 %s 快照已过期（最后操作于 %s），不再恢复", rec.RoomID, rec.LastActionAt.Format(time.RFC3339))
			case errors.Is(err, errDuplicate):
				reason = DiscardDuplicate
				logger.LogWarn("⚠️ 房间 %s 已存在，跳过快照", rec.RoomID)
			default:
				logger.LogError("❌ 房间 %s 快照无法恢复: %v", rec.RoomID, err)
			}
			g.metrics.SnapshotDiscarded(reason)
			if reason != DiscardDuplicate {
				if err := g.store.MarkInactive(ctx, rec.RoomID); err != nil {
					logger.LogError("💾 标记房间 %s 快照失效失败: %v", rec.RoomID, err)
				}
			}
			continue
		}
		g.metrics.RoomRecovered()
		recovered++
	}

	if len(records) > 0 {
		logger.LogInfo("♻️ 从 %d 个活跃快照中恢复了 %d 个房间", len(records), recovered)
	}
	return recovered, nil
}

var (
	errStale     = errors.New("snapshot is stale")
	errDuplicate = errors.New("room already registered")
)

func (g *Gateway) recoverOne(rooms Rooms, rec storage.SnapshotRecord, now time.Time) error {
	if len(rec.Data) == 0 {
		return fmt.Errorf("%w: empty data", storage.ErrCorruptSnapshot)
	}
	if now.Sub(rec.LastActionAt) > g.staleThreshold {
		return errStale
	}
	snap, err := storage.DecodeSnapshot(rec.Data)
	if err != nil {
		return err
	}
	if !snap.Active {
		return fmt.Errorf("%w: snapshot of finished game", storage.ErrCorruptSnapshot)
	}
	r, err := room.Restore(snap, rooms.Catalog())
	if err != nil {
		return err
	}
	if !rooms.Adopt(r) {
		return errDuplicate
	}
	return nil
}
