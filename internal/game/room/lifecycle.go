package room

import (
	"context"
	"time"

	"github.com/palemoky/werewolf/internal/logger"
)

// Adopt 接管由快照恢复的房间：注入依赖、重建用户索引并重新计时。
// 房间号已存在时返回 false
func (m *Manager) Adopt(r *GameRoom) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rooms[r.ID]; exists {
		return false
	}

	r.mu.Lock()
	r.attach(m.deps())
	members := append([]string(nil), r.order...)
	r.mu.Unlock()

	m.rooms[r.ID] = r
	for _, uid := range members {
		// 同一用户出现在多个快照中时只保留先恢复的房间
		if prev, ok := m.userRooms[uid]; ok && prev != r.ID {
			logger.LogWarn("⚠️ 用户 %s 同时出现在房间 %s 和 %s 中", uid, prev, r.ID)
			continue
		}
		m.userRooms[uid] = r.ID
	}

	r.Resume()
	logger.LogInfo("♻️ 房间 %s 已恢复（%d 名玩家）", r.ID, len(members))
	return true
}

// Cleanup 删除结束超过保留时长的房间，返回删除数量
func (m *Manager) Cleanup(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []string
	for id, r := range m.rooms {
		r.mu.Lock()
		if r.phase == PhaseEnded && now.Sub(r.endedAt) > m.endedRetention {
			expired = append(expired, id)
		}
		r.mu.Unlock()
	}
	for _, id := range expired {
		m.deleteRoomLocked(id)
	}
	if len(expired) > 0 {
		logger.LogInfo("🧹 清理了 %d 个已结束的房间", len(expired))
	}
	return len(expired)
}

// StartCleanup 定期清理已结束的房间，ctx 取消后退出
func (m *Manager) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Cleanup(m.now())
		}
	}
}

// Shutdown 停止所有房间的计时器
func (m *Manager) Shutdown() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rooms {
		r.Stop()
	}
}
