package transport

import (
	"context"
	"runtime"
	"time"

	"github.com/palemoky/werewolf/internal/logger"
	"github.com/palemoky/werewolf/internal/protocol"
)

// MonitorStats 定期输出服务器状态，ctx 取消后退出
func (s *Server) MonitorStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)

			logger.LogInfo("📊 [监控] 在线: %d | 进行中房间: %d/%d | Goroutines: %d | 活跃连接: %d/%d | 内存: %.2f MB",
				s.hub.Count(),
				len(s.rooms.ActiveRooms()),
				s.rooms.RoomCount(),
				runtime.NumGoroutine(),
				len(s.semaphore),
				cap(s.semaphore),
				float64(m.Alloc)/1024/1024)
		}
	}
}

// EnterMaintenanceMode 进入维护模式：拒绝新连接并通知在线玩家
func (s *Server) EnterMaintenanceMode() {
	if s.maintenance.Swap(true) {
		return
	}
	s.Broadcast(protocol.NewErrorMessageWithText(protocol.ErrCodeServerMaintenance,
		"👷🏻‍♂️ 服务器即将维护，进行中的对局会在重启后恢复"))
	logger.LogInfo("🔧 进入维护模式：停止接受新连接")
}

// IsMaintenanceMode 检查是否在维护模式
func (s *Server) IsMaintenanceMode() bool {
	return s.maintenance.Load()
}

// Shutdown 停止接受请求并关闭所有连接。
// 进行中的房间由快照保存，重启后恢复，不需要等待对局结束
func (s *Server) Shutdown(ctx context.Context) error {
	s.EnterMaintenanceMode()

	err := s.http.Shutdown(ctx)

	// 已升级的 WebSocket 连接不受 http.Server 管理
	s.clientsMu.RLock()
	for _, c := range s.clients {
		c.Close()
	}
	s.clientsMu.RUnlock()

	logger.LogInfo("服务器已关闭")
	return err
}
