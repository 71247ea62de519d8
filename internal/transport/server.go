// Package transport WebSocket 接入层：把客户端消息转成房间管理器调用，并推送房间事件
package transport

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/palemoky/werewolf/internal/config"
	"github.com/palemoky/werewolf/internal/game/room"
	"github.com/palemoky/werewolf/internal/logger"
	"github.com/palemoky/werewolf/internal/protocol"
)

// ConnObserver 连接数统计
type ConnObserver interface {
	ConnectionOpened()
	ConnectionClosed()
}

// ServerDeps 服务器依赖
type ServerDeps struct {
	Rooms    *room.Manager
	Hub      *Hub
	Handler  *Handler
	Chat     *UserChatLimiter    // 可选，断开时释放用户的令牌桶
	Metrics  ConnObserver        // 可选
	Gatherer prometheus.Gatherer // 为空时不暴露 /metrics
}

// Server WebSocket 服务器
type Server struct {
	config  config.ServerConfig
	rooms   *room.Manager
	hub     *Hub
	handler *Handler
	chat    *UserChatLimiter
	metrics ConnObserver

	upgrader      websocket.Upgrader
	rateLimiter   *RateLimiter
	originChecker *OriginChecker

	clients   map[string]*Client // connID → client
	clientsMu sync.RWMutex

	// 信号量控制并发连接数
	semaphore chan struct{}

	maintenance atomic.Bool

	mux  *http.ServeMux
	http *http.Server
}

// NewServer 创建服务器实例
func NewServer(cfg config.ServerConfig, deps ServerDeps) *Server {
	s := &Server{
		config:        cfg,
		rooms:         deps.Rooms,
		hub:           deps.Hub,
		handler:       deps.Handler,
		chat:          deps.Chat,
		metrics:       deps.Metrics,
		rateLimiter:   NewRateLimiter(cfg.ConnPerSecond, cfg.ConnBurst, cfg.BanDurationTime()),
		originChecker: NewOriginChecker(cfg.AllowedOrigins),
		clients:       make(map[string]*Client),
		semaphore:     make(chan struct{}, cfg.MaxConnections),
		mux:           http.NewServeMux(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.originChecker.Check,
	}

	s.mux.HandleFunc("/ws", s.handleWebSocket)
	s.mux.HandleFunc("/health", s.handleHealth)
	if deps.Gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second, // 防止 Slowloris 攻击
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.LogInfo("🔒 安全配置: 连接限制=%.1f/s, 最大连接数=%d", cfg.ConnPerSecond, cfg.MaxConnections)
	return s
}

// Handler 路由，测试中可直接挂到 httptest.Server 上
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start 启动服务器，阻塞直到 Shutdown
func (s *Server) Start() error {
	logger.LogInfo("🚀 服务器启动在 ws://%s/ws (CPU核心数: %d)", s.http.Addr, runtime.NumCPU())
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleWebSocket 处理 WebSocket 连接，user_id 由调用方提供
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	clientIP := GetClientIP(r)

	if s.IsMaintenanceMode() {
		logger.LogInfo("🔧 维护模式，拒绝新连接: %s", clientIP)
		http.Error(w, "Server is under maintenance, please try again later", http.StatusServiceUnavailable)
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	username := r.URL.Query().Get("username")
	if username == "" {
		username = userID
	}

	if !s.rateLimiter.Allow(clientIP) {
		logger.LogWarn("🚫 IP %s 请求过于频繁", clientIP)
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		return
	}

	// 成功获取的信号量在连接断开时释放
	select {
	case s.semaphore <- struct{}{}:
	default:
		logger.LogWarn("🚫 达到最大连接数限制 (%d), IP: %s", cap(s.semaphore), clientIP)
		http.Error(w, "Server Full", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		<-s.semaphore
		logger.LogWarn("WebSocket 升级失败: %v", err)
		return
	}

	client := NewClient(s, conn, userID, username)
	client.IP = clientIP
	s.register(client)

	client.SendMessage(protocol.MustNewMessage(protocol.MsgConnected, protocol.ConnectedPayload{
		UserID:   userID,
		Username: username,
		ConnID:   client.ConnID,
	}))
	s.resume(client)

	logger.LogInfo("✅ 玩家 %s (%s) 已连接", username, userID)

	go client.WritePump()
	go client.ReadPump()
}

// resume 用户仍在某个房间中时重新接入并推送当前视图
func (s *Server) resume(c *Client) {
	roomID := s.rooms.RoomOf(c.UserID())
	if roomID == "" {
		return
	}
	view, err := s.rooms.JoinRoom(roomID, c.UserID(), c.Username())
	if err != nil {
		logger.LogDebug("玩家 %s 未能回到房间 %s: %v", c.UserID(), roomID, err)
		return
	}
	c.SendMessage(protocol.MustNewMessage(protocol.MsgRoomJoined, view))
}

// handleHealth 健康检查接口
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// register 同一用户的旧连接被新连接替换
func (s *Server) register(c *Client) {
	s.clientsMu.Lock()
	s.clients[c.ConnID] = c
	s.clientsMu.Unlock()

	if prev := s.hub.Register(c); prev != nil {
		logger.LogInfo("🔁 玩家 %s 在新连接上登录，关闭旧连接", c.UserID())
		if old, ok := prev.(*Client); ok {
			old.Close()
		}
	}
	if s.metrics != nil {
		s.metrics.ConnectionOpened()
	}
}

// disconnect 读协程退出时调用，每个连接只调用一次
func (s *Server) disconnect(c *Client) {
	s.clientsMu.Lock()
	delete(s.clients, c.ConnID)
	s.clientsMu.Unlock()

	// 被新连接替换时不通知房间
	if s.hub.Unregister(c) {
		s.rooms.Disconnect(c.UserID())
		if s.chat != nil {
			s.chat.Forget(c.UserID())
		}
	}
	c.Close()
	<-s.semaphore

	if s.metrics != nil {
		s.metrics.ConnectionClosed()
	}
	logger.LogInfo("❌ 玩家 %s (%s) 已断开", c.Username(), c.UserID())
}

// GetOnlineCount 当前连接数
func (s *Server) GetOnlineCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// Broadcast 广播消息给所有连接
func (s *Server) Broadcast(msg *protocol.Message) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, c := range s.clients {
		c.SendMessage(msg)
	}
}
