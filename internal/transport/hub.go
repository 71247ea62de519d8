package transport

import (
	"sync"

	"github.com/palemoky/werewolf/internal/game/room"
	"github.com/palemoky/werewolf/internal/protocol"
	"github.com/palemoky/werewolf/internal/storage"
)

// DeathsPayload 死亡公告
type DeathsPayload struct {
	RoomID string             `json:"room_id"`
	Deaths []room.DeathRecord `json:"deaths"`
}

// ChatEvent 推送给频道成员的聊天消息
type ChatEvent struct {
	RoomID string           `json:"room_id"`
	Msg    room.ChatMessage `json:"message"`
}

// Hub 把房间事件推送给在线用户。
// 房间成员列表从 StateChanged 的视图中得到，因为回调在房间锁内执行，不能反查管理器
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]Session  // userID → 当前连接
	members  map[string][]string // roomID → 成员
}

var _ room.Listener = (*Hub)(nil)

// NewHub 创建推送中心
func NewHub() *Hub {
	return &Hub{
		sessions: make(map[string]Session),
		members:  make(map[string][]string),
	}
}

// Register 绑定用户的连接，返回被替换的旧连接
func (h *Hub) Register(s Session) Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev := h.sessions[s.UserID()]
	h.sessions[s.UserID()] = s
	return prev
}

// Unregister 只有 s 仍是该用户的当前连接时才解绑
func (h *Hub) Unregister(s Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.sessions[s.UserID()]; ok && cur == s {
		delete(h.sessions, s.UserID())
		return true
	}
	return false
}

// Count 在线用户数
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Members 房间的已知成员
func (h *Hub) Members(roomID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string(nil), h.members[roomID]...)
}

// Send 发送给单个用户，用户不在线时返回 false
func (h *Hub) Send(userID string, msg *protocol.Message) bool {
	h.mu.RLock()
	s, ok := h.sessions[userID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	s.SendMessage(msg)
	return true
}

func (h *Hub) sendAll(userIDs []string, msg *protocol.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, uid := range userIDs {
		if s, ok := h.sessions[uid]; ok {
			s.SendMessage(msg)
		}
	}
}

func (h *Hub) broadcast(roomID string, msg *protocol.Message) {
	h.mu.RLock()
	members := h.members[roomID]
	h.mu.RUnlock()
	h.sendAll(members, msg)
}

// StateChanged 实现 room.Listener
func (h *Hub) StateChanged(roomID string, views map[string]*room.View) {
	ids := make([]string, 0, len(views))
	for uid := range views {
		ids = append(ids, uid)
	}

	h.mu.Lock()
	if len(ids) == 0 {
		delete(h.members, roomID)
	} else {
		h.members[roomID] = ids
	}
	h.mu.Unlock()

	for uid, v := range views {
		h.Send(uid, protocol.MustNewMessage(protocol.MsgRoomState, v))
	}
}

// PhaseChanged 实现 room.Listener
func (h *Hub) PhaseChanged(e room.PhaseChange) {
	h.broadcast(e.RoomID, protocol.MustNewMessage(protocol.MsgPhaseChanged, e))
}

// DeathsOccurred 实现 room.Listener
func (h *Hub) DeathsOccurred(roomID string, deaths []room.DeathRecord) {
	h.broadcast(roomID, protocol.MustNewMessage(protocol.MsgDeathsOccurred, DeathsPayload{
		RoomID: roomID,
		Deaths: deaths,
	}))
}

// VoteUpdated 实现 room.Listener
func (h *Hub) VoteUpdated(tally room.VoteTally) {
	h.broadcast(tally.RoomID, protocol.MustNewMessage(protocol.MsgVoteUpdate, tally))
}

// ChatPosted 实现 room.Listener，只发给有频道权限的成员
func (h *Hub) ChatPosted(roomID string, msg room.ChatMessage, recipients []string) {
	h.sendAll(recipients, protocol.MustNewMessage(protocol.MsgChatMessage, ChatEvent{RoomID: roomID, Msg: msg}))
}

// GameEnded 实现 room.Listener
func (h *Hub) GameEnded(result *storage.GameResult) {
	h.broadcast(result.RoomID, protocol.MustNewMessage(protocol.MsgGameOver, result))
}
