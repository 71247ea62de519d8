package transport

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/palemoky/werewolf/internal/apperrors"
	"github.com/palemoky/werewolf/internal/game/room"
	"github.com/palemoky/werewolf/internal/logger"
	"github.com/palemoky/werewolf/internal/protocol"
	"github.com/palemoky/werewolf/internal/storage"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 50
	statsTimeout            = 3 * time.Second
)

// MessageObserver 消息处理耗时统计
type MessageObserver interface {
	ObserveMessage(msgType string, d time.Duration)
}

// HandlerDeps 处理器依赖，Stats / Chat / Metrics 可以为空
type HandlerDeps struct {
	Rooms   *room.Manager
	Stats   storage.StatsStore
	Chat    ChatLimiter
	Metrics MessageObserver
}

// Handler 把客户端消息翻译成房间管理器调用，本身不包含游戏规则
type Handler struct {
	rooms    *room.Manager
	stats    storage.StatsStore
	chat     ChatLimiter
	metrics  MessageObserver
	handlers map[protocol.MessageType]handlerFunc
}

// handlerFunc 返回的 GameError 会转成错误消息发回客户端
type handlerFunc func(s Session, msg *protocol.Message) error

// ChatHistoryResult 频道历史
type ChatHistoryResult struct {
	Channel  room.Channel       `json:"channel"`
	Messages []room.ChatMessage `json:"messages"`
}

// NewHandler 创建处理器
func NewHandler(deps HandlerDeps) *Handler {
	h := &Handler{
		rooms:   deps.Rooms,
		stats:   deps.Stats,
		chat:    deps.Chat,
		metrics: deps.Metrics,
	}
	h.initHandlers()
	return h
}

func (h *Handler) initHandlers() {
	h.handlers = map[protocol.MessageType]handlerFunc{
		protocol.MsgPing: h.handlePing,

		// 房间操作
		protocol.MsgCreateRoom:  h.handleCreateRoom,
		protocol.MsgJoinRoom:    h.handleJoinRoom,
		protocol.MsgLeaveRoom:   h.handleLeaveRoom,
		protocol.MsgQuickMatch:  h.handleQuickMatch,
		protocol.MsgToggleReady: h.handleToggleReady,
		protocol.MsgStartGame:   h.handleStartGame,

		// 游戏操作
		protocol.MsgNightAction:    h.handleNightAction,
		protocol.MsgTriggerAbility: h.handleTriggerAbility,
		protocol.MsgVote:           h.handleVote,
		protocol.MsgUseItem:        h.handleUseItem,
		protocol.MsgForceSkip:      h.handleForceSkip,
		protocol.MsgChat:           h.handleChat,
		protocol.MsgChatHistory:    h.handleChatHistory,

		// 查询
		protocol.MsgGetRoomState:   h.handleGetRoomState,
		protocol.MsgGetRoomList:    h.handleGetRoomList,
		protocol.MsgGetStats:       h.handleGetStats,
		protocol.MsgGetLeaderboard: h.handleGetLeaderboard,
	}
}

// Handle 处理一条消息
func (h *Handler) Handle(s Session, msg *protocol.Message) {
	handler, ok := h.handlers[msg.Type]
	if !ok {
		logger.LogWarn("⚠️ 未知消息类型: '%s' (来自玩家: %s)", msg.Type, s.UserID())
		s.SendMessage(protocol.NewErrorMessage(protocol.ErrCodeInvalidMsg))
		return
	}

	start := time.Now()
	if err := handler(s, msg); err != nil {
		sendError(s, err)
	}
	if h.metrics != nil {
		h.metrics.ObserveMessage(string(msg.Type), time.Since(start))
	}
}

func sendError(s Session, err error) {
	var ge *apperrors.GameError
	if errors.As(err, &ge) {
		s.SendMessage(protocol.NewErrorMessage(ge.Code))
		return
	}
	logger.LogError("❌ 处理玩家 %s 的请求失败: %v", s.UserID(), err)
	s.SendMessage(protocol.NewErrorMessage(protocol.ErrCodeUnknown))
}

func parse[T any](msg *protocol.Message) (*T, error) {
	p, err := protocol.ParsePayload[T](msg)
	if err != nil {
		return nil, apperrors.ErrInvalidMessage
	}
	return p, nil
}

// currentRoom 用户当前所在房间
func (h *Handler) currentRoom(s Session) (string, error) {
	roomID := h.rooms.RoomOf(s.UserID())
	if roomID == "" {
		return "", apperrors.ErrNotInRoom
	}
	return roomID, nil
}

func (h *Handler) handlePing(s Session, msg *protocol.Message) error {
	p, err := parse[protocol.PingPayload](msg)
	if err != nil {
		return err
	}
	s.SendMessage(protocol.MustNewMessage(protocol.MsgPong, protocol.PongPayload{
		ClientTimestamp: p.Timestamp,
		ServerTimestamp: time.Now().UnixMilli(),
	}))
	return nil
}

// roomConfig 请求中未给出的开关沿用服务端默认值
func (h *Handler) roomConfig(p *protocol.CreateRoomPayload) *room.Config {
	features := h.rooms.Defaults().Features
	if p.StartingItems != nil {
		features.StartingItems = *p.StartingItems
	}
	if p.RevealOnDeath != nil {
		features.RevealOnDeath = *p.RevealOnDeath
	}
	return &room.Config{
		MinPlayers:     p.MinPlayers,
		MaxPlayers:     p.MaxPlayers,
		NightDuration:  time.Duration(p.NightSeconds) * time.Second,
		DayDuration:    time.Duration(p.DaySeconds) * time.Second,
		VotingDuration: time.Duration(p.VotingSeconds) * time.Second,
		Features:       features,
		Seed:           p.Seed,
	}
}

func (h *Handler) handleCreateRoom(s Session, msg *protocol.Message) error {
	p, err := parse[protocol.CreateRoomPayload](msg)
	if err != nil {
		return err
	}
	roomID, err := h.rooms.CreateRoom(s.UserID(), s.Username(), h.roomConfig(p))
	if err != nil {
		return err
	}
	s.SendMessage(protocol.MustNewMessage(protocol.MsgRoomCreated, protocol.RoomCreatedPayload{RoomID: roomID}))
	return nil
}

func (h *Handler) handleJoinRoom(s Session, msg *protocol.Message) error {
	p, err := parse[protocol.JoinRoomPayload](msg)
	if err != nil {
		return err
	}
	view, err := h.rooms.JoinRoom(strings.TrimSpace(p.RoomID), s.UserID(), s.Username())
	if err != nil {
		return err
	}
	s.SendMessage(protocol.MustNewMessage(protocol.MsgRoomJoined, view))
	return nil
}

func (h *Handler) handleLeaveRoom(s Session, _ *protocol.Message) error {
	roomID, err := h.currentRoom(s)
	if err != nil {
		return err
	}
	h.rooms.LeaveRoom(s.UserID(), roomID)
	s.SendMessage(protocol.MustNewMessage(protocol.MsgRoomLeft, protocol.RoomLeftPayload{RoomID: roomID}))
	return nil
}

func (h *Handler) handleQuickMatch(s Session, _ *protocol.Message) error {
	roomID, err := h.rooms.QuickMatch(s.UserID(), s.Username())
	if err != nil {
		return err
	}
	view, err := h.rooms.GetRoomState(roomID, s.UserID())
	if err != nil {
		return err
	}
	s.SendMessage(protocol.MustNewMessage(protocol.MsgRoomJoined, view))
	return nil
}

func (h *Handler) handleToggleReady(s Session, _ *protocol.Message) error {
	roomID, err := h.currentRoom(s)
	if err != nil {
		return err
	}
	ready, err := h.rooms.ToggleReady(s.UserID(), roomID)
	if err != nil {
		return err
	}
	s.SendMessage(protocol.MustNewMessage(protocol.MsgReadyToggled, protocol.ReadyToggledPayload{Ready: ready}))
	return nil
}

func (h *Handler) handleStartGame(s Session, _ *protocol.Message) error {
	roomID, err := h.currentRoom(s)
	if err != nil {
		return err
	}
	return h.rooms.StartGame(roomID, s.UserID())
}

func (h *Handler) handleNightAction(s Session, msg *protocol.Message) error {
	p, err := parse[protocol.AbilityPayload](msg)
	if err != nil {
		return err
	}
	roomID, err := h.currentRoom(s)
	if err != nil {
		return err
	}
	if err := h.rooms.RegisterNightAction(roomID, s.UserID(), p.AbilityID, p.Targets); err != nil {
		return err
	}
	s.SendMessage(protocol.MustNewMessage(protocol.MsgActionAck, p))
	return nil
}

func (h *Handler) handleTriggerAbility(s Session, msg *protocol.Message) error {
	p, err := parse[protocol.AbilityPayload](msg)
	if err != nil {
		return err
	}
	roomID, err := h.currentRoom(s)
	if err != nil {
		return err
	}
	rec, err := h.rooms.TriggerAbility(roomID, s.UserID(), p.AbilityID, p.Targets)
	if err != nil {
		return err
	}
	s.SendMessage(protocol.MustNewMessage(protocol.MsgActionAck, rec))
	return nil
}

// handleVote 投票结果通过 VoteUpdated 推送给全房间
func (h *Handler) handleVote(s Session, msg *protocol.Message) error {
	p, err := parse[protocol.VotePayload](msg)
	if err != nil {
		return err
	}
	roomID, err := h.currentRoom(s)
	if err != nil {
		return err
	}
	_, err = h.rooms.RegisterVote(roomID, s.UserID(), p.TargetID)
	return err
}

func (h *Handler) handleUseItem(s Session, msg *protocol.Message) error {
	p, err := parse[protocol.UseItemPayload](msg)
	if err != nil {
		return err
	}
	item, err := h.rooms.UseItem(s.UserID(), p.ItemID, p.Targets)
	if err != nil {
		return err
	}
	s.SendMessage(protocol.MustNewMessage(protocol.MsgItemUsed, item))
	return nil
}

func (h *Handler) handleForceSkip(s Session, _ *protocol.Message) error {
	roomID, err := h.currentRoom(s)
	if err != nil {
		return err
	}
	return h.rooms.ForceSkip(roomID, s.UserID())
}

func channelOf(name string) room.Channel {
	if name == "" {
		return room.ChannelAll
	}
	return room.Channel(name)
}

// handleChat 消息本身由 ChatPosted 推送给频道成员
func (h *Handler) handleChat(s Session, msg *protocol.Message) error {
	p, err := parse[protocol.ChatPayload](msg)
	if err != nil {
		return err
	}
	text := strings.TrimSpace(p.Text)
	if text == "" {
		return apperrors.ErrInvalidMessage
	}

	if h.chat != nil {
		if allowed, reason := h.chat.AllowChat(s.UserID()); !allowed {
			s.SendMessage(protocol.NewErrorMessageWithText(protocol.ErrCodeRateLimit, reason))
			return nil
		}
	}

	roomID, err := h.currentRoom(s)
	if err != nil {
		return err
	}
	_, err = h.rooms.PostChat(roomID, s.UserID(), channelOf(p.Channel), text)
	return err
}

func (h *Handler) handleChatHistory(s Session, msg *protocol.Message) error {
	p, err := parse[protocol.ChatHistoryPayload](msg)
	if err != nil {
		return err
	}
	roomID, err := h.currentRoom(s)
	if err != nil {
		return err
	}
	ch := channelOf(p.Channel)
	msgs, err := h.rooms.ReadChat(roomID, s.UserID(), ch, p.Limit)
	if err != nil {
		return err
	}
	s.SendMessage(protocol.MustNewMessage(protocol.MsgChatHistoryRes, ChatHistoryResult{Channel: ch, Messages: msgs}))
	return nil
}

func (h *Handler) handleGetRoomState(s Session, _ *protocol.Message) error {
	roomID, err := h.currentRoom(s)
	if err != nil {
		return err
	}
	view, err := h.rooms.GetRoomState(roomID, s.UserID())
	if err != nil {
		return err
	}
	s.SendMessage(protocol.MustNewMessage(protocol.MsgRoomState, view))
	return nil
}

func (h *Handler) handleGetRoomList(s Session, _ *protocol.Message) error {
	s.SendMessage(protocol.MustNewMessage(protocol.MsgRoomListResult, protocol.RoomListResultPayload{
		Rooms: h.rooms.ListOpenRooms(),
	}))
	return nil
}

func (h *Handler) handleGetStats(s Session, _ *protocol.Message) error {
	if h.stats == nil {
		return errors.New("stats store not configured")
	}
	ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
	defer cancel()

	stats, err := h.stats.GetPlayerStats(ctx, s.UserID())
	if err != nil {
		return err
	}
	if stats == nil {
		stats = &storage.PlayerStats{PlayerID: s.UserID(), PlayerName: s.Username()}
	}
	s.SendMessage(protocol.MustNewMessage(protocol.MsgStatsResult, stats))
	return nil
}

func (h *Handler) handleGetLeaderboard(s Session, msg *protocol.Message) error {
	if h.stats == nil {
		return errors.New("stats store not configured")
	}
	p, err := parse[protocol.GetLeaderboardPayload](msg)
	if err != nil {
		p = &protocol.GetLeaderboardPayload{}
	}
	if p.Limit <= 0 || p.Limit > maxLeaderboardLimit {
		p.Limit = defaultLeaderboardLimit
	}

	ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
	defer cancel()

	entries, err := h.stats.GetLeaderboard(ctx, p.Limit)
	if err != nil {
		return err
	}
	s.SendMessage(protocol.MustNewMessage(protocol.MsgLeaderboardResult, entries))
	return nil
}
