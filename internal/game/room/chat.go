package room

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/palemoky/werewolf/internal/apperrors"
	"github.com/palemoky/werewolf/internal/game/player"
	"github.com/palemoky/werewolf/internal/game/role"
)

// Channel 聊天频道
type Channel string

const (
	ChannelAll        Channel = "all"
	ChannelWerewolves Channel = "werewolves"
	ChannelDead       Channel = "dead"
)

// Valid 是否为已知频道
func (c Channel) Valid() bool {
	return c == ChannelAll || c == ChannelWerewolves || c == ChannelDead
}

// ChatMessage 聊天消息
type ChatMessage struct {
	ID       int       `json:"id"`
	Channel  Channel   `json:"channel"`
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	Text     string    `json:"text"`
	SentAt   time.Time `json:"sent_at"`
}

// canAccess 频道权限，每次都按当前状态计算
func canAccess(p *player.Player, ch Channel) bool {
	switch ch {
	case ChannelAll:
		return true
	case ChannelWerewolves:
		return p.Alive && p.Team == role.TeamWerewolves
	case ChannelDead:
		return !p.Alive
	}
	return false
}

// Channels 玩家当前可用的频道
func (r *GameRoom) Channels(userID string) []Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[userID]
	if !ok {
		return nil
	}
	var out []Channel
	for _, ch := range []Channel{ChannelAll, ChannelWerewolves, ChannelDead} {
		if canAccess(p, ch) {
			out = append(out, ch)
		}
	}
	return out
}

// PostChat 发送聊天消息
func (r *GameRoom) PostChat(userID string, ch Channel, text string) (ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[userID]
	if !ok {
		return ChatMessage{}, apperrors.ErrNotInRoom
	}
	if !canAccess(p, ch) {
		return ChatMessage{}, apperrors.ErrChannelForbidden
	}
	// 被禁言的存活玩家不能发言
	if p.Alive && !p.CanAct() {
		return ChatMessage{}, apperrors.ErrCannotAct
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ChatMessage{}, apperrors.ErrInvalidMessage
	}
	if utf8.RuneCountInString(text) > maxChatLength {
		text = string([]rune(text)[:maxChatLength])
	}

	r.chatSeq++
	msg := ChatMessage{
		ID:       r.chatSeq,
		Channel:  ch,
		UserID:   userID,
		Username: p.Username,
		Text:     text,
		SentAt:   r.now(),
	}
	r.appendChat(msg)
	r.touch()

	var recipients []string
	for _, id := range r.order {
		if canAccess(r.players[id], ch) {
			recipients = append(recipients, id)
		}
	}
	r.listener.ChatPosted(r.ID, msg, recipients)
	return msg, nil
}

func (r *GameRoom) appendChat(msg ChatMessage) {
	log := append(r.chat[msg.Channel], msg)
	if len(log) > maxChatPerChannel {
		log = append([]ChatMessage(nil), log[len(log)-maxChatPerChannel:]...)
	}
	r.chat[msg.Channel] = log
}

// ReadChat 读取频道最近的 limit 条消息（旧的在前），limit <= 0 时返回全部
func (r *GameRoom) ReadChat(userID string, ch Channel, limit int) ([]ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[userID]
	if !ok {
		return nil, apperrors.ErrNotInRoom
	}
	if !canAccess(p, ch) {
		return nil, apperrors.ErrChannelForbidden
	}
	log := r.chat[ch]
	if limit > 0 && len(log) > limit {
		log = log[len(log)-limit:]
	}
	return append([]ChatMessage(nil), log...), nil
}
