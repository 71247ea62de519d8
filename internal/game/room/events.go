package room

import (
	"time"

	"github.com/palemoky/werewolf/internal/storage"
)

// PhaseChange 阶段变化事件
type PhaseChange struct {
	RoomID string    `json:"room_id"`
	Phase  Phase     `json:"phase"`
	Turn   int       `json:"turn"`
	EndsAt time.Time `json:"ends_at,omitzero"`
}

// VoteTally 投票统计
type VoteTally struct {
	RoomID        string         `json:"room_id"`
	Counts        map[string]int `json:"counts"`
	TotalVotes    int            `json:"total_votes"`
	RequiredVotes int            `json:"required_votes"`
}

// Listener 房间事件监听者。
// 回调在房间锁内同步执行，实现方不能再调用房间或管理器的方法，耗时操作需要自行转到协程
type Listener interface {
	// StateChanged 每个玩家各自的视图
	StateChanged(roomID string, views map[string]*View)
	PhaseChanged(e PhaseChange)
	DeathsOccurred(roomID string, deaths []DeathRecord)
	VoteUpdated(tally VoteTally)
	// ChatPosted recipients 已按频道权限过滤
	ChatPosted(roomID string, msg ChatMessage, recipients []string)
	GameEnded(result *storage.GameResult)
}

// NopListener 空实现，可嵌入只关心部分事件的监听者
type NopListener struct{}

func (NopListener) StateChanged(string, map[string]*View)    {}
func (NopListener) PhaseChanged(PhaseChange)                 {}
func (NopListener) DeathsOccurred(string, []DeathRecord)     {}
func (NopListener) VoteUpdated(VoteTally)                    {}
func (NopListener) ChatPosted(string, ChatMessage, []string) {}
func (NopListener) GameEnded(*storage.GameResult)            {}

// Listeners 依次通知多个监听者
type Listeners []Listener

func (ls Listeners) StateChanged(roomID string, views map[string]*View) {
	for _, l := range ls {
		l.StateChanged(roomID, views)
	}
}

func (ls Listeners) PhaseChanged(e PhaseChange) {
	for _, l := range ls {
		l.PhaseChanged(e)
	}
}

func (ls Listeners) DeathsOccurred(roomID string, deaths []DeathRecord) {
	for _, l := range ls {
		l.DeathsOccurred(roomID, deaths)
	}
}

func (ls Listeners) VoteUpdated(tally VoteTally) {
	for _, l := range ls {
		l.VoteUpdated(tally)
	}
}

func (ls Listeners) ChatPosted(roomID string, msg ChatMessage, recipients []string) {
	for _, l := range ls {
		l.ChatPosted(roomID, msg, recipients)
	}
}

func (ls Listeners) GameEnded(result *storage.GameResult) {
	for _, l := range ls {
		l.GameEnded(result)
	}
}

// notifyState 推送每个玩家的视图
func (r *GameRoom) notifyState() {
	views := make(map[string]*View, len(r.order))
	for _, id := range r.order {
		views[id] = r.view(id)
	}
	r.listener.StateChanged(r.ID, views)
}
