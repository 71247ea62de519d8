package storage

import (
	"encoding/json"
	"errors"
	"fmt"
)

// SnapshotVersion 快照格式版本
const SnapshotVersion = 1

// ErrCorruptSnapshot 快照数据无法解析或结构不合法
var ErrCorruptSnapshot = errors.New("corrupt snapshot")

// RoomSnapshot 房间快照（纯数据，用于持久化和恢复）
type RoomSnapshot struct {
	Version int    `json:"version"`
	RoomID  string `json:"room_id"`
	GameID  string `json:"game_id"`
	HostID  string `json:"host_id"`

	Config ConfigData `json:"config"`

	Phase      string `json:"phase"`
	Turn       int    `json:"turn"`
	Resolution int    `json:"resolution"`

	CreatedAt      int64 `json:"created_at"` // unix 毫秒
	StartedAt      int64 `json:"started_at,omitempty"`
	EndedAt        int64 `json:"ended_at,omitempty"`
	PhaseStartedAt int64 `json:"phase_started_at,omitempty"`
	LastActionAt   int64 `json:"last_action_at"`

	Players        []PlayerData          `json:"players"` // 按加入顺序
	PendingActions []PendingActionData   `json:"pending_actions,omitempty"`
	PendingVotes   map[string]string     `json:"pending_votes,omitempty"`
	ActionSeq      int                   `json:"action_seq"`
	Actions        []ActionData          `json:"actions,omitempty"`
	Deaths         []DeathData           `json:"deaths,omitempty"`
	Chat           map[string][]ChatData `json:"chat,omitempty"`
	ChatSeq        int                   `json:"chat_seq"`
	TriggerWindows map[string]int        `json:"trigger_windows,omitempty"`

	Winner         string   `json:"winner,omitempty"`
	NeutralWinners []string `json:"neutral_winners,omitempty"`

	Active bool `json:"active"`
}

// ConfigData 房间配置
type ConfigData struct {
	MinPlayers    int    `json:"min_players"`
	MaxPlayers    int    `json:"max_players"`
	NightMillis   int64  `json:"night_ms"`
	DayMillis     int64  `json:"day_ms"`
	VotingMillis  int64  `json:"voting_ms"`
	StartingItems bool   `json:"starting_items"`
	RevealOnDeath bool   `json:"reveal_on_death"`
	Seed          uint64 `json:"seed,omitempty"`
}

// PlayerData 玩家数据
type PlayerData struct {
	UserID      string         `json:"user_id"`
	Username    string         `json:"username"`
	RoleID      string         `json:"role_id,omitempty"`
	Team        string         `json:"team,omitempty"`
	Alive       bool           `json:"alive"`
	Lives       int            `json:"lives"`
	Armor       int            `json:"armor"`
	Protected   bool           `json:"protected,omitempty"`
	Silenced    bool           `json:"silenced,omitempty"`
	Effects     []EffectData   `json:"effects,omitempty"`
	Items       []ItemData     `json:"items,omitempty"`
	IsHost      bool           `json:"is_host,omitempty"`
	Ready       bool           `json:"ready,omitempty"`
	Connected   bool           `json:"connected,omitempty"`
	AbilityUses map[string]int `json:"ability_uses,omitempty"`
	PhaseUses   map[string]int `json:"phase_uses,omitempty"`
	Actions     int            `json:"actions"`
	Votes       int            `json:"votes"`
	ItemsUsed   int            `json:"items_used"`
}

// EffectData 状态效果
type EffectData struct {
	Type      string `json:"type"`
	Remaining int    `json:"remaining"`
	Source    string `json:"source,omitempty"`
}

// ItemData 道具
type ItemData struct {
	ID   string `json:"id"`
	Uses int    `json:"uses"`
}

// PendingActionData 待结算的夜晚行动
type PendingActionData struct {
	UserID    string   `json:"user_id"`
	AbilityID string   `json:"ability_id"`
	Targets   []string `json:"targets,omitempty"`
	Seq       int      `json:"seq"`
	At        int64    `json:"at"`
}

// ActionData 行动历史
type ActionData struct {
	Turn      int      `json:"turn"`
	Phase     string   `json:"phase"`
	ActorID   string   `json:"actor_id"`
	AbilityID string   `json:"ability_id,omitempty"`
	ItemID    string   `json:"item_id,omitempty"`
	Targets   []string `json:"targets,omitempty"`
	Success   bool     `json:"success"`
	Result    string   `json:"result,omitempty"`
	At        int64    `json:"at"`
}

// DeathData 死亡记录
type DeathData struct {
	VictimID  string   `json:"victim_id"`
	Turn      int      `json:"turn"`
	Phase     string   `json:"phase"`
	Cause     string   `json:"cause"`
	KillerIDs []string `json:"killer_ids,omitempty"`
	At        int64    `json:"at"`
}

// ChatData 聊天消息
type ChatData struct {
	ID       int    `json:"id"`
	Channel  string `json:"channel"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Text     string `json:"text"`
	At       int64  `json:"at"`
}

// EncodeSnapshot 序列化快照
func EncodeSnapshot(snap *RoomSnapshot) ([]byte, error) {
	if snap == nil {
		return nil, fmt.Errorf("nil snapshot")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("序列化快照失败: %w", err)
	}
	return data, nil
}

// DecodeSnapshot 反序列化并校验快照
func DecodeSnapshot(data []byte) (*RoomSnapshot, error) {
	var snap RoomSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, snap.Version)
	}
	if snap.RoomID == "" {
		return nil, fmt.Errorf("%w: missing room id", ErrCorruptSnapshot)
	}
	switch snap.Phase {
	case "lobby", "night", "day", "voting", "ended":
	default:
		return nil, fmt.Errorf("%w: unknown phase %q", ErrCorruptSnapshot, snap.Phase)
	}
	if len(snap.Players) == 0 {
		return nil, fmt.Errorf("%w: no players", ErrCorruptSnapshot)
	}
	return &snap, nil
}
