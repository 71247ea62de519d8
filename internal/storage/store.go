package storage

import (
	"context"
	"time"
)

// SnapshotRecord 存储层中的一行快照
type SnapshotRecord struct {
	RoomID       string
	HostID       string
	Phase        string
	Turn         int
	StartedAt    time.Time
	EndedAt      time.Time
	LastActionAt time.Time
	Active       bool
	Data         []byte // EncodeSnapshot 的结果
}

// GameResult 一局结束后的结果
type GameResult struct {
	RoomID         string         `json:"room_id"`
	GameID         string         `json:"game_id"`
	Winner         string         `json:"winner"`
	NeutralWinners []string       `json:"neutral_winners,omitempty"`
	Turns          int            `json:"turns"`
	EndedAt        time.Time      `json:"ended_at"`
	Players        []PlayerResult `json:"players"`
}

// PlayerResult 单个玩家在一局中的统计行
type PlayerResult struct {
	UserID        string `json:"user_id"`
	Username      string `json:"username"`
	RoleID        string `json:"role_id"`
	Team          string `json:"team"`
	Won           bool   `json:"won"`
	Survived      bool   `json:"survived"`
	TurnsSurvived int    `json:"turns_survived"`
	Actions       int    `json:"actions"`
	Votes         int    `json:"votes"`
	ItemsUsed     int    `json:"items_used"`
	Kills         int    `json:"kills"`
}

// SnapshotStore 快照存储
type SnapshotStore interface {
	// SaveSnapshot 按房间号覆盖写入
	SaveSnapshot(ctx context.Context, rec SnapshotRecord) error
	// LoadActiveSnapshots 返回全部活跃快照
	LoadActiveSnapshots(ctx context.Context) ([]SnapshotRecord, error)
	// MarkInactive 标记为非活跃（保留数据）
	MarkInactive(ctx context.Context, roomID string) error
}

// StatsStore 统计数据存储
type StatsStore interface {
	RecordGameResult(ctx context.Context, result *GameResult) error
	GetPlayerStats(ctx context.Context, userID string) (*PlayerStats, error)
	GetLeaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error)
}

// Store 完整的存储后端
type Store interface {
	SnapshotStore
	StatsStore
	Close() error
}
