package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Redis key
	playerStatsKey = "player:stats:"
	gameResultKey  = "game:result:"
	leaderboardKey = "leaderboard:score"

	// 对局结果保留时长
	gameResultTTL = 30 * 24 * time.Hour
)

// PlayerStats 玩家统计数据
type PlayerStats struct {
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`

	// 总计
	TotalGames int `json:"total_games"` // 总场次
	Wins       int `json:"wins"`        // 胜场
	Losses     int `json:"losses"`      // 败场

	// 按阵营统计
	VillagerGames int `json:"villager_games"`
	VillagerWins  int `json:"villager_wins"`
	WerewolfGames int `json:"werewolf_games"`
	WerewolfWins  int `json:"werewolf_wins"`
	NeutralGames  int `json:"neutral_games"`
	NeutralWins   int `json:"neutral_wins"`

	Survived  int `json:"survived"` // 存活到结束的场次
	Kills     int `json:"kills"`
	Actions   int `json:"actions"`
	Votes     int `json:"votes"`
	ItemsUsed int `json:"items_used"`

	// 积分
	Score int `json:"score"`

	// 连胜/连败
	CurrentStreak int `json:"current_streak"` // 正数为连胜，负数为连败
	MaxWinStreak  int `json:"max_win_streak"`

	// 时间
	LastPlayedAt int64 `json:"last_played_at"`
	CreatedAt    int64 `json:"created_at"`
}

// 积分规则
const (
	WinAsWerewolf = 25
	WinAsVillager = 15
	WinAsNeutral  = 30
	LoseScore     = -10
	SurvivalBonus = 5
	KillBonus     = 2
	StreakBonus3  = 5  // 3 连胜加成
	StreakBonus5  = 10 // 5 连胜加成
	StreakBonus10 = 20 // 10 连胜加成
)

// LeaderboardEntry 排行榜条目
type LeaderboardEntry struct {
	Rank       int     `json:"rank"`
	PlayerID   string  `json:"player_id"`
	PlayerName string  `json:"player_name"`
	Score      int     `json:"score"`
	Wins       int     `json:"wins"`
	WinRate    float64 `json:"win_rate"`
}

// LeaderboardManager 排行榜管理器
type LeaderboardManager struct {
	redis *redis.Client
	now   func() time.Time
}

// NewLeaderboardManager 创建排行榜管理器
func NewLeaderboardManager(client *redis.Client) *LeaderboardManager {
	return &LeaderboardManager{redis: client, now: time.Now}
}

// GetPlayerStats 获取玩家统计，未参与过对局返回 nil
func (lm *LeaderboardManager) GetPlayerStats(ctx context.Context, playerID string) (*PlayerStats, error) {
	data, err := lm.redis.Get(ctx, playerStatsKey+playerID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var stats PlayerStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// SavePlayerStats 保存玩家统计
func (lm *LeaderboardManager) SavePlayerStats(ctx context.Context, stats *PlayerStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return lm.redis.Set(ctx, playerStatsKey+stats.PlayerID, data, 0).Err()
}

// RecordGameResult 记录一局结果：对局行、个人统计和排行榜
func (lm *LeaderboardManager) RecordGameResult(ctx context.Context, result *GameResult) error {
	if result == nil {
		return nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("序列化对局结果失败: %w", err)
	}
	if err := lm.redis.Set(ctx, gameResultKey+result.GameID, data, gameResultTTL).Err(); err != nil {
		return err
	}

	for i := range result.Players {
		if err := lm.recordPlayer(ctx, &result.Players[i]); err != nil {
			return fmt.Errorf("记录玩家 %s 统计失败: %w", result.Players[i].UserID, err)
		}
	}
	return nil
}

func (lm *LeaderboardManager) recordPlayer(ctx context.Context, row *PlayerResult) error {
	stats, err := lm.getOrCreateStats(ctx, row.UserID, row.Username)
	if err != nil {
		return err
	}
	ApplyResult(stats, row, lm.now())

	if err := lm.SavePlayerStats(ctx, stats); err != nil {
		return err
	}
	return lm.UpdateLeaderboard(ctx, stats)
}

// getOrCreateStats 获取或创建玩家统计
func (lm *LeaderboardManager) getOrCreateStats(ctx context.Context, playerID, playerName string) (*PlayerStats, error) {
	stats, err := lm.GetPlayerStats(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		return &PlayerStats{
			PlayerID:   playerID,
			PlayerName: playerName,
			CreatedAt:  lm.now().Unix(),
		}, nil
	}
	return stats, nil
}

// ApplyResult 把一局的统计行累加到玩家统计上
func ApplyResult(stats *PlayerStats, row *PlayerResult, now time.Time) {
	stats.PlayerName = row.Username
	stats.TotalGames++
	stats.LastPlayedAt = now.Unix()
	stats.Kills += row.Kills
	stats.Actions += row.Actions
	stats.Votes += row.Votes
	stats.ItemsUsed += row.ItemsUsed
	if row.Survived {
		stats.Survived++
	}

	scoreChange := updateTeamStats(stats, row.Team, row.Won)
	updateWinLossStats(stats, row.Won)

	if row.Survived {
		scoreChange += SurvivalBonus
	}
	scoreChange += row.Kills * KillBonus
	if row.Won {
		scoreChange += calculateStreakBonus(stats.CurrentStreak)
	}
	stats.Score = max(0, stats.Score+scoreChange)
}

// updateTeamStats 更新阵营统计并返回基础积分变化
func updateTeamStats(stats *PlayerStats, team string, won bool) int {
	switch team {
	case "werewolves":
		stats.WerewolfGames++
		if won {
			stats.WerewolfWins++
			return WinAsWerewolf
		}
	case "neutral":
		stats.NeutralGames++
		if won {
			stats.NeutralWins++
			return WinAsNeutral
		}
	default:
		stats.VillagerGames++
		if won {
			stats.VillagerWins++
			return WinAsVillager
		}
	}
	return LoseScore
}

// updateWinLossStats 更新胜负统计和连胜/连败
func updateWinLossStats(stats *PlayerStats, isWinner bool) {
	if isWinner {
		stats.Wins++
		stats.CurrentStreak = max(1, stats.CurrentStreak+1)
	} else {
		stats.Losses++
		stats.CurrentStreak = min(-1, stats.CurrentStreak-1)
	}

	if stats.CurrentStreak > stats.MaxWinStreak {
		stats.MaxWinStreak = stats.CurrentStreak
	}
}

// calculateStreakBonus 计算连胜加成
func calculateStreakBonus(streak int) int {
	switch {
	case streak >= 10:
		return StreakBonus10
	case streak >= 5:
		return StreakBonus5
	case streak >= 3:
		return StreakBonus3
	default:
		return 0
	}
}

// UpdateLeaderboard 更新排行榜
func (lm *LeaderboardManager) UpdateLeaderboard(ctx context.Context, stats *PlayerStats) error {
	member := redis.Z{Score: float64(stats.Score), Member: stats.PlayerID}
	return lm.redis.ZAdd(ctx, leaderboardKey, member).Err()
}

// GetLeaderboard 获取总排行榜
func (lm *LeaderboardManager) GetLeaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	results, err := lm.redis.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, 0, len(results))
	for _, result := range results {
		playerID, ok := result.Member.(string)
		if !ok {
			continue
		}
		stats, err := lm.GetPlayerStats(ctx, playerID)
		if err != nil || stats == nil {
			continue
		}
		entries = append(entries, LeaderboardEntry{
			Rank:       len(entries) + 1,
			PlayerID:   playerID,
			PlayerName: stats.PlayerName,
			Score:      int(result.Score),
			Wins:       stats.Wins,
			WinRate:    WinRate(stats.Wins, stats.TotalGames),
		})
	}
	return entries, nil
}

// WinRate 胜率（百分比）
func WinRate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total) * 100
}
