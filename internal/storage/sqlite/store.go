// Package sqlite 基于 SQLite 的快照与统计存储
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/palemoky/werewolf/internal/storage"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Store SQLite 存储，保存房间快照和每局统计行
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

var _ storage.Store = (*Store)(nil)

func toMillis(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.UnixMilli(value).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Open 打开数据库并执行内嵌的迁移
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrate(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return err
	}
	_, err = provider.Up(ctx)
	return err
}

// Close 关闭数据库
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SaveSnapshot 按房间号覆盖写入
func (s *Store) SaveSnapshot(ctx context.Context, rec storage.SnapshotRecord) error {
	if rec.RoomID == "" {
		return fmt.Errorf("room id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO game_snapshots (room_id, host_id, phase, turn, started_at, ended_at, last_action_at, active, data, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(room_id) DO UPDATE SET
    host_id = excluded.host_id,
    phase = excluded.phase,
    turn = excluded.turn,
    started_at = excluded.started_at,
    ended_at = excluded.ended_at,
    last_action_at = excluded.last_action_at,
    active = excluded.active,
    data = excluded.data,
    updated_at = excluded.updated_at`,
		rec.RoomID, rec.HostID, rec.Phase, rec.Turn,
		toMillis(rec.StartedAt), toMillis(rec.EndedAt), toMillis(rec.LastActionAt),
		boolToInt(rec.Active), rec.Data, toMillis(s.now()),
	)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", rec.RoomID, err)
	}
	return nil
}

// LoadSnapshot 读取单个快照，不存在时返回 nil
func (s *Store) LoadSnapshot(ctx context.Context, roomID string) (*storage.SnapshotRecord, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT room_id, host_id, phase, turn, started_at, ended_at, last_action_at, active, data
FROM game_snapshots WHERE room_id = ?`, roomID)
	rec, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// LoadActiveSnapshots 返回全部活跃快照
func (s *Store) LoadActiveSnapshots(ctx context.Context) ([]storage.SnapshotRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT room_id, host_id, phase, turn, started_at, ended_at, last_action_at, active, data
FROM game_snapshots WHERE active = 1 ORDER BY room_id`)
	if err != nil {
		return nil, fmt.Errorf("query active snapshots: %w", err)
	}
	defer rows.Close()

	var out []storage.SnapshotRecord
	for rows.Next() {
		rec, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkInactive 标记为非活跃，保留数据
func (s *Store) MarkInactive(ctx context.Context, roomID string) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`UPDATE game_snapshots SET active = 0, updated_at = ? WHERE room_id = ?`,
		toMillis(s.now()), roomID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (storage.SnapshotRecord, error) {
	var (
		rec                              storage.SnapshotRecord
		startedAt, endedAt, lastActionAt int64
		active                           int
	)
	if err := row.Scan(&rec.RoomID, &rec.HostID, &rec.Phase, &rec.Turn,
		&startedAt, &endedAt, &lastActionAt, &active, &rec.Data); err != nil {
		return rec, err
	}
	rec.StartedAt = fromMillis(startedAt)
	rec.EndedAt = fromMillis(endedAt)
	rec.LastActionAt = fromMillis(lastActionAt)
	rec.Active = active == 1
	return rec, nil
}

// RecordGameResult 每个玩家写入一行统计
func (s *Store) RecordGameResult(ctx context.Context, result *storage.GameResult) error {
	if result == nil {
		return nil
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range result.Players {
		_, err := tx.ExecContext(ctx, `
INSERT OR REPLACE INTO game_player_stats
    (game_id, room_id, user_id, username, role_id, team, winner, won, survived,
     turns_survived, actions, votes, items_used, kills, ended_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			result.GameID, result.RoomID, p.UserID, p.Username, p.RoleID, p.Team, result.Winner,
			boolToInt(p.Won), boolToInt(p.Survived), p.TurnsSurvived,
			p.Actions, p.Votes, p.ItemsUsed, p.Kills, toMillis(result.EndedAt),
		)
		if err != nil {
			return fmt.Errorf("insert stats for %s: %w", p.UserID, err)
		}
	}
	return tx.Commit()
}

// GetPlayerStats 汇总玩家的统计行，没有完成过对局时返回 nil
func (s *Store) GetPlayerStats(ctx context.Context, userID string) (*storage.PlayerStats, error) {
	all, err := s.replay(ctx, `WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	return all[userID], nil
}

// GetLeaderboard 按积分排名
func (s *Store) GetLeaderboard(ctx context.Context, limit int) ([]storage.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	all, err := s.replay(ctx, "")
	if err != nil {
		return nil, err
	}

	stats := make([]*storage.PlayerStats, 0, len(all))
	for _, st := range all {
		stats = append(stats, st)
	}
	slices.SortFunc(stats, func(a, b *storage.PlayerStats) int {
		if a.Score != b.Score {
			return b.Score - a.Score
		}
		return strings.Compare(a.PlayerID, b.PlayerID)
	})

	entries := make([]storage.LeaderboardEntry, 0, min(limit, len(stats)))
	for i, st := range stats {
		if i >= limit {
			break
		}
		entries = append(entries, storage.LeaderboardEntry{
			Rank:       i + 1,
			PlayerID:   st.PlayerID,
			PlayerName: st.PlayerName,
			Score:      st.Score,
			Wins:       st.Wins,
			WinRate:    storage.WinRate(st.Wins, st.TotalGames),
		})
	}
	return entries, nil
}

// replay 按时间顺序累加统计行，连胜和积分与 Redis 后端一致
func (s *Store) replay(ctx context.Context, where string, args ...any) (map[string]*storage.PlayerStats, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT user_id, username, role_id, team, won, survived, turns_survived,
       actions, votes, items_used, kills, ended_at
FROM game_player_stats `+where+` ORDER BY ended_at, game_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*storage.PlayerStats)
	for rows.Next() {
		var (
			row           storage.PlayerResult
			won, survived int
			endedAt       int64
		)
		if err := rows.Scan(&row.UserID, &row.Username, &row.RoleID, &row.Team, &won, &survived,
			&row.TurnsSurvived, &row.Actions, &row.Votes, &row.ItemsUsed, &row.Kills, &endedAt); err != nil {
			return nil, err
		}
		row.Won = won == 1
		row.Survived = survived == 1

		st, ok := out[row.UserID]
		if !ok {
			st = &storage.PlayerStats{PlayerID: row.UserID, CreatedAt: fromMillis(endedAt).Unix()}
			out[row.UserID] = st
		}
		storage.ApplyResult(st, &row, fromMillis(endedAt))
	}
	return out, rows.Err()
}
