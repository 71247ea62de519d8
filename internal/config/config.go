package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// 默认值
const (
	defaultHost             = "0.0.0.0"
	defaultPort             = 1780
	defaultMaxConnections   = 5000
	defaultConnPerSecond    = 5
	defaultConnBurst        = 10
	defaultBanDuration      = 60
	defaultRedisAddr        = "localhost:6379"
	defaultStorageDriver    = "redis"
	defaultSQLitePath       = "data/werewolf.db"
	defaultMinPlayers       = 5
	defaultMaxPlayers       = 16
	defaultNightDuration    = 60
	defaultDayDuration      = 120
	defaultVotingDuration   = 45
	defaultSnapshotInterval = 10
	defaultCleanupInterval  = 60
	defaultEndedRetention   = 10
	defaultStaleThreshold   = 24
	defaultChatPerSecond    = 2
	defaultChatBurst        = 5
	defaultLogLevel         = "info"
)

// StorageRedis / StorageSQLite 可选的快照存储后端
const (
	StorageRedis  = "redis"
	StorageSQLite = "sqlite"
)

// Config 服务端配置
type Config struct {
	Server  ServerConfig  `yaml:"server" envPrefix:"SERVER_"`
	Redis   RedisConfig   `yaml:"redis" envPrefix:"REDIS_"`
	Storage StorageConfig `yaml:"storage" envPrefix:"STORAGE_"`
	Game    GameConfig    `yaml:"game" envPrefix:"GAME_"`
	Chat    ChatConfig    `yaml:"chat" envPrefix:"CHAT_"`
	Log     LogConfig     `yaml:"log" envPrefix:"LOG_"`
}

// ServerConfig WebSocket 服务器配置
type ServerConfig struct {
	Host           string   `yaml:"host" env:"HOST"`
	Port           int      `yaml:"port" env:"PORT"`
	MaxConnections int      `yaml:"max_connections" env:"MAX_CONNECTIONS"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","` // 为空时允许所有来源
	ConnPerSecond  float64  `yaml:"conn_per_second" env:"CONN_PER_SECOND"`                   // 每个 IP 每秒新建连接数
	ConnBurst      int      `yaml:"conn_burst" env:"CONN_BURST"`
	BanDuration    int      `yaml:"ban_duration" env:"BAN_DURATION"` // 超限封禁时长（秒）
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
}

// StorageConfig 快照与统计数据的存储后端
type StorageConfig struct {
	Driver     string `yaml:"driver" env:"DRIVER"`           // redis | sqlite
	SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH"` // sqlite 数据库文件
}

// GameConfig 游戏配置
type GameConfig struct {
	MinPlayers       int `yaml:"min_players" env:"MIN_PLAYERS"`
	MaxPlayers       int `yaml:"max_players" env:"MAX_PLAYERS"`
	NightDuration    int `yaml:"night_duration" env:"NIGHT_DURATION"`       // 夜晚时长（秒）
	DayDuration      int `yaml:"day_duration" env:"DAY_DURATION"`           // 白天讨论时长（秒）
	VotingDuration   int `yaml:"voting_duration" env:"VOTING_DURATION"`     // 投票时长（秒）
	SnapshotInterval int `yaml:"snapshot_interval" env:"SNAPSHOT_INTERVAL"` // 快照间隔（秒）
	CleanupInterval  int `yaml:"cleanup_interval" env:"CLEANUP_INTERVAL"`   // 清理间隔（秒）
	EndedRetention   int `yaml:"ended_retention" env:"ENDED_RETENTION"`     // 已结束房间保留时长（分钟）
	StaleThreshold   int `yaml:"stale_threshold" env:"STALE_THRESHOLD"`     // 快照过期阈值（小时）

	StartingItems bool `yaml:"starting_items" env:"STARTING_ITEMS"`
	RevealOnDeath bool `yaml:"reveal_on_death" env:"REVEAL_ON_DEATH"`
}

// ChatConfig 聊天限流配置
type ChatConfig struct {
	MaxPerSecond float64 `yaml:"max_per_second" env:"MAX_PER_SECOND"`
	Burst        int     `yaml:"burst" env:"BURST"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level       string `yaml:"level" env:"LEVEL"`
	Development bool   `yaml:"development" env:"DEVELOPMENT"`
}

// BanDurationTime 返回封禁时长
func (c *ServerConfig) BanDurationTime() time.Duration {
	return time.Duration(c.BanDuration) * time.Second
}

// NightDurationTime 返回夜晚时长
func (c *GameConfig) NightDurationTime() time.Duration {
	return time.Duration(c.NightDuration) * time.Second
}

// DayDurationTime 返回白天讨论时长
func (c *GameConfig) DayDurationTime() time.Duration {
	return time.Duration(c.DayDuration) * time.Second
}

// VotingDurationTime 返回投票时长
func (c *GameConfig) VotingDurationTime() time.Duration {
	return time.Duration(c.VotingDuration) * time.Second
}

// SnapshotIntervalDuration 返回快照间隔
func (c *GameConfig) SnapshotIntervalDuration() time.Duration {
	return time.Duration(c.SnapshotInterval) * time.Second
}

// CleanupIntervalDuration 返回清理间隔
func (c *GameConfig) CleanupIntervalDuration() time.Duration {
	return time.Duration(c.CleanupInterval) * time.Second
}

// EndedRetentionDuration 返回已结束房间的保留时长
func (c *GameConfig) EndedRetentionDuration() time.Duration {
	return time.Duration(c.EndedRetention) * time.Minute
}

// StaleThresholdDuration 返回快照过期阈值
func (c *GameConfig) StaleThresholdDuration() time.Duration {
	return time.Duration(c.StaleThreshold) * time.Hour
}

// Load 加载配置文件，环境变量（WEREWOLF_ 前缀）覆盖文件中的值
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "WEREWOLF_"}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置是否自洽
func (c *Config) Validate() error {
	if c.Game.MinPlayers < 3 {
		return fmt.Errorf("game.min_players must be at least 3, got %d", c.Game.MinPlayers)
	}
	if c.Game.MaxPlayers < c.Game.MinPlayers {
		return fmt.Errorf("game.max_players (%d) must be >= game.min_players (%d)", c.Game.MaxPlayers, c.Game.MinPlayers)
	}
	switch c.Storage.Driver {
	case StorageRedis, StorageSQLite:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}

// applyDefaults 为零值字段设置默认值
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = defaultHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaultPort
	}
	if cfg.Server.MaxConnections == 0 {
		cfg.Server.MaxConnections = defaultMaxConnections
	}
	if cfg.Server.ConnPerSecond == 0 {
		cfg.Server.ConnPerSecond = defaultConnPerSecond
	}
	if cfg.Server.ConnBurst == 0 {
		cfg.Server.ConnBurst = defaultConnBurst
	}
	if cfg.Server.BanDuration == 0 {
		cfg.Server.BanDuration = defaultBanDuration
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = defaultRedisAddr
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = defaultStorageDriver
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = defaultSQLitePath
	}
	if cfg.Game.MinPlayers == 0 {
		cfg.Game.MinPlayers = defaultMinPlayers
	}
	if cfg.Game.MaxPlayers == 0 {
		cfg.Game.MaxPlayers = defaultMaxPlayers
	}
	if cfg.Game.NightDuration == 0 {
		cfg.Game.NightDuration = defaultNightDuration
	}
	if cfg.Game.DayDuration == 0 {
		cfg.Game.DayDuration = defaultDayDuration
	}
	if cfg.Game.VotingDuration == 0 {
		cfg.Game.VotingDuration = defaultVotingDuration
	}
	if cfg.Game.SnapshotInterval == 0 {
		cfg.Game.SnapshotInterval = defaultSnapshotInterval
	}
	if cfg.Game.CleanupInterval == 0 {
		cfg.Game.CleanupInterval = defaultCleanupInterval
	}
	if cfg.Game.EndedRetention == 0 {
		cfg.Game.EndedRetention = defaultEndedRetention
	}
	if cfg.Game.StaleThreshold == 0 {
		cfg.Game.StaleThreshold = defaultStaleThreshold
	}
	if cfg.Chat.MaxPerSecond == 0 {
		cfg.Chat.MaxPerSecond = defaultChatPerSecond
	}
	if cfg.Chat.Burst == 0 {
		cfg.Chat.Burst = defaultChatBurst
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaultLogLevel
	}
}

// Default 返回默认配置
func Default() *Config {
	cfg := &Config{
		Game: GameConfig{
			StartingItems: true,
			RevealOnDeath: true,
		},
	}
	applyDefaults(cfg)
	return cfg
}
