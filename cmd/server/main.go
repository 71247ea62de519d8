package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/palemoky/werewolf/internal/config"
	"github.com/palemoky/werewolf/internal/game/room"
	"github.com/palemoky/werewolf/internal/logger"
	"github.com/palemoky/werewolf/internal/metrics"
	"github.com/palemoky/werewolf/internal/persistence"
	"github.com/palemoky/werewolf/internal/storage"
	"github.com/palemoky/werewolf/internal/storage/sqlite"
	"github.com/palemoky/werewolf/internal/transport"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("加载配置文件失败，使用默认配置: %v", err)
		cfg = config.Default()
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer logger.Close()

	if err := run(cfg); err != nil {
		logger.LogError("服务器异常退出: %v", err)
		logger.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.LogWarn("关闭存储失败: %v", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var rooms *room.Manager
	collector := metrics.New(reg, func() int { return len(rooms.ActiveRooms()) })
	gateway := persistence.New(store,
		persistence.WithMetrics(collector),
		persistence.WithStaleThreshold(cfg.Game.StaleThresholdDuration()),
	)
	hub := transport.NewHub()

	rooms = room.NewManager(room.ConfigFromGame(cfg.Game),
		room.WithListener(room.Listeners{hub, gateway, collector}),
		room.WithEndedRetention(cfg.Game.EndedRetentionDuration()),
	)

	// 恢复上次停机前进行中的对局
	recovered, err := gateway.Recover(ctx, rooms)
	if err != nil {
		logger.LogWarn("⚠️ 恢复房间失败，以空状态启动: %v", err)
	} else if recovered > 0 {
		logger.LogInfo("♻️ 已恢复 %d 个进行中的房间", recovered)
	}

	var workers sync.WaitGroup
	workers.Go(func() { gateway.Run(ctx, rooms, cfg.Game.SnapshotIntervalDuration()) })
	workers.Go(func() { rooms.StartCleanup(ctx, cfg.Game.CleanupIntervalDuration()) })

	chat := transport.NewChatLimiter(cfg.Chat.MaxPerSecond, cfg.Chat.Burst)
	srv := transport.NewServer(cfg.Server, transport.ServerDeps{
		Rooms: rooms,
		Hub:   hub,
		Handler: transport.NewHandler(transport.HandlerDeps{
			Rooms:   rooms,
			Stats:   store,
			Chat:    chat,
			Metrics: collector,
		}),
		Chat:     chat,
		Metrics:  collector,
		Gatherer: reg,
	})
	workers.Go(func() { srv.MonitorStats(ctx, time.Minute) })

	errCh := make(chan error, 1)
	go func() {
		logger.LogInfo("🐺 狼人杀服务器启动中...")
		errCh <- srv.Start()
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var startErr error
	select {
	case sig := <-quit:
		logger.LogInfo("收到信号 %s，正在关闭服务器...", sig)
	case startErr = <-errCh:
		if startErr != nil {
			startErr = fmt.Errorf("服务器启动失败: %w", startErr)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.LogWarn("关闭 HTTP 服务失败: %v", err)
	}

	// 先停掉计时器，最后一次快照拿到的是静止的状态
	rooms.Shutdown()
	cancel()
	workers.Wait()
	gateway.Wait()

	logger.LogInfo("👋 服务器已退出")
	return startErr
}

// openStore 按配置打开快照与统计存储
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Driver {
	case config.StorageSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("创建数据目录失败: %w", err)
		}
		store, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.LogInfo("💾 使用 SQLite 存储: %s", cfg.Storage.SQLitePath)
		return store, nil
	default:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		// 测试 Redis 连接
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis 连接失败: %w", err)
		}
		logger.LogInfo("💾 使用 Redis 存储: %s", cfg.Redis.Addr)
		return storage.NewRedisStore(rdb), nil
	}
}
