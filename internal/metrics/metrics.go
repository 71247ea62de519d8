// Package metrics 服务端 Prometheus 指标
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/palemoky/werewolf/internal/game/room"
	"github.com/palemoky/werewolf/internal/storage"
)

const namespace = "werewolf"

// Collector 汇总游戏、持久化和连接指标。
// 实现 room.Listener 和 persistence.Metrics
type Collector struct {
	room.NopListener

	OnlinePlayers   prometheus.Gauge
	PhasesEntered   *prometheus.CounterVec
	Deaths          *prometheus.CounterVec
	GamesFinished   *prometheus.CounterVec
	SnapshotsSaved  prometheus.Counter
	SnapshotsFailed prometheus.Counter
	RoomsRecovered  prometheus.Counter
	RoomsDiscarded  *prometheus.CounterVec
	MessagesHandled *prometheus.CounterVec
	MessageLatency  prometheus.Histogram
}

// New 创建并注册指标。activeRooms 在每次抓取时调用
func New(reg prometheus.Registerer, activeRooms func() int) *Collector {
	c := &Collector{
		OnlinePlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_players",
			Help:      "Number of connected players",
		}),
		PhasesEntered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phases_entered_total",
			Help:      "Phase transitions by target phase",
		}, []string{"phase"}),
		Deaths: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deaths_total",
			Help:      "Player deaths by cause",
		}, []string{"cause"}),
		GamesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_finished_total",
			Help:      "Finished games by winning team",
		}, []string{"winner"}),
		SnapshotsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_saved_total",
			Help:      "Room snapshots written to storage",
		}),
		SnapshotsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_failed_total",
			Help:      "Room snapshots that failed to save",
		}),
		RoomsRecovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_recovered_total",
			Help:      "Rooms restored from snapshots at startup",
		}),
		RoomsDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_discarded_total",
			Help:      "Snapshots skipped during recovery by reason",
		}, []string{"reason"}),
		MessagesHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_handled_total",
			Help:      "Client messages handled by type",
		}, []string{"type"}),
		MessageLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_latency_seconds",
			Help:      "Client message processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}

	reg.MustRegister(
		c.OnlinePlayers,
		c.PhasesEntered,
		c.Deaths,
		c.GamesFinished,
		c.SnapshotsSaved,
		c.SnapshotsFailed,
		c.RoomsRecovered,
		c.RoomsDiscarded,
		c.MessagesHandled,
		c.MessageLatency,
	)
	if activeRooms != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Rooms with a game in progress",
		}, func() float64 { return float64(activeRooms()) }))
	}
	return c
}

// PhaseChanged 实现 room.Listener
func (c *Collector) PhaseChanged(e room.PhaseChange) {
	c.PhasesEntered.WithLabelValues(string(e.Phase)).Inc()
}

// DeathsOccurred 实现 room.Listener
func (c *Collector) DeathsOccurred(_ string, deaths []room.DeathRecord) {
	for _, d := range deaths {
		c.Deaths.WithLabelValues(d.Cause).Inc()
	}
}

// GameEnded 实现 room.Listener
func (c *Collector) GameEnded(result *storage.GameResult) {
	c.GamesFinished.WithLabelValues(result.Winner).Inc()
}

func (c *Collector) SnapshotSaved()  { c.SnapshotsSaved.Inc() }
func (c *Collector) SnapshotFailed() { c.SnapshotsFailed.Inc() }
func (c *Collector) RoomRecovered()  { c.RoomsRecovered.Inc() }

func (c *Collector) SnapshotDiscarded(reason string) {
	c.RoomsDiscarded.WithLabelValues(reason).Inc()
}

func (c *Collector) ConnectionOpened() { c.OnlinePlayers.Inc() }
func (c *Collector) ConnectionClosed() { c.OnlinePlayers.Dec() }

// ObserveMessage 记录一条客户端消息的处理耗时
func (c *Collector) ObserveMessage(msgType string, d time.Duration) {
	c.MessagesHandled.WithLabelValues(msgType).Inc()
	c.MessageLatency.Observe(d.Seconds())
}
