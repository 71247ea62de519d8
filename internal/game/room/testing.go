//go:build !production

package room

import (
	"fmt"
	"sync"
	"time"

	"github.com/palemoky/werewolf/internal/game/player"
	"github.com/palemoky/werewolf/internal/game/role"
)

// ScheduledTask ManualScheduler 记录的任务
type ScheduledTask struct {
	Delay time.Duration

	fn        func()
	fired     bool
	cancelled bool
}

// ManualScheduler 测试用调度器，任务只在显式调用 Fire 时执行
type ManualScheduler struct {
	mu    sync.Mutex
	tasks []*ScheduledTask
}

// NewManualScheduler 创建手动调度器
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// Schedule 实现 Scheduler
func (s *ManualScheduler) Schedule(d time.Duration, fn func()) CancelFunc {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &ScheduledTask{Delay: d, fn: fn}
	s.tasks = append(s.tasks, t)
	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		if t.fired || t.cancelled {
			return false
		}
		t.cancelled = true
		return true
	}
}

// Pending 尚未执行也未取消的任务数
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.tasks {
		if !t.fired && !t.cancelled {
			n++
		}
	}
	return n
}

// Last 最近调度的任务
func (s *ManualScheduler) Last() *ScheduledTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tasks) == 0 {
		return nil
	}
	return s.tasks[len(s.tasks)-1]
}

// Fire 按调度顺序执行第一个待执行任务，没有任务时返回 false
func (s *ManualScheduler) Fire() bool {
	s.mu.Lock()
	var next *ScheduledTask
	for _, t := range s.tasks {
		if !t.fired && !t.cancelled {
			next = t
			break
		}
	}
	if next != nil {
		next.fired = true
	}
	s.mu.Unlock()

	if next == nil {
		return false
	}
	next.fn()
	return true
}

// RunAnyway 无视取消状态直接执行任务，模拟取消与触发的竞争
func (s *ManualScheduler) RunAnyway(t *ScheduledTask) {
	s.mu.Lock()
	t.fired = true
	s.mu.Unlock()
	t.fn()
}

// TestConfig 测试用房间配置
func TestConfig() Config {
	return Config{
		MinPlayers:     5,
		MaxPlayers:     16,
		NightDuration:  60 * time.Second,
		DayDuration:    120 * time.Second,
		VotingDuration: 45 * time.Second,
		Features:       Features{StartingItems: true, RevealOnDeath: true},
		Seed:           42,
	}
}

// StartWithRoles 跳过随机分配，按加入顺序直接分配给定角色并开局
func (r *GameRoom) StartWithRoles(roleIDs ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(roleIDs) != len(r.order) {
		return fmt.Errorf("need %d roles, got %d", len(r.order), len(roleIDs))
	}
	roles := make([]*role.Role, 0, len(roleIDs))
	for _, id := range roleIDs {
		ro, ok := r.catalog.Get(id)
		if !ok {
			return fmt.Errorf("unknown role %q", id)
		}
		roles = append(roles, ro)
	}
	r.begin(roles)
	return nil
}

// SetPhaseForTest 直接切换阶段（会清空待结算数据并重新计时）
func (r *GameRoom) SetPhaseForTest(p Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enterPhase(p)
}

// PlayerForTest 读取玩家状态副本
func (r *GameRoom) PlayerForTest(userID string) (player.Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[userID]
	if !ok {
		return player.Player{}, false
	}
	return *p, true
}

// Timer 当前计时器句柄
func (r *GameRoom) Timer() *PhaseTimer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timer
}

// PendingCounts 待结算行动数和投票数
func (r *GameRoom) PendingCounts() (actions, votes int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pendingActions), len(r.pendingVotes)
}
