package room

import (
	"time"

	"github.com/palemoky/werewolf/internal/logger"
)

// CancelFunc 取消已调度的任务，返回 false 表示任务已经执行或已取消
type CancelFunc func() bool

// Scheduler 延迟执行回调
type Scheduler interface {
	Schedule(d time.Duration, fn func()) CancelFunc
}

// AfterFuncScheduler 基于 time.AfterFunc 的调度器
type AfterFuncScheduler struct{}

// Schedule 实现 Scheduler
func (AfterFuncScheduler) Schedule(d time.Duration, fn func()) CancelFunc {
	t := time.AfterFunc(d, fn)
	return t.Stop
}

// TimerState 阶段计时器状态
type TimerState int

const (
	TimerPending   TimerState = iota // 等待触发
	TimerFired                       // 已触发
	TimerCancelled                   // 已取消
)

func (s TimerState) String() string {
	switch s {
	case TimerPending:
		return "pending"
	case TimerFired:
		return "fired"
	case TimerCancelled:
		return "cancelled"
	}
	return "unknown"
}

// PhaseTimer 当前阶段的计时器句柄，字段只在房间锁内读写
type PhaseTimer struct {
	Phase    Phase
	Turn     int
	Deadline time.Time

	state  TimerState
	cancel CancelFunc
}

// State 计时器状态
func (t *PhaseTimer) State() TimerState {
	return t.state
}

// armTimer 为当前阶段创建计时器，时长为 0 时不自动结束
func (r *GameRoom) armTimer() {
	d := r.Config.duration(r.phase)
	if d <= 0 {
		return
	}
	t := &PhaseTimer{
		Phase:    r.phase,
		Turn:     r.turn,
		Deadline: r.now().Add(d),
	}
	t.cancel = r.scheduler.Schedule(d, func() { r.onTimer(t) })
	r.timer = t
}

// cancelTimer 取消当前计时器
func (r *GameRoom) cancelTimer() {
	t := r.timer
	if t == nil {
		return
	}
	r.timer = nil
	if t.state != TimerPending {
		return
	}
	t.state = TimerCancelled
	if t.cancel != nil {
		t.cancel()
	}
}

// onTimer 计时器回调。过期的句柄直接忽略，避免同一阶段被结算两次
func (r *GameRoom) onTimer(t *PhaseTimer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	defer func() {
		if rec := recover(); rec != nil {
			logger.LogPanic(rec)
			logger.LogError("💥 房间 %s 阶段 %s 结算异常", r.ID, t.Phase)
		}
	}()

	if r.timer != t || t.state != TimerPending {
		return
	}
	t.state = TimerFired
	r.timer = nil

	logger.LogDebug("⏰ 房间 %s 第 %d 回合 %s 阶段超时", r.ID, t.Turn, t.Phase)
	r.advance()
}

// PhaseDeadline 当前阶段的截止时间，没有计时器时为零值
func (r *GameRoom) PhaseDeadline() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deadline()
}

func (r *GameRoom) deadline() time.Time {
	if r.timer == nil {
		return time.Time{}
	}
	return r.timer.Deadline
}
