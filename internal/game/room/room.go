package room

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/palemoky/werewolf/internal/config"
	"github.com/palemoky/werewolf/internal/game/player"
	"github.com/palemoky/werewolf/internal/game/role"
)

const (
	roomCodeLength = 6            // 房间号长度
	roomCodeChars  = "0123456789" // 房间号字符集

	maxChatPerChannel = 200 // 每个频道保留的消息数
	maxChatLength     = 500 // 单条消息最大字符数
)

// Phase 房间阶段
type Phase string

const (
	PhaseLobby  Phase = "lobby"
	PhaseNight  Phase = "night"
	PhaseDay    Phase = "day"
	PhaseVoting Phase = "voting"
	PhaseEnded  Phase = "ended"
)

// Valid 是否为已知阶段
func (p Phase) Valid() bool {
	switch p {
	case PhaseLobby, PhaseNight, PhaseDay, PhaseVoting, PhaseEnded:
		return true
	}
	return false
}

// Timed 是否为带计时器的阶段
func (p Phase) Timed() bool {
	return p == PhaseNight || p == PhaseDay || p == PhaseVoting
}

// 死亡原因
const (
	CauseWerewolfKill  = "werewolf_kill"
	CauseWitchKill     = "witch_kill"
	CauseHunterRevenge = "hunter_revenge"
	CauseVotedOut      = "voted_out"
)

// Features 可选玩法
type Features struct {
	StartingItems bool `json:"starting_items"`
	RevealOnDeath bool `json:"reveal_on_death"`
}

// Config 房间配置
type Config struct {
	MinPlayers     int           `json:"min_players"`
	MaxPlayers     int           `json:"max_players"`
	NightDuration  time.Duration `json:"night_duration"`
	DayDuration    time.Duration `json:"day_duration"`
	VotingDuration time.Duration `json:"voting_duration"`
	Features       Features      `json:"features"`
	// Seed 非 0 时角色分配可复现
	Seed uint64 `json:"seed,omitempty"`
}

// ConfigFromGame 由服务端配置生成房间默认配置
func ConfigFromGame(gc config.GameConfig) Config {
	return Config{
		MinPlayers:     gc.MinPlayers,
		MaxPlayers:     gc.MaxPlayers,
		NightDuration:  gc.NightDurationTime(),
		DayDuration:    gc.DayDurationTime(),
		VotingDuration: gc.VotingDurationTime(),
		Features: Features{
			StartingItems: gc.StartingItems,
			RevealOnDeath: gc.RevealOnDeath,
		},
	}
}

// duration 阶段时长，非计时阶段返回 0
func (c *Config) duration(p Phase) time.Duration {
	switch p {
	case PhaseNight:
		return c.NightDuration
	case PhaseDay:
		return c.DayDuration
	case PhaseVoting:
		return c.VotingDuration
	}
	return 0
}

// PendingAction 待结算的夜晚行动
type PendingAction struct {
	UserID    string    `json:"user_id"`
	AbilityID string    `json:"ability_id"`
	Targets   []string  `json:"targets"`
	Seq       int       `json:"seq"` // 登记顺序
	At        time.Time `json:"at"`
}

// ActionRecord 行动历史（只追加）
type ActionRecord struct {
	Turn      int       `json:"turn"`
	Phase     Phase     `json:"phase"`
	ActorID   string    `json:"actor_id"`
	AbilityID string    `json:"ability_id,omitempty"`
	ItemID    string    `json:"item_id,omitempty"`
	Targets   []string  `json:"targets,omitempty"`
	Success   bool      `json:"success"`
	Result    string    `json:"result,omitempty"`
	At        time.Time `json:"at"`
}

// DeathRecord 死亡记录
type DeathRecord struct {
	VictimID  string    `json:"victim_id"`
	Turn      int       `json:"turn"`
	Phase     Phase     `json:"phase"`
	Cause     string    `json:"cause"`
	KillerIDs []string  `json:"killer_ids,omitempty"`
	At        time.Time `json:"at"`
}

// GameRoom 一局游戏。所有状态修改都在 mu 下进行，
// 包括处理请求、计时器回调和生成快照
type GameRoom struct {
	ID     string
	GameID string // 每次开局生成
	HostID string
	Config Config

	phase          Phase
	turn           int
	resolution     int // 已发生的结算次数，用于触发窗口
	createdAt      time.Time
	startedAt      time.Time
	endedAt        time.Time
	phaseStartedAt time.Time
	lastActionAt   time.Time

	players map[string]*player.Player
	order   []string // 加入顺序

	pendingActions map[string]*PendingAction
	pendingVotes   map[string]string
	actionSeq      int

	chat    map[Channel][]ChatMessage
	chatSeq int

	actions []ActionRecord
	deaths  []DeathRecord

	// triggerWindows 死亡后可以使用触发技能的玩家，值为开启时的结算序号
	triggerWindows map[string]int

	winner         role.Team
	neutralWinners []string

	timer *PhaseTimer

	catalog   *role.Catalog
	scheduler Scheduler
	listener  Listener
	rng       *rand.Rand
	now       func() time.Time

	mu sync.Mutex
}

// roomDeps 房间的外部依赖，由管理器注入
type roomDeps struct {
	catalog   *role.Catalog
	scheduler Scheduler
	listener  Listener
	now       func() time.Time
}

func newGameRoom(id, hostID string, cfg Config, deps roomDeps) *GameRoom {
	now := deps.now()
	r := &GameRoom{
		ID:             id,
		HostID:         hostID,
		Config:         cfg,
		phase:          PhaseLobby,
		createdAt:      now,
		lastActionAt:   now,
		players:        make(map[string]*player.Player),
		pendingActions: make(map[string]*PendingAction),
		pendingVotes:   make(map[string]string),
		chat:           make(map[Channel][]ChatMessage),
		triggerWindows: make(map[string]int),
	}
	r.attach(deps)
	r.rng = newRNG(cfg.Seed, now)
	return r
}

// attach 设置外部依赖（新建或恢复时）
func (r *GameRoom) attach(deps roomDeps) {
	r.catalog = deps.catalog
	r.scheduler = deps.scheduler
	r.listener = deps.listener
	r.now = deps.now
	if r.listener == nil {
		r.listener = NopListener{}
	}
	if r.scheduler == nil {
		r.scheduler = AfterFuncScheduler{}
	}
}

func newRNG(seed uint64, now time.Time) *rand.Rand {
	if seed == 0 {
		seed = uint64(now.UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Phase 当前阶段
func (r *GameRoom) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Turn 当前回合
func (r *GameRoom) Turn() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.turn
}

// Winner 获胜阵营，未结束时为空
func (r *GameRoom) Winner() role.Team {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.winner
}

// IsStarted 是否已经开局
func (r *GameRoom) IsStarted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isStarted()
}

func (r *GameRoom) isStarted() bool {
	return r.phase != PhaseLobby
}

// InProgress 已开局且未结束
func (r *GameRoom) InProgress() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inProgress()
}

func (r *GameRoom) inProgress() bool {
	return r.phase.Timed()
}

// PlayerIDs 按加入顺序返回玩家 ID
func (r *GameRoom) PlayerIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// PlayerCount 玩家数量
func (r *GameRoom) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// EndedAt 结束时间
func (r *GameRoom) EndedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.endedAt
}

// Deaths 死亡记录副本
func (r *GameRoom) Deaths() []DeathRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]DeathRecord(nil), r.deaths...)
}

// Actions 行动历史副本
func (r *GameRoom) Actions() []ActionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ActionRecord(nil), r.actions...)
}

func (r *GameRoom) touch() {
	r.lastActionAt = r.now()
}

// alivePlayers 按加入顺序返回存活玩家
func (r *GameRoom) alivePlayers() []*player.Player {
	out := make([]*player.Player, 0, len(r.order))
	for _, id := range r.order {
		if p := r.players[id]; p.Alive {
			out = append(out, p)
		}
	}
	return out
}

func (r *GameRoom) recordAction(rec ActionRecord) {
	rec.At = r.now()
	r.actions = append(r.actions, rec)
}

// recordDeath 追加死亡记录，并为带触发技能的死者打开触发窗口
func (r *GameRoom) recordDeath(victim *player.Player, cause string, killers []string) DeathRecord {
	d := DeathRecord{
		VictimID:  victim.UserID,
		Turn:      r.turn,
		Phase:     r.phase,
		Cause:     cause,
		KillerIDs: killers,
		At:        r.now(),
	}
	r.deaths = append(r.deaths, d)

	if victim.Role != nil {
		for i := range victim.Role.Abilities {
			a := &victim.Role.Abilities[i]
			if a.Phase == role.PhaseTriggered && victim.CanUse(a) {
				r.triggerWindows[victim.UserID] = r.resolution
			}
		}
	}
	return d
}

