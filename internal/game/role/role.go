package role

// Team 阵营
type Team string

const (
	TeamVillagers  Team = "villagers"
	TeamWerewolves Team = "werewolves"
	TeamNeutral    Team = "neutral"
)

// Phase 技能可用的阶段
type Phase string

const (
	PhaseNight     Phase = "night"
	PhaseDay       Phase = "day"
	PhaseTriggered Phase = "triggered" // 死亡后触发
)

// TargetKind 目标数量类型
type TargetKind string

const (
	TargetNone     TargetKind = "none"
	TargetSingle   TargetKind = "single"
	TargetMultiple TargetKind = "multiple"
)

// Effect 技能效果
type Effect string

const (
	EffectBlockKill Effect = "block_kill" // 狼人集体投票击杀
	EffectVision    Effect = "vision"     // 查验身份
	EffectProtect   Effect = "protect"    // 守护
	EffectRevive    Effect = "revive"     // 救人，只能救本回合本阶段死亡的玩家
	EffectLethal    Effect = "lethal"     // 无视护甲和守护的致命伤害
	EffectSilence   Effect = "silence"    // 禁言
)

// Ability 角色技能（只读）
type Ability struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Phase       Phase      `json:"phase"`
	Target      TargetKind `json:"target"`
	TargetCount int        `json:"target_count"`  // 精确目标数，TargetNone 时为 0
	MaxPerGame  int        `json:"max_per_game"`  // 0 表示不限
	MaxPerPhase int        `json:"max_per_phase"` // 0 表示不限

	CanTargetDead bool `json:"can_target_dead"`
	CanTargetSelf bool `json:"can_target_self"`
	CanTargetTeam bool `json:"can_target_team"`

	Effect Effect `json:"effect"`
	Damage int    `json:"damage"`

	// PreResolve 在狼人击杀之前生效（守护）
	PreResolve bool `json:"pre_resolve"`
	// Preemptive 触发型技能可以在夜晚提前登记，持有者在本次结算中死亡时生效
	Preemptive bool `json:"preemptive"`
}

// UsableAtNight 是否可以登记为夜晚行动
func (a *Ability) UsableAtNight() bool {
	return a.Phase == PhaseNight || (a.Phase == PhaseTriggered && a.Preemptive)
}

// Role 角色定义（只读，由 Catalog 持有）
type Role struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Team       Team      `json:"team"`
	MaxLives   int       `json:"max_lives"`
	Armor      int       `json:"armor"`
	Abilities  []Ability `json:"abilities"`
	MinPlayers int       `json:"min_players"`
	Priority   int       `json:"priority"` // 同一阶段内数值高的先结算

	// SpawnChance 人数满足时加入本局的概率，0 表示不会被随机抽中
	SpawnChance float64 `json:"spawn_chance"`
}

// Ability 按 ID 查找技能
func (r *Role) Ability(id string) (*Ability, bool) {
	for i := range r.Abilities {
		if r.Abilities[i].ID == id {
			return &r.Abilities[i], true
		}
	}
	return nil, false
}

// IsWerewolf 是否属于狼人阵营
func (r *Role) IsWerewolf() bool {
	return r.Team == TeamWerewolves
}
