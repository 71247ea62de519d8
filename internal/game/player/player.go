package player

import (
	"github.com/palemoky/werewolf/internal/game/role"
)

// EffectType 状态效果类型
type EffectType string

const (
	EffectSilenced EffectType = "silenced" // 禁言，期间不能行动
)

// StatusEffect 状态效果
type StatusEffect struct {
	Type      EffectType `json:"type"`
	Remaining int        `json:"remaining"` // 剩余结算次数
	Source    string     `json:"source"`    // 施加者
}

// Item 背包中的道具
type Item struct {
	ID   string `json:"id"`
	Uses int    `json:"uses"`
}

// Counters 统计计数
type Counters struct {
	Actions   int `json:"actions"`
	Votes     int `json:"votes"`
	ItemsUsed int `json:"items_used"`
}

// DamageResult 受伤结果
type DamageResult int

const (
	DamageNoEffect DamageResult = iota // 被守护或护甲完全抵消
	DamageWounded                      // 掉血但仍存活
	DamageKilled                       // 死亡
)

// Player 房间内的玩家，只由所属房间修改
type Player struct {
	UserID   string
	Username string

	Role *role.Role
	Team role.Team

	Alive bool
	Lives int
	Armor int

	// 单阶段标记，每次状态结算时重置
	Protected bool
	Silenced  bool

	Effects []StatusEffect
	Items   []Item

	IsHost    bool
	Ready     bool
	Connected bool

	AbilityUses map[string]int // 本局已用次数
	PhaseUses   map[string]int // 本阶段已用次数
	Counters    Counters
}

// New 创建大厅中的玩家
func New(userID, username string) *Player {
	return &Player{
		UserID:      userID,
		Username:    username,
		Alive:       true,
		Lives:       1,
		Connected:   true,
		AbilityUses: make(map[string]int),
		PhaseUses:   make(map[string]int),
	}
}

// AssignRole 开局分配角色
func (p *Player) AssignRole(r *role.Role) {
	p.Role = r
	p.Team = r.Team
	p.Lives = max(1, r.MaxLives)
	p.Armor = r.Armor
	p.Alive = true
	p.Protected = false
	p.Silenced = false
	p.Effects = nil
	p.Items = nil
	clear(p.AbilityUses)
	clear(p.PhaseUses)
	p.Counters = Counters{}
}

// MaxLives 角色生命上限
func (p *Player) MaxLives() int {
	if p.Role == nil {
		return 1
	}
	return max(1, p.Role.MaxLives)
}

// TakeDamage 受到伤害，护甲按点数抵消
func (p *Player) TakeDamage(amount int) DamageResult {
	if !p.Alive || p.Protected {
		return DamageNoEffect
	}
	dealt := max(0, amount-p.Armor)
	if dealt == 0 {
		return DamageNoEffect
	}
	p.setLives(p.Lives - dealt)
	if !p.Alive {
		return DamageKilled
	}
	return DamageWounded
}

// Kill 致命伤害，无视守护和护甲。返回 false 表示玩家本来就已死亡
func (p *Player) Kill() bool {
	if !p.Alive {
		return false
	}
	p.setLives(0)
	return true
}

// Heal 回复生命，不超过上限，死亡玩家无效
func (p *Player) Heal(amount int) int {
	if !p.Alive || amount <= 0 {
		return 0
	}
	before := p.Lives
	p.setLives(min(p.MaxLives(), p.Lives+amount))
	return p.Lives - before
}

// Revive 以 1 点生命复活
func (p *Player) Revive() bool {
	if p.Alive {
		return false
	}
	p.setLives(1)
	return true
}

// setLives 唯一修改生命的入口，保证 Alive == (Lives > 0)
func (p *Player) setLives(lives int) {
	p.Lives = max(0, lives)
	p.Alive = p.Lives > 0
}

// TickStatusEffects 状态效果持续时间减一并清除过期效果，重置单阶段标记
func (p *Player) TickStatusEffects() {
	kept := p.Effects[:0]
	for _, e := range p.Effects {
		e.Remaining--
		if e.Remaining > 0 {
			kept = append(kept, e)
		}
	}
	p.Effects = kept
	p.Protected = false
	p.Silenced = false
}

// ResetPhase 进入新阶段时清除本阶段计数
func (p *Player) ResetPhase() {
	clear(p.PhaseUses)
}

// HasEffect 是否带有某状态
func (p *Player) HasEffect(t EffectType) bool {
	for _, e := range p.Effects {
		if e.Type == t {
			return true
		}
	}
	return false
}

// AddEffect 添加状态，同类效果取较长的持续时间
func (p *Player) AddEffect(e StatusEffect) {
	for i := range p.Effects {
		if p.Effects[i].Type == e.Type {
			p.Effects[i].Remaining = max(p.Effects[i].Remaining, e.Remaining)
			p.Effects[i].Source = e.Source
			return
		}
	}
	p.Effects = append(p.Effects, e)
}

// CanAct 存活且未被禁言
func (p *Player) CanAct() bool {
	return p.Alive && !p.Silenced && !p.HasEffect(EffectSilenced)
}

// GiveItem 放入道具，已有则叠加次数
func (p *Player) GiveItem(id string, uses int) {
	for i := range p.Items {
		if p.Items[i].ID == id {
			p.Items[i].Uses += uses
			return
		}
	}
	p.Items = append(p.Items, Item{ID: id, Uses: uses})
}

// FindItem 查找还有剩余次数的道具
func (p *Player) FindItem(id string) (Item, bool) {
	for _, it := range p.Items {
		if it.ID == id && it.Uses > 0 {
			return it, true
		}
	}
	return Item{}, false
}

// ConsumeItem 消耗一次道具，返回剩余状态
func (p *Player) ConsumeItem(id string) (Item, bool) {
	for i := range p.Items {
		if p.Items[i].ID == id && p.Items[i].Uses > 0 {
			p.Items[i].Uses--
			p.Counters.ItemsUsed++
			return p.Items[i], true
		}
	}
	return Item{}, false
}

// UsesLeft 技能剩余次数，-1 表示不限
func (p *Player) UsesLeft(a *role.Ability) int {
	if a.MaxPerGame <= 0 {
		return -1
	}
	return max(0, a.MaxPerGame-p.AbilityUses[a.ID])
}

// CanUse 本局和本阶段次数是否都还有剩余
func (p *Player) CanUse(a *role.Ability) bool {
	if a.MaxPerGame > 0 && p.AbilityUses[a.ID] >= a.MaxPerGame {
		return false
	}
	if a.MaxPerPhase > 0 && p.PhaseUses[a.ID] >= a.MaxPerPhase {
		return false
	}
	return true
}

// RecordUse 记录一次技能使用
func (p *Player) RecordUse(a *role.Ability) {
	p.AbilityUses[a.ID]++
	p.PhaseUses[a.ID]++
	p.Counters.Actions++
}
