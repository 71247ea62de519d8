package role

import "math/rand/v2"

// 角色 ID
const (
	Villager      = "villager"
	Werewolf      = "werewolf"
	AlphaWerewolf = "alpha_werewolf"
	Seer          = "seer"
	Guardian      = "guardian"
	Witch         = "witch"
	Hunter        = "hunter"
	Trickster     = "trickster"
	Elder         = "elder"
)

// 技能 ID
const (
	AbilityWerewolfKill    = "werewolf_kill"
	AbilityHowl            = "howl"
	AbilitySeerVision      = "seer_vision"
	AbilityGuardianProtect = "guardian_protect"
	AbilityWitchHeal       = "witch_heal"
	AbilityWitchKill       = "witch_kill"
	AbilityHunterRevenge   = "hunter_revenge"
)

// alphaThreshold 达到该人数时第一只狼人升级为狼王
const alphaThreshold = 10

// Catalog 角色目录，构造后只读，可被多个房间共享
type Catalog struct {
	roles map[string]*Role
	order []string
	items map[string]*Item
}

// NewCatalog 用给定的角色和道具构建目录，顺序即抽取顺序
func NewCatalog(roles []*Role, items []*Item) *Catalog {
	c := &Catalog{
		roles: make(map[string]*Role, len(roles)),
		order: make([]string, 0, len(roles)),
		items: make(map[string]*Item, len(items)),
	}
	for _, r := range roles {
		c.roles[r.ID] = r
		c.order = append(c.order, r.ID)
	}
	for _, it := range items {
		c.items[it.ID] = it
	}
	return c
}

// Get 按 ID 查找角色
func (c *Catalog) Get(id string) (*Role, bool) {
	r, ok := c.roles[id]
	return r, ok
}

// Item 按 ID 查找道具定义
func (c *Catalog) Item(id string) (*Item, bool) {
	it, ok := c.items[id]
	return it, ok
}

// Items 返回全部道具定义
func (c *Catalog) Items() []*Item {
	out := make([]*Item, 0, len(c.items))
	for _, id := range []string{ItemPotion, ItemShield} {
		if it, ok := c.items[id]; ok {
			out = append(out, it)
		}
	}
	return out
}

// All 按目录顺序返回全部角色
func (c *Catalog) All() []*Role {
	out := make([]*Role, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.roles[id])
	}
	return out
}

// RolesAvailableFor 返回该人数下可以出现的角色
func (c *Catalog) RolesAvailableFor(playerCount int) []*Role {
	var out []*Role
	for _, id := range c.order {
		if r := c.roles[id]; r.MinPlayers <= playerCount {
			out = append(out, r)
		}
	}
	return out
}

// WerewolfCount 该人数下的狼人数量
func WerewolfCount(playerCount int) int {
	return max(1, playerCount/3)
}

// GenerateDistribution 生成一局的角色列表，长度恰好为 playerCount。
// 结果只取决于 rng 的状态
func (c *Catalog) GenerateDistribution(playerCount int, rng *rand.Rand) []*Role {
	if playerCount <= 0 {
		return nil
	}

	roles := make([]*Role, 0, playerCount)

	wolves := min(WerewolfCount(playerCount), playerCount)
	for i := range wolves {
		if i == 0 && playerCount >= alphaThreshold {
			if alpha, ok := c.roles[AlphaWerewolf]; ok {
				roles = append(roles, alpha)
				continue
			}
		}
		roles = append(roles, c.roles[Werewolf])
	}

	for _, r := range c.RolesAvailableFor(playerCount) {
		if len(roles) >= playerCount {
			break
		}
		if r.SpawnChance <= 0 {
			continue
		}
		if rng.Float64() < r.SpawnChance {
			roles = append(roles, r)
		}
	}

	for len(roles) < playerCount {
		roles = append(roles, c.roles[Villager])
	}
	return roles
}

// Default 内置角色目录
func Default() *Catalog {
	return NewCatalog(defaultRoles(), defaultItems())
}

func defaultRoles() []*Role {
	werewolfKill := Ability{
		ID:          AbilityWerewolfKill,
		Name:        "袭击",
		Phase:       PhaseNight,
		Target:      TargetSingle,
		TargetCount: 1,
		MaxPerPhase: 1,
		Effect:      EffectBlockKill,
		Damage:      1,
	}

	return []*Role{
		{
			ID: Villager, Name: "村民", Team: TeamVillagers,
			MaxLives: 1, MinPlayers: 0,
		},
		{
			ID: Seer, Name: "预言家", Team: TeamVillagers,
			MaxLives: 1, MinPlayers: 4, Priority: 80, SpawnChance: 1,
			Abilities: []Ability{{
				ID: AbilitySeerVision, Name: "查验", Phase: PhaseNight,
				Target: TargetSingle, TargetCount: 1, MaxPerPhase: 1,
				CanTargetTeam: true,
				Effect: EffectVision,
			}},
		},
		{
			ID: Guardian, Name: "守卫", Team: TeamVillagers,
			MaxLives: 1, MinPlayers: 6, Priority: 90, SpawnChance: 0.8,
			Abilities: []Ability{{
				ID: AbilityGuardianProtect, Name: "守护", Phase: PhaseNight,
				Target: TargetSingle, TargetCount: 1, MaxPerPhase: 1,
				CanTargetSelf: true, CanTargetTeam: true,
				Effect: EffectProtect, PreResolve: true,
			}},
		},
		{
			ID: Witch, Name: "女巫", Team: TeamVillagers,
			MaxLives: 1, MinPlayers: 7, Priority: 70, SpawnChance: 0.8,
			Abilities: []Ability{
				{
					ID: AbilityWitchHeal, Name: "解药", Phase: PhaseNight,
					Target: TargetSingle, TargetCount: 1, MaxPerGame: 1, MaxPerPhase: 1,
					CanTargetDead: true, CanTargetTeam: true,
					Effect: EffectRevive,
				},
				{
					ID: AbilityWitchKill, Name: "毒药", Phase: PhaseNight,
					Target: TargetSingle, TargetCount: 1, MaxPerGame: 1, MaxPerPhase: 1,
					CanTargetTeam: true,
					Effect: EffectLethal,
				},
			},
		},
		{
			ID: Hunter, Name: "猎人", Team: TeamVillagers,
			MaxLives: 1, MinPlayers: 8, Priority: 60, SpawnChance: 0.7,
			Abilities: []Ability{{
				ID: AbilityHunterRevenge, Name: "开枪", Phase: PhaseTriggered,
				Target: TargetSingle, TargetCount: 1, MaxPerGame: 1, MaxPerPhase: 1,
				CanTargetTeam: true,
				Effect: EffectLethal, Preemptive: true,
			}},
		},
		{
			ID: Trickster, Name: "捣蛋鬼", Team: TeamNeutral,
			MaxLives: 1, MinPlayers: 9, SpawnChance: 0.5,
		},
		{
			ID: AlphaWerewolf, Name: "狼王", Team: TeamWerewolves,
			MaxLives: 1, Armor: 0, MinPlayers: alphaThreshold, Priority: 100,
			Abilities: []Ability{
				werewolfKill,
				{
					ID: AbilityHowl, Name: "狼嚎", Phase: PhaseNight,
					Target: TargetSingle, TargetCount: 1, MaxPerGame: 2, MaxPerPhase: 1,
					Effect: EffectSilence,
				},
			},
		},
		{
			ID: Elder, Name: "长老", Team: TeamVillagers,
			MaxLives: 2, MinPlayers: 11, SpawnChance: 0.5,
		},
		{
			ID: Werewolf, Name: "狼人", Team: TeamWerewolves,
			MaxLives: 1, MinPlayers: 0, Priority: 100,
			Abilities: []Ability{werewolfKill},
		},
	}
}
