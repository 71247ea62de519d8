package room

import (
	"time"

	"github.com/palemoky/werewolf/internal/apperrors"
	"github.com/palemoky/werewolf/internal/game/player"
	"github.com/palemoky/werewolf/internal/game/role"
)

// PlayerView 其他玩家可见的信息
type PlayerView struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Alive     bool      `json:"alive"`
	Lives     int       `json:"lives"`
	Armor     int       `json:"armor"`
	Protected bool      `json:"protected"`
	Silenced  bool      `json:"silenced"`
	IsHost    bool      `json:"is_host"`
	Ready     bool      `json:"ready"`
	Connected bool      `json:"connected"`
	RoleID    string    `json:"role_id,omitempty"` // 仅在可见时填充
	Team      role.Team `json:"team,omitempty"`
}

// AbilityView 自己的技能
type AbilityView struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Phase    role.Phase `json:"phase"`
	UsesLeft int        `json:"uses_left"` // -1 表示不限
}

// Vision 查验结果
type Vision struct {
	Turn     int       `json:"turn"`
	TargetID string    `json:"target_id"`
	RoleID   string    `json:"role_id"`
	Team     role.Team `json:"team"`
}

// PrivateView 只有自己能看到的信息
type PrivateView struct {
	UserID        string                `json:"user_id"`
	RoleID        string                `json:"role_id,omitempty"`
	RoleName      string                `json:"role_name,omitempty"`
	Team          role.Team             `json:"team,omitempty"`
	Lives         int                   `json:"lives"`
	CanAct        bool                  `json:"can_act"`
	Items         []player.Item         `json:"items,omitempty"`
	Effects       []player.StatusEffect `json:"effects,omitempty"`
	Abilities     []AbilityView         `json:"abilities,omitempty"`
	Teammates     []string              `json:"teammates,omitempty"`
	Visions       []Vision              `json:"visions,omitempty"`
	PendingAction *PendingAction        `json:"pending_action,omitempty"`
	Vote          string                `json:"vote,omitempty"`
	TriggerOpen   bool                  `json:"trigger_open"`
	Channels      []Channel             `json:"channels"`
}

// View 房间视图
type View struct {
	RoomID         string        `json:"room_id"`
	HostID         string        `json:"host_id"`
	Phase          Phase         `json:"phase"`
	Turn           int           `json:"turn"`
	PhaseEndsAt    time.Time     `json:"phase_ends_at,omitzero"`
	MinPlayers     int           `json:"min_players"`
	MaxPlayers     int           `json:"max_players"`
	Players        []PlayerView  `json:"players"`
	Deaths         []DeathRecord `json:"deaths,omitempty"`
	Winner         role.Team     `json:"winner,omitempty"`
	NeutralWinners []string      `json:"neutral_winners,omitempty"`
	Self           *PrivateView  `json:"self,omitempty"`
}

// GetState 返回 userID 视角的房间视图
func (r *GameRoom) GetState(userID string) (*View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.players[userID]; !ok {
		return nil, apperrors.ErrNotInRoom
	}
	return r.view(userID), nil
}

// roleVisible 角色对 viewer 可见：本人、死者、游戏结束、死亡公开、狼人队友
func (r *GameRoom) roleVisible(viewer, target *player.Player) bool {
	if target.Role == nil {
		return false
	}
	switch {
	case viewer.UserID == target.UserID,
		!viewer.Alive,
		r.phase == PhaseEnded,
		r.Config.Features.RevealOnDeath && !target.Alive,
		viewer.Team == role.TeamWerewolves && target.Team == role.TeamWerewolves:
		return true
	}
	return false
}

// deathsFor 凶手名单会暴露身份，只给死者和结束后的房间看
func (r *GameRoom) deathsFor(viewer *player.Player) []DeathRecord {
	if viewer != nil && (!viewer.Alive || r.phase == PhaseEnded) {
		return append([]DeathRecord(nil), r.deaths...)
	}
	return publicDeaths(r.deaths)
}

// publicDeaths 去掉凶手后的死亡记录
func publicDeaths(deaths []DeathRecord) []DeathRecord {
	if len(deaths) == 0 {
		return nil
	}
	out := make([]DeathRecord, len(deaths))
	for i, d := range deaths {
		d.KillerIDs = nil
		out[i] = d
	}
	return out
}

func (r *GameRoom) view(userID string) *View {
	viewer := r.players[userID]

	v := &View{
		RoomID:         r.ID,
		HostID:         r.HostID,
		Phase:          r.phase,
		Turn:           r.turn,
		PhaseEndsAt:    r.deadline(),
		MinPlayers:     r.Config.MinPlayers,
		MaxPlayers:     r.Config.MaxPlayers,
		Players:        make([]PlayerView, 0, len(r.order)),
		Deaths:         r.deathsFor(viewer),
		Winner:         r.winner,
		NeutralWinners: append([]string(nil), r.neutralWinners...),
	}

	for _, id := range r.order {
		p := r.players[id]
		pv := PlayerView{
			UserID:    id,
			Username:  p.Username,
			Alive:     p.Alive,
			Lives:     p.Lives,
			Armor:     p.Armor,
			Protected: p.Protected,
			Silenced:  p.Silenced || p.HasEffect(player.EffectSilenced),
			IsHost:    p.IsHost,
			Ready:     p.Ready,
			Connected: p.Connected,
		}
		if viewer != nil && r.roleVisible(viewer, p) {
			pv.RoleID = p.Role.ID
			pv.Team = p.Team
		}
		v.Players = append(v.Players, pv)
	}

	if viewer != nil {
		v.Self = r.privateView(viewer)
	}
	return v
}

func (r *GameRoom) privateView(p *player.Player) *PrivateView {
	pv := &PrivateView{
		UserID:  p.UserID,
		Team:    p.Team,
		Lives:   p.Lives,
		CanAct:  p.CanAct(),
		Items:   append([]player.Item(nil), p.Items...),
		Effects: append([]player.StatusEffect(nil), p.Effects...),
		Vote:    r.pendingVotes[p.UserID],
	}
	_, pv.TriggerOpen = r.triggerWindows[p.UserID]

	if pa, ok := r.pendingActions[p.UserID]; ok {
		cp := *pa
		cp.Targets = append([]string(nil), pa.Targets...)
		pv.PendingAction = &cp
	}

	for _, ch := range []Channel{ChannelAll, ChannelWerewolves, ChannelDead} {
		if canAccess(p, ch) {
			pv.Channels = append(pv.Channels, ch)
		}
	}

	if p.Role == nil {
		return pv
	}
	pv.RoleID = p.Role.ID
	pv.RoleName = p.Role.Name
	for i := range p.Role.Abilities {
		a := &p.Role.Abilities[i]
		pv.Abilities = append(pv.Abilities, AbilityView{
			ID:       a.ID,
			Name:     a.Name,
			Phase:    a.Phase,
			UsesLeft: p.UsesLeft(a),
		})
	}

	if p.Team == role.TeamWerewolves {
		for _, id := range r.order {
			if id != p.UserID && r.players[id].Team == role.TeamWerewolves {
				pv.Teammates = append(pv.Teammates, id)
			}
		}
	}

	for _, a := range r.actions {
		if a.ActorID != p.UserID || !a.Success || len(a.Targets) == 0 {
			continue
		}
		ability, ok := p.Role.Ability(a.AbilityID)
		if !ok || ability.Effect != role.EffectVision {
			continue
		}
		vision := Vision{Turn: a.Turn, TargetID: a.Targets[0], RoleID: a.Result}
		if seen, ok := r.catalog.Get(a.Result); ok {
			vision.Team = seen.Team
		}
		pv.Visions = append(pv.Visions, vision)
	}
	return pv
}
