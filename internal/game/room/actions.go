package room

import (
	"github.com/palemoky/werewolf/internal/apperrors"
	"github.com/palemoky/werewolf/internal/game/player"
	"github.com/palemoky/werewolf/internal/game/role"
	"github.com/palemoky/werewolf/internal/logger"
)

// RegisterNightAction 登记夜晚行动，同一玩家重复登记会覆盖之前的行动
func (r *GameRoom) RegisterNightAction(userID, abilityID string, targets []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != PhaseNight {
		return apperrors.ErrWrongPhase
	}
	p, ok := r.players[userID]
	if !ok {
		return apperrors.ErrNotInRoom
	}
	if !p.CanAct() {
		return apperrors.ErrCannotAct
	}
	ability, ok := p.Role.Ability(abilityID)
	if !ok || !ability.UsableAtNight() || !p.CanUse(ability) {
		return apperrors.ErrInvalidAbility
	}
	if err := r.validateTargets(p, ability, targets); err != nil {
		return err
	}

	r.actionSeq++
	r.pendingActions[userID] = &PendingAction{
		UserID:    userID,
		AbilityID: abilityID,
		Targets:   append([]string(nil), targets...),
		Seq:       r.actionSeq,
		At:        r.now(),
	}
	r.touch()

	logger.LogDebug("🌙 房间 %s 玩家 %s 登记 %s -> %v", r.ID, p.Username, abilityID, targets)
	r.notifyState()
	return nil
}

// targetCountOK 目标数量是否符合技能要求
func targetCountOK(a *role.Ability, n int) bool {
	switch a.Target {
	case role.TargetNone:
		return n == 0
	case role.TargetSingle:
		return n == 1
	case role.TargetMultiple:
		return n > 0 && (a.TargetCount == 0 || n == a.TargetCount)
	}
	return false
}

// validateTargets 校验目标数量和目标限制
func (r *GameRoom) validateTargets(actor *player.Player, a *role.Ability, targets []string) error {
	if !targetCountOK(a, len(targets)) {
		return apperrors.ErrInvalidTargets
	}
	if a.Target == role.TargetNone {
		return nil
	}

	seen := make(map[string]bool, len(targets))
	for _, id := range targets {
		t, ok := r.players[id]
		if !ok || seen[id] {
			return apperrors.ErrInvalidTargets
		}
		seen[id] = true

		if !a.CanTargetDead && !t.Alive {
			return apperrors.ErrInvalidTargets
		}
		if id == actor.UserID {
			if !a.CanTargetSelf {
				return apperrors.ErrInvalidTargets
			}
			continue
		}
		if !a.CanTargetTeam && t.Team == actor.Team {
			return apperrors.ErrInvalidTargets
		}
	}
	return nil
}

// RegisterVote 登记白天投票，返回当前统计
func (r *GameRoom) RegisterVote(userID, targetID string) (VoteTally, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != PhaseVoting {
		return VoteTally{}, apperrors.ErrWrongPhase
	}
	p, ok := r.players[userID]
	if !ok {
		return VoteTally{}, apperrors.ErrNotInRoom
	}
	if !p.CanAct() {
		return VoteTally{}, apperrors.ErrCannotAct
	}
	target, ok := r.players[targetID]
	if !ok || !target.Alive {
		return VoteTally{}, apperrors.ErrInvalidTarget
	}

	r.pendingVotes[userID] = targetID
	r.touch()

	tally, _ := r.tally()
	r.listener.VoteUpdated(tally)
	r.notifyState()
	return tally, nil
}

// tally 统计有效票：投票者和目标在结算时都必须存活。
// 同时返回每个目标的投票者（按加入顺序）
func (r *GameRoom) tally() (VoteTally, map[string][]string) {
	alive := len(r.alivePlayers())
	t := VoteTally{
		RoomID:        r.ID,
		Counts:        make(map[string]int),
		RequiredVotes: alive/2 + 1,
	}
	voters := make(map[string][]string)
	for _, id := range r.order {
		targetID, voted := r.pendingVotes[id]
		if !voted || !r.players[id].Alive {
			continue
		}
		target, ok := r.players[targetID]
		if !ok || !target.Alive {
			continue
		}
		t.Counts[targetID]++
		t.TotalVotes++
		voters[targetID] = append(voters[targetID], id)
	}
	return t, voters
}

// TriggerAbility 死亡后在触发窗口内使用触发技能（猎人开枪），立即生效
func (r *GameRoom) TriggerAbility(userID, abilityID string, targets []string) (ActionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.phase.Timed() {
		return ActionRecord{}, apperrors.ErrWrongPhase
	}
	p, ok := r.players[userID]
	if !ok {
		return ActionRecord{}, apperrors.ErrNotInRoom
	}
	if _, open := r.triggerWindows[userID]; !open || p.Alive {
		return ActionRecord{}, apperrors.ErrCannotAct
	}
	ability, ok := p.Role.Ability(abilityID)
	if !ok || ability.Phase != role.PhaseTriggered || !p.CanUse(ability) {
		return ActionRecord{}, apperrors.ErrInvalidAbility
	}
	if err := r.validateTargets(p, ability, targets); err != nil {
		return ActionRecord{}, err
	}

	before := len(r.deaths)
	rec := r.applyLethal(p, ability, targets)
	delete(r.triggerWindows, userID)
	r.touch()

	logger.LogInfo("🔫 房间 %s 玩家 %s 发动 %s -> %v", r.ID, p.Username, abilityID, targets)
	if len(r.deaths) > before {
		r.listener.DeathsOccurred(r.ID, publicDeaths(r.deaths[before:]))
	}
	if !r.checkWin() {
		r.notifyState()
	}
	return rec, nil
}

// UseItem 使用背包道具，立即生效
func (r *GameRoom) UseItem(userID, itemID string, targets []string) (player.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.phase.Timed() {
		return player.Item{}, apperrors.ErrWrongPhase
	}
	p, ok := r.players[userID]
	if !ok {
		return player.Item{}, apperrors.ErrNotInRoom
	}
	if !p.CanAct() {
		return player.Item{}, apperrors.ErrCannotAct
	}
	def, ok := r.catalog.Item(itemID)
	if !ok {
		return player.Item{}, apperrors.ErrItemNotFound
	}
	if _, owned := p.FindItem(itemID); !owned {
		return player.Item{}, apperrors.ErrItemNotFound
	}

	var target *player.Player
	switch def.Target {
	case role.TargetNone:
		if len(targets) != 0 {
			return player.Item{}, apperrors.ErrInvalidTargets
		}
		target = p
	default:
		if len(targets) != 1 {
			return player.Item{}, apperrors.ErrInvalidTargets
		}
		t, ok := r.players[targets[0]]
		if !ok || !t.Alive {
			return player.Item{}, apperrors.ErrInvalidTargets
		}
		target = t
	}

	switch def.Effect {
	case role.EffectHeal:
		target.Heal(def.Amount)
	case role.EffectProtect:
		target.Protected = true
	}

	left, _ := p.ConsumeItem(itemID)
	r.recordAction(ActionRecord{
		Turn:    r.turn,
		Phase:   r.phase,
		ActorID: userID,
		ItemID:  itemID,
		Targets: []string{target.UserID},
		Success: true,
	})
	r.touch()

	logger.LogDebug("🧪 房间 %s 玩家 %s 使用道具 %s", r.ID, p.Username, itemID)
	r.notifyState()
	return left, nil
}
