package room

import (
	"slices"

	"github.com/palemoky/werewolf/internal/game/player"
	"github.com/palemoky/werewolf/internal/game/role"
	"github.com/palemoky/werewolf/internal/logger"
)

// 行动结果说明
const (
	resultKilled       = "killed"
	resultWounded      = "wounded"
	resultProtected    = "protected"
	resultRevived      = "revived"
	resultNoEffect     = "no_effect"
	resultSilenced     = "silenced"
	resultNotTriggered = "not_triggered"
)

// abilityCauses 致命技能对应的死亡原因
var abilityCauses = map[string]string{
	role.AbilityWitchKill:     CauseWitchKill,
	role.AbilityHunterRevenge: CauseHunterRevenge,
}

// nightAction 结算时的行动，带上技能定义
type nightAction struct {
	*PendingAction
	actor   *player.Player
	ability *role.Ability
}

// resolveNight 夜晚结算。狼人集体击杀是第一个造成伤害的步骤，
// 但守护（PreResolve）排在它之前生效，这样守护才能挡住当晚的袭击；
// 其余行动在击杀之后按角色优先级从高到低、同优先级按登记顺序执行
func (r *GameRoom) resolveNight() {
	r.resolution++

	actions := r.collectNightActions()

	for _, na := range actions {
		if na.ability.PreResolve {
			r.executeNightAction(na)
		}
	}

	r.resolveWerewolfBlock(actions)

	rest := make([]nightAction, 0, len(actions))
	for _, na := range actions {
		if !na.ability.PreResolve && na.ability.Effect != role.EffectBlockKill {
			rest = append(rest, na)
		}
	}
	slices.SortStableFunc(rest, func(a, b nightAction) int {
		return b.actor.Role.Priority - a.actor.Role.Priority
	})
	for _, na := range rest {
		r.executeNightAction(na)
	}

	for _, p := range r.alivePlayers() {
		p.TickStatusEffects()
	}
	r.closeTriggerWindows()
	clear(r.pendingActions)

	if deaths := r.deathsIn(r.turn, PhaseNight); len(deaths) > 0 {
		r.listener.DeathsOccurred(r.ID, publicDeaths(deaths))
	}
	logger.LogDebug("🌅 房间 %s 第 %d 夜结算完成", r.ID, r.turn)

	if r.checkWin() {
		return
	}
	r.turn++
	r.enterPhase(PhaseDay)
}

// collectNightActions 按登记顺序返回待结算行动，丢弃技能已失效的行动
func (r *GameRoom) collectNightActions() []nightAction {
	out := make([]nightAction, 0, len(r.pendingActions))
	for _, pa := range r.pendingActions {
		p, ok := r.players[pa.UserID]
		if !ok || p.Role == nil {
			continue
		}
		a, ok := p.Role.Ability(pa.AbilityID)
		if !ok {
			continue
		}
		out = append(out, nightAction{PendingAction: pa, actor: p, ability: a})
	}
	slices.SortFunc(out, func(a, b nightAction) int { return a.Seq - b.Seq })
	return out
}

// resolveWerewolfBlock 狼人集体投票，得票最多的目标受到攻击；平票时取 ID 最小的目标
func (r *GameRoom) resolveWerewolfBlock(actions []nightAction) {
	counts := make(map[string]int)
	voters := make(map[string][]string)
	var block []nightAction
	damage := 0

	for _, na := range actions {
		if na.ability.Effect != role.EffectBlockKill {
			continue
		}
		if !na.actor.CanAct() || na.actor.Team != role.TeamWerewolves || !na.actor.CanUse(na.ability) {
			continue
		}
		if len(na.Targets) == 0 {
			continue
		}
		target, ok := r.players[na.Targets[0]]
		if !ok || !target.Alive {
			continue
		}
		counts[target.UserID]++
		voters[target.UserID] = append(voters[target.UserID], na.UserID)
		block = append(block, na)
		damage = max(damage, na.ability.Damage)
	}
	if len(block) == 0 {
		return
	}

	chosen := ""
	for id, n := range counts {
		if chosen == "" || n > counts[chosen] || (n == counts[chosen] && id < chosen) {
			chosen = id
		}
	}

	victim := r.players[chosen]
	result := resultProtected
	switch victim.TakeDamage(max(1, damage)) {
	case player.DamageKilled:
		result = resultKilled
		r.recordDeath(victim, CauseWerewolfKill, voters[chosen])
	case player.DamageWounded:
		result = resultWounded
	}

	for _, na := range block {
		na.actor.RecordUse(na.ability)
		r.recordAction(ActionRecord{
			Turn:      r.turn,
			Phase:     r.phase,
			ActorID:   na.UserID,
			AbilityID: na.AbilityID,
			Targets:   []string{chosen},
			Success:   result != resultProtected,
			Result:    result,
		})
	}
	logger.LogDebug("🐺 房间 %s 狼人袭击 %s：%s", r.ID, victim.Username, result)
}

// executeNightAction 执行单个行动，结算时重新校验行动者和目标
func (r *GameRoom) executeNightAction(na nightAction) {
	a := na.ability
	actor := na.actor

	if a.Phase == role.PhaseTriggered {
		// 提前登记的触发技能：只有持有者在本次结算中死亡才生效
		if _, open := r.triggerWindows[actor.UserID]; actor.Alive || !open {
			r.recordAction(ActionRecord{
				Turn: r.turn, Phase: r.phase, ActorID: actor.UserID, AbilityID: a.ID,
				Targets: na.Targets, Result: resultNotTriggered,
			})
			return
		}
		r.applyLethal(actor, a, na.Targets)
		delete(r.triggerWindows, actor.UserID)
		return
	}

	if !actor.CanAct() || !actor.CanUse(a) {
		r.recordAction(ActionRecord{
			Turn: r.turn, Phase: r.phase, ActorID: actor.UserID, AbilityID: a.ID,
			Targets: na.Targets, Result: resultNoEffect,
		})
		return
	}

	rec := ActionRecord{
		Turn:      r.turn,
		Phase:     r.phase,
		ActorID:   actor.UserID,
		AbilityID: a.ID,
		Targets:   na.Targets,
	}

	var target *player.Player
	if len(na.Targets) > 0 {
		target = r.players[na.Targets[0]]
	}
	if target == nil || (!a.CanTargetDead && !target.Alive) {
		rec.Result = resultNoEffect
		r.recordAction(rec)
		return
	}

	switch a.Effect {
	case role.EffectVision:
		rec.Success = true
		rec.Result = target.Role.ID
	case role.EffectProtect:
		target.Protected = true
		rec.Success = true
		rec.Result = resultProtected
	case role.EffectRevive:
		rec.Success = r.reviveFromTonight(target)
		rec.Result = resultNoEffect
		if rec.Success {
			rec.Result = resultRevived
		}
	case role.EffectLethal:
		if target.Kill() {
			r.recordDeath(target, causeFor(a), []string{actor.UserID})
			rec.Success = true
			rec.Result = resultKilled
		} else {
			rec.Result = resultNoEffect
		}
	case role.EffectSilence:
		target.AddEffect(player.StatusEffect{Type: player.EffectSilenced, Remaining: 2, Source: actor.UserID})
		rec.Success = true
		rec.Result = resultSilenced
	}

	if rec.Success {
		actor.RecordUse(a)
	}
	r.recordAction(rec)
}

// reviveFromTonight 救人只对本回合本阶段的死亡有效，成功时撤销死亡记录
func (r *GameRoom) reviveFromTonight(target *player.Player) bool {
	if target.Alive {
		return false
	}
	for i := len(r.deaths) - 1; i >= 0; i-- {
		d := r.deaths[i]
		if d.VictimID != target.UserID || d.Turn != r.turn || d.Phase != r.phase {
			continue
		}
		target.Revive()
		r.deaths = append(r.deaths[:i], r.deaths[i+1:]...)
		delete(r.triggerWindows, target.UserID)
		return true
	}
	return false
}

// applyLethal 对第一个目标造成致命伤害并记录
func (r *GameRoom) applyLethal(actor *player.Player, a *role.Ability, targets []string) ActionRecord {
	rec := ActionRecord{
		Turn:      r.turn,
		Phase:     r.phase,
		ActorID:   actor.UserID,
		AbilityID: a.ID,
		Targets:   targets,
		Result:    resultNoEffect,
	}
	if len(targets) > 0 {
		if target, ok := r.players[targets[0]]; ok && target.Kill() {
			r.recordDeath(target, causeFor(a), []string{actor.UserID})
			rec.Success = true
			rec.Result = resultKilled
		}
	}
	actor.RecordUse(a)
	r.recordAction(rec)
	return rec
}

func causeFor(a *role.Ability) string {
	if cause, ok := abilityCauses[a.ID]; ok {
		return cause
	}
	return a.ID
}

// resolveVoting 投票结算：最高票达到 floor(存活人数/2)+1 时出局，否则无人出局
func (r *GameRoom) resolveVoting() {
	r.resolution++

	tally, voters := r.tally()
	for _, ids := range voters {
		for _, id := range ids {
			r.players[id].Counters.Votes++
		}
	}

	top, topVotes := "", 0
	for id, n := range tally.Counts {
		if n > topVotes || (n == topVotes && id < top) {
			top, topVotes = id, n
		}
	}

	if top != "" && topVotes >= tally.RequiredVotes {
		victim := r.players[top]
		victim.Kill()
		r.recordDeath(victim, CauseVotedOut, voters[top])
		logger.LogInfo("⚖️ 房间 %s 玩家 %s 被投票出局（%d/%d）", r.ID, victim.Username, topVotes, tally.RequiredVotes)
	} else {
		logger.LogDebug("⚖️ 房间 %s 无人出局（最高 %d 票，需要 %d 票）", r.ID, topVotes, tally.RequiredVotes)
	}

	for _, p := range r.alivePlayers() {
		p.TickStatusEffects()
	}
	r.closeTriggerWindows()
	clear(r.pendingVotes)

	if deaths := r.deathsIn(r.turn, PhaseVoting); len(deaths) > 0 {
		r.listener.DeathsOccurred(r.ID, publicDeaths(deaths))
	}
	if r.checkWin() {
		return
	}
	r.enterPhase(PhaseNight)
}
