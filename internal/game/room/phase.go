package room

import (
	"slices"

	"github.com/palemoky/werewolf/internal/apperrors"
	"github.com/palemoky/werewolf/internal/game/player"
	"github.com/palemoky/werewolf/internal/game/role"
	"github.com/palemoky/werewolf/internal/logger"
	"github.com/palemoky/werewolf/internal/storage"
)

// enterPhase 切换阶段：取消旧计时器，清空待结算行动和投票，为新阶段计时
func (r *GameRoom) enterPhase(p Phase) {
	r.cancelTimer()
	clear(r.pendingActions)
	clear(r.pendingVotes)

	r.phase = p
	r.phaseStartedAt = r.now()
	for _, pl := range r.players {
		pl.ResetPhase()
		pl.Protected = false
	}
	r.armTimer()
	r.touch()

	logger.LogDebug("🌗 房间 %s 进入 %s 阶段（第 %d 回合）", r.ID, p, r.turn)
	r.listener.PhaseChanged(PhaseChange{RoomID: r.ID, Phase: p, Turn: r.turn, EndsAt: r.deadline()})
	r.notifyState()
}

// advance 当前阶段到时（超时或房主跳过）后的统一入口
func (r *GameRoom) advance() {
	switch r.phase {
	case PhaseNight:
		r.resolveNight()
	case PhaseDay:
		r.enterPhase(PhaseVoting)
	case PhaseVoting:
		r.resolveVoting()
	}
}

// ForceSkip 房主提前结束当前阶段，与超时走同一条结算路径
func (r *GameRoom) ForceSkip(userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.players[userID]; !ok {
		return apperrors.ErrNotInRoom
	}
	if userID != r.HostID {
		return apperrors.ErrNotHost
	}
	if !r.phase.Timed() {
		return apperrors.ErrWrongPhase
	}

	logger.LogInfo("⏭️ 房间 %s 房主跳过 %s 阶段", r.ID, r.phase)
	r.cancelTimer()
	r.advance()
	return nil
}

// Resume 恢复后的房间从当前阶段重新计时
func (r *GameRoom) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.phase.Timed() {
		return
	}
	r.cancelTimer()
	r.phaseStartedAt = r.now()
	r.armTimer()
	r.listener.PhaseChanged(PhaseChange{RoomID: r.ID, Phase: r.phase, Turn: r.turn, EndsAt: r.deadline()})
}

// Stop 取消计时器（关闭服务时）
func (r *GameRoom) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelTimer()
}

// evaluateWin 狼人存活且不少于村民时狼人胜；狼人全灭时村民胜。中立阵营不计入
func (r *GameRoom) evaluateWin() (role.Team, bool) {
	wolves, villagers := 0, 0
	for _, p := range r.players {
		if !p.Alive {
			continue
		}
		switch p.Team {
		case role.TeamWerewolves:
			wolves++
		case role.TeamVillagers:
			villagers++
		}
	}
	if wolves == 0 {
		return role.TeamVillagers, true
	}
	if wolves >= villagers {
		return role.TeamWerewolves, true
	}
	return "", false
}

// checkWin 胜负已分时结束游戏
func (r *GameRoom) checkWin() bool {
	winner, done := r.evaluateWin()
	if !done {
		return false
	}
	r.endGame(winner)
	return true
}

// neutralObjective 中立角色各自的胜利条件，在游戏结束时判定
type neutralObjective func(r *GameRoom, p *player.Player) bool

var neutralObjectives = map[string]neutralObjective{
	// 捣蛋鬼：被投票出局，或活到最后
	role.Trickster: func(r *GameRoom, p *player.Player) bool {
		return p.Alive || r.diedBy(p.UserID, CauseVotedOut)
	},
}

func (r *GameRoom) diedBy(userID, cause string) bool {
	for _, d := range r.deaths {
		if d.VictimID == userID && d.Cause == cause {
			return true
		}
	}
	return false
}

func (r *GameRoom) endGame(winner role.Team) {
	r.cancelTimer()
	clear(r.pendingActions)
	clear(r.pendingVotes)
	clear(r.triggerWindows)

	r.phase = PhaseEnded
	r.endedAt = r.now()
	r.phaseStartedAt = r.endedAt
	r.winner = winner
	r.neutralWinners = nil
	for _, id := range r.order {
		p := r.players[id]
		if p.Team != role.TeamNeutral || p.Role == nil {
			continue
		}
		if objective, ok := neutralObjectives[p.Role.ID]; ok && objective(r, p) {
			r.neutralWinners = append(r.neutralWinners, id)
		}
	}
	r.touch()

	logger.LogInfo("🏆 房间 %s 游戏结束，%s 获胜（第 %d 回合）", r.ID, winner, r.turn)
	r.listener.PhaseChanged(PhaseChange{RoomID: r.ID, Phase: PhaseEnded, Turn: r.turn})
	r.listener.GameEnded(r.buildResult())
	r.notifyState()
}

// buildResult 每个玩家一行统计
func (r *GameRoom) buildResult() *storage.GameResult {
	result := &storage.GameResult{
		RoomID:         r.ID,
		GameID:         r.GameID,
		Winner:         string(r.winner),
		NeutralWinners: append([]string(nil), r.neutralWinners...),
		Turns:          r.turn,
		EndedAt:        r.endedAt,
		Players:        make([]storage.PlayerResult, 0, len(r.order)),
	}

	kills := make(map[string]int)
	diedAt := make(map[string]int)
	for _, d := range r.deaths {
		for _, k := range d.KillerIDs {
			kills[k]++
		}
		diedAt[d.VictimID] = d.Turn
	}

	for _, id := range r.order {
		p := r.players[id]
		row := storage.PlayerResult{
			UserID:    id,
			Username:  p.Username,
			Team:      string(p.Team),
			Survived:  p.Alive,
			Actions:   p.Counters.Actions,
			Votes:     p.Counters.Votes,
			ItemsUsed: p.Counters.ItemsUsed,
			Kills:     kills[id],
		}
		if p.Role != nil {
			row.RoleID = p.Role.ID
		}
		if p.Team == role.TeamNeutral {
			row.Won = slices.Contains(r.neutralWinners, id)
		} else {
			row.Won = p.Team == r.winner
		}
		if p.Alive {
			row.TurnsSurvived = r.turn
		} else {
			row.TurnsSurvived = diedAt[id]
		}
		result.Players = append(result.Players, row)
	}
	return result
}

// closeTriggerWindows 关闭在本次结算之前打开的触发窗口
func (r *GameRoom) closeTriggerWindows() {
	for id, opened := range r.triggerWindows {
		if opened < r.resolution {
			delete(r.triggerWindows, id)
		}
	}
}

// deathsIn 某回合某阶段的死亡记录
func (r *GameRoom) deathsIn(turn int, phase Phase) []DeathRecord {
	var out []DeathRecord
	for _, d := range r.deaths {
		if d.Turn == turn && d.Phase == phase {
			out = append(out, d)
		}
	}
	return out
}
