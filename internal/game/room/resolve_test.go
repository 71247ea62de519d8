package room

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/werewolf/internal/apperrors"
	"github.com/palemoky/werewolf/internal/game/role"
)

func lastDeath(t *testing.T, tr *testRoom) DeathRecord {
	t.Helper()
	deaths := tr.Deaths()
	require.NotEmpty(t, deaths)
	return deaths[len(deaths)-1]
}

func findAction(tr *testRoom, actorID, abilityID string, turn int) (ActionRecord, bool) {
	for _, a := range tr.Actions() {
		if a.ActorID == actorID && a.AbilityID == abilityID && a.Turn == turn {
			return a, true
		}
	}
	return ActionRecord{}, false
}

func (tr *testRoom) triggerErr(userID, targetID string) error {
	_, err := tr.TriggerAbility(userID, role.AbilityHunterRevenge, []string{targetID})
	return err
}

func TestRequiredVotes_MajorityLaw(t *testing.T) {
	t.Parallel()

	for n := 3; n <= 12; n++ {
		t.Run(fmt.Sprintf("%d alive", n), func(t *testing.T) {
			t.Parallel()

			roles := make([]string, n)
			for i := range roles {
				roles[i] = role.Villager
			}
			roles[n-1] = role.Werewolf
			tr := startedRoom(t, roles...)
			tr.skip(t)
			tr.skip(t)
			require.Equal(t, PhaseVoting, tr.Phase())

			tally, err := tr.RegisterVote("u1", "u2")
			require.NoError(t, err)
			assert.Equal(t, n/2+1, tally.RequiredVotes)
		})
	}
}

func TestVoting_SevenAliveNeedFour(t *testing.T) {
	t.Parallel()

	tr := startedRoom(t, role.Villager, role.Villager, role.Villager, role.Villager, role.Villager, role.Werewolf, role.Werewolf)
	tr.skip(t)
	tr.skip(t)
	require.Equal(t, PhaseVoting, tr.Phase())

	for _, voter := range []string{"u1", "u2", "u3"} {
		_, err := tr.RegisterVote(voter, "u7")
		require.NoError(t, err)
	}
	tally, err := tr.RegisterVote("u4", "u6")
	require.NoError(t, err)
	assert.Equal(t, 4, tally.RequiredVotes)
	assert.Equal(t, 3, tally.Counts["u7"])
	assert.Equal(t, 4, tally.TotalVotes)

	// 3 票不足半数，无人出局
	tr.skip(t)
	assert.True(t, tr.alive(t, "u7"))
	assert.Empty(t, tr.Deaths())
	assert.Equal(t, PhaseNight, tr.Phase())
	assert.Equal(t, 2, tr.Turn())

	tr.skip(t)
	tr.skip(t)
	require.Equal(t, PhaseVoting, tr.Phase())
	for _, voter := range []string{"u1", "u2", "u3", "u4"} {
		_, err := tr.RegisterVote(voter, "u7")
		require.NoError(t, err)
	}
	tr.skip(t)

	assert.False(t, tr.alive(t, "u7"))
	d := lastDeath(t, tr)
	assert.Equal(t, "u7", d.VictimID)
	assert.Equal(t, CauseVotedOut, d.Cause)
	assert.Equal(t, PhaseVoting, d.Phase)
	assert.ElementsMatch(t, []string{"u1", "u2", "u3", "u4"}, d.KillerIDs)
	assert.Equal(t, PhaseNight, tr.Phase())
	tr.assertInvariants(t)
}

func TestRegisterVote_Errors(t *testing.T) {
	t.Parallel()

	tr := startedRoom(t, role.Villager, role.Villager, role.Villager, role.Villager, role.Werewolf)
	_, err := tr.RegisterVote("u1", "u2")
	assert.ErrorIs(t, err, apperrors.ErrWrongPhase)

	require.NoError(t, tr.RegisterNightAction("u5", role.AbilityWerewolfKill, []string{"u4"}))
	tr.skip(t)
	tr.skip(t)

	_, err = tr.RegisterVote("u4", "u1")
	assert.ErrorIs(t, err, apperrors.ErrCannotAct, "死亡玩家不能投票")
	_, err = tr.RegisterVote("u1", "u4")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTarget, "不能投给死亡玩家")
	_, err = tr.RegisterVote("u1", "ghost")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTarget)
	_, err = tr.RegisterVote("ghost", "u1")
	assert.ErrorIs(t, err, apperrors.ErrNotInRoom)

	// 改票覆盖之前的投票
	_, err = tr.RegisterVote("u1", "u2")
	require.NoError(t, err)
	tally, err := tr.RegisterVote("u1", "u5")
	require.NoError(t, err)
	assert.Equal(t, 1, tally.TotalVotes)
	assert.Equal(t, 1, tally.Counts["u5"])
	assert.Len(t, tr.listener.tallies, 2)
}

func TestEvaluateWin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		roles  []string
		dead   []string
		winner role.Team
		done   bool
	}{
		{
			name:   "2 wolves vs 2 villagers",
			roles:  []string{role.Villager, role.Villager, role.Werewolf, role.Werewolf},
			winner: role.TeamWerewolves,
			done:   true,
		},
		{
			name:   "no wolves alive",
			roles:  []string{role.Villager, role.Villager, role.Werewolf},
			dead:   []string{"u2", "u3"},
			winner: role.TeamVillagers,
			done:   true,
		},
		{
			name:   "1 wolf vs 0 villagers",
			roles:  []string{role.Villager, role.Werewolf},
			dead:   []string{"u1"},
			winner: role.TeamWerewolves,
			done:   true,
		},
		{
			name:  "1 wolf vs 2 villagers",
			roles: []string{role.Villager, role.Seer, role.Werewolf},
		},
		{
			name:   "neutral does not count",
			roles:  []string{role.Villager, role.Villager, role.Trickster, role.Werewolf},
			dead:   []string{"u1"},
			winner: role.TeamWerewolves,
			done:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tr := startedRoom(t, tt.roles...)
			tr.mu.Lock()
			for _, id := range tt.dead {
				tr.players[id].Kill()
			}
			winner, done := tr.evaluateWin()
			tr.mu.Unlock()

			assert.Equal(t, tt.done, done)
			assert.Equal(t, tt.winner, winner)
		})
	}
}

func TestNightKill_EndsGameWhenWolvesReachParity(t *testing.T) {
	t.Parallel()

	tr := startedRoom(t, role.Villager, role.Villager, role.Werewolf)
	require.NoError(t, tr.RegisterNightAction("u3", role.AbilityWerewolfKill, []string{"u2"}))
	tr.skip(t)

	assert.Equal(t, PhaseEnded, tr.Phase())
	assert.Equal(t, role.TeamWerewolves, tr.Winner())
	assert.Nil(t, tr.Timer())
	assert.Zero(t, tr.sched.Pending())
	assert.False(t, tr.EndedAt().IsZero())

	require.Len(t, tr.listener.results, 1)
	result := tr.listener.results[0]
	assert.Equal(t, string(role.TeamWerewolves), result.Winner)
	require.Len(t, result.Players, 3)
	byID := make(map[string]bool)
	for _, row := range result.Players {
		byID[row.UserID] = row.Won
	}
	assert.Equal(t, map[string]bool{"u1": false, "u2": false, "u3": true}, byID)
	assert.Equal(t, 1, result.Players[2].Kills)
	assert.Equal(t, 1, result.Players[1].TurnsSurvived)

	assert.ErrorIs(t, tr.ForceSkip("u1"), apperrors.ErrWrongPhase)
}

func TestWerewolfBlock_PluralityAndTieBreak(t *testing.T) {
	t.Parallel()

	tr := startedRoom(t, role.Villager, role.Villager, role.Villager, role.Villager, role.Villager, role.Villager,
		role.Werewolf, role.Werewolf, role.Werewolf)

	require.NoError(t, tr.RegisterNightAction("u7", role.AbilityWerewolfKill, []string{"u5"}))
	require.NoError(t, tr.RegisterNightAction("u8", role.AbilityWerewolfKill, []string{"u3"}))
	require.NoError(t, tr.RegisterNightAction("u9", role.AbilityWerewolfKill, []string{"u5"}))
	tr.skip(t)

	assert.False(t, tr.alive(t, "u5"))
	assert.True(t, tr.alive(t, "u3"))
	d := lastDeath(t, tr)
	assert.Equal(t, CauseWerewolfKill, d.Cause)
	assert.ElementsMatch(t, []string{"u7", "u9"}, d.KillerIDs)

	// 平票时取 ID 最小的目标
	tr.toNight(t, 3)
	require.NoError(t, tr.RegisterNightAction("u7", role.AbilityWerewolfKill, []string{"u4"}))
	require.NoError(t, tr.RegisterNightAction("u8", role.AbilityWerewolfKill, []string{"u2"}))
	tr.skip(t)
	assert.False(t, tr.alive(t, "u2"))
	assert.True(t, tr.alive(t, "u4"))
}

func TestRegisterNightAction_Validation(t *testing.T) {
	t.Parallel()

	tr := startedRoom(t, role.Villager, role.Seer, role.Villager, role.Werewolf, role.Werewolf)

	assert.ErrorIs(t, tr.RegisterNightAction("u1", role.AbilitySeerVision, []string{"u4"}), apperrors.ErrInvalidAbility)
	assert.ErrorIs(t, tr.RegisterNightAction("u2", "fly", []string{"u4"}), apperrors.ErrInvalidAbility)
	assert.ErrorIs(t, tr.RegisterNightAction("u4", role.AbilityWerewolfKill, []string{"u5"}), apperrors.ErrInvalidTargets, "狼人不能袭击队友")
	assert.ErrorIs(t, tr.RegisterNightAction("u4", role.AbilityWerewolfKill, nil), apperrors.ErrInvalidTargets)
	assert.ErrorIs(t, tr.RegisterNightAction("u4", role.AbilityWerewolfKill, []string{"u1", "u2"}), apperrors.ErrInvalidTargets)
	assert.ErrorIs(t, tr.RegisterNightAction("u4", role.AbilityWerewolfKill, []string{"ghost"}), apperrors.ErrInvalidTargets)
	assert.ErrorIs(t, tr.RegisterNightAction("u2", role.AbilitySeerVision, []string{"u2"}), apperrors.ErrInvalidTargets, "不能查验自己")
	assert.ErrorIs(t, tr.RegisterNightAction("ghost", role.AbilityWerewolfKill, []string{"u1"}), apperrors.ErrNotInRoom)

	// 重复登记覆盖
	require.NoError(t, tr.RegisterNightAction("u2", role.AbilitySeerVision, []string{"u1"}))
	require.NoError(t, tr.RegisterNightAction("u2", role.AbilitySeerVision, []string{"u4"}))
	actions, _ := tr.PendingCounts()
	assert.Equal(t, 1, actions)

	tr.skip(t)
	assert.ErrorIs(t, tr.RegisterNightAction("u2", role.AbilitySeerVision, []string{"u4"}), apperrors.ErrWrongPhase)

	view, err := tr.GetState("u2")
	require.NoError(t, err)
	require.Len(t, view.Self.Visions, 1)
	assert.Equal(t, "u4", view.Self.Visions[0].TargetID)
	assert.Equal(t, role.Werewolf, view.Self.Visions[0].RoleID)
	assert.Equal(t, role.TeamWerewolves, view.Self.Visions[0].Team)
}

func TestGuardian_ProtectsAgainstWerewolves(t *testing.T) {
	t.Parallel()

	tr := startedRoom(t, role.Villager, role.Guardian, role.Villager, role.Villager, role.Werewolf)
	require.NoError(t, tr.RegisterNightAction("u5", role.AbilityWerewolfKill, []string{"u3"}))
	require.NoError(t, tr.RegisterNightAction("u2", role.AbilityGuardianProtect, []string{"u3"}))
	tr.skip(t)

	assert.True(t, tr.alive(t, "u3"))
	assert.Empty(t, tr.Deaths())
	rec, ok := findAction(tr, "u5", role.AbilityWerewolfKill, 1)
	require.True(t, ok)
	assert.False(t, rec.Success)
	assert.Equal(t, resultProtected, rec.Result)

	// 守护只持续一晚
	p, _ := tr.PlayerForTest("u3")
	assert.False(t, p.Protected)
}

func witchRoom(t *testing.T) *testRoom {
	t.Helper()
	return startedRoom(t, role.Villager, role.Villager, role.Villager, role.Villager, role.Witch, role.Werewolf)
}

func TestWitchHeal_RevivesSameNightVictim(t *testing.T) {
	t.Parallel()

	tr := witchRoom(t)
	tr.toNight(t, 3)

	require.NoError(t, tr.RegisterNightAction("u6", role.AbilityWerewolfKill, []string{"u3"}))
	require.NoError(t, tr.RegisterNightAction("u5", role.AbilityWitchHeal, []string{"u3"}))
	tr.skip(t)

	assert.True(t, tr.alive(t, "u3"))
	assert.Empty(t, tr.Deaths(), "救活后撤销死亡记录")
	rec, ok := findAction(tr, "u5", role.AbilityWitchHeal, 3)
	require.True(t, ok)
	assert.True(t, rec.Success)
	assert.Equal(t, resultRevived, rec.Result)

	view, err := tr.GetState("u5")
	require.NoError(t, err)
	for _, a := range view.Self.Abilities {
		if a.ID == role.AbilityWitchHeal {
			assert.Zero(t, a.UsesLeft)
		}
	}
	tr.assertInvariants(t)
}

func TestWitchHeal_FailsForEarlierDeath(t *testing.T) {
	t.Parallel()

	tr := witchRoom(t)
	tr.toNight(t, 2)
	require.NoError(t, tr.RegisterNightAction("u6", role.AbilityWerewolfKill, []string{"u2"}))
	tr.skip(t)
	require.False(t, tr.alive(t, "u2"))
	assert.Equal(t, 2, lastDeath(t, tr).Turn)

	tr.toNight(t, 3)
	require.NoError(t, tr.RegisterNightAction("u5", role.AbilityWitchHeal, []string{"u2"}))
	tr.skip(t)

	assert.False(t, tr.alive(t, "u2"))
	rec, ok := findAction(tr, "u5", role.AbilityWitchHeal, 3)
	require.True(t, ok)
	assert.False(t, rec.Success)
	assert.Equal(t, resultNoEffect, rec.Result)

	// 失败不消耗解药
	p, _ := tr.PlayerForTest("u5")
	heal, _ := p.Role.Ability(role.AbilityWitchHeal)
	assert.Equal(t, 1, p.UsesLeft(heal))
	tr.assertInvariants(t)
}

func TestWitchKill(t *testing.T) {
	t.Parallel()

	tr := witchRoom(t)
	require.NoError(t, tr.RegisterNightAction("u5", role.AbilityWitchKill, []string{"u6"}))
	tr.skip(t)

	assert.False(t, tr.alive(t, "u6"))
	assert.Equal(t, CauseWitchKill, lastDeath(t, tr).Cause)
	assert.Equal(t, PhaseEnded, tr.Phase())
	assert.Equal(t, role.TeamVillagers, tr.Winner())
}

func hunterRoom(t *testing.T) *testRoom {
	t.Helper()
	return startedRoom(t, role.Villager, role.Villager, role.Villager, role.Hunter, role.Villager, role.Werewolf, role.Werewolf)
}

func TestHunter_TriggerAfterDeath(t *testing.T) {
	t.Parallel()

	tr := hunterRoom(t)
	assert.ErrorIs(t, tr.triggerErr("u4", "u6"), apperrors.ErrCannotAct, "存活时不能发动")

	require.NoError(t, tr.RegisterNightAction("u6", role.AbilityWerewolfKill, []string{"u4"}))
	tr.skip(t)
	require.False(t, tr.alive(t, "u4"))
	require.Equal(t, PhaseDay, tr.Phase())

	view, err := tr.GetState("u4")
	require.NoError(t, err)
	assert.True(t, view.Self.TriggerOpen)

	assert.ErrorIs(t, tr.triggerErr("u4", "u4"), apperrors.ErrInvalidTargets)
	rec, err := tr.TriggerAbility("u4", role.AbilityHunterRevenge, []string{"u6"})
	require.NoError(t, err)
	assert.True(t, rec.Success)
	assert.False(t, tr.alive(t, "u6"))
	d := lastDeath(t, tr)
	assert.Equal(t, CauseHunterRevenge, d.Cause)
	assert.Equal(t, []string{"u4"}, d.KillerIDs)

	// 窗口已关闭
	assert.ErrorIs(t, tr.triggerErr("u4", "u7"), apperrors.ErrCannotAct)
}

func TestHunter_WindowClosesAfterNextResolution(t *testing.T) {
	t.Parallel()

	tr := hunterRoom(t)
	require.NoError(t, tr.RegisterNightAction("u6", role.AbilityWerewolfKill, []string{"u4"}))
	tr.skip(t) // 夜晚结算，窗口打开
	tr.skip(t) // 白天 -> 投票
	view, _ := tr.GetState("u4")
	require.True(t, view.Self.TriggerOpen)

	tr.skip(t) // 投票结算，窗口关闭
	assert.ErrorIs(t, tr.triggerErr("u4", "u6"), apperrors.ErrCannotAct)
}

func TestHunter_PreemptiveRegistration(t *testing.T) {
	t.Parallel()

	tr := hunterRoom(t)
	require.NoError(t, tr.RegisterNightAction("u4", role.AbilityHunterRevenge, []string{"u7"}))
	require.NoError(t, tr.RegisterNightAction("u6", role.AbilityWerewolfKill, []string{"u4"}))
	tr.skip(t)

	assert.False(t, tr.alive(t, "u4"))
	assert.False(t, tr.alive(t, "u7"), "猎人死亡时预先登记的开枪生效")
	view, _ := tr.GetState("u4")
	assert.False(t, view.Self.TriggerOpen)
}

func TestHunter_PreemptiveNotTriggeredWhenAlive(t *testing.T) {
	t.Parallel()

	tr := hunterRoom(t)
	require.NoError(t, tr.RegisterNightAction("u4", role.AbilityHunterRevenge, []string{"u7"}))
	require.NoError(t, tr.RegisterNightAction("u6", role.AbilityWerewolfKill, []string{"u1"}))
	tr.skip(t)

	assert.True(t, tr.alive(t, "u7"))
	rec, ok := findAction(tr, "u4", role.AbilityHunterRevenge, 1)
	require.True(t, ok)
	assert.Equal(t, resultNotTriggered, rec.Result)
	p, _ := tr.PlayerForTest("u4")
	revenge, _ := p.Role.Ability(role.AbilityHunterRevenge)
	assert.Equal(t, 1, p.UsesLeft(revenge))
}

func TestHowl_SilencesThroughNextDay(t *testing.T) {
	t.Parallel()

	tr := startedRoom(t, role.Villager, role.Seer, role.Villager, role.Villager, role.AlphaWerewolf)
	require.NoError(t, tr.RegisterNightAction("u5", role.AbilityHowl, []string{"u2"}))
	tr.skip(t)

	require.Equal(t, PhaseDay, tr.Phase())
	_, err := tr.PostChat("u2", ChannelAll, "hello")
	assert.ErrorIs(t, err, apperrors.ErrCannotAct)

	tr.skip(t)
	_, err = tr.RegisterVote("u2", "u5")
	assert.ErrorIs(t, err, apperrors.ErrCannotAct)

	// 投票结算后禁言结束，下一夜可以正常行动
	tr.skip(t)
	require.Equal(t, PhaseNight, tr.Phase())
	assert.NoError(t, tr.RegisterNightAction("u2", role.AbilitySeerVision, []string{"u5"}))

	tr.skip(t)
	_, err = tr.PostChat("u2", ChannelAll, "back")
	assert.NoError(t, err)
	_, ok := findAction(tr, "u2", role.AbilitySeerVision, 2)
	assert.True(t, ok)
}

func TestUseItem(t *testing.T) {
	t.Parallel()

	tr := startedRoom(t, role.Villager, role.Villager, role.Villager, role.Werewolf)

	_, err := tr.UseItem("u1", "sword", nil)
	assert.ErrorIs(t, err, apperrors.ErrItemNotFound)
	_, err = tr.UseItem("u1", role.ItemShield, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTargets)

	left, err := tr.UseItem("u1", role.ItemShield, []string{"u2"})
	require.NoError(t, err)
	assert.Zero(t, left.Uses)
	p, _ := tr.PlayerForTest("u2")
	assert.True(t, p.Protected)

	_, err = tr.UseItem("u1", role.ItemShield, []string{"u2"})
	assert.ErrorIs(t, err, apperrors.ErrItemNotFound, "用完的道具不能再用")

	// 盾牌挡住当晚的袭击
	require.NoError(t, tr.RegisterNightAction("u4", role.AbilityWerewolfKill, []string{"u2"}))
	tr.skip(t)
	assert.True(t, tr.alive(t, "u2"))

	_, err = tr.UseItem("u1", role.ItemPotion, nil)
	require.NoError(t, err)
	u1, _ := tr.PlayerForTest("u1")
	assert.Equal(t, 2, u1.Counters.ItemsUsed)
}

func TestTrickster_WinsWhenVotedOut(t *testing.T) {
	t.Parallel()

	tr := startedRoom(t, role.Villager, role.Villager, role.Villager, role.Trickster, role.Werewolf)
	tr.skip(t)
	tr.skip(t)
	for _, voter := range []string{"u1", "u2", "u3"} {
		_, err := tr.RegisterVote(voter, "u4")
		require.NoError(t, err)
	}
	tr.skip(t)
	require.False(t, tr.alive(t, "u4"))

	require.NoError(t, tr.RegisterNightAction("u5", role.AbilityWerewolfKill, []string{"u1"}))
	tr.skip(t)
	tr.skip(t)
	for _, voter := range []string{"u2", "u3"} {
		_, err := tr.RegisterVote(voter, "u5")
		require.NoError(t, err)
	}
	tr.skip(t)

	require.Equal(t, PhaseEnded, tr.Phase())
	assert.Equal(t, role.TeamVillagers, tr.Winner())
	require.Len(t, tr.listener.results, 1)
	assert.Equal(t, []string{"u4"}, tr.listener.results[0].NeutralWinners)
	for _, row := range tr.listener.results[0].Players {
		if row.UserID == "u4" {
			assert.True(t, row.Won)
		}
	}
}
