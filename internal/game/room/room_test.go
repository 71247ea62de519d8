package room

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/werewolf/internal/apperrors"
	"github.com/palemoky/werewolf/internal/game/role"
	"github.com/palemoky/werewolf/internal/storage"
)

// fakeClock 固定时钟，精度到毫秒便于快照比较
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

// recordingListener 记录房间事件
type recordingListener struct {
	NopListener

	mu      sync.Mutex
	phases  []PhaseChange
	deaths  []DeathRecord
	tallies []VoteTally
	chats   map[int][]string // 消息 ID -> 接收者
	results []*storage.GameResult
	states  int
}

func newRecordingListener() *recordingListener {
	return &recordingListener{chats: make(map[int][]string)}
}

func (l *recordingListener) StateChanged(string, map[string]*View) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states++
}

func (l *recordingListener) PhaseChanged(e PhaseChange) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.phases = append(l.phases, e)
}

func (l *recordingListener) DeathsOccurred(_ string, deaths []DeathRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deaths = append(l.deaths, deaths...)
}

func (l *recordingListener) VoteUpdated(t VoteTally) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tallies = append(l.tallies, t)
}

func (l *recordingListener) ChatPosted(_ string, msg ChatMessage, recipients []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.chats[msg.ID] = recipients
}

func (l *recordingListener) GameEnded(result *storage.GameResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = append(l.results, result)
}

type testRoom struct {
	*GameRoom
	sched    *ManualScheduler
	listener *recordingListener
	clock    *fakeClock
}

// newTestRoom 创建大厅中有 n 名玩家（u1..un，u1 为房主）的房间
func newTestRoom(t *testing.T, n int) *testRoom {
	t.Helper()

	tr := &testRoom{
		sched:    NewManualScheduler(),
		listener: newRecordingListener(),
		clock:    newFakeClock(),
	}
	tr.GameRoom = newGameRoom("100001", "", TestConfig(), roomDeps{
		catalog:   role.Default(),
		scheduler: tr.sched,
		listener:  tr.listener,
		now:       tr.clock.Now,
	})
	for i := range n {
		id := fmt.Sprintf("u%d", i+1)
		tr.mu.Lock()
		_, err := tr.addPlayer(id, "player-"+id)
		tr.mu.Unlock()
		require.NoError(t, err)
	}
	return tr
}

// startedRoom 按给定角色开局，玩家 ID 依次为 u1..un
func startedRoom(t *testing.T, roles ...string) *testRoom {
	t.Helper()
	tr := newTestRoom(t, len(roles))
	require.NoError(t, tr.StartWithRoles(roles...))
	require.Equal(t, PhaseNight, tr.Phase())
	return tr
}

// skip 房主（u1）跳过当前阶段
func (tr *testRoom) skip(t *testing.T) {
	t.Helper()
	require.NoError(t, tr.ForceSkip(tr.HostID))
}

// toNight 一路跳过直到指定回合的夜晚
func (tr *testRoom) toNight(t *testing.T, turn int) {
	t.Helper()
	for tr.Phase() != PhaseNight || tr.Turn() != turn {
		require.NotEqual(t, PhaseEnded, tr.Phase())
		tr.skip(t)
	}
}

func (tr *testRoom) alive(t *testing.T, id string) bool {
	t.Helper()
	p, ok := tr.PlayerForTest(id)
	require.True(t, ok)
	return p.Alive
}

func (tr *testRoom) assertInvariants(t *testing.T) {
	t.Helper()
	tr.mu.Lock()
	defer tr.mu.Unlock()
	for id, p := range tr.players {
		assert.Equal(t, p.Lives > 0, p.Alive, "player %s alive must equal lives > 0", id)
	}
}

func TestStartGame_FivePlayersRequireAllReady(t *testing.T) {
	t.Parallel()

	tr := newTestRoom(t, 5)
	for _, id := range []string{"u2", "u3", "u4"} {
		ready, err := tr.ToggleReady(id)
		require.NoError(t, err)
		assert.True(t, ready)
	}

	assert.ErrorIs(t, tr.StartGame("u1"), apperrors.ErrNotAllReady)
	assert.Equal(t, PhaseLobby, tr.Phase())

	_, err := tr.ToggleReady("u5")
	require.NoError(t, err)

	assert.ErrorIs(t, tr.StartGame("u2"), apperrors.ErrNotHost)
	require.NoError(t, tr.StartGame("u1"))

	assert.Equal(t, PhaseNight, tr.Phase())
	assert.Equal(t, 1, tr.Turn())

	wolves, villagers, seers := 0, 0, 0
	for _, id := range tr.PlayerIDs() {
		p, _ := tr.PlayerForTest(id)
		require.NotNil(t, p.Role)
		switch p.Team {
		case role.TeamWerewolves:
			wolves++
		case role.TeamVillagers:
			villagers++
		}
		if p.Role.ID == role.Seer {
			seers++
		}
	}
	assert.Equal(t, 1, wolves)
	assert.Equal(t, 4, villagers)
	assert.Equal(t, 1, seers)

	assert.ErrorIs(t, tr.StartGame("u1"), apperrors.ErrGameStarted)
}

func TestStartGame_TooFewPlayers(t *testing.T) {
	t.Parallel()

	tr := newTestRoom(t, 4)
	assert.ErrorIs(t, tr.StartGame("u1"), apperrors.ErrTooFewPlayers)
	assert.ErrorIs(t, tr.StartGame("nobody"), apperrors.ErrNotInRoom)
}

func TestStartGame_GivesStartingItems(t *testing.T) {
	t.Parallel()

	tr := startedRoom(t, role.Villager, role.Villager, role.Werewolf)
	p, _ := tr.PlayerForTest("u2")
	require.Len(t, p.Items, 2)
	assert.Equal(t, role.ItemPotion, p.Items[0].ID)
	assert.Equal(t, role.ItemShield, p.Items[1].ID)
	assert.NotEmpty(t, tr.GameID)
}

func TestJoin_RoomFullAndStarted(t *testing.T) {
	t.Parallel()

	tr := newTestRoom(t, 2)
	tr.Config.MaxPlayers = 2

	tr.mu.Lock()
	_, err := tr.addPlayer("u3", "late")
	tr.mu.Unlock()
	assert.ErrorIs(t, err, apperrors.ErrRoomFull)

	tr.Config.MaxPlayers = 16
	require.NoError(t, tr.StartWithRoles(role.Villager, role.Werewolf))
	tr.mu.Lock()
	_, err = tr.addPlayer("u3", "late")
	tr.mu.Unlock()
	assert.ErrorIs(t, err, apperrors.ErrGameStarted)
}

func TestPhaseTransitions_ClearPendingMaps(t *testing.T) {
	t.Parallel()

	tr := startedRoom(t, role.Villager, role.Villager, role.Seer, role.Villager, role.Werewolf, role.Werewolf, role.Villager)

	require.NoError(t, tr.RegisterNightAction("u3", role.AbilitySeerVision, []string{"u5"}))
	require.NoError(t, tr.RegisterNightAction("u5", role.AbilityWerewolfKill, []string{"u4"}))
	actions, _ := tr.PendingCounts()
	assert.Equal(t, 2, actions)

	tr.skip(t)
	assert.Equal(t, PhaseDay, tr.Phase())
	actions, votes := tr.PendingCounts()
	assert.Zero(t, actions)
	assert.Zero(t, votes)

	tr.skip(t)
	require.Equal(t, PhaseVoting, tr.Phase())
	_, err := tr.RegisterVote("u2", "u5")
	require.NoError(t, err)
	_, err = tr.RegisterVote("u3", "u5")
	require.NoError(t, err)
	_, votes = tr.PendingCounts()
	assert.Equal(t, 2, votes)

	tr.skip(t)
	actions, votes = tr.PendingCounts()
	assert.Zero(t, actions)
	assert.Zero(t, votes)
	tr.assertInvariants(t)
}

func TestPhaseTimer_FiredVersusCancelled(t *testing.T) {
	t.Parallel()

	tr := startedRoom(t, role.Villager, role.Villager, role.Villager, role.Werewolf)

	nightTimer := tr.Timer()
	require.NotNil(t, nightTimer)
	assert.Equal(t, TimerPending, nightTimer.State())
	assert.Equal(t, PhaseNight, nightTimer.Phase)
	assert.Equal(t, tr.clock.Now().Add(60*time.Second), nightTimer.Deadline)
	nightTask := tr.sched.Last()
	require.Equal(t, 1, tr.sched.Pending())

	// 房主跳过：夜晚计时器被取消，白天计时器生效
	tr.skip(t)
	assert.Equal(t, TimerCancelled, nightTimer.State())
	require.Equal(t, PhaseDay, tr.Phase())
	dayTimer := tr.Timer()
	require.NotNil(t, dayTimer)
	assert.Equal(t, TimerPending, dayTimer.State())
	assert.Equal(t, 1, tr.sched.Pending())

	// 已取消的回调即使仍被执行也不能再次结算
	tr.sched.RunAnyway(nightTask)
	assert.Equal(t, PhaseDay, tr.Phase())
	assert.Equal(t, 2, tr.Turn())

	// 白天超时进入投票
	require.True(t, tr.sched.Fire())
	assert.Equal(t, TimerFired, dayTimer.State())
	assert.Equal(t, PhaseVoting, tr.Phase())
	assert.Equal(t, TimerPending, tr.Timer().State())
}

func TestForceSkip_Errors(t *testing.T) {
	t.Parallel()

	tr := newTestRoom(t, 3)
	assert.ErrorIs(t, tr.ForceSkip("u1"), apperrors.ErrWrongPhase)
	require.NoError(t, tr.StartWithRoles(role.Villager, role.Villager, role.Werewolf))
	assert.ErrorIs(t, tr.ForceSkip("u2"), apperrors.ErrNotHost)
	assert.ErrorIs(t, tr.ForceSkip("x"), apperrors.ErrNotInRoom)
}

func TestPhaseChanged_CarriesDeadline(t *testing.T) {
	t.Parallel()

	tr := startedRoom(t, role.Villager, role.Villager, role.Villager, role.Werewolf)
	tr.skip(t)

	require.Len(t, tr.listener.phases, 2)
	last := tr.listener.phases[1]
	assert.Equal(t, PhaseDay, last.Phase)
	assert.Equal(t, 2, last.Turn)
	assert.Equal(t, tr.clock.Now().Add(120*time.Second), last.EndsAt)
}

func TestHostTransfer_InProgress(t *testing.T) {
	t.Parallel()

	tr := startedRoom(t, role.Villager, role.Villager, role.Villager, role.Werewolf)

	tr.mu.Lock()
	tr.players["u2"].Connected = false
	outcome, empty := tr.leave("u1")
	tr.mu.Unlock()

	assert.Equal(t, leaveDisconnected, outcome)
	assert.False(t, empty)
	// u2 已离线，房主转给下一个在线玩家
	assert.Equal(t, "u3", tr.HostID)
	p, _ := tr.PlayerForTest("u1")
	assert.False(t, p.Connected)
	assert.False(t, p.IsHost)
	assert.NotNil(t, p.Role, "离开游戏的玩家保留角色")
}

func TestHostTransfer_Lobby(t *testing.T) {
	t.Parallel()

	tr := newTestRoom(t, 2)
	tr.mu.Lock()
	outcome, empty := tr.leave("u1")
	tr.mu.Unlock()
	assert.Equal(t, leaveRemoved, outcome)
	assert.False(t, empty)
	assert.Equal(t, "u2", tr.HostID)
	assert.Equal(t, []string{"u2"}, tr.PlayerIDs())

	tr.mu.Lock()
	_, empty = tr.leave("u2")
	tr.mu.Unlock()
	assert.True(t, empty)
}
