package room

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/werewolf/internal/apperrors"
	"github.com/palemoky/werewolf/internal/game/role"
)

func newTestManager(t *testing.T) (*Manager, *ManualScheduler, *fakeClock) {
	t.Helper()
	sched := NewManualScheduler()
	clock := newFakeClock()
	m := NewManager(TestConfig(),
		WithScheduler(sched),
		WithClock(clock.Now),
		WithEndedRetention(10*time.Minute),
	)
	return m, sched, clock
}

// fillRoom 创建房间并加入 n-1 名玩家，返回房间号和玩家 ID（第一个为房主）
func fillRoom(t *testing.T, m *Manager, prefix string, n int) (string, []string) {
	t.Helper()
	host := prefix + "1"
	roomID, err := m.CreateRoom(host, "host-"+prefix, nil)
	require.NoError(t, err)
	ids := []string{host}
	for i := 2; i <= n; i++ {
		id := fmt.Sprintf("%s%d", prefix, i)
		_, err := m.JoinRoom(roomID, id, "player-"+id)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return roomID, ids
}

// assertIndexConsistent 索引中的每个用户都确实在对应房间里
func assertIndexConsistent(t *testing.T, m *Manager) {
	t.Helper()
	m.mu.RLock()
	defer m.mu.RUnlock()
	for uid, rid := range m.userRooms {
		r, ok := m.rooms[rid]
		require.True(t, ok, "user %s indexed to missing room %s", uid, rid)
		r.mu.Lock()
		_, member := r.players[uid]
		r.mu.Unlock()
		assert.True(t, member, "user %s not a member of %s", uid, rid)
	}
}

func TestManager_CreateAndJoin(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager(t)
	roomID, err := m.CreateRoom("a", "Alice", nil)
	require.NoError(t, err)
	assert.Len(t, roomID, roomCodeLength)

	view, err := m.JoinRoom(roomID, "b", "Bob")
	require.NoError(t, err)
	assert.Equal(t, "a", view.HostID)
	assert.Len(t, view.Players, 2)
	assert.Equal(t, "b", view.Self.UserID)
	assert.Equal(t, roomID, m.RoomOf("b"))

	_, err = m.JoinRoom("999999x", "c", "Carol")
	assert.ErrorIs(t, err, apperrors.ErrRoomNotFound)
	assertIndexConsistent(t, m)
}

func TestManager_CreateRoomOverrides(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager(t)
	roomID, err := m.CreateRoom("a", "Alice", &Config{MaxPlayers: 8, NightDuration: 5 * time.Second})
	require.NoError(t, err)

	r := m.Room(roomID)
	require.NotNil(t, r)
	assert.Equal(t, 8, r.Config.MaxPlayers)
	assert.Equal(t, 5, r.Config.MinPlayers)
	assert.Equal(t, 5*time.Second, r.Config.NightDuration)
	assert.Equal(t, 120*time.Second, r.Config.DayDuration)
}

func TestManager_OneRoomPerUser(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager(t)
	roomA, _ := fillRoom(t, m, "a", 2)
	roomB, _ := fillRoom(t, m, "b", 2)

	// 大厅中的用户加入其他房间时自动离开旧房间
	_, err := m.JoinRoom(roomB, "a2", "switcher")
	require.NoError(t, err)
	assert.Equal(t, roomB, m.RoomOf("a2"))
	assert.Equal(t, []string{"a1"}, m.Room(roomA).PlayerIDs())

	// 创建房间同样会离开大厅中的旧房间，空房间被删除
	roomC, err := m.CreateRoom("a1", "mover", nil)
	require.NoError(t, err)
	assert.Nil(t, m.Room(roomA))
	assert.Equal(t, roomC, m.RoomOf("a1"))
	assertIndexConsistent(t, m)
}

func TestManager_AlreadyInGame(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager(t)
	roomA, ids := fillRoom(t, m, "a", 5)
	require.NoError(t, m.Room(roomA).StartWithRoles(role.Villager, role.Villager, role.Villager, role.Villager, role.Werewolf))
	roomB, _ := fillRoom(t, m, "b", 1)

	_, err := m.JoinRoom(roomB, ids[1], "runner")
	assert.ErrorIs(t, err, apperrors.ErrAlreadyInGame)
	_, err = m.CreateRoom(ids[2], "runner", nil)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyInGame)
	assert.Equal(t, roomA, m.RoomOf(ids[1]))

	// 目标房间不可加入时不离开旧房间
	_, err = m.JoinRoom(roomA, "b1", "late")
	assert.ErrorIs(t, err, apperrors.ErrGameStarted)
	assert.Equal(t, roomB, m.RoomOf("b1"))
	assertIndexConsistent(t, m)
}

func TestManager_LeaveDuringGameKeepsPlayer(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager(t)
	roomID, ids := fillRoom(t, m, "a", 5)
	r := m.Room(roomID)
	require.NoError(t, r.StartWithRoles(role.Villager, role.Villager, role.Villager, role.Villager, role.Werewolf))

	m.LeaveRoom(ids[0], roomID)
	assert.Equal(t, roomID, m.RoomOf(ids[0]), "游戏中离开仍属于该房间")
	assert.Equal(t, ids[1], r.HostID)
	p, ok := r.PlayerForTest(ids[0])
	require.True(t, ok)
	assert.False(t, p.Connected)

	// 重新加入即重连
	view, err := m.JoinRoom(roomID, ids[0], "back")
	require.NoError(t, err)
	assert.Equal(t, PhaseNight, view.Phase)
	p, _ = r.PlayerForTest(ids[0])
	assert.True(t, p.Connected)
	assert.Equal(t, "back", p.Username)
}

func TestManager_LeaveLobbyDeletesEmptyRoom(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager(t)
	roomID, ids := fillRoom(t, m, "a", 2)

	m.LeaveRoom(ids[0], roomID)
	assert.Empty(t, m.RoomOf(ids[0]))
	assert.Equal(t, ids[1], m.Room(roomID).HostID)

	m.Disconnect(ids[1])
	assert.Nil(t, m.Room(roomID))
	assert.Zero(t, m.RoomCount())
}

func TestManager_RoutedOperations(t *testing.T) {
	t.Parallel()

	m, sched, _ := newTestManager(t)
	roomID, ids := fillRoom(t, m, "p", 5)
	for _, id := range ids[1:] {
		ready, err := m.ToggleReady(id, roomID)
		require.NoError(t, err)
		require.True(t, ready)
	}
	require.NoError(t, m.StartGame(roomID, ids[0]))
	assert.Equal(t, 1, sched.Pending())

	_, err := m.RegisterVote(roomID, ids[0], ids[1])
	assert.ErrorIs(t, err, apperrors.ErrWrongPhase)
	assert.ErrorIs(t, m.StartGame("nope", ids[0]), apperrors.ErrRoomNotFound)

	_, err = m.UseItem(ids[2], role.ItemPotion, nil)
	require.NoError(t, err)
	_, err = m.UseItem("stranger", role.ItemPotion, nil)
	assert.ErrorIs(t, err, apperrors.ErrNotInRoom)

	msg, err := m.PostChat(roomID, ids[1], ChannelAll, "hi")
	require.NoError(t, err)
	history, err := m.ReadChat(roomID, ids[3], ChannelAll, 10)
	require.NoError(t, err)
	assert.Equal(t, []ChatMessage{msg}, history)

	require.NoError(t, m.ForceSkip(roomID, ids[0]))
	view, err := m.GetRoomState(roomID, ids[4])
	require.NoError(t, err)
	assert.Equal(t, PhaseDay, view.Phase)
	assert.Len(t, m.ActiveRooms(), 1)
}

func TestManager_QuickMatch(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager(t)
	small, _ := fillRoom(t, m, "s", 1)
	big, _ := fillRoom(t, m, "b", 3)

	list := m.ListOpenRooms()
	require.Len(t, list, 2)
	assert.Equal(t, big, list[0].RoomID)
	assert.Equal(t, 3, list[0].PlayerCount)
	assert.Equal(t, "host-b", list[0].HostName)
	assert.Equal(t, small, list[1].RoomID)

	joined, err := m.QuickMatch("q1", "quick")
	require.NoError(t, err)
	assert.Equal(t, big, joined)

	// 已在大厅中的用户直接返回当前房间
	again, err := m.QuickMatch("q1", "quick")
	require.NoError(t, err)
	assert.Equal(t, big, again)

	// 没有可加入的房间时新建
	m2, _, _ := newTestManager(t)
	created, err := m2.QuickMatch("solo", "Solo")
	require.NoError(t, err)
	assert.Equal(t, created, m2.RoomOf("solo"))
	assert.Equal(t, "solo", m2.Room(created).HostID)
}

func TestManager_Cleanup(t *testing.T) {
	t.Parallel()

	m, _, clock := newTestManager(t)
	endedID, ended := fillRoom(t, m, "e", 2)
	r := m.Room(endedID)
	require.NoError(t, r.StartWithRoles(role.Villager, role.Werewolf))
	require.NoError(t, r.ForceSkip(ended[0]))
	require.Equal(t, PhaseEnded, r.Phase())

	lobbyID, _ := fillRoom(t, m, "l", 2)

	assert.Zero(t, m.Cleanup(clock.Now().Add(5*time.Minute)))
	assert.Equal(t, 1, m.Cleanup(clock.Now().Add(11*time.Minute)))
	assert.Nil(t, m.Room(endedID))
	assert.NotNil(t, m.Room(lobbyID))
	assert.Empty(t, m.RoomOf(ended[0]))
	assertIndexConsistent(t, m)
}

func TestManager_EndedRoomDoesNotBlockNewGame(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager(t)
	roomID, ids := fillRoom(t, m, "e", 2)
	r := m.Room(roomID)
	require.NoError(t, r.StartWithRoles(role.Villager, role.Werewolf))
	require.NoError(t, r.ForceSkip(ids[0]))
	require.Equal(t, PhaseEnded, r.Phase())

	newRoom, err := m.CreateRoom(ids[1], "again", nil)
	require.NoError(t, err)
	assert.Equal(t, newRoom, m.RoomOf(ids[1]))
}

func TestManager_StartCleanupStopsOnCancel(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.StartCleanup(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup loop did not stop")
	}
}

func TestManager_Adopt(t *testing.T) {
	t.Parallel()

	src := startedRoom(t, role.Villager, role.Villager, role.Villager, role.Werewolf)
	src.skip(t)
	restored, err := Restore(src.Snapshot(), role.Default())
	require.NoError(t, err)

	m, sched, _ := newTestManager(t)
	require.True(t, m.Adopt(restored))
	assert.False(t, m.Adopt(restored), "重复接管")

	for _, id := range src.PlayerIDs() {
		assert.Equal(t, restored.ID, m.RoomOf(id))
	}
	assert.Equal(t, PhaseDay, restored.Phase())
	assert.Equal(t, 1, sched.Pending(), "恢复后重新计时")
	require.NotNil(t, restored.Timer())
	assert.Equal(t, TimerPending, restored.Timer().State())

	require.True(t, sched.Fire())
	assert.Equal(t, PhaseVoting, restored.Phase())
	assertIndexConsistent(t, m)
}

func TestManager_IsolatedInstances(t *testing.T) {
	t.Parallel()

	m1, _, _ := newTestManager(t)
	m2, _, _ := newTestManager(t)
	roomID, err := m1.CreateRoom("a", "Alice", nil)
	require.NoError(t, err)

	assert.Nil(t, m2.Room(roomID))
	_, err = m2.CreateRoom("a", "Alice", nil)
	assert.NoError(t, err)
}
