package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/werewolf/internal/game/room"
	"github.com/palemoky/werewolf/internal/protocol"
	"github.com/palemoky/werewolf/internal/storage"
	"github.com/palemoky/werewolf/internal/testutil"
)

func TestHub_RegisterReplacesOldSession(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	first := &testutil.SimpleSession{ID: "a"}
	second := &testutil.SimpleSession{ID: "a"}

	assert.Nil(t, hub.Register(first))
	assert.Same(t, first, hub.Register(second))
	assert.Equal(t, 1, hub.Count())

	// 旧连接断开不影响新连接
	assert.False(t, hub.Unregister(first))
	assert.True(t, hub.Send("a", protocol.MustNewMessage(protocol.MsgPong, nil)))
	assert.Len(t, second.Messages, 1)
	assert.Empty(t, first.Messages)

	assert.True(t, hub.Unregister(second))
	assert.False(t, hub.Send("a", protocol.MustNewMessage(protocol.MsgPong, nil)))
}

func TestHub_StateChangedTracksMembers(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	a := &testutil.SimpleSession{ID: "a"}
	b := &testutil.SimpleSession{ID: "b"}
	outsider := &testutil.SimpleSession{ID: "x"}
	hub.Register(a)
	hub.Register(b)
	hub.Register(outsider)

	hub.StateChanged("r1", map[string]*room.View{
		"a": {RoomID: "r1", Self: &room.PrivateView{UserID: "a"}},
		"b": {RoomID: "r1", Self: &room.PrivateView{UserID: "b"}},
	})
	assert.ElementsMatch(t, []string{"a", "b"}, hub.Members("r1"))

	// 每人只收到自己的视图
	view := payloadOf[room.View](t, a.Last())
	assert.Equal(t, "a", view.Self.UserID)
	view = payloadOf[room.View](t, b.Last())
	assert.Equal(t, "b", view.Self.UserID)

	hub.PhaseChanged(room.PhaseChange{RoomID: "r1", Phase: room.PhaseDay, Turn: 2})
	assert.Equal(t, protocol.MsgPhaseChanged, a.Last().Type)
	assert.Equal(t, protocol.MsgPhaseChanged, b.Last().Type)
	assert.Empty(t, outsider.Messages)

	hub.StateChanged("r1", map[string]*room.View{})
	assert.Empty(t, hub.Members("r1"))
}

func TestHub_ChatOnlyToRecipients(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	wolf := &testutil.SimpleSession{ID: "w"}
	villager := &testutil.SimpleSession{ID: "v"}
	hub.Register(wolf)
	hub.Register(villager)
	hub.StateChanged("r1", map[string]*room.View{"w": {}, "v": {}})
	wolf.Reset()
	villager.Reset()

	hub.ChatPosted("r1", room.ChatMessage{ID: 1, Channel: room.ChannelWerewolves, Text: "psst"}, []string{"w"})

	require.Len(t, wolf.OfType(protocol.MsgChatMessage), 1)
	assert.Empty(t, villager.Messages)
}

func TestHub_BroadcastsGameEvents(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	s := new(testutil.MockSession)
	s.On("UserID").Return("a")
	s.On("SendMessage", mock.MatchedBy(func(m *protocol.Message) bool { return m.Type == protocol.MsgRoomState })).Once()
	s.On("SendMessage", mock.MatchedBy(func(m *protocol.Message) bool { return m.Type == protocol.MsgDeathsOccurred })).Once()
	s.On("SendMessage", mock.MatchedBy(func(m *protocol.Message) bool { return m.Type == protocol.MsgVoteUpdate })).Once()
	s.On("SendMessage", mock.MatchedBy(func(m *protocol.Message) bool { return m.Type == protocol.MsgGameOver })).Once()

	hub.Register(s)
	hub.StateChanged("r1", map[string]*room.View{"a": {}})
	hub.DeathsOccurred("r1", []room.DeathRecord{{VictimID: "a", Cause: room.CauseVotedOut}})
	hub.VoteUpdated(room.VoteTally{RoomID: "r1", Counts: map[string]int{"a": 1}})
	hub.GameEnded(&storage.GameResult{RoomID: "r1", Winner: "villagers"})
	// 未知房间不推送
	hub.VoteUpdated(room.VoteTally{RoomID: "r2"})

	s.AssertExpectations(t)
}
