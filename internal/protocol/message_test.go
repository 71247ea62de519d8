package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_EncodeDecode(t *testing.T) {
	t.Parallel()

	msg := MustNewMessage(MsgVote, VotePayload{TargetID: "u2"})
	data, err := msg.Encode()
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, MsgVote, decoded.Type)

	payload, err := ParsePayload[VotePayload](decoded)
	require.NoError(t, err)
	assert.Equal(t, "u2", payload.TargetID)
}

func TestParsePayload_Empty(t *testing.T) {
	t.Parallel()

	msg := MustNewMessage(MsgPing, nil)
	assert.Empty(t, msg.Payload)

	payload, err := ParsePayload[JoinRoomPayload](msg)
	require.NoError(t, err)
	assert.Equal(t, "", payload.RoomID)
}

func TestParsePayload_Invalid(t *testing.T) {
	t.Parallel()

	msg := &Message{Type: MsgVote, Payload: []byte(`{"target_id":`)}
	_, err := ParsePayload[VotePayload](msg)
	assert.Error(t, err)

	_, err = Decode([]byte("not json"))
	assert.Error(t, err)
}

func TestNewErrorMessage(t *testing.T) {
	t.Parallel()

	msg := NewErrorMessage(ErrCodeRoomFull)
	assert.Equal(t, MsgError, msg.Type)

	payload, err := ParsePayload[ErrorPayload](msg)
	require.NoError(t, err)
	assert.Equal(t, ErrCodeRoomFull, payload.Code)
	assert.Equal(t, ErrorMessages[ErrCodeRoomFull], payload.Message)
}

func TestErrorMessages_Complete(t *testing.T) {
	t.Parallel()

	codes := []int{
		ErrCodeUnknown, ErrCodeInvalidMsg, ErrCodeRateLimit, ErrCodeServerMaintenance,
		ErrCodeRoomNotFound, ErrCodeRoomFull, ErrCodeNotInRoom, ErrCodeGameStarted,
		ErrCodeAlreadyInGame, ErrCodeNotHost, ErrCodeTooFewPlayers, ErrCodeNotAllReady,
		ErrCodeWrongPhase, ErrCodeCannotAct, ErrCodeInvalidAbility, ErrCodeInvalidTargets,
		ErrCodeInvalidTarget, ErrCodeItemNotFound, ErrCodeChannelForbidden,
	}
	for _, c := range codes {
		assert.NotEmpty(t, ErrorMessages[c], "code %d", c)
	}
}
