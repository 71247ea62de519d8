package apperrors

import (
	"errors"

	"github.com/palemoky/werewolf/internal/protocol"
)

// GameError 游戏错误（房间和管理器共享）
type GameError struct {
	Code    int
	Message string
}

func (e *GameError) Error() string {
	return e.Message
}

// 预定义错误
var (
	ErrAlreadyInGame    = newGameError(protocol.ErrCodeAlreadyInGame)
	ErrRoomNotFound     = newGameError(protocol.ErrCodeRoomNotFound)
	ErrRoomFull         = newGameError(protocol.ErrCodeRoomFull)
	ErrNotInRoom        = newGameError(protocol.ErrCodeNotInRoom)
	ErrGameStarted      = newGameError(protocol.ErrCodeGameStarted)
	ErrNotHost          = newGameError(protocol.ErrCodeNotHost)
	ErrTooFewPlayers    = newGameError(protocol.ErrCodeTooFewPlayers)
	ErrNotAllReady      = newGameError(protocol.ErrCodeNotAllReady)
	ErrWrongPhase       = newGameError(protocol.ErrCodeWrongPhase)
	ErrCannotAct        = newGameError(protocol.ErrCodeCannotAct)
	ErrInvalidAbility   = newGameError(protocol.ErrCodeInvalidAbility)
	ErrInvalidTargets   = newGameError(protocol.ErrCodeInvalidTargets)
	ErrInvalidTarget    = newGameError(protocol.ErrCodeInvalidTarget)
	ErrItemNotFound     = newGameError(protocol.ErrCodeItemNotFound)
	ErrChannelForbidden = newGameError(protocol.ErrCodeChannelForbidden)
	ErrInvalidMessage   = newGameError(protocol.ErrCodeInvalidMsg)
)

func newGameError(code int) *GameError {
	return &GameError{Code: code, Message: protocol.ErrorMessages[code]}
}

// CodeOf 返回错误对应的错误码，非 GameError 返回未知错误
func CodeOf(err error) int {
	var ge *GameError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return protocol.ErrCodeUnknown
}
