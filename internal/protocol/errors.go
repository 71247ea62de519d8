package protocol

// 错误码
const (
	ErrCodeUnknown           = 1000
	ErrCodeInvalidMsg        = 1001
	ErrCodeRateLimit         = 1002 // 速率限制
	ErrCodeServerMaintenance = 1003

	// 房间
	ErrCodeRoomNotFound  = 2001
	ErrCodeRoomFull      = 2002
	ErrCodeNotInRoom     = 2003
	ErrCodeGameStarted   = 2004 // 游戏已开始
	ErrCodeAlreadyInGame = 2005 // 已在其他进行中的游戏
	ErrCodeNotHost       = 2006
	ErrCodeTooFewPlayers = 2007
	ErrCodeNotAllReady   = 2008

	// 游戏
	ErrCodeWrongPhase       = 3001
	ErrCodeCannotAct        = 3002
	ErrCodeInvalidAbility   = 3003
	ErrCodeInvalidTargets   = 3004
	ErrCodeInvalidTarget    = 3005
	ErrCodeItemNotFound     = 3006
	ErrCodeChannelForbidden = 3007
)

// ErrorMessages 错误码对应的消息
var ErrorMessages = map[int]string{
	ErrCodeUnknown:           "未知错误",
	ErrCodeInvalidMsg:        "无效的消息格式",
	ErrCodeRateLimit:         "请求过于频繁",
	ErrCodeServerMaintenance: "服务器维护中",
	ErrCodeRoomNotFound:      "房间不存在",
	ErrCodeRoomFull:          "房间已满",
	ErrCodeNotInRoom:         "您不在房间中",
	ErrCodeGameStarted:       "游戏已开始",
	ErrCodeAlreadyInGame:     "您已在进行中的游戏里",
	ErrCodeNotHost:           "只有房主可以执行该操作",
	ErrCodeTooFewPlayers:     "玩家人数不足",
	ErrCodeNotAllReady:       "还有玩家未准备",
	ErrCodeWrongPhase:        "当前阶段不能执行该操作",
	ErrCodeCannotAct:         "您当前无法行动",
	ErrCodeInvalidAbility:    "无效的技能",
	ErrCodeInvalidTargets:    "无效的目标",
	ErrCodeInvalidTarget:     "无效的投票目标",
	ErrCodeItemNotFound:      "道具不存在",
	ErrCodeChannelForbidden:  "您无权使用该频道",
}
