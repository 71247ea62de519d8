package protocol

import "encoding/json"

// Message 基础消息结构
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MessageType 消息类型
type MessageType string

// 客户端 → 服务端 消息类型
const (
	MsgPing MessageType = "ping" // 心跳 ping

	// 房间操作
	MsgCreateRoom  MessageType = "create_room"  // 创建房间
	MsgJoinRoom    MessageType = "join_room"    // 加入房间
	MsgLeaveRoom   MessageType = "leave_room"   // 离开房间
	MsgQuickMatch  MessageType = "quick_match"  // 快速匹配
	MsgToggleReady MessageType = "toggle_ready" // 切换准备状态
	MsgStartGame   MessageType = "start_game"   // 房主开始游戏

	// 游戏操作
	MsgNightAction    MessageType = "night_action"    // 夜晚技能
	MsgTriggerAbility MessageType = "trigger_ability" // 触发技能（猎人）
	MsgVote           MessageType = "vote"            // 白天投票
	MsgUseItem        MessageType = "use_item"        // 使用道具
	MsgForceSkip      MessageType = "force_skip"      // 房主跳过当前阶段
	MsgChat           MessageType = "chat"            // 聊天
	MsgChatHistory    MessageType = "chat_history"    // 获取频道历史

	// 查询
	MsgGetRoomState   MessageType = "get_room_state"  // 获取房间状态
	MsgGetRoomList    MessageType = "get_room_list"   // 获取房间列表
	MsgGetStats       MessageType = "get_stats"       // 获取个人统计
	MsgGetLeaderboard MessageType = "get_leaderboard" // 获取排行榜
)

// 服务端 → 客户端 消息类型
const (
	MsgConnected MessageType = "connected" // 连接成功
	MsgPong      MessageType = "pong"      // 心跳 pong

	MsgRoomCreated    MessageType = "room_created"     // 房间创建成功
	MsgRoomJoined     MessageType = "room_joined"      // 加入房间成功
	MsgRoomLeft       MessageType = "room_left"        // 离开房间
	MsgReadyToggled   MessageType = "ready_toggled"    // 准备状态已切换
	MsgActionAck      MessageType = "action_ack"       // 行动已登记
	MsgItemUsed       MessageType = "item_used"        // 道具已使用
	MsgChatHistoryRes MessageType = "chat_history_res" // 频道历史
	MsgRoomListResult MessageType = "room_list_result" // 房间列表

	// 推送事件
	MsgRoomState      MessageType = "room_state"      // 房间状态刷新
	MsgPhaseChanged   MessageType = "phase_changed"   // 阶段变化
	MsgDeathsOccurred MessageType = "deaths_occurred" // 死亡公告
	MsgVoteUpdate     MessageType = "vote_update"     // 投票实时统计
	MsgChatMessage    MessageType = "chat_message"    // 聊天消息
	MsgGameOver       MessageType = "game_over"       // 游戏结束

	MsgStatsResult       MessageType = "stats_result"       // 个人统计结果
	MsgLeaderboardResult MessageType = "leaderboard_result" // 排行榜结果

	MsgError MessageType = "error" // 错误消息
)

// NewMessage 创建一个新消息
func NewMessage(msgType MessageType, payload any) (*Message, error) {
	var data json.RawMessage
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return &Message{
		Type:    msgType,
		Payload: data,
	}, nil
}

// MustNewMessage 创建消息，失败时 panic
func MustNewMessage(msgType MessageType, payload any) *Message {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		panic(err)
	}
	return msg
}

// Encode 将消息编码为 JSON 字节
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode 从 JSON 字节解码消息
func Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ParsePayload 解析消息的 Payload 到指定类型
func ParsePayload[T any](msg *Message) (*T, error) {
	var payload T
	if len(msg.Payload) == 0 {
		return &payload, nil
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// NewErrorMessage 创建错误消息
func NewErrorMessage(code int) *Message {
	return NewErrorMessageWithText(code, ErrorMessages[code])
}

// NewErrorMessageWithText 创建带自定义文本的错误消息
func NewErrorMessageWithText(code int, text string) *Message {
	msg, _ := NewMessage(MsgError, ErrorPayload{
		Code:    code,
		Message: text,
	})
	return msg
}
