package protocol

// --- 客户端请求 Payloads ---

// PingPayload 心跳请求
type PingPayload struct {
	Timestamp int64 `json:"timestamp"` // 客户端毫秒时间戳
}

// CreateRoomPayload 创建房间请求，零值字段使用服务端默认配置
type CreateRoomPayload struct {
	MinPlayers    int    `json:"min_players,omitempty"`
	MaxPlayers    int    `json:"max_players,omitempty"`
	NightSeconds  int    `json:"night_seconds,omitempty"`
	DaySeconds    int    `json:"day_seconds,omitempty"`
	VotingSeconds int    `json:"voting_seconds,omitempty"`
	StartingItems *bool  `json:"starting_items,omitempty"`
	RevealOnDeath *bool  `json:"reveal_on_death,omitempty"`
	Seed          uint64 `json:"seed,omitempty"`
}

// JoinRoomPayload 加入房间请求
type JoinRoomPayload struct {
	RoomID string `json:"room_id"`
}

// AbilityPayload 夜晚技能 / 触发技能请求
type AbilityPayload struct {
	AbilityID string   `json:"ability_id"`
	Targets   []string `json:"targets"`
}

// VotePayload 投票请求
type VotePayload struct {
	TargetID string `json:"target_id"`
}

// UseItemPayload 使用道具请求
type UseItemPayload struct {
	ItemID  string   `json:"item_id"`
	Targets []string `json:"targets"`
}

// ChatPayload 聊天请求
type ChatPayload struct {
	Channel string `json:"channel"` // all / werewolves / dead
	Text    string `json:"text"`
}

// ChatHistoryPayload 频道历史请求
type ChatHistoryPayload struct {
	Channel string `json:"channel"`
	Limit   int    `json:"limit"`
}

// GetLeaderboardPayload 获取排行榜请求
type GetLeaderboardPayload struct {
	Limit int `json:"limit"`
}

// --- 服务端响应 Payloads ---

// ConnectedPayload 连接成功响应
type ConnectedPayload struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	ConnID   string `json:"conn_id"`
}

// RoomCreatedPayload 房间创建成功
type RoomCreatedPayload struct {
	RoomID string `json:"room_id"`
}

// PongPayload 心跳响应
type PongPayload struct {
	ClientTimestamp int64 `json:"client_timestamp"`
	ServerTimestamp int64 `json:"server_timestamp"`
}

// RoomLeftPayload 离开房间
type RoomLeftPayload struct {
	RoomID string `json:"room_id"`
}

// ReadyToggledPayload 准备状态
type ReadyToggledPayload struct {
	Ready bool `json:"ready"`
}

// RoomListResultPayload 房间列表
type RoomListResultPayload struct {
	Rooms []RoomListItem `json:"rooms"`
}

// RoomListItem 房间列表项
type RoomListItem struct {
	RoomID      string `json:"room_id"`
	HostName    string `json:"host_name"`
	PlayerCount int    `json:"player_count"`
	MaxPlayers  int    `json:"max_players"`
}

// ErrorPayload 错误响应
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
