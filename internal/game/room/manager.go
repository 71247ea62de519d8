package room

import (
	"cmp"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/palemoky/werewolf/internal/apperrors"
	"github.com/palemoky/werewolf/internal/game/player"
	"github.com/palemoky/werewolf/internal/game/role"
	"github.com/palemoky/werewolf/internal/logger"
	"github.com/palemoky/werewolf/internal/protocol"
)

const defaultEndedRetention = 10 * time.Minute

// Manager 房间管理器。rooms 与 userRooms 只通过 Manager 的方法修改；
// 加锁顺序固定为先 Manager 后房间
type Manager struct {
	rooms     map[string]*GameRoom
	userRooms map[string]string // userID -> roomID
	mu        sync.RWMutex

	catalog        *role.Catalog
	defaults       Config
	scheduler      Scheduler
	listener       Listener
	now            func() time.Time
	endedRetention time.Duration
}

// Option 管理器选项
type Option func(*Manager)

// WithScheduler 替换阶段计时器的调度器
func WithScheduler(s Scheduler) Option {
	return func(m *Manager) { m.scheduler = s }
}

// WithListener 设置房间事件监听者
func WithListener(l Listener) Option {
	return func(m *Manager) { m.listener = l }
}

// WithClock 替换时钟
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithCatalog 替换角色目录
func WithCatalog(c *role.Catalog) Option {
	return func(m *Manager) { m.catalog = c }
}

// WithEndedRetention 已结束房间的保留时长
func WithEndedRetention(d time.Duration) Option {
	return func(m *Manager) { m.endedRetention = d }
}

// NewManager 创建房间管理器，defaults 为新房间的默认配置
func NewManager(defaults Config, opts ...Option) *Manager {
	m := &Manager{
		rooms:          make(map[string]*GameRoom),
		userRooms:      make(map[string]string),
		catalog:        role.Default(),
		defaults:       defaults,
		scheduler:      AfterFuncScheduler{},
		listener:       NopListener{},
		now:            time.Now,
		endedRetention: defaultEndedRetention,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Catalog 管理器使用的角色目录
func (m *Manager) Catalog() *role.Catalog {
	return m.catalog
}

// Defaults 新建房间使用的默认配置
func (m *Manager) Defaults() Config {
	return m.defaults
}

func (m *Manager) deps() roomDeps {
	return roomDeps{catalog: m.catalog, scheduler: m.scheduler, listener: m.listener, now: m.now}
}

// mergeConfig 以默认配置为基础，覆盖调用方给出的非零字段
func (m *Manager) mergeConfig(override *Config) Config {
	cfg := m.defaults
	if override == nil {
		return cfg
	}
	if override.MinPlayers > 0 {
		cfg.MinPlayers = override.MinPlayers
	}
	if override.MaxPlayers > 0 {
		cfg.MaxPlayers = override.MaxPlayers
	}
	if cfg.MaxPlayers < cfg.MinPlayers {
		cfg.MaxPlayers = cfg.MinPlayers
	}
	if override.NightDuration > 0 {
		cfg.NightDuration = override.NightDuration
	}
	if override.DayDuration > 0 {
		cfg.DayDuration = override.DayDuration
	}
	if override.VotingDuration > 0 {
		cfg.VotingDuration = override.VotingDuration
	}
	cfg.Features = override.Features
	if override.Seed != 0 {
		cfg.Seed = override.Seed
	}
	return cfg
}

// detachLocked 用户加入新房间前解除与旧房间的关系。
// 旧房间在大厅中时自动离开，已结束时只解除索引，进行中返回 ErrAlreadyInGame
func (m *Manager) detachLocked(userID string) error {
	roomID, ok := m.userRooms[userID]
	if !ok {
		return nil
	}
	r, ok := m.rooms[roomID]
	if !ok {
		delete(m.userRooms, userID)
		return nil
	}

	r.mu.Lock()
	if r.inProgress() {
		r.mu.Unlock()
		return apperrors.ErrAlreadyInGame
	}
	_, empty := r.leave(userID)
	r.mu.Unlock()

	delete(m.userRooms, userID)
	if empty {
		m.deleteRoomLocked(roomID)
	}
	return nil
}

func (m *Manager) deleteRoomLocked(roomID string) {
	r, ok := m.rooms[roomID]
	if !ok {
		return
	}
	delete(m.rooms, roomID)
	r.Stop()
	for uid, rid := range m.userRooms {
		if rid == roomID {
			delete(m.userRooms, uid)
		}
	}
	logger.LogInfo("🏠 房间 %s 已解散", roomID)
}

// CreateRoom 创建房间，创建者成为房主。cfg 为 nil 时使用默认配置
func (m *Manager) CreateRoom(hostID, hostName string, cfg *Config) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.detachLocked(hostID); err != nil {
		return "", err
	}

	code := m.generateRoomCode()
	r := newGameRoom(code, hostID, m.mergeConfig(cfg), m.deps())
	m.rooms[code] = r

	r.mu.Lock()
	_, err := r.addPlayer(hostID, hostName)
	r.mu.Unlock()
	if err != nil {
		delete(m.rooms, code)
		return "", err
	}
	m.userRooms[hostID] = code

	logger.LogInfo("🏠 房间 %s 已创建，房主 %s", code, hostName)
	return code, nil
}

// JoinRoom 加入房间。已经在该房间中的玩家视为重连
func (m *Manager) JoinRoom(roomID, userID, username string) (*View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return nil, apperrors.ErrRoomNotFound
	}

	if m.userRooms[userID] == roomID {
		r.mu.Lock()
		if r.reconnect(userID, username) {
			v := r.view(userID)
			r.mu.Unlock()
			return v, nil
		}
		r.mu.Unlock()
		delete(m.userRooms, userID)
	}

	// 先检查目标房间，避免离开了旧房间却加不进新房间
	r.mu.Lock()
	err := r.joinable()
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if err := m.detachLocked(userID); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.addPlayer(userID, username); err != nil {
		return nil, err
	}
	m.userRooms[userID] = roomID
	return r.view(userID), nil
}

// LeaveRoom 离开房间。开局前移除玩家（房间空了就删除），游戏中只断开连接
func (m *Manager) LeaveRoom(userID, roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if roomID == "" {
		roomID = m.userRooms[userID]
	}
	r, ok := m.rooms[roomID]
	if !ok {
		return
	}

	r.mu.Lock()
	outcome, empty := r.leave(userID)
	r.mu.Unlock()

	if outcome != leaveDisconnected && m.userRooms[userID] == roomID {
		delete(m.userRooms, userID)
	}
	if empty {
		m.deleteRoomLocked(roomID)
	}
}

// Disconnect 连接断开时调用：大厅中视为离开，游戏中保留玩家等待重连
func (m *Manager) Disconnect(userID string) {
	m.LeaveRoom(userID, "")
}

// lookup 查找房间
func (m *Manager) lookup(roomID string) (*GameRoom, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return nil, apperrors.ErrRoomNotFound
	}
	return r, nil
}

// roomOfUser 通过索引查找用户所在房间
func (m *Manager) roomOfUser(userID string) (*GameRoom, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	roomID, ok := m.userRooms[userID]
	if !ok {
		return nil, apperrors.ErrNotInRoom
	}
	r, ok := m.rooms[roomID]
	if !ok {
		return nil, apperrors.ErrRoomNotFound
	}
	return r, nil
}

// ToggleReady 切换准备状态
func (m *Manager) ToggleReady(userID, roomID string) (bool, error) {
	r, err := m.lookup(roomID)
	if err != nil {
		return false, err
	}
	return r.ToggleReady(userID)
}

// StartGame 房主开始游戏
func (m *Manager) StartGame(roomID, userID string) error {
	r, err := m.lookup(roomID)
	if err != nil {
		return err
	}
	return r.StartGame(userID)
}

// RegisterNightAction 登记夜晚行动
func (m *Manager) RegisterNightAction(roomID, userID, abilityID string, targets []string) error {
	r, err := m.lookup(roomID)
	if err != nil {
		return err
	}
	return r.RegisterNightAction(userID, abilityID, targets)
}

// RegisterVote 白天投票
func (m *Manager) RegisterVote(roomID, userID, targetID string) (VoteTally, error) {
	r, err := m.lookup(roomID)
	if err != nil {
		return VoteTally{}, err
	}
	return r.RegisterVote(userID, targetID)
}

// TriggerAbility 死亡后发动触发技能
func (m *Manager) TriggerAbility(roomID, userID, abilityID string, targets []string) (ActionRecord, error) {
	r, err := m.lookup(roomID)
	if err != nil {
		return ActionRecord{}, err
	}
	return r.TriggerAbility(userID, abilityID, targets)
}

// UseItem 使用道具，房间由用户索引确定
func (m *Manager) UseItem(userID, itemID string, targets []string) (player.Item, error) {
	r, err := m.roomOfUser(userID)
	if err != nil {
		return player.Item{}, err
	}
	return r.UseItem(userID, itemID, targets)
}

// ForceSkip 房主跳过当前阶段
func (m *Manager) ForceSkip(roomID, userID string) error {
	r, err := m.lookup(roomID)
	if err != nil {
		return err
	}
	return r.ForceSkip(userID)
}

// PostChat 发送聊天消息
func (m *Manager) PostChat(roomID, userID string, ch Channel, text string) (ChatMessage, error) {
	r, err := m.lookup(roomID)
	if err != nil {
		return ChatMessage{}, err
	}
	return r.PostChat(userID, ch, text)
}

// ReadChat 读取频道历史
func (m *Manager) ReadChat(roomID, userID string, ch Channel, limit int) ([]ChatMessage, error) {
	r, err := m.lookup(roomID)
	if err != nil {
		return nil, err
	}
	return r.ReadChat(userID, ch, limit)
}

// GetRoomState 获取 userID 视角的房间视图
func (m *Manager) GetRoomState(roomID, userID string) (*View, error) {
	r, err := m.lookup(roomID)
	if err != nil {
		return nil, err
	}
	return r.GetState(userID)
}

// QuickMatch 快速匹配：加入人数最多的可加入房间，没有则新建
func (m *Manager) QuickMatch(userID, username string) (string, error) {
	if current := m.Room(m.RoomOf(userID)); current != nil && current.Phase() == PhaseLobby {
		return current.ID, nil
	}
	for _, item := range m.ListOpenRooms() {
		if _, err := m.JoinRoom(item.RoomID, userID, username); err == nil {
			return item.RoomID, nil
		} else if apperrors.CodeOf(err) == protocol.ErrCodeAlreadyInGame {
			return "", err
		}
	}
	return m.CreateRoom(userID, username, nil)
}

// ListOpenRooms 可加入的房间，人数多的在前，人数相同按房间号排序
func (m *Manager) ListOpenRooms() []protocol.RoomListItem {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var rooms []protocol.RoomListItem
	for id, r := range m.rooms {
		r.mu.Lock()
		if r.joinable() == nil {
			item := protocol.RoomListItem{
				RoomID:      id,
				PlayerCount: len(r.order),
				MaxPlayers:  r.Config.MaxPlayers,
			}
			if host, ok := r.players[r.HostID]; ok {
				item.HostName = host.Username
			}
			rooms = append(rooms, item)
		}
		r.mu.Unlock()
	}
	slices.SortFunc(rooms, func(a, b protocol.RoomListItem) int {
		if c := cmp.Compare(b.PlayerCount, a.PlayerCount); c != 0 {
			return c
		}
		return cmp.Compare(a.RoomID, b.RoomID)
	})
	return rooms
}

// RoomOf 用户所在房间号，不在房间中时为空
func (m *Manager) RoomOf(userID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.userRooms[userID]
}

// Room 按房间号获取房间
func (m *Manager) Room(roomID string) *GameRoom {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rooms[roomID]
}

// RoomCount 房间总数
func (m *Manager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// ActiveRooms 已开局且未结束的房间
func (m *Manager) ActiveRooms() []*GameRoom {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*GameRoom
	for _, r := range m.rooms {
		r.mu.Lock()
		active := r.inProgress()
		r.mu.Unlock()
		if active {
			out = append(out, r)
		}
	}
	return out
}

// generateRoomCode 生成房间号，调用方持有写锁
func (m *Manager) generateRoomCode() string {
	for {
		code := make([]byte, roomCodeLength)
		for i := range code {
			code[i] = roomCodeChars[rand.IntN(len(roomCodeChars))]
		}
		codeStr := string(code)
		if _, exists := m.rooms[codeStr]; !exists {
			return codeStr
		}
	}
}
