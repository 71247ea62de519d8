package room

import (
	"github.com/google/uuid"

	"github.com/palemoky/werewolf/internal/apperrors"
	"github.com/palemoky/werewolf/internal/game/player"
	"github.com/palemoky/werewolf/internal/game/role"
	"github.com/palemoky/werewolf/internal/logger"
)

// leaveOutcome 离开房间的结果
type leaveOutcome int

const (
	leaveRemoved      leaveOutcome = iota // 开局前离开，玩家被移除
	leaveDisconnected                     // 游戏中离开，只断开连接
	leaveDetached                         // 已结束的房间，只解除索引
)

// joinable 检查是否还能加入，调用方持有锁
func (r *GameRoom) joinable() error {
	if r.phase != PhaseLobby {
		return apperrors.ErrGameStarted
	}
	if len(r.order) >= r.Config.MaxPlayers {
		return apperrors.ErrRoomFull
	}
	return nil
}

// addPlayer 加入大厅
func (r *GameRoom) addPlayer(userID, username string) (*player.Player, error) {
	if err := r.joinable(); err != nil {
		return nil, err
	}
	p := player.New(userID, username)
	if len(r.order) == 0 {
		r.HostID = userID
	}
	p.IsHost = userID == r.HostID
	r.players[userID] = p
	r.order = append(r.order, userID)
	r.touch()

	logger.LogInfo("👤 玩家 %s 加入房间 %s (%d/%d)", username, r.ID, len(r.order), r.Config.MaxPlayers)
	r.notifyState()
	return p, nil
}

// leave 玩家离开房间
func (r *GameRoom) leave(userID string) (leaveOutcome, bool) {
	p, ok := r.players[userID]
	if !ok {
		return leaveDetached, len(r.order) == 0
	}

	switch {
	case r.phase == PhaseLobby:
		delete(r.players, userID)
		for i, id := range r.order {
			if id == userID {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
		logger.LogInfo("👋 玩家 %s 离开房间 %s", p.Username, r.ID)
		if len(r.order) == 0 {
			return leaveRemoved, true
		}
		if r.HostID == userID {
			r.transferHost(userID)
		}
		r.touch()
		r.notifyState()
		return leaveRemoved, false

	case r.phase == PhaseEnded:
		p.Connected = false
		return leaveDetached, false

	default:
		p.Connected = false
		logger.LogInfo("📴 玩家 %s 在房间 %s 中断开连接", p.Username, r.ID)
		if r.HostID == userID {
			r.transferHost(userID)
		}
		r.notifyState()
		return leaveDisconnected, false
	}
}

// transferHost 房主转让给下一个在线玩家（按加入顺序），都不在线时取第一个
func (r *GameRoom) transferHost(from string) {
	next := ""
	for _, id := range r.order {
		if id == from {
			continue
		}
		if r.players[id].Connected {
			next = id
			break
		}
		if next == "" {
			next = id
		}
	}
	if next == "" {
		return
	}
	if old, ok := r.players[from]; ok {
		old.IsHost = false
	}
	r.HostID = next
	r.players[next].IsHost = true
	logger.LogInfo("👑 房间 %s 房主转让给 %s", r.ID, r.players[next].Username)
}

// reconnect 重新连接进行中的游戏
func (r *GameRoom) reconnect(userID, username string) bool {
	p, ok := r.players[userID]
	if !ok {
		return false
	}
	p.Connected = true
	if username != "" {
		p.Username = username
	}
	logger.LogInfo("📶 玩家 %s 重连到房间 %s", p.Username, r.ID)
	r.notifyState()
	return true
}

// ToggleReady 切换准备状态
func (r *GameRoom) ToggleReady(userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != PhaseLobby {
		return false, apperrors.ErrGameStarted
	}
	p, ok := r.players[userID]
	if !ok {
		return false, apperrors.ErrNotInRoom
	}
	p.Ready = !p.Ready
	r.touch()
	r.notifyState()
	return p.Ready, nil
}

// checkAllReady 除房主外所有人都已准备
func (r *GameRoom) checkAllReady() bool {
	for _, id := range r.order {
		if id == r.HostID {
			continue
		}
		if !r.players[id].Ready {
			return false
		}
	}
	return true
}

// StartGame 房主开始游戏：分配角色并进入第一个夜晚
func (r *GameRoom) StartGame(userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != PhaseLobby {
		return apperrors.ErrGameStarted
	}
	if _, ok := r.players[userID]; !ok {
		return apperrors.ErrNotInRoom
	}
	if userID != r.HostID {
		return apperrors.ErrNotHost
	}
	if len(r.order) < r.Config.MinPlayers {
		return apperrors.ErrTooFewPlayers
	}
	if !r.checkAllReady() {
		return apperrors.ErrNotAllReady
	}

	roles := r.catalog.GenerateDistribution(len(r.order), r.rng)
	r.rng.Shuffle(len(roles), func(i, j int) { roles[i], roles[j] = roles[j], roles[i] })
	r.begin(roles)
	return nil
}

// begin 按加入顺序分配角色并进入第一个夜晚
func (r *GameRoom) begin(roles []*role.Role) {
	for i, id := range r.order {
		p := r.players[id]
		p.AssignRole(roles[i])
		p.Ready = true
		if r.Config.Features.StartingItems {
			for _, it := range r.catalog.Items() {
				p.GiveItem(it.ID, it.Uses)
			}
		}
	}

	r.GameID = uuid.NewString()
	r.startedAt = r.now()
	r.turn = 1
	r.winner = ""
	r.neutralWinners = nil

	logger.LogInfo("🎮 房间 %s 开始游戏，%d 名玩家", r.ID, len(r.order))
	r.enterPhase(PhaseNight)
}
