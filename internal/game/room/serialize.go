package room

import (
	"fmt"
	"slices"
	"time"

	"github.com/palemoky/werewolf/internal/game/player"
	"github.com/palemoky/werewolf/internal/game/role"
	"github.com/palemoky/werewolf/internal/storage"
)

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Snapshot 生成房间快照
func (r *GameRoom) Snapshot() *storage.RoomSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.toSnapshot()
}

func (r *GameRoom) toSnapshot() *storage.RoomSnapshot {
	snap := &storage.RoomSnapshot{
		Version: storage.SnapshotVersion,
		RoomID:  r.ID,
		GameID:  r.GameID,
		HostID:  r.HostID,
		Config: storage.ConfigData{
			MinPlayers:    r.Config.MinPlayers,
			MaxPlayers:    r.Config.MaxPlayers,
			NightMillis:   r.Config.NightDuration.Milliseconds(),
			DayMillis:     r.Config.DayDuration.Milliseconds(),
			VotingMillis:  r.Config.VotingDuration.Milliseconds(),
			StartingItems: r.Config.Features.StartingItems,
			RevealOnDeath: r.Config.Features.RevealOnDeath,
			Seed:          r.Config.Seed,
		},
		Phase:          string(r.phase),
		Turn:           r.turn,
		Resolution:     r.resolution,
		CreatedAt:      toMillis(r.createdAt),
		StartedAt:      toMillis(r.startedAt),
		EndedAt:        toMillis(r.endedAt),
		PhaseStartedAt: toMillis(r.phaseStartedAt),
		LastActionAt:   toMillis(r.lastActionAt),
		Players:        make([]storage.PlayerData, 0, len(r.order)),
		ActionSeq:      r.actionSeq,
		ChatSeq:        r.chatSeq,
		Winner:         string(r.winner),
		NeutralWinners: append([]string(nil), r.neutralWinners...),
		Active:         r.isStarted() && r.phase != PhaseEnded,
	}

	for _, id := range r.order {
		snap.Players = append(snap.Players, playerToData(r.players[id]))
	}

	for _, pa := range r.collectPending() {
		snap.PendingActions = append(snap.PendingActions, storage.PendingActionData{
			UserID:    pa.UserID,
			AbilityID: pa.AbilityID,
			Targets:   append([]string(nil), pa.Targets...),
			Seq:       pa.Seq,
			At:        toMillis(pa.At),
		})
	}
	if len(r.pendingVotes) > 0 {
		snap.PendingVotes = make(map[string]string, len(r.pendingVotes))
		for k, v := range r.pendingVotes {
			snap.PendingVotes[k] = v
		}
	}

	for _, a := range r.actions {
		snap.Actions = append(snap.Actions, storage.ActionData{
			Turn:      a.Turn,
			Phase:     string(a.Phase),
			ActorID:   a.ActorID,
			AbilityID: a.AbilityID,
			ItemID:    a.ItemID,
			Targets:   append([]string(nil), a.Targets...),
			Success:   a.Success,
			Result:    a.Result,
			At:        toMillis(a.At),
		})
	}
	for _, d := range r.deaths {
		snap.Deaths = append(snap.Deaths, storage.DeathData{
			VictimID:  d.VictimID,
			Turn:      d.Turn,
			Phase:     string(d.Phase),
			Cause:     d.Cause,
			KillerIDs: append([]string(nil), d.KillerIDs...),
			At:        toMillis(d.At),
		})
	}

	if len(r.chat) > 0 {
		snap.Chat = make(map[string][]storage.ChatData, len(r.chat))
		for ch, msgs := range r.chat {
			out := make([]storage.ChatData, 0, len(msgs))
			for _, m := range msgs {
				out = append(out, storage.ChatData{
					ID:       m.ID,
					Channel:  string(m.Channel),
					UserID:   m.UserID,
					Username: m.Username,
					Text:     m.Text,
					At:       toMillis(m.SentAt),
				})
			}
			snap.Chat[string(ch)] = out
		}
	}
	if len(r.triggerWindows) > 0 {
		snap.TriggerWindows = make(map[string]int, len(r.triggerWindows))
		for k, v := range r.triggerWindows {
			snap.TriggerWindows[k] = v
		}
	}
	return snap
}

// collectPending 按登记顺序返回待结算行动
func (r *GameRoom) collectPending() []*PendingAction {
	out := make([]*PendingAction, 0, len(r.pendingActions))
	for _, pa := range r.pendingActions {
		out = append(out, pa)
	}
	slices.SortFunc(out, func(a, b *PendingAction) int { return a.Seq - b.Seq })
	return out
}

func playerToData(p *player.Player) storage.PlayerData {
	d := storage.PlayerData{
		UserID:    p.UserID,
		Username:  p.Username,
		Team:      string(p.Team),
		Alive:     p.Alive,
		Lives:     p.Lives,
		Armor:     p.Armor,
		Protected: p.Protected,
		Silenced:  p.Silenced,
		IsHost:    p.IsHost,
		Ready:     p.Ready,
		Connected: p.Connected,
		Actions:   p.Counters.Actions,
		Votes:     p.Counters.Votes,
		ItemsUsed: p.Counters.ItemsUsed,
	}
	if p.Role != nil {
		d.RoleID = p.Role.ID
	}
	for _, e := range p.Effects {
		d.Effects = append(d.Effects, storage.EffectData{Type: string(e.Type), Remaining: e.Remaining, Source: e.Source})
	}
	for _, it := range p.Items {
		d.Items = append(d.Items, storage.ItemData{ID: it.ID, Uses: it.Uses})
	}
	d.AbilityUses = copyCounts(p.AbilityUses)
	d.PhaseUses = copyCounts(p.PhaseUses)
	return d
}

func copyCounts(m map[string]int) map[string]int {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Restore 由快照重建房间。角色行为通过 catalog 按 ID 重新挂载；
// 计时器不恢复，调用方需要通过 Manager.Adopt 接管后再 Resume
func Restore(snap *storage.RoomSnapshot, catalog *role.Catalog) (*GameRoom, error) {
	if snap == nil {
		return nil, fmt.Errorf("%w: nil snapshot", storage.ErrCorruptSnapshot)
	}
	phase := Phase(snap.Phase)
	if !phase.Valid() {
		return nil, fmt.Errorf("%w: unknown phase %q", storage.ErrCorruptSnapshot, snap.Phase)
	}

	r := &GameRoom{
		ID:     snap.RoomID,
		GameID: snap.GameID,
		HostID: snap.HostID,
		Config: Config{
			MinPlayers:     snap.Config.MinPlayers,
			MaxPlayers:     snap.Config.MaxPlayers,
			NightDuration:  time.Duration(snap.Config.NightMillis) * time.Millisecond,
			DayDuration:    time.Duration(snap.Config.DayMillis) * time.Millisecond,
			VotingDuration: time.Duration(snap.Config.VotingMillis) * time.Millisecond,
			Features: Features{
				StartingItems: snap.Config.StartingItems,
				RevealOnDeath: snap.Config.RevealOnDeath,
			},
			Seed: snap.Config.Seed,
		},
		phase:          phase,
		turn:           snap.Turn,
		resolution:     snap.Resolution,
		createdAt:      fromMillis(snap.CreatedAt),
		startedAt:      fromMillis(snap.StartedAt),
		endedAt:        fromMillis(snap.EndedAt),
		phaseStartedAt: fromMillis(snap.PhaseStartedAt),
		lastActionAt:   fromMillis(snap.LastActionAt),
		players:        make(map[string]*player.Player, len(snap.Players)),
		order:          make([]string, 0, len(snap.Players)),
		pendingActions: make(map[string]*PendingAction, len(snap.PendingActions)),
		pendingVotes:   make(map[string]string, len(snap.PendingVotes)),
		actionSeq:      snap.ActionSeq,
		chat:           make(map[Channel][]ChatMessage, len(snap.Chat)),
		chatSeq:        snap.ChatSeq,
		triggerWindows: make(map[string]int, len(snap.TriggerWindows)),
		winner:         role.Team(snap.Winner),
		neutralWinners: append([]string(nil), snap.NeutralWinners...),
	}
	r.attach(roomDeps{catalog: catalog, now: time.Now})
	r.rng = newRNG(snap.Config.Seed, time.Now())

	for _, pd := range snap.Players {
		p, err := playerFromData(pd, catalog, phase != PhaseLobby)
		if err != nil {
			return nil, err
		}
		if _, dup := r.players[p.UserID]; dup {
			return nil, fmt.Errorf("%w: duplicate player %s", storage.ErrCorruptSnapshot, p.UserID)
		}
		r.players[p.UserID] = p
		r.order = append(r.order, p.UserID)
	}
	if _, ok := r.players[r.HostID]; !ok {
		return nil, fmt.Errorf("%w: host %s not in room", storage.ErrCorruptSnapshot, r.HostID)
	}

	for _, pa := range snap.PendingActions {
		if err := r.checkPendingAction(pa); err != nil {
			return nil, err
		}
		r.pendingActions[pa.UserID] = &PendingAction{
			UserID:    pa.UserID,
			AbilityID: pa.AbilityID,
			Targets:   append([]string(nil), pa.Targets...),
			Seq:       pa.Seq,
			At:        fromMillis(pa.At),
		}
	}
	for k, v := range snap.PendingVotes {
		_, voter := r.players[k]
		_, target := r.players[v]
		if !voter || !target {
			return nil, fmt.Errorf("%w: vote %s -> %s references unknown player", storage.ErrCorruptSnapshot, k, v)
		}
		r.pendingVotes[k] = v
	}
	for _, a := range snap.Actions {
		r.actions = append(r.actions, ActionRecord{
			Turn:      a.Turn,
			Phase:     Phase(a.Phase),
			ActorID:   a.ActorID,
			AbilityID: a.AbilityID,
			ItemID:    a.ItemID,
			Targets:   append([]string(nil), a.Targets...),
			Success:   a.Success,
			Result:    a.Result,
			At:        fromMillis(a.At),
		})
	}
	for _, d := range snap.Deaths {
		r.deaths = append(r.deaths, DeathRecord{
			VictimID:  d.VictimID,
			Turn:      d.Turn,
			Phase:     Phase(d.Phase),
			Cause:     d.Cause,
			KillerIDs: append([]string(nil), d.KillerIDs...),
			At:        fromMillis(d.At),
		})
	}
	for ch, msgs := range snap.Chat {
		for _, m := range msgs {
			r.chat[Channel(ch)] = append(r.chat[Channel(ch)], ChatMessage{
				ID:       m.ID,
				Channel:  Channel(m.Channel),
				UserID:   m.UserID,
				Username: m.Username,
				Text:     m.Text,
				SentAt:   fromMillis(m.At),
			})
		}
	}
	for k, v := range snap.TriggerWindows {
		r.triggerWindows[k] = v
	}
	return r, nil
}

// checkPendingAction 待结算行动必须能在当前房间中重新挂载到技能上
func (r *GameRoom) checkPendingAction(pa storage.PendingActionData) error {
	p, ok := r.players[pa.UserID]
	if !ok || p.Role == nil {
		return fmt.Errorf("%w: pending action of unknown player %s", storage.ErrCorruptSnapshot, pa.UserID)
	}
	a, ok := p.Role.Ability(pa.AbilityID)
	if !ok {
		return fmt.Errorf("%w: role %s has no ability %q", storage.ErrCorruptSnapshot, p.Role.ID, pa.AbilityID)
	}
	if !targetCountOK(a, len(pa.Targets)) {
		return fmt.Errorf("%w: ability %s with %d targets", storage.ErrCorruptSnapshot, a.ID, len(pa.Targets))
	}
	for _, id := range pa.Targets {
		if _, ok := r.players[id]; !ok {
			return fmt.Errorf("%w: pending action targets unknown player %s", storage.ErrCorruptSnapshot, id)
		}
	}
	return nil
}

func playerFromData(pd storage.PlayerData, catalog *role.Catalog, started bool) (*player.Player, error) {
	if pd.UserID == "" {
		return nil, fmt.Errorf("%w: player without id", storage.ErrCorruptSnapshot)
	}
	p := player.New(pd.UserID, pd.Username)
	if pd.RoleID != "" {
		r, ok := catalog.Get(pd.RoleID)
		if !ok {
			return nil, fmt.Errorf("%w: unknown role %q", storage.ErrCorruptSnapshot, pd.RoleID)
		}
		p.Role = r
	} else if started {
		return nil, fmt.Errorf("%w: player %s has no role", storage.ErrCorruptSnapshot, pd.UserID)
	}

	p.Team = role.Team(pd.Team)
	p.Lives = max(0, pd.Lives)
	p.Alive = p.Lives > 0
	p.Armor = pd.Armor
	p.Protected = pd.Protected
	p.Silenced = pd.Silenced
	p.IsHost = pd.IsHost
	p.Ready = pd.Ready
	// 重启后没有任何连接，等待玩家重连
	p.Connected = false
	p.Counters = player.Counters{Actions: pd.Actions, Votes: pd.Votes, ItemsUsed: pd.ItemsUsed}
	for _, e := range pd.Effects {
		p.Effects = append(p.Effects, player.StatusEffect{Type: player.EffectType(e.Type), Remaining: e.Remaining, Source: e.Source})
	}
	for _, it := range pd.Items {
		p.Items = append(p.Items, player.Item{ID: it.ID, Uses: it.Uses})
	}
	for k, v := range pd.AbilityUses {
		p.AbilityUses[k] = v
	}
	for k, v := range pd.PhaseUses {
		p.PhaseUses[k] = v
	}
	return p, nil
}
