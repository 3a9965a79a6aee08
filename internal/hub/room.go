package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/richharvestCC/ScoreBoard-sub001/internal/domain"
	"github.com/richharvestCC/ScoreBoard-sub001/pkg/log"
)

// command is the closed set of operations a room actor handles. Every
// mutation of room state flows through the mailbox as one of these.
type command interface{ isCommand() }

type joinCmd struct {
	member    Member
	requested domain.Role
	reply     chan joinResult
}

type joinResult struct {
	snapshot *domain.MatchState
	role     domain.Role
	err      error
}

type leaveCmd struct {
	connID string
	reply  chan struct{} // may be nil
}

type scoreCmd struct {
	connID    string
	homeScore int
	awayScore int
	minute    *int
	reply     chan mutationResult
}

type eventCmd struct {
	connID        string
	eventType     string
	payload       json.RawMessage
	clientEventID string
	reply         chan mutationResult
}

type statusCmd struct {
	connID string
	status domain.MatchStatus
	reply  chan mutationResult
}

type evictCheckCmd struct{}

type stopCmd struct {
	flush bool
	reply chan struct{}
}

type mutationResult struct {
	sequence uint64
	err      error
}

func (joinCmd) isCommand()       {}
func (leaveCmd) isCommand()      {}
func (scoreCmd) isCommand()      {}
func (eventCmd) isCommand()      {}
func (statusCmd) isCommand()     {}
func (evictCheckCmd) isCommand() {}
func (stopCmd) isCommand()       {}

// memberEntry records one room membership with its role at join time.
type memberEntry struct {
	member Member
	role   domain.Role
}

// RoomStats is an immutable stats snapshot readable outside the actor.
type RoomStats struct {
	MatchID      string             `json:"match_id"`
	Status       domain.MatchStatus `json:"status"`
	ViewerCount  int                `json:"viewer_count"`
	ManagerCount int                `json:"manager_count"`
	LastUpdate   time.Time          `json:"last_update"`
}

// Room is the logical channel for one live match. A single goroutine owns
// all of its mutable state; everything else talks to it via the mailbox.
type Room struct {
	matchID string
	hub     *Hub

	state        *domain.MatchState
	members      map[string]*memberEntry
	viewerCount  int
	managerCount int
	clientEvents map[string]domain.MatchEvent
	persistedSeq uint64

	mailbox chan command
	done    chan struct{}

	idleTimer  *time.Timer
	finalTimer *time.Timer

	statsMu sync.RWMutex
	stats   RoomStats
}

func newRoom(h *Hub, state *domain.MatchState) *Room {
	r := &Room{
		matchID:      state.MatchID,
		hub:          h,
		state:        state,
		members:      make(map[string]*memberEntry),
		clientEvents: make(map[string]domain.MatchEvent),
		persistedSeq: state.LastSequence,
		mailbox:      make(chan command, h.cfg.MailboxSize),
		done:         make(chan struct{}),
	}
	for _, ev := range state.Events {
		if ev.ClientEventID != "" {
			r.clientEvents[ev.ClientEventID] = ev
		}
	}
	r.updateStats()
	return r
}

// enqueue delivers a command to the actor, failing if the room has been
// evicted or the caller's context expires.
func (r *Room) enqueue(ctx context.Context, cmd command) error {
	select {
	case r.mailbox <- cmd:
		return nil
	case <-r.done:
		return errRoomStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns the latest immutable stats snapshot.
func (r *Room) Stats() RoomStats {
	r.statsMu.RLock()
	defer r.statsMu.RUnlock()
	return r.stats
}

func (r *Room) updateStats() {
	r.statsMu.Lock()
	r.stats = RoomStats{
		MatchID:      r.matchID,
		Status:       r.state.Status,
		ViewerCount:  r.viewerCount,
		ManagerCount: r.managerCount,
		LastUpdate:   r.state.LastUpdate,
	}
	r.statsMu.Unlock()
}

// run is the room actor loop.
func (r *Room) run() {
	l := log.L().With().Str(log.FieldMatchID, r.matchID).Logger()
	l.Debug().Msg("room actor started")

	for cmd := range r.mailbox {
		switch c := cmd.(type) {
		case joinCmd:
			c.reply <- r.handleJoin(c)

		case leaveCmd:
			r.handleLeave(c.connID)
			if c.reply != nil {
				c.reply <- struct{}{}
			}

		case scoreCmd:
			c.reply <- r.handleScore(c)

		case eventCmd:
			c.reply <- r.handleEvent(c)

		case statusCmd:
			c.reply <- r.handleStatus(c)

		case evictCheckCmd:
			if r.handleEvictCheck() {
				l.Info().Msg("room evicted")
				r.stop()
				return
			}

		case stopCmd:
			if c.flush {
				if r.state.Status == domain.StatusInProgress {
					if err := r.hub.store.FlushFinal(context.Background(), r.state.Snapshot()); err != nil {
						l.Error().Err(err).Msg("failed to flush in-progress match on shutdown")
					} else {
						r.persistedSeq = r.state.LastSequence
					}
				} else {
					r.flushDirty()
				}
			}
			c.reply <- struct{}{}
			r.stop()
			return
		}
	}
}

func (r *Room) stop() {
	if r.idleTimer != nil {
		r.idleTimer.Stop()
	}
	if r.finalTimer != nil {
		r.finalTimer.Stop()
	}
	close(r.done)
	for _, e := range r.members {
		r.hub.memberLeft(e.member.ID(), r.matchID)
	}
	r.members = nil
	r.hub.removeRoom(r.matchID, r)
}

func (r *Room) handleJoin(c joinCmd) joinResult {
	if c.member.Closed() {
		return joinResult{err: domain.ErrBadRequest}
	}

	connID := c.member.ID()
	if e, ok := r.members[connID]; ok {
		// Rejoin on the same connection: idempotent, fresh snapshot.
		return joinResult{snapshot: r.state.Snapshot(), role: e.role}
	}

	role := domain.RoleViewer
	if c.requested == domain.RoleManager && c.member.Identity().CanManage(r.state.OwnerID) {
		role = domain.RoleManager
	}

	r.members[connID] = &memberEntry{member: c.member, role: role}
	if role == domain.RoleManager {
		r.managerCount++
	} else {
		r.viewerCount++
	}
	r.hub.memberJoined(connID, r.matchID)

	if r.idleTimer != nil {
		r.idleTimer.Stop()
		r.idleTimer = nil
	}

	r.updateStats()
	r.broadcastPresence()

	log.L().Debug().
		Str(log.FieldConnID, connID).
		Str(log.FieldMatchID, r.matchID).
		Str(log.FieldRole, string(role)).
		Msg("member joined room")

	return joinResult{snapshot: r.state.Snapshot(), role: role}
}

func (r *Room) handleLeave(connID string) {
	e, ok := r.members[connID]
	if !ok {
		// Duplicate leave (explicit leave raced a disconnect): counters
		// must decrement at most once.
		return
	}
	delete(r.members, connID)
	if e.role == domain.RoleManager {
		r.managerCount--
	} else {
		r.viewerCount--
	}
	r.hub.memberLeft(connID, r.matchID)

	r.updateStats()
	r.broadcastPresence()

	if len(r.members) == 0 && r.finalTimer == nil {
		r.armIdleTimer()
	}
}

func (r *Room) handleScore(c scoreCmd) mutationResult {
	e, ok := r.members[c.connID]
	if !ok || e.role != domain.RoleManager {
		return mutationResult{err: domain.ErrForbidden}
	}
	if r.state.Status != domain.StatusInProgress {
		return mutationResult{err: domain.ErrInvalidTransition}
	}

	payload, err := json.Marshal(domain.ScorePayload{
		Home:   c.homeScore,
		Away:   c.awayScore,
		Minute: c.minute,
	})
	if err != nil {
		return mutationResult{err: err}
	}

	ev := r.state.Append(domain.EventTypeScore, payload, "", e.member.Identity().UserID, time.Now().UTC())
	r.state.HomeScore = c.homeScore
	r.state.AwayScore = c.awayScore

	delta := &domain.ScoreDeltaMessage{
		Type:      domain.MsgTypeScoreDelta,
		MatchID:   r.matchID,
		Sequence:  ev.Sequence,
		HomeScore: c.homeScore,
		AwayScore: c.awayScore,
		Minute:    c.minute,
		Timestamp: ev.Timestamp,
	}
	r.updateStats()
	r.broadcast(delta)
	r.hub.produceDelta(r.matchID, delta)

	return mutationResult{sequence: ev.Sequence}
}

func (r *Room) handleEvent(c eventCmd) mutationResult {
	e, ok := r.members[c.connID]
	if !ok || e.role != domain.RoleManager {
		return mutationResult{err: domain.ErrForbidden}
	}

	if c.clientEventID != "" {
		if prev, ok := r.clientEvents[c.clientEventID]; ok {
			// Idempotent retry: replay the original delta to the caller
			// only, same sequence, no new entry, no re-broadcast.
			replay := &domain.EventDeltaMessage{
				Type:      domain.MsgTypeEventDelta,
				MatchID:   r.matchID,
				Sequence:  prev.Sequence,
				EventType: prev.Type,
				Payload:   prev.Payload,
				Timestamp: prev.Timestamp,
			}
			if data, err := json.Marshal(replay); err == nil {
				if !e.member.TrySend(data) {
					e.member.Kick("outbound queue overflow")
				}
			}
			return mutationResult{sequence: prev.Sequence}
		}
	}

	ev := r.state.Append(c.eventType, c.payload, c.clientEventID, e.member.Identity().UserID, time.Now().UTC())
	if c.clientEventID != "" {
		r.clientEvents[c.clientEventID] = ev
	}

	delta := &domain.EventDeltaMessage{
		Type:      domain.MsgTypeEventDelta,
		MatchID:   r.matchID,
		Sequence:  ev.Sequence,
		EventType: c.eventType,
		Payload:   c.payload,
		Timestamp: ev.Timestamp,
	}
	r.updateStats()
	r.broadcast(delta)
	r.hub.produceDelta(r.matchID, delta)

	return mutationResult{sequence: ev.Sequence}
}

func (r *Room) handleStatus(c statusCmd) mutationResult {
	e, ok := r.members[c.connID]
	if !ok || e.role != domain.RoleManager {
		return mutationResult{err: domain.ErrForbidden}
	}
	if !c.status.Valid() || !r.state.Status.CanTransition(c.status) {
		return mutationResult{err: domain.ErrInvalidTransition}
	}

	prevStatus := r.state.Status
	prevUpdate := r.state.LastUpdate
	r.state.Status = c.status
	r.state.LastUpdate = time.Now().UTC()

	// Flush before broadcasting so nobody observes a terminal status
	// that is not durably recorded. Status transitions do not consume
	// sequence numbers; the delta carries the current cursor.
	if err := r.hub.store.FlushFinal(context.Background(), r.state.Snapshot()); err != nil {
		r.state.Status = prevStatus
		r.state.LastUpdate = prevUpdate
		return mutationResult{err: err}
	}
	r.persistedSeq = r.state.LastSequence

	delta := &domain.StatusDeltaMessage{
		Type:      domain.MsgTypeStatusDelta,
		MatchID:   r.matchID,
		Sequence:  r.state.LastSequence,
		Status:    c.status,
		Timestamp: r.state.LastUpdate,
	}
	r.updateStats()
	r.broadcast(delta)
	r.hub.produceDelta(r.matchID, delta)
	r.hub.matchLifecycle(r.state.Snapshot(), prevStatus)

	if c.status.Terminal() {
		r.armFinalTimer()
	}

	return mutationResult{sequence: r.state.LastSequence}
}

// handleEvictCheck reports whether the room should be torn down now.
// Events accepted since the last flush are persisted first; sequences
// must survive a later re-hydration.
func (r *Room) handleEvictCheck() bool {
	if r.state.Status == domain.StatusInProgress {
		return false
	}
	if !r.state.Status.Terminal() && len(r.members) > 0 {
		return false
	}

	if !r.flushDirty() {
		// Keep the room alive and retry rather than drop accepted events.
		if r.state.Status.Terminal() {
			r.finalTimer = nil
			r.armFinalTimer()
		} else {
			r.armIdleTimer()
		}
		return false
	}

	if r.state.Status.Terminal() {
		// Grace window elapsed: late viewers had their chance.
		for _, e := range r.members {
			e.member.Kick("match closed")
		}
	}
	return true
}

// flushDirty persists any events accepted since the last flush. Returns
// false when the store write failed.
func (r *Room) flushDirty() bool {
	if r.state.LastSequence <= r.persistedSeq {
		return true
	}
	if err := r.hub.store.FlushFinal(context.Background(), r.state.Snapshot()); err != nil {
		log.L().Error().Err(err).Str(log.FieldMatchID, r.matchID).Msg("failed to flush room state")
		return false
	}
	r.persistedSeq = r.state.LastSequence
	return true
}

func (r *Room) armIdleTimer() {
	grace := r.hub.cfg.EvictionGrace
	r.idleTimer = time.AfterFunc(grace, func() {
		select {
		case r.mailbox <- evictCheckCmd{}:
		case <-r.done:
		}
	})
}

func (r *Room) armFinalTimer() {
	if r.finalTimer != nil {
		return
	}
	grace := r.hub.cfg.FinalReadGrace
	r.finalTimer = time.AfterFunc(grace, func() {
		select {
		case r.mailbox <- evictCheckCmd{}:
		case <-r.done:
		}
	})
}

func (r *Room) broadcastPresence() {
	r.broadcast(&domain.PresenceDeltaMessage{
		Type:         domain.MsgTypePresenceDelta,
		MatchID:      r.matchID,
		ViewerCount:  r.viewerCount,
		ManagerCount: r.managerCount,
	})
}

// broadcast fans a frame out to every member in sequence order. A member
// whose outbound queue is full is force-disconnected rather than having
// frames dropped or reordered.
func (r *Room) broadcast(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.L().Error().Err(err).Str(log.FieldMatchID, r.matchID).Msg("failed to marshal broadcast")
		return
	}
	for _, e := range r.members {
		if !e.member.TrySend(data) {
			e.member.Kick("outbound queue overflow")
		}
	}
}
