package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/richharvestCC/ScoreBoard-sub001/internal/config"
	"github.com/richharvestCC/ScoreBoard-sub001/internal/domain"
	"github.com/richharvestCC/ScoreBoard-sub001/internal/kafka"
	"github.com/richharvestCC/ScoreBoard-sub001/internal/pubsub"
	"github.com/richharvestCC/ScoreBoard-sub001/internal/store"
	"github.com/richharvestCC/ScoreBoard-sub001/pkg/log"
)

var errRoomStopped = errors.New("room stopped")

// Hub owns the room table and the global feed for the whole process.
// Rooms are created lazily on first join and torn down by eviction;
// Shutdown drains every room, flushing in-progress match state.
type Hub struct {
	cfg config.RoomConfig

	store     store.MatchStore
	producer  kafka.DeltaProducer      // optional, may be nil
	lifecycle pubsub.LifecyclePublisher // optional, may be nil

	mu    sync.RWMutex
	rooms map[string]*Room
	conns map[string]map[string]struct{} // connID -> joined match ids

	feed *Feed

	totalViewers     atomic.Int64
	totalLiveMatches atomic.Int64

	sf     singleflight.Group
	closed atomic.Bool
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a hub. producer and lifecycle may be nil; the hub then runs
// without the corresponding collaborator.
func New(cfg config.RoomConfig, st store.MatchStore, producer kafka.DeltaProducer, lifecycle pubsub.LifecyclePublisher) *Hub {
	h := &Hub{
		cfg:       cfg,
		store:     st,
		producer:  producer,
		lifecycle: lifecycle,
		rooms:     make(map[string]*Room),
		conns:     make(map[string]map[string]struct{}),
		feed:      newFeed(),
		stopCh:    make(chan struct{}),
	}
	if cfg.SummaryInterval > 0 {
		h.wg.Add(1)
		go h.summaryLoop()
	}
	return h
}

// Feed returns the dashboard feed.
func (h *Hub) Feed() *Feed {
	return h.feed
}

// Join adds the member to the match's room, materializing and hydrating
// the room if needed, and returns the current snapshot plus the assigned
// role.
func (h *Hub) Join(ctx context.Context, m Member, matchID string, requested domain.Role) (*domain.MatchState, domain.Role, error) {
	if h.closed.Load() {
		return nil, "", domain.ErrHubClosed
	}

	for attempt := 0; attempt < 2; attempt++ {
		r, err := h.roomFor(ctx, matchID)
		if err != nil {
			return nil, "", err
		}

		reply := make(chan joinResult, 1)
		if err := r.enqueue(ctx, joinCmd{member: m, requested: requested, reply: reply}); err != nil {
			if errors.Is(err, errRoomStopped) {
				continue // room evicted under us, retry with a fresh one
			}
			return nil, "", err
		}

		select {
		case res := <-reply:
			return res.snapshot, res.role, res.err
		case <-r.done:
			continue
		case <-ctx.Done():
			return nil, "", ctx.Err()
		}
	}
	return nil, "", domain.ErrMatchNotFound
}

// Leave removes the member from the match's room. Unknown rooms and
// duplicate leaves are no-ops.
func (h *Hub) Leave(ctx context.Context, connID, matchID string) error {
	r := h.lookupRoom(matchID)
	if r == nil {
		return nil
	}
	err := r.enqueue(ctx, leaveCmd{connID: connID})
	if errors.Is(err, errRoomStopped) {
		return nil
	}
	return err
}

// UpdateScore applies a score mutation through the owning room actor and
// returns the assigned sequence number.
func (h *Hub) UpdateScore(ctx context.Context, connID, matchID string, home, away int, minute *int) (uint64, error) {
	reply := make(chan mutationResult, 1)
	return h.mutate(ctx, matchID, scoreCmd{
		connID:    connID,
		homeScore: home,
		awayScore: away,
		minute:    minute,
		reply:     reply,
	}, reply)
}

// AddEvent appends a timeline event. Resubmitting the same clientEventID
// returns the originally assigned sequence without a new entry.
func (h *Hub) AddEvent(ctx context.Context, connID, matchID, eventType string, payload json.RawMessage, clientEventID string) (uint64, error) {
	reply := make(chan mutationResult, 1)
	return h.mutate(ctx, matchID, eventCmd{
		connID:        connID,
		eventType:     eventType,
		payload:       payload,
		clientEventID: clientEventID,
		reply:         reply,
	}, reply)
}

// ChangeStatus drives the match status state machine.
func (h *Hub) ChangeStatus(ctx context.Context, connID, matchID string, status domain.MatchStatus) (uint64, error) {
	reply := make(chan mutationResult, 1)
	return h.mutate(ctx, matchID, statusCmd{
		connID: connID,
		status: status,
		reply:  reply,
	}, reply)
}

func (h *Hub) mutate(ctx context.Context, matchID string, cmd command, reply chan mutationResult) (uint64, error) {
	r := h.lookupRoom(matchID)
	if r == nil {
		return 0, domain.ErrMatchNotFound
	}
	if err := r.enqueue(ctx, cmd); err != nil {
		if errors.Is(err, errRoomStopped) {
			return 0, domain.ErrMatchNotFound
		}
		return 0, err
	}
	select {
	case res := <-reply:
		return res.sequence, res.err
	case <-r.done:
		return 0, domain.ErrMatchNotFound
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// DropConnection removes the connection from every room it joined and
// from the feed. Called by the gateway's idempotent disconnect path.
func (h *Hub) DropConnection(connID string) {
	h.mu.Lock()
	joined := h.conns[connID]
	delete(h.conns, connID)
	h.mu.Unlock()

	h.feed.Unsubscribe(connID)

	for matchID := range joined {
		if err := h.Leave(context.Background(), connID, matchID); err != nil {
			log.L().Warn().Err(err).
				Str(log.FieldConnID, connID).
				Str(log.FieldMatchID, matchID).
				Msg("failed to remove dropped connection from room")
		}
	}
}

func (h *Hub) lookupRoom(matchID string) *Room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[matchID]
}

// roomFor returns the live room for the match, materializing it at most
// once across concurrent joins.
func (h *Hub) roomFor(ctx context.Context, matchID string) (*Room, error) {
	if r := h.lookupRoom(matchID); r != nil {
		return r, nil
	}

	v, err, _ := h.sf.Do(matchID, func() (interface{}, error) {
		if r := h.lookupRoom(matchID); r != nil {
			return r, nil
		}

		state, err := h.store.LoadMatch(ctx, matchID)
		if err != nil {
			if errors.Is(err, store.ErrMatchNotFound) {
				return nil, domain.ErrMatchNotFound
			}
			return nil, err
		}

		r := newRoom(h, state)

		h.mu.Lock()
		h.rooms[matchID] = r
		h.mu.Unlock()

		if state.Status == domain.StatusInProgress {
			h.totalLiveMatches.Add(1)
		}

		go r.run()
		log.L().Info().
			Str(log.FieldMatchID, matchID).
			Str(log.FieldStatus, string(state.Status)).
			Msg("room materialized")
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Room), nil
}

func (h *Hub) removeRoom(matchID string, r *Room) {
	h.mu.Lock()
	if h.rooms[matchID] == r {
		delete(h.rooms, matchID)
	}
	h.mu.Unlock()

	if r.state.Status == domain.StatusInProgress {
		h.totalLiveMatches.Add(-1)
	}
}

// memberJoined and memberLeft maintain the connection index and the
// global presence totals. Both are called only from room actor loops.
func (h *Hub) memberJoined(connID, matchID string) {
	h.mu.Lock()
	set, ok := h.conns[connID]
	if !ok {
		set = make(map[string]struct{})
		h.conns[connID] = set
	}
	set[matchID] = struct{}{}
	h.mu.Unlock()

	h.totalViewers.Add(1)
}

func (h *Hub) memberLeft(connID, matchID string) {
	h.mu.Lock()
	if set, ok := h.conns[connID]; ok {
		delete(set, matchID)
		if len(set) == 0 {
			delete(h.conns, connID)
		}
	}
	h.mu.Unlock()

	h.totalViewers.Add(-1)
}

// matchLifecycle publishes a room lifecycle transition to the dashboard
// feed and to the optional external publisher. Failures are logged and
// never block the mutation path.
func (h *Hub) matchLifecycle(snapshot *domain.MatchState, prev domain.MatchStatus) {
	var msgType string
	switch snapshot.Status {
	case domain.StatusInProgress:
		msgType = domain.MsgTypeMatchStarted
	case domain.StatusCompleted:
		msgType = domain.MsgTypeMatchEnded
	case domain.StatusCancelled:
		msgType = domain.MsgTypeMatchCancelled
	default:
		return
	}

	switch snapshot.Status {
	case domain.StatusInProgress:
		h.totalLiveMatches.Add(1)
	case domain.StatusCompleted, domain.StatusCancelled:
		if prev == domain.StatusInProgress {
			h.totalLiveMatches.Add(-1)
		}
	}

	msg := &domain.MatchLifecycleMessage{
		Type:      msgType,
		MatchID:   snapshot.MatchID,
		Status:    snapshot.Status,
		HomeScore: snapshot.HomeScore,
		AwayScore: snapshot.AwayScore,
		Timestamp: snapshot.LastUpdate,
	}
	h.feed.publish(msg)

	if h.lifecycle != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.lifecycle.PublishLifecycle(ctx, pubsub.NewLifecycleEvent(msgType, snapshot)); err != nil {
				log.L().Warn().Err(err).Str(log.FieldMatchID, snapshot.MatchID).Msg("failed to publish lifecycle event")
			}
		}()
	}
}

// produceDelta streams an accepted delta to the optional event stream
// collaborator.
func (h *Hub) produceDelta(matchID string, delta interface{}) {
	if h.producer == nil {
		return
	}
	if err := h.producer.ProduceDelta(context.Background(), matchID, delta); err != nil {
		log.L().Warn().Err(err).Str(log.FieldMatchID, matchID).Msg("failed to produce delta")
	}
}

// RoomStats returns a stats snapshot of every live room.
func (h *Hub) RoomStats() []RoomStats {
	h.mu.RLock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.mu.RUnlock()

	stats := make([]RoomStats, 0, len(rooms))
	for _, r := range rooms {
		stats = append(stats, r.Stats())
	}
	return stats
}

// MatchStats returns the stats snapshot of one live room.
func (h *Hub) MatchStats(matchID string) (RoomStats, bool) {
	r := h.lookupRoom(matchID)
	if r == nil {
		return RoomStats{}, false
	}
	return r.Stats(), true
}

// Totals returns the global presence counters.
func (h *Hub) Totals() (liveMatches, viewers int) {
	return int(h.totalLiveMatches.Load()), int(h.totalViewers.Load())
}

func (h *Hub) summaryLoop() {
	defer h.wg.Done()
	ticker := time.NewTicker(h.cfg.SummaryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			live, viewers := h.Totals()
			h.feed.publish(&domain.PresenceSummaryMessage{
				Type:             domain.MsgTypePresenceSummary,
				TotalLiveMatches: live,
				TotalViewers:     viewers,
			})
		case <-h.stopCh:
			return
		}
	}
}

// Shutdown drains every room, flushing in-progress match state before
// returning.
func (h *Hub) Shutdown(ctx context.Context) error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(h.stopCh)
	h.wg.Wait()

	h.mu.RLock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.mu.RUnlock()

	for _, r := range rooms {
		reply := make(chan struct{}, 1)
		if err := r.enqueue(ctx, stopCmd{flush: true, reply: reply}); err != nil {
			continue
		}
		select {
		case <-reply:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	log.L().Info().Int("rooms", len(rooms)).Msg("hub drained")
	return nil
}
