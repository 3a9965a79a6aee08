package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richharvestCC/ScoreBoard-sub001/internal/config"
	"github.com/richharvestCC/ScoreBoard-sub001/internal/domain"
	"github.com/richharvestCC/ScoreBoard-sub001/internal/store"
)

type fakeMember struct {
	id       string
	identity domain.Identity

	mu     sync.Mutex
	frames [][]byte
	kicked []string
	reject bool

	closed atomic.Bool
}

func newFakeMember(id, userID string, roles ...string) *fakeMember {
	return &fakeMember{
		id:       id,
		identity: domain.Identity{UserID: userID, Username: userID, Roles: roles},
	}
}

func (m *fakeMember) ID() string                { return m.id }
func (m *fakeMember) Identity() domain.Identity { return m.identity }
func (m *fakeMember) Closed() bool              { return m.closed.Load() }

func (m *fakeMember) TrySend(data []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reject || m.closed.Load() {
		return false
	}
	m.frames = append(m.frames, append([]byte(nil), data...))
	return true
}

func (m *fakeMember) Kick(reason string) {
	m.mu.Lock()
	m.kicked = append(m.kicked, reason)
	m.mu.Unlock()
}

func (m *fakeMember) setReject(v bool) {
	m.mu.Lock()
	m.reject = v
	m.mu.Unlock()
}

func (m *fakeMember) kickCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.kicked)
}

// typed decodes every received frame and returns those with the given
// wire type, in delivery order.
func (m *fakeMember) typed(t *testing.T, msgType string) []map[string]interface{} {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []map[string]interface{}
	for _, f := range m.frames {
		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(f, &decoded))
		if decoded["type"] == msgType {
			out = append(out, decoded)
		}
	}
	return out
}

func (m *fakeMember) sequences(t *testing.T, msgType string) []uint64 {
	t.Helper()
	var out []uint64
	for _, frame := range m.typed(t, msgType) {
		out = append(out, uint64(frame["sequence"].(float64)))
	}
	return out
}

type fakeStore struct {
	mu       sync.Mutex
	matches  map[string]*domain.MatchState
	flushed  []*domain.MatchState
	flushErr error
}

func newFakeStore(states ...*domain.MatchState) *fakeStore {
	s := &fakeStore{matches: make(map[string]*domain.MatchState)}
	for _, st := range states {
		s.matches[st.MatchID] = st
	}
	return s
}

func (s *fakeStore) LoadMatch(_ context.Context, matchID string) (*domain.MatchState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.matches[matchID]
	if !ok {
		return nil, store.ErrMatchNotFound
	}
	return st.Snapshot(), nil
}

func (s *fakeStore) FlushFinal(_ context.Context, state *domain.MatchState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flushErr != nil {
		return s.flushErr
	}
	s.flushed = append(s.flushed, state)
	s.matches[state.MatchID] = state
	return nil
}

func (s *fakeStore) setFlushErr(err error) {
	s.mu.Lock()
	s.flushErr = err
	s.mu.Unlock()
}

func (s *fakeStore) flushedStates() []*domain.MatchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.MatchState(nil), s.flushed...)
}

func testRoomConfig() config.RoomConfig {
	return config.RoomConfig{
		EvictionGrace:  40 * time.Millisecond,
		FinalReadGrace: 40 * time.Millisecond,
		MailboxSize:    64,
	}
}

func scheduledMatch(id, owner string) *domain.MatchState {
	return domain.NewMatchState(id, owner)
}

func liveMatch(id, owner string) *domain.MatchState {
	m := domain.NewMatchState(id, owner)
	m.Status = domain.StatusInProgress
	return m
}

func newTestHub(t *testing.T, st store.MatchStore) *Hub {
	t.Helper()
	h := New(testRoomConfig(), st, nil, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		h.Shutdown(ctx)
	})
	return h
}

func TestJoinHydratesRoomAndReturnsSnapshot(t *testing.T) {
	h := newTestHub(t, newFakeStore(scheduledMatch("m1", "owner")))
	m := newFakeMember("c1", "u1")

	snap, role, err := h.Join(context.Background(), m, "m1", domain.RoleViewer)
	require.NoError(t, err)
	assert.Equal(t, "m1", snap.MatchID)
	assert.Equal(t, domain.StatusScheduled, snap.Status)
	assert.Equal(t, domain.RoleViewer, role)

	stats := h.RoomStats()
	require.Len(t, stats, 1)
	assert.Equal(t, "m1", stats[0].MatchID)
	assert.Equal(t, 1, stats[0].ViewerCount)
}

func TestJoinUnknownMatch(t *testing.T) {
	h := newTestHub(t, newFakeStore())
	m := newFakeMember("c1", "u1")

	_, _, err := h.Join(context.Background(), m, "missing", domain.RoleViewer)
	assert.True(t, errors.Is(err, domain.ErrMatchNotFound))
	assert.Empty(t, h.RoomStats())
}

func TestJoinRoleAssignment(t *testing.T) {
	h := newTestHub(t, newFakeStore(scheduledMatch("m1", "owner")))

	cases := []struct {
		name      string
		member    *fakeMember
		requested domain.Role
		want      domain.Role
	}{
		{"owner gets manager", newFakeMember("c1", "owner"), domain.RoleManager, domain.RoleManager},
		{"admin gets manager", newFakeMember("c2", "u2", "admin"), domain.RoleManager, domain.RoleManager},
		{"plain user downgraded", newFakeMember("c3", "u3", "member"), domain.RoleManager, domain.RoleViewer},
		{"owner not requesting stays viewer", newFakeMember("c4", "owner"), domain.RoleViewer, domain.RoleViewer},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, role, err := h.Join(context.Background(), c.member, "m1", c.requested)
			require.NoError(t, err)
			assert.Equal(t, c.want, role)
		})
	}
}

func TestRejoinSameConnectionIsIdempotent(t *testing.T) {
	h := newTestHub(t, newFakeStore(scheduledMatch("m1", "owner")))
	m := newFakeMember("c1", "u1")

	_, _, err := h.Join(context.Background(), m, "m1", domain.RoleViewer)
	require.NoError(t, err)
	_, _, err = h.Join(context.Background(), m, "m1", domain.RoleViewer)
	require.NoError(t, err)

	stats := h.RoomStats()
	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].ViewerCount)

	_, viewers := h.Totals()
	assert.Equal(t, 1, viewers)
}

func TestUpdateScoreRequiresManager(t *testing.T) {
	h := newTestHub(t, newFakeStore(liveMatch("m1", "owner")))
	viewer := newFakeMember("c1", "u1")
	_, _, err := h.Join(context.Background(), viewer, "m1", domain.RoleViewer)
	require.NoError(t, err)

	_, err = h.UpdateScore(context.Background(), viewer.id, "m1", 1, 0, nil)
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	// Non-members are rejected the same way.
	_, err = h.UpdateScore(context.Background(), "stranger", "m1", 1, 0, nil)
	assert.True(t, errors.Is(err, domain.ErrForbidden))
}

func TestUpdateScoreRejectedBeforeStart(t *testing.T) {
	h := newTestHub(t, newFakeStore(scheduledMatch("m1", "owner")))
	mgr := newFakeMember("c1", "owner")
	_, role, err := h.Join(context.Background(), mgr, "m1", domain.RoleManager)
	require.NoError(t, err)
	require.Equal(t, domain.RoleManager, role)

	_, err = h.UpdateScore(context.Background(), mgr.id, "m1", 1, 0, nil)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
}

func TestSequenceStartsAtOneAfterStart(t *testing.T) {
	h := newTestHub(t, newFakeStore(scheduledMatch("m1", "owner")))
	mgr := newFakeMember("c1", "owner")
	_, _, err := h.Join(context.Background(), mgr, "m1", domain.RoleManager)
	require.NoError(t, err)

	seq, err := h.ChangeStatus(context.Background(), mgr.id, "m1", domain.StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), seq, "status transitions do not consume sequence numbers")

	seq, err = h.UpdateScore(context.Background(), mgr.id, "m1", 1, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)

	seq, err = h.UpdateScore(context.Background(), mgr.id, "m1", 2, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq)

	seq, err = h.AddEvent(context.Background(), mgr.id, "m1", "goal", json.RawMessage(`{"player":"p9"}`), "")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), seq)
}

func TestBroadcastOrderingAcrossMembers(t *testing.T) {
	h := newTestHub(t, newFakeStore(liveMatch("m1", "owner")))
	mgr := newFakeMember("c0", "owner")
	v1 := newFakeMember("c1", "u1")
	v2 := newFakeMember("c2", "u2")

	for _, m := range []*fakeMember{v1, v2} {
		_, _, err := h.Join(context.Background(), m, "m1", domain.RoleViewer)
		require.NoError(t, err)
	}
	_, _, err := h.Join(context.Background(), mgr, "m1", domain.RoleManager)
	require.NoError(t, err)

	const n = 20
	for i := 1; i <= n; i++ {
		_, err := h.UpdateScore(context.Background(), mgr.id, "m1", i, 0, nil)
		require.NoError(t, err)
	}

	want := make([]uint64, 0, n)
	for i := uint64(1); i <= n; i++ {
		want = append(want, i)
	}
	assert.Equal(t, want, v1.sequences(t, domain.MsgTypeScoreDelta))
	assert.Equal(t, want, v2.sequences(t, domain.MsgTypeScoreDelta))
	assert.Equal(t, want, mgr.sequences(t, domain.MsgTypeScoreDelta))
}

func TestConcurrentManagerUpdatesStayOrdered(t *testing.T) {
	h := newTestHub(t, newFakeStore(liveMatch("m1", "owner")))
	viewer := newFakeMember("cv", "u1")
	_, _, err := h.Join(context.Background(), viewer, "m1", domain.RoleViewer)
	require.NoError(t, err)

	const managers = 4
	const perManager = 10

	var wg sync.WaitGroup
	for i := 0; i < managers; i++ {
		m := newFakeMember(fmt.Sprintf("cm%d", i), "owner")
		_, _, err := h.Join(context.Background(), m, "m1", domain.RoleManager)
		require.NoError(t, err)

		wg.Add(1)
		go func(connID string) {
			defer wg.Done()
			for j := 0; j < perManager; j++ {
				_, err := h.UpdateScore(context.Background(), connID, "m1", j, j, nil)
				assert.NoError(t, err)
			}
		}(m.id)
	}
	wg.Wait()

	got := viewer.sequences(t, domain.MsgTypeScoreDelta)
	require.Len(t, got, managers*perManager)
	for i, seq := range got {
		assert.Equal(t, uint64(i+1), seq, "sequences must be contiguous and in order")
	}
}

func TestDuplicateLeaveDecrementsOnce(t *testing.T) {
	h := newTestHub(t, newFakeStore(liveMatch("m1", "owner")))
	v1 := newFakeMember("c1", "u1")
	v2 := newFakeMember("c2", "u2")

	for _, m := range []*fakeMember{v1, v2} {
		_, _, err := h.Join(context.Background(), m, "m1", domain.RoleViewer)
		require.NoError(t, err)
	}

	require.NoError(t, h.Leave(context.Background(), v1.id, "m1"))
	require.NoError(t, h.Leave(context.Background(), v1.id, "m1"))
	require.NoError(t, h.Leave(context.Background(), v1.id, "m1"))

	require.Eventually(t, func() bool {
		_, viewers := h.Totals()
		return viewers == 1
	}, time.Second, 5*time.Millisecond)

	stats := h.RoomStats()
	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].ViewerCount)
}

func TestPresenceConservationUnderChurn(t *testing.T) {
	h := newTestHub(t, newFakeStore(liveMatch("m1", "owner")))

	const n = 24
	members := make([]*fakeMember, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		members[i] = newFakeMember(fmt.Sprintf("c%d", i), fmt.Sprintf("u%d", i))
		wg.Add(1)
		go func(m *fakeMember) {
			defer wg.Done()
			_, _, err := h.Join(context.Background(), m, "m1", domain.RoleViewer)
			assert.NoError(t, err)
		}(members[i])
	}
	wg.Wait()

	_, viewers := h.Totals()
	assert.Equal(t, n, viewers)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(m *fakeMember) {
			defer wg.Done()
			assert.NoError(t, h.Leave(context.Background(), m.id, "m1"))
		}(members[i])
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		_, viewers := h.Totals()
		return viewers == 0
	}, time.Second, 5*time.Millisecond)
}

func TestAddEventIdempotentRetry(t *testing.T) {
	h := newTestHub(t, newFakeStore(liveMatch("m1", "owner")))
	mgr := newFakeMember("c0", "owner")
	viewer := newFakeMember("c1", "u1")

	_, _, err := h.Join(context.Background(), mgr, "m1", domain.RoleManager)
	require.NoError(t, err)
	_, _, err = h.Join(context.Background(), viewer, "m1", domain.RoleViewer)
	require.NoError(t, err)

	payload := json.RawMessage(`{"player":"p9","minute":12}`)
	seq1, err := h.AddEvent(context.Background(), mgr.id, "m1", "goal", payload, "evt-1")
	require.NoError(t, err)
	seq2, err := h.AddEvent(context.Background(), mgr.id, "m1", "goal", payload, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, seq1, seq2)

	// Viewers see the event exactly once; the retrying manager gets the
	// original delta replayed.
	assert.Len(t, viewer.typed(t, domain.MsgTypeEventDelta), 1)
	assert.Len(t, mgr.typed(t, domain.MsgTypeEventDelta), 2)

	snap, _, err := h.Join(context.Background(), viewer, "m1", domain.RoleViewer)
	require.NoError(t, err)
	assert.Len(t, snap.Events, 1)
	assert.Equal(t, seq1, snap.LastSequence)
}

func TestStatusDeltaCarriesCurrentCursor(t *testing.T) {
	st := newFakeStore(liveMatch("m1", "owner"))
	h := newTestHub(t, st)
	mgr := newFakeMember("c0", "owner")
	_, _, err := h.Join(context.Background(), mgr, "m1", domain.RoleManager)
	require.NoError(t, err)

	_, err = h.UpdateScore(context.Background(), mgr.id, "m1", 1, 0, nil)
	require.NoError(t, err)

	seq, err := h.ChangeStatus(context.Background(), mgr.id, "m1", domain.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)

	deltas := mgr.typed(t, domain.MsgTypeStatusDelta)
	require.Len(t, deltas, 1)
	assert.Equal(t, float64(1), deltas[0]["sequence"])
	assert.Equal(t, string(domain.StatusCompleted), deltas[0]["status"])
}

func TestTerminalTransitionFlushesBeforeBroadcast(t *testing.T) {
	st := newFakeStore(liveMatch("m1", "owner"))
	h := newTestHub(t, st)
	mgr := newFakeMember("c0", "owner")
	_, _, err := h.Join(context.Background(), mgr, "m1", domain.RoleManager)
	require.NoError(t, err)

	_, err = h.UpdateScore(context.Background(), mgr.id, "m1", 2, 1, nil)
	require.NoError(t, err)

	_, err = h.ChangeStatus(context.Background(), mgr.id, "m1", domain.StatusCompleted)
	require.NoError(t, err)

	flushed := st.flushedStates()
	require.Len(t, flushed, 1)
	assert.Equal(t, domain.StatusCompleted, flushed[0].Status)
	assert.Equal(t, 2, flushed[0].HomeScore)
	assert.Equal(t, 1, flushed[0].AwayScore)
	assert.Equal(t, uint64(1), flushed[0].LastSequence)
}

func TestFlushFailureRollsBackStatus(t *testing.T) {
	st := newFakeStore(liveMatch("m1", "owner"))
	h := newTestHub(t, st)
	mgr := newFakeMember("c0", "owner")
	_, _, err := h.Join(context.Background(), mgr, "m1", domain.RoleManager)
	require.NoError(t, err)

	st.setFlushErr(assert.AnError)
	_, err = h.ChangeStatus(context.Background(), mgr.id, "m1", domain.StatusCompleted)
	assert.Error(t, err)
	assert.Empty(t, mgr.typed(t, domain.MsgTypeStatusDelta), "failed transition must not broadcast")

	// The match is still in progress; mutations keep flowing.
	st.setFlushErr(nil)
	seq, err := h.UpdateScore(context.Background(), mgr.id, "m1", 1, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)
}

func TestInvalidTransitionRejected(t *testing.T) {
	h := newTestHub(t, newFakeStore(liveMatch("m1", "owner")))
	mgr := newFakeMember("c0", "owner")
	_, _, err := h.Join(context.Background(), mgr, "m1", domain.RoleManager)
	require.NoError(t, err)

	_, err = h.ChangeStatus(context.Background(), mgr.id, "m1", domain.StatusScheduled)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
	_, err = h.ChangeStatus(context.Background(), mgr.id, "m1", domain.StatusCancelled)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
}

func TestLifecyclePublishedToFeed(t *testing.T) {
	h := newTestHub(t, newFakeStore(scheduledMatch("m1", "owner")))
	dash := newFakeMember("dash", "board")
	h.Feed().Subscribe(dash)

	mgr := newFakeMember("c0", "owner")
	_, _, err := h.Join(context.Background(), mgr, "m1", domain.RoleManager)
	require.NoError(t, err)

	_, err = h.ChangeStatus(context.Background(), mgr.id, "m1", domain.StatusInProgress)
	require.NoError(t, err)
	live, _ := h.Totals()
	assert.Equal(t, 1, live)
	require.Len(t, dash.typed(t, domain.MsgTypeMatchStarted), 1)

	_, err = h.ChangeStatus(context.Background(), mgr.id, "m1", domain.StatusCompleted)
	require.NoError(t, err)
	live, _ = h.Totals()
	assert.Equal(t, 0, live)
	require.Len(t, dash.typed(t, domain.MsgTypeMatchEnded), 1)

	// Room deltas never reach the dashboard feed.
	assert.Empty(t, dash.typed(t, domain.MsgTypeStatusDelta))
}

func TestIdleRoomEvicted(t *testing.T) {
	h := newTestHub(t, newFakeStore(scheduledMatch("m1", "owner")))
	v := newFakeMember("c1", "u1")
	_, _, err := h.Join(context.Background(), v, "m1", domain.RoleViewer)
	require.NoError(t, err)
	require.NoError(t, h.Leave(context.Background(), v.id, "m1"))

	require.Eventually(t, func() bool {
		return len(h.RoomStats()) == 0
	}, time.Second, 5*time.Millisecond)

	// A later join simply re-materializes the room.
	_, _, err = h.Join(context.Background(), v, "m1", domain.RoleViewer)
	require.NoError(t, err)
	assert.Len(t, h.RoomStats(), 1)
}

func TestScheduledRoomEvictionPreservesSequences(t *testing.T) {
	st := newFakeStore(scheduledMatch("m1", "owner"))
	h := newTestHub(t, st)

	mgr := newFakeMember("c0", "owner")
	_, _, err := h.Join(context.Background(), mgr, "m1", domain.RoleManager)
	require.NoError(t, err)

	seq, err := h.AddEvent(context.Background(), mgr.id, "m1", "lineup", json.RawMessage(`{"home":["p1"]}`), "")
	require.NoError(t, err)
	require.Equal(t, uint64(1), seq)

	require.NoError(t, h.Leave(context.Background(), mgr.id, "m1"))
	require.Eventually(t, func() bool {
		return len(h.RoomStats()) == 0
	}, time.Second, 5*time.Millisecond)

	flushed := st.flushedStates()
	require.NotEmpty(t, flushed, "eviction must persist accepted events")
	assert.Equal(t, uint64(1), flushed[len(flushed)-1].LastSequence)

	// Re-hydration sees the flushed log; the next event gets a fresh
	// sequence instead of reusing 1.
	mgr2 := newFakeMember("c1", "owner")
	snap, _, err := h.Join(context.Background(), mgr2, "m1", domain.RoleManager)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.LastSequence)
	require.Len(t, snap.Events, 1)

	seq, err = h.AddEvent(context.Background(), mgr2.id, "m1", "lineup", json.RawMessage(`{"away":["p2"]}`), "")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq)
}

func TestEvictionRetriesWhenFlushFails(t *testing.T) {
	st := newFakeStore(scheduledMatch("m1", "owner"))
	h := newTestHub(t, st)

	mgr := newFakeMember("c0", "owner")
	_, _, err := h.Join(context.Background(), mgr, "m1", domain.RoleManager)
	require.NoError(t, err)
	_, err = h.AddEvent(context.Background(), mgr.id, "m1", "note", nil, "")
	require.NoError(t, err)

	st.setFlushErr(assert.AnError)
	require.NoError(t, h.Leave(context.Background(), mgr.id, "m1"))

	// The eviction timer keeps firing but the room must not go away
	// while its events cannot be persisted.
	time.Sleep(3 * testRoomConfig().EvictionGrace)
	require.Len(t, h.RoomStats(), 1)

	st.setFlushErr(nil)
	require.Eventually(t, func() bool {
		return len(h.RoomStats()) == 0
	}, time.Second, 5*time.Millisecond)

	flushed := st.flushedStates()
	require.NotEmpty(t, flushed)
	assert.Equal(t, uint64(1), flushed[len(flushed)-1].LastSequence)
}

func TestGraceWindowEventsFlushedOnEviction(t *testing.T) {
	st := newFakeStore(liveMatch("m1", "owner"))
	h := newTestHub(t, st)

	mgr := newFakeMember("c0", "owner")
	_, _, err := h.Join(context.Background(), mgr, "m1", domain.RoleManager)
	require.NoError(t, err)

	_, err = h.ChangeStatus(context.Background(), mgr.id, "m1", domain.StatusCompleted)
	require.NoError(t, err)

	seq, err := h.AddEvent(context.Background(), mgr.id, "m1", "report", json.RawMessage(`{"summary":"ft"}`), "")
	require.NoError(t, err)
	require.Equal(t, uint64(1), seq)

	require.Eventually(t, func() bool {
		return len(h.RoomStats()) == 0
	}, time.Second, 5*time.Millisecond)

	flushed := st.flushedStates()
	require.Len(t, flushed, 2, "transition flush plus eviction flush")
	assert.Equal(t, uint64(1), flushed[1].LastSequence)
	assert.Equal(t, domain.StatusCompleted, flushed[1].Status)
}

func TestFinalReadGraceKicksRemainingMembers(t *testing.T) {
	h := newTestHub(t, newFakeStore(liveMatch("m1", "owner")))
	mgr := newFakeMember("c0", "owner")
	viewer := newFakeMember("c1", "u1")

	_, _, err := h.Join(context.Background(), mgr, "m1", domain.RoleManager)
	require.NoError(t, err)
	_, _, err = h.Join(context.Background(), viewer, "m1", domain.RoleViewer)
	require.NoError(t, err)

	_, err = h.ChangeStatus(context.Background(), mgr.id, "m1", domain.StatusCompleted)
	require.NoError(t, err)

	// During the grace window the room is still readable.
	assert.Len(t, h.RoomStats(), 1)

	require.Eventually(t, func() bool {
		return len(h.RoomStats()) == 0
	}, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, viewer.kickCount(), 1)

	require.Eventually(t, func() bool {
		_, viewers := h.Totals()
		return viewers == 0
	}, time.Second, 5*time.Millisecond)
}

func TestSlowMemberEvictedOnOverflow(t *testing.T) {
	h := newTestHub(t, newFakeStore(liveMatch("m1", "owner")))
	mgr := newFakeMember("c0", "owner")
	slow := newFakeMember("c1", "u1")

	_, _, err := h.Join(context.Background(), mgr, "m1", domain.RoleManager)
	require.NoError(t, err)
	_, _, err = h.Join(context.Background(), slow, "m1", domain.RoleViewer)
	require.NoError(t, err)

	slow.setReject(true)
	_, err = h.UpdateScore(context.Background(), mgr.id, "m1", 1, 0, nil)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, slow.kickCount(), 1)
	assert.Zero(t, mgr.kickCount())
}

func TestDropConnectionLeavesEveryRoom(t *testing.T) {
	h := newTestHub(t, newFakeStore(liveMatch("m1", "owner"), liveMatch("m2", "owner")))
	m := newFakeMember("c1", "u1")

	for _, id := range []string{"m1", "m2"} {
		_, _, err := h.Join(context.Background(), m, id, domain.RoleViewer)
		require.NoError(t, err)
	}
	h.Feed().Subscribe(m)

	_, viewers := h.Totals()
	require.Equal(t, 2, viewers)

	h.DropConnection(m.id)

	require.Eventually(t, func() bool {
		_, viewers := h.Totals()
		return viewers == 0
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, h.Feed().SubscriberCount())
}

func TestShutdownFlushesInProgressMatches(t *testing.T) {
	st := newFakeStore(liveMatch("m1", "owner"))
	h := New(testRoomConfig(), st, nil, nil)

	mgr := newFakeMember("c0", "owner")
	_, _, err := h.Join(context.Background(), mgr, "m1", domain.RoleManager)
	require.NoError(t, err)
	_, err = h.UpdateScore(context.Background(), mgr.id, "m1", 1, 0, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.Shutdown(ctx))

	flushed := st.flushedStates()
	require.Len(t, flushed, 1)
	assert.Equal(t, domain.StatusInProgress, flushed[0].Status)
	assert.Equal(t, uint64(1), flushed[0].LastSequence)

	_, _, err = h.Join(context.Background(), mgr, "m1", domain.RoleManager)
	assert.True(t, errors.Is(err, domain.ErrHubClosed))
}

func TestPresenceDeltaBroadcastOnJoinAndLeave(t *testing.T) {
	h := newTestHub(t, newFakeStore(liveMatch("m1", "owner")))
	v1 := newFakeMember("c1", "u1")
	v2 := newFakeMember("c2", "u2")

	_, _, err := h.Join(context.Background(), v1, "m1", domain.RoleViewer)
	require.NoError(t, err)
	_, _, err = h.Join(context.Background(), v2, "m1", domain.RoleViewer)
	require.NoError(t, err)

	deltas := v1.typed(t, domain.MsgTypePresenceDelta)
	require.Len(t, deltas, 2)
	assert.Equal(t, float64(1), deltas[0]["viewer_count"])
	assert.Equal(t, float64(2), deltas[1]["viewer_count"])

	require.NoError(t, h.Leave(context.Background(), v2.id, "m1"))
	require.Eventually(t, func() bool {
		return len(v1.typed(t, domain.MsgTypePresenceDelta)) == 3
	}, time.Second, 5*time.Millisecond)
	last := v1.typed(t, domain.MsgTypePresenceDelta)[2]
	assert.Equal(t, float64(1), last["viewer_count"])
}
