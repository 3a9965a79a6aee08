package domain

import (
	"encoding/json"
	"time"
)

// MatchStatus represents the lifecycle status of a match.
type MatchStatus string

const (
	StatusScheduled  MatchStatus = "scheduled"
	StatusInProgress MatchStatus = "in_progress"
	StatusCompleted  MatchStatus = "completed"
	StatusCancelled  MatchStatus = "cancelled"
)

// Valid reports whether s is a known match status.
func (s MatchStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether the status may move from s to next.
// Permitted: scheduled→in_progress, in_progress→completed,
// scheduled→cancelled. No backward transitions.
func (s MatchStatus) CanTransition(next MatchStatus) bool {
	switch s {
	case StatusScheduled:
		return next == StatusInProgress || next == StatusCancelled
	case StatusInProgress:
		return next == StatusCompleted
	}
	return false
}

// Terminal reports whether the status is an end state.
func (s MatchStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// EventTypeScore is the reserved event type recording score updates in
// the log, so replaying the log reproduces the score. Status transitions
// are not log entries and do not consume sequence numbers.
const EventTypeScore = "score"

// ScorePayload is the payload of an EventTypeScore entry.
type ScorePayload struct {
	Home   int  `json:"home"`
	Away   int  `json:"away"`
	Minute *int `json:"minute,omitempty"`
}

// MatchEvent is one append-only entry in a match's event log.
type MatchEvent struct {
	Sequence      uint64          `json:"sequence"`
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	ClientEventID string          `json:"client_event_id,omitempty"`
	UserID        string          `json:"user_id,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// MatchState is the canonical live state of one match. It is owned
// exclusively by the match's room actor; everything handed to other
// goroutines is a deep copy.
type MatchState struct {
	MatchID      string       `json:"match_id"`
	OwnerID      string       `json:"owner_id,omitempty"`
	Status       MatchStatus  `json:"status"`
	HomeScore    int          `json:"home_score"`
	AwayScore    int          `json:"away_score"`
	Events       []MatchEvent `json:"events"`
	LastSequence uint64       `json:"last_sequence"`
	LastUpdate   time.Time    `json:"last_update"`
}

// NewMatchState returns a fresh scheduled match state.
func NewMatchState(matchID, ownerID string) *MatchState {
	return &MatchState{
		MatchID: matchID,
		OwnerID: ownerID,
		Status:  StatusScheduled,
	}
}

// Append records a new event with the next sequence number and returns it.
func (m *MatchState) Append(eventType string, payload json.RawMessage, clientEventID, userID string, now time.Time) MatchEvent {
	ev := MatchEvent{
		Sequence:      m.LastSequence + 1,
		Type:          eventType,
		Payload:       payload,
		ClientEventID: clientEventID,
		UserID:        userID,
		Timestamp:     now,
	}
	m.Events = append(m.Events, ev)
	m.LastSequence = ev.Sequence
	m.LastUpdate = now
	return ev
}

// Snapshot returns a deep copy safe to hand to other goroutines.
func (m *MatchState) Snapshot() *MatchState {
	cp := *m
	cp.Events = make([]MatchEvent, len(m.Events))
	copy(cp.Events, m.Events)
	for i := range cp.Events {
		if m.Events[i].Payload != nil {
			cp.Events[i].Payload = append(json.RawMessage(nil), m.Events[i].Payload...)
		}
	}
	return &cp
}

// SnapshotAt reconstructs the snapshot a connection joining at sequence
// seq would have received: the event log truncated to seq with the score
// replayed from it. Status is not sequenced and carries the current
// value.
func (m *MatchState) SnapshotAt(seq uint64) *MatchState {
	out := NewMatchState(m.MatchID, m.OwnerID)
	out.Status = m.Status
	for _, ev := range m.Events {
		if ev.Sequence > seq {
			break
		}
		if ev.Type == EventTypeScore {
			var p ScorePayload
			if err := json.Unmarshal(ev.Payload, &p); err == nil {
				out.HomeScore = p.Home
				out.AwayScore = p.Away
			}
		}
		cp := ev
		if ev.Payload != nil {
			cp.Payload = append(json.RawMessage(nil), ev.Payload...)
		}
		out.Events = append(out.Events, cp)
		out.LastSequence = ev.Sequence
		out.LastUpdate = ev.Timestamp
	}
	return out
}

// Replay rebuilds the state from the event log alone plus the final
// status, verifying that the log is a complete history: the replayed
// score must equal the stored score.
func (m *MatchState) Replay() *MatchState {
	return m.SnapshotAt(m.LastSequence)
}
