package domain

import (
	"encoding/json"
	"time"
)

// WebSocket message types from client.
const (
	MsgTypeJoin         = "join"
	MsgTypeLeave        = "leave"
	MsgTypeUpdateScore  = "update_score"
	MsgTypeAddEvent     = "add_event"
	MsgTypeChangeStatus = "change_status"
	MsgTypePing         = "ping"
)

// WebSocket message types to client.
const (
	MsgTypeJoined        = "joined"
	MsgTypeSnapshot      = "snapshot"
	MsgTypeScoreDelta    = "score_delta"
	MsgTypeEventDelta    = "event_delta"
	MsgTypeStatusDelta   = "status_delta"
	MsgTypePresenceDelta = "presence_delta"
	MsgTypeError         = "error"
	MsgTypePong          = "pong"
)

// Global feed message types (dashboard subscribers only).
const (
	MsgTypeMatchStarted    = "match_started"
	MsgTypeMatchEnded      = "match_ended"
	MsgTypeMatchCancelled  = "match_cancelled"
	MsgTypePresenceSummary = "presence_summary"
)

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

type JoinMessage struct {
	Type    string `json:"type"`
	MatchID string `json:"match_id"`
	Role    Role   `json:"role,omitempty"`
}

type LeaveMessage struct {
	Type    string `json:"type"`
	MatchID string `json:"match_id"`
}

type UpdateScoreMessage struct {
	Type      string `json:"type"`
	MatchID   string `json:"match_id"`
	HomeScore int    `json:"home_score"`
	AwayScore int    `json:"away_score"`
	Minute    *int   `json:"minute,omitempty"`
}

type AddEventMessage struct {
	Type          string          `json:"type"`
	MatchID       string          `json:"match_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	ClientEventID string          `json:"client_event_id,omitempty"`
}

type ChangeStatusMessage struct {
	Type    string      `json:"type"`
	MatchID string      `json:"match_id"`
	Status  MatchStatus `json:"status"`
}

// Server -> Client messages

type JoinedMessage struct {
	Type     string      `json:"type"`
	MatchID  string      `json:"match_id"`
	Role     Role        `json:"role"`
	Snapshot *MatchState `json:"snapshot"`
}

type ScoreDeltaMessage struct {
	Type      string    `json:"type"`
	MatchID   string    `json:"match_id"`
	Sequence  uint64    `json:"sequence"`
	HomeScore int       `json:"home_score"`
	AwayScore int       `json:"away_score"`
	Minute    *int      `json:"minute,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type EventDeltaMessage struct {
	Type      string          `json:"type"`
	MatchID   string          `json:"match_id"`
	Sequence  uint64          `json:"sequence"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type StatusDeltaMessage struct {
	Type      string      `json:"type"`
	MatchID   string      `json:"match_id"`
	Sequence  uint64      `json:"sequence"`
	Status    MatchStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
}

type PresenceDeltaMessage struct {
	Type         string `json:"type"`
	MatchID      string `json:"match_id"`
	ViewerCount  int    `json:"viewer_count"`
	ManagerCount int    `json:"manager_count"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	MatchID string `json:"match_id,omitempty"`
}

func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}

// Feed messages

type MatchLifecycleMessage struct {
	Type      string      `json:"type"`
	MatchID   string      `json:"match_id"`
	Status    MatchStatus `json:"status"`
	HomeScore int         `json:"home_score"`
	AwayScore int         `json:"away_score"`
	Timestamp time.Time   `json:"timestamp"`
}

type PresenceSummaryMessage struct {
	Type             string `json:"type"`
	TotalLiveMatches int    `json:"total_live_matches"`
	TotalViewers     int    `json:"total_viewers"`
}
