package pubsub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/richharvestCC/ScoreBoard-sub001/internal/domain"
)

// LifecycleEvent is a room lifecycle transition published to other hub
// instances and dashboard backends.
type LifecycleEvent struct {
	Type      string          `json:"type"`
	MatchID   string          `json:"match_id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewLifecycleEvent builds an event from a match state snapshot.
func NewLifecycleEvent(eventType string, snapshot *domain.MatchState) *LifecycleEvent {
	payload, _ := json.Marshal(map[string]interface{}{
		"status":     snapshot.Status,
		"home_score": snapshot.HomeScore,
		"away_score": snapshot.AwayScore,
		"sequence":   snapshot.LastSequence,
	})
	return &LifecycleEvent{
		Type:      eventType,
		MatchID:   snapshot.MatchID,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// LifecyclePublisher publishes lifecycle events to the event bus.
type LifecyclePublisher interface {
	PublishLifecycle(ctx context.Context, event *LifecycleEvent) error
	Close() error
}
