package hub

import (
	"encoding/json"
	"sync"

	"github.com/richharvestCC/ScoreBoard-sub001/pkg/log"
)

// Feed broadcasts room lifecycle events and presence summaries to
// dashboard subscribers, decoupled from per-room membership.
type Feed struct {
	mu          sync.RWMutex
	subscribers map[string]Member
}

func newFeed() *Feed {
	return &Feed{subscribers: make(map[string]Member)}
}

// Subscribe registers a dashboard connection.
func (f *Feed) Subscribe(m Member) {
	f.mu.Lock()
	f.subscribers[m.ID()] = m
	f.mu.Unlock()
	log.L().Debug().Str(log.FieldConnID, m.ID()).Msg("feed subscriber added")
}

// Unsubscribe removes a dashboard connection. Safe to call for
// connections that never subscribed.
func (f *Feed) Unsubscribe(connID string) {
	f.mu.Lock()
	delete(f.subscribers, connID)
	f.mu.Unlock()
}

// SubscriberCount returns the current number of dashboard subscribers.
func (f *Feed) SubscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers)
}

func (f *Feed) publish(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.L().Error().Err(err).Msg("failed to marshal feed message")
		return
	}

	f.mu.RLock()
	subs := make([]Member, 0, len(f.subscribers))
	for _, m := range f.subscribers {
		subs = append(subs, m)
	}
	f.mu.RUnlock()

	for _, m := range subs {
		if !m.TrySend(data) {
			m.Kick("feed queue overflow")
		}
	}
}
