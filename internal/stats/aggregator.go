package stats

import (
	"sort"

	"github.com/richharvestCC/ScoreBoard-sub001/internal/hub"
)

// Aggregator is a read-only projection over the hub's room registry and
// presence counters. It is never a source of truth.
type Aggregator struct {
	hub *hub.Hub
}

// New creates an aggregator over the hub.
func New(h *hub.Hub) *Aggregator {
	return &Aggregator{hub: h}
}

// GlobalTotals holds the global presence counters.
type GlobalTotals struct {
	TotalLiveMatches int `json:"total_live_matches"`
	TotalViewers     int `json:"total_viewers"`
}

// ListLiveMatches returns a stats snapshot per materialized room, sorted
// by match id for stable output.
func (a *Aggregator) ListLiveMatches() []hub.RoomStats {
	stats := a.hub.RoomStats()
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].MatchID < stats[j].MatchID
	})
	return stats
}

// MatchStats returns the stats snapshot of one live match, reporting
// whether a room for it is currently materialized.
func (a *Aggregator) MatchStats(matchID string) (hub.RoomStats, bool) {
	return a.hub.MatchStats(matchID)
}

// Totals returns the global presence counters.
func (a *Aggregator) Totals() GlobalTotals {
	live, viewers := a.hub.Totals()
	return GlobalTotals{
		TotalLiveMatches: live,
		TotalViewers:     viewers,
	}
}
