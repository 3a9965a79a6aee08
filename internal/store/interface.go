package store

import (
	"context"
	"errors"

	"github.com/richharvestCC/ScoreBoard-sub001/internal/domain"
)

// ErrMatchNotFound is returned when a match id is unknown to the store.
var ErrMatchNotFound = errors.New("match not found in store")

// MatchStore is the persistence collaborator of the hub. The hub reads a
// match once to hydrate a room and writes back on terminal status
// transitions and on shutdown.
type MatchStore interface {
	// LoadMatch returns the persisted state of the match, including any
	// event log entries recorded before a hub restart.
	LoadMatch(ctx context.Context, matchID string) (*domain.MatchState, error)

	// FlushFinal durably records the given state. Called synchronously
	// before a terminal status delta is broadcast, and for in-progress
	// matches during shutdown.
	FlushFinal(ctx context.Context, state *domain.MatchState) error
}
