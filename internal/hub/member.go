package hub

import "github.com/richharvestCC/ScoreBoard-sub001/internal/domain"

// Member is a connection as seen by the hub. The gateway's Client is the
// production implementation; tests substitute fakes.
type Member interface {
	// ID returns the connection id, unique per transport instance.
	ID() string

	// Identity returns the authenticated principal behind the connection.
	Identity() domain.Identity

	// TrySend enqueues an already-marshalled frame without blocking.
	// It returns false if the outbound queue is full or the connection
	// is closed; the caller then force-disconnects the member.
	TrySend(data []byte) bool

	// Kick force-disconnects the member asynchronously. It must not
	// block: it is called from inside room actor loops.
	Kick(reason string)

	// Closed reports whether the connection has been torn down.
	Closed() bool
}
