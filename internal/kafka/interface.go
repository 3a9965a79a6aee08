package kafka

import "context"

// DeltaProducer streams accepted match deltas to downstream consumers
// (persistence, analytics). Production is best-effort: the hub logs
// failures and never blocks a mutation on the stream.
type DeltaProducer interface {
	ProduceDelta(ctx context.Context, matchID string, delta interface{}) error
	Close() error
}
