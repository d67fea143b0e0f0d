package contracts

import "context"

// DeltaSource is a pull-based upstream stream of Deltas.
// Next blocks until the next Delta is available and returns io.EOF once the
// source is exhausted. Close asks the upstream to stop producing and must be
// safe to call concurrently with a blocked Next.
type DeltaSource interface {
	Next() (Delta, error)
	Close() error
}

// Opener issues the upstream call for one Session
type Opener func(ctx context.Context) (DeltaSource, error)

// Sink is the outbound byte stream of a Session.
// Only the Session closes a Sink; cause is nil on clean completion.
type Sink interface {
	Write(frame []byte) error
	Flush() error
	Close(cause error) error
}

// ConnectionState tracks client connection status
type ConnectionState interface {
	IsConnected() bool
	Done() <-chan struct{}
}
