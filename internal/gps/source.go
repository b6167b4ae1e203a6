package gps

import "context"

// source is one GPS ingestion backend with a uniform capability set.
// The service layer never branches on the concrete source type.
type source interface {
	Name() Source

	// Connect establishes the stream. It is called again after any
	// stream failure, once the retry budget allows.
	Connect(ctx context.Context) error

	// ReadFix blocks until the next position-bearing record arrives and
	// returns it as a Fix (Valid=false when the record reports no fix).
	// Records carrying no position at all are consumed silently.
	// Unblocked by Close.
	ReadFix() (Fix, error)

	Close() error
}
