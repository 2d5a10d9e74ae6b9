package engine

import "context"

// Chunk is one buffer handed back by a RandReader while it streams a range.
// Err is set on the final chunk of a failed read; Data may still carry
// whatever bytes were read before the failure.
type Chunk struct {
	Data []byte
	Err  error
}

// RandReader fetches byte ranges from a random-access source. Clones must be
// cheap: the engine spawns one per worker and uses them concurrently, each
// with its own cursor. A clone is a capability statement, not necessarily a
// deep copy — it may share an underlying connection pool.
type RandReader interface {
	// Read streams the bytes of range over the returned channel, in order,
	// closing it once range.Len() bytes have been delivered or a Chunk with
	// a non-nil Err has been sent. The channel must be drained or ctx
	// cancelled to avoid leaking the producer goroutine.
	Read(ctx context.Context, rng ProgressEntry) <-chan Chunk

	// Clone returns an independent reader over the same backing source.
	Clone() RandReader
}

// RandWriter accepts random-access writes. Calls may arrive for disjoint or
// overlapping ranges in any order; the writer is responsible for placement.
type RandWriter interface {
	// Write places bytes at the absolute offsets described by rng.
	// len(bytes) must equal rng.Len().
	Write(ctx context.Context, rng ProgressEntry, bytes []byte) error

	// Flush durably persists all writes accepted so far.
	Flush(ctx context.Context) error
}
