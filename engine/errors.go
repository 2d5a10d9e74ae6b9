package engine

import "errors"

// ErrChunkOverrun is an internal invariant violation: a reader delivered
// more bytes for a range than the range spans. (Bytes past a task's end
// after a steal are clipped, not reported with this error.) A compliant
// RandReader must never trigger this; it is surfaced as a panic rather than
// a retryable error (spec §7).
var ErrChunkOverrun = errors.New("chunkmux: chunk exceeds remaining task interval")
