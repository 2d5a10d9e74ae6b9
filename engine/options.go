package engine

import "time"

// Size/threshold constants. Nil-safe getters fall back to these when the
// caller's Options leaves a field unset.
const (
	// StealThreshold is the minimum remaining logical length (in the
	// TaskList's logical coordinate space) below which stealing is
	// abandoned as unprofitable (spec §4.3).
	StealThreshold int64 = 16 * 1024

	// DefaultConcurrency is used when Options.Concurrent is unset.
	DefaultConcurrency = 4

	// DefaultRetryGap is the fixed backoff between retries of a failed
	// read, write, or flush (spec §7).
	DefaultRetryGap = 2 * time.Second

	// DefaultWriteQueueCap bounds the read-to-write handoff queue.
	DefaultWriteQueueCap = 64
)

// Options configures one engine run (spec §6's DownloadOptions).
type Options struct {
	// Chunks is the ordered list of absolute ranges to fetch. Not required
	// to be sorted or disjoint.
	Chunks []ProgressEntry

	// Concurrent is the worker count N >= 1. Zero uses DefaultConcurrency.
	Concurrent int

	// RetryGap is slept between retry attempts for read/write/flush. Zero
	// uses DefaultRetryGap.
	RetryGap time.Duration

	// WriteQueueCap bounds the read->write handoff queue. Zero uses
	// DefaultWriteQueueCap.
	WriteQueueCap int
}

func (o Options) concurrency() int {
	if o.Concurrent <= 0 {
		return DefaultConcurrency
	}
	return o.Concurrent
}

func (o Options) retryGap() time.Duration {
	if o.RetryGap <= 0 {
		return DefaultRetryGap
	}
	return o.RetryGap
}

func (o Options) writeQueueCap() int {
	if o.WriteQueueCap <= 0 {
		return DefaultWriteQueueCap
	}
	return o.WriteQueueCap
}
