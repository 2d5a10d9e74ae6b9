package engine

import (
	"context"
	"errors"
	"sync"
)

// memReader is a RandReader backed by an in-memory byte slice, used by the
// engine's own integration tests. It delivers data in fixed-size chunks so
// tests exercise chunk-boundary clipping the same way an HTTP body would.
type memReader struct {
	data      []byte
	chunkSize int

	mu          sync.Mutex
	failOnce    map[int64]bool // range starts that should fail exactly once
	failedSoFar map[int64]bool
}

func newMemReader(data []byte, chunkSize int) *memReader {
	if chunkSize <= 0 {
		chunkSize = 4096
	}
	return &memReader{data: data, chunkSize: chunkSize, failedSoFar: map[int64]bool{}}
}

func (r *memReader) withFlakyRanges(starts ...int64) *memReader {
	r.failOnce = map[int64]bool{}
	for _, s := range starts {
		r.failOnce[s] = true
	}
	return r
}

func (r *memReader) Clone() RandReader {
	return r
}

func (r *memReader) Read(ctx context.Context, rng ProgressEntry) <-chan Chunk {
	out := make(chan Chunk, 1)
	go func() {
		defer close(out)

		if r.failOnce != nil && r.failOnce[rng.Start] {
			r.mu.Lock()
			already := r.failedSoFar[rng.Start]
			r.failedSoFar[rng.Start] = true
			r.mu.Unlock()
			if !already {
				select {
				case out <- Chunk{Err: errors.New("simulated transient read failure")}:
				case <-ctx.Done():
				}
				return
			}
		}

		pos := rng.Start
		for pos < rng.End {
			end := pos + int64(r.chunkSize)
			if end > rng.End {
				end = rng.End
			}
			buf := make([]byte, end-pos)
			copy(buf, r.data[pos:end])
			select {
			case out <- Chunk{Data: buf}:
			case <-ctx.Done():
				return
			}
			pos = end
		}
	}()
	return out
}

// memWriter is a RandWriter backed by an in-memory buffer sized at
// construction and grown when a write runs past its end; it records every
// accepted write for assertions.
type memWriter struct {
	mu     sync.Mutex
	data   []byte
	writes []ProgressEntry

	flushed   bool
	flushErrN int // number of times Flush should fail before succeeding
}

func newMemWriter(size int64) *memWriter {
	return &memWriter{data: make([]byte, size)}
}

func (w *memWriter) Write(ctx context.Context, rng ProgressEntry, bytes []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if rng.End > int64(len(w.data)) {
		grown := make([]byte, rng.End)
		copy(grown, w.data)
		w.data = grown
	}
	copy(w.data[rng.Start:rng.End], bytes)
	w.writes = append(w.writes, rng)
	return nil
}

func (w *memWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.flushErrN > 0 {
		w.flushErrN--
		return errors.New("simulated flush failure")
	}
	w.flushed = true
	return nil
}

func (w *memWriter) snapshot() ([]byte, []ProgressEntry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	data := make([]byte, len(w.data))
	copy(data, w.data)
	writes := make([]ProgressEntry, len(w.writes))
	copy(writes, w.writes)
	return data, writes
}

// mergeRanges coalesces overlapping/adjacent ranges and sorts them, used by
// tests to check coverage against the input chunk set.
func mergeRanges(ranges []ProgressEntry) []ProgressEntry {
	if len(ranges) == 0 {
		return nil
	}
	cp := append([]ProgressEntry(nil), ranges...)
	for i := 1; i < len(cp); i++ {
		for j := i; j > 0 && cp[j-1].Start > cp[j].Start; j-- {
			cp[j-1], cp[j] = cp[j], cp[j-1]
		}
	}
	merged := []ProgressEntry{cp[0]}
	for _, r := range cp[1:] {
		last := &merged[len(merged)-1]
		if r.Start <= last.End {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}
