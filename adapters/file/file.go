// Package file implements engine.RandReader and engine.RandWriter backed by
// a local, already-sized file, for reading a source file at arbitrary
// offsets and writing a destination file at arbitrary offsets concurrently.
package file

import (
	"context"
	"fmt"
	"os"

	"github.com/gofrs/flock"

	"github.com/chunkmux/chunkmux/engine"
)

// Reader is an engine.RandReader over a local file opened read-only.
type Reader struct {
	f         *os.File
	chunkSize int
}

// OpenReader opens path for random-access reads. chunkSize bounds how much
// is read and delivered per Chunk; callers pass 0 to use a sensible default.
func OpenReader(path string, chunkSize int) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("file: open %s: %w", path, err)
	}
	if chunkSize <= 0 {
		chunkSize = 256 * 1024
	}
	return &Reader{f: f, chunkSize: chunkSize}, nil
}

// Clone returns a Reader sharing the same open file descriptor; concurrent
// ReadAt calls on one *os.File are safe, so no separate handle is needed.
func (r *Reader) Clone() engine.RandReader {
	return &Reader{f: r.f, chunkSize: r.chunkSize}
}

func (r *Reader) Close() error {
	return r.f.Close()
}

// Read streams rng in chunkSize pieces via ReadAt, matching the pull-based
// shape worker.go expects: one Chunk per successful read, a final Chunk
// carrying Err on failure, closed either way.
func (r *Reader) Read(ctx context.Context, rng engine.ProgressEntry) <-chan engine.Chunk {
	out := make(chan engine.Chunk, 1)
	go func() {
		defer close(out)

		pos := rng.Start
		for pos < rng.End {
			size := int64(r.chunkSize)
			if pos+size > rng.End {
				size = rng.End - pos
			}
			buf := make([]byte, size)
			n, err := r.f.ReadAt(buf, pos)
			if n > 0 {
				select {
				case out <- engine.Chunk{Data: buf[:n]}:
				case <-ctx.Done():
					return
				}
				pos += int64(n)
			}
			if err != nil {
				select {
				case out <- engine.Chunk{Err: fmt.Errorf("file: read at %d: %w", pos, err)}:
				case <-ctx.Done():
				}
				return
			}
		}
	}()
	return out
}

// Writer is an engine.RandWriter over a local file, pre-sized with
// Truncate, locked exclusively until Close so two chunkmux runs never write
// the same destination concurrently.
type Writer struct {
	f    *os.File
	lock *flock.Flock
}

// CreateWriter creates (or truncates) path, sizes it to totalLen, and takes
// an exclusive advisory lock on a sibling ".lock" file.
func CreateWriter(path string, totalLen int64) (*Writer, error) {
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("file: acquire lock for %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("file: %s is locked by another run", path)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("file: open %s: %w", path, err)
	}
	if err := f.Truncate(totalLen); err != nil {
		f.Close()
		lock.Unlock()
		return nil, fmt.Errorf("file: truncate %s: %w", path, err)
	}
	return &Writer{f: f, lock: lock}, nil
}

func (w *Writer) Write(ctx context.Context, rng engine.ProgressEntry, bytes []byte) error {
	_, err := w.f.WriteAt(bytes, rng.Start)
	if err != nil {
		return fmt.Errorf("file: write at %d: %w", rng.Start, err)
	}
	return nil
}

func (w *Writer) Flush(ctx context.Context) error {
	return w.f.Sync()
}

// Close syncs, closes the file, and releases the exclusive lock.
func (w *Writer) Close() error {
	syncErr := w.f.Sync()
	closeErr := w.f.Close()
	unlockErr := w.lock.Unlock()
	if syncErr != nil {
		return syncErr
	}
	if closeErr != nil {
		return closeErr
	}
	return unlockErr
}
