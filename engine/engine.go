package engine

import (
	"context"
	"sync"
	"sync/atomic"
)

// Handle is returned to the caller of Run: the event stream, a join point
// for the write pipeline, and the running flag used to request
// cancellation (spec §6).
type Handle struct {
	// Events carries every Event emitted by workers and the write
	// pipeline, in emission order per producer (no cross-producer
	// ordering guarantee). The caller should keep draining it until it
	// closes; it closes once every worker has emitted a terminal event
	// and the write pipeline has finished.
	Events <-chan Event

	// WriterDone closes once the write pipeline has drained the queue and
	// flushed (or been cancelled).
	WriterDone <-chan struct{}

	running *atomic.Bool
	cancel  context.CancelFunc
}

// Cancel clears the running flag and wakes every worker/writer blocked on
// a suspension point. Monotonic: calling it more than once is a no-op.
func (h *Handle) Cancel() {
	if h.running.CompareAndSwap(true, false) {
		h.cancel()
	}
}

// Running reports whether the engine has not yet been cancelled.
func (h *Handle) Running() bool {
	return h.running.Load()
}

// Run starts the engine: it partitions opts.Chunks across opts.Concurrent
// workers, spawns the write pipeline, and returns immediately with a
// Handle. reader is cloned once per worker (spec §5); writer is owned
// exclusively by the write pipeline.
func Run(ctx context.Context, reader RandReader, writer RandWriter, opts Options) *Handle {
	runCtx, cancel := context.WithCancel(ctx)

	running := &atomic.Bool{}
	running.Store(true)

	bus := newEventBus()
	list := NewTaskList(opts.Chunks)
	pool := Partition(list.TotalLen(), opts.concurrency())

	queue := make(chan writeRecord, opts.writeQueueCap())
	writerDone := make(chan struct{})

	go runWriter(runCtx, writer, queue, running, bus, opts.retryGap(), writerDone)

	var wg sync.WaitGroup
	for i := 0; i < pool.Len(); i++ {
		wg.Add(1)
		workerReader := reader.Clone()
		go func(id int, r RandReader) {
			defer wg.Done()
			runWorker(runCtx, id, r, list, pool, queue, bus, running, opts.retryGap())
		}(i, workerReader)
	}

	go func() {
		wg.Wait()
		close(queue)
		<-writerDone
		bus.Close()
		cancel()
	}()

	return &Handle{
		Events:     bus.Events(),
		WriterDone: writerDone,
		running:    running,
		cancel:     cancel,
	}
}
