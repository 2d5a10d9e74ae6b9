package engine

import (
	"context"
	"sync/atomic"
	"time"
)

// runWorker drives one worker's outer loop (spec §4.2): drain the owned
// task slice, then try to steal, until either the running flag clears or
// the steal protocol reports no profitable victim remains.
func runWorker(ctx context.Context, id int, reader RandReader, list *TaskList, pool *TaskPool, queue chan<- writeRecord, bus *eventBus, running *atomic.Bool, retryGap time.Duration) {
	task := pool.Task(id)

	for {
		if !running.Load() {
			bus.Push(Event{Kind: EventCancelled, WorkerID: id})
			return
		}

		s, e := task.Snapshot()
		if s < e {
			if !drainSlice(ctx, id, reader, list, task, queue, bus, running, retryGap) {
				// Cancelled mid-drain.
				bus.Push(Event{Kind: EventCancelled, WorkerID: id})
				return
			}
			continue
		}

		if pool.TryStealFor(id) {
			continue
		}

		bus.Push(Event{Kind: EventFinished, WorkerID: id})
		return
	}
}

// drainSlice consumes task's remaining interval, range by range, chunk by
// chunk, returning false if the engine was cancelled mid-drain.
func drainSlice(ctx context.Context, id int, reader RandReader, list *TaskList, task *Task, queue chan<- writeRecord, bus *eventBus, running *atomic.Bool, retryGap time.Duration) bool {
	s, e := task.Snapshot()
	ranges := list.GetRange(s, e)

	for _, rng := range ranges {
		if !running.Load() {
			return false
		}

		consumedInRange := int64(0)
		for {
			bus.Push(Event{Kind: EventReading, WorkerID: id})
			readCtx, cancelRead := context.WithCancel(ctx)
			ch := reader.Read(readCtx, ProgressEntry{Start: rng.Start + consumedInRange, End: rng.End})

			ok, advancedPastEnd, readErr := drainOneRead(ctx, id, ch, task, rng, &consumedInRange, queue, bus, running)
			// Releases the reader whether the stream was exhausted, cut
			// short by a steal shrinking task.End, or abandoned on cancel
			// or error -- a goroutine-backed RandReader must see this to
			// stop producing into a channel nobody drains anymore.
			cancelRead()
			if !ok {
				return false
			}
			if advancedPastEnd {
				return true
			}
			if readErr == nil {
				// Stream ended (possibly short); move on to the next range.
				break
			}

			bus.Push(Event{Kind: EventReadError, WorkerID: id, Err: readErr})
			if !sleepOrStop(ctx, retryGap, running) {
				return false
			}
			// Reissue the read over the remaining sub-range (spec §9 Open
			// Question: re-issue rather than trust the reader's cursor).
		}
	}
	return true
}

// drainOneRead consumes a single reader.Read() stream until it ends or
// fails. It returns ok=false if the engine was cancelled, advancedPastEnd
// =true if the task's end was reached (the caller should stop draining and
// return to the outer loop), and readErr set when the stream failed (the
// caller should retry from consumedInRange).
func drainOneRead(ctx context.Context, id int, ch <-chan Chunk, task *Task, rng ProgressEntry, consumedInRange *int64, queue chan<- writeRecord, bus *eventBus, running *atomic.Bool) (ok bool, advancedPastEnd bool, readErr error) {
	for c := range ch {
		if !running.Load() {
			return false, false, nil
		}
		if c.Err != nil {
			return true, false, c.Err
		}

		n := int64(len(c.Data))
		if n == 0 {
			continue
		}

		newStart := task.advance(n)
		_, taskEnd := task.Snapshot()

		absStart := rng.Start + *consumedInRange
		absEnd := absStart + n
		if absEnd > rng.End {
			// A compliant reader never yields more bytes for a range than
			// the range itself spans; this is a programming error in the
			// collaborator, not a retryable fault (spec §7).
			panic(ErrChunkOverrun)
		}
		*consumedInRange += n

		span := ProgressEntry{Start: absStart, End: absEnd}
		// taskEnd is in logical coordinates; clip using how far the task's
		// end corresponds to in this absolute range. Since newStart is the
		// logical position just past the bytes we consumed, and taskEnd is
		// the logical boundary, the absolute clip point is absEnd minus
		// however far newStart has overshot taskEnd.
		if newStart > taskEnd {
			overshoot := newStart - taskEnd
			if overshoot > n {
				// Entire chunk lies past the new end: nothing to emit.
				return true, true, nil
			}
			span = span.clip(absEnd - overshoot)
		}

		if !span.Empty() {
			bus.Push(Event{Kind: EventReadProgress, WorkerID: id, Range: span})

			buf := make([]byte, span.Len())
			copy(buf, c.Data[:span.Len()])

			select {
			case queue <- writeRecord{WorkerID: id, Range: span, Bytes: buf}:
			case <-ctx.Done():
				return false, false, nil
			}
		}

		if newStart >= taskEnd {
			return true, true, nil
		}
	}
	return true, false, nil
}
