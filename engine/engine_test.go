package engine

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// collectEvents drains handle.Events until it closes, returning everything
// seen. Safe to use in tests because a finished/cancelled engine always
// closes its bus.
func collectEvents(t *testing.T, h *Handle) []Event {
	t.Helper()
	var events []Event
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range h.Events {
			events = append(events, e)
		}
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out draining events")
	}
	return events
}

func rangesOfKind(events []Event, kind EventKind) []ProgressEntry {
	var out []ProgressEntry
	for _, e := range events {
		if e.Kind == kind {
			out = append(out, e.Range)
		}
	}
	return out
}

// S1: single worker, single range.
func TestEngine_S1_SingleWorkerSingleRange(t *testing.T) {
	data := randomBytes(1024)
	reader := newMemReader(data, 97)
	writer := newMemWriter(1024)

	h := Run(context.Background(), reader, writer, Options{
		Chunks:     []ProgressEntry{{Start: 0, End: 1024}},
		Concurrent: 1,
	})
	events := collectEvents(t, h)
	<-h.WriterDone

	readMerged := mergeRanges(rangesOfKind(events, EventReadProgress))
	writeMerged := mergeRanges(rangesOfKind(events, EventWriteProgress))

	require.Equal(t, []ProgressEntry{{Start: 0, End: 1024}}, readMerged)
	require.Equal(t, []ProgressEntry{{Start: 0, End: 1024}}, writeMerged)

	finished := 0
	for _, e := range events {
		if e.Kind == EventFinished {
			finished++
			require.Equal(t, 0, e.WorkerID)
		}
	}
	require.Equal(t, 1, finished)

	got, _ := writer.snapshot()
	require.Equal(t, data, got)
}

// S2: heavy stealing.
func TestEngine_S2_HeavyStealing(t *testing.T) {
	data := randomBytes(3072)
	reader := newMemReader(data, 64)
	writer := newMemWriter(3072)

	h := Run(context.Background(), reader, writer, Options{
		Chunks:        []ProgressEntry{{Start: 0, End: 3072}},
		Concurrent:    32,
		WriteQueueCap: 1024,
	})
	events := collectEvents(t, h)
	<-h.WriterDone

	readMerged := mergeRanges(rangesOfKind(events, EventReadProgress))
	writeMerged := mergeRanges(rangesOfKind(events, EventWriteProgress))
	require.Equal(t, []ProgressEntry{{Start: 0, End: 3072}}, readMerged)
	require.Equal(t, []ProgressEntry{{Start: 0, End: 3072}}, writeMerged)

	got, _ := writer.snapshot()
	require.Equal(t, data, got)
}

// S3: multi-range input, no progress for the gap.
func TestEngine_S3_MultiRange(t *testing.T) {
	total := 600
	data := randomBytes(total)
	reader := newMemReader(data, 37)
	writer := newMemWriter(int64(total))

	h := Run(context.Background(), reader, writer, Options{
		Chunks:     []ProgressEntry{{Start: 0, End: 100}, {Start: 500, End: 600}},
		Concurrent: 4,
	})
	events := collectEvents(t, h)
	<-h.WriterDone

	readMerged := mergeRanges(rangesOfKind(events, EventReadProgress))
	writeMerged := mergeRanges(rangesOfKind(events, EventWriteProgress))
	want := []ProgressEntry{{Start: 0, End: 100}, {Start: 500, End: 600}}
	require.Equal(t, want, readMerged)
	require.Equal(t, want, writeMerged)

	for _, r := range readMerged {
		require.False(t, r.Start < 100 && r.End > 100, "no progress should span the untouched gap")
	}
}

// S4: cancel shortly after the first ReadProgress.
func TestEngine_S4_CancelEarly(t *testing.T) {
	data := randomBytes(10 * 1024 * 1024)
	reader := newMemReader(data, 256)
	writer := newMemWriter(int64(len(data)))

	h := Run(context.Background(), reader, writer, Options{
		Chunks:     []ProgressEntry{{Start: 0, End: int64(len(data))}},
		Concurrent: 4,
	})

	var events []Event
	firstSeen := false
	for e := range h.Events {
		events = append(events, e)
		if e.Kind == EventReadProgress && !firstSeen {
			firstSeen = true
			h.Cancel()
		}
	}
	<-h.WriterDone

	require.True(t, firstSeen, "expected at least one ReadProgress before cancelling")

	byWorker := map[int]int{}
	for _, e := range events {
		if e.Kind == EventCancelled || e.Kind == EventFinished {
			byWorker[e.WorkerID]++
		}
	}
	for id, n := range byWorker {
		require.Equal(t, 1, n, "worker %d should emit exactly one terminal event", id)
	}
	require.False(t, h.Running())
}

// S5: flaky reader recovers on retry.
func TestEngine_S5_FlakyReader(t *testing.T) {
	data := randomBytes(1024)
	reader := newMemReader(data, 97).withFlakyRanges(0)
	writer := newMemWriter(1024)

	h := Run(context.Background(), reader, writer, Options{
		Chunks:     []ProgressEntry{{Start: 0, End: 1024}},
		Concurrent: 1,
		RetryGap:   5 * time.Millisecond,
	})
	events := collectEvents(t, h)
	<-h.WriterDone

	sawReadError := false
	for _, e := range events {
		if e.Kind == EventReadError {
			sawReadError = true
		}
	}
	require.True(t, sawReadError, "expected at least one ReadError before recovery")

	readMerged := mergeRanges(rangesOfKind(events, EventReadProgress))
	require.Equal(t, []ProgressEntry{{Start: 0, End: 1024}}, readMerged)

	got, _ := writer.snapshot()
	require.Equal(t, data, got)
}

// S6: empty input.
func TestEngine_S6_EmptyInput(t *testing.T) {
	writer := newMemWriter(0)
	reader := newMemReader(nil, 64)

	h := Run(context.Background(), reader, writer, Options{
		Chunks:     nil,
		Concurrent: 8,
	})
	events := collectEvents(t, h)
	<-h.WriterDone

	finished := 0
	for _, e := range events {
		switch e.Kind {
		case EventFinished:
			finished++
		case EventReadProgress, EventWriteProgress:
			t.Errorf("unexpected progress event for empty input: %v", e)
		}
	}
	require.Equal(t, 8, finished)
	_, writes := writer.snapshot()
	require.Empty(t, writes)
}

func randomBytes(n int) []byte {
	r := rand.New(rand.NewSource(1))
	b := make([]byte, n)
	r.Read(b)
	return b
}
