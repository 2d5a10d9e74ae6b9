package engine

import (
	"sync"
	"sync/atomic"
)

// Task is one worker's slice of the logical coordinate space (spec §3).
// Start is advanced monotonically by the owning worker via atomic
// fetch-add. End is set once at partition time and is thereafter mutated
// only by a thief holding the pool's steal mutex; any worker may read it
// with a plain atomic load to pick a steal victim.
type Task struct {
	start atomic.Int64
	end   atomic.Int64
}

// Snapshot returns the current start/end pair.
func (t *Task) Snapshot() (start, end int64) {
	return t.start.Load(), t.end.Load()
}

// Empty reports whether the task has no remaining logical positions.
func (t *Task) Empty() bool {
	s, e := t.Snapshot()
	return s >= e
}

// remaining clamps a transiently negative remainder to zero, per §4.3 step 1.
func (t *Task) remaining() int64 {
	s, e := t.Snapshot()
	if s >= e {
		return 0
	}
	return e - s
}

// advance performs the single serializing fetch-add on Start that lets
// concurrent stealers reason about how much of the slice remains. It
// returns the updated Start.
func (t *Task) advance(n int64) int64 {
	return t.start.Add(n)
}

// TaskPool is the process-wide steal coordinator (spec §4.3): a set of
// per-worker Tasks plus the single mutex that serializes steal decisions.
type TaskPool struct {
	tasks []*Task
	mu    sync.Mutex
}

// Partition splits total logical length L into N contiguous slices, one per
// worker, with slice i covering [i*L/N, (i+1)*L/N) (spec §4.1). Empty
// slices are permitted when L < N and are immediately eligible for
// stealing.
func Partition(totalLen int64, n int) *TaskPool {
	if n < 1 {
		n = 1
	}
	tasks := make([]*Task, n)
	for i := 0; i < n; i++ {
		lo := (totalLen * int64(i)) / int64(n)
		hi := (totalLen * int64(i+1)) / int64(n)
		t := &Task{}
		t.start.Store(lo)
		t.end.Store(hi)
		tasks[i] = t
	}
	return &TaskPool{tasks: tasks}
}

// Task returns the slice owned by worker id.
func (p *TaskPool) Task(id int) *Task {
	return p.tasks[id]
}

// Len returns the number of worker slots in the pool.
func (p *TaskPool) Len() int {
	return len(p.tasks)
}

// TryStealFor runs the steal protocol on behalf of an idle thief (spec
// §4.3). It scans every task for the largest remaining slice; if that
// remainder clears StealThreshold, it halves the victim's tail into the
// thief's slot and returns true. Returns false if no victim is worth
// splitting.
//
// Holding the pool mutex for the whole decision guarantees no two thieves
// target the same victim concurrently, and that a victim observes any
// reduction of its own End on its next atomic load before it could emit a
// write for bytes past it.
func (p *TaskPool) TryStealFor(thiefID int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	victimID := -1
	var maxRemaining int64
	for i, t := range p.tasks {
		if i == thiefID {
			continue
		}
		if rem := t.remaining(); rem > maxRemaining {
			maxRemaining = rem
			victimID = i
		}
	}

	if victimID == -1 || maxRemaining < StealThreshold {
		return false
	}

	victim := p.tasks[victimID]
	thief := p.tasks[thiefID]

	half := maxRemaining / 2
	if half == 0 {
		return false
	}

	e := victim.end.Load()
	newEnd := e - half
	victim.end.Store(newEnd)

	thief.start.Store(newEnd)
	thief.end.Store(e)

	return true
}
