package engine

import (
	"sync"
	"testing"
)

func TestTaskPool_TryStealFor_SplitsLargestVictim(t *testing.T) {
	pool := Partition(100000, 4)
	// Drain workers 0,1,3 so only worker 2 has remaining work.
	pool.Task(0).start.Store(pool.Task(0).end.Load())
	pool.Task(1).start.Store(pool.Task(1).end.Load())
	pool.Task(3).start.Store(pool.Task(3).end.Load())

	victimStart, victimEnd := pool.Task(2).Snapshot()
	remaining := victimEnd - victimStart

	ok := pool.TryStealFor(0)
	if !ok {
		t.Fatal("TryStealFor(0) = false, want true")
	}

	newVictimStart, newVictimEnd := pool.Task(2).Snapshot()
	thiefStart, thiefEnd := pool.Task(0).Snapshot()

	if newVictimStart != victimStart {
		t.Errorf("victim start changed: got %d, want %d", newVictimStart, victimStart)
	}
	if newVictimEnd != victimEnd-remaining/2 {
		t.Errorf("victim end = %d, want %d", newVictimEnd, victimEnd-remaining/2)
	}
	if thiefStart != newVictimEnd {
		t.Errorf("thief start = %d, want %d (victim's new end)", thiefStart, newVictimEnd)
	}
	if thiefEnd != victimEnd {
		t.Errorf("thief end = %d, want %d (victim's old end)", thiefEnd, victimEnd)
	}
}

func TestTaskPool_TryStealFor_FailsBelowThreshold(t *testing.T) {
	pool := Partition(2*StealThreshold-2, 2)
	pool.Task(0).start.Store(pool.Task(0).end.Load())

	if ok := pool.TryStealFor(0); ok {
		t.Error("TryStealFor should fail when the largest remainder is below StealThreshold")
	}
}

func TestTaskPool_TryStealFor_NoVictimWhenAllDrained(t *testing.T) {
	pool := Partition(1000, 2)
	pool.Task(0).start.Store(pool.Task(0).end.Load())
	pool.Task(1).start.Store(pool.Task(1).end.Load())

	if ok := pool.TryStealFor(1); ok {
		t.Error("TryStealFor should fail when every other task is empty")
	}
}

func TestTaskPool_TryStealFor_HalvesRepeatedly(t *testing.T) {
	pool := Partition(1_000_000, 2)
	pool.Task(1).start.Store(pool.Task(1).end.Load())

	steals := 0
	for pool.TryStealFor(1) {
		steals++
		pool.Task(1).start.Store(pool.Task(1).end.Load()) // thief "drains" immediately
		if steals > 64 {
			t.Fatal("steal loop did not converge")
		}
	}
	if steals == 0 {
		t.Error("expected at least one successful steal")
	}
}

func TestTaskPool_TryStealFor_ConcurrentThievesDoNotDoubleSteal(t *testing.T) {
	const n = 8
	pool := Partition(10_000_000, n)
	for i := 1; i < n; i++ {
		pool.Task(i).start.Store(pool.Task(i).end.Load())
	}
	origStart, origEnd := pool.Task(0).Snapshot()

	var wg sync.WaitGroup
	results := make([]bool, n)
	for i := 1; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			results[id] = pool.TryStealFor(id)
		}(i)
	}
	wg.Wait()

	// Only worker 0 starts with remaining work, but every thief may win a
	// steal: halving keeps the remainders above threshold here, and a thief
	// may split a slice another thief already stole. Assert the thieves
	// together never hold more than worker 0 had before the steals began.
	var totalStolen int64
	for i := 1; i < n; i++ {
		if results[i] {
			s, e := pool.Task(i).Snapshot()
			totalStolen += e - s
		}
	}
	if totalStolen > origEnd-origStart {
		t.Errorf("stole %d bytes total, more than source task ever had (%d)", totalStolen, origEnd-origStart)
	}
}
