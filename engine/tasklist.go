package engine

import "sort"

// TaskList is an immutable, pure view over an ordered set of chunks
// (download_chunks, spec §3) that lets the engine address byte ranges by
// logical position: the offset into the concatenation of all chunks, as
// opposed to the absolute offset within the backing source. Chunks need not
// be sorted or disjoint; they are treated as an ordered list of segments to
// fetch.
type TaskList struct {
	chunks []ProgressEntry
	// prefix[i] is the logical position at which chunks[i] begins; prefix
	// has len(chunks)+1 entries, prefix[len(chunks)] == total length.
	prefix []int64
}

// NewTaskList builds a TaskList from the caller's chunk set.
func NewTaskList(chunks []ProgressEntry) *TaskList {
	prefix := make([]int64, len(chunks)+1)
	for i, c := range chunks {
		prefix[i+1] = prefix[i] + c.Len()
	}
	cp := make([]ProgressEntry, len(chunks))
	copy(cp, chunks)
	return &TaskList{chunks: cp, prefix: prefix}
}

// TotalLen returns the sum of all chunk lengths.
func (t *TaskList) TotalLen() int64 {
	return t.prefix[len(t.prefix)-1]
}

// chunkIndex returns the index of the chunk containing logical position n,
// where n is in [0, TotalLen()). Requires 0 <= n < TotalLen().
func (t *TaskList) chunkIndex(n int64) int {
	// prefix is non-decreasing; find the rightmost i such that prefix[i] <= n.
	i := sort.Search(len(t.prefix), func(i int) bool { return t.prefix[i] > n }) - 1
	if i < 0 {
		i = 0
	}
	if i >= len(t.chunks) {
		i = len(t.chunks) - 1
	}
	return i
}

// OffsetToAbsolute maps a logical position n in [0, TotalLen()) to the
// absolute byte offset in the backing source.
func (t *TaskList) OffsetToAbsolute(n int64) int64 {
	i := t.chunkIndex(n)
	return t.chunks[i].Start + (n - t.prefix[i])
}

// GetRange returns the minimal ordered list of absolute sub-ranges covering
// logical positions [lo, hi), split at chunk boundaries. lo and hi are
// clamped to [0, TotalLen()].
func (t *TaskList) GetRange(lo, hi int64) []ProgressEntry {
	if lo < 0 {
		lo = 0
	}
	total := t.TotalLen()
	if hi > total {
		hi = total
	}
	if lo >= hi {
		return nil
	}

	var out []ProgressEntry
	pos := lo
	for pos < hi {
		i := t.chunkIndex(pos)
		chunkLogicalEnd := t.prefix[i+1]
		segEnd := hi
		if chunkLogicalEnd < segEnd {
			segEnd = chunkLogicalEnd
		}
		absStart := t.chunks[i].Start + (pos - t.prefix[i])
		absEnd := absStart + (segEnd - pos)
		out = append(out, ProgressEntry{Start: absStart, End: absEnd})
		pos = segEnd
	}
	return out
}
