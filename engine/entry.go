package engine

import "fmt"

// ProgressEntry is a half-open interval [Start, End) of absolute byte
// offsets. End must be strictly greater than Start.
type ProgressEntry struct {
	Start int64
	End   int64
}

// Len returns the number of bytes covered by the entry.
func (p ProgressEntry) Len() int64 {
	if p.End <= p.Start {
		return 0
	}
	return p.End - p.Start
}

// Empty reports whether the entry covers zero bytes.
func (p ProgressEntry) Empty() bool {
	return p.End <= p.Start
}

func (p ProgressEntry) String() string {
	return fmt.Sprintf("[%d,%d)", p.Start, p.End)
}

// clip returns the portion of p that lies before absEnd, or the zero value
// (Empty() == true) if nothing remains. It never extends p.
func (p ProgressEntry) clip(absEnd int64) ProgressEntry {
	if p.End <= absEnd {
		return p
	}
	if p.Start >= absEnd {
		return ProgressEntry{Start: p.Start, End: p.Start}
	}
	return ProgressEntry{Start: p.Start, End: absEnd}
}
