// Package gc implements the stability tracker: each process accumulates
// its own committed dots in an AEClock, folds in periodic reports from
// its peers, and derives a stable clock as the pointwise minimum across
// all of them. The algorithm is best-effort — a permanently dead peer
// stalls stability forever, a known limitation.
package gc

import (
	"github.com/isgasho/fantoch/clock"
	"github.com/isgasho/fantoch/id"
)

// Range represents a contiguous block of newly stable dots for one process:
// sequences [Start, End] are safe to garbage collect. Start > End means
// "none" and callers should skip it.
type Range struct {
	Process    id.ProcessId
	Start, End uint64
}

// Dots expands a set of stable ranges into the individual dots they cover.
// Ranges are typically small (a GC interval's worth of commits), so this is
// not expected to allocate heavily.
func Dots(ranges []Range) []id.Dot {
	var out []id.Dot
	for _, r := range ranges {
		for seq := r.Start; seq <= r.End; seq++ {
			out = append(out, id.NewDot(r.Process, seq))
		}
	}
	return out
}

// Track is the per-process GC state machine. It is not safe for
// concurrent use — like the command-info table it protects, it lives
// inside a single GC worker.
type Track struct {
	n              int
	myClock        clock.AEClock
	allButMe       map[id.ProcessId]clock.VClock
	previousStable clock.VClock
	ids            []id.ProcessId
}

// NewTrack creates a Track for a shard whose processes are ids (which must
// include the owning process).
func NewTrack(ids []id.ProcessId) *Track {
	cp := make([]id.ProcessId, len(ids))
	copy(cp, ids)
	return &Track{
		n:              len(ids),
		myClock:        clock.NewAEClock(cp),
		allButMe:       make(map[id.ProcessId]clock.VClock, len(ids)-1),
		previousStable: clock.NewVClock(cp),
		ids:            cp,
	}
}

// Clock returns the locally-committed frontier, i.e. the AEClock's
// contiguous prefix. This is what gets broadcast in MGarbageCollection.
func (t *Track) Clock() clock.VClock {
	return t.myClock.Frontier()
}

// AddToClock records dot as committed locally.
func (t *Track) AddToClock(dot id.Dot) {
	t.myClock.Add(dot.Source, dot.Sequence)
}

// UpdateClockOf folds in a committed-clock report from a peer. New
// knowledge is joined (never replaces outright), tolerating reordered GC
// broadcasts.
func (t *Track) UpdateClockOf(from id.ProcessId, committed clock.VClock) {
	if cur, ok := t.allButMe[from]; ok {
		cur.Join(committed)
		return
	}
	t.allButMe[from] = committed.Clone()
}

// stableClock computes the pointwise minimum of every peer's committed
// clock and our own, returning bottom (all zero) until every other process
// in the shard has reported at least once.
func (t *Track) stableClock() clock.VClock {
	if len(t.allButMe) != t.n-1 {
		return clock.NewVClock(t.ids)
	}

	stable := t.myClock.Frontier()
	for _, c := range t.allButMe {
		stable.Meet(c)
	}
	return stable
}

// Stable computes the newly-stable dot ranges since the last call, advancing
// (and never retreating) the previously-stable clock. Safe to call
// repeatedly; an unchanged stable clock yields an empty slice.
func (t *Track) Stable() []Range {
	newStable := t.stableClock()

	var ranges []Range
	for _, p := range t.ids {
		previous := t.previousStable.Frontier(p)
		current := newStable.Frontier(p)

		start := previous + 1
		end := current

		// never let the tracked previous-stable frontier retreat, even if
		// this round's computation came in lower due to message reordering.
		if previous > current {
			newStable.Add(p, previous)
		}

		if start <= end {
			ranges = append(ranges, Range{Process: p, Start: start, End: end})
		}
	}

	t.previousStable = newStable
	return ranges
}
