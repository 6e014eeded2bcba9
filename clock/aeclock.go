package clock

import "github.com/isgasho/fantoch/id"

// aeEntry is the per-process state backing AEClock: a contiguous frontier,
// plus any sequences already known above it ("above the exception set")
// that haven't yet been folded into the frontier because of a gap.
type aeEntry struct {
	frontier   uint64
	exceptions map[uint64]struct{}
}

// AEClock tracks, per process, a set of known dot sequences that need not be
// contiguous — required because a single process's own dots can commit out
// of order across workers (different dots of the same source process may be
// routed to, and committed by, different workers concurrently).
type AEClock struct {
	entries map[id.ProcessId]*aeEntry
}

// NewAEClock creates a bottom AEClock with an entry for each of ids.
func NewAEClock(ids []id.ProcessId) AEClock {
	c := AEClock{entries: make(map[id.ProcessId]*aeEntry, len(ids))}
	for _, p := range ids {
		c.entries[p] = &aeEntry{}
	}
	return c
}

func (c AEClock) entry(p id.ProcessId) *aeEntry {
	e, ok := c.entries[p]
	if !ok {
		e = &aeEntry{}
		c.entries[p] = e
	}
	return e
}

// Add records that seq is known for process p, advancing the contiguous
// frontier as far as the known exceptions allow.
func (c AEClock) Add(p id.ProcessId, seq uint64) {
	e := c.entry(p)
	if seq <= e.frontier {
		return
	}
	if seq != e.frontier+1 {
		if e.exceptions == nil {
			e.exceptions = make(map[uint64]struct{})
		}
		e.exceptions[seq] = struct{}{}
		return
	}
	e.frontier++
	for e.exceptions != nil {
		next := e.frontier + 1
		if _, ok := e.exceptions[next]; !ok {
			break
		}
		delete(e.exceptions, next)
		e.frontier = next
	}
}

// Contains reports whether seq is known for process p, whether as part of
// the contiguous frontier or as a standalone exception above it.
func (c AEClock) Contains(p id.ProcessId, seq uint64) bool {
	e, ok := c.entries[p]
	if !ok {
		return false
	}
	if seq <= e.frontier {
		return true
	}
	if e.exceptions == nil {
		return false
	}
	_, ok = e.exceptions[seq]
	return ok
}

// Frontier returns a VClock of the contiguous frontier of every tracked
// process, discarding any out-of-order exceptions above it. This is the
// representation broadcast in MGarbageCollection, since a peer only needs to
// know the committed prefix to compute stability.
func (c AEClock) Frontier() VClock {
	v := VClock{entries: make(map[id.ProcessId]uint64, len(c.entries))}
	for p, e := range c.entries {
		v.entries[p] = e.frontier
	}
	return v
}

// Len reports the number of tracked processes.
func (c AEClock) Len() int {
	return len(c.entries)
}

// Replace overwrites c's state with that of other, used when restoring a
// monotonic clock received over the wire (the caller is responsible for
// ensuring other is not older than c, e.g. via wire sequencing guarantees).
func (c AEClock) Replace(other AEClock) {
	for p := range c.entries {
		delete(c.entries, p)
	}
	for p, e := range other.entries {
		cp := &aeEntry{frontier: e.frontier}
		if len(e.exceptions) > 0 {
			cp.exceptions = make(map[uint64]struct{}, len(e.exceptions))
			for seq := range e.exceptions {
				cp.exceptions[seq] = struct{}{}
			}
		}
		c.entries[p] = cp
	}
}

// Clone returns an independent copy of c.
func (c AEClock) Clone() AEClock {
	cp := NewAEClock(nil)
	cp.Replace(c)
	return cp
}
