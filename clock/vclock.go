// Package clock implements the two clock types the protocol and GC layers
// reason about: VClock, a conventional vector clock of per-process
// contiguous frontiers, and AEClock, a clock that can also represent
// non-contiguous ("above-exception-set") sequences — required because dots
// commit out of order across a connection's multiplexed writers.
package clock

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/isgasho/fantoch/id"
)

// VClock tracks, for each process, the largest sequence fully present (the
// "frontier"): if entry[p] == 5, sequences 1..5 of p are known, regardless
// of whether 6 is also known.
type VClock struct {
	entries map[id.ProcessId]uint64
}

// NewVClock creates a VClock with an entry (initialized to 0) for each of
// ids. Processes outside this set are treated as always at frontier 0.
func NewVClock(ids []id.ProcessId) VClock {
	c := VClock{entries: make(map[id.ProcessId]uint64, len(ids))}
	for _, p := range ids {
		c.entries[p] = 0
	}
	return c
}

// Frontier returns the frontier for p, or 0 if p is not tracked.
func (c VClock) Frontier(p id.ProcessId) uint64 {
	return c.entries[p]
}

// Add advances p's frontier to seq, but never backwards — safe to call with
// out-of-date information (e.g. from a reordered message).
func (c VClock) Add(p id.ProcessId, seq uint64) {
	if seq > c.entries[p] {
		c.entries[p] = seq
	}
}

// Join merges other into c in place, taking the pointwise maximum of every
// entry. Safe even if messages were reordered in the network.
func (c VClock) Join(other VClock) {
	for p, seq := range other.entries {
		c.Add(p, seq)
	}
}

// Meet reduces c in place to the pointwise minimum of c and other. Missing
// entries in either clock are treated as 0.
func (c VClock) Meet(other VClock) {
	for p := range c.entries {
		if os := other.entries[p]; os < c.entries[p] {
			c.entries[p] = os
		}
	}
	for p := range other.entries {
		if _, ok := c.entries[p]; !ok {
			c.entries[p] = 0
		}
	}
}

// Clone returns an independent copy of c.
func (c VClock) Clone() VClock {
	cp := VClock{entries: make(map[id.ProcessId]uint64, len(c.entries))}
	for p, seq := range c.entries {
		cp.entries[p] = seq
	}
	return cp
}

// Len reports the number of tracked processes.
func (c VClock) Len() int {
	return len(c.entries)
}

// Contains reports whether p is tracked by this clock at all (distinct from
// Frontier(p) == 0, which is also true for an untracked process).
func (c VClock) Contains(p id.ProcessId) bool {
	_, ok := c.entries[p]
	return ok
}

// Processes returns the tracked processes, sorted, for deterministic
// iteration (logging, tests).
func (c VClock) Processes() []id.ProcessId {
	out := make([]id.ProcessId, 0, len(c.entries))
	for p := range c.entries {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

func (c VClock) String() string {
	procs := c.Processes()
	s := "{"
	for i, p := range procs {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%d: %d", p, c.entries[p])
	}
	return s + "}"
}

// GobEncode implements gob.GobEncoder: entries is unexported, so without
// this the wire codec (see the wire package) would silently serialize an
// empty clock.
func (c VClock) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(c.entries); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (c *VClock) GobDecode(data []byte) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(&c.entries)
}

// Equal reports whether c and other have identical entries (missing
// entries count as 0).
func (c VClock) Equal(other VClock) bool {
	for p, seq := range c.entries {
		if other.entries[p] != seq {
			return false
		}
	}
	for p, seq := range other.entries {
		if c.entries[p] != seq {
			return false
		}
	}
	return true
}
