// Package id defines the identifiers threaded through the replication
// engine: process and shard membership, client identity, and the two kinds
// of monotonic sequence that everything else is indexed by — Rifl (a
// client's own view of its requests) and Dot (a coordinator's view of the
// commands it has assigned).
package id

import (
	"errors"
	"fmt"
)

type (
	// ProcessId identifies a replica within a shard. 1-based: zero is never
	// assigned to a real process.
	ProcessId uint64

	// ShardId identifies a shard of the key space. 0-based.
	ShardId uint64

	// ClientId identifies a client connection.
	ClientId uint64
)

// Rifl (request identifier for idempotent logging) is a client's own,
// per-client-monotonic view of a command: the pair lets any replica
// de-duplicate a resubmission without consulting anyone else.
type Rifl struct {
	ClientId ClientId
	Seq      uint64
}

func (r Rifl) String() string {
	return fmt.Sprintf("Rifl(%d, %d)", r.ClientId, r.Seq)
}

// Dot is a coordinator-minted, globally unique command identifier: the pair
// (source process, per-process sequence) is assigned exactly once, system
// wide.
type Dot struct {
	Source   ProcessId
	Sequence uint64
}

// NewDot builds a Dot directly, mostly useful in tests and wire decoding.
func NewDot(source ProcessId, sequence uint64) Dot {
	return Dot{Source: source, Sequence: sequence}
}

func (d Dot) String() string {
	return fmt.Sprintf("(%d, %d)", d.Source, d.Sequence)
}

// Less orders dots first by sequence, then by source process, giving the
// deterministic ascending-Dot tie-break used to order commands within an
// executed SCC.
func (d Dot) Less(other Dot) bool {
	if d.Sequence != other.Sequence {
		return d.Sequence < other.Sequence
	}
	return d.Source < other.Source
}

// ErrIdExhausted is returned (and the owning process aborted) once a
// generator's next sequence would reach 2^63; no generator in this
// engine is expected to run long enough to hit it in practice.
var ErrIdExhausted = errors.New("id: identifier space exhausted")

const maxSeq = uint64(1) << 63

// DotGen mints Dot values for a single process, starting at sequence 1.
// It's safe for concurrent use by multiple submitting goroutines — the
// counter is a single atomic, so Next never returns a value less than or
// equal to a previously returned one.
type DotGen struct {
	source ProcessId
	seq    atomicCounter
}

// NewDotGen creates a generator for the given process.
func NewDotGen(source ProcessId) *DotGen {
	return &DotGen{source: source}
}

// Next returns the next Dot for this process, or ErrIdExhausted if the
// sequence space has been exhausted.
func (g *DotGen) Next() (Dot, error) {
	seq := g.seq.incr()
	if seq >= maxSeq {
		return Dot{}, ErrIdExhausted
	}
	return Dot{Source: g.source, Sequence: seq}, nil
}

// Peek returns the most recently issued sequence, or 0 if none has been
// issued yet. Intended for metrics/diagnostics, not for minting identifiers.
func (g *DotGen) Peek() uint64 {
	return g.seq.load()
}

// RiflGen mints Rifl values for a single client. Unlike DotGen it is not
// intended for concurrent use: a client issues one request at a time.
type RiflGen struct {
	client ClientId
	seq    uint64
}

// NewRiflGen creates a generator for the given client.
func NewRiflGen(client ClientId) *RiflGen {
	return &RiflGen{client: client}
}

// Next returns the next Rifl for this client, or ErrIdExhausted.
func (g *RiflGen) Next() (Rifl, error) {
	if g.seq+1 >= maxSeq {
		return Rifl{}, ErrIdExhausted
	}
	g.seq++
	return Rifl{ClientId: g.client, Seq: g.seq}, nil
}
