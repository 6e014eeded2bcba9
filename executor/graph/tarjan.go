package graph

import (
	"time"

	"golang.org/x/exp/slices"

	"github.com/isgasho/fantoch/clock"
	"github.com/isgasho/fantoch/command"
	"github.com/isgasho/fantoch/id"
)

// Vertex is one command in the dependency graph, annotated with the
// bookkeeping Tarjan's algorithm needs on top of its dependency clock.
type Vertex struct {
	Dot       id.Dot
	Cmd       command.Command
	Clock     clock.VClock
	StartTime time.Time

	tarjanID int
	low      int
	onStack  bool
}

// NewVertex creates a vertex for dot, carrying cmd and its dependency
// clock.
func NewVertex(dot id.Dot, cmd command.Command, clk clock.VClock, now time.Time) *Vertex {
	return &Vertex{Dot: dot, Cmd: cmd, Clock: clk, StartTime: now}
}

// outcome classifies what a single strongConnect call accomplished.
type outcome int

const (
	outcomeFound outcome = iota
	outcomeMissingDeps
	outcomeNotFound
)

type finderResult struct {
	outcome outcome
	missing []id.Dot
}

// finder runs (possibly several rounds of) Tarjan's strongly-connected
// components algorithm over the vertex index, confined to a single
// executor worker and therefore never run concurrently with itself.
type finder struct {
	// sharded selects the partial-replication behavior on a missing
	// dependency: collect every remaining missing frontier dep as well, so
	// one request round fetches them all instead of one per retry.
	sharded bool

	nextID int
	stack  []id.Dot
	sccs   [][]id.Dot
}

func newFinder(sharded bool) *finder {
	return &finder{sharded: sharded}
}

// drainSCCs drains and returns every SCC found so far.
func (f *finder) drainSCCs() [][]id.Dot {
	out := f.sccs
	f.sccs = nil
	return out
}

// finalize resets the tarjan ids of everything still on the stack (used
// after a failed search, so those vertices look "unvisited" to the next
// attempt) and returns the set of dots visited.
func (f *finder) finalize(idx *VertexIndex) map[id.Dot]struct{} {
	f.nextID = 0
	visited := make(map[id.Dot]struct{}, len(f.stack))
	for len(f.stack) > 0 {
		dot := f.stack[len(f.stack)-1]
		f.stack = f.stack[:len(f.stack)-1]
		if v := idx.Find(dot); v != nil {
			v.tarjanID = 0
			v.onStack = false
		}
		visited[dot] = struct{}{}
	}
	return visited
}

// strongConnect tries to find an SCC rooted at dot. A dependency whose
// frontier is 0 is treated as "nothing depended on yet" rather than a
// literal Dot{p,0} reference, since sequence numbers here start at 1.
func (f *finder) strongConnect(dot id.Dot, idx *VertexIndex, executedClock clock.AEClock) finderResult {
	v := idx.Find(dot)
	if v == nil {
		return finderResult{outcome: outcomeNotFound}
	}

	f.nextID++
	v.tarjanID = f.nextID
	v.low = f.nextID
	v.onStack = true
	f.stack = append(f.stack, dot)

	procs := v.Clock.Processes()
	for i, p := range procs {
		frontier := v.Clock.Frontier(p)
		if frontier == 0 {
			continue
		}
		depDot := id.NewDot(p, frontier)
		if depDot == dot {
			continue
		}

		depVertex := idx.Find(depDot)
		if depVertex == nil {
			if executedClock.Contains(depDot.Source, depDot.Sequence) {
				// already executed and pruned from the index; not a blocker.
				continue
			}
			missing := []id.Dot{depDot}
			if f.sharded {
				missing = append(missing, f.remainingMissing(procs[i+1:], v, dot, idx, executedClock)...)
			}
			return finderResult{outcome: outcomeMissingDeps, missing: missing}
		}

		if depVertex.tarjanID == 0 {
			result := f.strongConnect(depDot, idx, executedClock)
			if result.outcome == outcomeMissingDeps {
				return result
			}
			if depVertex.low < v.low {
				v.low = depVertex.low
			}
		} else if depVertex.onStack && depVertex.tarjanID < v.low {
			v.low = depVertex.tarjanID
		}
	}

	if v.tarjanID != v.low {
		return finderResult{outcome: outcomeNotFound}
	}

	var scc []id.Dot
	for {
		memberDot := f.stack[len(f.stack)-1]
		f.stack = f.stack[:len(f.stack)-1]
		member := idx.Find(memberDot)
		member.onStack = false
		scc = append(scc, memberDot)
		if memberDot == dot {
			break
		}
	}
	slices.SortFunc(scc, sortDots)
	f.sccs = append(f.sccs, scc)
	return finderResult{outcome: outcomeFound}
}

func sortDots(a, b id.Dot) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	default:
		return 0
	}
}

// remainingMissing collects the rest of a vertex's frontier deps that are
// neither indexed nor executed. Only consulted under partial replication,
// where fetching them in one request round beats discovering them one
// retry at a time.
func (f *finder) remainingMissing(procs []id.ProcessId, v *Vertex, root id.Dot, idx *VertexIndex, executedClock clock.AEClock) []id.Dot {
	var out []id.Dot
	for _, p := range procs {
		frontier := v.Clock.Frontier(p)
		if frontier == 0 {
			continue
		}
		depDot := id.NewDot(p, frontier)
		if depDot == root {
			continue
		}
		if idx.Find(depDot) != nil {
			continue
		}
		if executedClock.Contains(depDot.Source, depDot.Sequence) {
			continue
		}
		out = append(out, depDot)
	}
	return out
}
