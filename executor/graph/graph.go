// Package graph implements the dependency-graph executor: commands arrive
// carrying a dependency VClock, are indexed as vertices, and Tarjan's
// strongly-connected-components algorithm finds
// batches of commands that can be executed together, in ascending-Dot order
// within an SCC and reverse-topological order across SCCs. A command whose
// dependencies aren't locally known yet is parked in a PendingIndex and
// retried once the missing dot arrives.
//
// This executor is deliberately protocol-agnostic: Basic, the only
// replication protocol implemented in this module, never produces
// dependency clocks (it has no use for one), so graph.DependencyGraph is
// exercised directly via its own tests rather than threaded through Basic's
// commit path. A richer protocol (Atlas, EPaxos, ...) would hand its
// commits to this executor instead of executor/basicexec.
package graph

import (
	"time"

	"github.com/isgasho/fantoch/clock"
	"github.com/isgasho/fantoch/command"
	"github.com/isgasho/fantoch/id"
	"github.com/isgasho/fantoch/metrics"
)

// RequestReplyKind distinguishes the two replies a cross-shard dependency
// request can receive.
type RequestReplyKind int

const (
	// RequestReplyInfo carries the full command and clock for a dot the
	// replying shard still has indexed.
	RequestReplyInfo RequestReplyKind = iota
	// RequestReplyExecuted reports that the requested dot was already
	// executed (and so the asking shard can treat it as resolved without
	// the full command).
	RequestReplyExecuted
)

// RequestReply is a single answer to a cross-shard dependency request.
type RequestReply struct {
	Kind  RequestReplyKind
	Dot   id.Dot
	Cmd   command.Command
	Clock clock.VClock
}

// DependencyGraph is the per-shard executor state. It is not safe for
// concurrent use; a single executor worker owns it. Under partial
// replication a shard runs one main graph (executor index 0), which owns
// the vertex index and is the only one commits are added to, plus any
// number of auxiliary graphs that answer other shards' dependency requests
// off the shared executed-clock snapshot.
type DependencyGraph struct {
	processID     id.ProcessId
	shardID       id.ShardId
	nPerShard     int
	executorIndex int

	executedClock clock.AEClock
	snapshot      *ExecutedClockSnapshot
	vertexIndex   *VertexIndex
	pendingIndex  *PendingIndex
	finder        *finder
	metrics       metrics.Executor

	toExecute []command.Command

	outRequests        map[id.ShardId]map[id.Dot]struct{}
	bufferedInRequests map[id.ShardId]map[id.Dot]struct{}
	outRequestReplies  map[id.ShardId][]RequestReply
}

// New creates the main DependencyGraph (executor index 0) for shardID.
// ids are the replicas across every shard participating in cross-shard
// dependencies, nPerShard of them per shard, with process ids allocated in
// per-shard blocks: shard s owns ids s*nPerShard+1 ..= (s+1)*nPerShard.
func New(processID id.ProcessId, shardID id.ShardId, nPerShard int, ids []id.ProcessId) *DependencyGraph {
	return newGraph(processID, shardID, nPerShard, ids, 0, newExecutedClockSnapshot(ids))
}

// NewAuxiliary creates a request-handling graph for the same shard as a
// main graph, sharing its executed-clock snapshot (see main.Snapshot()).
// executorIndex must be non-zero; commits are never added to an auxiliary.
func NewAuxiliary(processID id.ProcessId, shardID id.ShardId, nPerShard int, ids []id.ProcessId, executorIndex int, snapshot *ExecutedClockSnapshot) *DependencyGraph {
	if executorIndex == 0 {
		panic("graph: auxiliary executor index must be non-zero")
	}
	return newGraph(processID, shardID, nPerShard, ids, executorIndex, snapshot)
}

func newGraph(processID id.ProcessId, shardID id.ShardId, nPerShard int, ids []id.ProcessId, executorIndex int, snapshot *ExecutedClockSnapshot) *DependencyGraph {
	if nPerShard < 1 {
		nPerShard = 1
	}
	sharded := len(ids) > nPerShard
	return &DependencyGraph{
		processID:          processID,
		shardID:            shardID,
		nPerShard:          nPerShard,
		executorIndex:      executorIndex,
		executedClock:      clock.NewAEClock(ids),
		snapshot:           snapshot,
		vertexIndex:        NewVertexIndex(),
		pendingIndex:       NewPendingIndex(),
		finder:             newFinder(sharded),
		outRequests:        make(map[id.ShardId]map[id.Dot]struct{}),
		bufferedInRequests: make(map[id.ShardId]map[id.Dot]struct{}),
		outRequestReplies:  make(map[id.ShardId][]RequestReply),
	}
}

// Snapshot returns the executed-clock snapshot auxiliary graphs for this
// shard should be constructed with.
func (g *DependencyGraph) Snapshot() *ExecutedClockSnapshot {
	return g.snapshot
}

// shardOf maps a process to the shard it replicates, per the per-shard
// block allocation of process ids.
func (g *DependencyGraph) shardOf(p id.ProcessId) id.ShardId {
	return id.ShardId((uint64(p) - 1) / uint64(g.nPerShard))
}

// Metrics returns this executor's counters.
func (g *DependencyGraph) Metrics() *metrics.Executor { return &g.metrics }

// CommandToExecute pops one command ready to run, or ok=false if none is
// ready. Commands come out in the order their SCCs were found — a
// dependency's SCC always before its dependents' — so a caller draining
// this in a loop applies them in a dependency-respecting order.
func (g *DependencyGraph) CommandToExecute() (command.Command, bool) {
	if len(g.toExecute) == 0 {
		return command.Command{}, false
	}
	cmd := g.toExecute[0]
	g.toExecute = g.toExecute[1:]
	return cmd, true
}

// Requests drains the set of cross-shard dependency dots this graph still
// needs fetched.
func (g *DependencyGraph) Requests() map[id.ShardId]map[id.Dot]struct{} {
	out := g.outRequests
	g.outRequests = make(map[id.ShardId]map[id.Dot]struct{})
	return out
}

// RequestReplies drains the replies produced for peers' requests.
func (g *DependencyGraph) RequestReplies() map[id.ShardId][]RequestReply {
	out := g.outRequestReplies
	g.outRequestReplies = make(map[id.ShardId][]RequestReply)
	return out
}

// HandleAdd indexes a newly-committed command and tries to find and
// execute any SCC it completes. Only the main graph receives commits.
func (g *DependencyGraph) HandleAdd(dot id.Dot, cmd command.Command, clk clock.VClock, now time.Time) {
	if g.executorIndex != 0 {
		panic("graph: HandleAdd on a request-handling executor")
	}
	v := NewVertex(dot, cmd, clk, now)
	if !g.vertexIndex.Index(v) {
		panic("graph: HandleAdd on an already-indexed dot")
	}

	executed, missing := g.findSCC(dot)
	g.indexPending(missing, dot)
	g.checkPending(executed)
}

// findSCC runs one round of Tarjan's algorithm rooted at dot, returning the
// dots of any SCCs found (queued for execution as a side effect) and, if
// the search stalled, the missing dependency dots.
func (g *DependencyGraph) findSCC(dot id.Dot) (executed []id.Dot, missing []id.Dot) {
	result := g.finder.strongConnect(dot, g.vertexIndex, g.executedClock)
	for _, scc := range g.finder.drainSCCs() {
		for _, memberDot := range scc {
			member := g.vertexIndex.Find(memberDot)
			g.vertexIndex.Remove(memberDot)
			g.executedClock.Add(memberDot.Source, memberDot.Sequence)
			g.toExecute = append(g.toExecute, member.Cmd)
			executed = append(executed, memberDot)
			g.metrics.Executed.Add(1)
		}
	}
	if result.outcome == outcomeMissingDeps {
		g.finder.finalize(g.vertexIndex)
		missing = result.missing
	}
	return executed, missing
}

// indexPending parks dot under every missing dependency, and queues a
// cross-shard request for each dependency assigned by a shard this graph
// doesn't replicate (those will never arrive as local commits).
func (g *DependencyGraph) indexPending(missing []id.Dot, dot id.Dot) {
	requests := uint64(0)
	for _, depDot := range missing {
		g.pendingIndex.Index(depDot, dot)
		target := g.shardOf(depDot.Source)
		if target == g.shardID {
			continue
		}
		set, ok := g.outRequests[target]
		if !ok {
			set = make(map[id.Dot]struct{})
			g.outRequests[target] = set
		}
		set[depDot] = struct{}{}
		requests++
	}
	if requests > 0 {
		g.metrics.OutRequests.Add(requests)
	}
}

// checkPending retries every dot that was waiting on one of the
// newly-resolved dots, propagating as a breadth-first search rather than
// true recursion (a long dependency chain shouldn't grow the Go stack).
func (g *DependencyGraph) checkPending(resolved []id.Dot) {
	queue := append([]id.Dot(nil), resolved...)
	for len(queue) > 0 {
		dot := queue[0]
		queue = queue[1:]

		waiters := g.pendingIndex.Remove(dot)
		for _, waiter := range waiters {
			if g.vertexIndex.Find(waiter) == nil {
				// already executed via another path
				continue
			}
			executed, missing := g.findSCC(waiter)
			g.indexPending(missing, waiter)
			queue = append(queue, executed...)
		}
	}
}

// HandleRequest buffers a cross-shard dependency request from shard from
// for later processing (see ProcessRequests).
func (g *DependencyGraph) HandleRequest(from id.ShardId, dots []id.Dot) {
	g.metrics.InRequests.Add(uint64(len(dots)))
	set, ok := g.bufferedInRequests[from]
	if !ok {
		set = make(map[id.Dot]struct{})
		g.bufferedInRequests[from] = set
	}
	for _, dot := range dots {
		set[dot] = struct{}{}
	}
}

// ProcessRequests answers every buffered request this graph can currently
// satisfy, re-buffering anything it still can't.
func (g *DependencyGraph) ProcessRequests() {
	for from, dots := range g.bufferedInRequests {
		remaining := make(map[id.Dot]struct{})
		for dot := range dots {
			if v := g.vertexIndex.Find(dot); v != nil {
				if v.Cmd.ReplicatedBy(from) {
					continue
				}
				g.outRequestReplies[from] = append(g.outRequestReplies[from], RequestReply{
					Kind: RequestReplyInfo, Dot: dot, Cmd: v.Cmd, Clock: v.Clock,
				})
				continue
			}
			if g.isExecuted(dot) {
				g.outRequestReplies[from] = append(g.outRequestReplies[from], RequestReply{
					Kind: RequestReplyExecuted, Dot: dot,
				})
				continue
			}
			remaining[dot] = struct{}{}
		}
		if len(remaining) > 0 {
			g.bufferedInRequests[from] = remaining
		} else {
			delete(g.bufferedInRequests, from)
		}
	}
}

// HandleRequestReply processes replies to our own outstanding requests.
func (g *DependencyGraph) HandleRequestReply(replies []RequestReply, now time.Time) {
	accepted := uint64(0)
	for _, reply := range replies {
		switch reply.Kind {
		case RequestReplyInfo:
			accepted++
			g.HandleAdd(reply.Dot, reply.Cmd, reply.Clock, now)
		case RequestReplyExecuted:
			accepted++
			g.executedClock.Add(reply.Dot.Source, reply.Dot.Sequence)
			g.checkPending([]id.Dot{reply.Dot})
		}
	}
	g.metrics.InRequestReplies.Add(accepted)
}

// isExecuted consults the authoritative executed clock on the main graph,
// and the shared snapshot on auxiliaries (whose own clock never advances).
func (g *DependencyGraph) isExecuted(dot id.Dot) bool {
	if g.executorIndex == 0 {
		return g.executedClock.Contains(dot.Source, dot.Sequence)
	}
	return g.snapshot.Contains(dot.Source, dot.Sequence)
}

// Cleanup runs this graph's periodic maintenance: the main graph publishes
// its executed clock to the shared snapshot, auxiliaries retry any buffered
// requests they couldn't answer before the last refresh.
func (g *DependencyGraph) Cleanup(_ time.Time) {
	if g.executorIndex == 0 {
		g.snapshot.store(g.executedClock)
		return
	}
	g.ProcessRequests()
}

// Pending reports how many commands are still indexed but not yet
// executable, for diagnostics.
func (g *DependencyGraph) Pending() int {
	return g.vertexIndex.Len()
}
