// Package route implements the node's worker-assignment rules:
// protocol messages are routed by Dot, execution-facing messages are routed
// by Key, and a handful of worker indices are reserved for GC and periodic
// leader-only traffic so ordinary command traffic never contends with them.
package route

import (
	"hash/fnv"

	"github.com/isgasho/fantoch/id"
)

const (
	// GCWorkerIndex is the reserved protocol-worker index that owns
	// MCommitDot / MGarbageCollection traffic and GC ticks, independent of
	// command routing (MStable is not indexed: it goes to every worker).
	GCWorkerIndex = 0
	// LeaderWorkerIndex is the reserved protocol-worker index for
	// leader-only periodic events (unused by leaderless protocols such as
	// Basic, but kept reserved so switching protocols never changes the
	// meaning of the other indices).
	LeaderWorkerIndex = 1
	// ReservedWorkers is the number of low worker indices excluded from
	// Dot-based command routing.
	ReservedWorkers = 2
)

// WorkerForDot returns the protocol worker index responsible for dot, out of
// numWorkers total workers. Indices below ReservedWorkers are never
// returned while numWorkers > ReservedWorkers; otherwise everything routes
// to the last worker, numWorkers-1. Routing hashes the dot's sequence, not its source
// process: this is what spreads a single coordinator's own stream of dots
// across workers, rather than pinning all of one coordinator's traffic to
// a single worker.
func WorkerForDot(dot id.Dot, numWorkers int) int {
	usable := numWorkers - ReservedWorkers
	if usable <= 0 {
		return numWorkers - 1
	}
	return ReservedWorkers + int(dot.Sequence%uint64(usable))
}

// WorkerForKey returns the executor worker index responsible for key, out of
// numExecutors total executor workers. Executors have no reserved indices:
// every worker is eligible to own keys.
func WorkerForKey(key string, numExecutors int) int {
	if numExecutors <= 1 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum64() % uint64(numExecutors))
}

// SelfMessage reports whether a message produced by worker `from` and
// addressed to worker `to` can be handled inline, versus needing to be
// re-enqueued on to's channel. A worker never sends on its own inbound
// channel (it would block on itself once the channel is full), so a message
// for the same worker is handled inline and only a message for a different
// worker is re-enqueued.
func SelfMessage(from, to int) bool {
	return from == to
}
