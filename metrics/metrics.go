// Package metrics holds the small atomic counters the protocol and executor
// layers expose, rather than pulling in a full metrics client: these are
// polled locally
// (e.g. by the tracer task) instead of pushed to an external collector.
package metrics

import "sync/atomic"

// Protocol counts the fast/slow-path split and stability progress of a
// single protocol worker.
type Protocol struct {
	FastPath    atomic.Uint64
	SlowPath    atomic.Uint64
	Stable      atomic.Uint64
	CommandsIn  atomic.Uint64
	MessagesOut atomic.Uint64
}

func (m *Protocol) Snapshot() ProtocolSnapshot {
	return ProtocolSnapshot{
		FastPath:    m.FastPath.Load(),
		SlowPath:    m.SlowPath.Load(),
		Stable:      m.Stable.Load(),
		CommandsIn:  m.CommandsIn.Load(),
		MessagesOut: m.MessagesOut.Load(),
	}
}

type ProtocolSnapshot struct {
	FastPath    uint64
	SlowPath    uint64
	Stable      uint64
	CommandsIn  uint64
	MessagesOut uint64
}

// Executor counts cross-shard dependency traffic and command throughput for
// a single executor worker.
type Executor struct {
	OutRequests      atomic.Uint64
	InRequests       atomic.Uint64
	InRequestReplies atomic.Uint64
	Executed         atomic.Uint64
}

func (m *Executor) Snapshot() ExecutorSnapshot {
	return ExecutorSnapshot{
		OutRequests:      m.OutRequests.Load(),
		InRequests:       m.InRequests.Load(),
		InRequestReplies: m.InRequestReplies.Load(),
		Executed:         m.Executed.Load(),
	}
}

type ExecutorSnapshot struct {
	OutRequests      uint64
	InRequests       uint64
	InRequestReplies uint64
	Executed         uint64
}
