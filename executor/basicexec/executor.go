// Package basicexec implements the per-key parallel executor paired with
// the Basic protocol: every committed (rifl, key, op) triple is applied to
// the key-value store the moment it arrives, with no dependency ordering at
// all. It is deliberately the simplest of the two executors in this module;
// executor/graph implements the richer dependency-ordered alternative.
package basicexec

import (
	"github.com/isgasho/fantoch/id"
	"github.com/isgasho/fantoch/kvs"
	"github.com/isgasho/fantoch/metrics"
)

// ExecutionInfo is what the Basic protocol hands to an Executor once a
// command's single key-operation is safe to apply.
type ExecutionInfo struct {
	Rifl id.Rifl
	Key  kvs.Key
	Op   kvs.Op
}

// Result is a single key's outcome, ready to be folded into a client-facing
// command.Result by the caller (the coordinator's pending-command table).
type Result struct {
	Rifl id.Rifl
	Key  kvs.Key
	Res  kvs.Result
}

// Executor applies execution infos to a key-value store as soon as they
// arrive. It is safe to run many Executors in parallel over disjoint key
// ranges (see route.WorkerForKey), each owning an independent store.
type Executor struct {
	store     *kvs.Store
	metrics   metrics.Executor
	toClients []Result
}

// New creates an Executor backed by a fresh store. monitor may be nil; when
// set, every executed operation is also recorded for at-most-once auditing
// (see kvs.OrderMonitor).
func New(monitor *kvs.OrderMonitor) *Executor {
	return &Executor{store: kvs.NewStore(monitor)}
}

// Handle executes info's operation and queues the result for delivery.
func (e *Executor) Handle(info ExecutionInfo) {
	res := e.store.Execute(info.Key, info.Op, info.Rifl)
	e.toClients = append(e.toClients, Result{Rifl: info.Rifl, Key: info.Key, Res: res})
	e.metrics.Executed.Add(1)
}

// ToClients drains and returns every result produced since the last call.
func (e *Executor) ToClients() []Result {
	out := e.toClients
	e.toClients = nil
	return out
}

// Parallel reports that this executor supports running one instance per
// key-routed worker.
func (e *Executor) Parallel() bool { return true }

// Metrics returns this executor's counters.
func (e *Executor) Metrics() *metrics.Executor { return &e.metrics }
