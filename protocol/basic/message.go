package basic

import (
	"github.com/isgasho/fantoch/clock"
	"github.com/isgasho/fantoch/command"
	"github.com/isgasho/fantoch/gc"
	"github.com/isgasho/fantoch/id"
	"github.com/isgasho/fantoch/route"
)

// MStore asks a fast-quorum peer to log cmd under dot.
type MStore struct {
	Dot id.Dot
	Cmd command.Command
}

// MStoreAck acknowledges an MStore.
type MStoreAck struct {
	Dot id.Dot
}

// MCommit announces that dot has gathered a fast quorum of acks and is now
// committed.
type MCommit struct {
	Dot id.Dot
	Cmd command.Command
}

// MCommitDot is a self-addressed notification that the local GC tracker
// should record dot as committed (only sent when GC is enabled).
type MCommitDot struct {
	Dot id.Dot
}

// MGarbageCollection carries a peer's committed frontier.
type MGarbageCollection struct {
	Committed clock.VClock
}

// MStable is a self-addressed notification carrying newly-stable ranges to
// garbage collect.
type MStable struct {
	Stable []gc.Range
}

// Index implementations route protocol traffic by Dot, except GC traffic
// (which always targets the reserved GC worker) and MStable (which must
// reach every worker, since any of them may hold info for a stabilized
// dot).

func (m MStore) Index(numWorkers int) (int, bool) {
	return route.WorkerForDot(m.Dot, numWorkers), true
}

func (m MStoreAck) Index(numWorkers int) (int, bool) {
	return route.WorkerForDot(m.Dot, numWorkers), true
}

func (m MCommit) Index(numWorkers int) (int, bool) {
	return route.WorkerForDot(m.Dot, numWorkers), true
}

func (m MCommitDot) Index(int) (int, bool) {
	return route.GCWorkerIndex, true
}

func (m MGarbageCollection) Index(int) (int, bool) {
	return route.GCWorkerIndex, true
}

func (m MStable) Index(int) (int, bool) {
	return 0, false
}

// PeriodicEvent enumerates Basic's self-scheduled events.
type PeriodicEvent int

const (
	// EventGarbageCollection periodically broadcasts this process's
	// committed frontier to its peers.
	EventGarbageCollection PeriodicEvent = iota
)

func (e PeriodicEvent) Index(int) (int, bool) {
	return route.GCWorkerIndex, true
}
