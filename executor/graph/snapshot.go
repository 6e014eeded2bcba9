package graph

import (
	"sync"

	"github.com/isgasho/fantoch/clock"
	"github.com/isgasho/fantoch/id"
)

// ExecutedClockSnapshot is the one piece of state shared between the main
// graph executor and the auxiliary request-handling executors: a copy of the
// main executor's executed clock, refreshed at its cleanup ticks. The
// auxiliaries only ever read it, so a stale snapshot delays an Executed
// reply but never produces a wrong one.
type ExecutedClockSnapshot struct {
	mu    sync.RWMutex
	clock clock.AEClock
}

func newExecutedClockSnapshot(ids []id.ProcessId) *ExecutedClockSnapshot {
	cp := append([]id.ProcessId(nil), ids...)
	return &ExecutedClockSnapshot{clock: clock.NewAEClock(cp)}
}

// store overwrites the snapshot with the main executor's current clock.
func (s *ExecutedClockSnapshot) store(c clock.AEClock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock.Replace(c)
}

// Contains reports whether seq of process p was executed as of the last
// snapshot refresh.
func (s *ExecutedClockSnapshot) Contains(p id.ProcessId, seq uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clock.Contains(p, seq)
}
