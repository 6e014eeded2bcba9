package protocol

import (
	"github.com/isgasho/fantoch/clock"
	"github.com/isgasho/fantoch/gc"
	"github.com/isgasho/fantoch/id"
)

// CommandsInfo is the per-protocol table mapping a Dot to whatever
// bookkeeping that protocol keeps for it (its CommandInfo), plus the GC
// tracker shared across every dot in this shard. It is not safe for
// concurrent use; callers confine a CommandsInfo to a single worker.
type CommandsInfo[I any] struct {
	processID      id.ProcessId
	shardID        id.ShardId
	n, f           int
	fastQuorumSize int
	newInfo        func() I
	dotToInfo      map[id.Dot]I
	gcTrack        *gc.Track
}

// NewCommandsInfo creates a table for a shard whose processes are ids
// (which must include processID). newInfo constructs a fresh per-dot info
// value on first access.
func NewCommandsInfo[I any](processID id.ProcessId, shardID id.ShardId, ids []id.ProcessId, n, f, fastQuorumSize int, newInfo func() I) *CommandsInfo[I] {
	return &CommandsInfo[I]{
		processID:      processID,
		shardID:        shardID,
		n:              n,
		f:              f,
		fastQuorumSize: fastQuorumSize,
		newInfo:        newInfo,
		dotToInfo:      make(map[id.Dot]I),
		gcTrack:        gc.NewTrack(ids),
	}
}

// Get returns the info associated with dot, creating it via newInfo on first
// access.
func (c *CommandsInfo[I]) Get(dot id.Dot) I {
	info, ok := c.dotToInfo[dot]
	if !ok {
		info = c.newInfo()
		c.dotToInfo[dot] = info
	}
	return info
}

// Commit records that dot has committed locally, for GC purposes.
func (c *CommandsInfo[I]) Commit(dot id.Dot) {
	c.gcTrack.AddToClock(dot)
}

// CommittedBy folds in a peer's committed-clock report.
func (c *CommandsInfo[I]) CommittedBy(from id.ProcessId, committed clock.VClock) {
	c.gcTrack.UpdateClockOf(from, committed)
}

// Committed returns this process's own committed frontier, broadcast in
// MGarbageCollection.
func (c *CommandsInfo[I]) Committed() clock.VClock {
	return c.gcTrack.Clock()
}

// Stable returns newly-stable dot ranges since the last call.
func (c *CommandsInfo[I]) Stable() []gc.Range {
	return c.gcTrack.Stable()
}

// GC removes the info for every dot in stable, returning how many entries
// were actually present (a dot may be absent if a different worker owns
// it).
func (c *CommandsInfo[I]) GC(stable []gc.Range) int {
	removed := 0
	for _, dot := range gc.Dots(stable) {
		if _, ok := c.dotToInfo[dot]; ok {
			delete(c.dotToInfo, dot)
			removed++
		}
	}
	return removed
}

// GCSingle removes a single dot's info, panicking if absent: callers only
// call this once they know the dot is theirs.
func (c *CommandsInfo[I]) GCSingle(dot id.Dot) {
	if _, ok := c.dotToInfo[dot]; !ok {
		panic("protocol: GCSingle on unknown dot")
	}
	delete(c.dotToInfo, dot)
}

// Len reports how many dots currently have tracked info.
func (c *CommandsInfo[I]) Len() int {
	return len(c.dotToInfo)
}
