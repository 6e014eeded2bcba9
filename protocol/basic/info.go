package basic

import (
	"github.com/isgasho/fantoch/command"
	"github.com/isgasho/fantoch/id"
)

// info is the per-dot state Basic keeps while a command is in flight: the
// command itself (once an MStore or MCommit has delivered it), the set of
// replicas that have acked it, and whether this process already broadcast
// the commit (so a late duplicate ack can never fire a second one).
type info struct {
	cmd       *command.Command
	acks      map[id.ProcessId]struct{}
	committed bool
}

func newInfo(fastQuorumSize int) *info {
	return &info{acks: make(map[id.ProcessId]struct{}, fastQuorumSize)}
}
