package protocol

import (
	"golang.org/x/exp/slices"

	"github.com/isgasho/fantoch/id"
)

// BaseProcess holds the bookkeeping common to every protocol implementation:
// identity, replication-group sizing, discovered peers, and a local Dot
// generator. Protocols embed it rather than reimplementing this plumbing.
type BaseProcess struct {
	ProcessID      id.ProcessId
	ShardID        id.ShardId
	N              int
	F              int
	FastQuorumSize int

	dotGen    *id.DotGen
	processes []ProcessInfo
	sameShard []id.ProcessId
}

// NewBaseProcess creates a BaseProcess for a replica that owns shardID, with
// N total replicas in that shard tolerating F failures, using
// fastQuorumSize acks to take the fast path.
func NewBaseProcess(processID id.ProcessId, shardID id.ShardId, n, f, fastQuorumSize int) *BaseProcess {
	return NewBaseProcessWithDotGen(processID, shardID, n, f, fastQuorumSize, id.NewDotGen(processID))
}

// NewBaseProcessWithDotGen is like NewBaseProcess but takes an existing Dot
// generator. The runtime uses this to give every protocol worker on a node
// a handle to the same shared, atomic generator (see runtime.Node): dots
// must be unique process-wide, but dot routing fans submissions and
// messages for a single dot out to a single worker, so the generator itself
// cannot be worker-local.
func NewBaseProcessWithDotGen(processID id.ProcessId, shardID id.ShardId, n, f, fastQuorumSize int, dotGen *id.DotGen) *BaseProcess {
	return &BaseProcess{
		ProcessID:      processID,
		ShardID:        shardID,
		N:              n,
		F:              f,
		FastQuorumSize: fastQuorumSize,
		dotGen:         dotGen,
	}
}

// NextDot generates the next Dot this process will use to coordinate a
// command. It only returns an error once the process has exhausted its
// sequence space (id.ErrIdExhausted), which is not expected in practice.
func (p *BaseProcess) NextDot() (id.Dot, error) {
	return p.dotGen.Next()
}

// Discover records the set of known processes, returning true once at least
// one peer outside of ourselves is known (an empty discovery never
// "completes").
func (p *BaseProcess) Discover(processes []ProcessInfo) bool {
	p.processes = processes
	p.sameShard = p.sameShard[:0]
	for _, info := range processes {
		if info.Shard == p.ShardID {
			p.sameShard = append(p.sameShard, info.ID)
		}
	}
	slices.Sort(p.sameShard)
	found := false
	for _, info := range processes {
		if info.ID != p.ProcessID {
			found = true
			break
		}
	}
	return found
}

// SameShard returns the (sorted) process ids, including this one, that
// replicate this process's shard.
func (p *BaseProcess) SameShard() []id.ProcessId {
	return p.sameShard
}

// AllProcesses returns every process known via Discover.
func (p *BaseProcess) AllProcesses() []ProcessInfo {
	return p.processes
}

// FastQuorum returns a fast-quorum-sized subset of SameShard, favoring the
// lowest-numbered processes for determinism.
func (p *BaseProcess) FastQuorum() []id.ProcessId {
	if len(p.sameShard) < p.FastQuorumSize {
		return append([]id.ProcessId(nil), p.sameShard...)
	}
	return append([]id.ProcessId(nil), p.sameShard[:p.FastQuorumSize]...)
}

// All returns every process (including this one) replicating this shard.
func (p *BaseProcess) All() []id.ProcessId {
	return append([]id.ProcessId(nil), p.sameShard...)
}

// AllButMe returns every other process replicating this shard.
func (p *BaseProcess) AllButMe() []id.ProcessId {
	out := make([]id.ProcessId, 0, len(p.sameShard))
	for _, proc := range p.sameShard {
		if proc != p.ProcessID {
			out = append(out, proc)
		}
	}
	return out
}
