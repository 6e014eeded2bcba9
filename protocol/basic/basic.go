// Package basic implements the Basic replication protocol: a coordinator
// logs a command with a fast quorum of the shard's replicas (the
// lowest-numbered ones, so the coordinator is included only when it is
// among them) and, once every one of them has acked, broadcasts a commit to
// the whole shard. It
// trades fault tolerance for simplicity — with a quorum member unreachable
// it simply stops committing, which is why every other protocol in the
// wider fantoch family exists.
package basic

import (
	"time"

	"github.com/isgasho/fantoch/command"
	"github.com/isgasho/fantoch/executor/basicexec"
	"github.com/isgasho/fantoch/id"
	"github.com/isgasho/fantoch/metrics"
	"github.com/isgasho/fantoch/protocol"
)

// Basic is a protocol.Protocol implementation. It pairs with
// executor/basicexec: MCommit hands out one ExecutionInfo per key touched,
// with no dependency ordering at all.
type Basic struct {
	bp   *protocol.BaseProcess
	cmds *protocol.CommandsInfo[*info]

	gcInterval time.Duration

	toExecutors []basicexec.ExecutionInfo
	metrics     metrics.Protocol
}

// New creates a Basic process. gcInterval of 0 disables the periodic
// garbage-collection broadcast — each command's info is then dropped as
// soon as its MCommit is handled.
func New(processID id.ProcessId, shardID id.ShardId, ids []id.ProcessId, n, f int, gcInterval time.Duration) *Basic {
	fastQuorumSize := computeFastQuorumSize(n)
	return &Basic{
		bp:         protocol.NewBaseProcess(processID, shardID, n, f, fastQuorumSize),
		cmds:       protocol.NewCommandsInfo(processID, shardID, ids, n, f, fastQuorumSize, func() *info { return newInfo(fastQuorumSize) }),
		gcInterval: gcInterval,
	}
}

// NewWithDotGen is like New but shares dotGen with the other protocol
// workers on this node (see runtime.Node): a node runs one *Basic per
// worker, each owning a disjoint slice of the dot space, but dots
// themselves must be minted from a single process-wide counter.
func NewWithDotGen(processID id.ProcessId, shardID id.ShardId, ids []id.ProcessId, n, f int, gcInterval time.Duration, dotGen *id.DotGen) *Basic {
	fastQuorumSize := computeFastQuorumSize(n)
	return &Basic{
		bp:         protocol.NewBaseProcessWithDotGen(processID, shardID, n, f, fastQuorumSize, dotGen),
		cmds:       protocol.NewCommandsInfo(processID, shardID, ids, n, f, fastQuorumSize, func() *info { return newInfo(fastQuorumSize) }),
		gcInterval: gcInterval,
	}
}

// computeFastQuorumSize implements Basic's fast-quorum size:
// ceil((n+1)/2).
func computeFastQuorumSize(n int) int {
	return (n + 2) / 2
}

// PeriodicEvents returns the (event, interval) pairs the runtime should
// schedule for this process.
func (b *Basic) PeriodicEvents() []struct {
	Event    PeriodicEvent
	Interval time.Duration
} {
	if b.gcInterval <= 0 {
		return nil
	}
	return []struct {
		Event    PeriodicEvent
		Interval time.Duration
	}{{Event: EventGarbageCollection, Interval: b.gcInterval}}
}

func (b *Basic) ID() id.ProcessId           { return b.bp.ProcessID }
func (b *Basic) ShardID() id.ShardId        { return b.bp.ShardID }
func (b *Basic) Parallel() bool             { return true }
func (b *Basic) Leaderless() bool           { return true }
func (b *Basic) Metrics() *metrics.Protocol { return &b.metrics }

func (b *Basic) Discover(processes []protocol.ProcessInfo) bool {
	return b.bp.Discover(processes)
}

// Submit starts replicating cmd, minting a fresh Dot if dot is nil.
func (b *Basic) Submit(dot *id.Dot, cmd command.Command, _ time.Time) []protocol.Action {
	var d id.Dot
	if dot != nil {
		d = *dot
	} else {
		var err error
		d, err = b.bp.NextDot()
		if err != nil {
			panic(err)
		}
	}

	target := b.bp.FastQuorum()
	return []protocol.Action{protocol.ToSend(MStore{Dot: d, Cmd: cmd}, target...)}
}

// Handle dispatches an incoming message to its handler.
func (b *Basic) Handle(from id.ProcessId, _ id.ShardId, msg protocol.Message, now time.Time) []protocol.Action {
	switch m := msg.(type) {
	case MStore:
		return b.handleMStore(from, m)
	case MStoreAck:
		return b.handleMStoreAck(from, m)
	case MCommit:
		return b.handleMCommit(m)
	case MCommitDot:
		return b.handleMCommitDot(from, m)
	case MGarbageCollection:
		return b.handleMGC(from, m)
	case MStable:
		return b.handleMStable(from, m)
	default:
		panic("basic: unknown message type")
	}
}

func (b *Basic) handleMStore(from id.ProcessId, m MStore) []protocol.Action {
	i := b.cmds.Get(m.Dot)
	i.cmd = &m.Cmd
	return []protocol.Action{protocol.ToSend(MStoreAck{Dot: m.Dot}, from)}
}

func (b *Basic) handleMStoreAck(from id.ProcessId, m MStoreAck) []protocol.Action {
	i := b.cmds.Get(m.Dot)
	if i.committed {
		// a duplicate ack arriving after the quorum was reached: the acks
		// set stopped growing, so the size check below would fire again.
		return nil
	}
	i.acks[from] = struct{}{}

	if len(i.acks) != b.bp.FastQuorumSize {
		return nil
	}
	if i.cmd == nil {
		panic("basic: quorum reached before the command itself arrived")
	}
	i.committed = true
	b.metrics.FastPath.Add(1)
	return []protocol.Action{protocol.ToSend(MCommit{Dot: m.Dot, Cmd: *i.cmd}, b.bp.All()...)}
}

func (b *Basic) handleMCommit(m MCommit) []protocol.Action {
	i := b.cmds.Get(m.Dot)
	i.cmd = &m.Cmd

	rifl := m.Cmd.Rifl
	for _, keyOp := range m.Cmd.ShardOps(b.bp.ShardID) {
		b.toExecutors = append(b.toExecutors, basicexec.ExecutionInfo{Rifl: rifl, Key: keyOp.Key, Op: keyOp.Op})
	}

	if b.gcRunning() {
		return []protocol.Action{protocol.ToForward(MCommitDot{Dot: m.Dot})}
	}
	b.cmds.GCSingle(m.Dot)
	return nil
}

func (b *Basic) handleMCommitDot(from id.ProcessId, m MCommitDot) []protocol.Action {
	if from != b.bp.ProcessID {
		panic("basic: MCommitDot must be self-addressed")
	}
	b.cmds.Commit(m.Dot)
	return nil
}

func (b *Basic) handleMGC(from id.ProcessId, m MGarbageCollection) []protocol.Action {
	b.cmds.CommittedBy(from, m.Committed)
	stable := b.cmds.Stable()
	if len(stable) == 0 {
		return nil
	}
	return []protocol.Action{protocol.ToForward(MStable{Stable: stable})}
}

func (b *Basic) handleMStable(from id.ProcessId, m MStable) []protocol.Action {
	if from != b.bp.ProcessID {
		panic("basic: MStable must be self-addressed")
	}
	removed := b.cmds.GC(m.Stable)
	b.metrics.Stable.Add(uint64(removed))
	return nil
}

// HandleEvent dispatches a periodic event.
func (b *Basic) HandleEvent(event protocol.PeriodicEvent, _ time.Time) []protocol.Action {
	ev, ok := event.(PeriodicEvent)
	if !ok {
		panic("basic: unknown periodic event")
	}
	switch ev {
	case EventGarbageCollection:
		return []protocol.Action{protocol.ToSend(MGarbageCollection{Committed: b.cmds.Committed()}, b.bp.AllButMe()...)}
	default:
		panic("basic: unknown periodic event")
	}
}

// ToExecutor drains execution info produced by committed commands.
func (b *Basic) ToExecutor() []basicexec.ExecutionInfo {
	out := b.toExecutors
	b.toExecutors = nil
	return out
}

func (b *Basic) gcRunning() bool {
	return b.gcInterval > 0
}
