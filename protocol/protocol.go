// Package protocol defines the replication-protocol contract: a Protocol
// turns submitted commands and incoming messages into
// Actions (sends, forwards) and, once a command is safe to apply, hands
// execution info off to whatever executor is paired with it. Basic, in the
// basic subpackage, is the one protocol implemented here; the interface
// exists so a worker loop never needs to know which protocol it is driving.
package protocol

import (
	"time"

	"github.com/isgasho/fantoch/command"
	"github.com/isgasho/fantoch/id"
	"github.com/isgasho/fantoch/metrics"
)

// ProcessInfo is what Discover tells a protocol about a peer: its identity
// and which shard it replicates.
type ProcessInfo struct {
	ID    id.ProcessId
	Shard id.ShardId
}

// Message is implemented by every wire message a protocol exchanges with its
// peers. Index reports which protocol worker owns the message: ok=false
// means "send to every protocol worker", otherwise idx identifies the
// single owning worker (already offset past any reserved indices).
type Message interface {
	Index(numWorkers int) (idx int, ok bool)
}

// PeriodicEvent is implemented by a protocol's internally-scheduled events
// (e.g. Basic's garbage-collection tick).
type PeriodicEvent interface {
	Index(numWorkers int) (idx int, ok bool)
}

// ActionKind distinguishes the two shapes an Action can take.
type ActionKind int

const (
	// ActionSend delivers Msg to every process in Target.
	ActionSend ActionKind = iota
	// ActionForward re-submits Msg to the local process as if it had
	// arrived over the wire, used when a protocol needs to talk to itself
	// without looping back through the network.
	ActionForward
)

// Action is a single side effect a Protocol method asks the runtime to
// perform.
type Action struct {
	Kind   ActionKind
	Target []id.ProcessId
	Msg    Message
}

// ToSend builds a send action.
func ToSend(msg Message, target ...id.ProcessId) Action {
	return Action{Kind: ActionSend, Target: target, Msg: msg}
}

// ToForward builds a self-forward action.
func ToForward(msg Message) Action {
	return Action{Kind: ActionForward, Msg: msg}
}

// Protocol is the behavior every replication protocol must provide. A
// concrete implementation also declares, out of band (see
// basic.Basic.ToExecutor), what execution info it produces once a command is
// ready to run.
type Protocol interface {
	ID() id.ProcessId
	ShardID() id.ShardId
	Discover(processes []ProcessInfo) bool
	Submit(dot *id.Dot, cmd command.Command, now time.Time) []Action
	Handle(from id.ProcessId, fromShard id.ShardId, msg Message, now time.Time) []Action
	HandleEvent(event PeriodicEvent, now time.Time) []Action
	Parallel() bool
	Leaderless() bool
	Metrics() *metrics.Protocol
}
