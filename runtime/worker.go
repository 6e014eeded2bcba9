package runtime

import (
	"time"

	"github.com/isgasho/fantoch/command"
	"github.com/isgasho/fantoch/executor/basicexec"
	"github.com/isgasho/fantoch/id"
	"github.com/isgasho/fantoch/protocol"
	"github.com/isgasho/fantoch/protocol/basic"
	"github.com/isgasho/fantoch/route"
)

// executorBatchMax and executorPartialTimeout bound how long an executor
// worker waits to coalesce a burst of ExecutionInfo before applying whatever
// it already has: a partially-filled batch past the timeout is still
// applied immediately, never starved waiting for executorBatchMax to fill.
const (
	executorBatchMax       = 256
	executorPartialTimeout = 5 * time.Millisecond
)

// workItem is whatever a protocol worker's inbox can hold: a local
// submission, a decoded peer message, or a self-scheduled periodic event.
// Exactly one set of fields is meaningful per value, selected by kind.
type workItem struct {
	kind workItemKind

	dot    id.Dot
	cmd    command.Command
	client *clientConn

	from      id.ProcessId
	fromShard id.ShardId
	msg       protocol.Message

	event protocol.PeriodicEvent
}

type workItemKind int

const (
	itemSubmit workItemKind = iota
	itemPeerMsg
	itemEvent
)

// protocolWorker drives one of the node's protocol workers. Each owns an
// independent *basic.Basic (sharing the node's single dotGen, since dot
// routing is what pins traffic, not dot minting) and never shares its
// inbox or command-info table with another worker — all cross-worker
// communication happens by re-enqueuing a workItem on the destination
// worker's channel, except the same-worker case, which is handled inline
// without a channel round trip.
type protocolWorker struct {
	idx   int
	node  *Node
	proto *basic.Basic
	inbox chan workItem
}

func (w *protocolWorker) numWorkers() int { return len(w.node.workers) }

// run is the worker's main loop: receive one item, drive the protocol
// state machine, and dispatch whatever Actions and ExecutionInfo it
// produced. Besides waiting on its own inbox, it blocks only on bounded
// channel sends: a peer's write channel (via sendToPeer), another worker's
// inbox, an executor's inbox, the reply router and the execution log.
func (w *protocolWorker) run() {
	for item := range w.inbox {
		switch item.kind {
		case itemSubmit:
			dot := item.dot
			w.proto.Metrics().CommandsIn.Add(1)
			actions := w.proto.Submit(&dot, item.cmd, time.Now())
			if item.client != nil {
				w.node.reply.register(item.cmd, w.node.cfg.ShardID, item.client)
			}
			w.handleActions(actions)
		case itemPeerMsg:
			w.processPeerMessage(item.from, item.fromShard, item.msg)
		case itemEvent:
			actions := w.proto.HandleEvent(item.event, time.Now())
			w.handleActions(actions)
		}
	}
}

// processPeerMessage drives the protocol state machine for a single
// message already known to belong to this worker, then dispatches its
// side effects. Used both by run's main loop and by the inline-delivery
// path, so a self-addressed message handled on this worker never needs to
// round-trip through its own channel.
func (w *protocolWorker) processPeerMessage(from id.ProcessId, fromShard id.ShardId, msg protocol.Message) {
	actions := w.proto.Handle(from, fromShard, msg, time.Now())
	w.handleActions(actions)
}

// handleActions performs every side effect a protocol step asked for, then
// drains whatever ExecutionInfo the step produced. Sends to remote peers go
// out over the wire; sends/forwards addressed to this same process are
// routed locally: inline if they land on this very worker, otherwise
// re-enqueued on the owning worker's inbox.
func (w *protocolWorker) handleActions(actions []protocol.Action) {
	for _, action := range actions {
		switch action.Kind {
		case protocol.ActionSend:
			for _, target := range action.Target {
				if target == w.node.cfg.ID {
					w.deliverLocal(action.Msg)
					continue
				}
				w.proto.Metrics().MessagesOut.Add(1)
				w.node.sendToPeer(target, action.Msg)
			}
		case protocol.ActionForward:
			w.deliverLocal(action.Msg)
		}
	}
	w.drainExecutionInfo()
}

// deliverLocal routes a self-addressed message the same way a peer message
// would be routed: to every worker if Index reports ok=false (e.g.
// MStable), otherwise to the single owning worker. The owning
// worker being this one is handled inline, in this same call stack, rather
// than through a channel send — a worker never blocks waiting on its own
// inbound channel while it is itself the sender.
func (w *protocolWorker) deliverLocal(msg protocol.Message) {
	idx, ok := msg.Index(w.numWorkers())
	if !ok {
		for _, other := range w.node.workers {
			other.receiveLocal(w, msg)
		}
		return
	}
	w.node.workers[idx].receiveLocal(w, msg)
}

// receiveLocal is the destination side of deliverLocal: target is the
// worker that owns msg per routing, from is the worker that produced it.
func (target *protocolWorker) receiveLocal(from *protocolWorker, msg protocol.Message) {
	if route.SelfMessage(from.idx, target.idx) {
		target.processPeerMessage(target.node.cfg.ID, target.node.cfg.ShardID, msg)
		return
	}
	target.inbox <- workItem{kind: itemPeerMsg, from: target.node.cfg.ID, fromShard: target.node.cfg.ShardID, msg: msg}
}

// drainExecutionInfo hands every ExecutionInfo produced by the last
// protocol step to the executor worker that owns each key, and mirrors
// it to the execution log if one is configured.
func (w *protocolWorker) drainExecutionInfo() {
	for _, info := range w.proto.ToExecutor() {
		idx := route.WorkerForKey(string(info.Key), len(w.node.executors))
		w.node.executors[idx].inbox <- info
		if w.node.execLog != nil {
			w.node.execLog.append(info)
		}
	}
}

// submit mints a fresh Dot from the node's shared generator and enqueues a
// submission on the worker that dot routes to.
func (n *Node) submit(cmd command.Command, client *clientConn) error {
	dot, err := n.dotGen.Next()
	if err != nil {
		return err
	}
	idx := route.WorkerForDot(dot, len(n.workers))
	n.workers[idx].inbox <- workItem{kind: itemSubmit, dot: dot, cmd: cmd, client: client}
	return nil
}

// deliverPeerMessage routes a message received over a peer connection to
// the worker its dot assigns it to (or every worker, for MStable).
func (n *Node) deliverPeerMessage(from id.ProcessId, fromShard id.ShardId, msg protocol.Message) {
	idx, ok := msg.Index(len(n.workers))
	if !ok {
		for _, w := range n.workers {
			w.inbox <- workItem{kind: itemPeerMsg, from: from, fromShard: fromShard, msg: msg}
		}
		return
	}
	n.workers[idx].inbox <- workItem{kind: itemPeerMsg, from: from, fromShard: fromShard, msg: msg}
}

// executorWorker drives one of the node's executor workers, each
// owning a disjoint slice of the key space per route.WorkerForKey and an
// independent basicexec.Executor (and so an independent kvs.Store).
type executorWorker struct {
	idx   int
	node  *Node
	exec  *basicexec.Executor
	inbox chan basicexec.ExecutionInfo
}

// run pulls batches of ExecutionInfo off the inbox (rather than handling one
// at a time) so a burst of commits from the protocol workers is applied and
// replied to as a unit.
func (w *executorWorker) run() {
	for {
		closed := w.receiveBatch()
		for _, res := range w.exec.ToClients() {
			w.node.reply.deliver(res)
		}
		if closed {
			return
		}
	}
}

// receiveBatch blocks for the first value on the inbox, then drains up to
// executorBatchMax-1 more: immediately, if already buffered, or after
// waiting up to executorPartialTimeout for one more to arrive, whichever
// comes first. It reports whether the inbox was closed.
func (w *executorWorker) receiveBatch() bool {
	info, ok := <-w.inbox
	if !ok {
		return true
	}
	w.exec.Handle(info)

	timer := time.NewTimer(executorPartialTimeout)
	defer timer.Stop()

	for size := 1; size < executorBatchMax; size++ {
		select {
		case info, ok := <-w.inbox:
			if !ok {
				return true
			}
			w.exec.Handle(info)
		case <-timer.C:
			return false
		}
	}
	return false
}
