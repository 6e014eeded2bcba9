// Package runtime hosts the node's worker topology: a fixed
// number of protocol workers and executor workers, the per-peer
// reader/writer tasks that multiplex outbound connections, a periodic task
// driving GC and heartbeat ticks, and the client listener. Every other
// package in this module (protocol, executor/basicexec, route, wire, gc,
// kvs) is a leaf the node wires together; this package is the only one that
// spawns goroutines or touches a socket.
package runtime

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/exp/slices"

	"github.com/isgasho/fantoch/config"
	"github.com/isgasho/fantoch/executor/basicexec"
	"github.com/isgasho/fantoch/id"
	"github.com/isgasho/fantoch/internal/ratelimit"
	"github.com/isgasho/fantoch/kvs"
	"github.com/isgasho/fantoch/protocol"
	"github.com/isgasho/fantoch/protocol/basic"
)

// ErrBind is returned when the process or client listener fails to bind;
// main() turns it into exit code 2.
var ErrBind = errors.New("runtime: listen failed")

// ErrHandshake is returned when a dialed peer repeatedly fails the
// ProcessHi exchange; main() turns it into exit code 3. An unreachable
// peer only delays commit and is redialed forever, but a peer that
// accepts the connection and then talks something other than ProcessHi is
// a systemic misconfiguration (e.g. a wrong --addresses list pointing at a
// client port), so after a few attempts Run gives up and surfaces it
// rather than leaving a node that silently never commits anything.
var ErrHandshake = errors.New("runtime: peer handshake failed")

// Node owns every piece of server-side state for one replica process: the
// protocol/executor worker pools, the peer connection table, the client
// listener, and the optional GC/ping/execution-log side tasks. It is built
// once per process and run for the process's lifetime.
type Node struct {
	cfg *config.ProcessConfig
	log zerolog.Logger

	dotGen *id.DotGen

	sameShardIDs []id.ProcessId // sorted, includes self
	peerAddr     map[id.ProcessId]string

	workers   []*protocolWorker
	executors []*executorWorker

	peersMu sync.RWMutex
	peers   map[id.ProcessId]*peerConn

	// handshakeFatal carries at most one ErrHandshake-wrapped error from a
	// dialing goroutine that has given up, aborting Run.
	handshakeFatal chan error

	reply *replyRouter

	admission *ratelimit.ClientAdmission

	monitor *kvs.OrderMonitor

	execLog *executionLog

	peerListener   net.Listener
	clientListener net.Listener
}

// New validates the wiring implied by cfg (peer id assignment, addresses)
// and constructs the worker pools, but does not yet touch the network —
// that happens in Run.
func New(cfg *config.ProcessConfig, log zerolog.Logger) (*Node, error) {
	ids := sameShardProcessIDs(cfg)
	addrs, err := assignPeerAddresses(cfg, ids)
	if err != nil {
		return nil, err
	}

	n := &Node{
		cfg:            cfg,
		log:            log,
		dotGen:         id.NewDotGen(cfg.ID),
		sameShardIDs:   ids,
		peerAddr:       addrs,
		peers:          make(map[id.ProcessId]*peerConn, len(addrs)),
		handshakeFatal: make(chan error, 1),
		admission:      ratelimit.NewClientAdmission(nil),
		monitor:        kvs.NewOrderMonitor(),
	}

	n.reply = newReplyRouter(log)

	if cfg.HasExecutionLog {
		el, err := newExecutionLog(cfg.ExecutionLog)
		if err != nil {
			return nil, fmt.Errorf("runtime: open execution log: %w", err)
		}
		n.execLog = el
	}

	n.workers = make([]*protocolWorker, cfg.Workers)
	for i := range n.workers {
		proto := basic.NewWithDotGen(cfg.ID, cfg.ShardID, ids, cfg.N, cfg.F, gcIntervalFor(cfg), n.dotGen)
		n.workers[i] = &protocolWorker{
			idx:    i,
			node:   n,
			proto:  proto,
			inbox:  make(chan workItem, cfg.ChannelBufferSize),
		}
	}

	n.executors = make([]*executorWorker, cfg.Executors)
	for i := range n.executors {
		n.executors[i] = &executorWorker{
			idx:   i,
			node:  n,
			exec:  basicexec.New(n.monitor),
			inbox: make(chan basicexec.ExecutionInfo, cfg.ChannelBufferSize),
		}
	}

	procInfos := make([]protocol.ProcessInfo, 0, len(ids))
	for _, pid := range ids {
		procInfos = append(procInfos, protocol.ProcessInfo{ID: pid, Shard: cfg.ShardID})
	}
	for _, w := range n.workers {
		w.proto.Discover(procInfos)
	}

	return n, nil
}

func gcIntervalFor(cfg *config.ProcessConfig) time.Duration {
	if !cfg.HasGC {
		return 0
	}
	return cfg.GCInterval
}

// sameShardProcessIDs returns the N process ids replicating cfg.ShardID, in
// the order used to map --addresses to peers: cfg.Sorted if given (the
// pre-measured ping order), otherwise ascending id order starting at 1.
// Region-distance measurement itself is an external driver's job;
// --sorted lets it supply its result.
func sameShardProcessIDs(cfg *config.ProcessConfig) []id.ProcessId {
	if len(cfg.Sorted) > 0 {
		out := append([]id.ProcessId(nil), cfg.Sorted...)
		return out
	}
	out := make([]id.ProcessId, cfg.N)
	for i := range out {
		out[i] = id.ProcessId(i + 1)
	}
	return out
}

// assignPeerAddresses pairs cfg.Addresses (N-1 peer addresses) positionally
// with the ordered peer ids (every id in ids except cfg.ID, in order).
func assignPeerAddresses(cfg *config.ProcessConfig, ids []id.ProcessId) (map[id.ProcessId]string, error) {
	ordered := make([]id.ProcessId, 0, len(ids))
	for _, pid := range ids {
		if pid != cfg.ID {
			ordered = append(ordered, pid)
		}
	}
	slices.SortFunc(ordered, func(a, b id.ProcessId) int {
		// preserve the --sorted-given order when present; config.Validate
		// already checked the address count matches n-1.
		return indexOf(ids, a) - indexOf(ids, b)
	})
	if len(cfg.Addresses) != len(ordered) {
		return nil, fmt.Errorf("runtime: %d peer addresses configured, expected %d", len(cfg.Addresses), len(ordered))
	}
	out := make(map[id.ProcessId]string, len(ordered))
	for i, pid := range ordered {
		out[pid] = cfg.Addresses[i]
	}
	return out, nil
}

func indexOf(ids []id.ProcessId, target id.ProcessId) int {
	for i, pid := range ids {
		if pid == target {
			return i
		}
	}
	return -1
}
