package runtime

import (
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/isgasho/fantoch/id"
	"github.com/isgasho/fantoch/protocol"
	"github.com/isgasho/fantoch/wire"
)

// peerWriteBatchMax bounds how many frames runBatchedPeerWriter accumulates
// before flushing early, regardless of cfg.TCPFlushInterval.
const peerWriteBatchMax = 256

// peerConn is every connection this node currently holds to a single peer
// process: cfg.Multiplexing writers, each backed by its own TCP connection
// and its own write goroutine, so an outbound message never waits on a
// peer's write buffer for a connection some other message is using.
type peerConn struct {
	id      id.ProcessId
	writers []*peerWriter
}

// peerWriter is the sending half of one multiplexed connection. ch is never
// closed — a sender that raced the connection's teardown must not panic —
// and done (closed exactly once, when the connection dies) is what unblocks
// both the write goroutine and any sender still waiting on a full ch.
type peerWriter struct {
	ch   chan wire.POEMessage
	done chan struct{}
}

// connectPeers dials every peer with a higher process id than this one
// (the lower id always dials, so each ordered pair establishes exactly
// cfg.Multiplexing connections rather than 2x). Connections from
// lower-numbered peers arrive via acceptPeerConnections instead.
func (n *Node) connectPeers() {
	for pid, addr := range n.peerAddr {
		if pid < n.cfg.ID {
			continue
		}
		go n.dialPeer(pid, addr)
	}
}

// maxHandshakeAttempts bounds how many times a dialing goroutine retries a
// connection that accepts but then fails the ProcessHi exchange, before
// declaring the peer misconfigured (see ErrHandshake). Plain dial failures
// are not counted: an unreachable peer is redialed forever.
const maxHandshakeAttempts = 3

func (n *Node) dialPeer(pid id.ProcessId, addr string) {
	for i := 0; i < n.cfg.Multiplexing; i++ {
		go func() {
			handshakeFailures := 0
			for {
				conn, err := net.Dial("tcp", addr)
				if err != nil {
					n.log.Warn().Err(err).Uint64("peer", uint64(pid)).Str("addr", addr).Msg("dial peer failed, retrying")
					time.Sleep(time.Second)
					continue
				}
				n.configureConn(conn)
				if err := n.handshakePeer(conn); err != nil {
					n.log.Warn().Err(err).Uint64("peer", uint64(pid)).Msg("peer handshake failed")
					_ = conn.Close()
					handshakeFailures++
					if handshakeFailures >= maxHandshakeAttempts {
						select {
						case n.handshakeFatal <- fmt.Errorf("%w: peer %d at %s: %v", ErrHandshake, pid, addr, err):
						default:
						}
						return
					}
					time.Sleep(time.Second)
					continue
				}
				n.servePeerConn(pid, conn)
				return
			}
		}()
	}
}

// acceptPeerConnections runs the process listener's accept loop, handling
// one connection per goroutine: read the mandatory ProcessHi, then wire the
// connection into the sending peer's peerConn exactly as the dialing side
// does.
func (n *Node) acceptPeerConnections(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go func() {
			n.configureConn(conn)
			hi, err := n.acceptHandshake(conn)
			if err != nil {
				n.log.Warn().Err(err).Msg("peer handshake failed")
				_ = conn.Close()
				return
			}
			n.servePeerConn(hi.ProcessID, conn)
		}()
	}
}

func (n *Node) configureConn(conn net.Conn) {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	_ = tc.SetNoDelay(n.cfg.TCPNoDelay)
	if n.cfg.TCPBufferSize > 0 {
		_ = tc.SetReadBuffer(n.cfg.TCPBufferSize)
		_ = tc.SetWriteBuffer(n.cfg.TCPBufferSize)
	}
}

// handshakePeer performs the dialing side of the ProcessHi exchange: both
// sides must send their Hi before either sends anything else.
func (n *Node) handshakePeer(conn net.Conn) error {
	fw := wire.NewFrameWriter(conn)
	if err := fw.WriteFrame(wire.ProcessHi{ProcessID: n.cfg.ID, ShardID: n.cfg.ShardID}); err != nil {
		return err
	}
	if err := fw.Flush(); err != nil {
		return err
	}
	var hi wire.ProcessHi
	return wire.NewFrameReader(conn).ReadFrame(&hi)
}

// acceptHandshake is the listening side: read the peer's Hi, reply with
// ours.
func (n *Node) acceptHandshake(conn net.Conn) (wire.ProcessHi, error) {
	var hi wire.ProcessHi
	if err := wire.NewFrameReader(conn).ReadFrame(&hi); err != nil {
		return hi, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	fw := wire.NewFrameWriter(conn)
	if err := fw.WriteFrame(wire.ProcessHi{ProcessID: n.cfg.ID, ShardID: n.cfg.ShardID}); err != nil {
		return hi, err
	}
	return hi, fw.Flush()
}

// servePeerConn registers conn as one of pid's multiplexed connections and
// runs its reader inline (the caller's goroutine) plus a dedicated writer
// goroutine, until the connection fails.
func (n *Node) servePeerConn(pid id.ProcessId, conn net.Conn) {
	pw := &peerWriter{
		ch:   make(chan wire.POEMessage, n.cfg.ChannelBufferSize),
		done: make(chan struct{}),
	}

	n.peersMu.Lock()
	pc, ok := n.peers[pid]
	if !ok {
		pc = &peerConn{id: pid}
		n.peers[pid] = pc
	}
	pc.writers = append(pc.writers, pw)
	n.peersMu.Unlock()

	go n.runPeerWriter(conn, pw.ch, pw.done)
	n.runPeerReader(pid, conn)

	// remove into a fresh slice: sendToPeer reads the old one outside the
	// lock and must never observe it mutated under it.
	n.peersMu.Lock()
	pc.writers = withoutWriter(pc.writers, pw)
	n.peersMu.Unlock()
	close(pw.done)
}

func withoutWriter(writers []*peerWriter, target *peerWriter) []*peerWriter {
	out := make([]*peerWriter, 0, len(writers))
	for _, w := range writers {
		if w != target {
			out = append(out, w)
		}
	}
	return out
}

// runPeerReader decodes frames until the connection errors or closes,
// dispatching protocol messages to the worker their dot routes them to. Cross-
// shard executor info (POEExecutor) is logged and dropped: Basic, the only
// protocol wired into this runtime, never emits partial-replication
// requests (see executor/graph's doc comment — that traffic is exercised
// directly against the graph executor's own tests).
func (n *Node) runPeerReader(from id.ProcessId, conn net.Conn) {
	defer conn.Close()
	fr := wire.NewFrameReader(conn)
	for {
		var m wire.POEMessage
		if err := fr.ReadFrame(&m); err != nil {
			n.log.Debug().Err(err).Uint64("peer", uint64(from)).Msg("peer connection closed")
			return
		}
		switch m.Kind {
		case wire.POEProtocol:
			n.deliverPeerMessage(from, n.cfg.ShardID, m.Unwrap().(protocol.Message))
		case wire.POEExecutor:
			n.log.Debug().Msg("dropping cross-shard executor info: no partial-replication executor wired")
		}
	}
}

// runPeerWriter batches outbound frames per cfg.TCPFlushInterval (when
// configured), and flushes immediately otherwise. It exits when done is
// closed (the connection's reader saw it die) or ch is closed.
func (n *Node) runPeerWriter(conn net.Conn, ch <-chan wire.POEMessage, done <-chan struct{}) {
	defer conn.Close()
	fw := wire.NewFrameWriter(conn)

	if !n.cfg.HasTCPFlush || n.cfg.TCPFlushInterval <= 0 {
		for {
			select {
			case m, ok := <-ch:
				if !ok {
					return
				}
				if err := fw.WriteFrame(m); err != nil {
					return
				}
				if err := fw.Flush(); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}

	n.runBatchedPeerWriter(fw, ch, done)
}

// runBatchedPeerWriter accumulates up to peerWriteBatchMax frames and writes
// them as one batch, flushed once the batch fills or cfg.TCPFlushInterval
// elapses since the first frame in it arrived — whichever comes first.
func (n *Node) runBatchedPeerWriter(fw *wire.FrameWriter, ch <-chan wire.POEMessage, done <-chan struct{}) {
	timer := time.NewTimer(n.cfg.TCPFlushInterval)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	var batch []wire.POEMessage
	flush := func() bool {
		for _, m := range batch {
			if err := fw.WriteFrame(m); err != nil {
				return false
			}
		}
		batch = batch[:0]
		return fw.Flush() == nil
	}
	stopTimer := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}

	for {
		select {
		case m, ok := <-ch:
			if !ok {
				if len(batch) > 0 {
					flush()
				}
				return
			}
			if len(batch) == 0 {
				timer.Reset(n.cfg.TCPFlushInterval)
			}
			batch = append(batch, m)
			if len(batch) >= peerWriteBatchMax {
				stopTimer()
				if !flush() {
					return
				}
			}

		case <-timer.C:
			if !flush() {
				return
			}

		case <-done:
			if len(batch) > 0 {
				flush()
			}
			return
		}
	}
}

// sendToPeer dispatches msg to a uniformly-random connection among target's
// multiplexed writers: writes to distinct connections may be reordered,
// which per-dot routing already tolerates. A peer with no live connection
// (never dialed successfully, or disconnected) silently drops the send —
// a missing peer delays commit but never corrupts state.
func (n *Node) sendToPeer(target id.ProcessId, msg protocol.Message) {
	n.peersMu.RLock()
	pc, ok := n.peers[target]
	var writers []*peerWriter
	if ok {
		writers = pc.writers
	}
	n.peersMu.RUnlock()
	if len(writers) == 0 {
		return
	}

	// a full writer channel means that connection is backed up: block for
	// backpressure (bounded channels park their senders, they never drop),
	// unblocking only if the connection dies
	// under us — at which point the message is dropped like any other send
	// to a disconnected peer.
	poe := wire.ToPOEMessage(msg)
	w := writers[rand.Intn(len(writers))]
	select {
	case w.ch <- poe:
	case <-w.done:
	}
}
