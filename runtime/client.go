package runtime

import (
	"net"
	"time"

	"github.com/isgasho/fantoch/command"
	"github.com/isgasho/fantoch/wire"
)

// clientConn is one accepted client connection: possibly several logical
// ClientIds multiplexed over it (see wire.ClientHi), and a single writer
// goroutine draining resultCh so replies from several executor workers
// never interleave mid-frame.
type clientConn struct {
	conn     net.Conn
	resultCh chan command.Result
	done     chan struct{}
}

// sendResult queues a completed command.Result for delivery. It blocks only
// while resultCh is full and the connection is still being served: once the
// connection's reader exits, done is closed and sendResult returns without
// delivering. The writer goroutine stops at the first failed write; it does
// not drain resultCh.
func (c *clientConn) sendResult(res command.Result) {
	select {
	case c.resultCh <- res:
	case <-c.done:
	}
}

// acceptClientConnections runs the client listener's accept loop.
func (n *Node) acceptClientConnections(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go n.serveClient(conn)
	}
}

func (n *Node) serveClient(conn net.Conn) {
	n.configureConn(conn)

	// one reader for the whole connection: its buffer may already hold
	// command frames sent right behind the ClientHi.
	fr := wire.NewFrameReader(conn)
	var hi wire.ClientHi
	if err := fr.ReadFrame(&hi); err != nil {
		n.log.Debug().Err(err).Msg("client handshake failed")
		_ = conn.Close()
		return
	}

	cc := &clientConn{
		conn:     conn,
		resultCh: make(chan command.Result, n.cfg.ChannelBufferSize),
		done:     make(chan struct{}),
	}

	n.log.Debug().Int("client_ids", len(hi.ClientIDs)).Msg("client connected")

	go n.runClientWriter(cc)
	n.runClientReader(cc, fr)

	close(cc.done)
	_ = conn.Close()
}

// runClientReader reads commands until the connection errs or closes. A
// command addressed to a shard this process doesn't replicate, or a
// malformed frame, is a client protocol error: the connection is
// closed and the rest of the node continues unaffected.
func (n *Node) runClientReader(cc *clientConn, fr *wire.FrameReader) {
	for {
		var cmd command.Command
		if err := fr.ReadFrame(&cmd); err != nil {
			n.log.Debug().Err(err).Msg("client connection closed")
			return
		}

		if cmd.TargetShard() != n.cfg.ShardID {
			n.log.Warn().Uint64("shard", uint64(cmd.TargetShard())).Msg("client command addressed to a shard this process does not replicate")
			return
		}

		if until, ok := n.admission.Allow(cmd.Rifl.ClientId); !ok {
			time.Sleep(time.Until(until))
		}

		if err := n.submit(cmd, cc); err != nil {
			n.log.Error().Err(err).Msg("submit failed")
			return
		}
	}
}

func (n *Node) runClientWriter(cc *clientConn) {
	fw := wire.NewFrameWriter(cc.conn)
	for {
		select {
		case res := <-cc.resultCh:
			if err := fw.WriteFrame(res); err != nil {
				return
			}
			if err := fw.Flush(); err != nil {
				return
			}
		case <-cc.done:
			return
		}
	}
}
