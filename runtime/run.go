package runtime

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/sync/errgroup"
)

// Run starts every worker and network task and blocks until ctx is
// cancelled, or until a dialed peer proves misconfigured (ErrHandshake,
// see dialPeer). Shutdown is not graceful: cancelling ctx closes the
// listeners (so no new connections are accepted) and returns; in-flight
// commands on existing connections simply stop progressing as their
// goroutines unwind, rather than being drained first. The accept loops and
// periodic task are supervised by an errgroup so Run only returns once both
// have actually observed their listener closing, rather than racing the
// caller's next step (e.g. a test asserting the port is free) against
// goroutines still tearing down.
func (n *Node) Run(ctx context.Context) error {
	peerLn, err := net.Listen("tcp", fmt.Sprintf("%s:%d", n.cfg.IP, n.cfg.Port))
	if err != nil {
		return fmt.Errorf("%w: peer listener on %s:%d: %v", ErrBind, n.cfg.IP, n.cfg.Port, err)
	}
	n.peerListener = peerLn

	clientLn, err := net.Listen("tcp", fmt.Sprintf("%s:%d", n.cfg.IP, n.cfg.ClientPort))
	if err != nil {
		_ = peerLn.Close()
		return fmt.Errorf("%w: client listener on %s:%d: %v", ErrBind, n.cfg.IP, n.cfg.ClientPort, err)
	}
	n.clientListener = clientLn

	for _, w := range n.workers {
		go w.run()
	}
	for _, e := range n.executors {
		go e.run()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n.acceptPeerConnections(peerLn)
		return nil
	})
	g.Go(func() error {
		n.acceptClientConnections(clientLn)
		return nil
	})
	g.Go(func() error {
		stop := make(chan struct{})
		go func() {
			<-gctx.Done()
			close(stop)
		}()
		n.runPeriodic(stop)
		return nil
	})
	g.Go(func() error {
		select {
		case err := <-n.handshakeFatal:
			return err
		case <-gctx.Done():
			return nil
		}
	})
	n.connectPeers()

	// gctx also cancels when a dialing goroutine gave up on a peer's
	// handshake, aborting the node with ErrHandshake.
	select {
	case <-ctx.Done():
	case <-gctx.Done():
	}
	_ = peerLn.Close()
	_ = clientLn.Close()
	err = g.Wait()

	if n.execLog != nil {
		n.execLog.close()
	}

	return err
}
