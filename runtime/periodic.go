package runtime

import (
	"time"

	"github.com/isgasho/fantoch/protocol/basic"
	"github.com/isgasho/fantoch/route"
)

// runPeriodic drives every ticker-based side task the node configures: the
// GC broadcast tick (always handled by the reserved GC worker), an
// optional ping heartbeat, and an optional metrics tracer. Region-distance measurement —
// what a real ping-based --sorted would feed off — is an external
// collaborator's job; here --ping-interval only drives a lightweight
// liveness heartbeat, logged rather than acted on.
func (n *Node) runPeriodic(stop <-chan struct{}) {
	var gcTicker, pingTicker, tracerTicker *time.Ticker
	var gcCh, pingCh, tracerCh <-chan time.Time

	if n.cfg.HasGC {
		gcTicker = time.NewTicker(n.cfg.GCInterval)
		gcCh = gcTicker.C
		defer gcTicker.Stop()
	}
	if n.cfg.HasPing {
		pingTicker = time.NewTicker(n.cfg.PingInterval)
		pingCh = pingTicker.C
		defer pingTicker.Stop()
	}
	if n.cfg.HasTracer {
		tracerTicker = time.NewTicker(n.cfg.TracerShowInterval)
		tracerCh = tracerTicker.C
		defer tracerTicker.Stop()
	}

	for {
		select {
		case <-stop:
			return
		case <-gcCh:
			n.workers[route.GCWorkerIndex].inbox <- workItem{kind: itemEvent, event: basic.EventGarbageCollection}
		case <-pingCh:
			n.log.Debug().Msg("ping")
		case <-tracerCh:
			n.logMetrics()
		}
	}
}

func (n *Node) logMetrics() {
	for _, w := range n.workers {
		snap := w.proto.Metrics().Snapshot()
		n.log.Info().
			Int("worker", w.idx).
			Uint64("fast_path", snap.FastPath).
			Uint64("slow_path", snap.SlowPath).
			Uint64("stable", snap.Stable).
			Uint64("commands_in", snap.CommandsIn).
			Msg("protocol worker metrics")
	}
	for _, e := range n.executors {
		snap := e.exec.Metrics().Snapshot()
		n.log.Info().
			Int("executor", e.idx).
			Uint64("executed", snap.Executed).
			Msg("executor worker metrics")
	}
}
