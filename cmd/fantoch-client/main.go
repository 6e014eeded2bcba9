// Command fantoch-client drives a synthetic workload against a single
// fantoch-process endpoint: it issues commands either open-loop (on a
// fixed --interval) or closed-loop (waiting for each command's result before
// issuing the next), and optionally writes aggregated latency data to
// --metrics-file.
package main

import (
	"encoding/gob"
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/isgasho/fantoch/client"
	"github.com/isgasho/fantoch/command"
	"github.com/isgasho/fantoch/config"
	"github.com/isgasho/fantoch/id"
	"github.com/isgasho/fantoch/wire"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("fantoch-client", flag.ContinueOnError)
	cfg, err := config.ParseClientFlags(fs, args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	conn, err := net.Dial("tcp", cfg.Address)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	defer conn.Close()

	ids := make([]id.ClientId, 0, int(cfg.IDEnd-cfg.IDStart)+1)
	for c := cfg.IDStart; c <= cfg.IDEnd; c++ {
		ids = append(ids, c)
	}

	fw := wire.NewFrameWriter(conn)
	if err := fw.WriteFrame(wire.ClientHi{ClientIDs: ids}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 3
	}
	if err := fw.Flush(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 3
	}

	// Every command this binary generates targets a single shard (shard 0):
	// cross-shard client-side aggregation (client.Client.HandlePartial) is
	// exercised against a single connection, since this binary only ever
	// dials one process (multi-process discovery and routing belong to an
	// external experiment driver, not this binary's CLI surface).
	workload := client.NewWorkload(
		cfg.ShardsPerCommand,
		client.ShardGen{ShardCount: 1},
		cfg.KeysPerShard,
		cfg.KeyGen,
		cfg.CommandsPerClient,
		cfg.PayloadSize,
	)

	clients := make(map[id.ClientId]*client.Client, len(ids))
	for _, cid := range ids {
		c := client.New(cid, 1, workload)
		c.Discover(map[id.ShardId]id.ProcessId{0: 0})
		clients[cid] = c
	}

	resultCh := make(chan command.Result, 256)
	go readResults(conn, resultCh)

	if cfg.HasInterval {
		runOpenLoop(conn, clients, ids, cfg.Interval, resultCh)
	} else {
		runClosedLoop(conn, clients, ids, resultCh)
	}

	if cfg.HasMetricsFile {
		if err := writeMetrics(cfg.MetricsFile, clients); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}
	return 0
}

func readResults(conn net.Conn, out chan<- command.Result) {
	fr := wire.NewFrameReader(conn)
	for {
		var res command.Result
		if err := fr.ReadFrame(&res); err != nil {
			close(out)
			return
		}
		out <- res
	}
}

// runClosedLoop issues each client's next command only after its previous
// one completed, round-robining across clients until every one is
// Finished().
func runClosedLoop(conn net.Conn, clients map[id.ClientId]*client.Client, ids []id.ClientId, resultCh <-chan command.Result) {
	fw := wire.NewFrameWriter(conn)
	inFlight := make(map[id.ClientId]bool, len(ids))

	issue := func(cid id.ClientId) bool {
		c := clients[cid]
		if c.Finished() {
			return false
		}
		_, cmd, ok, err := c.NextCmd(time.Now())
		if err != nil || !ok {
			return false
		}
		if err := fw.WriteFrame(cmd); err != nil {
			return false
		}
		if err := fw.Flush(); err != nil {
			return false
		}
		inFlight[cid] = true
		return true
	}

	for _, cid := range ids {
		issue(cid)
	}

	for {
		done := true
		for _, cid := range ids {
			if !clients[cid].Finished() {
				done = false
			}
		}
		if done {
			return
		}

		partial, ok := <-resultCh
		if !ok {
			return
		}
		cid := partial.Rifl.ClientId
		c, ok := clients[cid]
		if !ok {
			continue
		}
		if _, _, complete := c.HandlePartial(partial, time.Now()); complete {
			delete(inFlight, cid)
			issue(cid)
		}
	}
}

// runOpenLoop issues one command per client every interval, independent of
// whether prior commands have completed, draining results concurrently.
func runOpenLoop(conn net.Conn, clients map[id.ClientId]*client.Client, ids []id.ClientId, interval time.Duration, resultCh <-chan command.Result) {
	fw := wire.NewFrameWriter(conn)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for partial := range resultCh {
			if c, ok := clients[partial.Rifl.ClientId]; ok {
				c.HandlePartial(partial, time.Now())
			}
		}
	}()

	for {
		allDone := true
		for _, cid := range ids {
			if !clients[cid].Finished() {
				allDone = false
			}
		}
		if allDone {
			return
		}

		select {
		case <-ticker.C:
			for _, cid := range ids {
				c := clients[cid]
				if c.Finished() {
					continue
				}
				_, cmd, ok, err := c.NextCmd(time.Now())
				if err != nil || !ok {
					continue
				}
				if err := fw.WriteFrame(cmd); err != nil {
					return
				}
				if err := fw.Flush(); err != nil {
					return
				}
			}
		case <-done:
			return
		}
	}
}

func writeMetrics(path string, clients map[id.ClientId]*client.Client) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("fantoch-client: create metrics file: %w", err)
	}
	defer f.Close()

	enc := gob.NewEncoder(f)
	for cid, c := range clients {
		record := struct {
			ClientID  id.ClientId
			Latencies []time.Duration
		}{ClientID: cid, Latencies: c.Data().LatencyData()}
		if err := enc.Encode(record); err != nil {
			return fmt.Errorf("fantoch-client: encode metrics: %w", err)
		}
	}
	return nil
}
