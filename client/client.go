package client

import (
	"time"

	"golang.org/x/exp/slices"

	"github.com/isgasho/fantoch/command"
	"github.com/isgasho/fantoch/id"
)

// Client drives a synthetic workload against the cluster: it generates
// commands, tracks which shard each one should be submitted to, and
// aggregates the (possibly multi-shard) partial results that come back
// into a single command.Result before recording its latency.
type Client struct {
	clientID    id.ClientId
	shardCount  int
	shardProcs  map[id.ShardId]id.ProcessId
	riflGen     *id.RiflGen
	keyState    *State
	workload    Workload
	data        ClientData
	pending     map[id.Rifl]pendingEntry
}

type pendingEntry struct {
	cmd   command.Command
	res   command.Result
	start time.Time
}

// New creates a client for clientID with the given workload.
func New(clientID id.ClientId, shardCount int, workload Workload) *Client {
	return &Client{
		clientID:   clientID,
		shardCount: shardCount,
		riflGen:    id.NewRiflGen(clientID),
		keyState:   NewState(workload.KeyGen, shardCount, clientID),
		workload:   workload,
		pending:    make(map[id.Rifl]pendingEntry),
	}
}

// Discover records, per shard, the closest process to submit to. Returns
// false if processes is empty: with no known process, the client can
// never issue a command.
func (c *Client) Discover(processes map[id.ShardId]id.ProcessId) bool {
	c.shardProcs = processes
	return len(processes) > 0
}

// ShardProcess returns the process this client submits shard's commands
// to.
func (c *Client) ShardProcess(shard id.ShardId) (id.ProcessId, bool) {
	p, ok := c.shardProcs[shard]
	return p, ok
}

// NextCmd generates the next command in this client's workload, recording
// its start time so latency can be measured once every shard's result
// arrives. Returns ok=false once the workload is exhausted.
func (c *Client) NextCmd(now time.Time) (id.ShardId, command.Command, bool, error) {
	shard, cmd, ok, err := c.workload.NextCmd(c.riflGen, c.keyState)
	if err != nil || !ok {
		return 0, command.Command{}, false, err
	}
	c.pending[cmd.Rifl] = pendingEntry{cmd: cmd, res: command.NewResult(cmd.Rifl), start: now}
	return shard, cmd, true, nil
}

// HandlePartial folds a single shard's partial result for rifl in. It
// returns the complete command.Result and the elapsed latency once every
// shard the command touched has reported, or ok=false while more are
// still outstanding.
func (c *Client) HandlePartial(partial command.Result, now time.Time) (command.Result, time.Duration, bool) {
	entry, ok := c.pending[partial.Rifl]
	if !ok {
		return command.Result{}, 0, false
	}
	entry.res.Merge(partial)
	if !entry.res.Complete(entry.cmd) {
		c.pending[partial.Rifl] = entry
		return command.Result{}, 0, false
	}

	delete(c.pending, partial.Rifl)
	latency := now.Sub(entry.start)
	c.data.record(latency, now)
	return entry.res, latency, true
}

// Finished reports whether the workload is exhausted and every submitted
// command has a recorded result.
func (c *Client) Finished() bool {
	return c.workload.Finished() && len(c.pending) == 0
}

// ID returns this client's identifier.
func (c *Client) ID() id.ClientId { return c.clientID }

// Data returns the recorded latency samples.
func (c *Client) Data() *ClientData { return &c.data }

// IssuedCommands reports how many commands this client has generated.
func (c *Client) IssuedCommands() int { return c.workload.IssuedCommands() }

// ClientData records per-command latency samples for later reporting
// (e.g. to a --metrics-file, see the fantoch-client binary).
type ClientData struct {
	latencies []time.Duration
	endTimes  []time.Time
}

func (d *ClientData) record(latency time.Duration, end time.Time) {
	d.latencies = append(d.latencies, latency)
	d.endTimes = append(d.endTimes, end)
}

// LatencyData returns every recorded latency, sorted ascending.
func (d *ClientData) LatencyData() []time.Duration {
	out := make([]time.Duration, len(d.latencies))
	copy(out, d.latencies)
	slices.Sort(out)
	return out
}

// Count returns how many commands have completed.
func (d *ClientData) Count() int { return len(d.latencies) }
