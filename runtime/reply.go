package runtime

import (
	"github.com/rs/zerolog"

	"github.com/isgasho/fantoch/command"
	"github.com/isgasho/fantoch/executor/basicexec"
	"github.com/isgasho/fantoch/id"
)

// replyRouter aggregates the per-key results a command's keys produce
// (possibly across more than one executor worker, since executors are
// key-sharded) into the single command.Result the coordinator owes the
// client that submitted it; a shard sends back one result per command it
// coordinates, and the client itself aggregates across shards (see
// client.Client.HandlePartial). It runs as a single goroutine so the
// pending-result table never needs a lock despite being written from every
// executor worker.
type replyRouter struct {
	log zerolog.Logger

	registerCh chan registerReply
	resultCh   chan basicexec.Result
}

type registerReply struct {
	cmd    command.Command
	shard  id.ShardId
	client *clientConn
}

type pendingReply struct {
	want   int
	res    command.Result
	client *clientConn
}

func newReplyRouter(log zerolog.Logger) *replyRouter {
	r := &replyRouter{
		log:        log,
		registerCh: make(chan registerReply, 256),
		resultCh:   make(chan basicexec.Result, 256),
	}
	go r.run()
	return r
}

// register records that cmd was locally coordinated on behalf of client,
// and that its result is complete once every key it touches within shard
// has reported. Only the coordinating replica calls this — a replica that
// merely executes a committed command on behalf of someone else's
// coordination never registers anything, so its results are silently
// dropped by run below (there is no one local to reply to).
func (r *replyRouter) register(cmd command.Command, shard id.ShardId, client *clientConn) {
	r.registerCh <- registerReply{cmd: cmd, shard: shard, client: client}
}

// deliver folds a single key's result in. Called from executor workers.
func (r *replyRouter) deliver(res basicexec.Result) {
	r.resultCh <- res
}

func (r *replyRouter) run() {
	pending := make(map[id.Rifl]*pendingReply)
	for {
		select {
		case reg, ok := <-r.registerCh:
			if !ok {
				return
			}
			keys := reg.cmd.ShardOps(reg.shard)
			pending[reg.cmd.Rifl] = &pendingReply{
				want:   len(keys),
				res:    command.NewResult(reg.cmd.Rifl),
				client: reg.client,
			}

		case res, ok := <-r.resultCh:
			if !ok {
				return
			}
			entry, ok := pending[res.Rifl]
			if !ok {
				// this replica executed the command but did not coordinate
				// it (it has no local client waiting): nothing to do.
				continue
			}
			entry.res.Add(res.Key, res.Res)
			if len(entry.res.Results) < entry.want {
				continue
			}
			delete(pending, res.Rifl)
			entry.client.sendResult(entry.res)
		}
	}
}
