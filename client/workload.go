package client

import (
	"github.com/isgasho/fantoch/command"
	"github.com/isgasho/fantoch/id"
	"github.com/isgasho/fantoch/kvs"
)

// alphanumeric is the alphabet random command payloads are drawn from.
const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// ShardGen picks which shards a generated command targets.
type ShardGen struct {
	// ShardCount is the number of shards in the cluster; a command picks
	// ShardsPerCommand of them uniformly at random.
	ShardCount int
}

func (g ShardGen) genShard(rng *State) id.ShardId {
	return id.ShardId(rng.rng.Intn(g.ShardCount))
}

// Workload configures the synthetic commands a Client generates: how many
// shards and keys each command touches, which key distribution to use, how
// many total commands to generate, and the payload size of each write.
type Workload struct {
	ShardsPerCommand   int
	ShardGen           ShardGen
	KeysPerShard       int
	KeyGen             KeyGen
	CommandsPerClient  int
	PayloadSize        int

	commandCount int
}

// NewWorkload validates and creates a Workload. It panics on combinations
// the generators cannot satisfy: more distinct shards per command than the
// cluster has shards would loop the shard draw forever, a 100% conflict
// rate can only ever produce one key per shard (the shared ConflictColor),
// and the conflict-rate generator never produces more than two keys per
// shard.
func NewWorkload(shardsPerCommand int, shardGen ShardGen, keysPerShard int, keyGen KeyGen, commandsPerClient, payloadSize int) Workload {
	if shardsPerCommand > shardGen.ShardCount {
		panic("client: can't draw more distinct shards per command than the cluster has shards")
	}
	if keyGen.Kind == KeyGenConflictRate {
		if keyGen.ConflictRate == 100 && keysPerShard > 1 {
			panic("client: can't generate more than one key per shard when the conflict rate is 100")
		}
		if keysPerShard > 2 {
			panic("client: can't generate more than two keys per shard with the conflict-rate key generator")
		}
	}
	return Workload{
		ShardsPerCommand:  shardsPerCommand,
		ShardGen:          shardGen,
		KeysPerShard:      keysPerShard,
		KeyGen:            keyGen,
		CommandsPerClient: commandsPerClient,
		PayloadSize:       payloadSize,
	}
}

// Finished reports whether every configured command has been generated.
func (w *Workload) Finished() bool {
	return w.commandCount == w.CommandsPerClient
}

// IssuedCommands reports how many commands have been generated so far.
func (w *Workload) IssuedCommands() int {
	return w.commandCount
}

// NextCmd generates the next command in this workload, or ok=false once
// CommandsPerClient have been issued.
func (w *Workload) NextCmd(riflGen *id.RiflGen, keyState *State) (id.ShardId, command.Command, bool, error) {
	if w.commandCount >= w.CommandsPerClient {
		return 0, command.Command{}, false, nil
	}
	w.commandCount++

	rifl, err := riflGen.Next()
	if err != nil {
		return 0, command.Command{}, false, err
	}

	shardIDs := genUniqueShards(w.ShardsPerCommand, w.ShardGen, keyState)

	ops := make(map[id.ShardId]map[kvs.Key]kvs.Op, len(shardIDs))
	for _, shardID := range shardIDs {
		keys := genUniqueKeys(w.KeysPerShard, keyState)
		shardOps := make(map[kvs.Key]kvs.Op, len(keys))
		for _, key := range keys {
			shardOps[key] = kvs.Put(w.genValue(keyState))
		}
		ops[shardID] = shardOps
	}

	cmd := command.Command{Rifl: rifl, Shops: ops}
	return cmd.TargetShard(), cmd, true, nil
}

func (w *Workload) genValue(state *State) kvs.Value {
	out := make([]byte, w.PayloadSize)
	for i := range out {
		out[i] = alphanumeric[state.rng.Intn(len(alphanumeric))]
	}
	return out
}

// genUniqueShards draws count distinct shard ids.
func genUniqueShards(count int, gen ShardGen, rng *State) []id.ShardId {
	seen := make(map[id.ShardId]struct{}, count)
	out := make([]id.ShardId, 0, count)
	for len(out) < count {
		s := gen.genShard(rng)
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// genUniqueKeys draws count distinct keys from state's generator.
func genUniqueKeys(count int, state *State) []kvs.Key {
	seen := make(map[kvs.Key]struct{}, count)
	out := make([]kvs.Key, 0, count)
	for len(out) < count {
		k := state.GenCmdKey()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
