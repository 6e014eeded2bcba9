// Package command defines the unit of work clients submit: a Rifl plus a
// per-shard map of key to operation, and the (possibly partial) result the
// engine hands back.
package command

import (
	"strings"

	"golang.org/x/exp/slices"

	"github.com/isgasho/fantoch/id"
	"github.com/isgasho/fantoch/kvs"
)

// Command carries a client's Rifl and the operations it performs, grouped by
// shard. The set of shards touched must be non-empty.
type Command struct {
	Rifl  id.Rifl
	Shops map[id.ShardId]map[kvs.Key]kvs.Op
}

// New builds a Command touching a single shard and key, the common case for
// tests and simple clients.
func New(rifl id.Rifl, shard id.ShardId, key kvs.Key, op kvs.Op) Command {
	return Command{
		Rifl: rifl,
		Shops: map[id.ShardId]map[kvs.Key]kvs.Op{
			shard: {key: op},
		},
	}
}

// Shards returns the sorted set of shards this command touches. Panics if
// the command touches no shard.
func (c Command) Shards() []id.ShardId {
	if len(c.Shops) == 0 {
		panic("command: a command must touch at least one shard")
	}
	shards := make([]id.ShardId, 0, len(c.Shops))
	for s := range c.Shops {
		shards = append(shards, s)
	}
	slices.Sort(shards)
	return shards
}

// TargetShard is the lowest ShardId touched by the command: the shard
// responsible for routing the eventual client reply.
func (c Command) TargetShard() id.ShardId {
	shards := c.Shards()
	return shards[0]
}

// ReplicatedBy reports whether shard is one of the shards this command
// touches, i.e. whether a replica of shard holds (part of) this command.
func (c Command) ReplicatedBy(shard id.ShardId) bool {
	_, ok := c.Shops[shard]
	return ok
}

// KeyOp pairs a key with the operation performed against it, scoped to a
// single shard — the unit the protocol layer forwards to executors.
type KeyOp struct {
	Key kvs.Key
	Op  kvs.Op
}

// ShardOps returns the (key, op) pairs this command performs within shard,
// sorted by key for determinism (e.g. in tests and logs).
func (c Command) ShardOps(shard id.ShardId) []KeyOp {
	ops := c.Shops[shard]
	out := make([]KeyOp, 0, len(ops))
	for k, op := range ops {
		out = append(out, KeyOp{Key: k, Op: op})
	}
	slices.SortFunc(out, func(a, b KeyOp) int { return strings.Compare(a.Key, b.Key) })
	return out
}

// Result is the per-key outcome of executing a Command, aggregated across
// every shard it touched. A command spanning multiple shards may surface as
// more than one partial Result; the client is responsible for merging them
// before treating the command as complete.
type Result struct {
	Rifl    id.Rifl
	Results map[kvs.Key]kvs.Result
}

// NewResult creates an empty Result for rifl.
func NewResult(rifl id.Rifl) Result {
	return Result{Rifl: rifl, Results: make(map[kvs.Key]kvs.Result)}
}

// Add records the outcome of executing op against key.
func (r *Result) Add(key kvs.Key, res kvs.Result) {
	r.Results[key] = res
}

// Merge folds other's key results into r. Used by the client to aggregate
// partial results arriving from different target shards for the same Rifl.
func (r *Result) Merge(other Result) {
	for k, v := range other.Results {
		r.Results[k] = v
	}
}

// Complete reports whether every key this command touches (across every
// shard) has a recorded result.
func (r Result) Complete(cmd Command) bool {
	for _, ops := range cmd.Shops {
		for k := range ops {
			if _, ok := r.Results[k]; !ok {
				return false
			}
		}
	}
	return true
}
