package command

import (
	"testing"

	"github.com/isgasho/fantoch/id"
	"github.com/isgasho/fantoch/kvs"
)

func TestTargetShardIsLowest(t *testing.T) {
	cmd := Command{
		Rifl: id.Rifl{ClientId: 1, Seq: 1},
		Shops: map[id.ShardId]map[kvs.Key]kvs.Op{
			3: {"k3": kvs.Get()},
			1: {"k1": kvs.Get()},
			2: {"k2": kvs.Get()},
		},
	}
	if got := cmd.TargetShard(); got != 1 {
		t.Fatalf("expected target shard 1, got %d", got)
	}
	shards := cmd.Shards()
	want := []id.ShardId{1, 2, 3}
	for i, s := range want {
		if shards[i] != s {
			t.Fatalf("shards not sorted: %v", shards)
		}
	}
}

func TestReplicatedBy(t *testing.T) {
	cmd := New(id.Rifl{ClientId: 1, Seq: 1}, 0, "k", kvs.Get())
	if !cmd.ReplicatedBy(0) {
		t.Fatalf("expected shard 0 to replicate the command")
	}
	if cmd.ReplicatedBy(1) {
		t.Fatalf("did not expect shard 1 to replicate the command")
	}
}

func TestResultMergeAndComplete(t *testing.T) {
	rifl := id.Rifl{ClientId: 1, Seq: 1}
	cmd := Command{
		Rifl: rifl,
		Shops: map[id.ShardId]map[kvs.Key]kvs.Op{
			0: {"k1": kvs.Get()},
			1: {"k2": kvs.Get()},
		},
	}

	r1 := NewResult(rifl)
	r1.Add("k1", kvs.Result{Present: true, Value: []byte("a")})
	if r1.Complete(cmd) {
		t.Fatalf("result should not be complete before k2 arrives")
	}

	r2 := NewResult(rifl)
	r2.Add("k2", kvs.Result{Present: false})

	r1.Merge(r2)
	if !r1.Complete(cmd) {
		t.Fatalf("result should be complete after merge")
	}
}
