package basicexec

import (
	"testing"

	"github.com/isgasho/fantoch/id"
	"github.com/isgasho/fantoch/kvs"
)

func TestExecutorAppliesAndQueuesResult(t *testing.T) {
	e := New(nil)
	rifl := id.Rifl{ClientId: 1, Seq: 1}

	e.Handle(ExecutionInfo{Rifl: rifl, Key: "x", Op: kvs.Put([]byte("v"))})
	e.Handle(ExecutionInfo{Rifl: rifl, Key: "x", Op: kvs.Get()})

	results := e.ToClients()
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[1].Res.Present || string(results[1].Res.Value) != "v" {
		t.Fatalf("expected get to see the prior put, got %+v", results[1].Res)
	}
	if more := e.ToClients(); len(more) != 0 {
		t.Fatalf("expected ToClients to drain, got %+v", more)
	}
}
