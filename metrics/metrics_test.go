package metrics

import (
	"sync"
	"testing"
)

func TestProtocolSnapshot(t *testing.T) {
	var p Protocol
	p.FastPath.Add(5)
	p.SlowPath.Add(1)
	p.Stable.Add(3)
	p.CommandsIn.Add(6)
	p.MessagesOut.Add(12)

	got := p.Snapshot()
	want := ProtocolSnapshot{FastPath: 5, SlowPath: 1, Stable: 3, CommandsIn: 6, MessagesOut: 12}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestExecutorSnapshot(t *testing.T) {
	var e Executor
	e.OutRequests.Add(4)
	e.InRequests.Add(2)
	e.InRequestReplies.Add(2)
	e.Executed.Add(9)

	got := e.Snapshot()
	want := ExecutorSnapshot{OutRequests: 4, InRequests: 2, InRequestReplies: 2, Executed: 9}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestProtocolCountersAreConcurrencySafe(t *testing.T) {
	var p Protocol
	var wg sync.WaitGroup
	const n = 100
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			p.FastPath.Add(1)
		}()
	}
	wg.Wait()

	if got := p.Snapshot().FastPath; got != n {
		t.Fatalf("expected %d, got %d", n, got)
	}
}
