package kvs

import (
	"testing"

	"github.com/isgasho/fantoch/id"
)

func TestStoreExecutePutGetDelete(t *testing.T) {
	s := NewStore(nil)
	r1 := id.Rifl{ClientId: 1, Seq: 1}

	res := s.Execute("k1", Put([]byte("a")), r1)
	if res.Present {
		t.Fatalf("expected no previous value, got present=%v", res.Present)
	}

	res = s.Execute("k1", Get(), r1)
	if !res.Present || string(res.Value) != "a" {
		t.Fatalf("expected to read back 'a', got %+v", res)
	}

	res = s.Execute("k1", Put([]byte("b")), r1)
	if !res.Present || string(res.Value) != "a" {
		t.Fatalf("expected previous value 'a', got %+v", res)
	}

	res = s.Execute("k1", Delete(), r1)
	if !res.Present || string(res.Value) != "b" {
		t.Fatalf("expected deleted value 'b', got %+v", res)
	}

	res = s.Execute("k1", Get(), r1)
	if res.Present {
		t.Fatalf("expected key to be gone, got %+v", res)
	}
}

func TestStorePutIfAbsent(t *testing.T) {
	s := NewStore(nil)
	r1 := id.Rifl{ClientId: 1, Seq: 1}

	res := s.Execute("k1", PutIfAbsent([]byte("first")), r1)
	if res.Present {
		t.Fatalf("expected the first PutIfAbsent to succeed")
	}

	res = s.Execute("k1", PutIfAbsent([]byte("second")), r1)
	if !res.Present {
		t.Fatalf("expected the second PutIfAbsent to be rejected")
	}

	res = s.Execute("k1", Get(), r1)
	if string(res.Value) != "first" {
		t.Fatalf("expected value to remain 'first', got %q", res.Value)
	}
}

func TestOrderMonitorAtMostOnce(t *testing.T) {
	mon := NewOrderMonitor()
	s := NewStore(mon)

	r1 := id.Rifl{ClientId: 1, Seq: 1}
	r2 := id.Rifl{ClientId: 2, Seq: 1}

	s.Execute("k", Put([]byte("a")), r1)
	s.Execute("k", Put([]byte("b")), r2)

	if !mon.AtMostOnce("k") {
		t.Fatalf("expected each rifl to be recorded at most once")
	}

	order := mon.Order("k")
	if len(order) != 2 || order[0] != r1 || order[1] != r2 {
		t.Fatalf("unexpected order: %+v", order)
	}

	// re-delivery of r1 (e.g. duplicate MCommit) must be visible as a repeat
	s.Execute("k", Get(), r1)
	if mon.AtMostOnce("k") {
		t.Fatalf("expected AtMostOnce to catch the duplicate record")
	}
}
