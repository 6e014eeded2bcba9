package route

import (
	"testing"

	"github.com/isgasho/fantoch/id"
)

func TestWorkerForDotSkipsReserved(t *testing.T) {
	for seq := uint64(1); seq < 50; seq++ {
		dot := id.NewDot(1, seq)
		idx := WorkerForDot(dot, 5)
		if idx < ReservedWorkers {
			t.Fatalf("WorkerForDot(%v, 5) = %d, expected >= %d", dot, idx, ReservedWorkers)
		}
	}
}

func TestWorkerForDotSingleWorkerFallback(t *testing.T) {
	dot := id.NewDot(1, 7)
	if idx := WorkerForDot(dot, 1); idx != 0 {
		t.Fatalf("expected index 0 with a single worker, got %d", idx)
	}
}

func TestWorkerForDotStableForSameSequence(t *testing.T) {
	dot := id.NewDot(1, 42)
	a := WorkerForDot(dot, 8)
	b := WorkerForDot(dot, 8)
	if a != b {
		t.Fatalf("routing must be deterministic: got %d then %d", a, b)
	}
}

func TestWorkerForKeySingleExecutor(t *testing.T) {
	if idx := WorkerForKey("any-key", 1); idx != 0 {
		t.Fatalf("expected index 0 with a single executor, got %d", idx)
	}
}

func TestWorkerForKeyDeterministic(t *testing.T) {
	a := WorkerForKey("x", 4)
	b := WorkerForKey("x", 4)
	if a != b {
		t.Fatalf("routing must be deterministic: got %d then %d", a, b)
	}
	if a < 0 || a >= 4 {
		t.Fatalf("expected index in [0,4), got %d", a)
	}
}

func TestSelfMessage(t *testing.T) {
	if !SelfMessage(2, 2) {
		t.Fatal("expected SelfMessage(2, 2) to be true")
	}
	if SelfMessage(2, 3) {
		t.Fatal("expected SelfMessage(2, 3) to be false")
	}
}
