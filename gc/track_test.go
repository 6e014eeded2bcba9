package gc

import (
	"testing"

	"github.com/isgasho/fantoch/id"
)

func TestTrackStableFlow(t *testing.T) {
	ids := []id.ProcessId{1, 2}
	p1 := NewTrack(ids)
	p2 := NewTrack(ids)

	dot11 := id.NewDot(1, 1)
	dot12 := id.NewDot(1, 2)
	dot13 := id.NewDot(1, 3)

	if stable := p1.Stable(); len(stable) != 0 {
		t.Fatalf("expected nothing stable initially, got %+v", stable)
	}

	// committing dot12 alone (a hole at seq 1) must not move the frontier
	p1.AddToClock(dot12)
	if p1.Clock().Frontier(1) != 0 {
		t.Fatalf("frontier should not advance past a hole")
	}

	p1.AddToClock(dot11)
	if p1.Clock().Frontier(1) != 2 {
		t.Fatalf("expected frontier 2 once the hole is filled, got %d", p1.Clock().Frontier(1))
	}

	// without a report from process 2, nothing can be stable
	if stable := p1.Stable(); len(stable) != 0 {
		t.Fatalf("expected nothing stable without peer reports, got %+v", stable)
	}

	p1.UpdateClockOf(2, p2.Clock())
	if stable := p1.Stable(); len(stable) != 0 {
		t.Fatalf("peer 2 hasn't committed anything yet, expected nothing stable")
	}

	p2.AddToClock(dot11)
	p2.AddToClock(dot13)

	p1.UpdateClockOf(2, p2.Clock())
	stable := p1.Stable()
	if len(stable) != 1 || stable[0] != (Range{Process: 1, Start: 1, End: 1}) {
		t.Fatalf("expected dot11 alone to be stable, got %+v", stable)
	}

	// calling again with no new knowledge yields nothing new
	if stable := p1.Stable(); len(stable) != 0 {
		t.Fatalf("expected no newly stable dots on repeat call, got %+v", stable)
	}

	p1.AddToClock(dot13)
	p2.AddToClock(dot12)
	p1.UpdateClockOf(2, p2.Clock())

	stable = p1.Stable()
	if len(stable) != 1 || stable[0] != (Range{Process: 1, Start: 2, End: 3}) {
		t.Fatalf("expected dot12,dot13 to become stable as one range, got %+v", stable)
	}
}

func TestDotsExpandsRanges(t *testing.T) {
	dots := Dots([]Range{{Process: 1, Start: 2, End: 4}, {Process: 2, Start: 5, End: 4}})
	if len(dots) != 3 {
		t.Fatalf("expected 3 dots (process 2's range is empty), got %d: %v", len(dots), dots)
	}
}
