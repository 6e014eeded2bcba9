package client

import (
	"strconv"
	"testing"
)

// TestConflictRateMatchesConfiguration draws 100k keys at a 10% conflict
// rate and checks the observed conflict count lands within 1% of the
// configured rate.
func TestConflictRateMatchesConfiguration(t *testing.T) {
	const (
		draws        = 100_000
		conflictRate = 10
		want         = draws * conflictRate / 100
		tolerance    = draws / 100
	)

	state := NewState(KeyGen{Kind: KeyGenConflictRate, ConflictRate: conflictRate}, 1, 1)

	conflicts := 0
	for i := 0; i < draws; i++ {
		if state.GenCmdKey() == ConflictColor {
			conflicts++
		}
	}

	if conflicts < want-tolerance || conflicts > want+tolerance {
		t.Fatalf("expected %d ± %d conflict keys out of %d, got %d", want, tolerance, draws, conflicts)
	}
}

func TestConflictRateExtremes(t *testing.T) {
	never := NewState(KeyGen{Kind: KeyGenConflictRate, ConflictRate: 0}, 1, 1)
	always := NewState(KeyGen{Kind: KeyGenConflictRate, ConflictRate: 100}, 1, 2)

	for i := 0; i < 1000; i++ {
		if never.GenCmdKey() == ConflictColor {
			t.Fatalf("conflict rate 0 must never produce the conflict key")
		}
		if always.GenCmdKey() != ConflictColor {
			t.Fatalf("conflict rate 100 must always produce the conflict key")
		}
	}
}

// TestZipfSkewsTowardLowKeys checks the Zipf generator's defining shape:
// low-numbered keys dominate the draw.
func TestZipfSkewsTowardLowKeys(t *testing.T) {
	state := NewState(KeyGen{Kind: KeyGenZipf, Coefficient: 1.5, KeysPerShard: 100}, 1, 1)

	counts := make(map[string]int)
	for i := 0; i < 10_000; i++ {
		counts[state.GenCmdKey()]++
	}

	mode, best := "", -1
	for k, c := range counts {
		if c > best {
			mode, best = k, c
		}
	}
	if mode != "0" {
		t.Fatalf("expected key 0 to be the Zipf mode, got %q (%d draws)", mode, best)
	}

	high := counts[strconv.Itoa(90)]
	if counts["0"] <= high {
		t.Fatalf("expected key 0 (%d) to dominate key 90 (%d)", counts["0"], high)
	}
}
