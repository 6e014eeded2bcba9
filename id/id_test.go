package id

import (
	"sync"
	"testing"
)

func TestDotGenMonotonic(t *testing.T) {
	gen := NewDotGen(7)
	prev := uint64(0)
	for i := 0; i < 1000; i++ {
		dot, err := gen.Next()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dot.Source != 7 {
			t.Fatalf("source changed: got %d", dot.Source)
		}
		if dot.Sequence <= prev {
			t.Fatalf("sequence not strictly increasing: %d <= %d", dot.Sequence, prev)
		}
		prev = dot.Sequence
	}
	if prev != 1000 {
		t.Fatalf("expected sequence to start at 1, got final %d", prev)
	}
}

func TestDotGenConcurrent(t *testing.T) {
	gen := NewDotGen(1)
	const n = 200
	seen := make(chan uint64, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dot, err := gen.Next()
			if err != nil {
				t.Error(err)
				return
			}
			seen <- dot.Sequence
		}()
	}
	wg.Wait()
	close(seen)

	uniq := make(map[uint64]struct{}, n)
	for v := range seen {
		if _, ok := uniq[v]; ok {
			t.Fatalf("duplicate sequence issued: %d", v)
		}
		uniq[v] = struct{}{}
	}
	if len(uniq) != n {
		t.Fatalf("expected %d unique sequences, got %d", n, len(uniq))
	}
}

func TestRiflGenMonotonic(t *testing.T) {
	gen := NewRiflGen(42)
	prev := uint64(0)
	for i := 0; i < 10; i++ {
		r, err := gen.Next()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.ClientId != 42 {
			t.Fatalf("client id changed")
		}
		if r.Seq <= prev {
			t.Fatalf("seq not increasing")
		}
		prev = r.Seq
	}
}

func TestDotLess(t *testing.T) {
	cases := []struct {
		a, b Dot
		less bool
	}{
		{NewDot(1, 1), NewDot(2, 1), true},
		{NewDot(2, 1), NewDot(1, 1), false},
		{NewDot(1, 1), NewDot(1, 2), true},
		{NewDot(1, 1), NewDot(1, 1), false},
	}
	for _, c := range cases {
		if got := c.a.Less(c.b); got != c.less {
			t.Errorf("%v.Less(%v) = %v, want %v", c.a, c.b, got, c.less)
		}
	}
}
