package ratelimit

import (
	"testing"
	"time"

	"github.com/isgasho/fantoch/id"
)

func TestClientAdmissionDisabledByDefault(t *testing.T) {
	c := NewClientAdmission(nil)
	for i := 0; i < 1000; i++ {
		if _, ok := c.Allow(id.ClientId(1)); !ok {
			t.Fatalf("expected admission control to be disabled, got a throttle")
		}
	}
}

func TestClientAdmissionThrottlesBurst(t *testing.T) {
	c := NewClientAdmission(map[time.Duration]int{time.Minute: 2})

	if _, ok := c.Allow(id.ClientId(1)); !ok {
		t.Fatalf("expected first submission to be allowed")
	}
	if _, ok := c.Allow(id.ClientId(1)); !ok {
		t.Fatalf("expected second submission to be allowed")
	}
	until, ok := c.Allow(id.ClientId(1))
	if ok {
		t.Fatalf("expected third submission within the window to be throttled")
	}
	if !until.After(time.Now()) {
		t.Fatalf("expected until to be in the future, got %v", until)
	}
}

func TestClientAdmissionIsolatesClients(t *testing.T) {
	c := NewClientAdmission(map[time.Duration]int{time.Minute: 1})

	if _, ok := c.Allow(id.ClientId(1)); !ok {
		t.Fatalf("expected client 1's first submission to be allowed")
	}
	if _, ok := c.Allow(id.ClientId(1)); ok {
		t.Fatalf("expected client 1's second submission to be throttled")
	}
	if _, ok := c.Allow(id.ClientId(2)); !ok {
		t.Fatalf("expected client 2 to have its own budget, unaffected by client 1")
	}
}

func TestClientAdmissionEnforcesEveryWindow(t *testing.T) {
	c := NewClientAdmission(map[time.Duration]int{
		time.Millisecond * 10: 1,
		time.Hour:             100,
	})

	if _, ok := c.Allow(id.ClientId(1)); !ok {
		t.Fatalf("expected first submission to be allowed")
	}
	if _, ok := c.Allow(id.ClientId(1)); ok {
		t.Fatalf("expected the short window to throttle the second immediate submission")
	}

	time.Sleep(15 * time.Millisecond)
	if _, ok := c.Allow(id.ClientId(1)); !ok {
		t.Fatalf("expected the short window to have cleared after it elapsed")
	}
}

func TestNewClientAdmissionPanicsOnNonPositiveRate(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic for a non-positive window")
		}
	}()
	NewClientAdmission(map[time.Duration]int{0: 10})
}

func TestNewClientAdmissionPanicsOnNonMonotonicRates(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic for non-monotonic rates")
		}
	}()
	NewClientAdmission(map[time.Duration]int{
		time.Second: 10,
		time.Minute: 5,
	})
}
