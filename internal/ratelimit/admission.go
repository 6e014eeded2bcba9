package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/exp/slices"

	"github.com/isgasho/fantoch/id"
)

// window is one (duration, limit) submission budget: at most limit commands
// from a given client may fall within any duration-wide trailing interval.
type window struct {
	duration time.Duration
	limit    int
}

// clientLog is the sliding-window event log tracked for a single client. All
// windows for a client share one log: each window simply looks back a
// different distance into the same time-ordered slice of timestamps.
type clientLog struct {
	mu     sync.Mutex
	events []time.Time
}

// ClientAdmission polices the rate at which each client may submit commands,
// checked directly against id.ClientId — the only key this engine ever
// needs. A client that exceeds any configured window has its connection's
// next read delayed rather than the command being dropped.
type ClientAdmission struct {
	windows []window

	mu      sync.Mutex
	clients map[id.ClientId]*clientLog
}

// NewClientAdmission builds a ClientAdmission from the per-window submission
// caps configured for the process, e.g. {time.Second: 100, time.Minute: 2000}
// allows up to 100 commands in any trailing second and up to 2000 in any
// trailing minute. A nil or empty rates map disables admission control
// entirely (Allow always succeeds).
//
// Rate durations and limits must be positive, and limits must increase
// strictly with duration — a longer window that didn't allow strictly more
// submissions than every shorter one could never be the binding constraint,
// which is almost certainly a configuration mistake. NewClientAdmission
// panics otherwise.
func NewClientAdmission(rates map[time.Duration]int) *ClientAdmission {
	if len(rates) == 0 {
		return &ClientAdmission{}
	}

	windows := make([]window, 0, len(rates))
	for d, limit := range rates {
		if d <= 0 || limit <= 0 {
			panic("ratelimit: window duration and limit must be positive")
		}
		windows = append(windows, window{duration: d, limit: limit})
	}
	slices.SortFunc(windows, func(a, b window) int { return int(a.duration - b.duration) })
	for i := 1; i < len(windows); i++ {
		if windows[i].limit <= windows[i-1].limit {
			panic("ratelimit: window limits must strictly increase with window duration")
		}
	}

	return &ClientAdmission{
		windows: windows,
		clients: make(map[id.ClientId]*clientLog),
	}
}

// Allow reports whether clientID may submit another command now. When
// false, until is the earliest time at which the caller should retry — the
// point at which the oldest event inside the binding window expires.
func (c *ClientAdmission) Allow(clientID id.ClientId) (until time.Time, ok bool) {
	if c == nil || len(c.windows) == 0 {
		return time.Time{}, true
	}

	log := c.logFor(clientID)
	log.mu.Lock()
	defer log.mu.Unlock()

	now := time.Now()
	oldest := c.windows[len(c.windows)-1].duration
	log.events = dropBefore(log.events, now.Add(-oldest))

	for _, w := range c.windows {
		cutoff := now.Add(-w.duration)
		count := 0
		var earliest time.Time
		for _, e := range log.events {
			if e.After(cutoff) {
				if count == 0 {
					earliest = e
				}
				count++
			}
		}
		if count >= w.limit {
			return earliest.Add(w.duration), false
		}
	}

	log.events = append(log.events, now)
	return time.Time{}, true
}

func (c *ClientAdmission) logFor(clientID id.ClientId) *clientLog {
	c.mu.Lock()
	defer c.mu.Unlock()
	log, ok := c.clients[clientID]
	if !ok {
		log = &clientLog{}
		c.clients[clientID] = log
	}
	return log
}

// dropBefore removes every event at or before cutoff from a time-ordered,
// append-only slice, preserving the remaining order.
func dropBefore(events []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(events) && !events[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return events
	}
	return append(events[:0], events[i:]...)
}
