package id

import "sync/atomic"

// atomicCounter is a strictly-increasing counter starting at 1, safe for
// concurrent use. It backs DotGen so Dot generation supports concurrent
// submitters without a lock.
type atomicCounter struct {
	v atomic.Uint64
}

func (c *atomicCounter) incr() uint64 {
	return c.v.Add(1)
}

func (c *atomicCounter) load() uint64 {
	return c.v.Load()
}
