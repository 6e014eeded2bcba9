// Package ratelimit implements the per-client admission check described in
// SPEC_FULL.md's supplemented features: a client submitting commands faster
// than a configured set of sliding windows allows has its connection's next
// read delayed (never dropped) before the command ever reaches a protocol
// worker. Unlike a generic category-keyed limiter, the budget is tracked
// directly against id.ClientId, the only key this engine ever needs.
package ratelimit
