// Package config holds the validated configuration for both the process
// and client binaries, and the flag parsing that produces it. Validation
// follows the error taxonomy: invalid combinations are config errors,
// fatal at startup, never silently coerced.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/isgasho/fantoch/id"
)

// ConfigError is returned for any invalid combination of process flags.
// main() turns it into exit code 1.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string { return e.msg }

func configErrorf(format string, args ...any) error {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

// ProcessConfig is the validated configuration of a single replica process.
type ProcessConfig struct {
	ID         id.ProcessId
	ShardID    id.ShardId
	Sorted     []id.ProcessId
	IP         string
	Port       uint16
	ClientPort uint16
	Addresses  []string

	N int
	F int

	TCPNoDelay        bool
	TCPBufferSize     int
	TCPFlushInterval  time.Duration
	HasTCPFlush       bool
	ChannelBufferSize int

	Workers      int
	Executors    int
	Multiplexing int

	GCInterval time.Duration
	HasGC      bool

	ExecutionLog    string
	HasExecutionLog bool

	TracerShowInterval time.Duration
	HasTracer          bool

	PingInterval time.Duration
	HasPing      bool

	// Leaderless indicates the configured protocol has no designated leader
	// (true for Basic). A leaderless protocol configured with a Sorted
	// list implying a fixed leader is a config error.
	Leaderless bool
}

// Validate enforces the process config error taxonomy: N<1, F>N/2, workers
// without parallel support, leaderless protocol with a configured leader.
func (c *ProcessConfig) Validate(protocolSupportsParallelism bool) error {
	if c.N < 1 {
		return configErrorf("config: n must be >= 1, got %d", c.N)
	}
	if c.F > c.N/2 {
		return configErrorf("config: f must be <= n/2 (n=%d, f=%d)", c.N, c.F)
	}
	if c.Workers > 1 && !protocolSupportsParallelism {
		return configErrorf("config: workers=%d requested but the configured protocol does not support parallelism", c.Workers)
	}
	if c.Leaderless && len(c.Sorted) > 0 {
		return configErrorf("config: --sorted overrides the peer ordering, which implies a leader, but the configured protocol is leaderless")
	}
	if c.ID == 0 {
		return configErrorf("config: --id is required and must be >= 1")
	}
	if c.Workers < 1 {
		return configErrorf("config: workers must be >= 1, got %d", c.Workers)
	}
	if c.Executors < 1 {
		return configErrorf("config: executors must be >= 1, got %d", c.Executors)
	}
	if c.Multiplexing < 1 {
		return configErrorf("config: multiplexing must be >= 1, got %d", c.Multiplexing)
	}
	if c.ChannelBufferSize < 1 {
		return configErrorf("config: channel-buffer-size must be >= 1, got %d", c.ChannelBufferSize)
	}
	if len(c.Addresses) != c.N-1 {
		return configErrorf("config: expected %d peer addresses (n-1), got %d", c.N-1, len(c.Addresses))
	}
	return nil
}

// IsConfigError reports whether err is a ConfigError (exit code 1).
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// FastQuorumSize returns the fast-quorum size for the Basic protocol:
// ceil((N+1)/2).
func (c *ProcessConfig) FastQuorumSize() int {
	return (c.N + 1 + 1) / 2
}
