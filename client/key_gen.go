// Package client implements the workload generator and submission loop a
// synthetic load-test client drives against the cluster: which keys to
// touch (key_gen), how many commands and of what shape to generate
// (workload), and the pending-command bookkeeping that turns per-shard
// partial results into a single command.Result (pending).
package client

import (
	"fmt"
	"math/rand"
	"strconv"

	"github.com/isgasho/fantoch/id"
	"github.com/isgasho/fantoch/kvs"
)

// ConflictColor is the single key every "conflicting" operation touches
// under the ConflictRate generator, maximizing contention by design.
const ConflictColor = "CONFLICT"

// KeyGenKind selects which key distribution a client uses.
type KeyGenKind int

const (
	// KeyGenConflictRate picks, with probability ConflictRate, the shared
	// ConflictColor key; otherwise it picks a key unique to this client (so
	// that client never conflicts with another).
	KeyGenConflictRate KeyGenKind = iota
	// KeyGenZipf samples a key index from a Zipf distribution over
	// KeysPerShard*shardCount keys, skewing towards low-numbered keys.
	KeyGenZipf
)

// KeyGen configures a client's key distribution. Only the field matching
// Kind is meaningful.
type KeyGen struct {
	Kind          KeyGenKind
	ConflictRate  int // percentage, 0-100
	Coefficient   float64
	KeysPerShard  int
}

func (k KeyGen) String() string {
	switch k.Kind {
	case KeyGenConflictRate:
		return fmt.Sprintf("conflict%d", k.ConflictRate)
	case KeyGenZipf:
		return fmt.Sprintf("zipf%.2f", k.Coefficient)
	default:
		return "unknown"
	}
}

// State is the per-client, stateful generator built from a KeyGen
// configuration (the Zipf distribution needs its own RNG state).
type State struct {
	cfg      KeyGen
	clientID id.ClientId
	rng      *rand.Rand
	zipf     *rand.Zipf
}

// NewState builds generator state for clientID, given shardCount shards
// each (for Zipf) holding cfg.KeysPerShard keys.
func NewState(cfg KeyGen, shardCount int, clientID id.ClientId) *State {
	s := &State{cfg: cfg, clientID: clientID, rng: rand.New(rand.NewSource(int64(clientID)))}
	if cfg.Kind == KeyGenZipf {
		keyCount := uint64(cfg.KeysPerShard * shardCount)
		if keyCount == 0 {
			keyCount = 1
		}
		s.zipf = rand.NewZipf(s.rng, cfg.Coefficient, 1, keyCount-1)
	}
	return s
}

// GenCmdKey produces the next key a command should touch.
func (s *State) GenCmdKey() kvs.Key {
	switch s.cfg.Kind {
	case KeyGenConflictRate:
		if trueIfRandomIsLessThan(s.rng, s.cfg.ConflictRate) {
			return ConflictColor
		}
		return strconv.FormatUint(uint64(s.clientID), 10)
	case KeyGenZipf:
		return strconv.FormatUint(s.zipf.Uint64(), 10)
	default:
		panic("client: unknown key generator kind")
	}
}

// trueIfRandomIsLessThan reports, with probability percentage/100, true.
func trueIfRandomIsLessThan(rng *rand.Rand, percentage int) bool {
	switch percentage {
	case 0:
		return false
	case 100:
		return true
	default:
		return rng.Intn(100) < percentage
	}
}
