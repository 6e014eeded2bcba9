// Package wire implements the length-delimited, gob-encoded framing used
// for both peer-to-peer and client-to-process connections: a 4-byte
// big-endian length prefix followed by the gob encoding of the frame
// body (see DESIGN.md for the codec choice).
package wire

import (
	"github.com/isgasho/fantoch/executor/basicexec"
	"github.com/isgasho/fantoch/id"
	"github.com/isgasho/fantoch/kvs"
	"github.com/isgasho/fantoch/protocol/basic"
)

// ProcessHi is the first frame every peer connection must send (from both
// sides) before any other frame; connections that send anything else first
// are closed.
type ProcessHi struct {
	ProcessID id.ProcessId
	ShardID   id.ShardId
}

// ClientHi is the first frame every client connection sends, naming the
// client ids it will submit commands under (a client may multiplex more
// than one logical client id over a single connection).
type ClientHi struct {
	ClientIDs []id.ClientId
}

// POEMessageKind distinguishes the two kinds of payload a peer connection
// carries after the handshake: protocol messages and cross-shard execution
// info (for partial replication).
type POEMessageKind int

const (
	POEProtocol POEMessageKind = iota
	POEExecutor
)

// ProtocolMessageKind tags which concrete Basic message Protocol holds,
// since gob cannot decode into an interface without an explicit tag (gob's
// own interface support requires global registration and a concrete type
// switch is clearer here, matching the Basic message set being closed and
// small).
type ProtocolMessageKind int

const (
	MsgMStore ProtocolMessageKind = iota
	MsgMStoreAck
	MsgMCommit
	MsgMCommitDot
	MsgMGarbageCollection
	MsgMStable
)

// POEMessage is the peer-to-peer payload frame, a tagged union of a
// protocol message and cross-shard executor info.
type POEMessage struct {
	Kind POEMessageKind

	ProtocolKind ProtocolMessageKind
	MStore       basic.MStore
	MStoreAck    basic.MStoreAck
	MCommit      basic.MCommit
	MCommitDot   basic.MCommitDot
	MGC          basic.MGarbageCollection
	MStable      basic.MStable

	Executor ExecutorInfo
}

// ExecutorInfo is the wire form of basicexec.ExecutionInfo, annotated with
// the dot it resulted from — needed cross-shard, where the destination
// executor has no other way to learn the originating dot.
type ExecutorInfo struct {
	Dot  id.Dot
	Rifl id.Rifl
	Key  kvs.Key
	Op   kvs.Op
}

// FromExecutionInfo wraps a basicexec.ExecutionInfo for the wire.
func FromExecutionInfo(dot id.Dot, info basicexec.ExecutionInfo) ExecutorInfo {
	return ExecutorInfo{Dot: dot, Rifl: info.Rifl, Key: info.Key, Op: info.Op}
}

// ToExecutionInfo discards the wire-only Dot framing, recovering the
// basicexec-level type.
func (e ExecutorInfo) ToExecutionInfo() basicexec.ExecutionInfo {
	return basicexec.ExecutionInfo{Rifl: e.Rifl, Key: e.Key, Op: e.Op}
}

// ToPOEMessage wraps a protocol message for the wire, tagging it by kind so
// the receiver's decode switch knows which field is populated.
func ToPOEMessage(msg any) POEMessage {
	switch m := msg.(type) {
	case basic.MStore:
		return POEMessage{Kind: POEProtocol, ProtocolKind: MsgMStore, MStore: m}
	case basic.MStoreAck:
		return POEMessage{Kind: POEProtocol, ProtocolKind: MsgMStoreAck, MStoreAck: m}
	case basic.MCommit:
		return POEMessage{Kind: POEProtocol, ProtocolKind: MsgMCommit, MCommit: m}
	case basic.MCommitDot:
		return POEMessage{Kind: POEProtocol, ProtocolKind: MsgMCommitDot, MCommitDot: m}
	case basic.MGarbageCollection:
		return POEMessage{Kind: POEProtocol, ProtocolKind: MsgMGarbageCollection, MGC: m}
	case basic.MStable:
		return POEMessage{Kind: POEProtocol, ProtocolKind: MsgMStable, MStable: m}
	default:
		panic("wire: unsupported protocol message type")
	}
}

// Unwrap recovers the concrete protocol.Message held in a POEProtocol
// frame.
func (m POEMessage) Unwrap() any {
	switch m.ProtocolKind {
	case MsgMStore:
		return m.MStore
	case MsgMStoreAck:
		return m.MStoreAck
	case MsgMCommit:
		return m.MCommit
	case MsgMCommitDot:
		return m.MCommitDot
	case MsgMGarbageCollection:
		return m.MGC
	case MsgMStable:
		return m.MStable
	default:
		panic("wire: unknown protocol message kind")
	}
}
