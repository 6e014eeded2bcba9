package wire

import (
	"bytes"
	"testing"

	"github.com/isgasho/fantoch/id"
	"github.com/isgasho/fantoch/kvs"
	"github.com/isgasho/fantoch/protocol/basic"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFrameWriter(&buf)

	hi := ProcessHi{ProcessID: 1, ShardID: 2}
	if err := fw.WriteFrame(hi); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if err := fw.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	fr := NewFrameReader(&buf)
	var got ProcessHi
	if err := fr.ReadFrame(&got); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got != hi {
		t.Fatalf("expected %+v, got %+v", hi, got)
	}
}

func TestFrameRoundTripMultipleFrames(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFrameWriter(&buf)

	hi := ClientHi{ClientIDs: []id.ClientId{1, 2, 3}}
	ex := ExecutorInfo{Dot: id.NewDot(1, 1), Rifl: id.Rifl{ClientId: 1, Seq: 1}, Key: "k", Op: kvs.Get()}

	if err := fw.WriteFrame(hi); err != nil {
		t.Fatalf("WriteFrame hi: %v", err)
	}
	if err := fw.WriteFrame(ex); err != nil {
		t.Fatalf("WriteFrame ex: %v", err)
	}
	if err := fw.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	fr := NewFrameReader(&buf)
	var gotHi ClientHi
	if err := fr.ReadFrame(&gotHi); err != nil {
		t.Fatalf("ReadFrame hi: %v", err)
	}
	if len(gotHi.ClientIDs) != 3 {
		t.Fatalf("expected 3 client ids, got %v", gotHi.ClientIDs)
	}

	var gotEx ExecutorInfo
	if err := fr.ReadFrame(&gotEx); err != nil {
		t.Fatalf("ReadFrame ex: %v", err)
	}
	if gotEx.Key != "k" || gotEx.Rifl != ex.Rifl {
		t.Fatalf("expected %+v, got %+v", ex, gotEx)
	}
}

func TestToPOEMessageRoundTrip(t *testing.T) {
	dot := id.NewDot(1, 1)
	cmd := basic.MStore{Dot: dot}

	poe := ToPOEMessage(cmd)
	if poe.Kind != POEProtocol || poe.ProtocolKind != MsgMStore {
		t.Fatalf("unexpected envelope tagging: %+v", poe)
	}

	back, ok := poe.Unwrap().(basic.MStore)
	if !ok {
		t.Fatalf("expected an MStore, got %T", poe.Unwrap())
	}
	if back.Dot != dot {
		t.Fatalf("expected dot %v, got %v", dot, back.Dot)
	}
}

func TestToPOEMessagePanicsOnUnknownType(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for an unsupported message type")
		}
	}()
	ToPOEMessage(struct{}{})
}
