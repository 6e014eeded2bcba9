package runtime

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/isgasho/fantoch/command"
	"github.com/isgasho/fantoch/config"
	"github.com/isgasho/fantoch/id"
	"github.com/isgasho/fantoch/kvs"
	"github.com/isgasho/fantoch/wire"
)

func freePort(t *testing.T) uint16 {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("freePort: %v", err)
	}
	defer ln.Close()
	return uint16(ln.Addr().(*net.TCPAddr).Port)
}

// newTrioConfigs builds a valid 3-process, f=1 cluster configuration
// listening on loopback, with peer addresses positionally assigned per
// assignPeerAddresses' ascending-id ordering.
func newTrioConfigs(t *testing.T) []*config.ProcessConfig {
	t.Helper()
	peerPorts := []uint16{freePort(t), freePort(t), freePort(t)}
	clientPorts := []uint16{freePort(t), freePort(t), freePort(t)}

	addrFor := func(i int) string { return fmt.Sprintf("127.0.0.1:%d", peerPorts[i]) }

	cfgs := make([]*config.ProcessConfig, 3)
	for i := 0; i < 3; i++ {
		var addrs []string
		for j := 0; j < 3; j++ {
			if j != i {
				addrs = append(addrs, addrFor(j))
			}
		}
		cfgs[i] = &config.ProcessConfig{
			ID:                id.ProcessId(i + 1),
			ShardID:           0,
			IP:                "127.0.0.1",
			Port:              peerPorts[i],
			ClientPort:        clientPorts[i],
			Addresses:         addrs,
			N:                 3,
			F:                 1,
			TCPNoDelay:        true,
			ChannelBufferSize: 64,
			Workers:           1,
			Executors:         1,
			Multiplexing:      1,
			Leaderless:        true,
		}
		if err := cfgs[i].Validate(true); err != nil {
			t.Fatalf("invalid test config: %v", err)
		}
	}
	return cfgs
}

func dialUntilReady(t *testing.T, addr string, deadline time.Time) net.Conn {
	t.Helper()
	for time.Now().Before(deadline) {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			return conn
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out connecting to %s", addr)
	return nil
}

// TestClusterSubmitCommitExecute spins up a 3-process cluster, submits a
// single-key command against one process's client listener, and asserts the
// client receives back a result for the key it wrote, exercising the full
// submit -> fast-path commit -> execute -> reply path end to end.
func TestClusterSubmitCommitExecute(t *testing.T) {
	cfgs := newTrioConfigs(t)
	log := zerolog.Nop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, cfg := range cfgs {
		node, err := New(cfg, log)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		go func() {
			_ = node.Run(ctx)
		}()
	}

	deadline := time.Now().Add(5 * time.Second)
	conn := dialUntilReady(t, fmt.Sprintf("127.0.0.1:%d", cfgs[0].ClientPort), deadline)
	defer conn.Close()

	fw := wire.NewFrameWriter(conn)
	if err := fw.WriteFrame(wire.ClientHi{ClientIDs: []id.ClientId{1}}); err != nil {
		t.Fatalf("client hi: %v", err)
	}
	if err := fw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	rifl := id.Rifl{ClientId: 1, Seq: 1}
	cmd := command.New(rifl, 0, "x", kvs.Put([]byte("hello")))
	if err := fw.WriteFrame(cmd); err != nil {
		t.Fatalf("write command: %v", err)
	}
	if err := fw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	fr := wire.NewFrameReader(conn)
	var res command.Result
	if err := fr.ReadFrame(&res); err != nil {
		t.Fatalf("read result: %v", err)
	}

	if res.Rifl != rifl {
		t.Fatalf("expected rifl %v, got %v", rifl, res.Rifl)
	}
	got, ok := res.Results["x"]
	if !ok {
		t.Fatalf("expected a result for key x, got %+v", res.Results)
	}
	if got.Present {
		t.Fatalf("expected no prior value for a fresh key, got present=%v value=%q", got.Present, got.Value)
	}
}

// TestAssignPeerAddressesMismatch confirms a wrong peer-address count is
// rejected at node construction, rather than surfacing as a later dial
// failure.
func TestAssignPeerAddressesMismatch(t *testing.T) {
	ids := []id.ProcessId{1, 2, 3}
	cfg := &config.ProcessConfig{ID: 1, Addresses: []string{"127.0.0.1:1"}}
	if _, err := assignPeerAddresses(cfg, ids); err == nil {
		t.Fatal("expected an error for a mismatched address count")
	}
}

// TestSameShardProcessIDsDefaultOrder confirms the default (no --sorted)
// ordering is ascending by process id.
func TestSameShardProcessIDsDefaultOrder(t *testing.T) {
	cfg := &config.ProcessConfig{N: 3}
	ids := sameShardProcessIDs(cfg)
	want := []id.ProcessId{1, 2, 3}
	if len(ids) != len(want) {
		t.Fatalf("expected %d ids, got %d", len(want), len(ids))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, ids)
		}
	}
}
