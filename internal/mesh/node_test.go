package mesh

import (
	"strings"
	"testing"
	"time"

	"github.com/hivecom/meshsim/internal/cert"
	"github.com/hivecom/meshsim/internal/crypto/pqc"
)

func twoNodeGrid(t *testing.T) *Grid {
	t.Helper()
	g, err := NewGrid([]NodeSpec{
		{ID: "A", Connections: []string{"B"}},
		{ID: "B", Connections: []string{"A"}},
	}, NewRandomRouter(1))
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	t.Cleanup(g.Shutdown)
	return g
}

func TestHandshakeAndMessageRoundTrip(t *testing.T) {
	g := twoNodeGrid(t)

	a, ok := g.Node("A")
	if !ok {
		t.Fatal("node A not found")
	}
	b, ok := g.Node("B")
	if !ok {
		t.Fatal("node B not found")
	}

	msg := NewMessage("A", "B", FlagMessage, []byte("hello mesh"))
	if err := a.Send(msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if !msg.WaitTimeout(2 * time.Second) {
		t.Fatal("message was never acknowledged")
	}

	stats := b.Stats()
	if stats["established_sessions"].(int) != 1 {
		t.Errorf("B established_sessions = %v, want 1", stats["established_sessions"])
	}
	aStats := a.Stats()
	if aStats["established_sessions"].(int) != 1 {
		t.Errorf("A established_sessions = %v, want 1", aStats["established_sessions"])
	}
}

func TestConcurrentSendsBeforeHandshakeShareOneSession(t *testing.T) {
	g := twoNodeGrid(t)

	a, _ := g.Node("A")
	b, _ := g.Node("B")

	msg1 := NewMessage("A", "B", FlagMessage, []byte("first"))
	msg2 := NewMessage("A", "B", FlagMessage, []byte("second"))

	if err := a.Send(msg1); err != nil {
		t.Fatalf("Send msg1: %v", err)
	}
	if err := a.Send(msg2); err != nil {
		t.Fatalf("Send msg2: %v", err)
	}

	if !msg1.WaitTimeout(2 * time.Second) {
		t.Fatal("msg1 was never acknowledged")
	}
	if !msg2.WaitTimeout(2 * time.Second) {
		t.Fatal("msg2 was never acknowledged")
	}

	stats := b.Stats()
	if stats["established_sessions"].(int) != 1 {
		t.Errorf("B established_sessions = %v, want 1 (one handshake, not two)", stats["established_sessions"])
	}
}

func TestSendToSelfIsRejected(t *testing.T) {
	g := twoNodeGrid(t)
	a, _ := g.Node("A")

	msg := NewMessage("A", "A", FlagMessage, []byte("loopback"))
	if err := a.Send(msg); err != ErrSelfSend {
		t.Errorf("Send to self: err = %v, want ErrSelfSend", err)
	}
}

func TestSendWithWrongSourceIsRejected(t *testing.T) {
	g := twoNodeGrid(t)
	a, _ := g.Node("A")

	msg := NewMessage("someone-else", "B", FlagMessage, []byte("spoofed"))
	if err := a.Send(msg); err == nil {
		t.Error("Send with mismatched source: want error, got nil")
	}
}

func TestUndeliverableMessageIsDroppedNotPanicked(t *testing.T) {
	g, err := NewGrid([]NodeSpec{
		{ID: "isolated", Connections: nil},
	}, NewRandomRouter(1))
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	t.Cleanup(g.Shutdown)

	isolated, _ := g.Node("isolated")

	msg := NewMessage("isolated", "nowhere", FlagMessage, []byte("lost"))
	if err := isolated.Send(msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if msg.WaitTimeout(200 * time.Millisecond) {
		t.Error("undeliverable message was somehow acknowledged")
	}
}

func TestDeliverToUnknownNextHopIsSilentlyDropped(t *testing.T) {
	g := twoNodeGrid(t)

	msg := NewMessage("A", "ghost", FlagMessage, []byte("nobody home"))
	g.Deliver(msg, "ghost")

	if msg.WaitTimeout(100 * time.Millisecond) {
		t.Error("delivery to an unknown next hop was somehow acknowledged")
	}
}

// TestThreeNodeForwardingHidesPayloadFromTheMiddleNode exercises A<->B<->C,
// where B only relays the end-to-end session between A and C and never
// participates in that handshake itself, so it never holds a key capable
// of decrypting their traffic.
func TestThreeNodeForwardingHidesPayloadFromTheMiddleNode(t *testing.T) {
	g, err := NewGrid([]NodeSpec{
		{ID: "A", Connections: []string{"B"}},
		{ID: "B", Connections: []string{"A", "C"}},
		{ID: "C", Connections: []string{"B"}},
	}, NewRandomRouter(1))
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	t.Cleanup(g.Shutdown)

	a, _ := g.Node("A")
	b, _ := g.Node("B")
	c, _ := g.Node("C")

	msg := NewMessage("A", "C", FlagMessage, []byte("hello across the mesh"))
	if err := a.Send(msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if !msg.WaitTimeout(2 * time.Second) {
		t.Fatal("message from A to C was never acknowledged")
	}

	if stats := a.Stats(); stats["established_sessions"].(int) != 1 {
		t.Errorf("A established_sessions = %v, want 1", stats["established_sessions"])
	}
	if stats := c.Stats(); stats["established_sessions"].(int) != 1 {
		t.Errorf("C established_sessions = %v, want 1", stats["established_sessions"])
	}
	if stats := b.Stats(); stats["established_sessions"].(int) != 0 {
		t.Errorf("B established_sessions = %v, want 0 - B only relays, it never handshakes with A or C", stats["established_sessions"])
	}
}

// TestFiveNodeChainReachesDestinationViaSeededRouting sends a message
// across a five-node chain (four hops) using the seeded RandomRouter reference policy,
// confirming multi-hop store-and-forward reaches the far end.
func TestFiveNodeChainReachesDestinationViaSeededRouting(t *testing.T) {
	g, err := NewGrid([]NodeSpec{
		{ID: "A", Connections: []string{"B"}},
		{ID: "B", Connections: []string{"A", "C"}},
		{ID: "C", Connections: []string{"B", "D"}},
		{ID: "D", Connections: []string{"C", "E"}},
		{ID: "E", Connections: []string{"D"}},
	}, NewRandomRouter(42))
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	t.Cleanup(g.Shutdown)

	a, _ := g.Node("A")
	e, _ := g.Node("E")

	msg := NewMessage("A", "E", FlagMessage, []byte("reach the far end"))
	if err := a.Send(msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if !msg.WaitTimeout(2 * time.Second) {
		t.Fatal("message from A to E was never acknowledged across the chain")
	}

	if stats := e.Stats(); stats["established_sessions"].(int) != 1 {
		t.Errorf("E established_sessions = %v, want 1", stats["established_sessions"])
	}
}

// TestTamperedDiscoveryCertificateInstallsNoSession mirrors the cert
// package's own tamper test, but drives it through Node.Deliver so the
// rejection is asserted at the handler level the protocol actually uses.
func TestTamperedDiscoveryCertificateInstallsNoSession(t *testing.T) {
	g := twoNodeGrid(t)
	b, _ := g.Node("B")

	authority, err := cert.Instance()
	if err != nil {
		t.Fatalf("cert.Instance: %v", err)
	}

	kp, err := pqc.GenerateKEMKeyPair()
	if err != nil {
		t.Fatalf("GenerateKEMKeyPair: %v", err)
	}
	genuine, err := authority.Mint(kp.PublicKey[:])
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	lines := strings.Split(strings.TrimRight(genuine.Text(), "\n"), "\n")
	lines[5] = lines[5] + "tampered" // corrupt the base64 signature line
	tampered := strings.Join(lines, "\n") + "\n"

	discovery := NewMessage("mallory", "B", FlagDiscovery, []byte(tampered))
	b.Deliver(discovery)

	// Stats is itself an executor task, so queuing it after Deliver
	// guarantees the tampered Discovery has already been handled.
	if stats := b.Stats(); stats["established_sessions"].(int) != 0 {
		t.Errorf("established_sessions = %v, want 0 after a tampered discovery certificate", stats["established_sessions"])
	}
	if stats := b.Stats(); stats["pending_peers"].(int) != 0 {
		t.Errorf("pending_peers = %v, want 0 - a rejected discovery must not leave peer state behind", stats["pending_peers"])
	}
}
