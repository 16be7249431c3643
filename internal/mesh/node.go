package mesh

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hivecom/meshsim/internal/cert"
	"github.com/hivecom/meshsim/internal/crypto/pqc"
)

// PeerState is a node's view of its relationship with a single peer.
type PeerState int

const (
	// StateNone is the default: no handshake has ever been attempted.
	StateNone PeerState = iota
	// StateHandshakingInitiator means this node sent a Discovery and is
	// waiting for the matching Authorization.
	StateHandshakingInitiator
	// StateHandshakingResponder means this node is in the middle of
	// responding to an inbound Discovery. Because the responder installs
	// its session key and replies with Authorization within the same
	// handler invocation, this state is never observed outside of it.
	StateHandshakingResponder
	// StateEstablished means a session key exists for this peer.
	StateEstablished
)

func (s PeerState) String() string {
	switch s {
	case StateNone:
		return "None"
	case StateHandshakingInitiator:
		return "Handshaking(initiator)"
	case StateHandshakingResponder:
		return "Handshaking(responder)"
	case StateEstablished:
		return "Established"
	default:
		return "Unknown"
	}
}

// ErrSelfSend is returned by Send when a message's destination equals its
// own source node.
var ErrSelfSend = errors.New("mesh: message destination equals source")

// Node is a single mesh participant: a CA-signed identity, a static set of
// neighbour connections, and a single-worker executor that serializes every
// state transition the handshake state machine makes. Every field below
// except id, cert, kem, connections, grid, router, and logger is touched
// only from within the executor's worker goroutine and therefore needs no
// lock of its own.
type Node struct {
	id          string
	cert        *cert.Certificate
	kem         *pqc.KEMKeyPair
	connections []string
	grid        *Grid
	router      Router

	executor *Executor
	logger   *slog.Logger

	peerState        map[string]PeerState
	sessionKeys      map[string]*pqc.SessionKey
	pending          map[string][]*Message
	outstanding      map[uint64]*Message
	handshakeStarted map[string]time.Time
}

// NewNode mints a fresh identity certificate, generates a KEM key pair, and
// starts the node's executor. grid is a non-owning back-reference used to
// deliver outbound messages to other nodes.
func NewNode(id string, connections []string, grid *Grid, router Router) (*Node, error) {
	authority, err := cert.Instance()
	if err != nil {
		return nil, fmt.Errorf("mesh: node %s: %w", id, err)
	}

	kemKeys, err := pqc.GenerateKEMKeyPair()
	if err != nil {
		return nil, fmt.Errorf("mesh: node %s: generate kem key pair: %w", id, err)
	}

	identity, err := authority.Mint(kemKeys.PublicKey[:])
	if err != nil {
		return nil, fmt.Errorf("mesh: node %s: mint certificate: %w", id, err)
	}

	n := &Node{
		id:          id,
		cert:        identity,
		kem:         kemKeys,
		connections: append([]string(nil), connections...),
		grid:        grid,
		router:      router,
		logger:      slog.Default().With("component", "mesh-node", "node_id", id),
		peerState:        make(map[string]PeerState),
		sessionKeys:      make(map[string]*pqc.SessionKey),
		pending:          make(map[string][]*Message),
		outstanding:      make(map[uint64]*Message),
		handshakeStarted: make(map[string]time.Time),
	}
	n.executor = NewExecutor(id)
	return n, nil
}

// ID returns the node's identifier.
func (n *Node) ID() string { return n.id }

// Certificate returns the node's own identity certificate.
func (n *Node) Certificate() *cert.Certificate { return n.cert }

// Shutdown drains the node's executor, waiting for every already-queued
// task to finish before returning.
func (n *Node) Shutdown() { n.executor.Shutdown() }

// Send schedules msg for delivery. msg.Source must equal this node's own
// ID. Sending to oneself is rejected synchronously, before any task is
// enqueued, so the caller sees a consistent error regardless of handshake
// state.
func (n *Node) Send(msg *Message) error {
	if msg.Source != n.id {
		return fmt.Errorf("mesh: message source %q does not match node %q", msg.Source, n.id)
	}
	if msg.Destination == msg.Source {
		return ErrSelfSend
	}

	n.executor.Execute(func() { n.doSend(msg) })
	return nil
}

// Deliver hands an inbound message to this node's executor. It is the only
// way another node's forwarding logic reaches this node.
func (n *Node) Deliver(msg *Message) {
	n.executor.Execute(func() { n.dispatch(msg) })
}

// Stats reports a snapshot of this node's handshake and session state. Like
// every other externally visible query, it runs on the node's own executor
// so it never races with a handler in flight.
func (n *Node) Stats() map[string]any {
	result := make(chan map[string]any, 1)
	n.executor.Execute(func() {
		handshaking := 0
		for _, s := range n.peerState {
			if s == StateHandshakingInitiator || s == StateHandshakingResponder {
				handshaking++
			}
		}
		result <- map[string]any{
			"node_id":              n.id,
			"established_sessions": len(n.sessionKeys),
			"handshakes_in_flight": handshaking,
			"pending_peers":        len(n.pending),
			"connections":          len(n.connections),
		}
	})
	return <-result
}

// StuckPeers reports which peers have been in StateHandshakingInitiator for
// longer than deadline, for use by an optional watchdog that wants to
// retry a handshake that never completed. It never fails the pending
// queue itself - that decision is left entirely to the caller.
func (n *Node) StuckPeers(deadline time.Duration) []string {
	result := make(chan []string, 1)
	n.executor.Execute(func() {
		var stuck []string
		now := time.Now()
		for peer, started := range n.handshakeStarted {
			if now.Sub(started) > deadline {
				stuck = append(stuck, peer)
			}
		}
		result <- stuck
	})
	return <-result
}

// RetryHandshake re-sends a fresh Discovery to peer if it is still in
// StateHandshakingInitiator. It is a no-op if the handshake has since
// completed or was never started, so a stale retry request can never
// regress an established session.
func (n *Node) RetryHandshake(peer string) {
	n.executor.Execute(func() {
		if n.peerState[peer] != StateHandshakingInitiator {
			return
		}
		n.handshakeStarted[peer] = time.Now()
		n.sendDiscovery(peer)
	})
}

func (n *Node) isNeighbour(peer string) bool {
	for _, c := range n.connections {
		if c == peer {
			return true
		}
	}
	return false
}

// forward hands msg to a neighbour: directly if the destination is a
// direct connection, otherwise via the routing policy. An undeliverable
// message (no route, empty connection list) is logged and dropped, never
// returned as an error to the caller.
func (n *Node) forward(msg *Message) {
	if n.isNeighbour(msg.Destination) {
		n.grid.Deliver(msg, msg.Destination)
		return
	}

	next, ok := n.router.Route(n.connections)
	if !ok {
		n.logger.Warn("dropping undeliverable message", "destination", msg.Destination, "flag", msg.Flag)
		return
	}
	n.grid.Deliver(msg, next)
}

// originate forwards a message this node authored and registers it so a
// later Acknowledgement correlated by timestamp can fire its completion
// signal.
func (n *Node) originate(msg *Message) {
	n.outstanding[msg.Timestamp] = msg
	n.forward(msg)
}

func (n *Node) doSend(msg *Message) {
	if key, ok := n.sessionKeys[msg.Destination]; ok {
		n.encryptAndOriginate(msg, key)
		return
	}

	n.pending[msg.Destination] = append(n.pending[msg.Destination], msg)

	if n.peerState[msg.Destination] == StateNone {
		n.peerState[msg.Destination] = StateHandshakingInitiator
		n.handshakeStarted[msg.Destination] = time.Now()
		n.sendDiscovery(msg.Destination)
	}
}

func (n *Node) sendDiscovery(peer string) {
	disc := NewMessage(n.id, peer, FlagDiscovery, []byte(n.cert.Text()))
	n.originate(disc)
}

func (n *Node) encryptAndOriginate(msg *Message, key *pqc.SessionKey) {
	ciphertext, err := key.Seal(msg.Payload)
	if err != nil {
		n.logger.Error("encryption failed", "peer", msg.Destination, "error", err)
		return
	}
	msg.Payload = []byte(base64.StdEncoding.EncodeToString(ciphertext))
	msg.Flag = FlagMessage
	n.originate(msg)
}

func (n *Node) drainPending(peer string) {
	queue := n.pending[peer]
	delete(n.pending, peer)

	key, ok := n.sessionKeys[peer]
	if !ok {
		n.logger.Error("drain requested without a session key", "peer", peer)
		return
	}
	for _, msg := range queue {
		n.encryptAndOriginate(msg, key)
	}
}

func (n *Node) dispatch(msg *Message) {
	if msg.Destination != n.id {
		n.forward(msg)
		return
	}

	switch msg.Flag {
	case FlagDiscovery:
		n.handleDiscovery(msg)
	case FlagAuthorization:
		n.handleAuthorization(msg)
	case FlagMessage:
		n.handleMessage(msg)
	case FlagAcknowledgement:
		n.handleAcknowledgement(msg)
	default:
		n.logger.Error("unknown message flag", "peer", msg.Source, "flag", msg.Flag)
	}
}

// handleDiscovery is the responder side of a handshake: verify the
// initiator's certificate, encapsulate a shared secret against their KEM
// public key, install the session immediately, and reply with
// Authorization.
func (n *Node) handleDiscovery(msg *Message) {
	authority, err := cert.Instance()
	if err != nil {
		n.logger.Error("certificate authority unavailable", "error", err)
		return
	}

	peerCert := authority.Parse(string(msg.Payload))
	if !peerCert.IsValid {
		n.logger.Error("invalid discovery certificate", "peer", msg.Source)
		return
	}

	ciphertext, sharedSecret, err := pqc.Encapsulate(peerCert.PublicKey[:])
	if err != nil {
		n.logger.Error("kem encapsulation failed", "peer", msg.Source, "error", err)
		return
	}

	n.peerState[msg.Source] = StateHandshakingResponder
	n.sessionKeys[msg.Source] = pqc.NewSessionKey(msg.Source, sharedSecret)
	n.peerState[msg.Source] = StateEstablished

	payload := base64.StdEncoding.EncodeToString([]byte(n.cert.Text())) +
		"\n" + base64.StdEncoding.EncodeToString(ciphertext[:])
	auth := NewMessage(n.id, msg.Source, FlagAuthorization, []byte(payload))
	n.originate(auth)

	ack := NewAcknowledgement(msg)
	n.forward(ack)
}

// handleAuthorization is the initiator side: verify the responder's
// certificate, decapsulate the shared secret, install the session, and
// drain any messages that were queued waiting for it.
func (n *Node) handleAuthorization(msg *Message) {
	parts := strings.SplitN(string(msg.Payload), "\n", 2)
	if len(parts) != 2 {
		n.logger.Error("malformed authorization packet", "peer", msg.Source)
		return
	}

	certBytes, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		n.logger.Error("malformed authorization certificate encoding", "peer", msg.Source, "error", err)
		return
	}

	authority, err := cert.Instance()
	if err != nil {
		n.logger.Error("certificate authority unavailable", "error", err)
		return
	}

	peerCert := authority.Parse(string(certBytes))
	if !peerCert.IsValid {
		n.logger.Error("invalid authorization certificate", "peer", msg.Source)
		return
	}

	ciphertext, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		n.logger.Error("malformed authorization ciphertext encoding", "peer", msg.Source, "error", err)
		return
	}

	sharedSecret, err := pqc.Decapsulate(n.kem.PrivateKey[:], ciphertext)
	if err != nil {
		n.logger.Error("kem decapsulation failed", "peer", msg.Source, "error", err)
		return
	}

	n.sessionKeys[msg.Source] = pqc.NewSessionKey(msg.Source, sharedSecret)
	n.peerState[msg.Source] = StateEstablished
	delete(n.handshakeStarted, msg.Source)
	n.drainPending(msg.Source)

	ack := NewAcknowledgement(msg)
	n.forward(ack)
}

// handleMessage decrypts application payload under the established session
// key and fires the message's completion signal. A message arriving before
// any session exists is treated as plaintext - this only happens in tests
// exercising handlers directly, never on a path the handshake produces.
func (n *Node) handleMessage(msg *Message) {
	var plaintext []byte

	if key, ok := n.sessionKeys[msg.Source]; ok {
		ciphertext, err := base64.StdEncoding.DecodeString(string(msg.Payload))
		if err != nil {
			n.logger.Error("malformed message encoding", "peer", msg.Source, "error", err)
			return
		}
		pt, err := key.Open(ciphertext)
		if err != nil {
			n.logger.Error("decryption failed", "peer", msg.Source, "error", err)
			return
		}
		plaintext = pt
	} else {
		plaintext = msg.Payload
	}

	n.logger.Info("message received", "peer", msg.Source, "bytes", len(plaintext))
	msg.Received()

	ack := NewAcknowledgement(msg)
	n.forward(ack)
}

// handleAcknowledgement fires the completion signal of the outstanding
// message it correlates with, matched by timestamp. An acknowledgement
// with no matching outstanding message is logged and dropped.
func (n *Node) handleAcknowledgement(msg *Message) {
	original, ok := n.outstanding[msg.Timestamp]
	if !ok {
		n.logger.Warn("unexpected acknowledgement", "peer", msg.Source, "timestamp", msg.Timestamp)
		return
	}
	delete(n.outstanding, msg.Timestamp)
	original.Received()
}
