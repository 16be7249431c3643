// Package healing implements a lightweight self-repair loop answering the
// open question of what to do about a handshake that never completes: a
// HandshakeWatchdog periodically re-sends Discovery to any peer stuck in
// StateHandshakingInitiator past a deadline. It never fails the pending
// queue - it is an optional, additive retry mechanism, gated by scenario
// config, not a core protocol invariant.
package healing

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultCheckInterval is how often the watchdog polls for stuck
// handshakes when a scenario does not override it.
const DefaultCheckInterval = 5 * time.Second

// DefaultHandshakeDeadline is how long a handshake may sit in
// StateHandshakingInitiator before the watchdog considers it stuck.
const DefaultHandshakeDeadline = 10 * time.Second

// WatchedNode is the subset of *mesh.Node the watchdog needs: it never
// touches node internals directly, only this interface.
type WatchedNode interface {
	ID() string
	StuckPeers(deadline time.Duration) []string
	RetryHandshake(peer string)
}

// RetryEvent records one watchdog-initiated handshake retry.
type RetryEvent struct {
	Timestamp time.Time
	NodeID    string
	Peer      string
}

// HandshakeWatchdog periodically scans a fixed set of nodes for peers stuck
// mid-handshake and retries them.
type HandshakeWatchdog struct {
	mu sync.RWMutex

	nodes    []WatchedNode
	deadline time.Duration
	interval time.Duration

	events []RetryEvent

	running bool
	stopCh  chan struct{}
	logger  *slog.Logger
}

// NewHandshakeWatchdog creates a watchdog over nodes, using deadline and
// interval if positive, or the package defaults otherwise.
func NewHandshakeWatchdog(nodes []WatchedNode, deadline, interval time.Duration) *HandshakeWatchdog {
	if deadline <= 0 {
		deadline = DefaultHandshakeDeadline
	}
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	return &HandshakeWatchdog{
		nodes:    nodes,
		deadline: deadline,
		interval: interval,
		stopCh:   make(chan struct{}),
		logger:   slog.Default().With("component", "healing"),
	}
}

// Start begins the watchdog's polling loop in the background.
func (w *HandshakeWatchdog) Start() {
	w.running = true
	go w.loop()
	w.logger.Info("handshake watchdog started", "interval", w.interval, "deadline", w.deadline)
}

// Stop halts the polling loop.
func (w *HandshakeWatchdog) Stop() {
	if !w.running {
		return
	}
	w.running = false
	close(w.stopCh)
	w.logger.Info("handshake watchdog stopped")
}

// Events returns every retry the watchdog has issued so far.
func (w *HandshakeWatchdog) Events() []RetryEvent {
	w.mu.RLock()
	defer w.mu.RUnlock()
	result := make([]RetryEvent, len(w.events))
	copy(result, w.events)
	return result
}

func (w *HandshakeWatchdog) loop() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.cycle()
		case <-w.stopCh:
			return
		}
	}
}

func (w *HandshakeWatchdog) cycle() {
	for _, n := range w.nodes {
		for _, peer := range n.StuckPeers(w.deadline) {
			n.RetryHandshake(peer)

			w.mu.Lock()
			w.events = append(w.events, RetryEvent{
				Timestamp: time.Now(),
				NodeID:    n.ID(),
				Peer:      peer,
			})
			w.mu.Unlock()

			w.logger.Info("resent discovery to stuck peer", "node", n.ID(), "peer", peer)
		}
	}
}
