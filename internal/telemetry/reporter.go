// Package telemetry aggregates per-node statistics into grid-wide
// snapshots, for the demonstration driver and for test assertions about a
// scenario's outcome.
package telemetry

import (
	"log/slog"
	"sync"
	"time"
)

// NodeStats is satisfied by anything that can report its own identity and
// a snapshot of its handshake/session counters. *mesh.Node implements it.
type NodeStats interface {
	ID() string
	Stats() map[string]any
}

// Snapshot is one grid-wide telemetry reading.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	UptimeSec float64   `json:"uptime_sec"`

	NodeCount           int `json:"node_count"`
	EstablishedSessions int `json:"established_sessions"`
	HandshakesInFlight  int `json:"handshakes_in_flight"`
	PendingPeers        int `json:"pending_peers"`

	PerNode map[string]map[string]any `json:"per_node"`
}

// Reporter collects grid-wide telemetry snapshots from a fixed set of
// nodes.
type Reporter struct {
	mu      sync.RWMutex
	nodes   []NodeStats
	latest  *Snapshot
	history []Snapshot
	maxHist int
	started time.Time
	logger  *slog.Logger
}

// NewReporter creates a reporter over the given nodes.
func NewReporter(nodes []NodeStats) *Reporter {
	return &Reporter{
		nodes:   nodes,
		history: make([]Snapshot, 0, 60),
		maxHist: 60,
		started: time.Now(),
		logger:  slog.Default().With("component", "telemetry"),
	}
}

func intField(stats map[string]any, key string) int {
	v, ok := stats[key].(int)
	if !ok {
		return 0
	}
	return v
}

// Collect gathers a fresh snapshot across every node, appending it to the
// reporter's bounded history.
func (r *Reporter) Collect() Snapshot {
	snap := Snapshot{
		Timestamp: time.Now(),
		UptimeSec: time.Since(r.started).Seconds(),
		NodeCount: len(r.nodes),
		PerNode:   make(map[string]map[string]any, len(r.nodes)),
	}

	for _, n := range r.nodes {
		stats := n.Stats()
		snap.PerNode[n.ID()] = stats
		snap.EstablishedSessions += intField(stats, "established_sessions")
		snap.HandshakesInFlight += intField(stats, "handshakes_in_flight")
		snap.PendingPeers += intField(stats, "pending_peers")
	}

	r.mu.Lock()
	r.latest = &snap
	if len(r.history) >= r.maxHist {
		r.history = r.history[1:]
	}
	r.history = append(r.history, snap)
	r.mu.Unlock()

	r.logger.Info("telemetry snapshot",
		"node_count", snap.NodeCount,
		"established_sessions", snap.EstablishedSessions,
		"handshakes_in_flight", snap.HandshakesInFlight)

	return snap
}

// Latest returns the most recently collected snapshot, or nil if Collect
// has never been called.
func (r *Reporter) Latest() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.latest == nil {
		return nil
	}
	snap := *r.latest
	return &snap
}

// History returns every retained snapshot, oldest first.
func (r *Reporter) History() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Snapshot, len(r.history))
	copy(result, r.history)
	return result
}
