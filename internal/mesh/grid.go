package mesh

import "log/slog"

// NodeSpec describes one node's position in a static topology: its
// identifier and the neighbours it holds a direct connection to.
type NodeSpec struct {
	ID          string
	Connections []string
}

// Grid is the static network topology: a read-only map from node ID to
// node, built once at construction. Because it never changes after
// NewGrid returns, lookups need no lock.
type Grid struct {
	nodes  map[string]*Node
	logger *slog.Logger
}

// NewGrid builds every node described by specs, wiring each one with a
// back-reference to the grid and the given routing policy, then returns
// the fully assembled topology.
func NewGrid(specs []NodeSpec, router Router) (*Grid, error) {
	g := &Grid{
		nodes:  make(map[string]*Node, len(specs)),
		logger: slog.Default().With("component", "grid"),
	}

	for _, spec := range specs {
		n, err := NewNode(spec.ID, spec.Connections, g, router)
		if err != nil {
			return nil, err
		}
		g.nodes[spec.ID] = n
	}

	return g, nil
}

// Deliver hands msg off to the executor of the node identified by nextHop.
// An unrecognized next hop is a silent, logged drop.
func (g *Grid) Deliver(msg *Message, nextHop string) {
	n, ok := g.nodes[nextHop]
	if !ok {
		g.logger.Warn("dropping message to unknown next hop",
			"next_hop", nextHop, "source", msg.Source, "destination", msg.Destination)
		return
	}
	n.Deliver(msg)
}

// Node returns the node registered under id, if any.
func (g *Grid) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Shutdown drains every node's executor.
func (g *Grid) Shutdown() {
	for _, n := range g.nodes {
		n.Shutdown()
	}
}
