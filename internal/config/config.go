// Package config loads the YAML scenario files that describe a mesh
// topology: its nodes, their connections, and the routing policy to
// install.
package config

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultRoutingPolicy is installed when a scenario omits one.
	DefaultRoutingPolicy = "random"
	// DefaultRoutingSeed seeds the reference random router when a scenario
	// omits one, keeping the default reproducible.
	DefaultRoutingSeed = 1
	// DefaultLogLevel is used when a scenario omits one.
	DefaultLogLevel = "info"
)

// NodeEntry describes one node in a scenario's topology.
type NodeEntry struct {
	ID          string   `yaml:"id"`
	Connections []string `yaml:"connections"`
}

// Routing selects and configures the routing policy a scenario installs.
type Routing struct {
	Policy string `yaml:"policy"` // currently only "random" is implemented
	Seed   int64  `yaml:"seed"`
}

// Scenario is the top-level shape of a scenario YAML file: the topology to
// build and the demonstration traffic to send once it is up.
type Scenario struct {
	Name    string      `yaml:"name"`
	Nodes   []NodeEntry `yaml:"nodes"`
	Routing Routing     `yaml:"routing"`

	LogLevel       string `yaml:"log_level"`
	HealingEnabled bool   `yaml:"healing_enabled"`

	Messages []SeedMessage `yaml:"messages"`
}

// SeedMessage is one piece of demonstration traffic the CLI driver sends
// once the grid is assembled.
type SeedMessage struct {
	From    string `yaml:"from"`
	To      string `yaml:"to"`
	Payload string `yaml:"payload"`
}

// Load reads and validates a scenario file, auto-assigning a UUID-based
// node identifier to any node entry that omits one and defaulting routing
// fields left unset.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read scenario: %w", err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("config: parse scenario: %w", err)
	}

	s.applyDefaults()

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid scenario: %w", err)
	}
	return &s, nil
}

func (s *Scenario) applyDefaults() {
	for i := range s.Nodes {
		if s.Nodes[i].ID == "" {
			s.Nodes[i].ID = uuid.NewString()
		}
	}
	if s.Routing.Policy == "" {
		s.Routing.Policy = DefaultRoutingPolicy
	}
	if s.Routing.Seed == 0 {
		s.Routing.Seed = DefaultRoutingSeed
	}
	if s.LogLevel == "" {
		s.LogLevel = DefaultLogLevel
	}
}

// Validate checks that the scenario is internally consistent: node IDs are
// unique, connections reference nodes that exist, and the routing policy
// is one this build knows how to construct.
func (s *Scenario) Validate() error {
	if len(s.Nodes) == 0 {
		return fmt.Errorf("scenario defines no nodes")
	}

	seen := make(map[string]bool, len(s.Nodes))
	for _, n := range s.Nodes {
		if seen[n.ID] {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}
		seen[n.ID] = true
	}

	for _, n := range s.Nodes {
		for _, c := range n.Connections {
			if !seen[c] {
				return fmt.Errorf("node %q connects to unknown node %q", n.ID, c)
			}
		}
	}

	validPolicies := map[string]bool{"random": true}
	if !validPolicies[s.Routing.Policy] {
		return fmt.Errorf("unknown routing policy %q", s.Routing.Policy)
	}

	for _, m := range s.Messages {
		if !seen[m.From] {
			return fmt.Errorf("seed message references unknown source node %q", m.From)
		}
		if !seen[m.To] {
			return fmt.Errorf("seed message references unknown destination node %q", m.To)
		}
	}

	return nil
}
