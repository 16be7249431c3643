package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidScenario(t *testing.T) {
	path := writeScenario(t, `
name: two-node
nodes:
  - id: A
    connections: [B]
  - id: B
    connections: [A]
routing:
  policy: random
  seed: 7
messages:
  - from: A
    to: B
    payload: hello
`)

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(s.Nodes) != 2 {
		t.Fatalf("len(Nodes) = %d, want 2", len(s.Nodes))
	}
	if s.Routing.Seed != 7 {
		t.Errorf("Routing.Seed = %d, want 7", s.Routing.Seed)
	}
	if s.LogLevel != DefaultLogLevel {
		t.Errorf("LogLevel = %q, want default %q", s.LogLevel, DefaultLogLevel)
	}
}

func TestLoadAutoAssignsMissingNodeIDs(t *testing.T) {
	path := writeScenario(t, `
nodes:
  - connections: []
  - connections: []
routing:
  policy: random
`)

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for i, n := range s.Nodes {
		if n.ID == "" {
			t.Errorf("node %d has no auto-assigned ID", i)
		}
	}
	if s.Nodes[0].ID == s.Nodes[1].ID {
		t.Error("auto-assigned node IDs collided")
	}
}

func TestLoadDefaultsRoutingWhenOmitted(t *testing.T) {
	path := writeScenario(t, `
nodes:
  - id: solo
`)

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Routing.Policy != DefaultRoutingPolicy {
		t.Errorf("Routing.Policy = %q, want %q", s.Routing.Policy, DefaultRoutingPolicy)
	}
	if s.Routing.Seed != DefaultRoutingSeed {
		t.Errorf("Routing.Seed = %d, want %d", s.Routing.Seed, DefaultRoutingSeed)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/scenario.yaml"); err == nil {
		t.Error("Load of missing file: want error, got nil")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeScenario(t, ":::not yaml:::")
	if _, err := Load(path); err == nil {
		t.Error("Load of invalid yaml: want error, got nil")
	}
}

func TestValidateRejectsEmptyScenario(t *testing.T) {
	s := &Scenario{}
	if err := s.Validate(); err == nil {
		t.Error("Validate of empty scenario: want error, got nil")
	}
}

func TestValidateRejectsDuplicateNodeIDs(t *testing.T) {
	s := &Scenario{
		Nodes:   []NodeEntry{{ID: "A"}, {ID: "A"}},
		Routing: Routing{Policy: "random"},
	}
	if err := s.Validate(); err == nil {
		t.Error("Validate with duplicate node ids: want error, got nil")
	}
}

func TestValidateRejectsUnknownConnection(t *testing.T) {
	s := &Scenario{
		Nodes:   []NodeEntry{{ID: "A", Connections: []string{"ghost"}}},
		Routing: Routing{Policy: "random"},
	}
	if err := s.Validate(); err == nil {
		t.Error("Validate with a connection to an unknown node: want error, got nil")
	}
}

func TestValidateRejectsUnknownRoutingPolicy(t *testing.T) {
	s := &Scenario{
		Nodes:   []NodeEntry{{ID: "A"}},
		Routing: Routing{Policy: "shortest-path"},
	}
	err := s.Validate()
	if err == nil {
		t.Fatal("Validate with unknown routing policy: want error, got nil")
	}
	if !strings.Contains(err.Error(), "shortest-path") {
		t.Errorf("error %q does not mention the offending policy", err)
	}
}

func TestValidateRejectsSeedMessageToUnknownNode(t *testing.T) {
	s := &Scenario{
		Nodes:    []NodeEntry{{ID: "A"}},
		Routing:  Routing{Policy: "random"},
		Messages: []SeedMessage{{From: "A", To: "ghost", Payload: "hi"}},
	}
	if err := s.Validate(); err == nil {
		t.Error("Validate with seed message to unknown node: want error, got nil")
	}
}
