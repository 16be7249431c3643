// meshsim — a demonstration driver for the HiveCom mesh simulator.
// Loads a scenario YAML describing a topology, assembles the grid,
// sends the scenario's seed messages, and prints a telemetry report.
//
// Usage:
//
//	meshsim --scenario scenario.yaml
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hivecom/meshsim/internal/config"
	"github.com/hivecom/meshsim/internal/healing"
	"github.com/hivecom/meshsim/internal/mesh"
	"github.com/hivecom/meshsim/internal/report"
	"github.com/hivecom/meshsim/internal/telemetry"
)

var Version = "dev"

func main() {
	scenarioPath := flag.String("scenario", "", "path to scenario YAML file")
	logLevel := flag.String("log-level", "", "log level (debug/info/warn/error)")
	sendTimeout := flag.Duration("send-timeout", 5*time.Second, "how long to wait for each seed message to be acknowledged")
	showVersion := flag.Bool("version", false, "show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("meshsim %s\n", Version)
		os.Exit(0)
	}

	if *scenarioPath == "" {
		fmt.Fprintln(os.Stderr, "ERROR: --scenario is required")
		os.Exit(1)
	}

	scenario, err := config.Load(*scenarioPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}

	level := scenario.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	setupLogger(level)

	slog.Info("meshsim starting", "version", Version, "scenario", scenario.Name, "nodes", len(scenario.Nodes))

	grid, err := buildGrid(scenario)
	if err != nil {
		slog.Error("failed to build grid", "error", err)
		os.Exit(1)
	}
	defer grid.Shutdown()

	watchdog := startWatchdog(scenario, grid)
	if watchdog != nil {
		defer watchdog.Stop()
	}

	events := sendSeedMessages(grid, scenario.Messages, *sendTimeout)

	if err := exportReport(scenario, grid, events); err != nil {
		slog.Error("failed to export report", "error", err)
		os.Exit(1)
	}

	slog.Info("meshsim finished")
}

func buildGrid(scenario *config.Scenario) (*mesh.Grid, error) {
	specs := make([]mesh.NodeSpec, len(scenario.Nodes))
	for i, n := range scenario.Nodes {
		specs[i] = mesh.NodeSpec{ID: n.ID, Connections: n.Connections}
	}

	var router mesh.Router
	switch scenario.Routing.Policy {
	case "random":
		router = mesh.NewRandomRouter(scenario.Routing.Seed)
	default:
		return nil, fmt.Errorf("unknown routing policy %q", scenario.Routing.Policy)
	}

	return mesh.NewGrid(specs, router)
}

func startWatchdog(scenario *config.Scenario, grid *mesh.Grid) *healing.HandshakeWatchdog {
	if !scenario.HealingEnabled {
		return nil
	}

	watched := make([]healing.WatchedNode, 0, len(scenario.Nodes))
	for _, n := range scenario.Nodes {
		if node, ok := grid.Node(n.ID); ok {
			watched = append(watched, node)
		}
	}

	w := healing.NewHandshakeWatchdog(watched, 0, 0)
	w.Start()
	return w
}

func sendSeedMessages(grid *mesh.Grid, messages []config.SeedMessage, timeout time.Duration) []report.Event {
	events := make([]report.Event, 0, len(messages))

	for _, seed := range messages {
		from, ok := grid.Node(seed.From)
		if !ok {
			slog.Error("seed message references unknown node", "from", seed.From)
			continue
		}

		msg := mesh.NewMessage(seed.From, seed.To, mesh.FlagMessage, []byte(seed.Payload))
		if err := from.Send(msg); err != nil {
			slog.Error("seed message rejected", "from", seed.From, "to", seed.To, "error", err)
			continue
		}

		kind := "message_acknowledged"
		if !msg.WaitTimeout(timeout) {
			kind = "message_timed_out"
		}

		slog.Info("seed message outcome", "from", seed.From, "to", seed.To, "outcome", kind)
		events = append(events, report.Event{
			Timestamp: time.Now(),
			NodeID:    seed.From,
			Kind:      kind,
			Detail:    fmt.Sprintf("to=%s", seed.To),
		})
	}

	return events
}

func exportReport(scenario *config.Scenario, grid *mesh.Grid, events []report.Event) error {
	nodes := make([]telemetry.NodeStats, 0, len(scenario.Nodes))
	for _, n := range scenario.Nodes {
		if node, ok := grid.Node(n.ID); ok {
			nodes = append(nodes, node)
		}
	}

	reporter := telemetry.NewReporter(nodes)
	snapshot := reporter.Collect()

	exporter := report.NewExporter(os.Stdout)
	return exporter.Export(report.SnapshotReport{
		ScenarioName: scenario.Name,
		GeneratedAt:  time.Now(),
		Snapshot:     snapshot,
		Events:       events,
	})
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}
