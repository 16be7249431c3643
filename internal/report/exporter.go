// Package report exports telemetry snapshots and protocol events as JSON.
// It replaces the control-plane HTTP client the shape of its request/
// response structs is drawn from: there is no control plane here, only a
// local io.Writer, matching the simulator's no-sockets scope.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hivecom/meshsim/internal/telemetry"
)

// Event is a single diagnostic occurrence worth recording alongside a
// telemetry snapshot, such as a session being established or a message
// being delivered.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	NodeID    string    `json:"node_id"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail,omitempty"`
}

// SnapshotReport is the document an Exporter writes: a named scenario's
// telemetry snapshot plus whatever events occurred since the last export.
type SnapshotReport struct {
	ScenarioName string             `json:"scenario_name"`
	GeneratedAt  time.Time          `json:"generated_at"`
	Snapshot     telemetry.Snapshot `json:"snapshot"`
	Events       []Event            `json:"events,omitempty"`
}

// Exporter writes SnapshotReports to an underlying writer, each as an
// indented JSON document followed by a newline.
type Exporter struct {
	w      io.Writer
	logger *slog.Logger
}

// NewExporter wraps w for report export.
func NewExporter(w io.Writer) *Exporter {
	return &Exporter{w: w, logger: slog.Default().With("component", "report-exporter")}
}

// Export writes report to the underlying writer as indented JSON followed
// by a newline.
func (e *Exporter) Export(report SnapshotReport) error {
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("report: marshal snapshot: %w", err)
	}
	body = append(body, '\n')

	if _, err := e.w.Write(body); err != nil {
		return fmt.Errorf("report: write snapshot: %w", err)
	}

	e.logger.Info("exported telemetry report",
		"scenario", report.ScenarioName,
		"established_sessions", report.Snapshot.EstablishedSessions,
		"events", len(report.Events))
	return nil
}
