package report

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// SimpleWriter outputs human-readable text status.
// This format is designed for terminal display.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors by default because:
// 1. It works in all terminals without compatibility issues
// 2. It's easier to pipe to files or other tools
// 3. Color can be added as an option later if needed
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether clients with no assignment are shown.
	showEmpty bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show never-assigned clients.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		showEmpty:  true,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write renders the status in human-readable format.
func (w *SimpleWriter) Write(status *Status) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, status)
	w.writeClients(&sb, status)
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the status header.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, status *Status) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                       RELAY ROTATION STATUS\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("Generated: %s\n", status.GeneratedAt.Format("2006-01-02 15:04:05 MST")))
	sb.WriteString(fmt.Sprintf("Clients:   %d\n", len(status.Clients)))
	sb.WriteString("\n")
}

// writeClients writes one section per client.
func (w *SimpleWriter) writeClients(sb *strings.Builder, status *Status) {
	if len(status.Clients) == 0 {
		sb.WriteString("  No clients have been assigned a relay yet.\n\n")
		return
	}

	for _, c := range status.Clients {
		if c.Endpoint == "" && !w.showEmpty {
			continue
		}

		sb.WriteString(strings.Repeat("-", 70))
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("CLIENT %s\n", c.Name))
		sb.WriteString(strings.Repeat("-", 70))
		sb.WriteString("\n\n")

		if c.Endpoint == "" {
			sb.WriteString("  No relay assigned yet\n\n")
			continue
		}

		sb.WriteString(fmt.Sprintf("  Relay:         %s\n", c.Endpoint))
		sb.WriteString(fmt.Sprintf("  Location:      %s\n", valueOrDash(c.Location)))
		sb.WriteString(fmt.Sprintf("  Last Location: %s\n", valueOrDash(c.LastLocation)))
		sb.WriteString(fmt.Sprintf("  Last Rotation: %s\n", formatRotationTime(c.LastRotation)))
		if c.Process != "" {
			sb.WriteString(fmt.Sprintf("  Process:       %s\n", c.Process))
		}
		sb.WriteString(fmt.Sprintf("  Rotations:     %d\n", c.Rotations))
		sb.WriteString("\n")
	}
}

// writeFooter writes the status footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}

// valueOrDash substitutes a dash for empty values.
func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// formatRotationTime renders a rotation timestamp, "never" when zero.
func formatRotationTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format("2006-01-02 15:04:05 MST")
}
