package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
)

// MarkdownWriter outputs the status in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write renders the status in Markdown format.
func (w *MarkdownWriter) Write(status *Status) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, status)
	w.writeClients(md, status)
	w.writeAlert(md, status)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the status header.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, status *Status) {
	md.H1("Relay Rotation Status")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Generated", status.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
			{"Clients", strconv.Itoa(len(status.Clients))},
		},
	})
	md.PlainText("")
}

// writeClients writes the per-client assignment table.
func (w *MarkdownWriter) writeClients(md *markdown.Markdown, status *Status) {
	md.H2("Clients")
	md.PlainText("")

	if len(status.Clients) == 0 {
		md.PlainText("No clients have been assigned a relay yet.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(status.Clients))
	for i, c := range status.Clients {
		endpoint := "-"
		if c.Endpoint != "" {
			endpoint = "`" + c.Endpoint + "`"
		}
		rows[i] = []string{
			c.Name,
			endpoint,
			valueOrDash(c.Location),
			valueOrDash(c.LastLocation),
			formatRotationTime(c.LastRotation),
			valueOrDash(c.Process),
			strconv.Itoa(c.Rotations),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Client", "Relay", "Location", "Last Location", "Last Rotation", "Process", "Rotations"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeAlert writes an alert when any client's bridging process has failed.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, status *Status) {
	failed := 0
	unassigned := 0
	for _, c := range status.Clients {
		if c.Process == "failed" {
			failed++
		}
		if c.Endpoint == "" {
			unassigned++
		}
	}

	switch {
	case failed > 0:
		md.Cautionf("%d client(s) have a failed bridging process and need operator attention.", failed)
		md.PlainText("")
	case unassigned > 0:
		md.Note(fmt.Sprintf("%d client(s) have not been assigned a relay yet.", unassigned))
		md.PlainText("")
	}
}

// writeFooter writes the status footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Generated by relayrotor*")
}
