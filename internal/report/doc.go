// Package report renders the daemon's rotation status in multiple output
// formats.
//
// This package contains writers for different output formats:
//   - SimpleWriter: Human-readable text output for terminal display
//   - JSONWriter: Structured JSON output for tool integration
//   - MarkdownWriter: Documentation-friendly output
//
// Writers implement the Writer interface, allowing them to be used
// interchangeably and composed for multi-format output.
package report
