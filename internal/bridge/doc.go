// Package bridge launches and observes bridging processes: the per-client
// programs that translate a virtual interface's traffic into a connection
// through the assigned relay. The supervisor in internal/tunnel drives the
// lifecycle; this package only starts processes and reports their exits.
package bridge
