package tunnel

import (
	"fmt"

	"github.com/relayrotor/relayrotor/internal/netpath"
)

// Resource derivation constants. Everything a client's path needs is computed
// from its stable configuration index, so two clients can never collide on an
// interface, subnet, route table, or rule priority.
const (
	// ifacePrefix names the per-client virtual devices: rly0, rly1, ...
	ifacePrefix = "rly"

	// subnetFormat carves one /24 per client out of 10.73.0.0/16.
	subnetFormat = "10.73.%d.0/24"

	// hostAddrFormat is the host-side address on the virtual device.
	hostAddrFormat = "10.73.%d.1/24"

	// tableBase offsets route-table ids and rule priorities away from the
	// kernel's reserved tables (0, 253-255).
	tableBase = 100
)

// DerivePath computes the network path for the client at the given
// configuration index, bridged to the named tunnel interface.
func DerivePath(index int, tunnelIface string) netpath.Path {
	return netpath.Path{
		Interface:       fmt.Sprintf("%s%d", ifacePrefix, index),
		Subnet:          fmt.Sprintf(subnetFormat, index),
		HostAddr:        fmt.Sprintf(hostAddrFormat, index),
		RouteTable:      tableBase + index,
		RulePriority:    tableBase + index,
		TunnelInterface: tunnelIface,
	}
}
