package netpath

import (
	"errors"
	"fmt"
	"log/slog"
)

// Path describes one client's network path. All values are deterministically
// derived from the client's stable configuration index, so paths never
// collide across clients on one host.
type Path struct {
	// Interface is the client's dedicated virtual TUN device, e.g. "rly0".
	Interface string

	// Subnet is the client's source subnet in CIDR form, e.g. "10.73.0.0/24".
	// The policy rule selects this subnet's traffic into the path.
	Subnet string

	// HostAddr is the address assigned to the virtual device, CIDR form.
	HostAddr string

	// RouteTable is the dedicated policy-route table id.
	RouteTable int

	// RulePriority is the routing-policy rule preference.
	RulePriority int

	// TunnelInterface is the always-on tunnel device bridged to the
	// virtual interface.
	TunnelInterface string
}

// ErrInterfaceCreate wraps failures to create the virtual interface. This is
// the one provisioning failure that is fatal on first-time bring-up: without
// the device there is no path at all.
var ErrInterfaceCreate = errors.New("failed to create virtual interface")

// Provisioner applies and tears down client network paths. Both operations
// are idempotent; Apply on an already-configured path replaces rather than
// duplicates every rule.
type Provisioner interface {
	Apply(p Path) error
	Teardown(p Path) error
}

// CommandProvisioner implements Provisioner by shelling out to ip and
// iptables through a Commander.
type CommandProvisioner struct {
	ip       *ip
	iptables *iptables
	logger   *slog.Logger
}

// NewCommandProvisioner returns a Provisioner over the given Commander.
func NewCommandProvisioner(c Commander, logger *slog.Logger) *CommandProvisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandProvisioner{
		ip:       &ip{commander: c},
		iptables: &iptables{commander: c},
		logger:   logger,
	}
}

// Apply provisions the path:
//
//	create the TUN device (only if absent),
//	assign the host address, bring the device up,
//	install the table's default route,
//	install the policy rule (only if absent),
//	install the forwarding pair and the NAT rule (only if absent).
//
// Every step is either naturally idempotent ("replace") or guarded by an
// existence check, so calling Apply again for an already-configured client
// yields exactly one rule of each kind.
func (cp *CommandProvisioner) Apply(p Path) error {
	if !cp.ip.LinkExists(p.Interface) {
		if err := cp.ip.TunTapAdd(p.Interface); err != nil {
			return fmt.Errorf("%w: %v", ErrInterfaceCreate, err)
		}
	}

	if err := cp.ip.AddrReplace(p.Interface, p.HostAddr); err != nil {
		return err
	}
	if err := cp.ip.LinkSetUp(p.Interface); err != nil {
		return err
	}
	if err := cp.ip.RouteReplaceDefault(p.Interface, p.RouteTable); err != nil {
		return err
	}

	exists, err := cp.ip.RuleExists(p.RulePriority)
	if err != nil {
		return err
	}
	if !exists {
		if err := cp.ip.RuleAdd(p.Subnet, p.RouteTable, p.RulePriority); err != nil {
			return err
		}
	}

	if err := cp.iptables.ensureRule(forwardArgs(p.TunnelInterface, p.Interface)...); err != nil {
		return err
	}
	if err := cp.iptables.ensureRule(returnForwardArgs(p.Interface, p.TunnelInterface)...); err != nil {
		return err
	}
	if err := cp.iptables.ensureNATRule(masqueradeArgs(p.Interface, p.Subnet)...); err != nil {
		return err
	}

	return nil
}

// Teardown removes the path best-effort: every step is attempted regardless
// of earlier failures, and the joined error is returned for logging. A
// failure here never blocks teardown of other clients.
func (cp *CommandProvisioner) Teardown(p Path) error {
	var errs []error

	if exists, err := cp.ip.RuleExists(p.RulePriority); err == nil && exists {
		if err := cp.ip.RuleDelete(p.RulePriority); err != nil {
			errs = append(errs, err)
		}
	}
	if err := cp.ip.RouteFlushTable(p.RouteTable); err != nil {
		errs = append(errs, err)
	}

	cp.iptables.deleteRule(forwardArgs(p.TunnelInterface, p.Interface)...)
	cp.iptables.deleteRule(returnForwardArgs(p.Interface, p.TunnelInterface)...)
	cp.iptables.deleteNATRule(masqueradeArgs(p.Interface, p.Subnet)...)

	if cp.ip.LinkExists(p.Interface) {
		if err := cp.ip.LinkDelete(p.Interface); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
