package netpath

import (
	"fmt"
	"strconv"
	"strings"
)

// ip wraps the iproute2 "ip" command.
type ip struct {
	commander Commander
}

// LinkExists reports whether a network device with the given name exists.
func (i *ip) LinkExists(dev string) bool {
	_, err := i.commander.Output("ip", "link", "show", "dev", dev)
	return err == nil
}

// TunTapAdd creates a new TUN device.
func (i *ip) TunTapAdd(dev string) error {
	out, err := i.commander.CombinedOutput("ip", "tuntap", "add", "dev", dev, "mode", "tun")
	if err != nil {
		return fmt.Errorf("failed to create TUN %s: %v, output: %s", dev, err, out)
	}
	return nil
}

// LinkDelete removes a network device.
func (i *ip) LinkDelete(dev string) error {
	out, err := i.commander.CombinedOutput("ip", "link", "delete", dev)
	if err != nil {
		return fmt.Errorf("failed to delete interface %s: %v, output: %s", dev, err, out)
	}
	return nil
}

// LinkSetUp brings a device up.
func (i *ip) LinkSetUp(dev string) error {
	out, err := i.commander.CombinedOutput("ip", "link", "set", "dev", dev, "up")
	if err != nil {
		return fmt.Errorf("failed to bring up %s: %v, output: %s", dev, err, out)
	}
	return nil
}

// AddrReplace assigns cidr to the device. "replace" rather than "add" so a
// repeated apply does not fail or stack addresses.
func (i *ip) AddrReplace(dev, cidr string) error {
	out, err := i.commander.CombinedOutput("ip", "addr", "replace", cidr, "dev", dev)
	if err != nil {
		return fmt.Errorf("failed to assign %s to %s: %v, output: %s", cidr, dev, err, out)
	}
	return nil
}

// RouteReplaceDefault installs the default route of a policy table through
// the device. "replace" keeps re-applies idempotent.
func (i *ip) RouteReplaceDefault(dev string, table int) error {
	out, err := i.commander.CombinedOutput("ip", "route", "replace",
		"default", "dev", dev, "table", strconv.Itoa(table))
	if err != nil {
		return fmt.Errorf("failed to set default route via %s in table %d: %v, output: %s",
			dev, table, err, out)
	}
	return nil
}

// RouteFlushTable empties a policy table.
func (i *ip) RouteFlushTable(table int) error {
	out, err := i.commander.CombinedOutput("ip", "route", "flush",
		"table", strconv.Itoa(table))
	if err != nil {
		return fmt.Errorf("failed to flush table %d: %v, output: %s", table, err, out)
	}
	return nil
}

// RuleExists reports whether a routing-policy rule with the given priority
// is installed, by parsing "ip rule show" output. Lines look like
// "100:	from 10.73.0.0/24 lookup 100".
func (i *ip) RuleExists(priority int) (bool, error) {
	out, err := i.commander.Output("ip", "rule", "show")
	if err != nil {
		return false, fmt.Errorf("failed to list routing rules: %v", err)
	}
	prefix := strconv.Itoa(priority) + ":"
	for _, line := range strings.Split(string(out), "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), prefix) {
			return true, nil
		}
	}
	return false, nil
}

// RuleAdd installs a from-source lookup rule at the given priority.
func (i *ip) RuleAdd(fromCIDR string, table, priority int) error {
	out, err := i.commander.CombinedOutput("ip", "rule", "add",
		"from", fromCIDR, "lookup", strconv.Itoa(table), "pref", strconv.Itoa(priority))
	if err != nil {
		return fmt.Errorf("failed to add rule from %s lookup %d: %v, output: %s",
			fromCIDR, table, err, out)
	}
	return nil
}

// RuleDelete removes the rule at the given priority.
func (i *ip) RuleDelete(priority int) error {
	out, err := i.commander.CombinedOutput("ip", "rule", "del",
		"pref", strconv.Itoa(priority))
	if err != nil {
		return fmt.Errorf("failed to delete rule pref %d: %v, output: %s", priority, err, out)
	}
	return nil
}
