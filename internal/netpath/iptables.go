package netpath

import "fmt"

// iptables wraps the iptables command. Rules are installed through
// ensureRule, which probes with -C before appending with -A, so a repeated
// apply never duplicates a rule.
type iptables struct {
	commander Commander
}

// ensureRule appends the filter-table rule described by args (chain plus
// match/target) if it is not already present.
func (t *iptables) ensureRule(args ...string) error {
	check := append([]string{"-C"}, args...)
	if err := t.commander.Run("iptables", check...); err == nil {
		return nil
	}
	add := append([]string{"-A"}, args...)
	out, err := t.commander.CombinedOutput("iptables", add...)
	if err != nil {
		return fmt.Errorf("failed to install iptables rule %v: %v, output: %s", args, err, out)
	}
	return nil
}

// deleteRule removes a filter-table rule, ignoring "no such rule" failures
// so teardown stays best-effort.
func (t *iptables) deleteRule(args ...string) {
	del := append([]string{"-D"}, args...)
	_, _ = t.commander.CombinedOutput("iptables", del...)
}

// ensureNATRule appends a nat-table rule if absent. The table selector must
// precede the operation flag, so nat rules get their own helpers.
func (t *iptables) ensureNATRule(args ...string) error {
	check := append([]string{"-t", "nat", "-C"}, args...)
	if err := t.commander.Run("iptables", check...); err == nil {
		return nil
	}
	add := append([]string{"-t", "nat", "-A"}, args...)
	out, err := t.commander.CombinedOutput("iptables", add...)
	if err != nil {
		return fmt.Errorf("failed to install nat rule %v: %v, output: %s", args, err, out)
	}
	return nil
}

// deleteNATRule removes a nat-table rule, best-effort.
func (t *iptables) deleteNATRule(args ...string) {
	del := append([]string{"-t", "nat", "-D"}, args...)
	_, _ = t.commander.CombinedOutput("iptables", del...)
}

// forwardArgs is the tunnel-to-client forwarding rule.
func forwardArgs(in, out string) []string {
	return []string{"FORWARD", "-i", in, "-o", out, "-j", "ACCEPT"}
}

// returnForwardArgs is the reverse direction, restricted to established flows.
func returnForwardArgs(in, out string) []string {
	return []string{"FORWARD", "-i", in, "-o", out,
		"-m", "state", "--state", "RELATED,ESTABLISHED", "-j", "ACCEPT"}
}

// masqueradeArgs is the NAT rule for the client subnet egressing the
// virtual interface.
func masqueradeArgs(dev, sourceCIDR string) []string {
	return []string{"POSTROUTING", "-o", dev, "-s", sourceCIDR, "-j", "MASQUERADE"}
}
