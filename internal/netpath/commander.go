package netpath

import "os/exec"

// Commander abstracts command execution so the ip/iptables wrappers can be
// exercised against a fake in tests.
type Commander interface {
	// Run executes the command and discards output.
	Run(name string, args ...string) error

	// Output executes the command and returns its stdout.
	Output(name string, args ...string) ([]byte, error)

	// CombinedOutput executes the command and returns stdout+stderr, which
	// is what ends up in error messages when a command fails.
	CombinedOutput(name string, args ...string) ([]byte, error)
}

// ExecCommander is the os/exec-backed Commander used in production.
type ExecCommander struct{}

// NewExecCommander returns a Commander backed by os/exec.
func NewExecCommander() Commander {
	return &ExecCommander{}
}

// Run implements Commander.
func (c *ExecCommander) Run(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

// Output implements Commander.
func (c *ExecCommander) Output(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).Output()
}

// CombinedOutput implements Commander.
func (c *ExecCommander) CombinedOutput(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).CombinedOutput()
}
