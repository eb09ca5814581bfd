package bridge

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/relayrotor/relayrotor/internal/model"
)

// ExitEvent is the terminal event of a bridging process. It is delivered
// exactly once on the process's Done channel.
type ExitEvent struct {
	// Code is the process exit code; -1 when the process was killed by a
	// signal or never ran to completion.
	Code int

	// Signal names the terminating signal, if any.
	Signal string

	// Err is the error from waiting on the process, nil on a clean exit.
	Err error
}

// Clean reports whether the process exited voluntarily with status zero.
func (e ExitEvent) Clean() bool {
	return e.Code == 0 && e.Signal == ""
}

// Process is a handle on a running bridging process.
type Process interface {
	// PID returns the OS process id.
	PID() int

	// Signal sends sig to the process.
	Signal(sig os.Signal) error

	// Kill force-terminates the process.
	Kill() error

	// Done returns a channel that delivers the single ExitEvent when the
	// process terminates.
	Done() <-chan ExitEvent
}

// Launcher starts a bridging process for a virtual interface and relay.
// Start must not block on the process's lifetime.
type Launcher interface {
	Start(iface string, relay model.Relay) (Process, error)
}

// ErrEmptyCommand is returned when the command template expands to nothing.
var ErrEmptyCommand = errors.New("bridge command template is empty")

// ExecLauncher launches bridging processes from a command template via
// os/exec. The template is split on whitespace and the placeholders
// {iface} and {endpoint} are substituted per token, so an endpoint can
// never smuggle extra arguments in.
type ExecLauncher struct {
	template []string
}

// NewExecLauncher builds a launcher from a command template such as
//
//	tun2socks -device {iface} -proxy socks5://{endpoint}
func NewExecLauncher(template string) (*ExecLauncher, error) {
	fields := strings.Fields(template)
	if len(fields) == 0 {
		return nil, ErrEmptyCommand
	}
	return &ExecLauncher{template: fields}, nil
}

// Start implements Launcher.
func (l *ExecLauncher) Start(iface string, relay model.Relay) (Process, error) {
	argv := make([]string, len(l.template))
	for i, tok := range l.template {
		tok = strings.ReplaceAll(tok, "{iface}", iface)
		tok = strings.ReplaceAll(tok, "{endpoint}", relay.Endpoint)
		argv[i] = tok
	}

	cmd := exec.Command(argv[0], argv[1:]...) //nolint:gosec // Command comes from operator configuration
	// Detach into its own process group so signals aimed at the daemon do
	// not reach bridge processes directly; the supervisor owns their stops.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start bridge %q: %w", argv[0], err)
	}

	p := &execProcess{cmd: cmd, done: make(chan ExitEvent, 1)}
	go p.wait()
	return p, nil
}

// execProcess wraps an exec.Cmd as a Process.
type execProcess struct {
	cmd  *exec.Cmd
	done chan ExitEvent
}

// wait blocks on the child and converts its termination into an ExitEvent.
func (p *execProcess) wait() {
	err := p.cmd.Wait()

	ev := ExitEvent{Err: err}
	if ps := p.cmd.ProcessState; ps != nil {
		ev.Code = ps.ExitCode()
		if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			ev.Signal = ws.Signal().String()
		}
	}
	if err == nil {
		ev.Err = nil
	}

	p.done <- ev
}

// PID implements Process.
func (p *execProcess) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Signal implements Process.
func (p *execProcess) Signal(sig os.Signal) error {
	if p.cmd.Process == nil {
		return errors.New("process not started")
	}
	return p.cmd.Process.Signal(sig)
}

// Kill implements Process.
func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return errors.New("process not started")
	}
	return p.cmd.Process.Kill()
}

// Done implements Process.
func (p *execProcess) Done() <-chan ExitEvent {
	return p.done
}
