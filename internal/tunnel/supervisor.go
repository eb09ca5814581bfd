package tunnel

import (
	"log/slog"
	"sync"
	"syscall"
	"time"

	"github.com/relayrotor/relayrotor/internal/bridge"
	"github.com/relayrotor/relayrotor/internal/model"
	"github.com/relayrotor/relayrotor/internal/netpath"
)

// ProcState is the bridging-process lifecycle state for one client.
type ProcState int

// Bridging-process states. Failed is terminal: the supervisor gives up on a
// client after the restart bound and leaves it for the operator.
const (
	StateStopped ProcState = iota
	StateStarting
	StateRunning
	StateScheduledRestart
	StateFailed
)

// String returns the state name for logs and the API.
func (s ProcState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateScheduledRestart:
		return "scheduled-restart"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Supervisor owns every client's tunnel: the network path and the bridging
// process. It is the single authority over that OS state; nothing else in
// the daemon runs ip/iptables or touches bridge processes.
type Supervisor struct {
	prov         netpath.Provisioner
	launcher     bridge.Launcher
	logger       *slog.Logger
	tunnelIface  string
	restartDelay time.Duration
	maxRestarts  int
	stopGrace    time.Duration

	mu      sync.Mutex
	clients map[string]*clientTunnel
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the supervisor's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) { s.logger = logger }
}

// WithRestartDelay sets the pause before restarting a crashed process.
func WithRestartDelay(d time.Duration) Option {
	return func(s *Supervisor) { s.restartDelay = d }
}

// WithMaxRestarts bounds consecutive crash-restarts per generation.
func WithMaxRestarts(n int) Option {
	return func(s *Supervisor) { s.maxRestarts = n }
}

// WithStopGracePeriod sets the SIGTERM-to-SIGKILL grace on explicit stop.
func WithStopGracePeriod(d time.Duration) Option {
	return func(s *Supervisor) { s.stopGrace = d }
}

// NewSupervisor creates a Supervisor bridging client tunnels to tunnelIface.
func NewSupervisor(prov netpath.Provisioner, launcher bridge.Launcher, tunnelIface string, opts ...Option) *Supervisor {
	s := &Supervisor{
		prov:         prov,
		launcher:     launcher,
		tunnelIface:  tunnelIface,
		restartDelay: 5 * time.Second,
		maxRestarts:  3,
		stopGrace:    10 * time.Second,
		clients:      make(map[string]*clientTunnel),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// clientTunnel is one client's supervised tunnel. Each client has its own
// lock so a slow stop (up to the grace period) on one client never blocks
// operations on another.
type clientTunnel struct {
	sup  *Supervisor
	name string

	mu      sync.Mutex
	path    netpath.Path
	relay   model.Relay
	proc    bridge.Process
	exited  chan struct{} // closed by the watcher when proc terminates
	state   ProcState
	gen     int // generation: bumped on every explicit stop or assignment
	brought bool
	// restarts counts consecutive crash-restart attempts in the current
	// generation; reset whenever a new generation starts.
	restarts     int
	restartTimer *time.Timer
}

// client returns (creating if needed) the tunnel for a client name.
func (s *Supervisor) client(name string) *clientTunnel {
	s.mu.Lock()
	defer s.mu.Unlock()

	ct, ok := s.clients[name]
	if !ok {
		ct = &clientTunnel{sup: s, name: name, state: StateStopped}
		s.clients[name] = ct
	}
	return ct
}

// State reports the bridging-process state for a client. Clients never
// assigned report StateStopped.
func (s *Supervisor) State(name string) ProcState {
	s.mu.Lock()
	ct, ok := s.clients[name]
	s.mu.Unlock()
	if !ok {
		return StateStopped
	}
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return ct.state
}

// Assign points the client's tunnel at relay. On first assignment it brings
// the path up and starts the bridging process; on rotation it stops the old
// process, re-applies the (idempotent, cheap) path setup, and starts a new
// process in a fresh generation with a reset restart budget.
//
// Path provisioning failure is fatal only on first-time bring-up; on a
// rotation the path already exists, so failures degrade to a logged warning.
// Spawn failures are not returned: they feed the bounded restart policy.
func (s *Supervisor) Assign(name string, index int, relay model.Relay) error {
	ct := s.client(name)

	ct.mu.Lock()
	firstTime := !ct.brought
	ct.gen++
	gen := ct.gen
	ct.restarts = 0
	if ct.restartTimer != nil {
		ct.restartTimer.Stop()
		ct.restartTimer = nil
	}
	proc, exited := ct.proc, ct.exited
	ct.proc, ct.exited = nil, nil
	ct.state = StateStarting
	path := DerivePath(index, s.tunnelIface)
	ct.path = path
	ct.relay = relay
	ct.mu.Unlock()

	// Stop-and-release the old process before starting the replacement.
	if proc != nil {
		s.terminate(name, proc, exited)
	}

	if err := s.prov.Apply(path); err != nil {
		if firstTime {
			ct.mu.Lock()
			ct.state = StateStopped
			ct.mu.Unlock()
			return err
		}
		s.logger.Warn("path re-apply failed, continuing with existing path",
			"client", name, "error", err)
	}

	ct.mu.Lock()
	ct.brought = true
	ct.mu.Unlock()

	ct.startProcess(gen)
	return nil
}

// Stop explicitly stops a client's bridging process: terminal, no restart.
// Any pending restart timer is cancelled and the generation is bumped so
// stale exit events are ignored.
func (s *Supervisor) Stop(name string) {
	s.mu.Lock()
	ct, ok := s.clients[name]
	s.mu.Unlock()
	if !ok {
		return
	}

	ct.mu.Lock()
	ct.gen++
	if ct.restartTimer != nil {
		ct.restartTimer.Stop()
		ct.restartTimer = nil
	}
	proc, exited := ct.proc, ct.exited
	ct.proc, ct.exited = nil, nil
	ct.state = StateStopped
	ct.mu.Unlock()

	if proc != nil {
		s.terminate(name, proc, exited)
	}
}

// Shutdown stops every client and tears down its network path. Cleanup is
// best-effort per client: one client's failure is logged and the rest
// proceed.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	clients := make([]*clientTunnel, 0, len(s.clients))
	for _, ct := range s.clients {
		clients = append(clients, ct)
	}
	s.mu.Unlock()

	for _, ct := range clients {
		s.Stop(ct.name)

		ct.mu.Lock()
		brought, path := ct.brought, ct.path
		ct.mu.Unlock()
		if !brought {
			continue
		}
		if err := s.prov.Teardown(path); err != nil {
			s.logger.Warn("path teardown failed",
				"client", ct.name, "iface", path.Interface, "error", err)
		}
	}
}

// terminate gracefully stops a bridging process: SIGTERM, then SIGKILL if it
// has not exited within the grace period. The watcher goroutine is the sole
// reader of the process's exit event; terminate waits on the exited channel
// it closes.
func (s *Supervisor) terminate(name string, proc bridge.Process, exited chan struct{}) {
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		s.logger.Debug("SIGTERM failed, process may already be gone",
			"client", name, "pid", proc.PID(), "error", err)
	}

	select {
	case <-exited:
		return
	case <-time.After(s.stopGrace):
	}

	s.logger.Warn("bridge did not exit within grace period, killing",
		"client", name, "pid", proc.PID(), "grace", s.stopGrace)
	if err := proc.Kill(); err != nil {
		s.logger.Warn("kill failed", "client", name, "pid", proc.PID(), "error", err)
	}
	<-exited
}

// startProcess launches the bridging process for the current generation and
// hands its exit event to the state machine. A spawn failure counts against
// the restart budget like a crash.
func (ct *clientTunnel) startProcess(gen int) {
	ct.mu.Lock()
	if ct.gen != gen {
		ct.mu.Unlock()
		return
	}
	relay, iface := ct.relay, ct.path.Interface
	ct.state = StateStarting
	ct.mu.Unlock()

	proc, err := ct.sup.launcher.Start(iface, relay)

	ct.mu.Lock()
	if ct.gen != gen {
		ct.mu.Unlock()
		if proc != nil {
			_ = proc.Kill()
		}
		return
	}
	if err != nil {
		ct.sup.logger.Error("failed to start bridge process",
			"client", ct.name, "iface", iface, "error", err)
		ct.scheduleRestartLocked(gen)
		ct.mu.Unlock()
		return
	}

	exited := make(chan struct{})
	ct.proc = proc
	ct.exited = exited
	ct.state = StateRunning
	ct.mu.Unlock()

	ct.sup.logger.Info("bridge process running",
		"client", ct.name, "iface", iface, "endpoint", relay.Endpoint, "pid", proc.PID())

	go func() {
		ev := <-proc.Done()
		close(exited)
		ct.handleExit(gen, ev)
	}()
}

// handleExit is the state-machine transition for a process exit. Exits from
// older generations (explicit stops, superseded rotations) are ignored.
func (ct *clientTunnel) handleExit(gen int, ev bridge.ExitEvent) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if ct.gen != gen {
		return
	}
	ct.proc = nil
	ct.exited = nil

	ct.sup.logger.Warn("bridge process exited unexpectedly",
		"client", ct.name, "code", ev.Code, "signal", ev.Signal)
	ct.scheduleRestartLocked(gen)
}

// scheduleRestartLocked applies the bounded-restart policy. Callers hold
// ct.mu. After maxRestarts consecutive attempts in one generation the client
// transitions to Failed, terminal until the next explicit assignment.
func (ct *clientTunnel) scheduleRestartLocked(gen int) {
	if ct.restarts >= ct.sup.maxRestarts {
		ct.state = StateFailed
		ct.sup.logger.Error("bridge process failed permanently, operator attention required",
			"client", ct.name, "attempts", ct.restarts)
		return
	}
	ct.restarts++
	ct.state = StateScheduledRestart
	ct.sup.logger.Warn("scheduling bridge restart",
		"client", ct.name, "attempt", ct.restarts, "delay", ct.sup.restartDelay)

	ct.restartTimer = time.AfterFunc(ct.sup.restartDelay, func() {
		ct.restart(gen)
	})
}

// restart re-applies the path (cheap, idempotent) and relaunches the process
// within the same generation, preserving the restart count.
func (ct *clientTunnel) restart(gen int) {
	ct.mu.Lock()
	if ct.gen != gen {
		ct.mu.Unlock()
		return
	}
	path := ct.path
	ct.restartTimer = nil
	ct.mu.Unlock()

	if err := ct.sup.prov.Apply(path); err != nil {
		ct.sup.logger.Warn("path re-apply before restart failed, continuing",
			"client", ct.name, "error", err)
	}
	ct.startProcess(gen)
}
