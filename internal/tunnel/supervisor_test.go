package tunnel

import (
	"errors"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/relayrotor/relayrotor/internal/bridge"
	"github.com/relayrotor/relayrotor/internal/model"
	"github.com/relayrotor/relayrotor/internal/netpath"
)

// fakeProvisioner counts applies and teardowns and can be told to fail.
type fakeProvisioner struct {
	mu        sync.Mutex
	applies   int
	teardowns int
	applyErr  error
	tdErr     error
}

func (f *fakeProvisioner) Apply(netpath.Path) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applies++
	return f.applyErr
}

func (f *fakeProvisioner) Teardown(netpath.Path) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.teardowns++
	return f.tdErr
}

func (f *fakeProvisioner) applyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.applies
}

func (f *fakeProvisioner) teardownCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.teardowns
}

// fakeProc is a controllable bridge.Process. Tests crash it by calling
// exit(); with exitOnTerm set it exits when it receives SIGTERM, modeling a
// well-behaved bridge.
type fakeProc struct {
	mu         sync.Mutex
	done       chan bridge.ExitEvent
	exitedOnce bool
	exitOnTerm bool
}

func newFakeProc(exitOnTerm bool) *fakeProc {
	return &fakeProc{done: make(chan bridge.ExitEvent, 1), exitOnTerm: exitOnTerm}
}

func (p *fakeProc) exit(ev bridge.ExitEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exitedOnce {
		return
	}
	p.exitedOnce = true
	p.done <- ev
}

func (p *fakeProc) PID() int { return 4242 }

func (p *fakeProc) Signal(sig os.Signal) error {
	if sig == syscall.SIGTERM && p.exitOnTerm {
		p.exit(bridge.ExitEvent{Code: -1, Signal: "terminated"})
	}
	return nil
}

func (p *fakeProc) Kill() error {
	p.exit(bridge.ExitEvent{Code: -1, Signal: "killed"})
	return nil
}

func (p *fakeProc) Done() <-chan bridge.ExitEvent { return p.done }

// fakeLauncher hands out fakeProcs and reports each launch on a channel.
type fakeLauncher struct {
	mu         sync.Mutex
	launches   chan *fakeProc
	exitOnTerm bool
	startErr   error
}

func newFakeLauncher(exitOnTerm bool) *fakeLauncher {
	return &fakeLauncher{launches: make(chan *fakeProc, 16), exitOnTerm: exitOnTerm}
}

func (l *fakeLauncher) Start(string, model.Relay) (bridge.Process, error) {
	l.mu.Lock()
	err := l.startErr
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}
	p := newFakeProc(l.exitOnTerm)
	l.launches <- p
	return p, nil
}

func (l *fakeLauncher) nextLaunch(t *testing.T) *fakeProc {
	t.Helper()
	select {
	case p := <-l.launches:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a bridge launch")
		return nil
	}
}

func (l *fakeLauncher) noLaunchWithin(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case <-l.launches:
		t.Fatal("unexpected bridge launch")
	case <-time.After(d):
	}
}

func testSupervisor(prov *fakeProvisioner, launcher *fakeLauncher) *Supervisor {
	return NewSupervisor(prov, launcher, "wg0",
		WithLogger(slog.New(slog.DiscardHandler)),
		WithRestartDelay(time.Millisecond),
		WithMaxRestarts(3),
		WithStopGracePeriod(50*time.Millisecond),
	)
}

func waitForState(t *testing.T, s *Supervisor, client string, want ProcState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State(client) == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("client %s never reached state %v (currently %v)", client, want, s.State(client))
}

var testRelay = model.Relay{Endpoint: "192.0.2.10:1080", Location: "US"}

// TestAssign_FirstTime brings a fresh client up.
func TestAssign_FirstTime(t *testing.T) {
	t.Parallel()

	prov := &fakeProvisioner{}
	launcher := newFakeLauncher(true)
	s := testSupervisor(prov, launcher)

	if err := s.Assign("alice", 0, testRelay); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	launcher.nextLaunch(t)
	waitForState(t, s, "alice", StateRunning)

	if got := prov.applyCount(); got != 1 {
		t.Errorf("expected 1 path apply, got %d", got)
	}
}

// TestAssign_FirstTimeApplyFailure verifies that first-time bring-up failure
// is fatal: no process is launched and the error propagates.
func TestAssign_FirstTimeApplyFailure(t *testing.T) {
	t.Parallel()

	prov := &fakeProvisioner{applyErr: errors.New("ip: operation not permitted")}
	launcher := newFakeLauncher(true)
	s := testSupervisor(prov, launcher)

	if err := s.Assign("alice", 0, testRelay); err == nil {
		t.Fatal("expected error on first-time bring-up failure")
	}
	launcher.noLaunchWithin(t, 20*time.Millisecond)
	if got := s.State("alice"); got != StateStopped {
		t.Errorf("expected stopped state, got %v", got)
	}
}

// TestAssign_Rotation verifies the swap: old process stopped before the new
// one starts, path re-applied, restart budget reset.
func TestAssign_Rotation(t *testing.T) {
	t.Parallel()

	prov := &fakeProvisioner{}
	launcher := newFakeLauncher(true)
	s := testSupervisor(prov, launcher)

	if err := s.Assign("alice", 0, testRelay); err != nil {
		t.Fatal(err)
	}
	first := launcher.nextLaunch(t)
	waitForState(t, s, "alice", StateRunning)

	next := model.Relay{Endpoint: "192.0.2.20:1080", Location: "EU"}
	if err := s.Assign("alice", 0, next); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The old process must have been asked to terminate.
	first.mu.Lock()
	oldExited := first.exitedOnce
	first.mu.Unlock()
	if !oldExited {
		t.Error("expected old bridge process to be stopped before the swap")
	}

	launcher.nextLaunch(t)
	waitForState(t, s, "alice", StateRunning)

	if got := prov.applyCount(); got != 2 {
		t.Errorf("expected path re-apply on rotation, got %d applies", got)
	}
}

// TestAssign_RotationApplyFailure verifies best-effort path setup after the
// first bring-up: the swap proceeds.
func TestAssign_RotationApplyFailure(t *testing.T) {
	t.Parallel()

	prov := &fakeProvisioner{}
	launcher := newFakeLauncher(true)
	s := testSupervisor(prov, launcher)

	if err := s.Assign("alice", 0, testRelay); err != nil {
		t.Fatal(err)
	}
	launcher.nextLaunch(t)
	waitForState(t, s, "alice", StateRunning)

	prov.mu.Lock()
	prov.applyErr = errors.New("iptables: resource busy")
	prov.mu.Unlock()

	if err := s.Assign("alice", 0, testRelay); err != nil {
		t.Fatalf("rotation apply failure should not propagate, got %v", err)
	}
	launcher.nextLaunch(t)
	waitForState(t, s, "alice", StateRunning)
}

// TestRestartBound is the crash-loop property: a process that always exits
// non-cleanly triggers exactly maxRestarts restart attempts, then the client
// goes Failed and no further launches happen.
func TestRestartBound(t *testing.T) {
	t.Parallel()

	prov := &fakeProvisioner{}
	launcher := newFakeLauncher(false)
	s := testSupervisor(prov, launcher)

	if err := s.Assign("alice", 0, testRelay); err != nil {
		t.Fatal(err)
	}

	// Initial launch plus exactly 3 restart attempts.
	for i := 0; i < 4; i++ {
		p := launcher.nextLaunch(t)
		p.exit(bridge.ExitEvent{Code: 1})
	}

	waitForState(t, s, "alice", StateFailed)
	launcher.noLaunchWithin(t, 30*time.Millisecond)
}

// TestRotationResetsRestartBudget verifies that a rotation starts a new
// generation: a client one crash away from Failed gets a full budget again.
func TestRotationResetsRestartBudget(t *testing.T) {
	t.Parallel()

	prov := &fakeProvisioner{}
	launcher := newFakeLauncher(true)
	s := testSupervisor(prov, launcher)

	if err := s.Assign("alice", 0, testRelay); err != nil {
		t.Fatal(err)
	}
	// Burn the entire budget but the final attempt: initial launch plus two
	// restarts crash, the third restart is left running.
	for i := 0; i < 3; i++ {
		p := launcher.nextLaunch(t)
		p.exit(bridge.ExitEvent{Code: 1})
	}
	launcher.nextLaunch(t) // final restart attempt, left running
	waitForState(t, s, "alice", StateRunning)

	// Rotation: new generation, fresh budget.
	if err := s.Assign("alice", 0, testRelay); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		p := launcher.nextLaunch(t)
		p.exit(bridge.ExitEvent{Code: 1})
	}
	// Three crashes into the new generation the client must still be
	// recovering, not Failed: the rotation reset the counter.
	launcher.nextLaunch(t)
	waitForState(t, s, "alice", StateRunning)
}

// TestStop verifies the explicit stop: terminal, no restart.
func TestStop(t *testing.T) {
	t.Parallel()

	prov := &fakeProvisioner{}
	launcher := newFakeLauncher(true)
	s := testSupervisor(prov, launcher)

	if err := s.Assign("alice", 0, testRelay); err != nil {
		t.Fatal(err)
	}
	launcher.nextLaunch(t)
	waitForState(t, s, "alice", StateRunning)

	s.Stop("alice")

	if got := s.State("alice"); got != StateStopped {
		t.Errorf("expected stopped, got %v", got)
	}
	launcher.noLaunchWithin(t, 30*time.Millisecond)
}

// TestStop_CancelsPendingRestart stops a client while a restart is pending.
func TestStop_CancelsPendingRestart(t *testing.T) {
	t.Parallel()

	prov := &fakeProvisioner{}
	launcher := newFakeLauncher(false)
	s := NewSupervisor(prov, launcher, "wg0",
		WithLogger(slog.New(slog.DiscardHandler)),
		WithRestartDelay(250*time.Millisecond), // long enough to stop inside the window
		WithMaxRestarts(3),
		WithStopGracePeriod(50*time.Millisecond),
	)

	if err := s.Assign("alice", 0, testRelay); err != nil {
		t.Fatal(err)
	}
	p := launcher.nextLaunch(t)
	p.exit(bridge.ExitEvent{Code: 1})
	waitForState(t, s, "alice", StateScheduledRestart)

	s.Stop("alice")
	launcher.noLaunchWithin(t, 400*time.Millisecond)
	if got := s.State("alice"); got != StateStopped {
		t.Errorf("expected stopped, got %v", got)
	}
}

// TestStop_KillsAfterGrace verifies the force-kill path for a process that
// ignores SIGTERM.
func TestStop_KillsAfterGrace(t *testing.T) {
	t.Parallel()

	prov := &fakeProvisioner{}
	launcher := newFakeLauncher(false) // ignores SIGTERM
	s := testSupervisor(prov, launcher)

	if err := s.Assign("alice", 0, testRelay); err != nil {
		t.Fatal(err)
	}
	p := launcher.nextLaunch(t)
	waitForState(t, s, "alice", StateRunning)

	done := make(chan struct{})
	go func() {
		s.Stop("alice")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not complete; force-kill path broken")
	}

	p.mu.Lock()
	exited := p.exitedOnce
	p.mu.Unlock()
	if !exited {
		t.Error("expected process to be killed after grace period")
	}
}

// TestShutdown tears down all clients, continuing past per-client failures.
func TestShutdown(t *testing.T) {
	t.Parallel()

	prov := &fakeProvisioner{tdErr: errors.New("device busy")}
	launcher := newFakeLauncher(true)
	s := testSupervisor(prov, launcher)

	for i, name := range []string{"alice", "bob"} {
		if err := s.Assign(name, i, testRelay); err != nil {
			t.Fatal(err)
		}
		launcher.nextLaunch(t)
		waitForState(t, s, name, StateRunning)
	}

	s.Shutdown()

	if got := prov.teardownCount(); got != 2 {
		t.Errorf("expected teardown attempted for both clients, got %d", got)
	}
}

// TestDerivePath pins the deterministic per-index resource derivation.
func TestDerivePath(t *testing.T) {
	t.Parallel()

	p := DerivePath(2, "wg0")
	if p.Interface != "rly2" {
		t.Errorf("unexpected interface %q", p.Interface)
	}
	if p.Subnet != "10.73.2.0/24" {
		t.Errorf("unexpected subnet %q", p.Subnet)
	}
	if p.HostAddr != "10.73.2.1/24" {
		t.Errorf("unexpected host addr %q", p.HostAddr)
	}
	if p.RouteTable != 102 || p.RulePriority != 102 {
		t.Errorf("unexpected table/priority %d/%d", p.RouteTable, p.RulePriority)
	}
	if p.TunnelInterface != "wg0" {
		t.Errorf("unexpected tunnel interface %q", p.TunnelInterface)
	}

	// Distinct indexes never collide.
	q := DerivePath(3, "wg0")
	if q.Interface == p.Interface || q.Subnet == p.Subnet || q.RouteTable == p.RouteTable {
		t.Error("paths for distinct indexes must not collide")
	}
}
