package rotation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/im7mortal/kmutex"

	"github.com/relayrotor/relayrotor/internal/config"
	"github.com/relayrotor/relayrotor/internal/model"
	"github.com/relayrotor/relayrotor/internal/selector"
	"github.com/relayrotor/relayrotor/internal/state"
)

// notifyTimeout bounds the fire-and-forget webhook and audit writes that
// follow a committed rotation. They must never hold up the rotation itself.
const notifyTimeout = 10 * time.Second

// Assigner applies a committed relay assignment to a client's tunnel.
// Implemented by tunnel.Supervisor.
type Assigner interface {
	Assign(name string, index int, relay model.Relay) error
}

// PreflightFunc checks that a candidate relay is usable before a rotation is
// committed. A non-nil error disqualifies the candidate.
type PreflightFunc func(ctx context.Context, relay model.Relay) error

// Notifier is told about completed automatic rotations.
type Notifier interface {
	Notify(ctx context.Context, client, oldLocation, newLocation, endpoint string) error
}

// Auditor records committed rotations durably, beyond the capped in-state
// history.
type Auditor interface {
	Record(ctx context.Context, client string, rec model.RotationRecord) error
}

// Coordinator serializes and commits rotations. Each rotation is atomic per
// client: a keyed mutex ensures that a manual rotation and a scheduled one
// for the same client can never interleave, while rotations for different
// clients proceed concurrently.
type Coordinator struct {
	cfg    *config.Config
	store  *state.Store
	sup    Assigner
	locks  *kmutex.Kmutex
	logger *slog.Logger

	preflight PreflightFunc
	notifier  Notifier
	auditor   Auditor
	now       func() time.Time
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithLogger sets the coordinator's logger.
func WithLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = logger }
}

// WithPreflight enables the candidate reachability check.
func WithPreflight(fn PreflightFunc) CoordinatorOption {
	return func(c *Coordinator) { c.preflight = fn }
}

// WithNotifier enables rotation notifications.
func WithNotifier(n Notifier) CoordinatorOption {
	return func(c *Coordinator) { c.notifier = n }
}

// WithAuditor enables the durable rotation audit log.
func WithAuditor(a Auditor) CoordinatorOption {
	return func(c *Coordinator) { c.auditor = a }
}

// WithClock overrides the time source. Tests use this to pin rotation
// timestamps.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator creates a Coordinator over the given configuration, state
// store, and tunnel supervisor.
func NewCoordinator(cfg *config.Config, store *state.Store, sup Assigner, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		cfg:   cfg,
		store: store,
		sup:   sup,
		locks: kmutex.New(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Rotate moves the named client to the next relay. preferred, when non-empty,
// restricts selection to relays in exactly that location. automatic marks
// scheduler-driven rotations; only those trigger notifications, so an
// operator poking the API does not page themselves.
//
// The sequence is: select, preflight (optional), commit state, apply to the
// tunnel. State is committed before the tunnel assignment so that a path
// failure never loses the rotation decision; the supervisor's restart policy
// owns recovery from there.
func (c *Coordinator) Rotate(ctx context.Context, client, preferred string, automatic bool) (model.Relay, error) {
	index := c.cfg.ClientIndex(client)
	if index < 0 {
		return model.Relay{}, fmt.Errorf("%w: %q", ErrClientNotFound, client)
	}

	c.locks.Lock(client)
	defer c.locks.Unlock(client)

	st, _ := c.store.Get(client)

	next, ok := selector.Select(c.cfg.Relays, st, preferred)
	if !ok {
		return model.Relay{}, fmt.Errorf("%w for client %q", ErrNoRelayAvailable, client)
	}

	if c.preflight != nil {
		pfCtx, cancel := context.WithTimeout(ctx, c.cfg.PreflightTimeout)
		err := c.preflight(pfCtx, next)
		cancel()
		if err != nil {
			c.logger.Warn("candidate relay failed preflight",
				"client", client, "endpoint", next.Endpoint, "error", err)
			return model.Relay{}, fmt.Errorf("%w for client %q: preflight: %v",
				ErrNoRelayAvailable, client, err)
		}
	}

	var oldRelay, oldLocation string
	if st != nil {
		oldRelay, oldLocation = st.CurrentRelay, st.CurrentLocation
	}
	now := c.now()
	rec := model.RotationRecord{
		Time:        now,
		OldRelay:    oldRelay,
		NewRelay:    next.Endpoint,
		OldLocation: oldLocation,
		NewLocation: next.Location,
	}

	c.store.Mutate(client, func(st *model.ClientState) {
		// The vacated location becomes the anti-repeat exclusion for the
		// next selection. On a first assignment it stays empty.
		st.LastLocation = st.CurrentLocation
		if st.CurrentRelay != "" {
			st.RecordRotation(rec)
		}
		st.CurrentRelay = next.Endpoint
		st.CurrentLocation = next.Location
		st.LastRotationTime = now
		st.MarkUsage(next.Endpoint, now)
	})

	c.logger.Info("rotation committed",
		"client", client,
		"endpoint", next.Endpoint,
		"location", next.Location,
		"old_location", oldLocation,
		"automatic", automatic)

	if automatic && oldRelay != "" && c.notifier != nil {
		go c.notify(client, oldLocation, next)
	}
	if c.auditor != nil {
		go c.audit(client, rec)
	}

	if err := c.sup.Assign(client, index, next); err != nil {
		return next, fmt.Errorf("assign tunnel for client %q: %w", client, err)
	}
	return next, nil
}

// ClientState returns a copy of the named client's rotation state.
func (c *Coordinator) ClientState(client string) (*model.ClientState, bool) {
	return c.store.Get(client)
}

// CurrentRelay returns the endpoint currently assigned to the client, or ""
// if none has been assigned yet.
func (c *Coordinator) CurrentRelay(client string) string {
	st, ok := c.store.Get(client)
	if !ok {
		return ""
	}
	return st.CurrentRelay
}

func (c *Coordinator) notify(client, oldLocation string, next model.Relay) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := c.notifier.Notify(ctx, client, oldLocation, next.Location, next.Endpoint); err != nil {
		c.logger.Warn("rotation notification failed",
			"client", client, "error", err)
	}
}

func (c *Coordinator) audit(client string, rec model.RotationRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := c.auditor.Record(ctx, client, rec); err != nil {
		c.logger.Warn("rotation audit write failed",
			"client", client, "error", err)
	}
}
