package rotation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/relayrotor/relayrotor/internal/model"
)

// Scheduler tick bounds. The tick is a fraction of the rotation interval so
// that due rotations fire close to their deadline, clamped so short intervals
// do not spin and day-long intervals still get re-evaluated hourly.
const (
	minTick = time.Minute
	maxTick = time.Hour

	// maxConcurrentRotations bounds the per-sweep fan-out. Rotations touch
	// the network configuration; a handful at a time is plenty.
	maxConcurrentRotations = 4
)

// TickInterval returns the evaluation cadence for a rotation interval:
// interval/10, clamped to [1 minute, 1 hour].
func TickInterval(interval time.Duration) time.Duration {
	tick := interval / 10
	if tick < minTick {
		tick = minTick
	}
	if tick > maxTick {
		tick = maxTick
	}
	return tick
}

// rotator is the slice of the Coordinator the scheduler needs.
type rotator interface {
	Rotate(ctx context.Context, client, preferred string, automatic bool) (model.Relay, error)
	ClientState(client string) (*model.ClientState, bool)
}

// Scheduler periodically sweeps all clients and rotates the ones that are
// due. A client with no assignment is always due: the first sweep after
// startup brings every configured client onto a relay.
type Scheduler struct {
	rot      rotator
	clients  []string
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewScheduler creates a Scheduler rotating the named clients at the given
// interval.
func NewScheduler(rot rotator, clients []string, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		rot:      rot,
		clients:  clients,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Run evaluates all clients immediately, then on every tick until ctx is
// cancelled. It always returns ctx.Err().
func (s *Scheduler) Run(ctx context.Context) error {
	s.sweep(ctx)

	ticker := time.NewTicker(TickInterval(s.interval))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep rotates every due client. Failures are per-client: one client's
// selection or tunnel error is logged and never stops the others.
func (s *Scheduler) sweep(ctx context.Context) {
	now := s.now()

	g := new(errgroup.Group)
	g.SetLimit(maxConcurrentRotations)

	for _, client := range s.clients {
		if !s.due(client, now) {
			continue
		}
		g.Go(func() error {
			relay, err := s.rot.Rotate(ctx, client, "", true)
			switch {
			case errors.Is(err, context.Canceled):
				// Shutdown mid-sweep, not a rotation failure.
			case err != nil:
				s.logger.Error("scheduled rotation failed",
					"client", client, "error", err)
			default:
				s.logger.Debug("scheduled rotation done",
					"client", client, "endpoint", relay.Endpoint)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// due reports whether the client needs a rotation at time now.
func (s *Scheduler) due(client string, now time.Time) bool {
	st, ok := s.rot.ClientState(client)
	if !ok || st.CurrentRelay == "" {
		return true
	}
	return now.Sub(st.LastRotationTime) >= s.interval
}
