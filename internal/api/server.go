package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/relayrotor/relayrotor/internal/model"
	"github.com/relayrotor/relayrotor/internal/report"
	"github.com/relayrotor/relayrotor/internal/rotation"
	"github.com/relayrotor/relayrotor/internal/state"
)

// Constants for route prefixing. Versioning is explicit to allow non-breaking
// additions.
const (
	APIVersion     = "v1"
	DefaultAddress = "127.0.0.1:8737"
)

// Rotator is the slice of the rotation coordinator the API needs.
type Rotator interface {
	Rotate(ctx context.Context, client, preferred string, automatic bool) (model.Relay, error)
}

// Snapshotter supplies the durable state view. Implemented by state.Store.
type Snapshotter interface {
	Snapshot() state.Document
}

// ServerOptions configures the HTTP server.
// Timeouts are conservative defaults suitable for a local control-plane
// server.
type ServerOptions struct {
	Addr              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration

	// ProcState supplies the live bridging-process state per client.
	// Optional; when nil the API reports durable state only.
	ProcState func(name string) string

	Logger *slog.Logger
}

// Server hosts the HTTP API for the daemon.
type Server struct {
	http   *http.Server
	rot    Rotator
	snap   Snapshotter
	logger *slog.Logger
	opts   ServerOptions
}

// NewServer constructs a new API server over the rotation coordinator and
// state store. The server does not start listening until Start is called.
func NewServer(rot Rotator, snap Snapshotter, opts ServerOptions) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddress
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 5 * time.Second
	}
	if opts.ReadHeaderTimeout == 0 {
		opts.ReadHeaderTimeout = 2 * time.Second
	}
	if opts.WriteTimeout == 0 {
		// Rotations may run a preflight; give them room.
		opts.WriteTimeout = 30 * time.Second
	}
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = 60 * time.Second
	}
	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	mux := http.NewServeMux()
	s := &Server{
		rot:    rot,
		snap:   snap,
		logger: opts.Logger,
		opts:   opts,
		http: &http.Server{
			Addr:              opts.Addr,
			Handler:           withBasicMiddleware(mux, opts.Logger),
			ReadTimeout:       opts.ReadTimeout,
			ReadHeaderTimeout: opts.ReadHeaderTimeout,
			WriteTimeout:      opts.WriteTimeout,
			IdleTimeout:       opts.IdleTimeout,
		},
	}

	// Routes
	mux.HandleFunc("GET /"+APIVersion+"/healthz", s.handleHealthz)
	mux.HandleFunc("GET /"+APIVersion+"/status", s.handleStatus)
	mux.HandleFunc("GET /"+APIVersion+"/clients", s.handleStatus)
	mux.HandleFunc("GET /"+APIVersion+"/clients/{name}", s.handleClient)
	mux.HandleFunc("POST /"+APIVersion+"/rotate/{name}", s.handleRotate)

	return s
}

// Handler exposes the configured handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start begins serving HTTP in a background goroutine.
// It returns immediately; use Stop for graceful shutdown.
func (s *Server) Start() {
	go func() {
		s.logger.Info("api listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api serve failed", "error", err)
		}
	}()
}

// Stop gracefully shuts down the server, waiting up to ShutdownTimeout.
func (s *Server) Stop(ctx context.Context) error {
	timeout := s.opts.ShutdownTimeout
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.http.Shutdown(ctx)
}

// handleHealthz is a simple readiness/liveness endpoint.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": TimeNow().UTC().Format(time.RFC3339),
	})
}

// handleStatus returns all clients' current assignments.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := report.BuildStatus(s.snap.Snapshot(), s.opts.ProcState, TimeNow())
	writeJSON(w, http.StatusOK, FromStatus(status))
}

// handleClient returns one client's current assignment.
func (s *Server) handleClient(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	status := report.BuildStatus(s.snap.Snapshot(), s.opts.ProcState, TimeNow())
	for _, c := range status.Clients {
		if c.Name == name {
			writeJSON(w, http.StatusOK, FromClientStatus(c))
			return
		}
	}

	writeJSON(w, http.StatusNotFound, APIError{
		Error:     "no state for client " + name,
		Timestamp: TimeNow().UTC().Format(time.RFC3339),
	})
}

// handleRotate triggers a manual rotation for one client.
// Method: POST
// Query: location (optional) restricts selection to that location.
// Response (200): RotateResponse JSON
// Errors:
//   - 404 for unknown clients
//   - 409 when no eligible relay exists (selection empty or preflight failed)
//   - 502 when the relay was committed but the tunnel assignment failed
func (s *Server) handleRotate(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	preferred := r.URL.Query().Get("location")

	relay, err := s.rot.Rotate(r.Context(), name, preferred, false)
	switch {
	case errors.Is(err, rotation.ErrClientNotFound):
		writeJSON(w, http.StatusNotFound, APIError{
			Error:     err.Error(),
			Timestamp: TimeNow().UTC().Format(time.RFC3339),
		})
	case errors.Is(err, rotation.ErrNoRelayAvailable):
		writeJSON(w, http.StatusConflict, APIError{
			Error:     err.Error(),
			Timestamp: TimeNow().UTC().Format(time.RFC3339),
		})
	case err != nil:
		// The rotation was committed; the tunnel could not be brought up.
		writeJSON(w, http.StatusBadGateway, APIError{
			Error:     err.Error(),
			Timestamp: TimeNow().UTC().Format(time.RFC3339),
		})
	default:
		writeJSON(w, http.StatusOK, RotateResponse{
			Client:   name,
			Endpoint: relay.Endpoint,
			Location: relay.Location,
		})
	}
}

// Basic middleware: sets JSON content type and very lightweight logging.
// No CORS or auth because this is a local control-plane service.
func withBasicMiddleware(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := TimeNow()
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
		logger.Debug("api request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(v)
}
