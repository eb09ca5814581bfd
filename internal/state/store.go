package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/relayrotor/relayrotor/internal/model"
)

// Document is the state file's shape: a mapping from client name to that
// client's rotation state.
type Document map[string]*model.ClientState

// Store owns the rotation-state document for all clients.
//
// All mutations across all clients are serialized through one mutex, so
// concurrent rotations can never interleave a read-modify-write. The whole
// document is rewritten on every mutation. That is an intentional simplicity
// tradeoff: fleets here are a handful of clients, and one small JSON file
// beats partial-write recovery logic.
//
// Persistence failures are logged and non-fatal: the in-memory document
// remains authoritative until the next successful write.
type Store struct {
	mu     sync.Mutex
	path   string
	doc    Document
	logger *slog.Logger
}

// Open loads the state document at path, creating an empty one if the file
// is missing, unreadable, or corrupt. A broken state file is a recovered
// condition, not a fatal one: losing rotation history is strictly better
// than a daemon that refuses to bring tunnels up.
func Open(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{path: path, doc: make(Document), logger: logger}

	data, err := os.ReadFile(path) //nolint:gosec // Path comes from configuration
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("state file unreadable, starting fresh",
				"path", path, "error", err)
		}
		return s
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		// Keep the broken document around for post-mortems; the next
		// persist would otherwise overwrite the only evidence.
		preserved := path + ".corrupt"
		if renameErr := os.Rename(path, preserved); renameErr != nil {
			logger.Warn("state file corrupt, starting fresh",
				"path", path, "error", err)
		} else {
			logger.Warn("state file corrupt, preserved copy and starting fresh",
				"path", path, "preserved", preserved, "error", err)
		}
		return s
	}
	if doc != nil {
		s.doc = doc
	}
	return s
}

// Get returns a copy of the named client's state. The second return value
// reports whether any state exists for that client.
func (s *Store) Get(client string) (*model.ClientState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.doc[client]
	if !ok {
		return nil, false
	}
	return st.Clone(), true
}

// Snapshot returns a deep copy of the whole document, in no particular order.
func (s *Store) Snapshot() Document {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(Document, len(s.doc))
	for name, st := range s.doc {
		out[name] = st.Clone()
	}
	return out
}

// Mutate applies fn to the named client's state (creating empty state on
// first touch) and durably rewrites the document. The write failure path is
// logged and swallowed; the in-memory mutation always takes effect.
func (s *Store) Mutate(client string, fn func(*model.ClientState)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.doc[client]
	if !ok {
		st = model.NewClientState()
		s.doc[client] = st
	}
	fn(st)

	if err := s.persistLocked(); err != nil {
		s.logger.Error("failed to persist state, in-memory state remains authoritative",
			"path", s.path, "client", client, "error", err)
	}
}

// persistLocked rewrites the document atomically: marshal, write a sibling
// temp file, fsync, rename over the old file. Callers hold s.mu.
func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
