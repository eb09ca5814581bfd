package selector

import (
	"testing"
	"time"

	"github.com/relayrotor/relayrotor/internal/model"
)

var (
	relayA = model.Relay{Endpoint: "192.0.2.10:1080", Location: "US"}
	relayB = model.Relay{Endpoint: "192.0.2.20:1080", Location: "US"}
	relayC = model.Relay{Endpoint: "192.0.2.30:1080", Location: "EU"}
)

func stateWithUsage(usage map[string]time.Time) *model.ClientState {
	st := model.NewClientState()
	for ep, t := range usage {
		st.MarkUsage(ep, t)
	}
	return st
}

// TestSelect_PreferredLocation verifies exact location matching with no
// fallback.
func TestSelect_PreferredLocation(t *testing.T) {
	t.Parallel()

	pool := []model.Relay{relayA, relayB, relayC}

	t.Run("match exists", func(t *testing.T) {
		t.Parallel()
		got, ok := Select(pool, model.NewClientState(), "EU")
		if !ok {
			t.Fatal("expected a relay")
		}
		if got.Location != "EU" {
			t.Errorf("expected EU relay, got %+v", got)
		}
	})

	t.Run("no match returns none", func(t *testing.T) {
		t.Parallel()
		if _, ok := Select(pool, model.NewClientState(), "AP"); ok {
			t.Error("expected no relay for unknown location")
		}
	})

	t.Run("preferred overrides anti-repeat", func(t *testing.T) {
		t.Parallel()
		st := model.NewClientState()
		st.LastLocation = "US"
		got, ok := Select(pool, st, "US")
		if !ok || got.Location != "US" {
			t.Errorf("preferred location must win over anti-repeat, got %+v ok=%v", got, ok)
		}
	})
}

// TestSelect_NeverUsedBeatsUsed verifies that a relay without a usage date
// always beats one with a usage date.
func TestSelect_NeverUsedBeatsUsed(t *testing.T) {
	t.Parallel()

	pool := []model.Relay{relayA, relayB}
	st := stateWithUsage(map[string]time.Time{
		relayA.Endpoint: time.Now(),
	})

	got, ok := Select(pool, st, "")
	if !ok {
		t.Fatal("expected a relay")
	}
	if got.Endpoint != relayB.Endpoint {
		t.Errorf("expected never-used relay %s, got %s", relayB.Endpoint, got.Endpoint)
	}
}

// TestSelect_LeastRecentlyUsed verifies LRU ordering among used relays.
func TestSelect_LeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	pool := []model.Relay{relayA, relayB}
	now := time.Now()
	st := stateWithUsage(map[string]time.Time{
		relayA.Endpoint: now,
		relayB.Endpoint: now.Add(-time.Hour),
	})

	got, ok := Select(pool, st, "")
	if !ok {
		t.Fatal("expected a relay")
	}
	if got.Endpoint != relayB.Endpoint {
		t.Errorf("expected least-recently-used relay %s, got %s", relayB.Endpoint, got.Endpoint)
	}
}

// TestSelect_TieBreaksByPoolOrder verifies that equal usage dates (and the
// never-used case) resolve to the first listed relay.
func TestSelect_TieBreaksByPoolOrder(t *testing.T) {
	t.Parallel()

	t.Run("both never used", func(t *testing.T) {
		t.Parallel()
		got, ok := Select([]model.Relay{relayA, relayB}, model.NewClientState(), "")
		if !ok || got.Endpoint != relayA.Endpoint {
			t.Errorf("expected first relay on tie, got %+v", got)
		}
	})

	t.Run("same usage date", func(t *testing.T) {
		t.Parallel()
		now := time.Now()
		st := stateWithUsage(map[string]time.Time{
			relayA.Endpoint: now,
			relayB.Endpoint: now,
		})
		got, ok := Select([]model.Relay{relayA, relayB}, st, "")
		if !ok || got.Endpoint != relayA.Endpoint {
			t.Errorf("expected first relay on tie, got %+v", got)
		}
	})
}

// TestSelect_AntiRepeat verifies the last-location exclusion and its
// single-location escape hatch.
func TestSelect_AntiRepeat(t *testing.T) {
	t.Parallel()

	t.Run("excludes last location", func(t *testing.T) {
		t.Parallel()
		st := model.NewClientState()
		st.LastLocation = "US"

		got, ok := Select([]model.Relay{relayA, relayB, relayC}, st, "")
		if !ok {
			t.Fatal("expected a relay")
		}
		if got.Location == "US" {
			t.Errorf("anti-repeat violated: got %+v", got)
		}
	})

	t.Run("single-location pool is not stranded", func(t *testing.T) {
		t.Parallel()
		st := model.NewClientState()
		st.LastLocation = "US"

		got, ok := Select([]model.Relay{relayA, relayB}, st, "")
		if !ok {
			t.Fatal("expected a relay even when all candidates share the last location")
		}
		if got.Location != "US" {
			t.Errorf("unexpected relay %+v", got)
		}
	})
}

// TestSelect_Scenario_AntiRepeatPlusFreshness is the combined scenario:
// pool [{A,US,unused},{B,US,used},{C,EU,unused}], last_location=US, no
// explicit location. US candidates are excluded, so C wins.
func TestSelect_Scenario_AntiRepeatPlusFreshness(t *testing.T) {
	t.Parallel()

	st := stateWithUsage(map[string]time.Time{
		relayB.Endpoint: time.Now().Add(-time.Hour),
	})
	st.LastLocation = "US"

	got, ok := Select([]model.Relay{relayA, relayB, relayC}, st, "")
	if !ok {
		t.Fatal("expected a relay")
	}
	if got.Endpoint != relayC.Endpoint {
		t.Errorf("expected C (%s), got %s", relayC.Endpoint, got.Endpoint)
	}
}

// TestSelect_EmptyPool verifies the degenerate cases.
func TestSelect_EmptyPool(t *testing.T) {
	t.Parallel()

	if _, ok := Select(nil, model.NewClientState(), ""); ok {
		t.Error("expected no relay from empty pool")
	}
	if _, ok := Select(nil, nil, "US"); ok {
		t.Error("expected no relay from empty pool with preferred location")
	}
}

// TestSelect_NilState verifies that a client with no prior state gets the
// first relay in pool order.
func TestSelect_NilState(t *testing.T) {
	t.Parallel()

	got, ok := Select([]model.Relay{relayC, relayA}, nil, "")
	if !ok || got.Endpoint != relayC.Endpoint {
		t.Errorf("expected first pool relay for nil state, got %+v", got)
	}
}
