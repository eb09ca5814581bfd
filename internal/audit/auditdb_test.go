package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/relayrotor/relayrotor/internal/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open audit database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpen_RequireExisting(t *testing.T) {
	t.Parallel()

	opts := Options{CreateIfNotExists: false}
	if _, err := Open(t.TempDir(), opts); err == nil {
		t.Fatal("expected error when the database does not exist")
	}
}

func TestRecordAndHistory(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

	recs := []model.RotationRecord{
		{Time: base, NewRelay: "198.51.100.1:1080", NewLocation: "US"},
		{Time: base.Add(time.Hour), OldRelay: "198.51.100.1:1080", NewRelay: "198.51.100.2:1080", OldLocation: "US", NewLocation: "EU"},
		{Time: base.Add(2 * time.Hour), OldRelay: "198.51.100.2:1080", NewRelay: "198.51.100.3:1080", OldLocation: "EU", NewLocation: "AS"},
	}
	for _, rec := range recs {
		if err := db.Record(ctx, "alice", rec); err != nil {
			t.Fatalf("failed to record rotation: %v", err)
		}
	}

	got, err := db.History(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("failed to query history: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}

	// Most recent first.
	if got[0].NewRelay != "198.51.100.3:1080" {
		t.Errorf("unexpected newest entry %+v", got[0])
	}
	if got[2].OldRelay != "" || got[2].NewLocation != "US" {
		t.Errorf("unexpected oldest entry %+v", got[2])
	}
	if !got[0].Time.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("timestamp round-trip failed: %v", got[0].Time)
	}

	limited, err := db.History(ctx, "alice", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("expected limit to apply, got %d entries", len(limited))
	}

	if hist, err := db.History(ctx, "nobody", 0); err != nil || len(hist) != 0 {
		t.Errorf("expected empty history for unknown client, got %v (%v)", hist, err)
	}
}

func TestClients(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, client := range []string{"bob", "alice", "bob"} {
		rec := model.RotationRecord{Time: now, NewRelay: "198.51.100.1:1080", NewLocation: "US"}
		if err := db.Record(ctx, client, rec); err != nil {
			t.Fatal(err)
		}
	}

	clients, err := db.Clients(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(clients) != 2 || clients[0] != "alice" || clients[1] != "bob" {
		t.Errorf("expected sorted distinct clients, got %v", clients)
	}
}

func TestCountSince(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		rec := model.RotationRecord{Time: base.Add(time.Duration(i) * time.Hour), NewRelay: "r", NewLocation: "US"}
		if err := db.Record(ctx, "alice", rec); err != nil {
			t.Fatal(err)
		}
	}

	count, err := db.CountSince(ctx, "alice", base.Add(90*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("expected 2 rotations since cutoff, got %d", count)
	}
}

func TestLast(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.Last(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	base := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		rec := model.RotationRecord{
			Time:        base.Add(time.Duration(i) * time.Hour),
			NewRelay:    "198.51.100.1:1080",
			NewLocation: "US",
		}
		if err := db.Record(ctx, "alice", rec); err != nil {
			t.Fatal(err)
		}
	}

	last, err := db.Last(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !last.Time.Equal(base.Add(time.Hour)) {
		t.Errorf("expected most recent entry, got %+v", last)
	}
}
