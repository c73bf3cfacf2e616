package acceptance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smartpedals/rackshare-backend/bike"
)

func TestBikeRepository_UndockOnlyMatchesOnce(t *testing.T) {
	env := NewTestEnv(t)
	defer env.Close()
	ctx := context.Background()

	if _, err := env.Bikes.Create(ctx, "bike-1", strPtr("rack-1")); err != nil {
		t.Fatalf("create bike: %v", err)
	}

	matched, err := env.Bikes.Undock(ctx, "bike-1", "rack-1", "card-1")
	if err != nil {
		t.Fatalf("undock: %v", err)
	}
	if !matched {
		t.Fatal("first undock must match")
	}

	// The bike is gone; a racing duplicate must not match.
	matched, err = env.Bikes.Undock(ctx, "bike-1", "rack-1", "card-2")
	if err != nil {
		t.Fatalf("second undock: %v", err)
	}
	if matched {
		t.Fatal("second undock matched an already-released bike")
	}

	b, err := env.Bikes.GetBike(ctx, "bike-1")
	if err != nil {
		t.Fatalf("get bike: %v", err)
	}
	if b.Status != bike.StatusInUse || b.CurrentUser.String != "card-1" {
		t.Errorf("unexpected bike state: %+v", b)
	}
}

func TestBikeRepository_DockRequiresRider(t *testing.T) {
	env := NewTestEnv(t)
	defer env.Close()
	ctx := context.Background()

	if _, err := env.Bikes.Create(ctx, "bike-1", strPtr("rack-1")); err != nil {
		t.Fatalf("create bike: %v", err)
	}
	if _, err := env.Bikes.Undock(ctx, "bike-1", "rack-1", "card-1"); err != nil {
		t.Fatalf("undock: %v", err)
	}

	matched, err := env.Bikes.Dock(ctx, "bike-1", "rack-2", "card-2")
	if err != nil {
		t.Fatalf("dock: %v", err)
	}
	if matched {
		t.Fatal("dock matched for a rider who does not hold the bike")
	}

	matched, err = env.Bikes.Dock(ctx, "bike-1", "rack-2", "card-1")
	if err != nil {
		t.Fatalf("dock: %v", err)
	}
	if !matched {
		t.Fatal("dock must match for the holding rider")
	}
}

func TestBikeRepository_GetByRider(t *testing.T) {
	env := NewTestEnv(t)
	defer env.Close()
	ctx := context.Background()

	if _, err := env.Bikes.Create(ctx, "bike-1", strPtr("rack-1")); err != nil {
		t.Fatalf("create bike: %v", err)
	}

	if _, err := env.Bikes.GetByRider(ctx, "card-1"); !errors.Is(err, bike.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before undock, got %v", err)
	}

	if _, err := env.Bikes.Undock(ctx, "bike-1", "rack-1", "card-1"); err != nil {
		t.Fatalf("undock: %v", err)
	}

	b, err := env.Bikes.GetByRider(ctx, "card-1")
	if err != nil {
		t.Fatalf("get by rider: %v", err)
	}
	if b.Label != "bike-1" {
		t.Errorf("expected bike-1, got %q", b.Label)
	}
}

func TestRackRepository_OccupyVacate(t *testing.T) {
	env := NewTestEnv(t)
	defer env.Close()
	ctx := context.Background()

	if _, err := env.Racks.Create(ctx, "rack-1", nil); err != nil {
		t.Fatalf("create rack: %v", err)
	}

	matched, err := env.Racks.Occupy(ctx, "rack-1", "bike-1")
	if err != nil || !matched {
		t.Fatalf("occupy empty rack: matched=%v err=%v", matched, err)
	}

	matched, err = env.Racks.Occupy(ctx, "rack-1", "bike-2")
	if err != nil {
		t.Fatalf("occupy: %v", err)
	}
	if matched {
		t.Fatal("occupy matched an occupied rack")
	}

	matched, err = env.Racks.Vacate(ctx, "rack-1", "bike-2")
	if err != nil {
		t.Fatalf("vacate: %v", err)
	}
	if matched {
		t.Fatal("vacate matched the wrong occupant")
	}

	matched, err = env.Racks.Vacate(ctx, "rack-1", "bike-1")
	if err != nil || !matched {
		t.Fatalf("vacate own occupant: matched=%v err=%v", matched, err)
	}
}

func TestRackRepository_TouchUpdatesLiveness(t *testing.T) {
	env := NewTestEnv(t)
	defer env.Close()
	ctx := context.Background()

	if _, err := env.Racks.Create(ctx, "rack-1", nil); err != nil {
		t.Fatalf("create rack: %v", err)
	}

	at := time.Now().UTC().Truncate(time.Second)
	if err := env.Racks.Touch(ctx, "rack-1", "idle", at); err != nil {
		t.Fatalf("touch: %v", err)
	}

	rk, err := env.Racks.GetRack(ctx, "rack-1")
	if err != nil {
		t.Fatalf("get rack: %v", err)
	}
	if !rk.LastSeen.Valid || !rk.LastSeen.Time.Equal(at) {
		t.Errorf("last_seen not recorded: %+v", rk.LastSeen)
	}
	if rk.State.String != "idle" {
		t.Errorf("state %q, want idle", rk.State.String)
	}
}

func TestUserRepository_HistoryAppendOnly(t *testing.T) {
	env := NewTestEnv(t)
	defer env.Close()
	ctx := context.Background()

	if _, err := env.Users.Create(ctx, "card-1", "Sam", ""); err != nil {
		t.Fatalf("create user: %v", err)
	}

	base := time.Now().UTC().Truncate(time.Second)
	if err := env.Users.AppendHistory(ctx, "card-1", "bike-1", "rack-1", "undock", base); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := env.Users.AppendHistory(ctx, "card-1", "bike-1", "rack-2", "dock", base.Add(time.Hour)); err != nil {
		t.Fatalf("append: %v", err)
	}

	entries, err := env.Users.History(ctx, "card-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	// Newest first.
	if entries[0].Action != "dock" || entries[1].Action != "undock" {
		t.Errorf("unexpected order: %+v", entries)
	}
}

func TestBikeRepository_CountAvailable(t *testing.T) {
	env := NewTestEnv(t)
	defer env.Close()
	ctx := context.Background()

	if _, err := env.Bikes.Create(ctx, "bike-1", strPtr("rack-1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.Bikes.Create(ctx, "bike-2", strPtr("rack-2")); err != nil {
		t.Fatalf("create: %v", err)
	}

	n, err := env.Bikes.CountAvailable(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 available, got %d", n)
	}

	if _, err := env.Bikes.Undock(ctx, "bike-1", "rack-1", "card-1"); err != nil {
		t.Fatalf("undock: %v", err)
	}
	n, err = env.Bikes.CountAvailable(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 available, got %d", n)
	}
}

func strPtr(s string) *string {
	return &s
}
