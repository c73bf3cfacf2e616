// Package auth implements the server side of the lock/unlock protocol: one
// inbound authorization request in, exactly one reply out, with the
// accept/deny decision made by a conditional state transition against the
// store. The store's per-statement atomicity is the only concurrency
// control; when two requests race for the same bike, one conditional update
// matches and the other is denied.
package auth

import (
	"context"
	"time"

	"github.com/smartpedals/rackshare-backend/bike"
	"github.com/smartpedals/rackshare-backend/user"
)

// Reason tags why a request was denied. Reasons are for logs and metrics
// only; the wire reply carries just accept or deny.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonMalformed       Reason = "malformed"
	ReasonUnknownUser     Reason = "unknown_user"
	ReasonUnknownBike     Reason = "unknown_bike"
	ReasonStaleTimestamp  Reason = "stale_timestamp"
	ReasonBikeUnavailable Reason = "bike_unavailable"
	ReasonNotRider        Reason = "not_rider"
	ReasonRackConflict    Reason = "rack_conflict"
	ReasonUnknownAction   Reason = "unknown_action"
	ReasonInternal        Reason = "internal"
)

// BikeStore is the slice of the bike repository the transaction needs: an
// existence check plus the two conditional transitions. Undock and Dock are
// each other's compensating update.
type BikeStore interface {
	GetBike(ctx context.Context, label string) (bike.Bike, error)
	GetByRider(ctx context.Context, credential string) (bike.Bike, error)
	Undock(ctx context.Context, label, rackLabel, credential string) (bool, error)
	Dock(ctx context.Context, label, rackLabel, credential string) (bool, error)
}

// RackStore covers the companion occupancy updates. Occupy and Vacate are
// each other's compensating update.
type RackStore interface {
	Occupy(ctx context.Context, label, bikeLabel string) (bool, error)
	Vacate(ctx context.Context, label, bikeLabel string) (bool, error)
}

// UserStore resolves credentials and records the ride history.
type UserStore interface {
	GetByCredential(ctx context.Context, credential string) (user.User, error)
	AppendHistory(ctx context.Context, credential, bikeLabel, rackLabel, action string, at time.Time) error
}
