// Package bike
package bike

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	// StatusAvailable means the bike is docked at a rack and may be taken.
	StatusAvailable Status = "available"
	// StatusInUse means a rider holds the bike; it is docked nowhere.
	StatusInUse Status = "in_use"
)

// Bike represents a bike tracked by the fleet. A bike is in exactly one of
// "docked at a rack" or "in use by a rider", never both: CurrentRack is set
// iff the status is available, CurrentUser is set iff the status is in_use.
type Bike struct {
	// ID is an internal identifier for a bike
	ID uuid.UUID `db:"id"`
	// Label is the physical tag value on the bike frame. It is what the
	// rack's tag reader reports and what the wire protocol calls bike_id.
	Label string `db:"label"`

	Status Status `db:"status"`

	// CurrentUser is the credential of the rider holding the bike.
	CurrentUser sql.NullString `db:"current_rider"`
	// CurrentRack is the label of the rack the bike is docked at.
	CurrentRack sql.NullString `db:"current_rack"`

	CreatedAt time.Time `db:"created_at"`
}
