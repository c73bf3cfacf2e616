package rack

import (
	"database/sql"

	"github.com/google/uuid"
)

// Rack represents one physical docking point: an electromechanical lock
// with capacity for a single bike. The canonical occupancy lives here; the
// rack device itself only holds volatile session state.
type Rack struct {
	ID uuid.UUID `db:"id"`
	// Label is the rack's wire identifier (rack_id in the protocol).
	Label string `db:"label"`

	// OccupiedBy is the label of the docked bike, or NULL when free.
	// A rack holds at most one bike at a time.
	OccupiedBy sql.NullString `db:"occupied_by"`

	StationID sql.NullString `db:"station_id"`

	// LastSeen and State mirror the most recent heartbeat from the device.
	LastSeen sql.NullTime   `db:"last_seen"`
	State    sql.NullString `db:"state"`
}
