package user

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// User is a registered rider. Credential is the RFID tag value the rack
// reads from the rider's card; it is what the wire protocol calls user_id.
type User struct {
	ID         uuid.UUID      `db:"id"`
	Credential string         `db:"credential"`
	Name       sql.NullString `db:"name"`
	Email      sql.NullString `db:"email"`
	CreatedAt  time.Time      `db:"created_at"`
}

// HistoryEntry is one append-only record of an authorized dock or undock.
type HistoryEntry struct {
	ID         int64     `db:"id"`
	Credential string    `db:"credential"`
	BikeLabel  string    `db:"bike_label"`
	RackLabel  string    `db:"rack_label"`
	Action     string    `db:"action"`
	RecordedAt time.Time `db:"recorded_at"`
}
