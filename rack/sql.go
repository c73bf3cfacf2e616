package rack

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("rack not found")

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetRacks(ctx context.Context) ([]Rack, error) {
	var racks []Rack
	err := r.db.SelectContext(ctx, &racks, getRacks)
	return racks, err
}

const getRacks = `SELECT * FROM racks ORDER BY label`

func (r *Repository) GetRack(ctx context.Context, label string) (Rack, error) {
	var rk Rack

	err := r.db.GetContext(ctx, &rk, getRack, label)
	if errors.Is(err, sql.ErrNoRows) {
		return rk, ErrNotFound
	}

	return rk, err
}

const getRack = `SELECT * FROM racks WHERE label = $1`

func (r *Repository) Create(ctx context.Context, label string, stationID *string) (Rack, error) {
	var rk Rack
	err := r.db.GetContext(ctx, &rk, createRack, uuid.New(), label, stationID)
	return rk, err
}

const createRack = `
INSERT INTO racks (id, label, occupied_by, station_id)
VALUES ($1, $2, NULL, $3)
RETURNING *
`

func (r *Repository) Delete(ctx context.Context, label string) error {
	res, err := r.db.ExecContext(ctx, deleteRack, label)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const deleteRack = `DELETE FROM racks WHERE label = $1`

// Occupy marks the rack as holding the given bike, but only if it is
// currently empty. Returns whether the precondition held. Occupy is also
// the compensating update for a Vacate that has to be undone.
func (r *Repository) Occupy(ctx context.Context, label, bikeLabel string) (bool, error) {
	res, err := r.db.ExecContext(ctx, occupyRack, label, bikeLabel)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

const occupyRack = `
UPDATE racks SET occupied_by = $2
WHERE label = $1 AND occupied_by IS NULL
`

// Vacate clears the rack's occupancy, but only if it currently holds
// exactly the given bike.
func (r *Repository) Vacate(ctx context.Context, label, bikeLabel string) (bool, error) {
	res, err := r.db.ExecContext(ctx, vacateRack, label, bikeLabel)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

const vacateRack = `
UPDATE racks SET occupied_by = NULL
WHERE label = $1 AND occupied_by = $2
`

// Touch records a heartbeat: when the rack was last heard from and which
// state its session machine reported.
func (r *Repository) Touch(ctx context.Context, label, state string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, touchRack, label, state, at)
	return err
}

const touchRack = `UPDATE racks SET last_seen = $3, state = $2 WHERE label = $1`
