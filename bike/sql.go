package bike

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("bike not found")

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetBikes(ctx context.Context) ([]Bike, error) {
	var bikes []Bike
	err := r.db.SelectContext(ctx, &bikes, getBikes)
	return bikes, err
}

const getBikes = `SELECT * FROM bikes ORDER BY label`

func (r *Repository) GetBike(ctx context.Context, label string) (Bike, error) {
	var b Bike

	err := r.db.GetContext(ctx, &b, getBike, label)
	if errors.Is(err, sql.ErrNoRows) {
		return b, ErrNotFound
	}

	return b, err
}

const getBike = `SELECT * FROM bikes WHERE label = $1`

// GetByRider finds the bike a rider currently holds. Lock requests from
// rack firmware arrive without a bike label (the rack cannot know which
// bike a rider walks up with), so the service resolves it from here.
func (r *Repository) GetByRider(ctx context.Context, credential string) (Bike, error) {
	var b Bike

	err := r.db.GetContext(ctx, &b, getBikeByRider, credential)
	if errors.Is(err, sql.ErrNoRows) {
		return b, ErrNotFound
	}

	return b, err
}

const getBikeByRider = `SELECT * FROM bikes WHERE status = 'in_use' AND current_rider = $1`

// Create registers a new bike, optionally already docked at a rack.
func (r *Repository) Create(ctx context.Context, label string, rackLabel *string) (Bike, error) {
	var b Bike
	err := r.db.GetContext(ctx, &b, createBike, uuid.New(), label, rackLabel)
	return b, err
}

const createBike = `
INSERT INTO bikes (id, label, status, current_rider, current_rack, created_at)
VALUES ($1, $2, 'available', NULL, $3, now())
RETURNING *
`

func (r *Repository) Delete(ctx context.Context, label string) error {
	res, err := r.db.ExecContext(ctx, deleteBike, label)
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

const deleteBike = `DELETE FROM bikes WHERE label = $1`

// Undock moves a bike from docked-at-rack to in-use-by-rider as a single
// conditional update. It matches only when the bike is currently available
// at exactly the given rack; if two requests race for one bike, only one
// update matches. Returns whether the precondition held.
func (r *Repository) Undock(ctx context.Context, label, rackLabel, credential string) (bool, error) {
	res, err := r.db.ExecContext(ctx, undockBike, label, rackLabel, credential)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

const undockBike = `
UPDATE bikes
SET status = 'in_use', current_rider = $3, current_rack = NULL
WHERE label = $1 AND status = 'available' AND current_rack = $2
`

// Dock is the inverse conditional update: in-use-by-rider to
// docked-at-rack. It matches only when the given rider currently holds the
// bike. Dock with the bike's prior rack is also the compensating update for
// a successful Undock whose companion rack update failed, and vice versa.
func (r *Repository) Dock(ctx context.Context, label, rackLabel, credential string) (bool, error) {
	res, err := r.db.ExecContext(ctx, dockBike, label, rackLabel, credential)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

const dockBike = `
UPDATE bikes
SET status = 'available', current_rider = NULL, current_rack = $2
WHERE label = $1 AND status = 'in_use' AND current_rider = $3
`

// CountAvailable reports how many bikes are currently docked and free.
func (r *Repository) CountAvailable(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, countAvailable)
	return n, err
}

const countAvailable = `SELECT count(*) FROM bikes WHERE status = 'available'`
