package user

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("user not found")

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetUsers(ctx context.Context) ([]User, error) {
	var users []User
	err := r.db.SelectContext(ctx, &users, getUsers)
	return users, err
}

const getUsers = `SELECT * FROM users ORDER BY credential`

// GetByCredential resolves an RFID tag value to a registered user.
func (r *Repository) GetByCredential(ctx context.Context, credential string) (User, error) {
	var u User

	err := r.db.GetContext(ctx, &u, getByCredential, credential)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}

	return u, err
}

const getByCredential = `SELECT * FROM users WHERE credential = $1`

func (r *Repository) Create(ctx context.Context, credential, name, email string) (User, error) {
	var u User
	err := r.db.GetContext(ctx, &u, createUser, uuid.New(), credential,
		sql.NullString{String: name, Valid: name != ""},
		sql.NullString{String: email, Valid: email != ""})
	return u, err
}

const createUser = `
INSERT INTO users (id, credential, name, email, created_at)
VALUES ($1, $2, $3, $4, now())
RETURNING *
`

func (r *Repository) Delete(ctx context.Context, credential string) error {
	res, err := r.db.ExecContext(ctx, deleteUser, credential)
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

const deleteUser = `DELETE FROM users WHERE credential = $1`

// AppendHistory records an authorized dock or undock. The log is
// append-only; rows are never updated or removed.
func (r *Repository) AppendHistory(ctx context.Context, credential, bikeLabel, rackLabel, action string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, appendHistory, credential, bikeLabel, rackLabel, action, at)
	return err
}

const appendHistory = `
INSERT INTO history (credential, bike_label, rack_label, action, recorded_at)
VALUES ($1, $2, $3, $4, $5)
`

// History returns a user's ride history, newest first.
func (r *Repository) History(ctx context.Context, credential string) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	err := r.db.SelectContext(ctx, &entries, getHistory, credential)
	return entries, err
}

const getHistory = `SELECT * FROM history WHERE credential = $1 ORDER BY recorded_at DESC`
