package auth

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smartpedals/rackshare-backend/bike"
	"github.com/smartpedals/rackshare-backend/user"
)

// MemStore is a test implementation of BikeStore, RackStore and UserStore
// with the same compare-and-set semantics the SQL repositories get from
// single-statement conditional updates: each operation holds one lock for
// its whole check-and-mutate, so exactly one of two racing updates matches.
type MemStore struct {
	mu      sync.Mutex
	bikes   map[string]*bike.Bike
	racks   map[string]*string // rack label -> occupying bike label
	users   map[string]user.User
	history []user.HistoryEntry

	// Error injection, one knob per operation.
	UndockErr, DockErr, OccupyErr, VacateErr, HistoryErr error
}

func NewMemStore() *MemStore {
	return &MemStore{
		bikes: make(map[string]*bike.Bike),
		racks: make(map[string]*string),
		users: make(map[string]user.User),
	}
}

// AddUser registers a credential.
func (m *MemStore) AddUser(credential string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[credential] = user.User{ID: uuid.New(), Credential: credential, CreatedAt: time.Now()}
}

// AddDockedBike creates a bike docked at rackLabel with the rack occupancy
// set to match.
func (m *MemStore) AddDockedBike(label, rackLabel string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bikes[label] = &bike.Bike{
		ID:          uuid.New(),
		Label:       label,
		Status:      bike.StatusAvailable,
		CurrentRack: sql.NullString{String: rackLabel, Valid: true},
	}
	occupant := label
	m.racks[rackLabel] = &occupant
}

// AddRiddenBike creates a bike held by credential, with no rack association.
func (m *MemStore) AddRiddenBike(label, credential string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bikes[label] = &bike.Bike{
		ID:          uuid.New(),
		Label:       label,
		Status:      bike.StatusInUse,
		CurrentUser: sql.NullString{String: credential, Valid: true},
	}
}

// AddRack creates an empty rack, or one occupied by bikeLabel if non-empty.
func (m *MemStore) AddRack(label, bikeLabel string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bikeLabel == "" {
		m.racks[label] = nil
		return
	}
	m.racks[label] = &bikeLabel
}

func (m *MemStore) GetBike(_ context.Context, label string) (bike.Bike, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bikes[label]
	if !ok {
		return bike.Bike{}, bike.ErrNotFound
	}
	return *b, nil
}

func (m *MemStore) GetByRider(_ context.Context, credential string) (bike.Bike, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bikes {
		if b.Status == bike.StatusInUse && b.CurrentUser.Valid && b.CurrentUser.String == credential {
			return *b, nil
		}
	}
	return bike.Bike{}, bike.ErrNotFound
}

// Bike returns a snapshot for assertions.
func (m *MemStore) Bike(label string) (bike.Bike, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bikes[label]
	if !ok {
		return bike.Bike{}, false
	}
	return *b, true
}

// RackOccupant returns the bike docked at a rack, or "" when free.
func (m *MemStore) RackOccupant(label string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	occ, ok := m.racks[label]
	if !ok || occ == nil {
		return ""
	}
	return *occ
}

func (m *MemStore) Undock(_ context.Context, label, rackLabel, credential string) (bool, error) {
	if m.UndockErr != nil {
		return false, m.UndockErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bikes[label]
	if !ok || b.Status != bike.StatusAvailable || !b.CurrentRack.Valid || b.CurrentRack.String != rackLabel {
		return false, nil
	}
	b.Status = bike.StatusInUse
	b.CurrentUser = sql.NullString{String: credential, Valid: true}
	b.CurrentRack = sql.NullString{}
	return true, nil
}

func (m *MemStore) Dock(_ context.Context, label, rackLabel, credential string) (bool, error) {
	if m.DockErr != nil {
		return false, m.DockErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bikes[label]
	if !ok || b.Status != bike.StatusInUse || !b.CurrentUser.Valid || b.CurrentUser.String != credential {
		return false, nil
	}
	b.Status = bike.StatusAvailable
	b.CurrentUser = sql.NullString{}
	b.CurrentRack = sql.NullString{String: rackLabel, Valid: true}
	return true, nil
}

func (m *MemStore) Occupy(_ context.Context, label, bikeLabel string) (bool, error) {
	if m.OccupyErr != nil {
		return false, m.OccupyErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	occ, ok := m.racks[label]
	if !ok || occ != nil {
		return false, nil
	}
	m.racks[label] = &bikeLabel
	return true, nil
}

func (m *MemStore) Vacate(_ context.Context, label, bikeLabel string) (bool, error) {
	if m.VacateErr != nil {
		return false, m.VacateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	occ, ok := m.racks[label]
	if !ok || occ == nil || *occ != bikeLabel {
		return false, nil
	}
	m.racks[label] = nil
	return true, nil
}

func (m *MemStore) GetByCredential(_ context.Context, credential string) (user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[credential]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (m *MemStore) AppendHistory(_ context.Context, credential, bikeLabel, rackLabel, action string, at time.Time) error {
	if m.HistoryErr != nil {
		return m.HistoryErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, user.HistoryEntry{
		Credential: credential,
		BikeLabel:  bikeLabel,
		RackLabel:  rackLabel,
		Action:     action,
		RecordedAt: at,
	})
	return nil
}

// History returns the appended rows for assertions.
func (m *MemStore) History() []user.HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]user.HistoryEntry(nil), m.history...)
}
