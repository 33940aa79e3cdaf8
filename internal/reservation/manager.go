// Package reservation implements time-bounded holds on address tuples and
// the periodic expiration sweep that reclaims them.
package reservation

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/geogrid-ipam/geogrid/internal/audit"
	"github.com/geogrid-ipam/geogrid/internal/model"
	"github.com/geogrid-ipam/geogrid/internal/state"
)

// ErrReservationNotFound is returned when a release targets a reservation
// that does not exist, is not owned by the caller, or is no longer active.
var ErrReservationNotFound = errors.New("reservation not found")

// AddressConflictError means the requested tuple is already held by an
// active region, host or reservation.
type AddressConflictError struct {
	X, Y int
	Z    *int
}

func (e *AddressConflictError) Error() string {
	if e.Z != nil {
		return fmt.Sprintf("address (%d,%d,%d) already held", e.X, e.Y, *e.Z)
	}
	return fmt.Sprintf("address (%d,%d) already held", e.X, e.Y)
}

// Manager creates and releases reservations.
type Manager struct {
	repo    *state.Repo
	auditor *audit.Recorder
	maxTTL  time.Duration

	nowFn func() time.Time
}

func NewManager(repo *state.Repo, auditor *audit.Recorder, maxTTL time.Duration) *Manager {
	return &Manager{repo: repo, auditor: auditor, maxTTL: maxTTL, nowFn: time.Now}
}

// Reserve places a hold on an address tuple. z must be nil for region
// reservations and set for host reservations.
func (m *Manager) Reserve(userID, resourceType string, x, y int, z *int, ttl time.Duration, reason string) (*model.Reservation, error) {
	if err := model.ValidateResourceType(resourceType, model.ResourceRegion, model.ResourceHost); err != nil {
		return nil, err
	}
	if err := model.ValidateOctet("x", x); err != nil {
		return nil, err
	}
	if err := model.ValidateOctet("y", y); err != nil {
		return nil, err
	}
	switch resourceType {
	case model.ResourceRegion:
		if z != nil {
			return nil, model.Invalid("z", "must be omitted for region reservations")
		}
	case model.ResourceHost:
		if z == nil {
			return nil, model.Invalid("z", "required for host reservations")
		}
		if err := model.ValidateOctet("z", *z); err != nil {
			return nil, err
		}
	}
	if ttl <= 0 {
		return nil, model.Invalid("ttl", "must be positive")
	}
	if m.maxTTL > 0 && ttl > m.maxTTL {
		return nil, model.Invalid("ttl", fmt.Sprintf("exceeds maximum %s", m.maxTTL))
	}

	now := m.nowFn()
	res := model.Reservation{
		ID:           uuid.NewString(),
		UserID:       userID,
		ResourceType: resourceType,
		XOctet:       x,
		YOctet:       y,
		ZOctet:       z,
		Status:       model.StatusActive,
		Reason:       reason,
		ExpiresAtNs:  now.Add(ttl).UnixNano(),
		CreatedAtNs:  now.UnixNano(),
	}
	err := m.repo.CreateReservation(res)
	if errors.Is(err, state.ErrConflict) {
		return nil, &AddressConflictError{X: x, Y: y, Z: z}
	}
	if err != nil {
		return nil, fmt.Errorf("create reservation: %w", err)
	}

	m.auditor.Record(audit.Entry{
		UserID:       userID,
		ActionType:   "reservation_created",
		ResourceType: "reservation",
		ResourceID:   res.ID,
		Snapshot:     res,
		Reason:       reason,
	})
	return &res, nil
}

// Release flips an owned active reservation to released, freeing its tuple.
func (m *Manager) Release(reservationID, userID string) error {
	err := m.repo.ReleaseReservation(reservationID, userID)
	if errors.Is(err, state.ErrNotFound) {
		return ErrReservationNotFound
	}
	if err != nil {
		return fmt.Errorf("release reservation %s: %w", reservationID, err)
	}

	m.auditor.Record(audit.Entry{
		UserID:       userID,
		ActionType:   "reservation_released",
		ResourceType: "reservation",
		ResourceID:   reservationID,
	})
	return nil
}

// Get returns a reservation by ID.
func (m *Manager) Get(reservationID string) (*model.Reservation, error) {
	r, err := m.repo.GetReservation(reservationID)
	if errors.Is(err, state.ErrNotFound) {
		return nil, ErrReservationNotFound
	}
	return r, err
}

// List returns a user's reservations, optionally filtered by status.
func (m *Manager) List(userID, status string) ([]model.Reservation, error) {
	return m.repo.ListReservations(userID, status)
}
