package service

import (
	"strings"
	"time"

	"github.com/geogrid-ipam/geogrid/internal/model"
)

// CreateReservation places a hold on an address tuple.
func (s *ControlPlaneService) CreateReservation(userID, resourceType string, x, y int, z *int, ttl time.Duration, reason string) (*model.Reservation, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, invalidArg("user_id: must not be empty")
	}

	res, err := s.Reservations.Reserve(userID, resourceType, x, y, z, ttl, reason)
	if err != nil {
		return nil, mapDomainErr(err)
	}
	return res, nil
}

// ReleaseReservation releases an owned active reservation.
func (s *ControlPlaneService) ReleaseReservation(reservationID, userID string) error {
	if err := s.Reservations.Release(reservationID, userID); err != nil {
		return mapDomainErr(err)
	}
	return nil
}

// GetReservation returns one reservation by ID.
func (s *ControlPlaneService) GetReservation(reservationID string) (*model.Reservation, error) {
	res, err := s.Reservations.Get(reservationID)
	if err != nil {
		return nil, mapDomainErr(err)
	}
	return res, nil
}

// ListReservations returns a user's reservations, optionally by status.
func (s *ControlPlaneService) ListReservations(userID, status string) ([]model.Reservation, error) {
	out, err := s.Reservations.List(userID, status)
	if err != nil {
		return nil, internal("list reservations", err)
	}
	return out, nil
}
