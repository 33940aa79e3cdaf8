// Package service implements the operation-level contracts of the allocation
// engine. Handlers call its methods; business logic and error mapping live
// here, not in handlers.
package service

import (
	"errors"
	"time"

	"github.com/geogrid-ipam/geogrid/internal/alloc"
	"github.com/geogrid-ipam/geogrid/internal/audit"
	"github.com/geogrid-ipam/geogrid/internal/capacity"
	"github.com/geogrid-ipam/geogrid/internal/config"
	"github.com/geogrid-ipam/geogrid/internal/countrymap"
	"github.com/geogrid-ipam/geogrid/internal/model"
	"github.com/geogrid-ipam/geogrid/internal/quota"
	"github.com/geogrid-ipam/geogrid/internal/reservation"
	"github.com/geogrid-ipam/geogrid/internal/share"
	"github.com/geogrid-ipam/geogrid/internal/webhook"
)

// ServiceError wraps an error with a code for API response mapping.
type ServiceError struct {
	Code    string // INVALID_ARGUMENT, NOT_FOUND, CONFLICT, QUOTA_EXCEEDED, ...
	Message string
	Err     error
}

func (e *ServiceError) Error() string { return e.Message }
func (e *ServiceError) Unwrap() error { return e.Err }

func invalidArg(msg string) *ServiceError {
	return &ServiceError{Code: "INVALID_ARGUMENT", Message: msg}
}

func notFound(msg string) *ServiceError {
	return &ServiceError{Code: "NOT_FOUND", Message: msg}
}

func internal(msg string, err error) *ServiceError {
	return &ServiceError{Code: "INTERNAL", Message: msg, Err: err}
}

// mapDomainErr translates typed domain errors into ServiceErrors. Unknown
// errors become INTERNAL.
func mapDomainErr(err error) *ServiceError {
	var (
		uce *countrymap.UnknownCountryError
		qe  *quota.ExceededError
		ce  *alloc.CapacityExhaustedError
		ac  *alloc.AddressConflictError
		rac *reservation.AddressConflictError
		rna *alloc.RegionNotActiveError
		nfo *alloc.NotFoundOrNotOwnedError
		ve  *model.ValidationError
	)
	switch {
	case errors.As(err, &uce):
		return &ServiceError{Code: "UNKNOWN_COUNTRY", Message: uce.Error(), Err: err}
	case errors.As(err, &qe):
		return &ServiceError{Code: "QUOTA_EXCEEDED", Message: qe.Error(), Err: err}
	case errors.As(err, &ce):
		return &ServiceError{Code: "CAPACITY_EXHAUSTED", Message: ce.Error(), Err: err}
	case errors.As(err, &ac):
		return &ServiceError{Code: "ADDRESS_CONFLICT", Message: ac.Error(), Err: err}
	case errors.As(err, &rac):
		return &ServiceError{Code: "ADDRESS_CONFLICT", Message: rac.Error(), Err: err}
	case errors.As(err, &rna):
		return &ServiceError{Code: "REGION_NOT_ACTIVE", Message: rna.Error(), Err: err}
	case errors.As(err, &nfo):
		return &ServiceError{Code: "NOT_FOUND", Message: nfo.Error(), Err: err}
	case errors.Is(err, reservation.ErrReservationNotFound):
		return notFound("reservation not found")
	case errors.Is(err, share.ErrShareNotFound):
		return notFound("share not found")
	case errors.Is(err, share.ErrShareExpiredOrInactive):
		return &ServiceError{Code: "SHARE_EXPIRED", Message: "share expired or inactive", Err: err}
	case errors.Is(err, webhook.ErrWebhookNotFound):
		return notFound("webhook not found")
	case errors.As(err, &ve):
		return invalidArg(ve.Error())
	default:
		return internal("internal error", err)
	}
}

// SystemInfo contains version and runtime information.
type SystemInfo struct {
	Version   string    `json:"version"`
	GitCommit string    `json:"git_commit"`
	BuildTime string    `json:"build_time"`
	StartedAt time.Time `json:"started_at"`
}

// ControlPlaneService provides all allocation-engine operations.
type ControlPlaneService struct {
	Regions      *alloc.RegionAllocator
	Hosts        *alloc.HostAllocator
	Reservations *reservation.Manager
	Shares       *share.Manager
	Webhooks     *webhook.Dispatcher
	Capacity     *capacity.Aggregator
	Auditor      *audit.Recorder
	Registry     *countrymap.Registry
	EnvCfg       *config.EnvConfig
	Info         SystemInfo
}

// GetSystemInfo returns version and build metadata.
func (s *ControlPlaneService) GetSystemInfo() SystemInfo {
	return s.Info
}

// ListCountries returns the full seed table in ascending range order.
func (s *ControlPlaneService) ListCountries() []model.CountryMapping {
	return s.Registry.Mappings()
}
