package service

import (
	"github.com/geogrid-ipam/geogrid/internal/capacity"
	"github.com/geogrid-ipam/geogrid/internal/model"
	"github.com/geogrid-ipam/geogrid/internal/state"
)

// CountryStats returns one country's capacity snapshot.
func (s *ControlPlaneService) CountryStats(country string) (capacity.CountryStats, error) {
	stats, err := s.Capacity.CountryStats(country)
	if err != nil {
		return capacity.CountryStats{}, mapDomainErr(err)
	}
	return stats, nil
}

// TopCountries returns the n most utilized countries.
func (s *ControlPlaneService) TopCountries(n int) ([]capacity.CountryStats, error) {
	if n <= 0 {
		return nil, invalidArg("n: must be positive")
	}
	out, err := s.Capacity.TopCountries(n)
	if err != nil {
		return nil, internal("top countries", err)
	}
	return out, nil
}

// ListAudit returns ledger entries matching the filter, newest first.
func (s *ControlPlaneService) ListAudit(f state.AuditFilter) ([]model.AuditEntry, error) {
	out, err := s.Auditor.List(f)
	if err != nil {
		return nil, internal("list audit entries", err)
	}
	return out, nil
}
