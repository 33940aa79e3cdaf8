package service

import (
	"encoding/json"
	"strings"

	"github.com/geogrid-ipam/geogrid/internal/model"
	"github.com/geogrid-ipam/geogrid/internal/state"
)

// AllocateRegion claims the first free block in the country's range.
func (s *ControlPlaneService) AllocateRegion(userID, country, reason string) (*model.Region, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, invalidArg("user_id: must not be empty")
	}
	if strings.TrimSpace(country) == "" {
		return nil, invalidArg("country: must not be empty")
	}

	region, err := s.Regions.Allocate(userID, country, reason)
	if err != nil {
		return nil, mapDomainErr(err)
	}
	return region, nil
}

// ReleaseRegion soft-releases an owned region.
func (s *ControlPlaneService) ReleaseRegion(regionID, userID, reason string) error {
	if err := s.Regions.Release(regionID, userID, reason); err != nil {
		return mapDomainErr(err)
	}
	return nil
}

// GetRegion returns one region by ID.
func (s *ControlPlaneService) GetRegion(regionID string) (*model.Region, error) {
	region, err := s.Regions.Get(regionID)
	if err != nil {
		return nil, mapDomainErr(err)
	}
	return region, nil
}

// ListRegions returns regions matching the filter.
func (s *ControlPlaneService) ListRegions(userID, country, status string) ([]model.Region, error) {
	regions, err := s.Regions.List(state.RegionFilter{UserID: userID, Country: country, Status: status})
	if err != nil {
		return nil, internal("list regions", err)
	}
	return regions, nil
}

// UpdateRegionTags replaces an owned region's tag list.
func (s *ControlPlaneService) UpdateRegionTags(regionID, userID string, tags []string) error {
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return invalidArg("tags: " + err.Error())
	}
	if err := s.Regions.UpdateTags(regionID, userID, string(tagsJSON)); err != nil {
		return mapDomainErr(err)
	}
	return nil
}

// AllocateHost claims the first free address inside an owned active region.
func (s *ControlPlaneService) AllocateHost(userID, regionID, reason string) (*model.Host, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, invalidArg("user_id: must not be empty")
	}
	if strings.TrimSpace(regionID) == "" {
		return nil, invalidArg("region_id: must not be empty")
	}

	host, err := s.Hosts.Allocate(userID, regionID, reason)
	if err != nil {
		return nil, mapDomainErr(err)
	}
	return host, nil
}

// ReleaseHost soft-releases an owned host.
func (s *ControlPlaneService) ReleaseHost(hostID, userID, reason string) error {
	if err := s.Hosts.Release(hostID, userID, reason); err != nil {
		return mapDomainErr(err)
	}
	return nil
}

// GetHost returns one host by ID.
func (s *ControlPlaneService) GetHost(hostID string) (*model.Host, error) {
	host, err := s.Hosts.Get(hostID)
	if err != nil {
		return nil, mapDomainErr(err)
	}
	return host, nil
}

// ListHosts returns a region's hosts, optionally filtered by status.
func (s *ControlPlaneService) ListHosts(regionID, status string) ([]model.Host, error) {
	hosts, err := s.Hosts.List(regionID, status)
	if err != nil {
		return nil, internal("list hosts", err)
	}
	return hosts, nil
}
