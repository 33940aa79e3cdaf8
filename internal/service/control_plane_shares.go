package service

import (
	"strings"
	"time"

	"github.com/geogrid-ipam/geogrid/internal/model"
	"github.com/geogrid-ipam/geogrid/internal/share"
)

// CreateShare mints a read-only access token for an owned resource.
func (s *ControlPlaneService) CreateShare(userID, resourceType, resourceID string, ttl time.Duration) (*model.Share, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, invalidArg("user_id: must not be empty")
	}
	if strings.TrimSpace(resourceID) == "" {
		return nil, invalidArg("resource_id: must not be empty")
	}

	sh, err := s.Shares.Create(userID, resourceType, resourceID, ttl)
	if err != nil {
		return nil, mapDomainErr(err)
	}
	return sh, nil
}

// ResolveShare exchanges a token for the shared resource. This is the one
// unauthenticated read path; it counts every successful resolution.
func (s *ControlPlaneService) ResolveShare(token string) (*share.Resolved, error) {
	if strings.TrimSpace(token) == "" {
		return nil, invalidArg("token: must not be empty")
	}
	out, err := s.Shares.Resolve(token)
	if err != nil {
		return nil, mapDomainErr(err)
	}
	return out, nil
}

// RevokeShare deactivates an owned share immediately.
func (s *ControlPlaneService) RevokeShare(shareID, userID string) error {
	if err := s.Shares.Revoke(shareID, userID); err != nil {
		return mapDomainErr(err)
	}
	return nil
}

// ListShares returns a user's shares.
func (s *ControlPlaneService) ListShares(userID string) ([]model.Share, error) {
	out, err := s.Shares.List(userID)
	if err != nil {
		return nil, internal("list shares", err)
	}
	return out, nil
}
