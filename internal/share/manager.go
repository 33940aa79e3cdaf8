// Package share implements revocable, time-bounded read-only access tokens
// for regions, hosts and countries, plus the periodic expiration sweep.
package share

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/geogrid-ipam/geogrid/internal/audit"
	"github.com/geogrid-ipam/geogrid/internal/countrymap"
	"github.com/geogrid-ipam/geogrid/internal/model"
	"github.com/geogrid-ipam/geogrid/internal/state"
)

// ErrShareExpiredOrInactive is returned when a token resolves to a share
// that is revoked, expired, or unknown. The three cases are deliberately
// indistinguishable to the caller.
var ErrShareExpiredOrInactive = errors.New("share expired or inactive")

// ErrShareNotFound is returned when a revoke targets a share that does not
// exist or is not owned by the caller.
var ErrShareNotFound = errors.New("share not found")

// Resolved is the read-only view handed out for a valid token.
type Resolved struct {
	ResourceType string                `json:"resource_type"`
	Region       *model.Region         `json:"region,omitempty"`
	Host         *model.Host           `json:"host,omitempty"`
	Country      *model.CountryMapping `json:"country,omitempty"`
	ViewCount    int64                 `json:"view_count"`
	ExpiresAtNs  int64                 `json:"expires_at_ns"`
}

// Manager creates, resolves and revokes shares.
type Manager struct {
	repo     *state.Repo
	registry *countrymap.Registry
	auditor  *audit.Recorder
	maxTTL   time.Duration

	nowFn func() time.Time
}

func NewManager(repo *state.Repo, registry *countrymap.Registry, auditor *audit.Recorder, maxTTL time.Duration) *Manager {
	return &Manager{repo: repo, registry: registry, auditor: auditor, maxTTL: maxTTL, nowFn: time.Now}
}

// Create mints a new share token for an owned resource. Re-sharing a
// resource always produces a fresh token; revoked tokens never reactivate.
func (m *Manager) Create(userID, resourceType, resourceID string, ttl time.Duration) (*model.Share, error) {
	if err := model.ValidateResourceType(resourceType, model.ResourceRegion, model.ResourceHost, model.ResourceCountry); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		return nil, model.Invalid("ttl", "must be positive")
	}
	if m.maxTTL > 0 && ttl > m.maxTTL {
		return nil, model.Invalid("ttl", fmt.Sprintf("exceeds maximum %s", m.maxTTL))
	}
	if err := m.checkOwnership(userID, resourceType, resourceID); err != nil {
		return nil, err
	}

	now := m.nowFn()
	s := model.Share{
		ID:           uuid.NewString(),
		Token:        uuid.NewString(),
		UserID:       userID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IsActive:     true,
		ExpiresAtNs:  now.Add(ttl).UnixNano(),
		CreatedAtNs:  now.UnixNano(),
	}
	if err := m.repo.CreateShare(s); err != nil {
		return nil, fmt.Errorf("create share: %w", err)
	}

	m.auditor.Record(audit.Entry{
		UserID:       userID,
		ActionType:   "share_created",
		ResourceType: "share",
		ResourceID:   s.ID,
		Snapshot:     s,
	})
	return &s, nil
}

func (m *Manager) checkOwnership(userID, resourceType, resourceID string) error {
	switch resourceType {
	case model.ResourceRegion:
		r, err := m.repo.GetRegion(resourceID)
		if errors.Is(err, state.ErrNotFound) {
			return ErrShareNotFound
		}
		if err != nil {
			return err
		}
		if r.UserID != userID {
			return ErrShareNotFound
		}
	case model.ResourceHost:
		h, err := m.repo.GetHost(resourceID)
		if errors.Is(err, state.ErrNotFound) {
			return ErrShareNotFound
		}
		if err != nil {
			return err
		}
		if h.UserID != userID {
			return ErrShareNotFound
		}
	case model.ResourceCountry:
		// Countries are shared infrastructure, not owned resources. Any
		// caller may share one as long as it is a known allocatable range.
		cm, err := m.registry.Lookup(resourceID)
		if err != nil {
			return err
		}
		if cm.IsReserved {
			return &countrymap.UnknownCountryError{Country: resourceID}
		}
	}
	return nil
}

// Resolve exchanges a valid token for the shared resource and atomically
// increments the share's view count. The increment and validity check are a
// single conditional update, so concurrent resolutions each count exactly
// once and never touch an invalid share.
func (m *Manager) Resolve(token string) (*Resolved, error) {
	touched, err := m.repo.TouchShare(token, m.nowFn().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("touch share: %w", err)
	}
	if !touched {
		return nil, ErrShareExpiredOrInactive
	}

	s, err := m.repo.GetShareByToken(token)
	if errors.Is(err, state.ErrNotFound) {
		return nil, ErrShareExpiredOrInactive
	}
	if err != nil {
		return nil, err
	}

	out := &Resolved{
		ResourceType: s.ResourceType,
		ViewCount:    s.ViewCount,
		ExpiresAtNs:  s.ExpiresAtNs,
	}
	switch s.ResourceType {
	case model.ResourceRegion:
		out.Region, err = m.repo.GetRegion(s.ResourceID)
	case model.ResourceHost:
		out.Host, err = m.repo.GetHost(s.ResourceID)
	case model.ResourceCountry:
		var mapping model.CountryMapping
		mapping, err = m.registry.Lookup(s.ResourceID)
		if err == nil {
			out.Country = &mapping
		}
	}
	if err != nil {
		return nil, fmt.Errorf("load shared resource: %w", err)
	}
	return out, nil
}

// Revoke immediately deactivates an owned share.
func (m *Manager) Revoke(shareID, userID string) error {
	err := m.repo.RevokeShare(shareID, userID)
	if errors.Is(err, state.ErrNotFound) {
		return ErrShareNotFound
	}
	if err != nil {
		return fmt.Errorf("revoke share %s: %w", shareID, err)
	}

	m.auditor.Record(audit.Entry{
		UserID:       userID,
		ActionType:   "share_revoked",
		ResourceType: "share",
		ResourceID:   shareID,
	})
	return nil
}

// List returns a user's shares.
func (m *Manager) List(userID string) ([]model.Share, error) {
	return m.repo.ListShares(userID)
}
