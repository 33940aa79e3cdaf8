// Package alloc implements the scan-and-claim allocators for regions and
// hosts. The free-slot search is optimistic: candidates are taken in
// ascending address order and claimed with an insert-if-absent write; a
// uniqueness conflict from a concurrent winner advances the scan to the next
// candidate instead of failing the call. No lock is held across the scan.
package alloc

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/geogrid-ipam/geogrid/internal/audit"
	"github.com/geogrid-ipam/geogrid/internal/countrymap"
	"github.com/geogrid-ipam/geogrid/internal/model"
	"github.com/geogrid-ipam/geogrid/internal/quota"
	"github.com/geogrid-ipam/geogrid/internal/state"
)

// EventPublisher receives lifecycle events for asynchronous fan-out.
// Publishing must never block or fail the originating allocation.
type EventPublisher interface {
	Publish(eventType string, payload any)
}

// Lifecycle event types emitted by the allocators.
const (
	EventRegionAllocated = "region.allocated"
	EventRegionReleased  = "region.released"
	EventHostAllocated   = "host.allocated"
	EventHostReleased    = "host.released"
)

// RegionAllocator hands out country-scoped (x,y) blocks.
type RegionAllocator struct {
	repo     *state.Repo
	registry *countrymap.Registry
	quota    *quota.Enforcer
	auditor  *audit.Recorder
	events   EventPublisher

	nowFn func() time.Time
}

func NewRegionAllocator(
	repo *state.Repo,
	registry *countrymap.Registry,
	q *quota.Enforcer,
	auditor *audit.Recorder,
	events EventPublisher,
) *RegionAllocator {
	return &RegionAllocator{
		repo:     repo,
		registry: registry,
		quota:    q,
		auditor:  auditor,
		events:   events,
		nowFn:    time.Now,
	}
}

// Allocate claims the first free (x,y) pair in the country's octet range.
// Candidates are scanned in ascending (x,y) order; a pair occupied by an
// active region or an active reservation is skipped. Returns
// CapacityExhaustedError when the whole range is occupied.
func (a *RegionAllocator) Allocate(userID, country, reason string) (*model.Region, error) {
	mapping, err := a.registry.Lookup(country)
	if err != nil {
		return nil, err
	}
	if mapping.IsReserved {
		return nil, &countrymap.UnknownCountryError{Country: country}
	}

	// Quota before any storage write, so a violation leaves no partial state.
	if _, err := a.quota.Check(userID, quota.OpRegionCreate); err != nil {
		return nil, err
	}

	occupied, err := a.repo.OccupiedRegionPairs(mapping.XStart, mapping.XEnd)
	if err != nil {
		return nil, fmt.Errorf("load occupied pairs: %w", err)
	}

	sawConflict := false
	var lastConflict state.Pair
	for x := mapping.XStart; x <= mapping.XEnd; x++ {
		for y := 0; y <= 255; y++ {
			if _, taken := occupied[state.Pair{X: x, Y: y}]; taken {
				continue
			}

			now := a.nowFn().UnixNano()
			region := model.Region{
				ID:          uuid.NewString(),
				UserID:      userID,
				Country:     country,
				XOctet:      x,
				YOctet:      y,
				CIDR:        fmt.Sprintf("%d.%d.0.0/16", x, y),
				Status:      model.StatusActive,
				TagsJSON:    "[]",
				CreatedAtNs: now,
				UpdatedAtNs: now,
			}
			err := a.repo.ClaimRegion(region)
			if errors.Is(err, state.ErrConflict) {
				// A concurrent caller won this pair. Advance to the next
				// candidate; the scan bound is the country's block count.
				sawConflict = true
				lastConflict = state.Pair{X: x, Y: y}
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("claim region (%d,%d): %w", x, y, err)
			}

			a.auditor.Record(audit.Entry{
				UserID:       userID,
				ActionType:   "region_allocated",
				ResourceType: model.ResourceRegion,
				ResourceID:   region.ID,
				Snapshot:     region,
				Reason:       reason,
			})
			a.publish(EventRegionAllocated, region)
			return &region, nil
		}
	}

	if sawConflict {
		return nil, &AddressConflictError{X: lastConflict.X, Y: lastConflict.Y, Z: -1}
	}
	return nil, &CapacityExhaustedError{Scope: country}
}

// Release flips an owned active region to released. Hosts inside the region
// are left untouched; releasing them is the caller's responsibility.
func (a *RegionAllocator) Release(regionID, userID, reason string) error {
	err := a.repo.ReleaseRegion(regionID, userID, a.nowFn().UnixNano())
	if errors.Is(err, state.ErrNotFound) {
		return &NotFoundOrNotOwnedError{ResourceType: model.ResourceRegion, ResourceID: regionID}
	}
	if err != nil {
		return fmt.Errorf("release region %s: %w", regionID, err)
	}

	a.auditor.Record(audit.Entry{
		UserID:       userID,
		ActionType:   "region_released",
		ResourceType: model.ResourceRegion,
		ResourceID:   regionID,
		Reason:       reason,
	})
	a.publish(EventRegionReleased, map[string]string{"region_id": regionID, "user_id": userID})
	return nil
}

// UpdateTags replaces an owned region's tag list.
func (a *RegionAllocator) UpdateTags(regionID, userID, tagsJSON string) error {
	err := a.repo.UpdateRegionTags(regionID, userID, tagsJSON, a.nowFn().UnixNano())
	if errors.Is(err, state.ErrNotFound) {
		return &NotFoundOrNotOwnedError{ResourceType: model.ResourceRegion, ResourceID: regionID}
	}
	return err
}

// Get returns a region by ID without an ownership check; read access is not
// restricted to the owner.
func (a *RegionAllocator) Get(regionID string) (*model.Region, error) {
	r, err := a.repo.GetRegion(regionID)
	if errors.Is(err, state.ErrNotFound) {
		return nil, &NotFoundOrNotOwnedError{ResourceType: model.ResourceRegion, ResourceID: regionID}
	}
	return r, err
}

// List returns regions matching the filter.
func (a *RegionAllocator) List(f state.RegionFilter) ([]model.Region, error) {
	return a.repo.ListRegions(f)
}

func (a *RegionAllocator) publish(eventType string, payload any) {
	if a.events != nil {
		a.events.Publish(eventType, payload)
	}
}
