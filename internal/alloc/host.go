package alloc

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/geogrid-ipam/geogrid/internal/audit"
	"github.com/geogrid-ipam/geogrid/internal/model"
	"github.com/geogrid-ipam/geogrid/internal/quota"
	"github.com/geogrid-ipam/geogrid/internal/state"
)

// HostAllocator hands out single (x,y,z) addresses inside an active region.
type HostAllocator struct {
	repo    *state.Repo
	quota   *quota.Enforcer
	auditor *audit.Recorder
	events  EventPublisher

	nowFn func() time.Time
}

func NewHostAllocator(
	repo *state.Repo,
	q *quota.Enforcer,
	auditor *audit.Recorder,
	events EventPublisher,
) *HostAllocator {
	return &HostAllocator{
		repo:    repo,
		quota:   q,
		auditor: auditor,
		events:  events,
		nowFn:   time.Now,
	}
}

// Allocate claims the first free z octet inside the caller's active region,
// scanning ascending. The same optimistic claim discipline as the region
// scan applies, bounded by the 256 z candidates.
func (a *HostAllocator) Allocate(userID, regionID, reason string) (*model.Host, error) {
	region, err := a.repo.GetRegion(regionID)
	if errors.Is(err, state.ErrNotFound) {
		return nil, &NotFoundOrNotOwnedError{ResourceType: model.ResourceRegion, ResourceID: regionID}
	}
	if err != nil {
		return nil, fmt.Errorf("load region %s: %w", regionID, err)
	}
	if region.UserID != userID {
		return nil, &NotFoundOrNotOwnedError{ResourceType: model.ResourceRegion, ResourceID: regionID}
	}
	if region.Status != model.StatusActive {
		return nil, &RegionNotActiveError{RegionID: regionID}
	}

	// Host quota is scoped per region: filling one region does not spend the
	// caller's budget in another.
	if _, err := a.quota.Check(userID+"/"+regionID, quota.OpHostCreate); err != nil {
		return nil, err
	}

	occupied, err := a.repo.OccupiedHostZs(region.XOctet, region.YOctet)
	if err != nil {
		return nil, fmt.Errorf("load occupied z octets: %w", err)
	}

	sawConflict := false
	lastZ := -1
	for z := 0; z <= 255; z++ {
		if _, taken := occupied[z]; taken {
			continue
		}

		now := a.nowFn().UnixNano()
		host := model.Host{
			ID:           uuid.NewString(),
			RegionID:     regionID,
			UserID:       userID,
			XOctet:       region.XOctet,
			YOctet:       region.YOctet,
			ZOctet:       z,
			IPAddress:    fmt.Sprintf("%d.%d.%d.0", region.XOctet, region.YOctet, z),
			Status:       model.StatusActive,
			MetadataJSON: "{}",
			CreatedAtNs:  now,
			UpdatedAtNs:  now,
		}
		err := a.repo.ClaimHost(host)
		if errors.Is(err, state.ErrConflict) {
			sawConflict = true
			lastZ = z
			continue
		}
		if errors.Is(err, state.ErrRegionNotActive) {
			// The region was released after the precondition check.
			return nil, &RegionNotActiveError{RegionID: regionID}
		}
		if err != nil {
			return nil, fmt.Errorf("claim host (%d,%d,%d): %w", region.XOctet, region.YOctet, z, err)
		}

		a.auditor.Record(audit.Entry{
			UserID:       userID,
			ActionType:   "host_allocated",
			ResourceType: model.ResourceHost,
			ResourceID:   host.ID,
			Snapshot:     host,
			Reason:       reason,
		})
		a.publish(EventHostAllocated, host)
		return &host, nil
	}

	if sawConflict {
		return nil, &AddressConflictError{X: region.XOctet, Y: region.YOctet, Z: lastZ}
	}
	return nil, &CapacityExhaustedError{Scope: regionID}
}

// Release flips an owned active host to released.
func (a *HostAllocator) Release(hostID, userID, reason string) error {
	err := a.repo.ReleaseHost(hostID, userID, a.nowFn().UnixNano())
	if errors.Is(err, state.ErrNotFound) {
		return &NotFoundOrNotOwnedError{ResourceType: model.ResourceHost, ResourceID: hostID}
	}
	if err != nil {
		return fmt.Errorf("release host %s: %w", hostID, err)
	}

	a.auditor.Record(audit.Entry{
		UserID:       userID,
		ActionType:   "host_released",
		ResourceType: model.ResourceHost,
		ResourceID:   hostID,
		Reason:       reason,
	})
	a.publish(EventHostReleased, map[string]string{"host_id": hostID, "user_id": userID})
	return nil
}

// Get returns a host by ID.
func (a *HostAllocator) Get(hostID string) (*model.Host, error) {
	h, err := a.repo.GetHost(hostID)
	if errors.Is(err, state.ErrNotFound) {
		return nil, &NotFoundOrNotOwnedError{ResourceType: model.ResourceHost, ResourceID: hostID}
	}
	return h, err
}

// List returns a region's hosts, optionally filtered by status.
func (a *HostAllocator) List(regionID, status string) ([]model.Host, error) {
	return a.repo.ListHosts(regionID, status)
}

func (a *HostAllocator) publish(eventType string, payload any) {
	if a.events != nil {
		a.events.Publish(eventType, payload)
	}
}
