package alloc

import "fmt"

// CapacityExhaustedError means no free address tuple remains in the scanned
// scope. It is terminal for the call; the caller must pick another country or
// region, not retry.
type CapacityExhaustedError struct {
	Scope string // country name or region ID
}

func (e *CapacityExhaustedError) Error() string {
	return fmt.Sprintf("capacity exhausted in %s", e.Scope)
}

// AddressConflictError means every remaining candidate was claimed by
// concurrent writers while this call was scanning. Z is -1 for region scans.
type AddressConflictError struct {
	X, Y, Z int
}

func (e *AddressConflictError) Error() string {
	if e.Z < 0 {
		return fmt.Sprintf("lost concurrent claim at (%d,%d)", e.X, e.Y)
	}
	return fmt.Sprintf("lost concurrent claim at (%d,%d,%d)", e.X, e.Y, e.Z)
}

// RegionNotActiveError means a host allocation targeted a released region.
type RegionNotActiveError struct {
	RegionID string
}

func (e *RegionNotActiveError) Error() string {
	return fmt.Sprintf("region %s is not active", e.RegionID)
}

// NotFoundOrNotOwnedError deliberately collapses "does not exist" and "owned
// by someone else" into one answer so callers cannot probe for foreign
// resource IDs.
type NotFoundOrNotOwnedError struct {
	ResourceType string
	ResourceID   string
}

func (e *NotFoundOrNotOwnedError) Error() string {
	return fmt.Sprintf("%s %s not found or not owned by caller", e.ResourceType, e.ResourceID)
}
