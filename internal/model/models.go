// Package model defines domain structs shared across the persistence layer.
package model

import "fmt"

// Resource lifecycle states. Regions, hosts, reservations and shares are
// soft-released: the status flips, the row stays, so audit and capacity
// accounting remain correct.
const (
	StatusActive   = "active"
	StatusReleased = "released"
	StatusExpired  = "expired"
)

// Resource types addressable by reservations and shares.
const (
	ResourceRegion  = "region"
	ResourceHost    = "host"
	ResourceCountry = "country"
)

// CountryMapping maps a country to a fixed range of the first address octet.
type CountryMapping struct {
	Continent  string `json:"continent" yaml:"continent"`
	Country    string `json:"country" yaml:"country"`
	XStart     int    `json:"x_start" yaml:"x_start"`
	XEnd       int    `json:"x_end" yaml:"x_end"`
	IsReserved bool   `json:"is_reserved" yaml:"is_reserved"`
}

// TotalBlocks returns the number of (x,y) region blocks in the mapping's range.
func (m CountryMapping) TotalBlocks() int {
	return (m.XEnd - m.XStart + 1) * 256
}

// Region is a country-scoped /16-equivalent block identified by (x,y).
type Region struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Country     string `json:"country"`
	XOctet      int    `json:"x_octet"`
	YOctet      int    `json:"y_octet"`
	CIDR        string `json:"cidr"`
	Status      string `json:"status"`
	TagsJSON    string `json:"tags_json"`
	CreatedAtNs int64  `json:"created_at_ns"`
	UpdatedAtNs int64  `json:"updated_at_ns"`
}

// Host is a single address (x,y,z) inside a region.
type Host struct {
	ID           string `json:"id"`
	RegionID     string `json:"region_id"`
	UserID       string `json:"user_id"`
	XOctet       int    `json:"x_octet"`
	YOctet       int    `json:"y_octet"`
	ZOctet       int    `json:"z_octet"`
	IPAddress    string `json:"ip_address"`
	Status       string `json:"status"`
	MetadataJSON string `json:"metadata_json"`
	CreatedAtNs  int64  `json:"created_at_ns"`
	UpdatedAtNs  int64  `json:"updated_at_ns"`
}

// Reservation is a time-bounded hold on a not-yet-allocated address tuple.
// ZOctet is nil for region reservations.
type Reservation struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	ResourceType string `json:"resource_type"`
	XOctet       int    `json:"x_octet"`
	YOctet       int    `json:"y_octet"`
	ZOctet       *int   `json:"z_octet,omitempty"`
	Status       string `json:"status"`
	Reason       string `json:"reason"`
	ExpiresAtNs  int64  `json:"expires_at_ns"`
	CreatedAtNs  int64  `json:"created_at_ns"`
}

// Share is a revocable, time-bounded read-only access token for a resource.
type Share struct {
	ID           string `json:"id"`
	Token        string `json:"token"`
	UserID       string `json:"user_id"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	IsActive     bool   `json:"is_active"`
	ViewCount    int64  `json:"view_count"`
	ExpiresAtNs  int64  `json:"expires_at_ns"`
	CreatedAtNs  int64  `json:"created_at_ns"`
}

// Webhook is a user-registered delivery endpoint for lifecycle events.
type Webhook struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	URL          string `json:"url"`
	EventsJSON   string `json:"events_json"`
	IsActive     bool   `json:"is_active"`
	FailureCount int    `json:"failure_count"`
	LastError    string `json:"last_error"`
	CreatedAtNs  int64  `json:"created_at_ns"`
	UpdatedAtNs  int64  `json:"updated_at_ns"`
}

// WebhookDelivery is one delivery attempt record. Append-only, retained 30 days.
// StatusCode 0 means the attempt never produced an HTTP response
// (timeout or transport error).
type WebhookDelivery struct {
	ID            string `json:"id"`
	WebhookID     string `json:"webhook_id"`
	EventType     string `json:"event_type"`
	StatusCode    int    `json:"status_code"`
	DeliveredAtNs int64  `json:"delivered_at_ns"`
}

// AuditEntry is one row of the append-only action ledger.
// SnapshotHash is the xxh3 checksum of SnapshotJSON, recorded at write time.
type AuditEntry struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	ActionType   string `json:"action_type"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	SnapshotJSON string `json:"snapshot_json"`
	SnapshotHash string `json:"snapshot_hash"`
	Reason       string `json:"reason"`
	Automated    bool   `json:"automated"`
	CreatedAtNs  int64  `json:"created_at_ns"`
}

// ValidationError reports malformed caller input (octet out of range,
// non-positive TTL, unknown resource type).
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// Invalid constructs a ValidationError.
func Invalid(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Msg: msg}
}

// ValidateOctet checks that v is a legal octet value.
func ValidateOctet(field string, v int) error {
	if v < 0 || v > 255 {
		return Invalid(field, fmt.Sprintf("must be in [0,255], got %d", v))
	}
	return nil
}

// ValidateResourceType checks a reservation/share resource type against the
// allowed set.
func ValidateResourceType(v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return Invalid("resource_type", fmt.Sprintf("unknown resource type %q", v))
}
