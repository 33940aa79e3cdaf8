// Package audit records the append-only action ledger. Every mutating
// operation writes one entry carrying a JSON snapshot of the resource as it
// looked after the action, plus an xxh3 checksum of that snapshot so later
// tampering is detectable.
package audit

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"

	"github.com/geogrid-ipam/geogrid/internal/model"
	"github.com/geogrid-ipam/geogrid/internal/state"
)

// Recorder writes audit entries through the persistence layer.
type Recorder struct {
	repo *state.Repo

	// nowFn overrides the clock in tests.
	nowFn func() time.Time
}

func NewRecorder(repo *state.Repo) *Recorder {
	return &Recorder{repo: repo, nowFn: time.Now}
}

// Entry describes one action to record. Snapshot is marshalled to JSON and
// checksummed; a nil Snapshot records an empty object.
type Entry struct {
	UserID       string
	ActionType   string
	ResourceType string
	ResourceID   string
	Snapshot     any
	Reason       string
	Automated    bool
}

// Record appends one entry to the ledger. An audit write failure never fails
// the action that triggered it; the error is logged and swallowed.
func (r *Recorder) Record(e Entry) {
	if err := r.record(e); err != nil {
		log.Printf("[audit] record %s %s/%s failed: %v", e.ActionType, e.ResourceType, e.ResourceID, err)
	}
}

func (r *Recorder) record(e Entry) error {
	snapshot := "{}"
	if e.Snapshot != nil {
		data, err := json.Marshal(e.Snapshot)
		if err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}
		snapshot = string(data)
	}

	return r.repo.AppendAudit(model.AuditEntry{
		ID:           uuid.NewString(),
		UserID:       e.UserID,
		ActionType:   e.ActionType,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		SnapshotJSON: snapshot,
		SnapshotHash: SnapshotHash(snapshot),
		Reason:       e.Reason,
		Automated:    e.Automated,
		CreatedAtNs:  r.nowFn().UnixNano(),
	})
}

// List returns ledger entries matching the filter, newest first.
func (r *Recorder) List(f state.AuditFilter) ([]model.AuditEntry, error) {
	return r.repo.ListAudit(f)
}

// PurgeOlderThan removes entries past the retention horizon and returns the
// number removed.
func (r *Recorder) PurgeOlderThan(retention time.Duration) (int64, error) {
	cutoff := r.nowFn().Add(-retention).UnixNano()
	return r.repo.PurgeAuditBefore(cutoff)
}

// SnapshotHash returns the hex xxh3 checksum of a snapshot document.
func SnapshotHash(snapshot string) string {
	return fmt.Sprintf("%016x", xxh3.HashString(snapshot))
}

// Verify recomputes the checksum of an entry's snapshot and reports whether
// it matches the stored hash.
func Verify(e model.AuditEntry) bool {
	return SnapshotHash(e.SnapshotJSON) == e.SnapshotHash
}
