package state

import (
	"fmt"

	"github.com/geogrid-ipam/geogrid/internal/model"
)

// AppendAudit inserts one audit entry. Entries are append-only.
func (r *Repo) AppendAudit(e model.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`
		INSERT INTO audit_entries (id, user_id, action_type, resource_type, resource_id,
		                           snapshot_json, snapshot_hash, reason, automated, created_at_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.UserID, e.ActionType, e.ResourceType, e.ResourceID,
		e.SnapshotJSON, e.SnapshotHash, e.Reason, e.Automated, e.CreatedAtNs)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// AuditFilter narrows ListAudit. Zero-valued fields are ignored.
type AuditFilter struct {
	UserID       string
	ActionType   string
	ResourceType string
	ResourceID   string
	SinceNs      int64
	Limit        int
}

// ListAudit returns audit entries newest-first matching the filter.
func (r *Repo) ListAudit(f AuditFilter) ([]model.AuditEntry, error) {
	query := `
		SELECT id, user_id, action_type, resource_type, resource_id,
		       snapshot_json, snapshot_hash, reason, automated, created_at_ns
		FROM audit_entries WHERE 1=1`
	var args []any
	if f.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, f.UserID)
	}
	if f.ActionType != "" {
		query += " AND action_type = ?"
		args = append(args, f.ActionType)
	}
	if f.ResourceType != "" {
		query += " AND resource_type = ?"
		args = append(args, f.ResourceType)
	}
	if f.ResourceID != "" {
		query += " AND resource_id = ?"
		args = append(args, f.ResourceID)
	}
	if f.SinceNs > 0 {
		query += " AND created_at_ns >= ?"
		args = append(args, f.SinceNs)
	}
	query += " ORDER BY created_at_ns DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.ActionType, &e.ResourceType, &e.ResourceID,
			&e.SnapshotJSON, &e.SnapshotHash, &e.Reason, &e.Automated, &e.CreatedAtNs); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// PurgeAuditBefore deletes audit entries older than cutoffNs and returns the
// number removed.
func (r *Repo) PurgeAuditBefore(cutoffNs int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.Exec(`DELETE FROM audit_entries WHERE created_at_ns < ?`, cutoffNs)
	if err != nil {
		return 0, fmt.Errorf("purge audit entries: %w", err)
	}
	return res.RowsAffected()
}
