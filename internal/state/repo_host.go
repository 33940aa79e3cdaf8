package state

import (
	"database/sql"
	"fmt"

	"github.com/geogrid-ipam/geogrid/internal/model"
)

// ClaimHost atomically claims the (x,y,z) tuple for a new active host.
// Mirrors ClaimRegion: region recheck, reservation check and insert in one
// transaction, with the partial unique index on active (x,y,z) turning a
// lost race into ErrConflict. The region status is re-verified here so a
// release landing between the allocator's precondition check and this
// transaction cannot place a host inside a released region.
func (r *Repo) ClaimHost(host model.Host) error {
	return r.inTx(func(tx *sql.Tx) error {
		var regionActive int
		err := tx.QueryRow(`
			SELECT COUNT(*) FROM regions WHERE id = ? AND status = 'active'
		`, host.RegionID).Scan(&regionActive)
		if err != nil {
			return fmt.Errorf("recheck region: %w", err)
		}
		if regionActive == 0 {
			return ErrRegionNotActive
		}

		var blocked int
		err = tx.QueryRow(`
			SELECT COUNT(*) FROM reservations
			WHERE status = 'active' AND resource_type = 'host'
			  AND x_octet = ? AND y_octet = ? AND z_octet = ?
		`, host.XOctet, host.YOctet, host.ZOctet).Scan(&blocked)
		if err != nil {
			return fmt.Errorf("check host reservation: %w", err)
		}
		if blocked > 0 {
			return ErrConflict
		}

		_, err = tx.Exec(`
			INSERT INTO hosts (id, region_id, user_id, x_octet, y_octet, z_octet, ip_address,
			                   status, metadata_json, created_at_ns, updated_at_ns)
			VALUES (?, ?, ?, ?, ?, ?, ?, 'active', ?, ?, ?)
		`, host.ID, host.RegionID, host.UserID, host.XOctet, host.YOctet, host.ZOctet,
			host.IPAddress, host.MetadataJSON, host.CreatedAtNs, host.UpdatedAtNs)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("insert host: %w", err)
		}
		return nil
	})
}

// GetHost returns a host by ID.
func (r *Repo) GetHost(id string) (*model.Host, error) {
	row := r.db.QueryRow(`
		SELECT id, region_id, user_id, x_octet, y_octet, z_octet, ip_address,
		       status, metadata_json, created_at_ns, updated_at_ns
		FROM hosts WHERE id = ?
	`, id)
	var h model.Host
	err := row.Scan(&h.ID, &h.RegionID, &h.UserID, &h.XOctet, &h.YOctet, &h.ZOctet,
		&h.IPAddress, &h.Status, &h.MetadataJSON, &h.CreatedAtNs, &h.UpdatedAtNs)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan host: %w", err)
	}
	return &h, nil
}

// ReleaseHost flips an active host owned by userID to released.
func (r *Repo) ReleaseHost(id, userID string, nowNs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.Exec(`
		UPDATE hosts SET status = 'released', updated_at_ns = ?
		WHERE id = ? AND user_id = ? AND status = 'active'
	`, nowNs, id, userID)
	if err != nil {
		return fmt.Errorf("release host: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListHosts returns the hosts of a region, optionally filtered by status,
// in z order.
func (r *Repo) ListHosts(regionID, status string) ([]model.Host, error) {
	query := `
		SELECT id, region_id, user_id, x_octet, y_octet, z_octet, ip_address,
		       status, metadata_json, created_at_ns, updated_at_ns
		FROM hosts WHERE region_id = ?`
	args := []any{regionID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY z_octet"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Host
	for rows.Next() {
		var h model.Host
		if err := rows.Scan(&h.ID, &h.RegionID, &h.UserID, &h.XOctet, &h.YOctet, &h.ZOctet,
			&h.IPAddress, &h.Status, &h.MetadataJSON, &h.CreatedAtNs, &h.UpdatedAtNs); err != nil {
			return nil, err
		}
		result = append(result, h)
	}
	return result, rows.Err()
}

// OccupiedHostZs returns every z octet inside region (x,y) held by an active
// host or an active host reservation.
func (r *Repo) OccupiedHostZs(x, y int) (map[int]struct{}, error) {
	rows, err := r.db.Query(`
		SELECT z_octet FROM hosts
		WHERE status = 'active' AND x_octet = ? AND y_octet = ?
		UNION
		SELECT z_octet FROM reservations
		WHERE status = 'active' AND resource_type = 'host'
		  AND x_octet = ? AND y_octet = ? AND z_octet IS NOT NULL
	`, x, y, x, y)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	occupied := make(map[int]struct{})
	for rows.Next() {
		var z int
		if err := rows.Scan(&z); err != nil {
			return nil, err
		}
		occupied[z] = struct{}{}
	}
	return occupied, rows.Err()
}

// CountActiveHosts counts active hosts in a region.
func (r *Repo) CountActiveHosts(regionID string) (int, error) {
	var n int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM hosts WHERE region_id = ? AND status = 'active'
	`, regionID).Scan(&n)
	return n, err
}
