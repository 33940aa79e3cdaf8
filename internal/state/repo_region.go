package state

import (
	"database/sql"
	"fmt"

	"github.com/geogrid-ipam/geogrid/internal/model"
)

// ClaimRegion atomically claims the (x,y) pair for a new active region.
// Inside one transaction it verifies no active region reservation holds the
// pair, then inserts the row; the partial unique index on active (x,y) turns
// a lost race into ErrConflict. Callers advance to the next candidate on
// ErrConflict.
func (r *Repo) ClaimRegion(region model.Region) error {
	return r.inTx(func(tx *sql.Tx) error {
		var blocked int
		err := tx.QueryRow(`
			SELECT COUNT(*) FROM reservations
			WHERE status = 'active' AND resource_type = 'region'
			  AND x_octet = ? AND y_octet = ?
		`, region.XOctet, region.YOctet).Scan(&blocked)
		if err != nil {
			return fmt.Errorf("check region reservation: %w", err)
		}
		if blocked > 0 {
			return ErrConflict
		}

		_, err = tx.Exec(`
			INSERT INTO regions (id, user_id, country, x_octet, y_octet, cidr, status, tags_json,
			                     created_at_ns, updated_at_ns)
			VALUES (?, ?, ?, ?, ?, ?, 'active', ?, ?, ?)
		`, region.ID, region.UserID, region.Country, region.XOctet, region.YOctet,
			region.CIDR, region.TagsJSON, region.CreatedAtNs, region.UpdatedAtNs)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("insert region: %w", err)
		}
		return nil
	})
}

// GetRegion returns a region by ID.
func (r *Repo) GetRegion(id string) (*model.Region, error) {
	row := r.db.QueryRow(`
		SELECT id, user_id, country, x_octet, y_octet, cidr, status, tags_json,
		       created_at_ns, updated_at_ns
		FROM regions WHERE id = ?
	`, id)
	var reg model.Region
	err := row.Scan(&reg.ID, &reg.UserID, &reg.Country, &reg.XOctet, &reg.YOctet,
		&reg.CIDR, &reg.Status, &reg.TagsJSON, &reg.CreatedAtNs, &reg.UpdatedAtNs)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan region: %w", err)
	}
	return &reg, nil
}

// ReleaseRegion flips an active region owned by userID to released.
// Returns ErrNotFound if the region is absent, not owned, or not active.
func (r *Repo) ReleaseRegion(id, userID string, nowNs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.Exec(`
		UPDATE regions SET status = 'released', updated_at_ns = ?
		WHERE id = ? AND user_id = ? AND status = 'active'
	`, nowNs, id, userID)
	if err != nil {
		return fmt.Errorf("release region: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateRegionTags replaces the tags of an active region owned by userID.
func (r *Repo) UpdateRegionTags(id, userID, tagsJSON string, nowNs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.Exec(`
		UPDATE regions SET tags_json = ?, updated_at_ns = ?
		WHERE id = ? AND user_id = ? AND status = 'active'
	`, tagsJSON, nowNs, id, userID)
	if err != nil {
		return fmt.Errorf("update region tags: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// RegionFilter narrows ListRegions. Zero values mean "any".
type RegionFilter struct {
	UserID  string
	Country string
	Status  string
}

// ListRegions returns regions matching the filter in (x,y) order.
func (r *Repo) ListRegions(f RegionFilter) ([]model.Region, error) {
	query := `
		SELECT id, user_id, country, x_octet, y_octet, cidr, status, tags_json,
		       created_at_ns, updated_at_ns
		FROM regions WHERE 1=1`
	var args []any
	if f.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, f.UserID)
	}
	if f.Country != "" {
		query += " AND country = ?"
		args = append(args, f.Country)
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, f.Status)
	}
	query += " ORDER BY x_octet, y_octet"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Region
	for rows.Next() {
		var reg model.Region
		if err := rows.Scan(&reg.ID, &reg.UserID, &reg.Country, &reg.XOctet, &reg.YOctet,
			&reg.CIDR, &reg.Status, &reg.TagsJSON, &reg.CreatedAtNs, &reg.UpdatedAtNs); err != nil {
			return nil, err
		}
		result = append(result, reg)
	}
	return result, rows.Err()
}

// Pair is an (x,y) octet pair.
type Pair struct {
	X, Y int
}

// OccupiedRegionPairs returns every (x,y) pair inside [xStart,xEnd] held by
// an active region or an active region reservation.
func (r *Repo) OccupiedRegionPairs(xStart, xEnd int) (map[Pair]struct{}, error) {
	rows, err := r.db.Query(`
		SELECT x_octet, y_octet FROM regions
		WHERE status = 'active' AND x_octet BETWEEN ? AND ?
		UNION
		SELECT x_octet, y_octet FROM reservations
		WHERE status = 'active' AND resource_type = 'region' AND x_octet BETWEEN ? AND ?
	`, xStart, xEnd, xStart, xEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	occupied := make(map[Pair]struct{})
	for rows.Next() {
		var p Pair
		if err := rows.Scan(&p.X, &p.Y); err != nil {
			return nil, err
		}
		occupied[p] = struct{}{}
	}
	return occupied, rows.Err()
}

// CountActiveRegionsInRange counts active regions whose x falls in [xStart,xEnd].
func (r *Repo) CountActiveRegionsInRange(xStart, xEnd int) (int, error) {
	var n int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM regions
		WHERE status = 'active' AND x_octet BETWEEN ? AND ?
	`, xStart, xEnd).Scan(&n)
	return n, err
}

// CountBlockingRegionReservationsInRange counts active region reservations in
// [xStart,xEnd] whose pair is not also held by an active region. Together with
// CountActiveRegionsInRange this counts each blocked (x,y) pair exactly once.
func (r *Repo) CountBlockingRegionReservationsInRange(xStart, xEnd int) (int, error) {
	var n int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM reservations res
		WHERE res.status = 'active' AND res.resource_type = 'region'
		  AND res.x_octet BETWEEN ? AND ?
		  AND NOT EXISTS (
			SELECT 1 FROM regions reg
			WHERE reg.status = 'active'
			  AND reg.x_octet = res.x_octet AND reg.y_octet = res.y_octet
		  )
	`, xStart, xEnd).Scan(&n)
	return n, err
}
