package state

import (
	"database/sql"
	"fmt"

	"github.com/geogrid-ipam/geogrid/internal/model"
)

// CreateReservation atomically places a hold on an address tuple. The
// transaction verifies the tuple is not already allocated; the partial unique
// index on active reservation tuples rejects a concurrent duplicate hold.
// Both failure modes surface as ErrConflict.
func (r *Repo) CreateReservation(res model.Reservation) error {
	return r.inTx(func(tx *sql.Tx) error {
		var taken int
		var err error
		if res.ResourceType == model.ResourceHost {
			err = tx.QueryRow(`
				SELECT COUNT(*) FROM hosts
				WHERE status = 'active' AND x_octet = ? AND y_octet = ? AND z_octet = ?
			`, res.XOctet, res.YOctet, res.ZOctet).Scan(&taken)
		} else {
			err = tx.QueryRow(`
				SELECT COUNT(*) FROM regions
				WHERE status = 'active' AND x_octet = ? AND y_octet = ?
			`, res.XOctet, res.YOctet).Scan(&taken)
		}
		if err != nil {
			return fmt.Errorf("check allocation: %w", err)
		}
		if taken > 0 {
			return ErrConflict
		}

		_, err = tx.Exec(`
			INSERT INTO reservations (id, user_id, resource_type, x_octet, y_octet, z_octet,
			                          status, reason, expires_at_ns, created_at_ns)
			VALUES (?, ?, ?, ?, ?, ?, 'active', ?, ?, ?)
		`, res.ID, res.UserID, res.ResourceType, res.XOctet, res.YOctet, res.ZOctet,
			res.Reason, res.ExpiresAtNs, res.CreatedAtNs)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("insert reservation: %w", err)
		}
		return nil
	})
}

// GetReservation returns a reservation by ID.
func (r *Repo) GetReservation(id string) (*model.Reservation, error) {
	row := r.db.QueryRow(`
		SELECT id, user_id, resource_type, x_octet, y_octet, z_octet, status, reason,
		       expires_at_ns, created_at_ns
		FROM reservations WHERE id = ?
	`, id)
	res, err := scanReservation(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan reservation: %w", err)
	}
	return res, nil
}

// ReleaseReservation flips an active reservation owned by userID to released.
func (r *Repo) ReleaseReservation(id, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.Exec(`
		UPDATE reservations SET status = 'released'
		WHERE id = ? AND user_id = ? AND status = 'active'
	`, id, userID)
	if err != nil {
		return fmt.Errorf("release reservation: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ExpireReservation conditionally flips one overdue active reservation to
// expired. Returns false when the guard matched zero rows, which makes
// overlapping sweeps idempotent: the loser of a duplicate sweep simply
// updates nothing.
func (r *Repo) ExpireReservation(id string, nowNs int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.Exec(`
		UPDATE reservations SET status = 'expired'
		WHERE id = ? AND status = 'active' AND expires_at_ns < ?
	`, id, nowNs)
	if err != nil {
		return false, fmt.Errorf("expire reservation: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

// ListExpiredActiveReservations returns active reservations whose expiry is
// in the past, oldest first.
func (r *Repo) ListExpiredActiveReservations(nowNs int64) ([]model.Reservation, error) {
	rows, err := r.db.Query(`
		SELECT id, user_id, resource_type, x_octet, y_octet, z_octet, status, reason,
		       expires_at_ns, created_at_ns
		FROM reservations
		WHERE status = 'active' AND expires_at_ns < ?
		ORDER BY expires_at_ns
	`, nowNs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReservations(rows)
}

// ListReservations returns reservations, optionally filtered by user and
// status, newest first.
func (r *Repo) ListReservations(userID, status string) ([]model.Reservation, error) {
	query := `
		SELECT id, user_id, resource_type, x_octet, y_octet, z_octet, status, reason,
		       expires_at_ns, created_at_ns
		FROM reservations WHERE 1=1`
	var args []any
	if userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at_ns DESC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReservations(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*model.Reservation, error) {
	var res model.Reservation
	var z sql.NullInt64
	err := row.Scan(&res.ID, &res.UserID, &res.ResourceType, &res.XOctet, &res.YOctet,
		&z, &res.Status, &res.Reason, &res.ExpiresAtNs, &res.CreatedAtNs)
	if err != nil {
		return nil, err
	}
	if z.Valid {
		v := int(z.Int64)
		res.ZOctet = &v
	}
	return &res, nil
}

func collectReservations(rows *sql.Rows) ([]model.Reservation, error) {
	var result []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *res)
	}
	return result, rows.Err()
}
