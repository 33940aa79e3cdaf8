package state

import (
	"database/sql"
	"fmt"

	"github.com/geogrid-ipam/geogrid/internal/model"
)

// CreateShare inserts a new active share. A token collision (UUID-class
// tokens, so effectively never) surfaces as ErrConflict.
func (r *Repo) CreateShare(s model.Share) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`
		INSERT INTO shares (id, token, user_id, resource_type, resource_id,
		                    is_active, view_count, expires_at_ns, created_at_ns)
		VALUES (?, ?, ?, ?, ?, 1, 0, ?, ?)
	`, s.ID, s.Token, s.UserID, s.ResourceType, s.ResourceID, s.ExpiresAtNs, s.CreatedAtNs)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert share: %w", err)
	}
	return nil
}

// GetShare returns a share by ID.
func (r *Repo) GetShare(id string) (*model.Share, error) {
	return r.getShare("id", id)
}

// GetShareByToken returns a share by its opaque token.
func (r *Repo) GetShareByToken(token string) (*model.Share, error) {
	return r.getShare("token", token)
}

func (r *Repo) getShare(column, value string) (*model.Share, error) {
	row := r.db.QueryRow(`
		SELECT id, token, user_id, resource_type, resource_id, is_active, view_count,
		       expires_at_ns, created_at_ns
		FROM shares WHERE `+column+` = ?
	`, value)
	var s model.Share
	err := row.Scan(&s.ID, &s.Token, &s.UserID, &s.ResourceType, &s.ResourceID,
		&s.IsActive, &s.ViewCount, &s.ExpiresAtNs, &s.CreatedAtNs)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan share: %w", err)
	}
	return &s, nil
}

// TouchShare atomically increments view_count for a share that is still
// active and unexpired. Returns false when the guard matched no row (the
// share is missing, revoked or expired); the caller decides which.
func (r *Repo) TouchShare(token string, nowNs int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.Exec(`
		UPDATE shares SET view_count = view_count + 1
		WHERE token = ? AND is_active = 1 AND expires_at_ns > ?
	`, token, nowNs)
	if err != nil {
		return false, fmt.Errorf("touch share: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

// RevokeShare immediately deactivates an active share owned by userID.
func (r *Repo) RevokeShare(id, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.Exec(`
		UPDATE shares SET is_active = 0
		WHERE id = ? AND user_id = ? AND is_active = 1
	`, id, userID)
	if err != nil {
		return fmt.Errorf("revoke share: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DeactivateExpiredShare conditionally flips one overdue active share to
// inactive. Same idempotence contract as ExpireReservation.
func (r *Repo) DeactivateExpiredShare(id string, nowNs int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.Exec(`
		UPDATE shares SET is_active = 0
		WHERE id = ? AND is_active = 1 AND expires_at_ns < ?
	`, id, nowNs)
	if err != nil {
		return false, fmt.Errorf("deactivate share: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

// ListExpiredActiveShares returns active shares whose expiry is in the past,
// oldest first.
func (r *Repo) ListExpiredActiveShares(nowNs int64) ([]model.Share, error) {
	rows, err := r.db.Query(`
		SELECT id, token, user_id, resource_type, resource_id, is_active, view_count,
		       expires_at_ns, created_at_ns
		FROM shares
		WHERE is_active = 1 AND expires_at_ns < ?
		ORDER BY expires_at_ns
	`, nowNs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectShares(rows)
}

// ListShares returns the shares of a user, newest first.
func (r *Repo) ListShares(userID string) ([]model.Share, error) {
	rows, err := r.db.Query(`
		SELECT id, token, user_id, resource_type, resource_id, is_active, view_count,
		       expires_at_ns, created_at_ns
		FROM shares WHERE user_id = ?
		ORDER BY created_at_ns DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectShares(rows)
}

func collectShares(rows *sql.Rows) ([]model.Share, error) {
	var result []model.Share
	for rows.Next() {
		var s model.Share
		if err := rows.Scan(&s.ID, &s.Token, &s.UserID, &s.ResourceType, &s.ResourceID,
			&s.IsActive, &s.ViewCount, &s.ExpiresAtNs, &s.CreatedAtNs); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
