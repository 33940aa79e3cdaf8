package state

import (
	"database/sql"
	"fmt"

	"github.com/geogrid-ipam/geogrid/internal/model"
)

// CreateWebhook inserts a new active webhook.
func (r *Repo) CreateWebhook(w model.Webhook) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`
		INSERT INTO webhooks (id, user_id, url, events_json, is_active, failure_count,
		                      last_error, created_at_ns, updated_at_ns)
		VALUES (?, ?, ?, ?, 1, 0, '', ?, ?)
	`, w.ID, w.UserID, w.URL, w.EventsJSON, w.CreatedAtNs, w.UpdatedAtNs)
	if err != nil {
		return fmt.Errorf("insert webhook: %w", err)
	}
	return nil
}

// GetWebhook returns a webhook by ID.
func (r *Repo) GetWebhook(id string) (*model.Webhook, error) {
	row := r.db.QueryRow(`
		SELECT id, user_id, url, events_json, is_active, failure_count, last_error,
		       created_at_ns, updated_at_ns
		FROM webhooks WHERE id = ?
	`, id)
	var w model.Webhook
	err := row.Scan(&w.ID, &w.UserID, &w.URL, &w.EventsJSON, &w.IsActive,
		&w.FailureCount, &w.LastError, &w.CreatedAtNs, &w.UpdatedAtNs)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan webhook: %w", err)
	}
	return &w, nil
}

// DeleteWebhook removes a webhook owned by userID.
func (r *Repo) DeleteWebhook(id, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.Exec(`DELETE FROM webhooks WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListWebhooks returns webhooks, optionally filtered by user. activeOnly
// restricts to is_active=1.
func (r *Repo) ListWebhooks(userID string, activeOnly bool) ([]model.Webhook, error) {
	query := `
		SELECT id, user_id, url, events_json, is_active, failure_count, last_error,
		       created_at_ns, updated_at_ns
		FROM webhooks WHERE 1=1`
	var args []any
	if userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}
	if activeOnly {
		query += " AND is_active = 1"
	}
	query += " ORDER BY created_at_ns"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Webhook
	for rows.Next() {
		var w model.Webhook
		if err := rows.Scan(&w.ID, &w.UserID, &w.URL, &w.EventsJSON, &w.IsActive,
			&w.FailureCount, &w.LastError, &w.CreatedAtNs, &w.UpdatedAtNs); err != nil {
			return nil, err
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

// RecordDelivery appends one delivery attempt row.
func (r *Repo) RecordDelivery(d model.WebhookDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`
		INSERT INTO webhook_deliveries (id, webhook_id, event_type, status_code, delivered_at_ns)
		VALUES (?, ?, ?, ?, ?)
	`, d.ID, d.WebhookID, d.EventType, d.StatusCode, d.DeliveredAtNs)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

// MarkDeliverySuccess resets the failure counter after a 2xx delivery.
func (r *Repo) MarkDeliverySuccess(webhookID string, nowNs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`
		UPDATE webhooks SET failure_count = 0, last_error = '', updated_at_ns = ?
		WHERE id = ?
	`, nowNs, webhookID)
	return err
}

// MarkDeliveryFailure increments the failure counter and disables the webhook
// once the consecutive-failure threshold is reached. Returns the webhook's
// post-update active state.
func (r *Repo) MarkDeliveryFailure(webhookID, lastError string, threshold int, nowNs int64) (stillActive bool, err error) {
	err = r.inTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			UPDATE webhooks SET
				failure_count = failure_count + 1,
				last_error    = ?,
				is_active     = CASE WHEN failure_count + 1 >= ? THEN 0 ELSE is_active END,
				updated_at_ns = ?
			WHERE id = ?
		`, lastError, threshold, nowNs, webhookID)
		if err != nil {
			return fmt.Errorf("mark delivery failure: %w", err)
		}
		return tx.QueryRow(`SELECT is_active FROM webhooks WHERE id = ?`, webhookID).Scan(&stillActive)
	})
	return stillActive, err
}

// DeliveryStats returns attempt and success counts for a webhook since sinceNs.
func (r *Repo) DeliveryStats(webhookID string, sinceNs int64) (attempts, successes int, err error) {
	err = r.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status_code BETWEEN 200 AND 299 THEN 1 ELSE 0 END), 0)
		FROM webhook_deliveries
		WHERE webhook_id = ? AND delivered_at_ns >= ?
	`, webhookID, sinceNs).Scan(&attempts, &successes)
	return attempts, successes, err
}

// ListDeliveries returns the most recent delivery attempts for a webhook.
func (r *Repo) ListDeliveries(webhookID string, limit int) ([]model.WebhookDelivery, error) {
	rows, err := r.db.Query(`
		SELECT id, webhook_id, event_type, status_code, delivered_at_ns
		FROM webhook_deliveries
		WHERE webhook_id = ?
		ORDER BY delivered_at_ns DESC
		LIMIT ?
	`, webhookID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.WebhookDelivery
	for rows.Next() {
		var d model.WebhookDelivery
		if err := rows.Scan(&d.ID, &d.WebhookID, &d.EventType, &d.StatusCode, &d.DeliveredAtNs); err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

// PurgeDeliveriesBefore deletes delivery rows older than cutoffNs and returns
// the number removed.
func (r *Repo) PurgeDeliveriesBefore(cutoffNs int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.Exec(`DELETE FROM webhook_deliveries WHERE delivered_at_ns < ?`, cutoffNs)
	if err != nil {
		return 0, fmt.Errorf("purge deliveries: %w", err)
	}
	return res.RowsAffected()
}
