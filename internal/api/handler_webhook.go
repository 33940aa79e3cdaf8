package api

import (
	"net/http"

	"github.com/geogrid-ipam/geogrid/internal/service"
)

type registerWebhookRequest struct {
	UserID string   `json:"user_id"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

// HandleRegisterWebhook returns a handler for POST /api/v1/webhooks.
func HandleRegisterWebhook(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerWebhookRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		wh, err := cp.RegisterWebhook(req.UserID, req.URL, req.Events)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, wh)
	}
}

// HandleListWebhooks returns a handler for GET /api/v1/webhooks.
func HandleListWebhooks(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := cp.ListWebhooks(r.URL.Query().Get("user_id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}

		pg, ok := parsePaginationOrWriteInvalid(w, r)
		if !ok {
			return
		}
		WritePage(w, http.StatusOK, out, pg)
	}
}

// HandleDeleteWebhook returns a handler for DELETE /api/v1/webhooks/{id}.
// Ownership comes from the user_id query parameter.
func HandleDeleteWebhook(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requireUUIDPathParam(w, r, "id", "webhook_id")
		if !ok {
			return
		}
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			writeInvalidArgument(w, "user_id: must not be empty")
			return
		}
		if err := cp.DeleteWebhook(id, userID); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleListWebhookDeliveries returns a handler for GET /api/v1/webhooks/{id}/deliveries.
func HandleListWebhookDeliveries(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requireUUIDPathParam(w, r, "id", "webhook_id")
		if !ok {
			return
		}
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			writeInvalidArgument(w, "user_id: must not be empty")
			return
		}
		limit, ok := parseIntQueryOrWriteInvalid(w, r, "limit", defaultPageLimit)
		if !ok {
			return
		}
		out, err := cp.ListWebhookDeliveries(id, userID, limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, out)
	}
}
