package api

import (
	"net/http"

	"github.com/geogrid-ipam/geogrid/internal/config"
	"github.com/geogrid-ipam/geogrid/internal/service"
)

type createShareRequest struct {
	UserID       string          `json:"user_id"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	TTL          config.Duration `json:"ttl"`
}

type revokeShareRequest struct {
	UserID string `json:"user_id"`
}

// HandleCreateShare returns a handler for POST /api/v1/shares.
func HandleCreateShare(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createShareRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		sh, err := cp.CreateShare(req.UserID, req.ResourceType, req.ResourceID, req.TTL.Std())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, sh)
	}
}

// HandleListShares returns a handler for GET /api/v1/shares.
func HandleListShares(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := cp.ListShares(r.URL.Query().Get("user_id"))
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

// HandleRevokeShare returns a handler for POST /api/v1/shares/{id}/actions/revoke.
func HandleRevokeShare(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requireUUIDPathParam(w, r, "id", "share_id")
		if !ok {
			return
		}
		var req revokeShareRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		if err := cp.RevokeShare(id, req.UserID); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleResolveShare returns a handler for GET /api/v1/shares/resolve/{token}.
// This is the one endpoint outside the admin-token gate: the share token
// itself is the credential.
func HandleResolveShare(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := PathParam(r, "token")
		resolved, err := cp.ResolveShare(token)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, resolved)
	}
}
