package api

import (
	"net/http"

	"github.com/geogrid-ipam/geogrid/internal/config"
	"github.com/geogrid-ipam/geogrid/internal/service"
)

type createReservationRequest struct {
	UserID       string          `json:"user_id"`
	ResourceType string          `json:"resource_type"`
	XOctet       int             `json:"x_octet"`
	YOctet       int             `json:"y_octet"`
	ZOctet       *int            `json:"z_octet,omitempty"`
	TTL          config.Duration `json:"ttl"`
	Reason       string          `json:"reason"`
}

type releaseReservationRequest struct {
	UserID string `json:"user_id"`
}

// HandleCreateReservation returns a handler for POST /api/v1/reservations.
func HandleCreateReservation(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createReservationRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		res, err := cp.CreateReservation(
			req.UserID, req.ResourceType, req.XOctet, req.YOctet, req.ZOctet, req.TTL.Std(), req.Reason)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, res)
	}
}

// HandleListReservations returns a handler for GET /api/v1/reservations.
func HandleListReservations(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		out, err := cp.ListReservations(q.Get("user_id"), q.Get("status"))
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

// HandleGetReservation returns a handler for GET /api/v1/reservations/{id}.
func HandleGetReservation(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requireUUIDPathParam(w, r, "id", "reservation_id")
		if !ok {
			return
		}
		res, err := cp.GetReservation(id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, res)
	}
}

// HandleReleaseReservation returns a handler for POST /api/v1/reservations/{id}/actions/release.
func HandleReleaseReservation(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requireUUIDPathParam(w, r, "id", "reservation_id")
		if !ok {
			return
		}
		var req releaseReservationRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		if err := cp.ReleaseReservation(id, req.UserID); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
