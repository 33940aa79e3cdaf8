package api

import (
	"net/http"

	"github.com/geogrid-ipam/geogrid/internal/service"
)

type allocateHostRequest struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

// HandleAllocateHost returns a handler for POST /api/v1/regions/{id}/hosts.
func HandleAllocateHost(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		regionID, ok := requireUUIDPathParam(w, r, "id", "region_id")
		if !ok {
			return
		}
		var req allocateHostRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		host, err := cp.AllocateHost(req.UserID, regionID, req.Reason)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, host)
	}
}

// HandleListHosts returns a handler for GET /api/v1/regions/{id}/hosts.
func HandleListHosts(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		regionID, ok := requireUUIDPathParam(w, r, "id", "region_id")
		if !ok {
			return
		}
		hosts, err := cp.ListHosts(regionID, r.URL.Query().Get("status"))
		if err != nil {
			writeServiceError(w, err)
			return
		}

		pg, ok := parsePaginationOrWriteInvalid(w, r)
		if !ok {
			return
		}
		WritePage(w, http.StatusOK, hosts, pg)
	}
}

// HandleGetHost returns a handler for GET /api/v1/hosts/{id}.
func HandleGetHost(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requireUUIDPathParam(w, r, "id", "host_id")
		if !ok {
			return
		}
		host, err := cp.GetHost(id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, host)
	}
}

// HandleReleaseHost returns a handler for POST /api/v1/hosts/{id}/actions/release.
func HandleReleaseHost(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requireUUIDPathParam(w, r, "id", "host_id")
		if !ok {
			return
		}
		var req releaseRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		if err := cp.ReleaseHost(id, req.UserID, req.Reason); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
