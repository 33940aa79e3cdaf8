package api

import (
	"net/http"

	"github.com/geogrid-ipam/geogrid/internal/model"
	"github.com/geogrid-ipam/geogrid/internal/service"
)

type allocateRegionRequest struct {
	UserID  string `json:"user_id"`
	Country string `json:"country"`
	Reason  string `json:"reason"`
}

type releaseRequest struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

type updateTagsRequest struct {
	UserID string   `json:"user_id"`
	Tags   []string `json:"tags"`
}

// HandleAllocateRegion returns a handler for POST /api/v1/regions.
func HandleAllocateRegion(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req allocateRegionRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		region, err := cp.AllocateRegion(req.UserID, req.Country, req.Reason)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, region)
	}
}

// HandleListRegions returns a handler for GET /api/v1/regions.
func HandleListRegions(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		regions, err := cp.ListRegions(q.Get("user_id"), q.Get("country"), q.Get("status"))
		if err != nil {
			writeServiceError(w, err)
			return
		}

		sorting, ok := parseSortingOrWriteInvalid(w, r, []string{"cidr", "id", "country"}, "cidr", "asc")
		if !ok {
			return
		}
		SortSlice(regions, sorting, func(rg model.Region) string {
			switch sorting.SortBy {
			case "id":
				return rg.ID
			case "country":
				return rg.Country
			default:
				return rg.CIDR
			}
		})

		pg, ok := parsePaginationOrWriteInvalid(w, r)
		if !ok {
			return
		}
		WritePage(w, http.StatusOK, regions, pg)
	}
}

// HandleGetRegion returns a handler for GET /api/v1/regions/{id}.
func HandleGetRegion(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requireUUIDPathParam(w, r, "id", "region_id")
		if !ok {
			return
		}
		region, err := cp.GetRegion(id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, region)
	}
}

// HandleReleaseRegion returns a handler for POST /api/v1/regions/{id}/actions/release.
func HandleReleaseRegion(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requireUUIDPathParam(w, r, "id", "region_id")
		if !ok {
			return
		}
		var req releaseRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		if err := cp.ReleaseRegion(id, req.UserID, req.Reason); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleUpdateRegionTags returns a handler for PUT /api/v1/regions/{id}/tags.
func HandleUpdateRegionTags(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requireUUIDPathParam(w, r, "id", "region_id")
		if !ok {
			return
		}
		var req updateTagsRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		if err := cp.UpdateRegionTags(id, req.UserID, req.Tags); err != nil {
			writeServiceError(w, err)
			return
		}
		region, err := cp.GetRegion(id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, region)
	}
}
