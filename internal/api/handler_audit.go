package api

import (
	"net/http"
	"strconv"

	"github.com/geogrid-ipam/geogrid/internal/service"
	"github.com/geogrid-ipam/geogrid/internal/state"
)

// HandleListAudit returns a handler for GET /api/v1/audit.
// Entries come back newest first; since_ns bounds the range from below.
func HandleListAudit(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := state.AuditFilter{
			UserID:       q.Get("user_id"),
			ActionType:   q.Get("action_type"),
			ResourceType: q.Get("resource_type"),
			ResourceID:   q.Get("resource_id"),
		}
		if v := q.Get("since_ns"); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n < 0 {
				writeInvalidArgument(w, "since_ns: must be a non-negative integer")
				return
			}
			f.SinceNs = n
		}
		limit, ok := parseIntQueryOrWriteInvalid(w, r, "limit", defaultPageLimit)
		if !ok {
			return
		}
		f.Limit = limit

		out, err := cp.ListAudit(f)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, out)
	}
}
