package api

import (
	"net/http"

	"github.com/geogrid-ipam/geogrid/internal/service"
)

// HandleCountryCapacity returns a handler for GET /api/v1/capacity/countries/{country}.
func HandleCountryCapacity(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := cp.CountryStats(PathParam(r, "country"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, stats)
	}
}

// HandleTopCountries returns a handler for GET /api/v1/capacity/top.
func HandleTopCountries(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, ok := parseIntQueryOrWriteInvalid(w, r, "n", 10)
		if !ok {
			return
		}
		out, err := cp.TopCountries(n)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, out)
	}
}
