package api

import (
	"net/http"

	"github.com/geogrid-ipam/geogrid/internal/config"
	"github.com/geogrid-ipam/geogrid/internal/service"
)

// HandleSystemInfo returns a handler for GET /api/v1/system/info.
func HandleSystemInfo(info service.SystemInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, info)
	}
}

// HandleSystemEnvConfig returns a handler for GET /api/v1/system/config/env.
// The admin token is never echoed back.
func HandleSystemEnvConfig(envCfg *config.EnvConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if envCfg == nil {
			WriteJSON(w, http.StatusOK, nil)
			return
		}
		redacted := *envCfg
		redacted.AdminToken = ""
		WriteJSON(w, http.StatusOK, redacted)
	}
}

// HandleListCountries returns a handler for GET /api/v1/countries.
func HandleListCountries(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cp.ListCountries())
	}
}
