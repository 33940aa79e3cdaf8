package api

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/geogrid-ipam/geogrid/internal/config"
	"github.com/geogrid-ipam/geogrid/internal/service"
)

// Server wraps the HTTP server and mux for the allocation-engine API.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer creates a new API server wired with all routes.
func NewServer(
	port int,
	adminToken string,
	systemInfo service.SystemInfo,
	envCfg *config.EnvConfig,
	cp *service.ControlPlaneService,
	apiMaxBodyBytes int64,
) *Server {
	return NewServerWithAddress("", port, adminToken, systemInfo, envCfg, cp, apiMaxBodyBytes)
}

// NewServerWithAddress creates a new API server with an explicit listen address.
func NewServerWithAddress(
	listenAddress string,
	port int,
	adminToken string,
	systemInfo service.SystemInfo,
	envCfg *config.EnvConfig,
	cp *service.ControlPlaneService,
	apiMaxBodyBytes int64,
) *Server {
	mux := http.NewServeMux()

	// Public (no auth)
	mux.Handle("GET /healthz", HandleHealthz())

	// Authenticated routes
	authed := http.NewServeMux()
	authed.Handle("GET /api/v1/system/info", HandleSystemInfo(systemInfo))
	authed.Handle("GET /api/v1/system/config/env", HandleSystemEnvConfig(envCfg))

	if cp != nil {
		authed.Handle("GET /api/v1/countries", HandleListCountries(cp))

		// Regions.
		authed.Handle("POST /api/v1/regions", HandleAllocateRegion(cp))
		authed.Handle("GET /api/v1/regions", HandleListRegions(cp))
		authed.Handle("GET /api/v1/regions/{id}", HandleGetRegion(cp))
		authed.Handle("POST /api/v1/regions/{id}/actions/release", HandleReleaseRegion(cp))
		authed.Handle("PUT /api/v1/regions/{id}/tags", HandleUpdateRegionTags(cp))

		// Hosts (allocated under regions).
		authed.Handle("POST /api/v1/regions/{id}/hosts", HandleAllocateHost(cp))
		authed.Handle("GET /api/v1/regions/{id}/hosts", HandleListHosts(cp))
		authed.Handle("GET /api/v1/hosts/{id}", HandleGetHost(cp))
		authed.Handle("POST /api/v1/hosts/{id}/actions/release", HandleReleaseHost(cp))

		// Reservations.
		authed.Handle("POST /api/v1/reservations", HandleCreateReservation(cp))
		authed.Handle("GET /api/v1/reservations", HandleListReservations(cp))
		authed.Handle("GET /api/v1/reservations/{id}", HandleGetReservation(cp))
		authed.Handle("POST /api/v1/reservations/{id}/actions/release", HandleReleaseReservation(cp))

		// Shares. Token resolution is public and registered on the outer mux.
		authed.Handle("POST /api/v1/shares", HandleCreateShare(cp))
		authed.Handle("GET /api/v1/shares", HandleListShares(cp))
		authed.Handle("POST /api/v1/shares/{id}/actions/revoke", HandleRevokeShare(cp))
		mux.Handle("GET /api/v1/shares/resolve/{token}", HandleResolveShare(cp))

		// Webhooks.
		authed.Handle("POST /api/v1/webhooks", HandleRegisterWebhook(cp))
		authed.Handle("GET /api/v1/webhooks", HandleListWebhooks(cp))
		authed.Handle("DELETE /api/v1/webhooks/{id}", HandleDeleteWebhook(cp))
		authed.Handle("GET /api/v1/webhooks/{id}/deliveries", HandleListWebhookDeliveries(cp))

		// Capacity and audit.
		authed.Handle("GET /api/v1/capacity/countries/{country}", HandleCountryCapacity(cp))
		authed.Handle("GET /api/v1/capacity/top", HandleTopCountries(cp))
		authed.Handle("GET /api/v1/audit", HandleListAudit(cp))
	}

	limitedAuthed := RequestBodyLimitMiddleware(apiMaxBodyBytes, authed)
	mux.Handle("/api/", AuthMiddleware(adminToken, limitedAuthed))

	srv := &http.Server{
		Addr:    net.JoinHostPort(listenAddress, strconv.Itoa(port)),
		Handler: mux,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
	}
}

// ListenAndServe starts the HTTP server. It blocks until the server stops.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.mux
}
