package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/geogrid-ipam/geogrid/internal/alloc"
	"github.com/geogrid-ipam/geogrid/internal/audit"
	"github.com/geogrid-ipam/geogrid/internal/capacity"
	"github.com/geogrid-ipam/geogrid/internal/config"
	"github.com/geogrid-ipam/geogrid/internal/countrymap"
	"github.com/geogrid-ipam/geogrid/internal/model"
	"github.com/geogrid-ipam/geogrid/internal/quota"
	"github.com/geogrid-ipam/geogrid/internal/reservation"
	"github.com/geogrid-ipam/geogrid/internal/service"
	"github.com/geogrid-ipam/geogrid/internal/share"
	"github.com/geogrid-ipam/geogrid/internal/state"
	"github.com/geogrid-ipam/geogrid/internal/webhook"
)

const testAdminToken = "test-admin-token"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	db, err := state.OpenDB(dir + "/ipam.db")
	if err != nil {
		t.Fatal(err)
	}
	if err := state.MigrateDB(db); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	repo := state.NewRepo(db)
	registry, err := countrymap.Default()
	if err != nil {
		t.Fatal(err)
	}
	auditor := audit.NewRecorder(repo)
	q := quota.NewEnforcer(nil)
	dispatcher := webhook.NewDispatcher(repo, webhook.Config{
		Timeout: time.Second, FailureThreshold: 3, MaxConcurrent: 2,
	})
	cp := &service.ControlPlaneService{
		Regions:      alloc.NewRegionAllocator(repo, registry, q, auditor, dispatcher),
		Hosts:        alloc.NewHostAllocator(repo, q, auditor, dispatcher),
		Reservations: reservation.NewManager(repo, auditor, 30*24*time.Hour),
		Shares:       share.NewManager(repo, registry, auditor, 30*24*time.Hour),
		Webhooks:     dispatcher,
		Capacity:     capacity.NewAggregator(repo, registry, time.Millisecond),
		Auditor:      auditor,
		Registry:     registry,
		Info: service.SystemInfo{
			Version:   "1.0.0-test",
			GitCommit: "abc123",
			BuildTime: "2026-01-01T00:00:00Z",
			StartedAt: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		},
	}
	envCfg := &config.EnvConfig{
		StateDir:   dir,
		APIPort:    8480,
		AdminToken: testAdminToken,
	}
	return NewServer(0, testAdminToken, cp.Info, envCfg, cp, 1<<20)
}

func doRequest(t *testing.T, srv *Server, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+testAdminToken)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal %q: %v", rec.Body.String(), err)
	}
	return v
}

func assertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status: got %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal error body: %v", err)
	}
	if resp.Error.Code != code {
		t.Fatalf("error code: got %s, want %s", resp.Error.Code, code)
	}
}

func TestHealthz_NoAuthRequired(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/healthz", "", false)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusOK)
	}
	body := decodeJSON[map[string]string](t, rec)
	if body["status"] != "ok" {
		t.Errorf("status field: got %q, want ok", body["status"])
	}
}

func TestAPI_RequiresAuth(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/regions", "", false)
	assertErrorCode(t, rec, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestSystemInfo(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/system/info", "", true)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusOK)
	}
	info := decodeJSON[service.SystemInfo](t, rec)
	if info.Version != "1.0.0-test" || info.GitCommit != "abc123" {
		t.Errorf("unexpected info: %+v", info)
	}
}

func TestSystemEnvConfig_RedactsAdminToken(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/system/config/env", "", true)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusOK)
	}
	if strings.Contains(rec.Body.String(), testAdminToken) {
		t.Error("env config response leaks the admin token")
	}
}

func TestListCountries(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/countries", "", true)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusOK)
	}
	countries := decodeJSON[[]model.CountryMapping](t, rec)
	if len(countries) == 0 {
		t.Fatal("expected seed countries")
	}
	if countries[0].Country != "India" {
		t.Errorf("first country: got %s, want India", countries[0].Country)
	}
}

func TestAllocateRegion_Created(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/regions",
		`{"user_id":"user-1","country":"India","reason":"deploy"}`, true)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d (body %s)", rec.Code, http.StatusCreated, rec.Body.String())
	}
	region := decodeJSON[model.Region](t, rec)
	if region.CIDR != "0.0.0.0/16" {
		t.Errorf("cidr: got %s, want 0.0.0.0/16", region.CIDR)
	}
	if region.Status != model.StatusActive {
		t.Errorf("status: got %s, want %s", region.Status, model.StatusActive)
	}
}

func TestAllocateRegion_UnknownCountry(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/regions",
		`{"user_id":"user-1","country":"Atlantis"}`, true)
	assertErrorCode(t, rec, http.StatusNotFound, "UNKNOWN_COUNTRY")
}

func TestAllocateRegion_UnknownField(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/regions",
		`{"user_id":"user-1","country":"India","bogus":true}`, true)
	assertErrorCode(t, rec, http.StatusBadRequest, "INVALID_ARGUMENT")
}

func TestRegionLifecycle_OverHTTP(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/regions",
		`{"user_id":"user-1","country":"Japan"}`, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("allocate: got %d (body %s)", rec.Code, rec.Body.String())
	}
	region := decodeJSON[model.Region](t, rec)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/regions/"+region.ID, "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPut, "/api/v1/regions/"+region.ID+"/tags",
		`{"user_id":"user-1","tags":["prod","edge"]}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("tags: got %d (body %s)", rec.Code, rec.Body.String())
	}
	tagged := decodeJSON[model.Region](t, rec)
	if !strings.Contains(tagged.TagsJSON, "prod") {
		t.Errorf("tags_json: got %s", tagged.TagsJSON)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/regions/"+region.ID+"/actions/release",
		`{"user_id":"user-1","reason":"done"}`, true)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("release: got %d (body %s)", rec.Code, rec.Body.String())
	}

	// Releasing again reports not found.
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/regions/"+region.ID+"/actions/release",
		`{"user_id":"user-1"}`, true)
	assertErrorCode(t, rec, http.StatusNotFound, "NOT_FOUND")
}

func TestGetRegion_InvalidID(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/regions/not-a-uuid", "", true)
	assertErrorCode(t, rec, http.StatusBadRequest, "INVALID_ARGUMENT")
}

func TestListRegions_Paginated(t *testing.T) {
	srv := newTestServer(t)
	for i := 0; i < 3; i++ {
		rec := doRequest(t, srv, http.MethodPost, "/api/v1/regions",
			`{"user_id":"user-1","country":"India"}`, true)
		if rec.Code != http.StatusCreated {
			t.Fatalf("allocate %d: got %d", i, rec.Code)
		}
	}

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/regions?user_id=user-1&limit=2", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: got %d", rec.Code)
	}
	page := decodeJSON[PageResponse[model.Region]](t, rec)
	if page.Total != 3 || len(page.Items) != 2 || page.Limit != 2 {
		t.Fatalf("page: total=%d items=%d limit=%d", page.Total, len(page.Items), page.Limit)
	}
	// Default sort is ascending by CIDR.
	if page.Items[0].CIDR != "0.0.0.0/16" || page.Items[1].CIDR != "0.1.0.0/16" {
		t.Errorf("order: got %s, %s", page.Items[0].CIDR, page.Items[1].CIDR)
	}
}

func TestHostAllocation_OverHTTP(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/regions",
		`{"user_id":"user-1","country":"Singapore"}`, true)
	region := decodeJSON[model.Region](t, rec)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/regions/"+region.ID+"/hosts",
		`{"user_id":"user-1","reason":"vm"}`, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("allocate host: got %d (body %s)", rec.Code, rec.Body.String())
	}
	host := decodeJSON[model.Host](t, rec)
	wantIP := fmt.Sprintf("%d.%d.0", region.XOctet, region.YOctet)
	if !strings.HasPrefix(host.IPAddress, wantIP) {
		t.Errorf("ip: got %s, want prefix %s", host.IPAddress, wantIP)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/regions/"+region.ID+"/hosts", "", true)
	page := decodeJSON[PageResponse[model.Host]](t, rec)
	if page.Total != 1 {
		t.Fatalf("hosts total: got %d, want 1", page.Total)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/hosts/"+host.ID+"/actions/release",
		`{"user_id":"user-1"}`, true)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("release host: got %d", rec.Code)
	}
}

func TestAllocateHost_ReleasedRegion(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/regions",
		`{"user_id":"user-1","country":"Egypt"}`, true)
	region := decodeJSON[model.Region](t, rec)
	doRequest(t, srv, http.MethodPost, "/api/v1/regions/"+region.ID+"/actions/release",
		`{"user_id":"user-1"}`, true)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/regions/"+region.ID+"/hosts",
		`{"user_id":"user-1"}`, true)
	assertErrorCode(t, rec, http.StatusConflict, "REGION_NOT_ACTIVE")
}

func TestReservationConflict_OverHTTP(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/regions",
		`{"user_id":"user-1","country":"India"}`, true)
	region := decodeJSON[model.Region](t, rec)

	body := fmt.Sprintf(`{"user_id":"user-2","resource_type":"region","x_octet":%d,"y_octet":%d,"ttl":"1h"}`,
		region.XOctet, region.YOctet)
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/reservations", body, true)
	assertErrorCode(t, rec, http.StatusConflict, "ADDRESS_CONFLICT")
}

func TestReservationLifecycle_OverHTTP(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/reservations",
		`{"user_id":"user-1","resource_type":"host","x_octet":75,"y_octet":0,"z_octet":14,"ttl":"30m","reason":"migration"}`, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: got %d (body %s)", rec.Code, rec.Body.String())
	}
	res := decodeJSON[model.Reservation](t, rec)
	if res.ZOctet == nil || *res.ZOctet != 14 {
		t.Fatalf("z_octet: got %v", res.ZOctet)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/reservations/"+res.ID, "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/reservations/"+res.ID+"/actions/release",
		`{"user_id":"user-1"}`, true)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("release: got %d (body %s)", rec.Code, rec.Body.String())
	}
}

func TestCreateReservation_InvalidOctet(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/reservations",
		`{"user_id":"user-1","resource_type":"region","x_octet":256,"y_octet":0,"ttl":"1h"}`, true)
	assertErrorCode(t, rec, http.StatusBadRequest, "INVALID_ARGUMENT")
}

func TestShareResolve_Public(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/regions",
		`{"user_id":"user-1","country":"Brazil"}`, true)
	region := decodeJSON[model.Region](t, rec)

	body := fmt.Sprintf(`{"user_id":"user-1","resource_type":"region","resource_id":"%s","ttl":"1h"}`, region.ID)
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/shares", body, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create share: got %d (body %s)", rec.Code, rec.Body.String())
	}
	sh := decodeJSON[model.Share](t, rec)

	// Resolution needs no admin token: the share token is the credential.
	rec = doRequest(t, srv, http.MethodGet, "/api/v1/shares/resolve/"+sh.Token, "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve: got %d (body %s)", rec.Code, rec.Body.String())
	}
	resolved := decodeJSON[share.Resolved](t, rec)
	if resolved.Region == nil || resolved.Region.ID != region.ID {
		t.Fatalf("resolved: %+v", resolved)
	}
	if resolved.ViewCount != 1 {
		t.Errorf("view_count: got %d, want 1", resolved.ViewCount)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/shares/"+sh.ID+"/actions/revoke",
		`{"user_id":"user-1"}`, true)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("revoke: got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/shares/resolve/"+sh.Token, "", false)
	assertErrorCode(t, rec, http.StatusGone, "SHARE_EXPIRED")
}

func TestShareCountry_CreateAndResolve(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/shares",
		`{"user_id":"user-1","resource_type":"country","resource_id":"India","ttl":"1h"}`, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create country share: got %d (body %s)", rec.Code, rec.Body.String())
	}
	sh := decodeJSON[model.Share](t, rec)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/shares/resolve/"+sh.Token, "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve: got %d (body %s)", rec.Code, rec.Body.String())
	}
	resolved := decodeJSON[share.Resolved](t, rec)
	if resolved.Country == nil || resolved.Country.Country != "India" {
		t.Fatalf("resolved: %+v", resolved)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/shares",
		`{"user_id":"user-1","resource_type":"country","resource_id":"Atlantis","ttl":"1h"}`, true)
	assertErrorCode(t, rec, http.StatusNotFound, "UNKNOWN_COUNTRY")
}

func TestShareResolve_UnknownToken(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/shares/resolve/no-such-token", "", false)
	assertErrorCode(t, rec, http.StatusGone, "SHARE_EXPIRED")
}

func TestWebhookEndpoints(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/webhooks",
		`{"user_id":"user-1","url":"http://hooks.internal/geo","events":["region.allocated"]}`, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: got %d (body %s)", rec.Code, rec.Body.String())
	}
	wh := decodeJSON[model.Webhook](t, rec)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/webhooks?user_id=user-1", "", true)
	page := decodeJSON[PageResponse[model.Webhook]](t, rec)
	if page.Total != 1 {
		t.Fatalf("webhooks total: got %d, want 1", page.Total)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/webhooks/"+wh.ID+"/deliveries?user_id=user-1", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("deliveries: got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodDelete, "/api/v1/webhooks/"+wh.ID+"?user_id=user-1", "", true)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodDelete, "/api/v1/webhooks/"+wh.ID+"?user_id=user-1", "", true)
	assertErrorCode(t, rec, http.StatusNotFound, "NOT_FOUND")
}

func TestRegisterWebhook_BadURL(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/webhooks",
		`{"user_id":"user-1","url":"not-a-url","events":["*"]}`, true)
	assertErrorCode(t, rec, http.StatusBadRequest, "INVALID_ARGUMENT")
}

func TestCapacityEndpoints(t *testing.T) {
	srv := newTestServer(t)
	doRequest(t, srv, http.MethodPost, "/api/v1/regions",
		`{"user_id":"user-1","country":"Singapore"}`, true)
	time.Sleep(5 * time.Millisecond)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/capacity/countries/Singapore", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("country stats: got %d (body %s)", rec.Code, rec.Body.String())
	}
	stats := decodeJSON[capacity.CountryStats](t, rec)
	if stats.Allocated != 1 || stats.TotalBlocks != 5*256 {
		t.Fatalf("stats: %+v", stats)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/capacity/countries/Atlantis", "", true)
	assertErrorCode(t, rec, http.StatusNotFound, "UNKNOWN_COUNTRY")

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/capacity/top?n=3", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("top: got %d", rec.Code)
	}
	top := decodeJSON[[]capacity.CountryStats](t, rec)
	if len(top) != 3 || top[0].Country != "Singapore" {
		t.Fatalf("top: %+v", top)
	}
}

func TestAuditEndpoint(t *testing.T) {
	srv := newTestServer(t)
	doRequest(t, srv, http.MethodPost, "/api/v1/regions",
		`{"user_id":"user-1","country":"Canada"}`, true)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/audit?user_id=user-1&action_type=region_allocated", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("audit: got %d (body %s)", rec.Code, rec.Body.String())
	}
	entries := decodeJSON[[]model.AuditEntry](t, rec)
	if len(entries) != 1 {
		t.Fatalf("entries: got %d, want 1", len(entries))
	}
	if entries[0].ResourceType != "region" {
		t.Errorf("resource_type: got %s", entries[0].ResourceType)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/audit?since_ns=bogus", "", true)
	assertErrorCode(t, rec, http.StatusBadRequest, "INVALID_ARGUMENT")
}
