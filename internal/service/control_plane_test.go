package service

import (
	"errors"
	"testing"
	"time"

	"github.com/geogrid-ipam/geogrid/internal/alloc"
	"github.com/geogrid-ipam/geogrid/internal/audit"
	"github.com/geogrid-ipam/geogrid/internal/capacity"
	"github.com/geogrid-ipam/geogrid/internal/countrymap"
	"github.com/geogrid-ipam/geogrid/internal/model"
	"github.com/geogrid-ipam/geogrid/internal/quota"
	"github.com/geogrid-ipam/geogrid/internal/reservation"
	"github.com/geogrid-ipam/geogrid/internal/share"
	"github.com/geogrid-ipam/geogrid/internal/state"
	"github.com/geogrid-ipam/geogrid/internal/webhook"
)

func newTestService(t *testing.T, quotaLimits map[string]quota.Limit) *ControlPlaneService {
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
	q := quota.NewEnforcer(quotaLimits)
	dispatcher := webhook.NewDispatcher(repo, webhook.Config{
		Timeout: time.Second, FailureThreshold: 3, MaxConcurrent: 2,
	})
	return &ControlPlaneService{
		Regions:      alloc.NewRegionAllocator(repo, registry, q, auditor, dispatcher),
		Hosts:        alloc.NewHostAllocator(repo, q, auditor, dispatcher),
		Reservations: reservation.NewManager(repo, auditor, 30*24*time.Hour),
		Shares:       share.NewManager(repo, registry, auditor, 30*24*time.Hour),
		Webhooks:     dispatcher,
		Capacity:     capacity.NewAggregator(repo, registry, time.Millisecond),
		Auditor:      auditor,
		Registry:     registry,
	}
}

func assertServiceErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("error type: got %T, want *ServiceError", err)
	}
	if svcErr.Code != code {
		t.Fatalf("error code: got %s, want %s", svcErr.Code, code)
	}
}

func TestControlPlane_AllocateRegionLifecycle(t *testing.T) {
	svc := newTestService(t, nil)

	region, err := svc.AllocateRegion("user-1", "India", "deploy")
	if err != nil {
		t.Fatal(err)
	}
	if region.Country != "India" || region.Status != model.StatusActive {
		t.Fatalf("unexpected region: %+v", region)
	}

	got, err := svc.GetRegion(region.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != region.ID {
		t.Fatalf("expected region %s, got %s", region.ID, got.ID)
	}

	if err := svc.UpdateRegionTags(region.ID, "user-1", []string{"prod"}); err != nil {
		t.Fatal(err)
	}
	if err := svc.ReleaseRegion(region.ID, "user-1", "done"); err != nil {
		t.Fatal(err)
	}

	// The allocation and release both landed in the ledger.
	entries, err := svc.ListAudit(state.AuditFilter{UserID: "user-1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(entries))
	}
}

func TestControlPlane_ErrorCodes(t *testing.T) {
	svc := newTestService(t, map[string]quota.Limit{
		quota.OpRegionCreate: {Count: 1, Window: time.Hour},
	})

	_, err := svc.AllocateRegion("", "India", "")
	assertServiceErrorCode(t, err, "INVALID_ARGUMENT")

	_, err = svc.AllocateRegion("user-1", "Atlantis", "")
	assertServiceErrorCode(t, err, "UNKNOWN_COUNTRY")

	region, err := svc.AllocateRegion("user-1", "India", "")
	if err != nil {
		t.Fatal(err)
	}
	_, err = svc.AllocateRegion("user-1", "India", "")
	assertServiceErrorCode(t, err, "QUOTA_EXCEEDED")

	_, err = svc.GetRegion("no-such-region")
	assertServiceErrorCode(t, err, "NOT_FOUND")

	err = svc.ReleaseRegion(region.ID, "user-2", "")
	assertServiceErrorCode(t, err, "NOT_FOUND")
}

func TestControlPlane_HostInReleasedRegion(t *testing.T) {
	svc := newTestService(t, nil)

	region, err := svc.AllocateRegion("user-1", "Japan", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.ReleaseRegion(region.ID, "user-1", ""); err != nil {
		t.Fatal(err)
	}

	_, err = svc.AllocateHost("user-1", region.ID, "")
	assertServiceErrorCode(t, err, "REGION_NOT_ACTIVE")
}

func TestControlPlane_ReservationConflict(t *testing.T) {
	svc := newTestService(t, nil)

	if _, err := svc.CreateReservation("user-1", model.ResourceRegion, 5, 10, nil, time.Hour, "hold"); err != nil {
		t.Fatal(err)
	}
	_, err := svc.CreateReservation("user-2", model.ResourceRegion, 5, 10, nil, time.Hour, "")
	assertServiceErrorCode(t, err, "ADDRESS_CONFLICT")

	_, err = svc.CreateReservation("user-1", model.ResourceRegion, 300, 0, nil, time.Hour, "")
	assertServiceErrorCode(t, err, "INVALID_ARGUMENT")

	err = svc.ReleaseReservation("no-such-id", "user-1")
	assertServiceErrorCode(t, err, "NOT_FOUND")
}

func TestControlPlane_ShareFlow(t *testing.T) {
	svc := newTestService(t, nil)

	region, err := svc.AllocateRegion("user-1", "India", "")
	if err != nil {
		t.Fatal(err)
	}
	sh, err := svc.CreateShare("user-1", model.ResourceRegion, region.ID, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	resolved, err := svc.ResolveShare(sh.Token)
	if err != nil {
		t.Fatal(err)
	}
	if resolved.Region == nil || resolved.Region.ID != region.ID {
		t.Fatalf("unexpected resolution: %+v", resolved)
	}

	if err := svc.RevokeShare(sh.ID, "user-1"); err != nil {
		t.Fatal(err)
	}
	_, err = svc.ResolveShare(sh.Token)
	assertServiceErrorCode(t, err, "SHARE_EXPIRED")

	_, err = svc.ResolveShare("unknown-token")
	assertServiceErrorCode(t, err, "SHARE_EXPIRED")
}

func TestControlPlane_CapacityStats(t *testing.T) {
	svc := newTestService(t, nil)

	if _, err := svc.AllocateRegion("user-1", "India", ""); err != nil {
		t.Fatal(err)
	}
	// Let the stats cache expire.
	time.Sleep(5 * time.Millisecond)

	stats, err := svc.CountryStats("India")
	if err != nil {
		t.Fatal(err)
	}
	if stats.Allocated != 1 {
		t.Fatalf("expected 1 allocated, got %d", stats.Allocated)
	}

	_, err = svc.CountryStats("Atlantis")
	assertServiceErrorCode(t, err, "UNKNOWN_COUNTRY")

	_, err = svc.TopCountries(0)
	assertServiceErrorCode(t, err, "INVALID_ARGUMENT")
}

func TestControlPlane_WebhookRegistration(t *testing.T) {
	svc := newTestService(t, nil)

	_, err := svc.RegisterWebhook("user-1", "not-a-url", []string{"*"})
	assertServiceErrorCode(t, err, "INVALID_ARGUMENT")

	w, err := svc.RegisterWebhook("user-1", "https://example.com/hook", []string{"region.allocated"})
	if err != nil {
		t.Fatal(err)
	}
	hooks, err := svc.ListWebhooks("user-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(hooks) != 1 || hooks[0].ID != w.ID {
		t.Fatalf("unexpected webhooks: %+v", hooks)
	}

	err = svc.DeleteWebhook(w.ID, "user-2")
	assertServiceErrorCode(t, err, "NOT_FOUND")
	if err := svc.DeleteWebhook(w.ID, "user-1"); err != nil {
		t.Fatal(err)
	}
}
