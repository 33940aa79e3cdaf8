package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

// setEnvs sets multiple env vars for the duration of the test.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

// requiredEnvs returns the minimum env vars needed for LoadEnvConfig to succeed.
func requiredEnvs() map[string]string {
	return map[string]string{
		"GEOGRID_ADMIN_TOKEN": "admin-secret",
	}
}

func TestLoadEnvConfig_Defaults(t *testing.T) {
	setEnvs(t, requiredEnvs())

	cfg, err := LoadEnvConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertEqual(t, "StateDir", cfg.StateDir, "/var/lib/geogrid")
	assertEqual(t, "ListenAddress", cfg.ListenAddress, "0.0.0.0")
	assertEqual(t, "APIPort", cfg.APIPort, 8480)
	assertEqual(t, "APIMaxBodyBytes", cfg.APIMaxBodyBytes, 1<<20)
	assertEqual(t, "CountryMapFile", cfg.CountryMapFile, "")

	assertEqual(t, "RegionQuotaLimit", cfg.RegionQuotaLimit, 10)
	assertEqual(t, "RegionQuotaWindow", cfg.RegionQuotaWindow, time.Hour)
	assertEqual(t, "HostQuotaLimit", cfg.HostQuotaLimit, 50)
	assertEqual(t, "HostQuotaWindow", cfg.HostQuotaWindow, time.Hour)

	assertEqual(t, "ReservationMaxTTL", cfg.ReservationMaxTTL, 30*24*time.Hour)
	assertEqual(t, "ReservationSweepInterval", cfg.ReservationSweepInterval, time.Hour)
	assertEqual(t, "ShareMaxTTL", cfg.ShareMaxTTL, 30*24*time.Hour)
	assertEqual(t, "ShareSweepInterval", cfg.ShareSweepInterval, time.Hour)

	assertEqual(t, "WebhookFailureThreshold", cfg.WebhookFailureThreshold, 3)
	assertEqual(t, "WebhookTimeout", cfg.WebhookTimeout, 10*time.Second)
	assertEqual(t, "WebhookMaxConcurrent", cfg.WebhookMaxConcurrent, 8)
	assertEqual(t, "WebhookHealthSchedule", cfg.WebhookHealthSchedule, "@hourly")
	assertEqual(t, "DeliveryRetention", cfg.DeliveryRetention, 30*24*time.Hour)

	assertEqual(t, "AuditRetention", cfg.AuditRetention, 90*24*time.Hour)
	assertEqual(t, "RetentionSchedule", cfg.RetentionSchedule, "@daily")
	assertEqual(t, "CapacityCacheTTL", cfg.CapacityCacheTTL, 5*time.Second)
}

func TestLoadEnvConfig_EnvOverrides(t *testing.T) {
	envs := requiredEnvs()
	envs["GEOGRID_STATE_DIR"] = "/tmp/geogrid"
	envs["GEOGRID_LISTEN_ADDRESS"] = "127.0.0.1"
	envs["GEOGRID_API_PORT"] = "9090"
	envs["GEOGRID_API_MAX_BODY_BYTES"] = "2097152"
	envs["GEOGRID_REGION_QUOTA_LIMIT"] = "25"
	envs["GEOGRID_REGION_QUOTA_WINDOW"] = "30m"
	envs["GEOGRID_HOST_QUOTA_LIMIT"] = "100"
	envs["GEOGRID_RESERVATION_MAX_TTL"] = "72h"
	envs["GEOGRID_RESERVATION_SWEEP_INTERVAL"] = "10m"
	envs["GEOGRID_SHARE_SWEEP_INTERVAL"] = "5m"
	envs["GEOGRID_WEBHOOK_FAILURE_THRESHOLD"] = "5"
	envs["GEOGRID_WEBHOOK_TIMEOUT"] = "30s"
	envs["GEOGRID_WEBHOOK_HEALTH_SCHEDULE"] = "0 */6 * * *"
	envs["GEOGRID_RETENTION_SCHEDULE"] = "0 3 * * *"
	envs["GEOGRID_CAPACITY_CACHE_TTL"] = "1s"
	setEnvs(t, envs)

	cfg, err := LoadEnvConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertEqual(t, "StateDir", cfg.StateDir, "/tmp/geogrid")
	assertEqual(t, "ListenAddress", cfg.ListenAddress, "127.0.0.1")
	assertEqual(t, "APIPort", cfg.APIPort, 9090)
	assertEqual(t, "APIMaxBodyBytes", cfg.APIMaxBodyBytes, 2097152)
	assertEqual(t, "RegionQuotaLimit", cfg.RegionQuotaLimit, 25)
	assertEqual(t, "RegionQuotaWindow", cfg.RegionQuotaWindow, 30*time.Minute)
	assertEqual(t, "HostQuotaLimit", cfg.HostQuotaLimit, 100)
	assertEqual(t, "ReservationMaxTTL", cfg.ReservationMaxTTL, 72*time.Hour)
	assertEqual(t, "ReservationSweepInterval", cfg.ReservationSweepInterval, 10*time.Minute)
	assertEqual(t, "ShareSweepInterval", cfg.ShareSweepInterval, 5*time.Minute)
	assertEqual(t, "WebhookFailureThreshold", cfg.WebhookFailureThreshold, 5)
	assertEqual(t, "WebhookTimeout", cfg.WebhookTimeout, 30*time.Second)
	assertEqual(t, "WebhookHealthSchedule", cfg.WebhookHealthSchedule, "0 */6 * * *")
	assertEqual(t, "RetentionSchedule", cfg.RetentionSchedule, "0 3 * * *")
	assertEqual(t, "CapacityCacheTTL", cfg.CapacityCacheTTL, time.Second)
}

func TestLoadEnvConfig_MissingAdminToken(t *testing.T) {
	os.Unsetenv("GEOGRID_ADMIN_TOKEN")

	_, err := LoadEnvConfig()
	if err == nil {
		t.Fatal("expected error for missing GEOGRID_ADMIN_TOKEN")
	}
	assertContains(t, err.Error(), "GEOGRID_ADMIN_TOKEN must be defined (can be empty)")
}

func TestLoadEnvConfig_EmptyTokenAllowedWhenDefined(t *testing.T) {
	t.Setenv("GEOGRID_ADMIN_TOKEN", "")

	cfg, err := LoadEnvConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertEqual(t, "AdminToken", cfg.AdminToken, "")
}

func TestLoadEnvConfig_EmptyListenAddress(t *testing.T) {
	envs := requiredEnvs()
	envs["GEOGRID_LISTEN_ADDRESS"] = "   "
	setEnvs(t, envs)

	_, err := LoadEnvConfig()
	if err == nil {
		t.Fatal("expected error for empty listen address")
	}
	assertContains(t, err.Error(), "GEOGRID_LISTEN_ADDRESS")
}

func TestLoadEnvConfig_InvalidPort(t *testing.T) {
	tests := []struct {
		name string
		port string
	}{
		{"out_of_range", "99999"},
		{"not_a_number", "abc"},
		{"zero", "0"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			envs := requiredEnvs()
			envs["GEOGRID_API_PORT"] = tc.port
			setEnvs(t, envs)

			_, err := LoadEnvConfig()
			if err == nil {
				t.Fatal("expected error for invalid port")
			}
			assertContains(t, err.Error(), "GEOGRID_API_PORT")
		})
	}
}

func TestLoadEnvConfig_NegativeQuotaLimit(t *testing.T) {
	envs := requiredEnvs()
	envs["GEOGRID_REGION_QUOTA_LIMIT"] = "-5"
	setEnvs(t, envs)

	_, err := LoadEnvConfig()
	if err == nil {
		t.Fatal("expected error for negative quota limit")
	}
	assertContains(t, err.Error(), "GEOGRID_REGION_QUOTA_LIMIT")
}

func TestLoadEnvConfig_InvalidDuration(t *testing.T) {
	envs := requiredEnvs()
	envs["GEOGRID_RESERVATION_SWEEP_INTERVAL"] = "not-a-duration"
	setEnvs(t, envs)

	_, err := LoadEnvConfig()
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
	assertContains(t, err.Error(), "GEOGRID_RESERVATION_SWEEP_INTERVAL")
}

func TestLoadEnvConfig_ZeroDuration(t *testing.T) {
	envs := requiredEnvs()
	envs["GEOGRID_WEBHOOK_TIMEOUT"] = "0s"
	setEnvs(t, envs)

	_, err := LoadEnvConfig()
	if err == nil {
		t.Fatal("expected error for zero webhook timeout")
	}
	assertContains(t, err.Error(), "GEOGRID_WEBHOOK_TIMEOUT")
}

func TestLoadEnvConfig_InvalidCronSchedule(t *testing.T) {
	envs := requiredEnvs()
	envs["GEOGRID_WEBHOOK_HEALTH_SCHEDULE"] = "not-a-cron"
	setEnvs(t, envs)

	_, err := LoadEnvConfig()
	if err == nil {
		t.Fatal("expected error for invalid cron schedule")
	}
	assertContains(t, err.Error(), "GEOGRID_WEBHOOK_HEALTH_SCHEDULE")
}

// --- test helpers ---

func assertEqual[T comparable](t *testing.T, name string, got, want T) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %v, want %v", name, got, want)
	}
}

func assertContains(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("expected %q to contain %q", s, substr)
	}
}
