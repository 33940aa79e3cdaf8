// Package config handles environment-based configuration loading.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// EnvConfig holds all environment-variable-driven settings.
type EnvConfig struct {
	// Directories
	StateDir string

	// Network
	ListenAddress   string
	APIPort         int
	APIMaxBodyBytes int

	// Auth
	AdminToken string

	// Country map
	CountryMapFile string // optional override of the embedded seed table

	// Creation quotas (fixed window per user)
	RegionQuotaLimit  int
	RegionQuotaWindow time.Duration
	HostQuotaLimit    int
	HostQuotaWindow   time.Duration

	// Reservations and shares
	ReservationMaxTTL        time.Duration
	ReservationSweepInterval time.Duration
	ShareMaxTTL              time.Duration
	ShareSweepInterval       time.Duration

	// Webhooks
	WebhookFailureThreshold int
	WebhookTimeout          time.Duration
	WebhookMaxConcurrent    int
	WebhookHealthSchedule   string // cron expression
	DeliveryRetention       time.Duration

	// Audit
	AuditRetention    time.Duration
	RetentionSchedule string // cron expression

	// Capacity stats
	CapacityCacheTTL time.Duration
}

// LoadEnvConfig reads environment variables and returns a validated EnvConfig.
// Returns an error listing every invalid or missing value.
func LoadEnvConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	var errs []string

	// --- Directories ---
	cfg.StateDir = envStr("GEOGRID_STATE_DIR", "/var/lib/geogrid")

	// --- Network ---
	cfg.ListenAddress = strings.TrimSpace(envStr("GEOGRID_LISTEN_ADDRESS", "0.0.0.0"))
	cfg.APIPort = envInt("GEOGRID_API_PORT", 8480, &errs)
	cfg.APIMaxBodyBytes = envInt("GEOGRID_API_MAX_BODY_BYTES", 1<<20, &errs)

	// --- Auth (must be defined; empty means auth disabled) ---
	adminToken, hasAdminToken := os.LookupEnv("GEOGRID_ADMIN_TOKEN")
	cfg.AdminToken = adminToken

	// --- Country map ---
	cfg.CountryMapFile = envStr("GEOGRID_COUNTRY_MAP_FILE", "")

	// --- Quotas ---
	cfg.RegionQuotaLimit = envInt("GEOGRID_REGION_QUOTA_LIMIT", 10, &errs)
	cfg.RegionQuotaWindow = envDuration("GEOGRID_REGION_QUOTA_WINDOW", time.Hour, &errs)
	cfg.HostQuotaLimit = envInt("GEOGRID_HOST_QUOTA_LIMIT", 50, &errs)
	cfg.HostQuotaWindow = envDuration("GEOGRID_HOST_QUOTA_WINDOW", time.Hour, &errs)

	// --- Reservations and shares ---
	cfg.ReservationMaxTTL = envDuration("GEOGRID_RESERVATION_MAX_TTL", 30*24*time.Hour, &errs)
	cfg.ReservationSweepInterval = envDuration("GEOGRID_RESERVATION_SWEEP_INTERVAL", time.Hour, &errs)
	cfg.ShareMaxTTL = envDuration("GEOGRID_SHARE_MAX_TTL", 30*24*time.Hour, &errs)
	cfg.ShareSweepInterval = envDuration("GEOGRID_SHARE_SWEEP_INTERVAL", time.Hour, &errs)

	// --- Webhooks ---
	cfg.WebhookFailureThreshold = envInt("GEOGRID_WEBHOOK_FAILURE_THRESHOLD", 3, &errs)
	cfg.WebhookTimeout = envDuration("GEOGRID_WEBHOOK_TIMEOUT", 10*time.Second, &errs)
	cfg.WebhookMaxConcurrent = envInt("GEOGRID_WEBHOOK_MAX_CONCURRENT", 8, &errs)
	cfg.WebhookHealthSchedule = envStr("GEOGRID_WEBHOOK_HEALTH_SCHEDULE", "@hourly")
	cfg.DeliveryRetention = envDuration("GEOGRID_DELIVERY_RETENTION", 30*24*time.Hour, &errs)

	// --- Audit ---
	cfg.AuditRetention = envDuration("GEOGRID_AUDIT_RETENTION", 90*24*time.Hour, &errs)
	cfg.RetentionSchedule = envStr("GEOGRID_RETENTION_SCHEDULE", "@daily")

	// --- Capacity stats ---
	cfg.CapacityCacheTTL = envDuration("GEOGRID_CAPACITY_CACHE_TTL", 5*time.Second, &errs)

	// --- Validation ---
	if !hasAdminToken {
		errs = append(errs, "GEOGRID_ADMIN_TOKEN must be defined (can be empty)")
	}
	if cfg.ListenAddress == "" {
		errs = append(errs, "GEOGRID_LISTEN_ADDRESS must not be empty")
	}
	validatePort("GEOGRID_API_PORT", cfg.APIPort, &errs)
	validatePositive("GEOGRID_API_MAX_BODY_BYTES", cfg.APIMaxBodyBytes, &errs)
	validatePositive("GEOGRID_REGION_QUOTA_LIMIT", cfg.RegionQuotaLimit, &errs)
	validatePositive("GEOGRID_HOST_QUOTA_LIMIT", cfg.HostQuotaLimit, &errs)
	validatePositive("GEOGRID_WEBHOOK_FAILURE_THRESHOLD", cfg.WebhookFailureThreshold, &errs)
	validatePositive("GEOGRID_WEBHOOK_MAX_CONCURRENT", cfg.WebhookMaxConcurrent, &errs)
	validatePositiveDuration("GEOGRID_REGION_QUOTA_WINDOW", cfg.RegionQuotaWindow, &errs)
	validatePositiveDuration("GEOGRID_HOST_QUOTA_WINDOW", cfg.HostQuotaWindow, &errs)
	validatePositiveDuration("GEOGRID_RESERVATION_MAX_TTL", cfg.ReservationMaxTTL, &errs)
	validatePositiveDuration("GEOGRID_RESERVATION_SWEEP_INTERVAL", cfg.ReservationSweepInterval, &errs)
	validatePositiveDuration("GEOGRID_SHARE_MAX_TTL", cfg.ShareMaxTTL, &errs)
	validatePositiveDuration("GEOGRID_SHARE_SWEEP_INTERVAL", cfg.ShareSweepInterval, &errs)
	validatePositiveDuration("GEOGRID_WEBHOOK_TIMEOUT", cfg.WebhookTimeout, &errs)
	validatePositiveDuration("GEOGRID_DELIVERY_RETENTION", cfg.DeliveryRetention, &errs)
	validatePositiveDuration("GEOGRID_AUDIT_RETENTION", cfg.AuditRetention, &errs)
	validatePositiveDuration("GEOGRID_CAPACITY_CACHE_TTL", cfg.CapacityCacheTTL, &errs)
	validateCron("GEOGRID_WEBHOOK_HEALTH_SCHEDULE", cfg.WebhookHealthSchedule, &errs)
	validateCron("GEOGRID_RETENTION_SCHEDULE", cfg.RetentionSchedule, &errs)

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}

	return cfg, nil
}

// --- helpers ---

func envStr(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int, errs *[]string) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, v))
		return defaultVal
	}
	return n
}

func envDuration(key string, defaultVal time.Duration, errs *[]string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid duration %q", key, v))
		return defaultVal
	}
	return d
}

func validatePort(name string, value int, errs *[]string) {
	if value < 1 || value > 65535 {
		*errs = append(*errs, fmt.Sprintf("%s: port must be 1-65535, got %d", name, value))
	}
}

func validatePositive(name string, value int, errs *[]string) {
	if value <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s: must be positive, got %d", name, value))
	}
}

func validatePositiveDuration(name string, value time.Duration, errs *[]string) {
	if value <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s: must be positive, got %s", name, value))
	}
}

func validateCron(name, expr string, errs *[]string) {
	if _, err := cron.ParseStandard(expr); err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid cron expression %q: %v", name, expr, err))
	}
}
