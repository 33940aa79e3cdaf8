package webhook

import (
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/geogrid-ipam/geogrid/internal/state"
)

// HealthMonitor runs on a cron schedule. Each run computes every webhook's
// delivery success rate over the trailing 24h, warns on endpoints below 50%
// with at least 5 attempts, and purges delivery rows past retention.
type HealthMonitor struct {
	repo      *state.Repo
	retention time.Duration
	cron      *cron.Cron
	entryID   cron.EntryID

	nowFn func() time.Time
}

func NewHealthMonitor(repo *state.Repo, schedule string, retention time.Duration) *HealthMonitor {
	m := &HealthMonitor{
		repo:      repo,
		retention: retention,
		cron:      cron.New(),
		nowFn:     time.Now,
	}

	entryID, err := m.cron.AddFunc(schedule, m.runOnce)
	if err != nil {
		log.Printf("[webhook] invalid health schedule %q: %v", schedule, err)
	} else {
		m.entryID = entryID
	}
	return m
}

func (m *HealthMonitor) Start() {
	m.cron.Start()
}

func (m *HealthMonitor) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
}

// runOnce is one scheduled pass. Exported behavior is covered through
// RunNow in tests.
func (m *HealthMonitor) runOnce() {
	now := m.nowFn()
	hooks, err := m.repo.ListWebhooks("", false)
	if err != nil {
		log.Printf("[webhook] health scan failed: %v", err)
		return
	}

	sinceNs := now.Add(-24 * time.Hour).UnixNano()
	for _, w := range hooks {
		attempts, successes, err := m.repo.DeliveryStats(w.ID, sinceNs)
		if err != nil {
			log.Printf("[webhook] stats for %s failed: %v", w.ID, err)
			continue
		}
		if attempts >= 5 && successes*2 < attempts {
			log.Printf("[webhook] %s unhealthy: %d/%d deliveries succeeded in 24h", w.ID, successes, attempts)
		}
	}

	cutoffNs := now.Add(-m.retention).UnixNano()
	purged, err := m.repo.PurgeDeliveriesBefore(cutoffNs)
	if err != nil {
		log.Printf("[webhook] delivery purge failed: %v", err)
		return
	}
	if purged > 0 {
		log.Printf("[webhook] purged %d delivery records", purged)
	}
}

// RunNow triggers one health pass immediately.
func (m *HealthMonitor) RunNow() {
	m.runOnce()
}
