package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/geogrid-ipam/geogrid/internal/alloc"
	"github.com/geogrid-ipam/geogrid/internal/api"
	"github.com/geogrid-ipam/geogrid/internal/audit"
	"github.com/geogrid-ipam/geogrid/internal/buildinfo"
	"github.com/geogrid-ipam/geogrid/internal/capacity"
	"github.com/geogrid-ipam/geogrid/internal/config"
	"github.com/geogrid-ipam/geogrid/internal/countrymap"
	"github.com/geogrid-ipam/geogrid/internal/quota"
	"github.com/geogrid-ipam/geogrid/internal/reservation"
	"github.com/geogrid-ipam/geogrid/internal/service"
	"github.com/geogrid-ipam/geogrid/internal/share"
	"github.com/geogrid-ipam/geogrid/internal/state"
	"github.com/geogrid-ipam/geogrid/internal/webhook"
)

type geogridApp struct {
	envCfg *config.EnvConfig

	dispatcher         *webhook.Dispatcher
	healthMonitor      *webhook.HealthMonitor
	reservationSweeper *reservation.Sweeper
	shareSweeper       *share.Sweeper
	retentionCron      *cron.Cron
	apiServer          *api.Server
}

func run() error {
	envCfg, err := config.LoadEnvConfig()
	if err != nil {
		return err
	}

	repo, dbCloser, err := state.PersistenceBootstrap(envCfg.StateDir)
	if err != nil {
		return fmt.Errorf("persistence bootstrap: %w", err)
	}
	log.Println("Persistence bootstrap complete")

	app, err := newGeogridApp(envCfg, repo)
	if err != nil {
		_ = dbCloser.Close()
		return err
	}

	serverErrCh := app.startServers()
	runtimeErr := waitForShutdown(serverErrCh)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	app.shutdown(ctx)

	if err := dbCloser.Close(); err != nil {
		log.Printf("Persistence close error: %v", err)
	}
	if runtimeErr != nil {
		return fmt.Errorf("runtime server error: %w", runtimeErr)
	}
	return nil
}

func newGeogridApp(envCfg *config.EnvConfig, repo *state.Repo) (*geogridApp, error) {
	app := &geogridApp{envCfg: envCfg}

	registry, err := loadCountryRegistry(envCfg)
	if err != nil {
		return nil, err
	}

	auditor := audit.NewRecorder(repo)
	enforcer := quota.NewEnforcer(map[string]quota.Limit{
		quota.OpRegionCreate: {Count: envCfg.RegionQuotaLimit, Window: envCfg.RegionQuotaWindow},
		quota.OpHostCreate:   {Count: envCfg.HostQuotaLimit, Window: envCfg.HostQuotaWindow},
	})

	app.dispatcher = webhook.NewDispatcher(repo, webhook.Config{
		Timeout:          envCfg.WebhookTimeout,
		FailureThreshold: envCfg.WebhookFailureThreshold,
		MaxConcurrent:    envCfg.WebhookMaxConcurrent,
	})
	app.healthMonitor = webhook.NewHealthMonitor(repo, envCfg.WebhookHealthSchedule, envCfg.DeliveryRetention)
	app.reservationSweeper = reservation.NewSweeper(repo, auditor, envCfg.ReservationSweepInterval)
	app.shareSweeper = share.NewSweeper(repo, auditor, envCfg.ShareSweepInterval)
	app.retentionCron = newRetentionCron(envCfg, auditor)

	cp := &service.ControlPlaneService{
		Regions:      alloc.NewRegionAllocator(repo, registry, enforcer, auditor, app.dispatcher),
		Hosts:        alloc.NewHostAllocator(repo, enforcer, auditor, app.dispatcher),
		Reservations: reservation.NewManager(repo, auditor, envCfg.ReservationMaxTTL),
		Shares:       share.NewManager(repo, registry, auditor, envCfg.ShareMaxTTL),
		Webhooks:     app.dispatcher,
		Capacity:     capacity.NewAggregator(repo, registry, envCfg.CapacityCacheTTL),
		Auditor:      auditor,
		Registry:     registry,
		EnvCfg:       envCfg,
		Info: service.SystemInfo{
			Version:   buildinfo.Version,
			GitCommit: buildinfo.GitCommit,
			BuildTime: buildinfo.BuildTime,
			StartedAt: time.Now().UTC(),
		},
	}

	app.apiServer = api.NewServerWithAddress(
		envCfg.ListenAddress,
		envCfg.APIPort,
		envCfg.AdminToken,
		cp.Info,
		envCfg,
		cp,
		int64(envCfg.APIMaxBodyBytes),
	)

	app.startBackgroundServices()
	return app, nil
}

func loadCountryRegistry(envCfg *config.EnvConfig) (*countrymap.Registry, error) {
	if envCfg.CountryMapFile != "" {
		registry, err := countrymap.FromFile(envCfg.CountryMapFile)
		if err != nil {
			return nil, fmt.Errorf("country map %s: %w", envCfg.CountryMapFile, err)
		}
		log.Printf("Country map loaded from %s", envCfg.CountryMapFile)
		return registry, nil
	}
	return countrymap.Default()
}

func newRetentionCron(envCfg *config.EnvConfig, auditor *audit.Recorder) *cron.Cron {
	c := cron.New()
	_, err := c.AddFunc(envCfg.RetentionSchedule, func() {
		purged, err := auditor.PurgeOlderThan(envCfg.AuditRetention)
		if err != nil {
			log.Printf("[audit] retention purge failed: %v", err)
			return
		}
		if purged > 0 {
			log.Printf("[audit] purged %d ledger entries", purged)
		}
	})
	if err != nil {
		log.Printf("[audit] invalid retention schedule %q: %v", envCfg.RetentionSchedule, err)
	}
	return c
}

func (a *geogridApp) startBackgroundServices() {
	a.reservationSweeper.Start()
	a.shareSweeper.Start()
	a.healthMonitor.Start()
	a.retentionCron.Start()
	log.Println("Background services started")
}

func (a *geogridApp) startServers() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("API server starting on %s:%d", a.envCfg.ListenAddress, a.envCfg.APIPort)
		if err := a.apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	return errCh
}

func waitForShutdown(serverErrCh <-chan error) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("Received signal %s, shutting down...", sig)
		return nil
	case err := <-serverErrCh:
		return err
	}
}

func (a *geogridApp) shutdown(ctx context.Context) {
	if err := a.apiServer.Shutdown(ctx); err != nil {
		log.Printf("API server shutdown error: %v", err)
	}

	<-a.retentionCron.Stop().Done()
	a.healthMonitor.Stop()
	a.shareSweeper.Stop()
	a.reservationSweeper.Stop()
	a.dispatcher.Drain()
	log.Println("Server stopped")
}
