package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	gosync "sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-sync/internal/config"
	healthhandler "github.com/jwalitptl/clinic-sync/internal/handler/health"
	overduehandler "github.com/jwalitptl/clinic-sync/internal/handler/overdue"
	patienthandler "github.com/jwalitptl/clinic-sync/internal/handler/patient"
	synchandler "github.com/jwalitptl/clinic-sync/internal/handler/sync"
	"github.com/jwalitptl/clinic-sync/internal/model"
	"github.com/jwalitptl/clinic-sync/internal/notify"
	"github.com/jwalitptl/clinic-sync/internal/overdue"
	"github.com/jwalitptl/clinic-sync/internal/purge"
	repo "github.com/jwalitptl/clinic-sync/internal/repository/sqlite"
	"github.com/jwalitptl/clinic-sync/internal/router"
	"github.com/jwalitptl/clinic-sync/internal/session"
	"github.com/jwalitptl/clinic-sync/internal/storage/migrate"
	"github.com/jwalitptl/clinic-sync/internal/storage/sqlite"
	syncer "github.com/jwalitptl/clinic-sync/internal/sync"
	"github.com/jwalitptl/clinic-sync/internal/worker"
	"github.com/jwalitptl/clinic-sync/pkg/clock"
	apperrors "github.com/jwalitptl/clinic-sync/pkg/errors"
	"github.com/jwalitptl/clinic-sync/pkg/logger"
	"github.com/jwalitptl/clinic-sync/pkg/metrics"
)

func main() {
	log := logger.NewLogger(nil)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("daemon exited")
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	clk := clock.New()

	runner, err := migrate.NewRunner(db, log, migrate.Migrations())
	if err != nil {
		return err
	}
	// A migration failure is the one error class that must block startup:
	// running against a partially-upgraded schema corrupts clinical data.
	if err := runner.Migrate(context.Background()); err != nil {
		return apperrors.NewMigration(err)
	}

	bus := notify.NewBus()
	store := repo.NewStore(db, bus, clk)
	m := metrics.NewMetrics("clinic_sync")

	repos := syncer.Repositories{
		Patients:        repo.NewPatientRepository(store),
		Appointments:    repo.NewAppointmentRepository(store),
		BloodPressures:  repo.NewBloodPressureRepository(store),
		BloodSugars:     repo.NewBloodSugarRepository(store),
		PrescribedDrugs: repo.NewPrescribedDrugRepository(store),
		Histories:       repo.NewMedicalHistoryRepository(store),
		CallResults:     repo.NewCallResultRepository(store),
		Facilities:      repo.NewFacilityRepository(store),
	}
	users := repo.NewUserRepository(store)
	tokens := repo.NewTokenRepository(store)

	apiClient, err := syncer.NewHTTPClient(syncer.HTTPClientConfig{
		BaseURL:   cfg.Sync.BaseURL,
		AuthToken: cfg.Sync.AuthToken,
		Timeout:   cfg.Sync.Timeout,
	}, log)
	if err != nil {
		return err
	}

	coordinator := syncer.NewCoordinator(
		apiClient,
		tokens,
		syncer.NewResources(repos),
		syncer.CoordinatorConfig{BatchSize: cfg.Sync.BatchSize},
		clk, m, log,
	)

	userUUID, err := uuid.Parse(cfg.Device.UserID)
	if err != nil {
		return fmt.Errorf("invalid device user id: %w", err)
	}
	sess := session.NewProvider(users, repos.Facilities, userUUID)

	purger := purge.NewPurger(store, clk, m, log)
	engine := overdue.NewEngine(store, log)

	r := router.NewRouter(log,
		healthhandler.NewHandler(db),
		overduehandler.NewHandler(engine, sess, clk),
		synchandler.NewHandler(coordinator, purger, sess, repos.Facilities, clk),
		patienthandler.NewHandler(
			repos.Patients, repos.BloodPressures, repos.BloodSugars,
			repos.PrescribedDrugs, repos.Histories,
			cfg.Clinical.MeasurementEditableFor, clk,
		),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg gosync.WaitGroup
	workers := []interface{ Start(context.Context) }{
		worker.NewSyncWorker(coordinator, model.SyncGroupFrequent, cfg.Sync.FrequentInterval, log),
		worker.NewSyncWorker(coordinator, model.SyncGroupDaily, cfg.Sync.DailyInterval, log),
		worker.NewMaintenanceWorker(purger, sess, clk, cfg.Retention.PurgeInterval, log),
	}
	for _, w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Start(ctx)
		}()
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r.Engine(),
	}
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}

	wg.Wait()
	return nil
}
