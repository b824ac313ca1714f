package worker

import (
	"context"
	"time"

	"github.com/jwalitptl/clinic-sync/internal/purge"
	"github.com/jwalitptl/clinic-sync/internal/session"
	"github.com/jwalitptl/clinic-sync/pkg/clock"
	"github.com/jwalitptl/clinic-sync/pkg/logger"
)

// MaintenanceWorker runs the retention purge on an interval and the
// sync-group purge whenever the current facility changes.
type MaintenanceWorker struct {
	purger   *purge.Purger
	session  *session.Provider
	clock    clock.Clock
	interval time.Duration
	log      *logger.Logger

	lastFacility string
}

func NewMaintenanceWorker(purger *purge.Purger, sess *session.Provider, clk clock.Clock, interval time.Duration, log *logger.Logger) *MaintenanceWorker {
	return &MaintenanceWorker{
		purger:   purger,
		session:  sess,
		clock:    clk,
		interval: interval,
		log:      log.WithComponent("maintenance"),
	}
}

func (w *MaintenanceWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Facility switches need a faster check than the purge interval.
	facilityTicker := time.NewTicker(time.Minute)
	defer facilityTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.purger.Run(ctx, w.clock.Now()); err != nil {
				w.log.Error().Err(err).Msg("retention purge failed")
			}
		case <-facilityTicker.C:
			w.checkFacilitySwitch(ctx)
		}
	}
}

// checkFacilitySwitch shrinks the local dataset after the device moves to a
// facility in a different sync group.
func (w *MaintenanceWorker) checkFacilitySwitch(ctx context.Context) {
	facility, err := w.session.CurrentFacility(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("failed to resolve current facility")
		return
	}
	id := facility.UUID.String()
	if w.lastFacility == "" {
		w.lastFacility = id
		return
	}
	if id == w.lastFacility {
		return
	}
	w.lastFacility = id

	w.log.Info().Str("facility", id).Msg("facility switched, purging out-of-group patients")
	if err := w.purger.DeletePatientsOutsideSyncGroup(ctx, *facility); err != nil {
		w.log.Error().Err(err).Msg("sync group purge failed")
	}
}
