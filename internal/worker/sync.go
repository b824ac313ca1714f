// Package worker schedules the background jobs: periodic sync cycles per
// sync group and the maintenance purges.
package worker

import (
	"context"
	"time"

	"github.com/jwalitptl/clinic-sync/internal/model"
	syncer "github.com/jwalitptl/clinic-sync/internal/sync"
	"github.com/jwalitptl/clinic-sync/pkg/logger"
)

// SyncWorker drives one sync group on its own cadence. Frequently-changing
// clinical records sync every few minutes; reference data once a day.
type SyncWorker struct {
	coordinator *syncer.Coordinator
	group       model.SyncGroup
	interval    time.Duration
	log         *logger.Logger
}

func NewSyncWorker(coordinator *syncer.Coordinator, group model.SyncGroup, interval time.Duration, log *logger.Logger) *SyncWorker {
	return &SyncWorker{
		coordinator: coordinator,
		group:       group,
		interval:    interval,
		log:         log.WithComponent("sync-worker"),
	}
}

// Start runs an immediate cycle and then ticks until the context is
// cancelled. Cycle errors are logged and the next tick retries; transient
// network failures need no further handling because failed records stay
// PENDING.
func (w *SyncWorker) Start(ctx context.Context) {
	w.run(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.run(ctx)
		}
	}
}

func (w *SyncWorker) run(ctx context.Context) {
	if err := w.coordinator.SyncGroup(ctx, w.group); err != nil {
		w.log.Error().Err(err).Str("group", string(w.group)).Msg("sync cycle finished with errors")
	}
}
