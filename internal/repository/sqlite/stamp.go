package sqlite

import (
	"time"

	"github.com/jwalitptl/clinic-sync/internal/model"
)

// stampLocal marks a record as a local edit awaiting upload.
func stampLocal(s *model.Syncable, now time.Time) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	s.SyncStatus = model.SyncStatusPending
}

// stampMerged marks a server copy as already acknowledged.
func stampMerged(s *model.Syncable) {
	s.SyncStatus = model.SyncStatusDone
}
