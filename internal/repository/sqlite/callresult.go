package sqlite

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-sync/internal/model"
	"github.com/jwalitptl/clinic-sync/internal/repository"
)

const tableCallResults = "call_results"

type callResultRepository struct {
	tableOps
}

func NewCallResultRepository(store *Store) repository.CallResultRepository {
	return &callResultRepository{tableOps: tableOps{store: store, table: tableCallResults}}
}

const callResultUpsert = `
	INSERT INTO call_results (uuid, user_uuid, appointment_uuid, outcome, remove_reason,
		created_at, updated_at, deleted_at, sync_status)
	VALUES (:uuid, :user_uuid, :appointment_uuid, :outcome, :remove_reason,
		:created_at, :updated_at, :deleted_at, :sync_status)
	ON CONFLICT(uuid) DO UPDATE SET
		user_uuid = excluded.user_uuid,
		appointment_uuid = excluded.appointment_uuid,
		outcome = excluded.outcome,
		remove_reason = excluded.remove_reason,
		updated_at = excluded.updated_at,
		deleted_at = excluded.deleted_at,
		sync_status = excluded.sync_status`

func (r *callResultRepository) Save(ctx context.Context, results []model.CallResult) error {
	now := r.store.clock.Now()
	err := r.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		for i := range results {
			stampLocal(&results[i].Syncable, now)
			if _, err := tx.NamedExecContext(ctx, callResultUpsert, results[i]); err != nil {
				return fmt.Errorf("failed to save call result %s: %w", results[i].UUID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.store.bus.Publish(tableCallResults)
	return nil
}

func (r *callResultRepository) Merge(ctx context.Context, results []model.CallResult) error {
	err := r.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		for i := range results {
			stampMerged(&results[i].Syncable)
			if _, err := tx.NamedExecContext(ctx, mergeGuard(callResultUpsert), results[i]); err != nil {
				return fmt.Errorf("failed to merge call result %s: %w", results[i].UUID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.store.bus.Publish(tableCallResults)
	return nil
}

func (r *callResultRepository) WithSyncStatus(ctx context.Context, status model.SyncStatus, limit int) ([]model.CallResult, error) {
	var out []model.CallResult
	if err := r.store.db.SelectContext(ctx, &out,
		"SELECT * FROM call_results WHERE sync_status = ? ORDER BY updated_at LIMIT ?", status, limit); err != nil {
		return nil, fmt.Errorf("failed to list call results with sync status %s: %w", status, err)
	}
	return out, nil
}
