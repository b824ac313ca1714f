package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-sync/internal/model"
	"github.com/jwalitptl/clinic-sync/internal/repository"
)

const tableAppointments = "appointments"

type appointmentRepository struct {
	tableOps
}

func NewAppointmentRepository(store *Store) repository.AppointmentRepository {
	return &appointmentRepository{tableOps: tableOps{store: store, table: tableAppointments}}
}

const appointmentUpsert = `
	INSERT INTO appointments (uuid, patient_uuid, facility_uuid, creation_facility_uuid,
		scheduled_date, status, cancel_reason, remind_on, agreed_to_visit, appointment_type,
		created_at, updated_at, deleted_at, sync_status)
	VALUES (:uuid, :patient_uuid, :facility_uuid, :creation_facility_uuid,
		:scheduled_date, :status, :cancel_reason, :remind_on, :agreed_to_visit, :appointment_type,
		:created_at, :updated_at, :deleted_at, :sync_status)
	ON CONFLICT(uuid) DO UPDATE SET
		patient_uuid = excluded.patient_uuid,
		facility_uuid = excluded.facility_uuid,
		creation_facility_uuid = excluded.creation_facility_uuid,
		scheduled_date = excluded.scheduled_date,
		status = excluded.status,
		cancel_reason = excluded.cancel_reason,
		remind_on = excluded.remind_on,
		agreed_to_visit = excluded.agreed_to_visit,
		appointment_type = excluded.appointment_type,
		updated_at = excluded.updated_at,
		deleted_at = excluded.deleted_at,
		sync_status = excluded.sync_status`

func (r *appointmentRepository) Save(ctx context.Context, appointments []model.Appointment) error {
	now := r.store.clock.Now()
	err := r.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		for i := range appointments {
			stampLocal(&appointments[i].Syncable, now)
			if _, err := tx.NamedExecContext(ctx, appointmentUpsert, appointments[i]); err != nil {
				return fmt.Errorf("failed to save appointment %s: %w", appointments[i].UUID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.store.bus.Publish(tableAppointments)
	return nil
}

func (r *appointmentRepository) Merge(ctx context.Context, appointments []model.Appointment) error {
	err := r.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		for i := range appointments {
			stampMerged(&appointments[i].Syncable)
			if _, err := tx.NamedExecContext(ctx, mergeGuard(appointmentUpsert), appointments[i]); err != nil {
				return fmt.Errorf("failed to merge appointment %s: %w", appointments[i].UUID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.store.bus.Publish(tableAppointments)
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	var a model.Appointment
	err := r.store.db.GetContext(ctx, &a, "SELECT * FROM appointments WHERE uuid = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("appointment %s not found: %w", id, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return &a, nil
}

func (r *appointmentRepository) WithSyncStatus(ctx context.Context, status model.SyncStatus, limit int) ([]model.Appointment, error) {
	var out []model.Appointment
	if err := r.store.db.SelectContext(ctx, &out,
		"SELECT * FROM appointments WHERE sync_status = ? ORDER BY updated_at LIMIT ?", status, limit); err != nil {
		return nil, fmt.Errorf("failed to list appointments with sync status %s: %w", status, err)
	}
	return out, nil
}

// MarkVisited closes out the appointment when the patient shows up; the
// change is a local edit that uploads on the next push.
func (r *appointmentRepository) MarkVisited(ctx context.Context, id uuid.UUID) error {
	return r.setStatus(ctx, id, model.AppointmentStatusVisited, nil)
}

func (r *appointmentRepository) Cancel(ctx context.Context, id uuid.UUID, reason model.CancelReason) error {
	return r.setStatus(ctx, id, model.AppointmentStatusCancelled, &reason)
}

func (r *appointmentRepository) setStatus(ctx context.Context, id uuid.UUID, status model.AppointmentStatus, reason *model.CancelReason) error {
	now := r.store.clock.Now()
	res, err := r.store.db.ExecContext(ctx,
		`UPDATE appointments SET status = ?, cancel_reason = ?, updated_at = ?, sync_status = ? WHERE uuid = ?`,
		status, reason, now, model.SyncStatusPending, id)
	if err != nil {
		return fmt.Errorf("failed to update appointment %s status: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("appointment %s not found", id)
	}
	r.store.bus.Publish(tableAppointments)
	return nil
}
