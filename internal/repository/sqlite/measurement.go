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

const (
	tableBloodPressure = "blood_pressure_measurements"
	tableBloodSugar    = "blood_sugar_measurements"
)

type bloodPressureRepository struct {
	tableOps
}

func NewBloodPressureRepository(store *Store) repository.BloodPressureRepository {
	return &bloodPressureRepository{tableOps: tableOps{store: store, table: tableBloodPressure}}
}

const bloodPressureUpsert = `
	INSERT INTO blood_pressure_measurements (uuid, patient_uuid, facility_uuid, user_uuid,
		systolic, diastolic, recorded_at, created_at, updated_at, deleted_at, sync_status)
	VALUES (:uuid, :patient_uuid, :facility_uuid, :user_uuid,
		:systolic, :diastolic, :recorded_at, :created_at, :updated_at, :deleted_at, :sync_status)
	ON CONFLICT(uuid) DO UPDATE SET
		patient_uuid = excluded.patient_uuid,
		facility_uuid = excluded.facility_uuid,
		user_uuid = excluded.user_uuid,
		systolic = excluded.systolic,
		diastolic = excluded.diastolic,
		recorded_at = excluded.recorded_at,
		updated_at = excluded.updated_at,
		deleted_at = excluded.deleted_at,
		sync_status = excluded.sync_status`

func (r *bloodPressureRepository) Save(ctx context.Context, measurements []model.BloodPressureMeasurement) error {
	now := r.store.clock.Now()
	err := r.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		for i := range measurements {
			stampLocal(&measurements[i].Syncable, now)
			if _, err := tx.NamedExecContext(ctx, bloodPressureUpsert, measurements[i]); err != nil {
				return fmt.Errorf("failed to save blood pressure %s: %w", measurements[i].UUID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.store.bus.Publish(tableBloodPressure)
	return nil
}

func (r *bloodPressureRepository) Merge(ctx context.Context, measurements []model.BloodPressureMeasurement) error {
	err := r.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		for i := range measurements {
			stampMerged(&measurements[i].Syncable)
			if _, err := tx.NamedExecContext(ctx, mergeGuard(bloodPressureUpsert), measurements[i]); err != nil {
				return fmt.Errorf("failed to merge blood pressure %s: %w", measurements[i].UUID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.store.bus.Publish(tableBloodPressure)
	return nil
}

func (r *bloodPressureRepository) Get(ctx context.Context, id uuid.UUID) (*model.BloodPressureMeasurement, error) {
	var m model.BloodPressureMeasurement
	err := r.store.db.GetContext(ctx, &m, "SELECT * FROM blood_pressure_measurements WHERE uuid = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("blood pressure %s not found: %w", id, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get blood pressure: %w", err)
	}
	return &m, nil
}

func (r *bloodPressureRepository) WithSyncStatus(ctx context.Context, status model.SyncStatus, limit int) ([]model.BloodPressureMeasurement, error) {
	var out []model.BloodPressureMeasurement
	if err := r.store.db.SelectContext(ctx, &out,
		"SELECT * FROM blood_pressure_measurements WHERE sync_status = ? ORDER BY updated_at LIMIT ?", status, limit); err != nil {
		return nil, fmt.Errorf("failed to list blood pressures with sync status %s: %w", status, err)
	}
	return out, nil
}

func (r *bloodPressureRepository) ListForPatient(ctx context.Context, patientUUID uuid.UUID) ([]model.BloodPressureMeasurement, error) {
	var out []model.BloodPressureMeasurement
	if err := r.store.db.SelectContext(ctx, &out,
		"SELECT * FROM blood_pressure_measurements WHERE patient_uuid = ? AND deleted_at IS NULL ORDER BY recorded_at DESC",
		patientUUID); err != nil {
		return nil, fmt.Errorf("failed to list blood pressures for patient %s: %w", patientUUID, err)
	}
	return out, nil
}

type bloodSugarRepository struct {
	tableOps
}

func NewBloodSugarRepository(store *Store) repository.BloodSugarRepository {
	return &bloodSugarRepository{tableOps: tableOps{store: store, table: tableBloodSugar}}
}

const bloodSugarUpsert = `
	INSERT INTO blood_sugar_measurements (uuid, patient_uuid, facility_uuid, user_uuid,
		reading_type, reading_value, reading_unit, recorded_at, created_at, updated_at, deleted_at, sync_status)
	VALUES (:uuid, :patient_uuid, :facility_uuid, :user_uuid,
		:reading_type, :reading_value, :reading_unit, :recorded_at, :created_at, :updated_at, :deleted_at, :sync_status)
	ON CONFLICT(uuid) DO UPDATE SET
		patient_uuid = excluded.patient_uuid,
		facility_uuid = excluded.facility_uuid,
		user_uuid = excluded.user_uuid,
		reading_type = excluded.reading_type,
		reading_value = excluded.reading_value,
		reading_unit = excluded.reading_unit,
		recorded_at = excluded.recorded_at,
		updated_at = excluded.updated_at,
		deleted_at = excluded.deleted_at,
		sync_status = excluded.sync_status`

func (r *bloodSugarRepository) Save(ctx context.Context, measurements []model.BloodSugarMeasurement) error {
	now := r.store.clock.Now()
	err := r.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		for i := range measurements {
			stampLocal(&measurements[i].Syncable, now)
			if _, err := tx.NamedExecContext(ctx, bloodSugarUpsert, measurements[i]); err != nil {
				return fmt.Errorf("failed to save blood sugar %s: %w", measurements[i].UUID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.store.bus.Publish(tableBloodSugar)
	return nil
}

func (r *bloodSugarRepository) Merge(ctx context.Context, measurements []model.BloodSugarMeasurement) error {
	err := r.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		for i := range measurements {
			stampMerged(&measurements[i].Syncable)
			if _, err := tx.NamedExecContext(ctx, mergeGuard(bloodSugarUpsert), measurements[i]); err != nil {
				return fmt.Errorf("failed to merge blood sugar %s: %w", measurements[i].UUID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.store.bus.Publish(tableBloodSugar)
	return nil
}

func (r *bloodSugarRepository) Get(ctx context.Context, id uuid.UUID) (*model.BloodSugarMeasurement, error) {
	var m model.BloodSugarMeasurement
	err := r.store.db.GetContext(ctx, &m, "SELECT * FROM blood_sugar_measurements WHERE uuid = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("blood sugar %s not found: %w", id, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get blood sugar: %w", err)
	}
	return &m, nil
}

func (r *bloodSugarRepository) WithSyncStatus(ctx context.Context, status model.SyncStatus, limit int) ([]model.BloodSugarMeasurement, error) {
	var out []model.BloodSugarMeasurement
	if err := r.store.db.SelectContext(ctx, &out,
		"SELECT * FROM blood_sugar_measurements WHERE sync_status = ? ORDER BY updated_at LIMIT ?", status, limit); err != nil {
		return nil, fmt.Errorf("failed to list blood sugars with sync status %s: %w", status, err)
	}
	return out, nil
}

func (r *bloodSugarRepository) ListForPatient(ctx context.Context, patientUUID uuid.UUID) ([]model.BloodSugarMeasurement, error) {
	var out []model.BloodSugarMeasurement
	if err := r.store.db.SelectContext(ctx, &out,
		"SELECT * FROM blood_sugar_measurements WHERE patient_uuid = ? AND deleted_at IS NULL ORDER BY recorded_at DESC",
		patientUUID); err != nil {
		return nil, fmt.Errorf("failed to list blood sugars for patient %s: %w", patientUUID, err)
	}
	return out, nil
}
