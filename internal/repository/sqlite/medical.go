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
	tableMedicalHistories = "medical_histories"
	tablePrescribedDrugs  = "prescribed_drugs"
)

type medicalHistoryRepository struct {
	tableOps
}

func NewMedicalHistoryRepository(store *Store) repository.MedicalHistoryRepository {
	return &medicalHistoryRepository{tableOps: tableOps{store: store, table: tableMedicalHistories}}
}

const medicalHistoryUpsert = `
	INSERT INTO medical_histories (uuid, patient_uuid, diagnosed_with_hypertension,
		diagnosed_with_diabetes, has_had_heart_attack, has_had_stroke, has_had_kidney_disease,
		is_on_hypertension_treatment, is_on_diabetes_treatment, is_smoking, total_cholesterol,
		created_at, updated_at, deleted_at, sync_status)
	VALUES (:uuid, :patient_uuid, :diagnosed_with_hypertension,
		:diagnosed_with_diabetes, :has_had_heart_attack, :has_had_stroke, :has_had_kidney_disease,
		:is_on_hypertension_treatment, :is_on_diabetes_treatment, :is_smoking, :total_cholesterol,
		:created_at, :updated_at, :deleted_at, :sync_status)
	ON CONFLICT(uuid) DO UPDATE SET
		patient_uuid = excluded.patient_uuid,
		diagnosed_with_hypertension = excluded.diagnosed_with_hypertension,
		diagnosed_with_diabetes = excluded.diagnosed_with_diabetes,
		has_had_heart_attack = excluded.has_had_heart_attack,
		has_had_stroke = excluded.has_had_stroke,
		has_had_kidney_disease = excluded.has_had_kidney_disease,
		is_on_hypertension_treatment = excluded.is_on_hypertension_treatment,
		is_on_diabetes_treatment = excluded.is_on_diabetes_treatment,
		is_smoking = excluded.is_smoking,
		total_cholesterol = excluded.total_cholesterol,
		updated_at = excluded.updated_at,
		deleted_at = excluded.deleted_at,
		sync_status = excluded.sync_status`

func (r *medicalHistoryRepository) Save(ctx context.Context, histories []model.MedicalHistory) error {
	now := r.store.clock.Now()
	err := r.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		for i := range histories {
			stampLocal(&histories[i].Syncable, now)
			if _, err := tx.NamedExecContext(ctx, medicalHistoryUpsert, histories[i]); err != nil {
				return fmt.Errorf("failed to save medical history %s: %w", histories[i].UUID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.store.bus.Publish(tableMedicalHistories)
	return nil
}

func (r *medicalHistoryRepository) Merge(ctx context.Context, histories []model.MedicalHistory) error {
	err := r.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		for i := range histories {
			stampMerged(&histories[i].Syncable)
			if _, err := tx.NamedExecContext(ctx, mergeGuard(medicalHistoryUpsert), histories[i]); err != nil {
				return fmt.Errorf("failed to merge medical history %s: %w", histories[i].UUID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.store.bus.Publish(tableMedicalHistories)
	return nil
}

func (r *medicalHistoryRepository) Get(ctx context.Context, id uuid.UUID) (*model.MedicalHistory, error) {
	var h model.MedicalHistory
	err := r.store.db.GetContext(ctx, &h, "SELECT * FROM medical_histories WHERE uuid = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("medical history %s not found: %w", id, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get medical history: %w", err)
	}
	return &h, nil
}

// GetForPatient returns the latest history bundle for the patient, or nil if
// the questionnaire was never answered.
func (r *medicalHistoryRepository) GetForPatient(ctx context.Context, patientUUID uuid.UUID) (*model.MedicalHistory, error) {
	var h model.MedicalHistory
	err := r.store.db.GetContext(ctx, &h,
		"SELECT * FROM medical_histories WHERE patient_uuid = ? AND deleted_at IS NULL ORDER BY updated_at DESC LIMIT 1",
		patientUUID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get medical history for patient %s: %w", patientUUID, err)
	}
	return &h, nil
}

func (r *medicalHistoryRepository) WithSyncStatus(ctx context.Context, status model.SyncStatus, limit int) ([]model.MedicalHistory, error) {
	var out []model.MedicalHistory
	if err := r.store.db.SelectContext(ctx, &out,
		"SELECT * FROM medical_histories WHERE sync_status = ? ORDER BY updated_at LIMIT ?", status, limit); err != nil {
		return nil, fmt.Errorf("failed to list medical histories with sync status %s: %w", status, err)
	}
	return out, nil
}

type prescribedDrugRepository struct {
	tableOps
}

func NewPrescribedDrugRepository(store *Store) repository.PrescribedDrugRepository {
	return &prescribedDrugRepository{tableOps: tableOps{store: store, table: tablePrescribedDrugs}}
}

const prescribedDrugUpsert = `
	INSERT INTO prescribed_drugs (uuid, patient_uuid, facility_uuid, name, dosage, frequency,
		duration_days, is_deleted, teleconsultation_uuid, created_at, updated_at, deleted_at, sync_status)
	VALUES (:uuid, :patient_uuid, :facility_uuid, :name, :dosage, :frequency,
		:duration_days, :is_deleted, :teleconsultation_uuid, :created_at, :updated_at, :deleted_at, :sync_status)
	ON CONFLICT(uuid) DO UPDATE SET
		patient_uuid = excluded.patient_uuid,
		facility_uuid = excluded.facility_uuid,
		name = excluded.name,
		dosage = excluded.dosage,
		frequency = excluded.frequency,
		duration_days = excluded.duration_days,
		is_deleted = excluded.is_deleted,
		teleconsultation_uuid = excluded.teleconsultation_uuid,
		updated_at = excluded.updated_at,
		deleted_at = excluded.deleted_at,
		sync_status = excluded.sync_status`

func (r *prescribedDrugRepository) Save(ctx context.Context, drugs []model.PrescribedDrug) error {
	now := r.store.clock.Now()
	err := r.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		for i := range drugs {
			stampLocal(&drugs[i].Syncable, now)
			if _, err := tx.NamedExecContext(ctx, prescribedDrugUpsert, drugs[i]); err != nil {
				return fmt.Errorf("failed to save prescribed drug %s: %w", drugs[i].UUID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.store.bus.Publish(tablePrescribedDrugs)
	return nil
}

func (r *prescribedDrugRepository) Merge(ctx context.Context, drugs []model.PrescribedDrug) error {
	err := r.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		for i := range drugs {
			stampMerged(&drugs[i].Syncable)
			if _, err := tx.NamedExecContext(ctx, mergeGuard(prescribedDrugUpsert), drugs[i]); err != nil {
				return fmt.Errorf("failed to merge prescribed drug %s: %w", drugs[i].UUID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.store.bus.Publish(tablePrescribedDrugs)
	return nil
}

func (r *prescribedDrugRepository) Get(ctx context.Context, id uuid.UUID) (*model.PrescribedDrug, error) {
	var d model.PrescribedDrug
	err := r.store.db.GetContext(ctx, &d, "SELECT * FROM prescribed_drugs WHERE uuid = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("prescribed drug %s not found: %w", id, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prescribed drug: %w", err)
	}
	return &d, nil
}

func (r *prescribedDrugRepository) WithSyncStatus(ctx context.Context, status model.SyncStatus, limit int) ([]model.PrescribedDrug, error) {
	var out []model.PrescribedDrug
	if err := r.store.db.SelectContext(ctx, &out,
		"SELECT * FROM prescribed_drugs WHERE sync_status = ? ORDER BY updated_at LIMIT ?", status, limit); err != nil {
		return nil, fmt.Errorf("failed to list prescribed drugs with sync status %s: %w", status, err)
	}
	return out, nil
}

func (r *prescribedDrugRepository) ListForPatient(ctx context.Context, patientUUID uuid.UUID) ([]model.PrescribedDrug, error) {
	var out []model.PrescribedDrug
	if err := r.store.db.SelectContext(ctx, &out,
		"SELECT * FROM prescribed_drugs WHERE patient_uuid = ? AND is_deleted = 0 AND deleted_at IS NULL ORDER BY name",
		patientUUID); err != nil {
		return nil, fmt.Errorf("failed to list prescribed drugs for patient %s: %w", patientUUID, err)
	}
	return out, nil
}
