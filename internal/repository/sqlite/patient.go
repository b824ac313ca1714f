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
	tablePatients     = "patients"
	tableAddresses    = "patient_addresses"
	tablePhoneNumbers = "patient_phone_numbers"
	tableBusinessIDs  = "business_ids"
)

type patientRepository struct {
	tableOps
}

func NewPatientRepository(store *Store) repository.PatientRepository {
	return &patientRepository{tableOps: tableOps{store: store, table: tablePatients}}
}

const patientUpsert = `
	INSERT INTO patients (uuid, full_name, gender, date_of_birth, age, age_updated_at,
		status, registration_facility_uuid, assigned_facility_uuid, reminder_consent,
		recorded_at, retain_until, deleted_reason, created_at, updated_at, deleted_at, sync_status)
	VALUES (:uuid, :full_name, :gender, :date_of_birth, :age, :age_updated_at,
		:status, :registration_facility_uuid, :assigned_facility_uuid, :reminder_consent,
		:recorded_at, :retain_until, :deleted_reason, :created_at, :updated_at, :deleted_at, :sync_status)
	ON CONFLICT(uuid) DO UPDATE SET
		full_name = excluded.full_name,
		gender = excluded.gender,
		date_of_birth = excluded.date_of_birth,
		age = excluded.age,
		age_updated_at = excluded.age_updated_at,
		status = excluded.status,
		registration_facility_uuid = excluded.registration_facility_uuid,
		assigned_facility_uuid = excluded.assigned_facility_uuid,
		reminder_consent = excluded.reminder_consent,
		recorded_at = excluded.recorded_at,
		retain_until = excluded.retain_until,
		deleted_reason = excluded.deleted_reason,
		updated_at = excluded.updated_at,
		deleted_at = excluded.deleted_at,
		sync_status = excluded.sync_status`

const addressUpsert = `
	INSERT INTO patient_addresses (uuid, patient_uuid, street_address, colony_or_village,
		zone, district, state, country, created_at, updated_at, deleted_at, sync_status)
	VALUES (:uuid, :patient_uuid, :street_address, :colony_or_village,
		:zone, :district, :state, :country, :created_at, :updated_at, :deleted_at, :sync_status)
	ON CONFLICT(uuid) DO UPDATE SET
		patient_uuid = excluded.patient_uuid,
		street_address = excluded.street_address,
		colony_or_village = excluded.colony_or_village,
		zone = excluded.zone,
		district = excluded.district,
		state = excluded.state,
		country = excluded.country,
		updated_at = excluded.updated_at,
		deleted_at = excluded.deleted_at,
		sync_status = excluded.sync_status`

const phoneNumberUpsert = `
	INSERT INTO patient_phone_numbers (uuid, patient_uuid, number, phone_type, active,
		created_at, updated_at, deleted_at, sync_status)
	VALUES (:uuid, :patient_uuid, :number, :phone_type, :active,
		:created_at, :updated_at, :deleted_at, :sync_status)
	ON CONFLICT(uuid) DO UPDATE SET
		patient_uuid = excluded.patient_uuid,
		number = excluded.number,
		phone_type = excluded.phone_type,
		active = excluded.active,
		updated_at = excluded.updated_at,
		deleted_at = excluded.deleted_at,
		sync_status = excluded.sync_status`

const businessIDUpsert = `
	INSERT INTO business_ids (uuid, patient_uuid, identifier_type, identifier,
		meta_version, meta, created_at, updated_at, deleted_at, sync_status)
	VALUES (:uuid, :patient_uuid, :identifier_type, :identifier,
		:meta_version, :meta, :created_at, :updated_at, :deleted_at, :sync_status)
	ON CONFLICT(uuid) DO UPDATE SET
		patient_uuid = excluded.patient_uuid,
		identifier_type = excluded.identifier_type,
		identifier = excluded.identifier,
		meta_version = excluded.meta_version,
		meta = excluded.meta,
		updated_at = excluded.updated_at,
		deleted_at = excluded.deleted_at,
		sync_status = excluded.sync_status`

// mergeGuard makes an upsert leave rows with unsynced local changes alone;
// pulled server copies only ever replace fully-synced rows.
func mergeGuard(upsert string) string {
	return upsert + "\n\tWHERE sync_status = 'DONE'"
}

// Save writes the profiles as local edits: every supplied record is stamped
// and reset to PENDING. Children that the caller omits are left untouched,
// so re-saving a patient without its phone numbers preserves them.
func (r *patientRepository) Save(ctx context.Context, profiles []model.PatientProfile) error {
	now := r.store.clock.Now()
	err := r.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		for i := range profiles {
			p := &profiles[i]
			stampLocal(&p.Patient.Syncable, now)
			if _, err := tx.NamedExecContext(ctx, patientUpsert, p.Patient); err != nil {
				return fmt.Errorf("failed to save patient %s: %w", p.Patient.UUID, err)
			}
			if p.Address != nil {
				stampLocal(&p.Address.Syncable, now)
				if _, err := tx.NamedExecContext(ctx, addressUpsert, p.Address); err != nil {
					return fmt.Errorf("failed to save address for patient %s: %w", p.Patient.UUID, err)
				}
			}
			for j := range p.PhoneNumbers {
				stampLocal(&p.PhoneNumbers[j].Syncable, now)
				if _, err := tx.NamedExecContext(ctx, phoneNumberUpsert, p.PhoneNumbers[j]); err != nil {
					return fmt.Errorf("failed to save phone number for patient %s: %w", p.Patient.UUID, err)
				}
			}
			for j := range p.BusinessIDs {
				stampLocal(&p.BusinessIDs[j].Syncable, now)
				if _, err := tx.NamedExecContext(ctx, businessIDUpsert, p.BusinessIDs[j]); err != nil {
					return fmt.Errorf("failed to save business id for patient %s: %w", p.Patient.UUID, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.store.bus.Publish(tablePatients, tableAddresses, tablePhoneNumbers, tableBusinessIDs)
	return nil
}

// Merge applies server copies. Rows with pending local changes win until
// they are pushed.
func (r *patientRepository) Merge(ctx context.Context, profiles []model.PatientProfile) error {
	err := r.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		for i := range profiles {
			p := &profiles[i]
			stampMerged(&p.Patient.Syncable)
			if _, err := tx.NamedExecContext(ctx, mergeGuard(patientUpsert), p.Patient); err != nil {
				return fmt.Errorf("failed to merge patient %s: %w", p.Patient.UUID, err)
			}
			if p.Address != nil {
				stampMerged(&p.Address.Syncable)
				if _, err := tx.NamedExecContext(ctx, mergeGuard(addressUpsert), p.Address); err != nil {
					return fmt.Errorf("failed to merge address for patient %s: %w", p.Patient.UUID, err)
				}
			}
			for j := range p.PhoneNumbers {
				stampMerged(&p.PhoneNumbers[j].Syncable)
				if _, err := tx.NamedExecContext(ctx, mergeGuard(phoneNumberUpsert), p.PhoneNumbers[j]); err != nil {
					return fmt.Errorf("failed to merge phone number for patient %s: %w", p.Patient.UUID, err)
				}
			}
			for j := range p.BusinessIDs {
				stampMerged(&p.BusinessIDs[j].Syncable)
				if _, err := tx.NamedExecContext(ctx, mergeGuard(businessIDUpsert), p.BusinessIDs[j]); err != nil {
					return fmt.Errorf("failed to merge business id for patient %s: %w", p.Patient.UUID, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.store.bus.Publish(tablePatients, tableAddresses, tablePhoneNumbers, tableBusinessIDs)
	return nil
}

func (r *patientRepository) Get(ctx context.Context, id uuid.UUID) (*model.PatientProfile, error) {
	var profile model.PatientProfile
	err := r.store.db.GetContext(ctx, &profile.Patient, "SELECT * FROM patients WHERE uuid = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("patient %s not found: %w", id, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	if err := r.loadChildren(ctx, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *patientRepository) loadChildren(ctx context.Context, profile *model.PatientProfile) error {
	id := profile.Patient.UUID
	var addresses []model.PatientAddress
	if err := r.store.db.SelectContext(ctx, &addresses,
		"SELECT * FROM patient_addresses WHERE patient_uuid = ?", id); err != nil {
		return fmt.Errorf("failed to load addresses for patient %s: %w", id, err)
	}
	if len(addresses) > 0 {
		profile.Address = &addresses[0]
	}
	if err := r.store.db.SelectContext(ctx, &profile.PhoneNumbers,
		"SELECT * FROM patient_phone_numbers WHERE patient_uuid = ? ORDER BY created_at", id); err != nil {
		return fmt.Errorf("failed to load phone numbers for patient %s: %w", id, err)
	}
	if err := r.store.db.SelectContext(ctx, &profile.BusinessIDs,
		"SELECT * FROM business_ids WHERE patient_uuid = ? ORDER BY created_at", id); err != nil {
		return fmt.Errorf("failed to load business ids for patient %s: %w", id, err)
	}
	return nil
}

func (r *patientRepository) WithSyncStatus(ctx context.Context, status model.SyncStatus, limit int) ([]model.PatientProfile, error) {
	var patients []model.Patient
	if err := r.store.db.SelectContext(ctx, &patients,
		"SELECT * FROM patients WHERE sync_status = ? ORDER BY updated_at LIMIT ?", status, limit); err != nil {
		return nil, fmt.Errorf("failed to list patients with sync status %s: %w", status, err)
	}
	profiles := make([]model.PatientProfile, len(patients))
	for i, p := range patients {
		profiles[i].Patient = p
		if err := r.loadChildren(ctx, &profiles[i]); err != nil {
			return nil, err
		}
	}
	return profiles, nil
}

// UpdateSyncStatus moves the listed patients and, because patients sync as a
// nested payload, their owned records too. Children dirtied after the push
// started keep their new status.
func (r *patientRepository) UpdateSyncStatus(ctx context.Context, ids []uuid.UUID, from, to model.SyncStatus) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var moved int64
	err := r.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		query, args, err := sqlx.In(
			"UPDATE patients SET sync_status = ? WHERE sync_status = ? AND uuid IN (?)", to, from, ids)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
		if err != nil {
			return fmt.Errorf("failed to update patient sync status: %w", err)
		}
		moved, err = res.RowsAffected()
		if err != nil {
			return err
		}
		for _, child := range []string{tableAddresses, tablePhoneNumbers, tableBusinessIDs} {
			query, args, err := sqlx.In(
				fmt.Sprintf("UPDATE %s SET sync_status = ? WHERE sync_status = ? AND patient_uuid IN (?)", child),
				to, from, ids)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
				return fmt.Errorf("failed to update %s sync status: %w", child, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	r.store.bus.Publish(tablePatients, tableAddresses, tablePhoneNumbers, tableBusinessIDs)
	return moved, nil
}

// SoftDelete tombstones the patient as a local edit to be propagated on the
// next push. Hard deletion happens later in the retention purge.
func (r *patientRepository) SoftDelete(ctx context.Context, id uuid.UUID, reason string) error {
	now := r.store.clock.Now()
	_, err := r.store.db.ExecContext(ctx,
		`UPDATE patients SET deleted_at = ?, deleted_reason = ?, updated_at = ?, sync_status = ? WHERE uuid = ?`,
		now, reason, now, model.SyncStatusPending, id)
	if err != nil {
		return fmt.Errorf("failed to soft-delete patient %s: %w", id, err)
	}
	r.store.bus.Publish(tablePatients)
	return nil
}
