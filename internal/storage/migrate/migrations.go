package migrate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Migrations returns the full schema history from version 6 to current.
// Order matters; NewRunner rejects gaps and duplicates.
func Migrations() []Migration {
	return []Migration{
		{From: 6, To: 7, Name: "user facility mapping table", Apply: migrateUserFacilities},
		{From: 7, To: 8, Name: "patient recorded_at", Apply: statements(
			`ALTER TABLE patients ADD COLUMN recorded_at DATETIME`,
			`UPDATE patients SET recorded_at = created_at`,
		)},
		{From: 8, To: 9, Name: "prescribed drugs table", Apply: statements(`
			CREATE TABLE prescribed_drugs (
				uuid TEXT PRIMARY KEY NOT NULL,
				patient_uuid TEXT NOT NULL,
				facility_uuid TEXT NOT NULL,
				name TEXT NOT NULL,
				dosage TEXT,
				frequency TEXT,
				duration_days INTEGER,
				is_deleted INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				deleted_at DATETIME,
				sync_status TEXT NOT NULL
			)`,
			`CREATE INDEX idx_prescribed_drugs_patient ON prescribed_drugs(patient_uuid)`,
		)},
		{From: 9, To: 10, Name: "medical histories table", Apply: statements(`
			CREATE TABLE medical_histories (
				uuid TEXT PRIMARY KEY NOT NULL,
				patient_uuid TEXT NOT NULL,
				diagnosed_with_hypertension TEXT NOT NULL DEFAULT 'unknown',
				has_had_heart_attack TEXT NOT NULL DEFAULT 'unknown',
				has_had_stroke TEXT NOT NULL DEFAULT 'unknown',
				has_had_kidney_disease TEXT NOT NULL DEFAULT 'unknown',
				is_on_hypertension_treatment TEXT NOT NULL DEFAULT 'unknown',
				is_smoking TEXT NOT NULL DEFAULT 'unknown',
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				deleted_at DATETIME,
				sync_status TEXT NOT NULL
			)`,
			`CREATE INDEX idx_medical_histories_patient ON medical_histories(patient_uuid)`,
		)},
		{From: 10, To: 11, Name: "uuid column names on blood pressure", Apply: migrateBloodPressureIdentifiers},
		{From: 11, To: 12, Name: "drop unused fuzzy search table", Apply: statements(
			`DROP TABLE patient_fuzzy_search`,
		)},
		{From: 12, To: 13, Name: "appointment reminders", Apply: statements(
			`ALTER TABLE appointments ADD COLUMN remind_on DATETIME`,
			`ALTER TABLE appointments ADD COLUMN agreed_to_visit INTEGER`,
		)},
		// user_facilities references users, so the column changes happen in
		// place; dropping the table would trip the foreign key at commit.
		{From: 13, To: 14, Name: "user logged-in status", Apply: statements(
			`ALTER TABLE users ADD COLUMN logged_in_status TEXT NOT NULL DEFAULT 'NOT_LOGGED_IN'`,
			`UPDATE users SET logged_in_status = 'LOGGED_IN' WHERE access_token IS NOT NULL`,
			`ALTER TABLE users DROP COLUMN access_token`,
		)},
		{From: 14, To: 15, Name: "blood sugar table", Apply: statements(`
			CREATE TABLE blood_sugar_measurements (
				uuid TEXT PRIMARY KEY NOT NULL,
				patient_uuid TEXT NOT NULL,
				facility_uuid TEXT NOT NULL,
				user_uuid TEXT NOT NULL,
				reading_type TEXT NOT NULL,
				reading_value TEXT NOT NULL,
				recorded_at DATETIME NOT NULL,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				deleted_at DATETIME,
				sync_status TEXT NOT NULL
			)`,
			`CREATE INDEX idx_blood_sugar_patient ON blood_sugar_measurements(patient_uuid)`,
		)},
		{From: 15, To: 16, Name: "cancel reason enum", Apply: statements(
			`UPDATE appointments SET cancel_reason = CASE cancel_reason
				WHEN 'PATIENT_NOT_RESPONDING' THEN 'not_responding'
				WHEN 'MOVED' THEN 'moved'
				WHEN 'DEAD' THEN 'dead'
				WHEN 'INVALID_PHONE_NUMBER' THEN 'invalid_phone_number'
				WHEN 'PUBLIC_HOSPITAL_TRANSFER' THEN 'public_hospital_transfer'
				WHEN 'MOVED_TO_PRIVATE_PRACTITIONER' THEN 'moved_to_private_practitioner'
				WHEN 'OTHER' THEN 'other'
				ELSE cancel_reason END
			WHERE cancel_reason IS NOT NULL`,
		)},
		{From: 16, To: 17, Name: "appointment type", Apply: statements(
			`ALTER TABLE appointments ADD COLUMN appointment_type TEXT NOT NULL DEFAULT 'manual'`,
		)},
		{From: 17, To: 18, Name: "appointment creation facility", Apply: statements(
			`ALTER TABLE appointments ADD COLUMN creation_facility_uuid TEXT`,
			`UPDATE appointments SET creation_facility_uuid = facility_uuid`,
		)},
		{From: 18, To: 19, Name: "facility geolocation", Apply: statements(
			`ALTER TABLE facilities ADD COLUMN latitude REAL`,
			`ALTER TABLE facilities ADD COLUMN longitude REAL`,
		)},
		{From: 19, To: 20, Name: "facility protocol and group", Apply: statements(
			`ALTER TABLE facilities ADD COLUMN protocol_uuid TEXT`,
			`ALTER TABLE facilities ADD COLUMN group_uuid TEXT`,
		)},
		{From: 20, To: 21, Name: "facility sync group", Apply: statements(
			`ALTER TABLE facilities ADD COLUMN sync_group TEXT NOT NULL DEFAULT ''`,
		)},
		{From: 21, To: 22, Name: "diabetes history questions", Apply: statements(
			`ALTER TABLE medical_histories ADD COLUMN diagnosed_with_diabetes TEXT NOT NULL DEFAULT 'unknown'`,
			`ALTER TABLE medical_histories ADD COLUMN is_on_diabetes_treatment TEXT NOT NULL DEFAULT 'unknown'`,
		)},
		{From: 22, To: 23, Name: "cholesterol", Apply: statements(
			`ALTER TABLE medical_histories ADD COLUMN total_cholesterol REAL`,
		)},
		{From: 23, To: 24, Name: "reminder consent", Apply: statements(
			`ALTER TABLE patients ADD COLUMN reminder_consent TEXT NOT NULL DEFAULT 'granted'`,
		)},
		{From: 24, To: 25, Name: "teleconsultation link on prescriptions", Apply: statements(
			`ALTER TABLE prescribed_drugs ADD COLUMN teleconsultation_uuid TEXT`,
		)},
		{From: 25, To: 26, Name: "patient retention", Apply: statements(
			`ALTER TABLE patients ADD COLUMN retain_until DATETIME`,
			`ALTER TABLE patients ADD COLUMN deleted_reason TEXT`,
		)},
		{From: 26, To: 27, Name: "call results table", Apply: statements(`
			CREATE TABLE call_results (
				uuid TEXT PRIMARY KEY NOT NULL,
				user_uuid TEXT NOT NULL,
				appointment_uuid TEXT NOT NULL,
				outcome TEXT NOT NULL,
				remove_reason TEXT,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				deleted_at DATETIME,
				sync_status TEXT NOT NULL
			)`,
			`CREATE INDEX idx_call_results_appointment ON call_results(appointment_uuid)`,
		)},
		{From: 27, To: 28, Name: "assigned facility", Apply: statements(
			`ALTER TABLE patients ADD COLUMN assigned_facility_uuid TEXT`,
		)},
		{From: 28, To: 29, Name: "business identifiers table", Apply: migrateBusinessIdentifiers},
		{From: 29, To: 30, Name: "blood sugar units", Apply: statements(
			`ALTER TABLE blood_sugar_measurements ADD COLUMN reading_unit TEXT NOT NULL DEFAULT 'mg/dL'`,
			`UPDATE blood_sugar_measurements SET reading_unit = '%' WHERE reading_type = 'hba1c'`,
		)},
	}
}

// statements wraps a fixed list of DDL/DML into a migration body.
func statements(stmts ...string) func(ctx context.Context, tx *sqlx.Tx) error {
	return func(ctx context.Context, tx *sqlx.Tx) error {
		for _, s := range stmts {
			if _, err := tx.ExecContext(ctx, s); err != nil {
				return fmt.Errorf("statement failed: %w", err)
			}
		}
		return nil
	}
}

// migrateUserFacilities moves users.facility_uuid into a user->facility
// mapping table. The mapping rows are written before the column is dropped
// so every stored facility carries across; the user's sole facility becomes
// the current one.
func migrateUserFacilities(ctx context.Context, tx *sqlx.Tx) error {
	stmts := []string{
		`CREATE TABLE user_facilities (
			user_uuid TEXT NOT NULL REFERENCES users(uuid),
			facility_uuid TEXT NOT NULL,
			is_current_facility INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_uuid, facility_uuid)
		)`,
		`INSERT INTO user_facilities (user_uuid, facility_uuid, is_current_facility)
			SELECT uuid, facility_uuid, 1 FROM users WHERE facility_uuid IS NOT NULL`,
		`ALTER TABLE users DROP COLUMN facility_uuid`,
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("statement failed: %w", err)
		}
	}
	return nil
}

// migrateBloodPressureIdentifiers rebuilds the table under the uuid naming
// convention. The copy is a straight column rename; every row carries across.
func migrateBloodPressureIdentifiers(ctx context.Context, tx *sqlx.Tx) error {
	stmts := []string{
		`CREATE TABLE blood_pressure_measurements_new (
			uuid TEXT PRIMARY KEY NOT NULL,
			patient_uuid TEXT NOT NULL,
			facility_uuid TEXT NOT NULL,
			user_uuid TEXT NOT NULL,
			systolic INTEGER NOT NULL,
			diastolic INTEGER NOT NULL,
			recorded_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			deleted_at DATETIME,
			sync_status TEXT NOT NULL
		)`,
		`INSERT INTO blood_pressure_measurements_new
			(uuid, patient_uuid, facility_uuid, user_uuid, systolic, diastolic,
			 recorded_at, created_at, updated_at, deleted_at, sync_status)
			SELECT id, patient_id, facility_id, user_id, systolic, diastolic,
			 recorded_at, created_at, updated_at, deleted_at, sync_status
			FROM blood_pressure_measurements`,
		`DROP TABLE blood_pressure_measurements`,
		`ALTER TABLE blood_pressure_measurements_new RENAME TO blood_pressure_measurements`,
		`CREATE INDEX idx_bp_patient ON blood_pressure_measurements(patient_uuid)`,
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("statement failed: %w", err)
		}
	}
	return nil
}

// migrateBusinessIdentifiers creates the business_ids table and converts the
// legacy bp_passport column into identifier rows, one per patient that has a
// passport on record.
func migrateBusinessIdentifiers(ctx context.Context, tx *sqlx.Tx) error {
	createStmts := []string{
		`CREATE TABLE business_ids (
			uuid TEXT PRIMARY KEY NOT NULL,
			patient_uuid TEXT NOT NULL,
			identifier_type TEXT NOT NULL,
			identifier TEXT NOT NULL,
			meta_version TEXT NOT NULL,
			meta TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			deleted_at DATETIME,
			sync_status TEXT NOT NULL
		)`,
		`CREATE INDEX idx_business_ids_patient ON business_ids(patient_uuid)`,
		`CREATE INDEX idx_business_ids_identifier ON business_ids(identifier)`,
	}
	for _, s := range createStmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("statement failed: %w", err)
		}
	}

	type passportRow struct {
		UUID       string    `db:"uuid"`
		BPPassport string    `db:"bp_passport"`
		CreatedAt  time.Time `db:"created_at"`
		UpdatedAt  time.Time `db:"updated_at"`
		SyncStatus string    `db:"sync_status"`
	}
	var rows []passportRow
	if err := tx.SelectContext(ctx, &rows,
		`SELECT uuid, bp_passport, created_at, updated_at, sync_status FROM patients WHERE bp_passport IS NOT NULL`,
	); err != nil {
		return fmt.Errorf("failed to read bp passports: %w", err)
	}
	for _, row := range rows {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO business_ids
				(uuid, patient_uuid, identifier_type, identifier, meta_version, meta, created_at, updated_at, sync_status)
			 VALUES (?, ?, 'bp_passport', ?, 'bp_passport_v1', '{}', ?, ?, ?)`,
			uuid.NewString(), row.UUID, row.BPPassport, row.CreatedAt, row.UpdatedAt, row.SyncStatus,
		); err != nil {
			return fmt.Errorf("failed to copy bp passport for patient %s: %w", row.UUID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `ALTER TABLE patients DROP COLUMN bp_passport`); err != nil {
		return fmt.Errorf("statement failed: %w", err)
	}
	return nil
}
