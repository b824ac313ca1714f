package migrate

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-sync/pkg/logger"
)

func migrateTo(t *testing.T, db *sqlx.DB, target int) *Runner {
	t.Helper()
	r, err := NewRunner(db, logger.Discard(), Migrations())
	require.NoError(t, err)
	require.NoError(t, r.MigrateTo(context.Background(), target))
	return r
}

func hasColumn(t *testing.T, db *sqlx.DB, table, column string) bool {
	t.Helper()
	type columnInfo struct {
		Name string `db:"name"`
	}
	var cols []columnInfo
	require.NoError(t, db.Select(&cols, "SELECT name FROM pragma_table_info(?)", table))
	for _, c := range cols {
		if c.Name == column {
			return true
		}
	}
	return false
}

func TestUserFacilityMappingMigration(t *testing.T) {
	db := openTestDB(t)
	r := migrateTo(t, db, 6)

	_, err := db.Exec(`
		INSERT INTO users (uuid, full_name, phone_number, pin_digest, status, access_token, facility_uuid, created_at, updated_at)
		VALUES ('U1', 'Asha', '555', 'digest', 'active', 'token', 'F1', '2023-01-01 00:00:00', '2023-01-01 00:00:00')`)
	require.NoError(t, err)

	require.NoError(t, r.MigrateTo(context.Background(), 7))

	type mapping struct {
		UserUUID          string `db:"user_uuid"`
		FacilityUUID      string `db:"facility_uuid"`
		IsCurrentFacility bool   `db:"is_current_facility"`
	}
	var rows []mapping
	require.NoError(t, db.Select(&rows, "SELECT user_uuid, facility_uuid, is_current_facility FROM user_facilities"))
	require.Len(t, rows, 1)
	assert.Equal(t, "U1", rows[0].UserUUID)
	assert.Equal(t, "F1", rows[0].FacilityUUID)
	assert.True(t, rows[0].IsCurrentFacility)

	assert.False(t, hasColumn(t, db, "users", "facility_uuid"))
}

func TestUserFacilityMappingSkipsUsersWithoutFacility(t *testing.T) {
	db := openTestDB(t)
	r := migrateTo(t, db, 6)

	_, err := db.Exec(`
		INSERT INTO users (uuid, full_name, phone_number, pin_digest, status, created_at, updated_at)
		VALUES ('U1', 'Asha', '555', 'digest', 'active', '2023-01-01 00:00:00', '2023-01-01 00:00:00')`)
	require.NoError(t, err)

	require.NoError(t, r.MigrateTo(context.Background(), 7))

	var n int
	require.NoError(t, db.Get(&n, "SELECT COUNT(*) FROM user_facilities"))
	assert.Equal(t, 0, n)
}

func TestBloodPressureIdentifierRenameIsLossless(t *testing.T) {
	db := openTestDB(t)
	r := migrateTo(t, db, 10)

	_, err := db.Exec(`
		INSERT INTO blood_pressure_measurements
			(id, patient_id, facility_id, user_id, systolic, diastolic, recorded_at, created_at, updated_at, sync_status)
		VALUES ('BP1', 'P1', 'F1', 'U1', 142, 91, '2023-02-01 09:30:00', '2023-02-01 09:31:00', '2023-02-01 09:31:00', 'DONE')`)
	require.NoError(t, err)

	require.NoError(t, r.MigrateTo(context.Background(), 11))

	type reading struct {
		UUID        string `db:"uuid"`
		PatientUUID string `db:"patient_uuid"`
		Systolic    int    `db:"systolic"`
		Diastolic   int    `db:"diastolic"`
		SyncStatus  string `db:"sync_status"`
	}
	var rows []reading
	require.NoError(t, db.Select(&rows, "SELECT uuid, patient_uuid, systolic, diastolic, sync_status FROM blood_pressure_measurements"))
	require.Len(t, rows, 1)
	assert.Equal(t, reading{UUID: "BP1", PatientUUID: "P1", Systolic: 142, Diastolic: 91, SyncStatus: "DONE"}, rows[0])
}

func TestLoggedInStatusDerivedFromStoredCredential(t *testing.T) {
	db := openTestDB(t)
	r := migrateTo(t, db, 13)

	_, err := db.Exec(`
		INSERT INTO users (uuid, full_name, phone_number, pin_digest, status, access_token, created_at, updated_at)
		VALUES
			('U1', 'Asha', '555', 'digest', 'active', 'token', '2023-01-01 00:00:00', '2023-01-01 00:00:00'),
			('U2', 'Ravi', '556', 'digest', 'active', NULL, '2023-01-01 00:00:00', '2023-01-01 00:00:00')`)
	require.NoError(t, err)

	require.NoError(t, r.MigrateTo(context.Background(), 14))

	var status string
	require.NoError(t, db.Get(&status, "SELECT logged_in_status FROM users WHERE uuid = 'U1'"))
	assert.Equal(t, "LOGGED_IN", status)
	require.NoError(t, db.Get(&status, "SELECT logged_in_status FROM users WHERE uuid = 'U2'"))
	assert.Equal(t, "NOT_LOGGED_IN", status)

	assert.False(t, hasColumn(t, db, "users", "access_token"))
}

// A device that recorded data on the oldest supported release must carry all
// of it through the entire chain, including the user-facility mapping rows
// that reference the users table.
func TestFullChainCarriesDataFromEarliestVersion(t *testing.T) {
	db := openTestDB(t)
	r := migrateTo(t, db, 6)

	_, err := db.Exec(`
		INSERT INTO users (uuid, full_name, phone_number, pin_digest, status, access_token, facility_uuid, created_at, updated_at)
		VALUES ('U1', 'Asha', '555', 'digest', 'active', 'token', 'F1', '2023-01-01 00:00:00', '2023-01-01 00:00:00')`)
	require.NoError(t, err)
	_, err = db.Exec(`
		INSERT INTO patients (uuid, full_name, gender, status, registration_facility_uuid, bp_passport, created_at, updated_at, sync_status)
		VALUES ('P1', 'Meena', 'female', 'active', 'F1', 'PASSPORT-123', '2023-01-02 00:00:00', '2023-01-02 00:00:00', 'DONE')`)
	require.NoError(t, err)
	_, err = db.Exec(`
		INSERT INTO blood_pressure_measurements
			(id, patient_id, facility_id, user_id, systolic, diastolic, recorded_at, created_at, updated_at, sync_status)
		VALUES ('BP1', 'P1', 'F1', 'U1', 142, 91, '2023-01-02 09:30:00', '2023-01-02 09:31:00', '2023-01-02 09:31:00', 'DONE')`)
	require.NoError(t, err)
	_, err = db.Exec(`
		INSERT INTO appointments (uuid, patient_uuid, facility_uuid, scheduled_date, status, created_at, updated_at, sync_status)
		VALUES ('A1', 'P1', 'F1', '2023-02-01 00:00:00', 'scheduled', '2023-01-02 00:00:00', '2023-01-02 00:00:00', 'DONE')`)
	require.NoError(t, err)

	require.NoError(t, r.Migrate(context.Background()))

	version, err := r.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, r.LatestVersion(), version)

	var current bool
	require.NoError(t, db.Get(&current,
		"SELECT is_current_facility FROM user_facilities WHERE user_uuid = 'U1' AND facility_uuid = 'F1'"))
	assert.True(t, current)

	var status string
	require.NoError(t, db.Get(&status, "SELECT logged_in_status FROM users WHERE uuid = 'U1'"))
	assert.Equal(t, "LOGGED_IN", status)
	assert.False(t, hasColumn(t, db, "users", "access_token"))

	var identifier string
	require.NoError(t, db.Get(&identifier, "SELECT identifier FROM business_ids WHERE patient_uuid = 'P1'"))
	assert.Equal(t, "PASSPORT-123", identifier)

	var systolic int
	require.NoError(t, db.Get(&systolic, "SELECT systolic FROM blood_pressure_measurements WHERE uuid = 'BP1' AND patient_uuid = 'P1'"))
	assert.Equal(t, 142, systolic)

	var creation string
	require.NoError(t, db.Get(&creation, "SELECT creation_facility_uuid FROM appointments WHERE uuid = 'A1'"))
	assert.Equal(t, "F1", creation)

	var recorded string
	require.NoError(t, db.Get(&recorded, "SELECT recorded_at FROM patients WHERE uuid = 'P1'"))
	assert.Equal(t, "2023-01-02 00:00:00", recorded)
}

func TestCancelReasonMapping(t *testing.T) {
	db := openTestDB(t)
	r := migrateTo(t, db, 15)

	_, err := db.Exec(`
		INSERT INTO appointments (uuid, patient_uuid, facility_uuid, scheduled_date, status, cancel_reason, created_at, updated_at, sync_status)
		VALUES
			('A1', 'P1', 'F1', '2023-03-01 00:00:00', 'cancelled', 'PATIENT_NOT_RESPONDING', '2023-03-01 00:00:00', '2023-03-01 00:00:00', 'DONE'),
			('A2', 'P2', 'F1', '2023-03-01 00:00:00', 'cancelled', 'MOVED_TO_PRIVATE_PRACTITIONER', '2023-03-01 00:00:00', '2023-03-01 00:00:00', 'DONE'),
			('A3', 'P3', 'F1', '2023-03-01 00:00:00', 'cancelled', 'SOME_FUTURE_REASON', '2023-03-01 00:00:00', '2023-03-01 00:00:00', 'DONE'),
			('A4', 'P4', 'F1', '2023-03-01 00:00:00', 'scheduled', NULL, '2023-03-01 00:00:00', '2023-03-01 00:00:00', 'DONE')`)
	require.NoError(t, err)

	require.NoError(t, r.MigrateTo(context.Background(), 16))

	var reason string
	require.NoError(t, db.Get(&reason, "SELECT cancel_reason FROM appointments WHERE uuid = 'A1'"))
	assert.Equal(t, "not_responding", reason)
	require.NoError(t, db.Get(&reason, "SELECT cancel_reason FROM appointments WHERE uuid = 'A2'"))
	assert.Equal(t, "moved_to_private_practitioner", reason)

	// Unrecognised values pass through untouched.
	require.NoError(t, db.Get(&reason, "SELECT cancel_reason FROM appointments WHERE uuid = 'A3'"))
	assert.Equal(t, "SOME_FUTURE_REASON", reason)

	var nullCount int
	require.NoError(t, db.Get(&nullCount, "SELECT COUNT(*) FROM appointments WHERE uuid = 'A4' AND cancel_reason IS NULL"))
	assert.Equal(t, 1, nullCount)
}

func TestBusinessIdentifierBackfill(t *testing.T) {
	db := openTestDB(t)
	r := migrateTo(t, db, 28)

	_, err := db.Exec(`
		INSERT INTO patients (uuid, full_name, gender, status, registration_facility_uuid, bp_passport, recorded_at, reminder_consent, created_at, updated_at, sync_status)
		VALUES
			('P1', 'Meena', 'female', 'active', 'F1', 'PASSPORT-123', '2023-01-01 00:00:00', 'granted', '2023-01-01 00:00:00', '2023-01-02 00:00:00', 'DONE'),
			('P2', 'Kiran', 'male', 'active', 'F1', NULL, '2023-01-01 00:00:00', 'granted', '2023-01-01 00:00:00', '2023-01-01 00:00:00', 'PENDING')`)
	require.NoError(t, err)

	require.NoError(t, r.MigrateTo(context.Background(), 29))

	type businessID struct {
		PatientUUID    string `db:"patient_uuid"`
		IdentifierType string `db:"identifier_type"`
		Identifier     string `db:"identifier"`
		SyncStatus     string `db:"sync_status"`
	}
	var rows []businessID
	require.NoError(t, db.Select(&rows, "SELECT patient_uuid, identifier_type, identifier, sync_status FROM business_ids"))
	require.Len(t, rows, 1)
	assert.Equal(t, "P1", rows[0].PatientUUID)
	assert.Equal(t, "bp_passport", rows[0].IdentifierType)
	assert.Equal(t, "PASSPORT-123", rows[0].Identifier)
	assert.Equal(t, "DONE", rows[0].SyncStatus)

	assert.False(t, hasColumn(t, db, "patients", "bp_passport"))
}

func TestBloodSugarUnitBackfill(t *testing.T) {
	db := openTestDB(t)
	r := migrateTo(t, db, 29)

	_, err := db.Exec(`
		INSERT INTO blood_sugar_measurements
			(uuid, patient_uuid, facility_uuid, user_uuid, reading_type, reading_value, recorded_at, created_at, updated_at, sync_status)
		VALUES
			('S1', 'P1', 'F1', 'U1', 'hba1c', '6.5', '2023-04-01 00:00:00', '2023-04-01 00:00:00', '2023-04-01 00:00:00', 'DONE'),
			('S2', 'P1', 'F1', 'U1', 'random', '140', '2023-04-01 00:00:00', '2023-04-01 00:00:00', '2023-04-01 00:00:00', 'DONE')`)
	require.NoError(t, err)

	require.NoError(t, r.MigrateTo(context.Background(), 30))

	var unit string
	require.NoError(t, db.Get(&unit, "SELECT reading_unit FROM blood_sugar_measurements WHERE uuid = 'S1'"))
	assert.Equal(t, "%", unit)
	require.NoError(t, db.Get(&unit, "SELECT reading_unit FROM blood_sugar_measurements WHERE uuid = 'S2'"))
	assert.Equal(t, "mg/dL", unit)
}

func TestAppointmentCreationFacilityBackfill(t *testing.T) {
	db := openTestDB(t)
	r := migrateTo(t, db, 17)

	_, err := db.Exec(`
		INSERT INTO appointments (uuid, patient_uuid, facility_uuid, scheduled_date, status, appointment_type, created_at, updated_at, sync_status)
		VALUES ('A1', 'P1', 'F1', '2023-03-01 00:00:00', 'scheduled', 'manual', '2023-03-01 00:00:00', '2023-03-01 00:00:00', 'DONE')`)
	require.NoError(t, err)

	require.NoError(t, r.MigrateTo(context.Background(), 18))

	var creation string
	require.NoError(t, db.Get(&creation, "SELECT creation_facility_uuid FROM appointments WHERE uuid = 'A1'"))
	assert.Equal(t, "F1", creation)
}
