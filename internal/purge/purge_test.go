package purge

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-sync/internal/model"
	"github.com/jwalitptl/clinic-sync/internal/notify"
	"github.com/jwalitptl/clinic-sync/internal/repository"
	repo "github.com/jwalitptl/clinic-sync/internal/repository/sqlite"
	"github.com/jwalitptl/clinic-sync/internal/storage/migrate"
	"github.com/jwalitptl/clinic-sync/internal/storage/sqlite"
	"github.com/jwalitptl/clinic-sync/pkg/clock"
	"github.com/jwalitptl/clinic-sync/pkg/logger"
	"github.com/jwalitptl/clinic-sync/pkg/metrics"
)

var testStart = time.Date(2023, 6, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	purger       *Purger
	patients     repository.PatientRepository
	appointments repository.AppointmentRepository
	bps          repository.BloodPressureRepository
	drugs        repository.PrescribedDrugRepository
	calls        repository.CallResultRepository
	facilities   repository.FacilityRepository
	clock        *clock.Fake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	runner, err := migrate.NewRunner(db, logger.Discard(), migrate.Migrations())
	require.NoError(t, err)
	require.NoError(t, runner.Migrate(context.Background()))

	clk := clock.NewFake(testStart)
	store := repo.NewStore(db, notify.NewBus(), clk)

	return &fixture{
		purger:       NewPurger(store, clk, metrics.NewUnregistered("test"), logger.Discard()),
		patients:     repo.NewPatientRepository(store),
		appointments: repo.NewAppointmentRepository(store),
		bps:          repo.NewBloodPressureRepository(store),
		drugs:        repo.NewPrescribedDrugRepository(store),
		calls:        repo.NewCallResultRepository(store),
		facilities:   repo.NewFacilityRepository(store),
		clock:        clk,
	}
}

func newPatient(facilityUUID uuid.UUID) model.Patient {
	return model.Patient{
		UUID:                     uuid.New(),
		FullName:                 "Meena Devi",
		Gender:                   model.GenderFemale,
		Status:                   model.PatientStatusActive,
		RegistrationFacilityUUID: facilityUUID,
		ReminderConsent:          model.ReminderConsentGranted,
		RecordedAt:               testStart,
	}
}

// seedSynced inserts the patient through the merge path, leaving it DONE.
func (f *fixture) seedSynced(t *testing.T, p model.Patient) {
	t.Helper()
	require.NoError(t, f.patients.Merge(context.Background(), []model.PatientProfile{{Patient: p}}))
}

func (f *fixture) patientExists(t *testing.T, id uuid.UUID) bool {
	t.Helper()
	_, err := f.patients.Get(context.Background(), id)
	return err == nil
}

func expired(base time.Time) *time.Time {
	v := base.Add(-time.Hour)
	return &v
}

func TestRetentionPurgeRemovesExpiredSoftDeletedPatients(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	facilityUUID := uuid.New()

	doomed := newPatient(facilityUUID)
	doomed.DeletedAt = expired(testStart)
	doomed.RetainUntil = expired(testStart)

	notYet := newPatient(facilityUUID)
	notYet.DeletedAt = expired(testStart)
	keepUntil := testStart.Add(24 * time.Hour)
	notYet.RetainUntil = &keepUntil

	f.seedSynced(t, doomed)
	f.seedSynced(t, notYet)

	require.NoError(t, f.purger.Run(ctx, testStart))

	assert.False(t, f.patientExists(t, doomed.UUID))
	assert.True(t, f.patientExists(t, notYet.UUID))
}

func TestRetentionPurgeRemovesWholeRecordChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	facilityUUID := uuid.New()

	doomed := newPatient(facilityUUID)
	doomed.DeletedAt = expired(testStart)
	doomed.RetainUntil = expired(testStart)
	f.seedSynced(t, doomed)

	appointment := model.Appointment{
		UUID:                 uuid.New(),
		PatientUUID:          doomed.UUID,
		FacilityUUID:         facilityUUID,
		CreationFacilityUUID: facilityUUID,
		ScheduledDate:        testStart,
		Status:               model.AppointmentStatusScheduled,
	}
	require.NoError(t, f.appointments.Merge(ctx, []model.Appointment{appointment}))
	require.NoError(t, f.calls.Merge(ctx, []model.CallResult{{
		UUID:            uuid.New(),
		AppointmentUUID: appointment.UUID,
		Outcome:         model.CallOutcomeAgreedToVisit,
	}}))
	require.NoError(t, f.bps.Merge(ctx, []model.BloodPressureMeasurement{{
		UUID:         uuid.New(),
		PatientUUID:  doomed.UUID,
		FacilityUUID: facilityUUID,
		Systolic:     140,
		Diastolic:    90,
		RecordedAt:   testStart,
	}}))

	require.NoError(t, f.purger.Run(ctx, testStart))

	assert.False(t, f.patientExists(t, doomed.UUID))
	n, err := f.appointments.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	n, err = f.calls.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	n, err = f.bps.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRetentionPurgeNeverTouchesUnsyncedPatients(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := newPatient(uuid.New())
	p.DeletedAt = expired(testStart)
	p.RetainUntil = expired(testStart)
	// The local save path leaves the tombstone PENDING.
	require.NoError(t, f.patients.Save(ctx, []model.PatientProfile{{Patient: p}}))

	require.NoError(t, f.purger.Run(ctx, testStart))

	assert.True(t, f.patientExists(t, p.UUID))
}

func TestRetentionPurgeKeepsPatientWithDirtyDescendant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	facilityUUID := uuid.New()

	p := newPatient(facilityUUID)
	p.DeletedAt = expired(testStart)
	p.RetainUntil = expired(testStart)
	f.seedSynced(t, p)

	// An unsynced reading anywhere in the chain blocks the whole deletion.
	require.NoError(t, f.bps.Save(ctx, []model.BloodPressureMeasurement{{
		UUID:         uuid.New(),
		PatientUUID:  p.UUID,
		FacilityUUID: facilityUUID,
		Systolic:     140,
		Diastolic:    90,
		RecordedAt:   testStart,
	}}))

	require.NoError(t, f.purger.Run(ctx, testStart))

	assert.True(t, f.patientExists(t, p.UUID))
	n, err := f.bps.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTombstonedMeasurementsPurgedWithoutRetentionWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	facilityUUID := uuid.New()

	p := newPatient(facilityUUID)
	f.seedSynced(t, p)

	tombstoned := model.BloodPressureMeasurement{
		UUID:         uuid.New(),
		PatientUUID:  p.UUID,
		FacilityUUID: facilityUUID,
		Systolic:     140,
		Diastolic:    90,
		RecordedAt:   testStart,
	}
	tombstoned.DeletedAt = expired(testStart)
	live := tombstoned
	live.UUID = uuid.New()
	live.DeletedAt = nil
	require.NoError(t, f.bps.Merge(ctx, []model.BloodPressureMeasurement{tombstoned, live}))

	pendingTombstone := tombstoned
	pendingTombstone.UUID = uuid.New()
	require.NoError(t, f.bps.Save(ctx, []model.BloodPressureMeasurement{pendingTombstone}))

	require.NoError(t, f.purger.Run(ctx, testStart))

	_, err := f.bps.Get(ctx, tombstoned.UUID)
	assert.Error(t, err)
	_, err = f.bps.Get(ctx, live.UUID)
	assert.NoError(t, err)
	// An unuploaded deletion must reach the server before it is dropped.
	_, err = f.bps.Get(ctx, pendingTombstone.UUID)
	assert.NoError(t, err)
}

func TestTerminalAppointmentsPurged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	facilityUUID := uuid.New()

	p := newPatient(facilityUUID)
	f.seedSynced(t, p)

	base := model.Appointment{
		PatientUUID:          p.UUID,
		FacilityUUID:         facilityUUID,
		CreationFacilityUUID: facilityUUID,
		ScheduledDate:        testStart,
	}
	visited, cancelled, scheduled, unknown := base, base, base, base
	visited.UUID, visited.Status = uuid.New(), model.AppointmentStatusVisited
	cancelled.UUID, cancelled.Status = uuid.New(), model.AppointmentStatusCancelled
	scheduled.UUID, scheduled.Status = uuid.New(), model.AppointmentStatusScheduled
	unknown.UUID, unknown.Status = uuid.New(), "under_review"
	require.NoError(t, f.appointments.Merge(ctx, []model.Appointment{visited, cancelled, scheduled, unknown}))

	require.NoError(t, f.calls.Merge(ctx, []model.CallResult{{
		UUID:            uuid.New(),
		AppointmentUUID: visited.UUID,
		Outcome:         model.CallOutcomeAgreedToVisit,
	}}))

	pendingVisited := base
	pendingVisited.UUID, pendingVisited.Status = uuid.New(), model.AppointmentStatusVisited
	require.NoError(t, f.appointments.Save(ctx, []model.Appointment{pendingVisited}))

	require.NoError(t, f.purger.Run(ctx, testStart))

	_, err := f.appointments.Get(ctx, visited.UUID)
	assert.Error(t, err)
	_, err = f.appointments.Get(ctx, cancelled.UUID)
	assert.Error(t, err)
	_, err = f.appointments.Get(ctx, scheduled.UUID)
	assert.NoError(t, err)
	// A status this client does not recognise may still need follow-up.
	_, err = f.appointments.Get(ctx, unknown.UUID)
	assert.NoError(t, err)
	_, err = f.appointments.Get(ctx, pendingVisited.UUID)
	assert.NoError(t, err)

	n, err := f.calls.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestOrphanedRecordsPurgedOnlyWhenSynced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	facilityUUID := uuid.New()

	orphan := model.BloodPressureMeasurement{
		UUID:         uuid.New(),
		PatientUUID:  uuid.New(),
		FacilityUUID: facilityUUID,
		Systolic:     140,
		Diastolic:    90,
		RecordedAt:   testStart,
	}
	require.NoError(t, f.bps.Merge(ctx, []model.BloodPressureMeasurement{orphan}))

	dirtyOrphan := orphan
	dirtyOrphan.UUID = uuid.New()
	require.NoError(t, f.bps.Save(ctx, []model.BloodPressureMeasurement{dirtyOrphan}))

	require.NoError(t, f.purger.Run(ctx, testStart))

	_, err := f.bps.Get(ctx, orphan.UUID)
	assert.Error(t, err)
	_, err = f.bps.Get(ctx, dirtyOrphan.UUID)
	assert.NoError(t, err)
}

func TestRetentionPurgeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := newPatient(uuid.New())
	p.DeletedAt = expired(testStart)
	p.RetainUntil = expired(testStart)
	f.seedSynced(t, p)

	require.NoError(t, f.purger.Run(ctx, testStart))
	require.NoError(t, f.purger.Run(ctx, testStart))

	assert.False(t, f.patientExists(t, p.UUID))
}

// seedFacility registers a facility in the given sync group.
func (f *fixture) seedFacility(t *testing.T, group string) model.Facility {
	t.Helper()
	facility := model.Facility{
		UUID:        uuid.New(),
		Name:        "CHC " + uuid.NewString()[:8],
		District:    "Central",
		State:       "State",
		Country:     "India",
		SyncGroupID: group,
	}
	require.NoError(t, f.facilities.Merge(context.Background(), []model.Facility{facility}))
	return facility
}

func TestSyncGroupPurgeRemovesPatientsOutsideGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	current := f.seedFacility(t, "group-1")
	sibling := f.seedFacility(t, "group-1")
	foreign := f.seedFacility(t, "group-2")

	inGroup := newPatient(sibling.UUID)
	outOfGroup := newPatient(foreign.UUID)
	f.seedSynced(t, inGroup)
	f.seedSynced(t, outOfGroup)

	require.NoError(t, f.purger.DeletePatientsOutsideSyncGroup(ctx, current))

	assert.True(t, f.patientExists(t, inGroup.UUID))
	assert.False(t, f.patientExists(t, outOfGroup.UUID))
}

func TestSyncGroupPurgeKeepsPatientAssignedIntoGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	current := f.seedFacility(t, "group-1")
	foreign := f.seedFacility(t, "group-2")

	// Registered elsewhere, but now assigned to an in-group facility.
	p := newPatient(foreign.UUID)
	assigned := current.UUID
	p.AssignedFacilityUUID = &assigned
	f.seedSynced(t, p)

	require.NoError(t, f.purger.DeletePatientsOutsideSyncGroup(ctx, current))

	assert.True(t, f.patientExists(t, p.UUID))
}

func TestSyncGroupPurgeKeepsPatientWithScheduledInGroupAppointment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	current := f.seedFacility(t, "group-1")
	foreign := f.seedFacility(t, "group-2")

	p := newPatient(foreign.UUID)
	f.seedSynced(t, p)
	require.NoError(t, f.appointments.Merge(ctx, []model.Appointment{{
		UUID:                 uuid.New(),
		PatientUUID:          p.UUID,
		FacilityUUID:         current.UUID,
		CreationFacilityUUID: foreign.UUID,
		ScheduledDate:        testStart.AddDate(0, 0, 14),
		Status:               model.AppointmentStatusScheduled,
	}}))

	require.NoError(t, f.purger.DeletePatientsOutsideSyncGroup(ctx, current))

	assert.True(t, f.patientExists(t, p.UUID))
}

func TestSyncGroupPurgeKeepsPatientWithUnsyncedRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	current := f.seedFacility(t, "group-1")
	foreign := f.seedFacility(t, "group-2")

	p := newPatient(foreign.UUID)
	f.seedSynced(t, p)
	require.NoError(t, f.drugs.Save(ctx, []model.PrescribedDrug{{
		UUID:         uuid.New(),
		PatientUUID:  p.UUID,
		FacilityUUID: foreign.UUID,
		Name:         "Amlodipine",
	}}))

	require.NoError(t, f.purger.DeletePatientsOutsideSyncGroup(ctx, current))

	assert.True(t, f.patientExists(t, p.UUID))
}

func TestSyncGroupPurgeTreatsUngroupedFacilityAsGroupOfOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	current := f.seedFacility(t, "")
	other := f.seedFacility(t, "")

	mine := newPatient(current.UUID)
	theirs := newPatient(other.UUID)
	f.seedSynced(t, mine)
	f.seedSynced(t, theirs)

	require.NoError(t, f.purger.DeletePatientsOutsideSyncGroup(ctx, current))

	assert.True(t, f.patientExists(t, mine.UUID))
	assert.False(t, f.patientExists(t, theirs.UUID))
}
