package sync

import (
	"context"
	"encoding/json"
	"errors"
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

// fakeAPI scripts server behaviour per resource. Unscripted resources accept
// every push and return one empty final page.
type fakeAPI struct {
	pushed     map[string][][]json.RawMessage
	pushErr    error
	rejected   []RejectedRecord
	onPush     func()
	pages      map[string][]PullResponse
	pullTokens map[string][]string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		pushed:     make(map[string][][]json.RawMessage),
		pages:      make(map[string][]PullResponse),
		pullTokens: make(map[string][]string),
	}
}

func (f *fakeAPI) Push(_ context.Context, resource string, records []json.RawMessage) (*PushResponse, error) {
	if f.onPush != nil {
		f.onPush()
	}
	if f.pushErr != nil {
		return nil, f.pushErr
	}
	f.pushed[resource] = append(f.pushed[resource], records)
	return &PushResponse{Rejected: f.rejected}, nil
}

func (f *fakeAPI) Pull(_ context.Context, resource string, token string, _ int) (*PullResponse, error) {
	f.pullTokens[resource] = append(f.pullTokens[resource], token)
	pages := f.pages[resource]
	if len(pages) == 0 {
		return &PullResponse{Token: token, More: false}, nil
	}
	page := pages[0]
	f.pages[resource] = pages[1:]
	return &page, nil
}

type fixture struct {
	coordinator  *Coordinator
	api          *fakeAPI
	appointments repository.AppointmentRepository
	patients     repository.PatientRepository
	facilities   repository.FacilityRepository
	tokens       repository.TokenRepository
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

	repos := Repositories{
		Patients:        repo.NewPatientRepository(store),
		Appointments:    repo.NewAppointmentRepository(store),
		BloodPressures:  repo.NewBloodPressureRepository(store),
		BloodSugars:     repo.NewBloodSugarRepository(store),
		PrescribedDrugs: repo.NewPrescribedDrugRepository(store),
		Histories:       repo.NewMedicalHistoryRepository(store),
		CallResults:     repo.NewCallResultRepository(store),
		Facilities:      repo.NewFacilityRepository(store),
	}
	tokens := repo.NewTokenRepository(store)
	api := newFakeAPI()

	coordinator := NewCoordinator(api, tokens, NewResources(repos),
		CoordinatorConfig{BatchSize: 10}, clk, metrics.NewUnregistered("test"), logger.Discard())

	return &fixture{
		coordinator:  coordinator,
		api:          api,
		appointments: repos.Appointments,
		patients:     repos.Patients,
		facilities:   repos.Facilities,
		tokens:       tokens,
		clock:        clk,
	}
}

func (f *fixture) resource(t *testing.T, name string) Resource {
	t.Helper()
	for _, r := range f.coordinator.Resources("") {
		if r.Name() == name {
			return r
		}
	}
	t.Fatalf("no resource named %s", name)
	return nil
}

func testAppointment() model.Appointment {
	return model.Appointment{
		UUID:                 uuid.New(),
		PatientUUID:          uuid.New(),
		FacilityUUID:         uuid.New(),
		CreationFacilityUUID: uuid.New(),
		ScheduledDate:        testStart.AddDate(0, 0, 7),
		Status:               model.AppointmentStatusScheduled,
		AppointmentType:      model.AppointmentTypeManual,
	}
}

func TestPushMarksAcknowledgedRecordsDone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, b := testAppointment(), testAppointment()
	require.NoError(t, f.appointments.Save(ctx, []model.Appointment{a, b}))

	require.NoError(t, f.coordinator.Sync(ctx, f.resource(t, "appointments")))

	require.Len(t, f.api.pushed["appointments"], 1)
	assert.Len(t, f.api.pushed["appointments"][0], 2)

	for _, id := range []uuid.UUID{a.UUID, b.UUID} {
		got, err := f.appointments.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.SyncStatusDone, got.SyncStatus)
	}
}

func TestPushRejectedRecordReturnsToPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, b := testAppointment(), testAppointment()
	require.NoError(t, f.appointments.Save(ctx, []model.Appointment{a, b}))
	f.api.rejected = []RejectedRecord{{ID: a.UUID, Reason: "invalid scheduled_date"}}

	require.NoError(t, f.coordinator.Sync(ctx, f.resource(t, "appointments")))

	got, err := f.appointments.Get(ctx, a.UUID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusPending, got.SyncStatus)

	got, err = f.appointments.Get(ctx, b.UUID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusDone, got.SyncStatus)
}

func TestPushNetworkFailureLeavesRecordsPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := testAppointment()
	require.NoError(t, f.appointments.Save(ctx, []model.Appointment{a}))
	f.api.pushErr = errors.New("connection reset")

	require.Error(t, f.coordinator.Sync(ctx, f.resource(t, "appointments")))

	got, err := f.appointments.Get(ctx, a.UUID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusPending, got.SyncStatus)
}

func TestPushSkipsAcknowledgmentForRecordEditedMidFlight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := testAppointment()
	require.NoError(t, f.appointments.Save(ctx, []model.Appointment{a}))

	// Edit lands while the batch is on the wire.
	f.api.onPush = func() {
		require.NoError(t, f.appointments.MarkVisited(ctx, a.UUID))
	}

	require.NoError(t, f.coordinator.Sync(ctx, f.resource(t, "appointments")))

	got, err := f.appointments.Get(ctx, a.UUID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusVisited, got.Status)
	assert.Equal(t, model.SyncStatusPending, got.SyncStatus)
}

func TestPushDrainsInBatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var all []model.Appointment
	for i := 0; i < 25; i++ {
		all = append(all, testAppointment())
	}
	require.NoError(t, f.appointments.Save(ctx, all))

	require.NoError(t, f.coordinator.Sync(ctx, f.resource(t, "appointments")))

	// Batch size 10: two full batches plus the remainder.
	require.Len(t, f.api.pushed["appointments"], 3)
	assert.Len(t, f.api.pushed["appointments"][0], 10)
	assert.Len(t, f.api.pushed["appointments"][2], 5)

	pending, err := f.appointments.WithSyncStatus(ctx, model.SyncStatusPending, 100)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPushWhollyRejectedBatchIsNotRetriedWithinTheCycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A full batch, every record rejected.
	var all []model.Appointment
	for i := 0; i < 10; i++ {
		all = append(all, testAppointment())
	}
	require.NoError(t, f.appointments.Save(ctx, all))
	for _, a := range all {
		f.api.rejected = append(f.api.rejected, RejectedRecord{ID: a.UUID, Reason: "invalid"})
	}

	require.NoError(t, f.coordinator.Sync(ctx, f.resource(t, "appointments")))

	require.Len(t, f.api.pushed["appointments"], 1)

	pending, err := f.appointments.WithSyncStatus(ctx, model.SyncStatusPending, 100)
	require.NoError(t, err)
	assert.Len(t, pending, 10)
}

func pullRecord(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestPullAppliesPagesAndPersistsTokenAfterEach(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, second := testAppointment(), testAppointment()
	f.api.pages["appointments"] = []PullResponse{
		{Records: []json.RawMessage{pullRecord(t, first)}, Token: "page-1", More: true},
		{Records: []json.RawMessage{pullRecord(t, second)}, Token: "page-2", More: false},
	}

	require.NoError(t, f.coordinator.Sync(ctx, f.resource(t, "appointments")))

	// The second request carried the token persisted after the first page.
	assert.Equal(t, []string{"", "page-1"}, f.api.pullTokens["appointments"])

	token, err := f.tokens.Get(ctx, "appointments")
	require.NoError(t, err)
	assert.Equal(t, "page-2", token)

	for _, id := range []uuid.UUID{first.UUID, second.UUID} {
		got, err := f.appointments.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.SyncStatusDone, got.SyncStatus)
	}
}

func TestPullMalformedPageDoesNotAdvanceToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	good := testAppointment()
	f.api.pages["appointments"] = []PullResponse{
		{
			Records: []json.RawMessage{pullRecord(t, good), json.RawMessage(`{"id": 42}`)},
			Token:   "page-1",
			More:    false,
		},
	}

	err := f.coordinator.Sync(ctx, f.resource(t, "appointments"))
	require.Error(t, err)

	token, tokenErr := f.tokens.Get(ctx, "appointments")
	require.NoError(t, tokenErr)
	assert.Empty(t, token)
}

func TestPullInvalidRecordFailsPageBeforeAnyWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	good := testAppointment()
	invalid := testAppointment()
	invalid.PatientUUID = uuid.Nil
	f.api.pages["appointments"] = []PullResponse{
		{
			Records: []json.RawMessage{pullRecord(t, good), pullRecord(t, invalid)},
			Token:   "page-1",
			More:    false,
		},
	}

	require.Error(t, f.coordinator.Sync(ctx, f.resource(t, "appointments")))

	// Validation happens before the transaction, so nothing was applied.
	n, err := f.appointments.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPullFacilitiesMergesMasterData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	facility := model.Facility{
		UUID:        uuid.New(),
		Name:        "District Hospital",
		District:    "Central",
		State:       "State",
		Country:     "India",
		SyncGroupID: "group-1",
	}
	f.api.pages["facilities"] = []PullResponse{
		{Records: []json.RawMessage{pullRecord(t, facility)}, Token: "f-1", More: false},
	}

	require.NoError(t, f.coordinator.Sync(ctx, f.resource(t, "facilities")))

	got, err := f.facilities.Get(ctx, facility.UUID)
	require.NoError(t, err)
	assert.Equal(t, "District Hospital", got.Name)
	assert.Equal(t, "group-1", got.SyncGroupID)
}

func TestSyncGroupRunsOnlyMatchingResources(t *testing.T) {
	f := newFixture(t)

	var daily []string
	for _, r := range f.coordinator.Resources(model.SyncGroupDaily) {
		daily = append(daily, r.Name())
	}
	assert.ElementsMatch(t, []string{"call_results", "facilities"}, daily)

	assert.Len(t, f.coordinator.Resources(""), 8)
}

func TestPatientPayloadCarriesChildren(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	colony := "Green Park"
	patientUUID := uuid.New()
	profile := model.PatientProfile{
		Patient: model.Patient{
			UUID:                     patientUUID,
			FullName:                 "Meena Devi",
			Gender:                   model.GenderFemale,
			Status:                   model.PatientStatusActive,
			RegistrationFacilityUUID: uuid.New(),
			ReminderConsent:          model.ReminderConsentGranted,
			RecordedAt:               testStart,
		},
		Address: &model.PatientAddress{
			UUID:            uuid.New(),
			PatientUUID:     patientUUID,
			ColonyOrVillage: &colony,
			District:        "Central",
			State:           "State",
		},
		PhoneNumbers: []model.PatientPhoneNumber{{
			UUID:        uuid.New(),
			PatientUUID: patientUUID,
			Number:      "9999999999",
			PhoneType:   "mobile",
			Active:      true,
		}},
	}
	require.NoError(t, f.patients.Save(ctx, []model.PatientProfile{profile}))

	require.NoError(t, f.coordinator.Sync(ctx, f.resource(t, "patients")))

	require.Len(t, f.api.pushed["patients"], 1)
	require.Len(t, f.api.pushed["patients"][0], 1)

	var payload map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(f.api.pushed["patients"][0][0], &payload))
	assert.Contains(t, payload, "address")
	assert.Contains(t, payload, "phone_numbers")

	// The children were acknowledged together with the parent.
	got, err := f.patients.Get(ctx, patientUUID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusDone, got.Patient.SyncStatus)
	assert.Equal(t, model.SyncStatusDone, got.PhoneNumbers[0].SyncStatus)
}
