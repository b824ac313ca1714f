package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-sync/internal/model"
	"github.com/jwalitptl/clinic-sync/internal/notify"
	"github.com/jwalitptl/clinic-sync/internal/storage/migrate"
	"github.com/jwalitptl/clinic-sync/internal/storage/sqlite"
	"github.com/jwalitptl/clinic-sync/pkg/clock"
	"github.com/jwalitptl/clinic-sync/pkg/logger"
)

var testStart = time.Date(2023, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*Store, *clock.Fake) {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	runner, err := migrate.NewRunner(db, logger.Discard(), migrate.Migrations())
	require.NoError(t, err)
	require.NoError(t, runner.Migrate(context.Background()))

	clk := clock.NewFake(testStart)
	return NewStore(db, notify.NewBus(), clk), clk
}

func testProfile(name string) model.PatientProfile {
	patientUUID := uuid.New()
	colony := "Green Park"
	return model.PatientProfile{
		Patient: model.Patient{
			UUID:                     patientUUID,
			FullName:                 name,
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
		BusinessIDs: []model.BusinessID{{
			UUID:           uuid.New(),
			PatientUUID:    patientUUID,
			IdentifierType: "bp_passport",
			Identifier:     "PASSPORT-1",
			MetaVersion:    "bp_passport_v1",
			Meta:           "{}",
		}},
	}
}
