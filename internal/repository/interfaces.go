package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-sync/internal/model"
)

// All repository interfaces in one file.
//
// Save is the local write path: it stamps updated_at and resets the record to
// PENDING so it is picked up by the next push. Merge is the pull-application
// path: it upserts server copies but never overwrites a record that still has
// unsynced local changes. UpdateSyncStatus only moves records that are still
// in the from-status, which is what lets the coordinator acknowledge exactly
// the records it pushed.
type (
	PatientRepository interface {
		Save(ctx context.Context, profiles []model.PatientProfile) error
		Merge(ctx context.Context, profiles []model.PatientProfile) error
		Get(ctx context.Context, id uuid.UUID) (*model.PatientProfile, error)
		Count(ctx context.Context) (int, error)
		ObserveCount(ctx context.Context) (<-chan int, func())
		WithSyncStatus(ctx context.Context, status model.SyncStatus, limit int) ([]model.PatientProfile, error)
		UpdateSyncStatus(ctx context.Context, ids []uuid.UUID, from, to model.SyncStatus) (int64, error)
		SoftDelete(ctx context.Context, id uuid.UUID, reason string) error
	}

	AppointmentRepository interface {
		Save(ctx context.Context, appointments []model.Appointment) error
		Merge(ctx context.Context, appointments []model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		Count(ctx context.Context) (int, error)
		ObserveCount(ctx context.Context) (<-chan int, func())
		WithSyncStatus(ctx context.Context, status model.SyncStatus, limit int) ([]model.Appointment, error)
		UpdateSyncStatus(ctx context.Context, ids []uuid.UUID, from, to model.SyncStatus) (int64, error)
		MarkVisited(ctx context.Context, id uuid.UUID) error
		Cancel(ctx context.Context, id uuid.UUID, reason model.CancelReason) error
	}

	BloodPressureRepository interface {
		Save(ctx context.Context, measurements []model.BloodPressureMeasurement) error
		Merge(ctx context.Context, measurements []model.BloodPressureMeasurement) error
		Get(ctx context.Context, id uuid.UUID) (*model.BloodPressureMeasurement, error)
		Count(ctx context.Context) (int, error)
		ObserveCount(ctx context.Context) (<-chan int, func())
		WithSyncStatus(ctx context.Context, status model.SyncStatus, limit int) ([]model.BloodPressureMeasurement, error)
		UpdateSyncStatus(ctx context.Context, ids []uuid.UUID, from, to model.SyncStatus) (int64, error)
		ListForPatient(ctx context.Context, patientUUID uuid.UUID) ([]model.BloodPressureMeasurement, error)
	}

	BloodSugarRepository interface {
		Save(ctx context.Context, measurements []model.BloodSugarMeasurement) error
		Merge(ctx context.Context, measurements []model.BloodSugarMeasurement) error
		Get(ctx context.Context, id uuid.UUID) (*model.BloodSugarMeasurement, error)
		Count(ctx context.Context) (int, error)
		ObserveCount(ctx context.Context) (<-chan int, func())
		WithSyncStatus(ctx context.Context, status model.SyncStatus, limit int) ([]model.BloodSugarMeasurement, error)
		UpdateSyncStatus(ctx context.Context, ids []uuid.UUID, from, to model.SyncStatus) (int64, error)
		ListForPatient(ctx context.Context, patientUUID uuid.UUID) ([]model.BloodSugarMeasurement, error)
	}

	PrescribedDrugRepository interface {
		Save(ctx context.Context, drugs []model.PrescribedDrug) error
		Merge(ctx context.Context, drugs []model.PrescribedDrug) error
		Get(ctx context.Context, id uuid.UUID) (*model.PrescribedDrug, error)
		Count(ctx context.Context) (int, error)
		WithSyncStatus(ctx context.Context, status model.SyncStatus, limit int) ([]model.PrescribedDrug, error)
		UpdateSyncStatus(ctx context.Context, ids []uuid.UUID, from, to model.SyncStatus) (int64, error)
		ListForPatient(ctx context.Context, patientUUID uuid.UUID) ([]model.PrescribedDrug, error)
	}

	MedicalHistoryRepository interface {
		Save(ctx context.Context, histories []model.MedicalHistory) error
		Merge(ctx context.Context, histories []model.MedicalHistory) error
		Get(ctx context.Context, id uuid.UUID) (*model.MedicalHistory, error)
		GetForPatient(ctx context.Context, patientUUID uuid.UUID) (*model.MedicalHistory, error)
		Count(ctx context.Context) (int, error)
		WithSyncStatus(ctx context.Context, status model.SyncStatus, limit int) ([]model.MedicalHistory, error)
		UpdateSyncStatus(ctx context.Context, ids []uuid.UUID, from, to model.SyncStatus) (int64, error)
	}

	CallResultRepository interface {
		Save(ctx context.Context, results []model.CallResult) error
		Merge(ctx context.Context, results []model.CallResult) error
		Count(ctx context.Context) (int, error)
		WithSyncStatus(ctx context.Context, status model.SyncStatus, limit int) ([]model.CallResult, error)
		UpdateSyncStatus(ctx context.Context, ids []uuid.UUID, from, to model.SyncStatus) (int64, error)
	}

	// FacilityRepository is pull-only master data; devices never create
	// facilities.
	FacilityRepository interface {
		Merge(ctx context.Context, facilities []model.Facility) error
		Get(ctx context.Context, id uuid.UUID) (*model.Facility, error)
		List(ctx context.Context) ([]model.Facility, error)
		WithSyncGroup(ctx context.Context, syncGroup string) ([]model.Facility, error)
		Count(ctx context.Context) (int, error)
	}

	UserRepository interface {
		Save(ctx context.Context, user *model.User) error
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		CurrentFacilityUUID(ctx context.Context, userUUID uuid.UUID) (uuid.UUID, error)
		SetCurrentFacility(ctx context.Context, userUUID, facilityUUID uuid.UUID) error
	}

	// TokenRepository persists the per-resource opaque pull cursor. An absent
	// token means full resync from epoch.
	TokenRepository interface {
		Get(ctx context.Context, resource string) (string, error)
		Set(ctx context.Context, resource, token string, updatedAt time.Time) error
		Delete(ctx context.Context, resource string) error
	}
)
