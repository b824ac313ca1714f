package sync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-sync/internal/model"
	"github.com/jwalitptl/clinic-sync/internal/repository"
)

// Resource adapts one entity type to the coordinator. Pending returns at
// most limit PENDING records as wire payloads together with their ids;
// MarkStatus moves only records still in the from-status; ApplyPage upserts
// one pulled page in a single transaction and reports how many records it
// applied.
type Resource interface {
	Name() string
	SyncGroup() model.SyncGroup
	Pending(ctx context.Context, limit int) ([]uuid.UUID, []json.RawMessage, error)
	MarkStatus(ctx context.Context, ids []uuid.UUID, from, to model.SyncStatus) (int64, error)
	ApplyPage(ctx context.Context, records []json.RawMessage) (int, error)
}

// Repositories bundles everything NewResources needs.
type Repositories struct {
	Patients        repository.PatientRepository
	Appointments    repository.AppointmentRepository
	BloodPressures  repository.BloodPressureRepository
	BloodSugars     repository.BloodSugarRepository
	PrescribedDrugs repository.PrescribedDrugRepository
	Histories       repository.MedicalHistoryRepository
	CallResults     repository.CallResultRepository
	Facilities      repository.FacilityRepository
}

// NewResources returns every syncable resource. Patient-related records sync
// frequently; reference and bookkeeping data syncs daily.
func NewResources(repos Repositories) []Resource {
	v := validator.New()
	return []Resource{
		&patientResource{repo: repos.Patients, validate: v},
		&appointmentResource{repo: repos.Appointments, validate: v},
		&bloodPressureResource{repo: repos.BloodPressures, validate: v},
		&bloodSugarResource{repo: repos.BloodSugars, validate: v},
		&prescribedDrugResource{repo: repos.PrescribedDrugs, validate: v},
		&medicalHistoryResource{repo: repos.Histories, validate: v},
		&callResultResource{repo: repos.CallResults, validate: v},
		&facilityResource{repo: repos.Facilities, validate: v},
	}
}

// decodePage unmarshals and validates every record of a page up front, so a
// malformed record fails the page before anything is written.
func decodePage[T any](validate *validator.Validate, resource string, records []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(records))
	for i, raw := range records {
		var rec T
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("record %d in %s page is malformed: %w", i, resource, err)
		}
		if err := validate.Struct(&rec); err != nil {
			return nil, fmt.Errorf("record %d in %s page failed validation: %w", i, resource, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func encodeBatch[T any](records []T) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(records))
	for i := range records {
		raw, err := json.Marshal(records[i])
		if err != nil {
			return nil, fmt.Errorf("failed to encode record %d: %w", i, err)
		}
		out = append(out, raw)
	}
	return out, nil
}

type patientResource struct {
	repo     repository.PatientRepository
	validate *validator.Validate
}

func (r *patientResource) Name() string               { return "patients" }
func (r *patientResource) SyncGroup() model.SyncGroup { return model.SyncGroupFrequent }

func (r *patientResource) Pending(ctx context.Context, limit int) ([]uuid.UUID, []json.RawMessage, error) {
	profiles, err := r.repo.WithSyncStatus(ctx, model.SyncStatusPending, limit)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]uuid.UUID, len(profiles))
	payloads := make([]patientPayload, len(profiles))
	for i, p := range profiles {
		ids[i] = p.Patient.UUID
		payloads[i] = payloadFromProfile(p)
	}
	raw, err := encodeBatch(payloads)
	return ids, raw, err
}

func (r *patientResource) MarkStatus(ctx context.Context, ids []uuid.UUID, from, to model.SyncStatus) (int64, error) {
	return r.repo.UpdateSyncStatus(ctx, ids, from, to)
}

func (r *patientResource) ApplyPage(ctx context.Context, records []json.RawMessage) (int, error) {
	payloads, err := decodePage[patientPayload](r.validate, r.Name(), records)
	if err != nil {
		return 0, err
	}
	profiles := make([]model.PatientProfile, len(payloads))
	for i, p := range payloads {
		profiles[i] = p.profile()
	}
	if err := r.repo.Merge(ctx, profiles); err != nil {
		return 0, err
	}
	return len(profiles), nil
}

type appointmentResource struct {
	repo     repository.AppointmentRepository
	validate *validator.Validate
}

func (r *appointmentResource) Name() string               { return "appointments" }
func (r *appointmentResource) SyncGroup() model.SyncGroup { return model.SyncGroupFrequent }

func (r *appointmentResource) Pending(ctx context.Context, limit int) ([]uuid.UUID, []json.RawMessage, error) {
	recs, err := r.repo.WithSyncStatus(ctx, model.SyncStatusPending, limit)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]uuid.UUID, len(recs))
	for i := range recs {
		ids[i] = recs[i].UUID
	}
	raw, err := encodeBatch(recs)
	return ids, raw, err
}

func (r *appointmentResource) MarkStatus(ctx context.Context, ids []uuid.UUID, from, to model.SyncStatus) (int64, error) {
	return r.repo.UpdateSyncStatus(ctx, ids, from, to)
}

func (r *appointmentResource) ApplyPage(ctx context.Context, records []json.RawMessage) (int, error) {
	recs, err := decodePage[model.Appointment](r.validate, r.Name(), records)
	if err != nil {
		return 0, err
	}
	if err := r.repo.Merge(ctx, recs); err != nil {
		return 0, err
	}
	return len(recs), nil
}

type bloodPressureResource struct {
	repo     repository.BloodPressureRepository
	validate *validator.Validate
}

func (r *bloodPressureResource) Name() string               { return "blood_pressures" }
func (r *bloodPressureResource) SyncGroup() model.SyncGroup { return model.SyncGroupFrequent }

func (r *bloodPressureResource) Pending(ctx context.Context, limit int) ([]uuid.UUID, []json.RawMessage, error) {
	recs, err := r.repo.WithSyncStatus(ctx, model.SyncStatusPending, limit)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]uuid.UUID, len(recs))
	for i := range recs {
		ids[i] = recs[i].UUID
	}
	raw, err := encodeBatch(recs)
	return ids, raw, err
}

func (r *bloodPressureResource) MarkStatus(ctx context.Context, ids []uuid.UUID, from, to model.SyncStatus) (int64, error) {
	return r.repo.UpdateSyncStatus(ctx, ids, from, to)
}

func (r *bloodPressureResource) ApplyPage(ctx context.Context, records []json.RawMessage) (int, error) {
	recs, err := decodePage[model.BloodPressureMeasurement](r.validate, r.Name(), records)
	if err != nil {
		return 0, err
	}
	if err := r.repo.Merge(ctx, recs); err != nil {
		return 0, err
	}
	return len(recs), nil
}

type bloodSugarResource struct {
	repo     repository.BloodSugarRepository
	validate *validator.Validate
}

func (r *bloodSugarResource) Name() string               { return "blood_sugars" }
func (r *bloodSugarResource) SyncGroup() model.SyncGroup { return model.SyncGroupFrequent }

func (r *bloodSugarResource) Pending(ctx context.Context, limit int) ([]uuid.UUID, []json.RawMessage, error) {
	recs, err := r.repo.WithSyncStatus(ctx, model.SyncStatusPending, limit)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]uuid.UUID, len(recs))
	for i := range recs {
		ids[i] = recs[i].UUID
	}
	raw, err := encodeBatch(recs)
	return ids, raw, err
}

func (r *bloodSugarResource) MarkStatus(ctx context.Context, ids []uuid.UUID, from, to model.SyncStatus) (int64, error) {
	return r.repo.UpdateSyncStatus(ctx, ids, from, to)
}

func (r *bloodSugarResource) ApplyPage(ctx context.Context, records []json.RawMessage) (int, error) {
	recs, err := decodePage[model.BloodSugarMeasurement](r.validate, r.Name(), records)
	if err != nil {
		return 0, err
	}
	if err := r.repo.Merge(ctx, recs); err != nil {
		return 0, err
	}
	return len(recs), nil
}

type prescribedDrugResource struct {
	repo     repository.PrescribedDrugRepository
	validate *validator.Validate
}

func (r *prescribedDrugResource) Name() string               { return "prescription_drugs" }
func (r *prescribedDrugResource) SyncGroup() model.SyncGroup { return model.SyncGroupFrequent }

func (r *prescribedDrugResource) Pending(ctx context.Context, limit int) ([]uuid.UUID, []json.RawMessage, error) {
	recs, err := r.repo.WithSyncStatus(ctx, model.SyncStatusPending, limit)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]uuid.UUID, len(recs))
	for i := range recs {
		ids[i] = recs[i].UUID
	}
	raw, err := encodeBatch(recs)
	return ids, raw, err
}

func (r *prescribedDrugResource) MarkStatus(ctx context.Context, ids []uuid.UUID, from, to model.SyncStatus) (int64, error) {
	return r.repo.UpdateSyncStatus(ctx, ids, from, to)
}

func (r *prescribedDrugResource) ApplyPage(ctx context.Context, records []json.RawMessage) (int, error) {
	recs, err := decodePage[model.PrescribedDrug](r.validate, r.Name(), records)
	if err != nil {
		return 0, err
	}
	if err := r.repo.Merge(ctx, recs); err != nil {
		return 0, err
	}
	return len(recs), nil
}

type medicalHistoryResource struct {
	repo     repository.MedicalHistoryRepository
	validate *validator.Validate
}

func (r *medicalHistoryResource) Name() string               { return "medical_histories" }
func (r *medicalHistoryResource) SyncGroup() model.SyncGroup { return model.SyncGroupFrequent }

func (r *medicalHistoryResource) Pending(ctx context.Context, limit int) ([]uuid.UUID, []json.RawMessage, error) {
	recs, err := r.repo.WithSyncStatus(ctx, model.SyncStatusPending, limit)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]uuid.UUID, len(recs))
	for i := range recs {
		ids[i] = recs[i].UUID
	}
	raw, err := encodeBatch(recs)
	return ids, raw, err
}

func (r *medicalHistoryResource) MarkStatus(ctx context.Context, ids []uuid.UUID, from, to model.SyncStatus) (int64, error) {
	return r.repo.UpdateSyncStatus(ctx, ids, from, to)
}

func (r *medicalHistoryResource) ApplyPage(ctx context.Context, records []json.RawMessage) (int, error) {
	recs, err := decodePage[model.MedicalHistory](r.validate, r.Name(), records)
	if err != nil {
		return 0, err
	}
	if err := r.repo.Merge(ctx, recs); err != nil {
		return 0, err
	}
	return len(recs), nil
}

type callResultResource struct {
	repo     repository.CallResultRepository
	validate *validator.Validate
}

func (r *callResultResource) Name() string               { return "call_results" }
func (r *callResultResource) SyncGroup() model.SyncGroup { return model.SyncGroupDaily }

func (r *callResultResource) Pending(ctx context.Context, limit int) ([]uuid.UUID, []json.RawMessage, error) {
	recs, err := r.repo.WithSyncStatus(ctx, model.SyncStatusPending, limit)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]uuid.UUID, len(recs))
	for i := range recs {
		ids[i] = recs[i].UUID
	}
	raw, err := encodeBatch(recs)
	return ids, raw, err
}

func (r *callResultResource) MarkStatus(ctx context.Context, ids []uuid.UUID, from, to model.SyncStatus) (int64, error) {
	return r.repo.UpdateSyncStatus(ctx, ids, from, to)
}

func (r *callResultResource) ApplyPage(ctx context.Context, records []json.RawMessage) (int, error) {
	recs, err := decodePage[model.CallResult](r.validate, r.Name(), records)
	if err != nil {
		return 0, err
	}
	if err := r.repo.Merge(ctx, recs); err != nil {
		return 0, err
	}
	return len(recs), nil
}

// facilityResource is pull-only: devices never create facilities.
type facilityResource struct {
	repo     repository.FacilityRepository
	validate *validator.Validate
}

func (r *facilityResource) Name() string               { return "facilities" }
func (r *facilityResource) SyncGroup() model.SyncGroup { return model.SyncGroupDaily }

func (r *facilityResource) Pending(context.Context, int) ([]uuid.UUID, []json.RawMessage, error) {
	return nil, nil, nil
}

func (r *facilityResource) MarkStatus(context.Context, []uuid.UUID, model.SyncStatus, model.SyncStatus) (int64, error) {
	return 0, nil
}

func (r *facilityResource) ApplyPage(ctx context.Context, records []json.RawMessage) (int, error) {
	recs, err := decodePage[model.Facility](r.validate, r.Name(), records)
	if err != nil {
		return 0, err
	}
	if err := r.repo.Merge(ctx, recs); err != nil {
		return 0, err
	}
	return len(recs), nil
}
