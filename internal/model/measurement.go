package model

import (
	"time"

	"github.com/google/uuid"
)

type BloodPressureMeasurement struct {
	UUID         uuid.UUID `db:"uuid" json:"id" validate:"required"`
	PatientUUID  uuid.UUID `db:"patient_uuid" json:"patient_id" validate:"required"`
	FacilityUUID uuid.UUID `db:"facility_uuid" json:"facility_id" validate:"required"`
	UserUUID     uuid.UUID `db:"user_uuid" json:"user_id"`
	Systolic     int       `db:"systolic" json:"systolic" validate:"gt=0"`
	Diastolic    int       `db:"diastolic" json:"diastolic" validate:"gt=0"`
	// RecordedAt is the clinical time of the reading, distinct from the
	// system timestamps on Syncable.
	RecordedAt time.Time `db:"recorded_at" json:"recorded_at"`
	Syncable
}

// CanBeEdited reports whether the measurement is still within the grace
// window for corrections. The boundary is inclusive: a reading created
// exactly editableFor ago is still editable.
func (m BloodPressureMeasurement) CanBeEdited(now time.Time, editableFor time.Duration) bool {
	return Editable(m.CreatedAt, now, editableFor)
}

type BloodSugarReadingType string

const (
	BloodSugarRandom       BloodSugarReadingType = "random"
	BloodSugarFasting      BloodSugarReadingType = "fasting"
	BloodSugarPostPrandial BloodSugarReadingType = "post_prandial"
	BloodSugarHbA1c        BloodSugarReadingType = "hba1c"
)

type BloodSugarMeasurement struct {
	UUID         uuid.UUID             `db:"uuid" json:"id" validate:"required"`
	PatientUUID  uuid.UUID             `db:"patient_uuid" json:"patient_id" validate:"required"`
	FacilityUUID uuid.UUID             `db:"facility_uuid" json:"facility_id" validate:"required"`
	UserUUID     uuid.UUID             `db:"user_uuid" json:"user_id"`
	ReadingType  BloodSugarReadingType `db:"reading_type" json:"reading_type" validate:"required"`
	ReadingValue string                `db:"reading_value" json:"reading_value" validate:"required"`
	ReadingUnit  string                `db:"reading_unit" json:"reading_unit"`
	RecordedAt   time.Time             `db:"recorded_at" json:"recorded_at"`
	Syncable
}

func (m BloodSugarMeasurement) CanBeEdited(now time.Time, editableFor time.Duration) bool {
	return Editable(m.CreatedAt, now, editableFor)
}

// Editable is the shared grace-window rule for clinical measurements.
func Editable(createdAt, now time.Time, editableFor time.Duration) bool {
	return now.Sub(createdAt) <= editableFor
}
