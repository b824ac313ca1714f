package model

import (
	"github.com/google/uuid"
)

// MedicalHistory holds one bundle of diagnosis answers per patient. New
// questions have been added over several schema versions; absent answers
// default to unknown.
type MedicalHistory struct {
	UUID                uuid.UUID `db:"uuid" json:"id" validate:"required"`
	PatientUUID         uuid.UUID `db:"patient_uuid" json:"patient_id" validate:"required"`
	DiagnosedWithHTN    Answer    `db:"diagnosed_with_hypertension" json:"hypertension"`
	DiagnosedWithDM     Answer    `db:"diagnosed_with_diabetes" json:"diabetes"`
	HasHadHeartAttack   Answer    `db:"has_had_heart_attack" json:"heart_attack"`
	HasHadStroke        Answer    `db:"has_had_stroke" json:"stroke"`
	HasHadKidneyDisease Answer    `db:"has_had_kidney_disease" json:"kidney_disease"`
	IsOnHTNTreatment    Answer    `db:"is_on_hypertension_treatment" json:"receiving_treatment_for_hypertension"`
	IsOnDMTreatment     Answer    `db:"is_on_diabetes_treatment" json:"receiving_treatment_for_diabetes"`
	IsSmoking           Answer    `db:"is_smoking" json:"smoking"`
	TotalCholesterol    *float64  `db:"total_cholesterol" json:"cholesterol,omitempty"`
	Syncable
}

// DefaultMedicalHistory returns the bundle generated for a patient who was
// registered without answering the questionnaire.
func DefaultMedicalHistory(id, patientUUID uuid.UUID) MedicalHistory {
	return MedicalHistory{
		UUID:                id,
		PatientUUID:         patientUUID,
		DiagnosedWithHTN:    AnswerUnknown,
		DiagnosedWithDM:     AnswerUnknown,
		HasHadHeartAttack:   AnswerUnknown,
		HasHadStroke:        AnswerUnknown,
		HasHadKidneyDisease: AnswerUnknown,
		IsOnHTNTreatment:    AnswerUnknown,
		IsOnDMTreatment:     AnswerUnknown,
		IsSmoking:           AnswerUnknown,
	}
}

type PrescribedDrug struct {
	UUID         uuid.UUID `db:"uuid" json:"id" validate:"required"`
	PatientUUID  uuid.UUID `db:"patient_uuid" json:"patient_id" validate:"required"`
	FacilityUUID uuid.UUID `db:"facility_uuid" json:"facility_id"`
	Name         string    `db:"name" json:"name" validate:"required"`
	Dosage       *string   `db:"dosage" json:"dosage,omitempty"`
	Frequency    *string   `db:"frequency" json:"frequency,omitempty"`
	DurationDays *int      `db:"duration_days" json:"duration_in_days,omitempty"`
	// IsDeleted is the prescription tombstone shown in the drug list; it is
	// separate from the sync tombstone on DeletedAt.
	IsDeleted            bool       `db:"is_deleted" json:"is_protocol_drug_deleted"`
	TeleconsultationUUID *uuid.UUID `db:"teleconsultation_uuid" json:"teleconsultation_id,omitempty"`
	Syncable
}
