package model

import (
	"time"

	"github.com/google/uuid"
)

// PatientStatus is extensible on the server side; unrecognised values are
// carried through untouched so an older client never fails to load a patient.
type PatientStatus string

const (
	PatientStatusActive       PatientStatus = "active"
	PatientStatusDead         PatientStatus = "dead"
	PatientStatusMigrated     PatientStatus = "migrated"
	PatientStatusUnresponsive PatientStatus = "unresponsive"
	PatientStatusInactive     PatientStatus = "inactive"
)

// IsKnown reports whether this client recognises the status value.
func (s PatientStatus) IsKnown() bool {
	switch s {
	case PatientStatusActive, PatientStatusDead, PatientStatusMigrated,
		PatientStatusUnresponsive, PatientStatusInactive:
		return true
	}
	return false
}

type ReminderConsent string

const (
	ReminderConsentGranted ReminderConsent = "granted"
	ReminderConsentDenied  ReminderConsent = "denied"
)

type Patient struct {
	UUID                     uuid.UUID       `db:"uuid" json:"id" validate:"required"`
	FullName                 string          `db:"full_name" json:"full_name" validate:"required"`
	Gender                   Gender          `db:"gender" json:"gender" validate:"required"`
	DateOfBirth              *time.Time      `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Age                      *int            `db:"age" json:"age,omitempty"`
	AgeUpdatedAt             *time.Time      `db:"age_updated_at" json:"age_updated_at,omitempty"`
	Status                   PatientStatus   `db:"status" json:"status" validate:"required"`
	RegistrationFacilityUUID uuid.UUID       `db:"registration_facility_uuid" json:"registration_facility_id" validate:"required"`
	AssignedFacilityUUID     *uuid.UUID      `db:"assigned_facility_uuid" json:"assigned_facility_id,omitempty"`
	ReminderConsent          ReminderConsent `db:"reminder_consent" json:"reminder_consent"`
	RecordedAt               time.Time       `db:"recorded_at" json:"recorded_at"`
	RetainUntil              *time.Time      `db:"retain_until" json:"retain_until,omitempty"`
	DeletedReason            *string         `db:"deleted_reason" json:"deleted_reason,omitempty"`
	Syncable
}

// PatientAddress is owned 1:1 by its patient.
type PatientAddress struct {
	UUID            uuid.UUID `db:"uuid" json:"id"`
	PatientUUID     uuid.UUID `db:"patient_uuid" json:"patient_id"`
	StreetAddress   *string   `db:"street_address" json:"street_address,omitempty"`
	ColonyOrVillage *string   `db:"colony_or_village" json:"colony_or_village,omitempty"`
	Zone            *string   `db:"zone" json:"zone,omitempty"`
	District        string    `db:"district" json:"district"`
	State           string    `db:"state" json:"state"`
	Country         *string   `db:"country" json:"country,omitempty"`
	Syncable
}

type PatientPhoneNumber struct {
	UUID        uuid.UUID `db:"uuid" json:"id" validate:"required"`
	PatientUUID uuid.UUID `db:"patient_uuid" json:"patient_id" validate:"required"`
	Number      string    `db:"number" json:"number" validate:"required"`
	PhoneType   string    `db:"phone_type" json:"phone_type"`
	Active      bool      `db:"active" json:"active"`
	Syncable
}

// BusinessID is an external identifier attached to a patient, such as a
// BP passport number issued on a paper card.
type BusinessID struct {
	UUID           uuid.UUID `db:"uuid" json:"id" validate:"required"`
	PatientUUID    uuid.UUID `db:"patient_uuid" json:"patient_id" validate:"required"`
	IdentifierType string    `db:"identifier_type" json:"identifier_type" validate:"required"`
	Identifier     string    `db:"identifier" json:"identifier" validate:"required"`
	MetaVersion    string    `db:"meta_version" json:"meta_version"`
	Meta           string    `db:"meta" json:"meta"`
	Syncable
}

// PatientProfile bundles a patient with its owned records for saves and for
// the nested wire payload. Child slices left nil are not touched on save;
// existing children are preserved.
type PatientProfile struct {
	Patient      Patient
	Address      *PatientAddress
	PhoneNumbers []PatientPhoneNumber
	BusinessIDs  []BusinessID
}
