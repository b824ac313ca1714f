package model

import (
	"time"

	"github.com/google/uuid"
)

// AppointmentStatus is an open enum. The server deploys independently of the
// client, so values we do not recognise must round-trip untouched rather than
// fail deserialization; IsKnown distinguishes them where behaviour depends on
// the status.
type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusVisited   AppointmentStatus = "visited"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
)

func (s AppointmentStatus) IsKnown() bool {
	switch s {
	case AppointmentStatusScheduled, AppointmentStatusVisited, AppointmentStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether the appointment no longer needs follow-up.
// Unknown statuses are deliberately non-terminal so a newer server-side state
// is never purged by an older client.
func (s AppointmentStatus) IsTerminal() bool {
	return s == AppointmentStatusVisited || s == AppointmentStatusCancelled
}

// CancelReason is only meaningful when the appointment is cancelled. Open
// enum, same forward-compatibility rule as AppointmentStatus.
type CancelReason string

const (
	CancelReasonNotResponding       CancelReason = "not_responding"
	CancelReasonMoved               CancelReason = "moved"
	CancelReasonDead                CancelReason = "dead"
	CancelReasonInvalidPhoneNumber  CancelReason = "invalid_phone_number"
	CancelReasonPublicHospital      CancelReason = "public_hospital_transfer"
	CancelReasonPrivatePractitioner CancelReason = "moved_to_private_practitioner"
	CancelReasonOther               CancelReason = "other"
)

type AppointmentType string

const (
	// AppointmentTypeAutomatic is system-generated for defaulting patients.
	AppointmentTypeAutomatic AppointmentType = "automatic"
	AppointmentTypeManual    AppointmentType = "manual"
)

type Appointment struct {
	UUID        uuid.UUID `db:"uuid" json:"id" validate:"required"`
	PatientUUID uuid.UUID `db:"patient_uuid" json:"patient_id" validate:"required"`
	// FacilityUUID is where the visit should happen; CreationFacilityUUID is
	// where the appointment was recorded. They differ for referrals.
	FacilityUUID         uuid.UUID         `db:"facility_uuid" json:"facility_id" validate:"required"`
	CreationFacilityUUID uuid.UUID         `db:"creation_facility_uuid" json:"creation_facility_id"`
	ScheduledDate        time.Time         `db:"scheduled_date" json:"scheduled_date" validate:"required"`
	Status               AppointmentStatus `db:"status" json:"status" validate:"required"`
	CancelReason         *CancelReason     `db:"cancel_reason" json:"cancel_reason,omitempty"`
	RemindOn             *time.Time        `db:"remind_on" json:"remind_on,omitempty"`
	AgreedToVisit        *bool             `db:"agreed_to_visit" json:"agreed_to_visit,omitempty"`
	AppointmentType      AppointmentType   `db:"appointment_type" json:"appointment_type"`
	Syncable
}

// CallResult records the outcome of a phone call to a defaulting patient.
type CallResultOutcome string

const (
	CallOutcomeAgreedToVisit          CallResultOutcome = "agreed_to_visit"
	CallOutcomeRemindToCallLater      CallResultOutcome = "remind_to_call_later"
	CallOutcomeRemovedFromOverdueList CallResultOutcome = "removed_from_overdue_list"
)

type CallResult struct {
	UUID            uuid.UUID         `db:"uuid" json:"id" validate:"required"`
	UserUUID        uuid.UUID         `db:"user_uuid" json:"user_id"`
	AppointmentUUID uuid.UUID         `db:"appointment_uuid" json:"appointment_id" validate:"required"`
	Outcome         CallResultOutcome `db:"outcome" json:"result_type" validate:"required"`
	RemoveReason    *CancelReason     `db:"remove_reason" json:"remove_reason,omitempty"`
	Syncable
}
