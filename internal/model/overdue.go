package model

import (
	"time"

	"github.com/google/uuid"
)

// OverdueAppointment is one row of the follow-up work list: the patient, the
// qualifying appointment, and the latest call result if the patient has been
// phoned already. The call result is display-only and never affects
// inclusion.
type OverdueAppointment struct {
	AppointmentUUID uuid.UUID  `db:"appointment_uuid"`
	PatientUUID     uuid.UUID  `db:"patient_uuid"`
	PatientName     string     `db:"patient_name"`
	Gender          Gender     `db:"gender"`
	Age             *int       `db:"age"`
	DateOfBirth     *time.Time `db:"date_of_birth"`
	PhoneNumber     *string    `db:"phone_number"`
	ColonyOrVillage *string    `db:"colony_or_village"`
	ScheduledDate   time.Time  `db:"scheduled_date"`
	RemindOn        *time.Time `db:"remind_on"`
	CallOutcome     *string    `db:"call_outcome"`
	CallResultAt    *time.Time `db:"call_result_at"`
}

// DaysOverdue is relative to the as-of date the list was computed for.
func (o OverdueAppointment) DaysOverdue(asOf time.Time) int {
	d := int(asOf.Sub(o.ScheduledDate).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}
