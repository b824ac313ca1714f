package sync

import (
	"github.com/jwalitptl/clinic-sync/internal/model"
)

// patientPayload is the nested wire shape for patients: the owned address,
// phone numbers and business identifiers ride along with the parent record
// and share its push acknowledgment.
type patientPayload struct {
	model.Patient
	Address      *model.PatientAddress      `json:"address,omitempty"`
	PhoneNumbers []model.PatientPhoneNumber `json:"phone_numbers,omitempty" validate:"dive"`
	BusinessIDs  []model.BusinessID         `json:"business_identifiers,omitempty" validate:"dive"`
}

func payloadFromProfile(p model.PatientProfile) patientPayload {
	return patientPayload{
		Patient:      p.Patient,
		Address:      p.Address,
		PhoneNumbers: p.PhoneNumbers,
		BusinessIDs:  p.BusinessIDs,
	}
}

func (p patientPayload) profile() model.PatientProfile {
	return model.PatientProfile{
		Patient:      p.Patient,
		Address:      p.Address,
		PhoneNumbers: p.PhoneNumbers,
		BusinessIDs:  p.BusinessIDs,
	}
}
