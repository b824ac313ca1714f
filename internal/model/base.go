package model

import (
	"time"
)

// SyncStatus tracks whether a locally-held record has been acknowledged by
// the server. Only the sync coordinator moves records out of PENDING; local
// edits always reset a record back to PENDING.
type SyncStatus string

const (
	SyncStatusPending  SyncStatus = "PENDING"
	SyncStatusInFlight SyncStatus = "IN_FLIGHT"
	SyncStatusDone     SyncStatus = "DONE"
)

// Syncable contains the bookkeeping fields shared by every record that is
// exchanged with the server.
type Syncable struct {
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt  *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	SyncStatus SyncStatus `db:"sync_status" json:"-"`
}

// IsDirty reports whether the record still has changes the server has not
// acknowledged.
func (s Syncable) IsDirty() bool {
	return s.SyncStatus != SyncStatusDone
}

// IsSoftDeleted reports whether the record carries a tombstone.
func (s Syncable) IsSoftDeleted() bool {
	return s.DeletedAt != nil
}

// Answer is a yes/no/unknown response to a medical history question. Values
// the server sends that this client does not recognise are preserved as-is.
type Answer string

const (
	AnswerYes     Answer = "yes"
	AnswerNo      Answer = "no"
	AnswerUnknown Answer = "unknown"
)

type Gender string

const (
	GenderFemale      Gender = "female"
	GenderMale        Gender = "male"
	GenderTransgender Gender = "transgender"
)

// SyncGroup determines the scheduling cadence for an entity type.
type SyncGroup string

const (
	SyncGroupFrequent SyncGroup = "frequent"
	SyncGroupDaily    SyncGroup = "daily"
)
