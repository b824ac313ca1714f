package model

import (
	"time"

	"github.com/google/uuid"
)

// Facility is master data pulled from the server; devices never create
// facilities. SyncGroup is the partition key deciding which patients a
// device retains locally.
type Facility struct {
	UUID          uuid.UUID  `db:"uuid" json:"id" validate:"required"`
	Name          string     `db:"name" json:"name" validate:"required"`
	FacilityType  *string    `db:"facility_type" json:"facility_type,omitempty"`
	StreetAddress *string    `db:"street_address" json:"street_address,omitempty"`
	District      string     `db:"district" json:"district"`
	State         string     `db:"state" json:"state"`
	Country       string     `db:"country" json:"country"`
	PinCode       *string    `db:"pin_code" json:"pin_code,omitempty"`
	ProtocolUUID  *uuid.UUID `db:"protocol_uuid" json:"protocol_id,omitempty"`
	GroupUUID     *uuid.UUID `db:"group_uuid" json:"group_id,omitempty"`
	Latitude      *float64   `db:"latitude" json:"latitude,omitempty"`
	Longitude     *float64   `db:"longitude" json:"longitude,omitempty"`
	SyncGroupID   string     `db:"sync_group" json:"sync_group"`
	Syncable
}

type UserLoggedInStatus string

const (
	UserLoggedIn     UserLoggedInStatus = "LOGGED_IN"
	UserNotLoggedIn  UserLoggedInStatus = "NOT_LOGGED_IN"
	UserResetting    UserLoggedInStatus = "RESETTING_PIN"
	UserResetPending UserLoggedInStatus = "RESET_PIN_REQUESTED"
)

// User is the health worker operating the device.
type User struct {
	UUID           uuid.UUID          `db:"uuid" json:"id"`
	FullName       string             `db:"full_name" json:"full_name"`
	PhoneNumber    string             `db:"phone_number" json:"phone_number"`
	PinDigest      string             `db:"pin_digest" json:"-"`
	Status         string             `db:"status" json:"status"`
	LoggedInStatus UserLoggedInStatus `db:"logged_in_status" json:"-"`
	CreatedAt      time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `db:"updated_at" json:"updated_at"`
}

// UserFacility maps a user to the facilities they work at; exactly one row
// per user carries IsCurrentFacility.
type UserFacility struct {
	UserUUID          uuid.UUID `db:"user_uuid" json:"user_id"`
	FacilityUUID      uuid.UUID `db:"facility_uuid" json:"facility_id"`
	IsCurrentFacility bool      `db:"is_current_facility" json:"is_current_facility"`
}
