package model

import (
	"database/sql"
	"time"

	"roomkey/shared/model"
	"roomkey/shared/slot"
)

const (
	TableName  = "room_bookings"
	EntityName = "booking"

	FieldID                = "id"
	FieldRoomID            = "room_id"
	FieldUserID            = "user_id"
	FieldBookingDate       = "booking_date"
	FieldStartHour         = "start_hour"
	FieldEndHour           = "end_hour"
	FieldStatus            = "status"
	FieldTotalPrice        = "total_price"
	FieldPasscode          = "passcode"
	FieldCredentialStatus  = "credential_status"
	FieldCredentialEnabled = "credential_enabled"
	FieldCreatedBy         = "created_by"
)

const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// Credential lifecycle of a booking: none -> pending -> provisioned -> expired | revoked.
// pending means the stored passcode is not (yet) live on any lock.
const (
	CredentialNone        = "none"
	CredentialPending     = "pending"
	CredentialProvisioned = "provisioned"
	CredentialExpired     = "expired"
	CredentialRevoked     = "revoked"
)

// Cache prefixes are shared with the credential manager, which mutates bookings outside the booking service.
const (
	CacheGetBooking    = "booking:get"
	CacheGetAllBooking = "booking:gets"
	CacheCountBooking  = "booking:count"
	CacheAvailability  = "booking:availability"
)

type Booking struct {
	ID                string         `db:"id"`
	RoomID            string         `db:"room_id"`
	UserID            string         `db:"user_id"`
	BookingDate       time.Time      `db:"booking_date"`
	StartHour         int            `db:"start_hour"`
	EndHour           int            `db:"end_hour"`
	Status            string         `db:"status"`
	TotalPrice        int64          `db:"total_price"`
	Passcode          sql.NullString `db:"passcode"`
	CredentialStatus  string         `db:"credential_status"`
	CredentialEnabled bool           `db:"credential_enabled"`
	model.Metadata
}

func (b Booking) Interval() slot.Interval {
	return slot.Interval{Start: b.StartHour, End: b.EndHour}
}

// Window is the absolute validity window of the booking in loc.
func (b Booking) Window(loc *time.Location) (from, until time.Time) {
	return slot.Instant(b.BookingDate, b.StartHour, loc), slot.Instant(b.BookingDate, b.EndHour, loc)
}

// WithoutPasscode is a copy safe to hand outside the database.
func (b Booking) WithoutPasscode() Booking {
	b.Passcode = sql.NullString{}

	return b
}

func (b Booking) IsConfirmed() bool {
	return b.Status == StatusConfirmed
}
