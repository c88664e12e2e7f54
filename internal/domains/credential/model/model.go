package model

import (
	"database/sql"
	"time"

	"roomkey/shared/model"
)

const (
	TableName  = "booking_credentials"
	EntityName = "booking_credential"

	FieldID           = "id"
	FieldBookingID    = "booking_id"
	FieldRoomID       = "room_id"
	FieldLockID       = "lock_id"
	FieldLockRole     = "lock_role"
	FieldCredentialID = "credential_id"
	FieldStatus       = "status"
	FieldLastError    = "last_error"
	FieldValidFrom    = "valid_from"
	FieldValidUntil   = "valid_until"
)

// Per-lock outcome. A failed row has no credential on the hardware; a provisioned row must be deleted there
// before it may become revoked.
const (
	StatusProvisioned = "provisioned"
	StatusFailed      = "failed"
	StatusRevoked     = "revoked"
)

type BookingCredential struct {
	ID           string         `db:"id"`
	BookingID    string         `db:"booking_id"`
	RoomID       string         `db:"room_id"`
	LockID       string         `db:"lock_id"`
	LockRole     string         `db:"lock_role"`
	CredentialID sql.NullString `db:"credential_id"`
	Status       string         `db:"status"`
	LastError    sql.NullString `db:"last_error"`
	ValidFrom    time.Time      `db:"valid_from"`
	ValidUntil   time.Time      `db:"valid_until"`
	model.Metadata
}

func (c BookingCredential) Live() bool {
	return c.Status == StatusProvisioned && c.CredentialID.Valid
}
