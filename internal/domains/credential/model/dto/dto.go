package dto

import (
	"roomkey/infras/lockgateway"
)

// LockResult is the outcome of provisioning one lock. Err is nil on success.
type LockResult struct {
	LockID       string
	Role         string
	CredentialID string
	Err          error
}

// Outcome describes the credential state a booking ended up in after provisioning.
type Outcome struct {
	Passcode string
	Enabled  bool
	Status   string
	Locks    []LockResult
	// Skipped is set when the booking no longer needs a credential.
	Skipped bool
	// Retryable is false when retrying cannot help, e.g. no locks or no gateway.
	Retryable bool
}

func (o Outcome) Failed() int {
	failed := 0

	for _, lock := range o.Locks {
		if lock.Err != nil {
			failed++
		}
	}

	return failed
}

// Degraded is true when at least one lock did not accept the code.
func (o Outcome) Degraded() bool {
	return !o.Skipped && (!o.Enabled || o.Failed() > 0)
}

type RevokeResult struct {
	Revoked   int
	Remaining int
}

// Complete is true when nothing is left on the hardware.
func (r RevokeResult) Complete() bool {
	return r.Remaining == 0
}

type ResyncPayload struct {
	BookingID string `json:"booking_id"`
}

type LockHealth struct {
	RoomID       string `json:"room_id"`
	RoomName     string `json:"room_name"`
	LockID       string `json:"lock_id"`
	Role         string `json:"role"`
	Online       bool   `json:"online"`
	BatteryLevel int    `json:"battery_level"`
	Healthy      bool   `json:"healthy"`
	Error        string `json:"error,omitempty"`
}

type AccessLogResponse struct {
	RoomID string                    `json:"room_id"`
	From   string                    `json:"from"`
	To     string                    `json:"to"`
	Events []lockgateway.AccessEvent `json:"events"`
}

type LockResultResponse struct {
	LockID       string `json:"lock_id"`
	Role         string `json:"role"`
	CredentialID string `json:"credential_id,omitempty"`
	Error        string `json:"error,omitempty"`
}

type ResyncResponse struct {
	BookingID string               `json:"booking_id"`
	Status    string               `json:"credential_status,omitempty"`
	Enabled   bool                 `json:"credential_enabled"`
	Skipped   bool                 `json:"skipped,omitempty"`
	Locks     []LockResultResponse `json:"locks"`
}

func (r *ResyncResponse) FromOutcome(bookingID string, out Outcome) {
	r.BookingID = bookingID
	r.Status = out.Status
	r.Enabled = out.Enabled
	r.Skipped = out.Skipped

	r.Locks = make([]LockResultResponse, len(out.Locks))
	for i, lock := range out.Locks {
		r.Locks[i] = LockResultResponse{LockID: lock.LockID, Role: lock.Role, CredentialID: lock.CredentialID}
		if lock.Err != nil {
			r.Locks[i].Error = lock.Err.Error()
		}
	}
}
