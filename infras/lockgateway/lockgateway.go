// Package lockgateway talks to the smart lock vendor's cloud API. The vendor is slow and flaky, so every call is
// throttled, bounded by a timeout and retried with backoff when the failure looks transient.
package lockgateway

//go:generate go run go.uber.org/mock/mockgen -source=./lockgateway.go -destination=./mocks/lockgateway_mock.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotConfigured  = errors.New("lock gateway is not configured")
	ErrUnauthorized   = errors.New("lock gateway rejected the access token")
	ErrPasscodeExists = errors.New("passcode already exists on lock")
	ErrNotFound       = errors.New("lock or passcode not found")
	ErrTransient      = errors.New("lock gateway temporarily unavailable")
)

// APIError is a non-zero vendor error code or an unexpected HTTP status.
type APIError struct {
	Status  int
	Code    int
	Message string
	kind    error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lock gateway error (status %d, code %d): %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.kind
}

type PasscodeRequest struct {
	LockID     string
	Code       string
	ValidFrom  time.Time
	ValidUntil time.Time
	Label      string
}

type LockStatus struct {
	LockID       string `json:"lock_id"`
	Name         string `json:"name"`
	Online       bool   `json:"online"`
	BatteryLevel int    `json:"battery_level"`
}

type AccessEvent struct {
	RecordID   string    `json:"record_id"`
	LockID     string    `json:"lock_id"`
	Method     string    `json:"method"`
	Success    bool      `json:"success"`
	Username   string    `json:"username,omitempty"`
	Passcode   string    `json:"passcode,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Gateway interface {
	Configured() bool
	Authenticate(ctx context.Context) (token string, err error)
	CreatePasscode(ctx context.Context, req PasscodeRequest) (credentialID string, err error)
	DeletePasscode(ctx context.Context, lockID, credentialID string) error
	GetLockStatus(ctx context.Context, lockID string) (LockStatus, error)
	GetAccessLog(ctx context.Context, lockID string, from, to time.Time) ([]AccessEvent, error)
}
