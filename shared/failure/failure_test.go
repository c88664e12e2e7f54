package failure_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"roomkey/shared/failure"

	"github.com/stretchr/testify/assert"
)

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "bad request", err: failure.BadRequestFromString("slot blocked"), want: http.StatusBadRequest},
		{name: "bad request from error", err: failure.BadRequest(errors.New("start must be before end")), want: http.StatusBadRequest},
		{name: "unauthorized", err: failure.Unauthorized("Token has expired"), want: http.StatusUnauthorized},
		{name: "forbidden", err: failure.Forbidden("not your booking"), want: http.StatusForbidden},
		{name: "forbidden sentinel", err: failure.ForbiddenError, want: http.StatusForbidden},
		{name: "not found", err: failure.NotFound("room not found"), want: http.StatusNotFound},
		{name: "conflict", err: failure.Conflict("job is already running"), want: http.StatusConflict},
		{name: "wrapped failure", err: fmt.Errorf("create booking: %w", failure.BadRequestFromString("slot already booked")), want: http.StatusBadRequest},
		{name: "plain error", err: errors.New("connection reset"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, failure.GetCode(tt.err))
		})
	}
}

func TestBadRequest(t *testing.T) {
	assert.NoError(t, failure.BadRequest(nil))

	err := failure.BadRequest(errors.New("invalid hour 25:00"))
	assert.EqualError(t, err, "invalid hour 25:00")
}

func TestFailureIsComparable(t *testing.T) {
	sentinel := failure.BadRequestFromString("slot already booked")

	assert.ErrorIs(t, fmt.Errorf("wrap: %w", sentinel), sentinel)
	assert.NotErrorIs(t, failure.BadRequestFromString("slot already booked"), sentinel)
}
