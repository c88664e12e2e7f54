package response_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"roomkey/shared/constant"
	"roomkey/shared/failure"
	"roomkey/transport/http/response"

	"github.com/stretchr/testify/assert"
)

func TestWithError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{
			name:     "failure keeps its code and message",
			err:      failure.NotFound("booking not found"),
			wantCode: http.StatusNotFound,
			wantBody: `{"error":"booking not found"}`,
		},
		{
			name:     "wrapped failure",
			err:      fmt.Errorf("cancel: %w", failure.Forbidden("you can only cancel your own bookings")),
			wantCode: http.StatusForbidden,
			wantBody: `{"error":"cancel: you can only cancel your own bookings"}`,
		},
		{
			name:     "plain error hides its text",
			err:      errors.New("pq: connection refused"),
			wantCode: http.StatusInternalServerError,
			wantBody: `{"error":"` + constant.ResponseErrorInternal + `"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()

			response.WithError(rec, tt.err)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, constant.ContentTypeJSON, rec.Header().Get(constant.RequestHeaderContentType))
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestEnvelopes(t *testing.T) {
	t.Run("data", func(t *testing.T) {
		rec := httptest.NewRecorder()

		response.WithJSON(rec, http.StatusCreated, map[string]string{"id": "b-1"})

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.JSONEq(t, `{"data":{"id":"b-1"}}`, rec.Body.String())
	})

	t.Run("message", func(t *testing.T) {
		rec := httptest.NewRecorder()

		response.WithMessage(rec, http.StatusOK, "Booking cancelled successfully")

		assert.JSONEq(t, `{"message":"Booking cancelled successfully"}`, rec.Body.String())
	})

	t.Run("unencodable payload", func(t *testing.T) {
		rec := httptest.NewRecorder()

		response.WithJSON(rec, http.StatusOK, map[string]any{"bad": make(chan int)})

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("rate limited", func(t *testing.T) {
		rec := httptest.NewRecorder()

		response.WithRequestLimitExceeded(rec)

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})
}
