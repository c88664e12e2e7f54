package passcode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"roomkey/internal/domains/credential/passcode"
)

func TestGenerate(t *testing.T) {
	for range 200 {
		code, err := passcode.Generate()

		assert.NoError(t, err)
		assert.True(t, passcode.Valid(code), code)
	}
}

func TestFallback(t *testing.T) {
	first := passcode.Fallback("booking-1")

	assert.True(t, passcode.Valid(first))
	assert.Equal(t, first, passcode.Fallback("booking-1"))
	assert.NotEqual(t, first, passcode.Fallback("booking-2"))
}

func TestValid(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{code: "123456", want: true},
		{code: "012345", want: false},
		{code: "12345", want: false},
		{code: "1234567", want: false},
		{code: "12a456", want: false},
		{code: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, passcode.Valid(tt.code))
		})
	}
}
