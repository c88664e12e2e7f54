// Package passcode produces the numeric codes pushed to the door locks. The lock hardware only accepts
// six digits that do not start with zero.
package passcode

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/big"
)

const (
	Length = 6

	lowest = 100000
	span   = 900000
)

// Generate returns a random code for a live booking.
func Generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return "", fmt.Errorf("failed to generate passcode: %w", err)
	}

	return fmt.Sprintf("%d", lowest+n.Int64()), nil
}

// Fallback derives a stable code from the booking id, used when no lock accepted a code.
func Fallback(bookingID string) string {
	hash := sha256.Sum256([]byte(bookingID))
	num := binary.BigEndian.Uint64(hash[:8])

	return fmt.Sprintf("%d", lowest+num%span)
}

// Valid reports whether code has the shape the lock hardware accepts.
func Valid(code string) bool {
	if len(code) != Length || code[0] == '0' {
		return false
	}

	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}

	return true
}
