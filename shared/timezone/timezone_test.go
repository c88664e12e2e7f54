package timezone_test

import (
	"testing"
	"time"

	"roomkey/shared/timezone"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimezone(t *testing.T) {
	jakarta, err := time.LoadLocation("Asia/Jakarta")
	require.NoError(t, err)

	previous := timezone.GetLocation()
	timezone.SetLocation(jakarta)
	t.Cleanup(func() { timezone.SetLocation(previous) })

	t.Run("now is in the studio zone", func(t *testing.T) {
		assert.Equal(t, jakarta, timezone.Now().Location())
	})

	t.Run("parse reads wall clock", func(t *testing.T) {
		parsed, err := timezone.Parse("2006-01-02 15:04", "2025-01-06 10:00")
		require.NoError(t, err)

		assert.Equal(t, time.Date(2025, 1, 6, 3, 0, 0, 0, time.UTC), parsed.UTC())
	})

	t.Run("format converts instants", func(t *testing.T) {
		instant := time.Date(2025, 1, 6, 17, 30, 0, 0, time.UTC)

		assert.Equal(t, "2025-01-07 00:30", timezone.Format(instant, "2006-01-02 15:04"))
		assert.Equal(t, 0, timezone.ToAppTime(instant).Hour())
	})

	t.Run("invalid value", func(t *testing.T) {
		_, err := timezone.Parse("2006-01-02", "06/01/2025")
		assert.Error(t, err)
	})
}

func TestInit(t *testing.T) {
	previous := timezone.GetLocation()
	t.Cleanup(func() { timezone.SetLocation(previous) })

	tests := []struct {
		name string
		zone string
		want string
	}{
		{name: "named zone", zone: "Asia/Jakarta", want: "Asia/Jakarta"},
		{name: "empty falls back to UTC", zone: "", want: "UTC"},
		{name: "unknown falls back to UTC", zone: "Mars/Olympus_Mons", want: "UTC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			timezone.Init(tt.zone)

			assert.Equal(t, tt.want, timezone.GetLocation().String())
		})
	}
}

func TestGetLocationWithoutInitIsUTC(t *testing.T) {
	previous := timezone.GetLocation()
	t.Cleanup(func() { timezone.SetLocation(previous) })

	timezone.SetLocation(nil)

	assert.Equal(t, time.UTC, timezone.GetLocation())
	assert.Equal(t, time.UTC, timezone.Now().Location())
}
