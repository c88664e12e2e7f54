// Package timezone pins every wall-clock computation to the studio's timezone (APP_TIMEZONE, an IANA name).
// Booking dates and hours are local to that zone; instants sent to the lock vendor are derived from it.
// Until Init runs the zone is UTC.
package timezone

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

var location atomic.Pointer[time.Location]

// Init loads the named zone at startup. An empty or unknown name leaves UTC in place.
func Init(name string) {
	if name == "" {
		log.Warn().Msg("No timezone configured, using UTC")
		SetLocation(time.UTC)

		return
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Error().Err(err).Str("timezone", name).Msg("Failed to load timezone, falling back to UTC")
		SetLocation(time.UTC)

		return
	}

	SetLocation(loc)

	log.Info().Str("timezone", loc.String()).Msg("Application timezone initialized")
}

// SetLocation overrides the zone. Tests use it to pin a non-UTC zone.
func SetLocation(loc *time.Location) {
	location.Store(loc)
}

func GetLocation() *time.Location {
	if loc := location.Load(); loc != nil {
		return loc
	}

	return time.UTC
}

func Now() time.Time {
	return time.Now().In(GetLocation())
}

func ToAppTime(t time.Time) time.Time {
	return t.In(GetLocation())
}

// Parse reads a wall-clock value in the application timezone.
func Parse(layout, value string) (time.Time, error) {
	return time.ParseInLocation(layout, value, GetLocation()) //nolint:wrapcheck
}

func Format(t time.Time, layout string) string {
	return ToAppTime(t).Format(layout)
}
