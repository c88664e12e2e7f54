package model

import (
	"database/sql"

	"roomkey/shared/model"
	"roomkey/shared/slot"
)

const (
	TableName  = "rooms"
	EntityName = "room"

	FieldID             = "id"
	FieldName           = "name"
	FieldPricingMode    = "pricing_mode"
	FieldFrontLockID    = "front_lock_id"
	FieldInteriorLockID = "interior_lock_id"
)

const (
	PricingFlat  = "flat"
	PricingSplit = "split"

	LockRoleFront    = "front"
	LockRoleInterior = "interior"

	// Bookings longer than this many hours get the long-stay discount.
	DiscountThresholdHours = 4
	DiscountPercent        = 10
)

// Room prices are in minor currency units per hour.
type Room struct {
	ID             string         `db:"id"`
	Name           string         `db:"name"`
	PricingMode    string         `db:"pricing_mode"`
	HourlyRate     int64          `db:"hourly_rate"`
	DayRate        int64          `db:"day_rate"`
	EveningRate    int64          `db:"evening_rate"`
	DayStartHour   int            `db:"day_start_hour"`
	DayEndHour     int            `db:"day_end_hour"`
	FrontLockID    sql.NullString `db:"front_lock_id"`
	InteriorLockID sql.NullString `db:"interior_lock_id"`
	model.Metadata
}

type Lock struct {
	ID   string
	Role string
}

// Locks lists the configured door locks, front door first.
func (r Room) Locks() []Lock {
	locks := make([]Lock, 0, 2)

	if r.FrontLockID.Valid && r.FrontLockID.String != "" {
		locks = append(locks, Lock{ID: r.FrontLockID.String, Role: LockRoleFront})
	}

	if r.InteriorLockID.Valid && r.InteriorLockID.String != "" {
		locks = append(locks, Lock{ID: r.InteriorLockID.String, Role: LockRoleInterior})
	}

	return locks
}

// HourRate is the price of the hour starting at hour.
func (r Room) HourRate(hour int) int64 {
	if r.PricingMode != PricingSplit {
		return r.HourlyRate
	}

	if hour >= r.DayStartHour && hour < r.DayEndHour {
		return r.DayRate
	}

	return r.EveningRate
}

// Price sums the interval hour by hour, then applies the discount to the total.
func (r Room) Price(interval slot.Interval) int64 {
	var total int64

	for hour := interval.Start; hour < interval.End; hour++ {
		total += r.HourRate(hour)
	}

	if interval.Hours() > DiscountThresholdHours {
		total = total * (100 - DiscountPercent) / 100
	}

	return total
}
