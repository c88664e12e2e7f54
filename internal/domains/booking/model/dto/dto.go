package dto

import (
	"time"

	"roomkey/internal/domains/booking/model"
	"roomkey/shared"
	gDto "roomkey/shared/dto"
	gModel "roomkey/shared/model"
	"roomkey/shared/slot"
	"roomkey/shared/timezone"

	"github.com/google/uuid"
)

const (
	SlotAvailable = "available"
	SlotBooked    = "booked"
	SlotBlocked   = "blocked"
)

type CreateBookingRequest struct {
	RoomID    string `json:"room_id"    validate:"required,uuid"`
	Date      string `json:"date"       validate:"required,date"`
	StartTime string `json:"start_time" validate:"required,hour"`
	EndTime   string `json:"end_time"   validate:"required,hour"`
}

// ToModel builds a confirmed booking with no credential yet.
func (c *CreateBookingRequest) ToModel(interval slot.Interval, date time.Time, price int64, user string) model.Booking {
	now := timezone.Now()

	return model.Booking{
		ID:               uuid.NewString(),
		RoomID:           c.RoomID,
		UserID:           user,
		BookingDate:      date,
		StartHour:        interval.Start,
		EndHour:          interval.End,
		Status:           model.StatusConfirmed,
		TotalPrice:       price,
		CredentialStatus: model.CredentialNone,
		Metadata: gModel.Metadata{
			CreatedAt:  now,
			ModifiedAt: now,
			CreatedBy:  user,
			ModifiedBy: user,
		},
	}
}

type ListBookingsRequest struct {
	RoomID string `validate:"omitempty,uuid"`
	UserID string
	Date   string `validate:"omitempty,date"`
	Status string `validate:"omitempty,oneof=confirmed cancelled"`
}

func (l ListBookingsRequest) Filter() gDto.FilterGroup {
	fields := map[string]any{}

	if l.RoomID != "" {
		fields[model.FieldRoomID] = l.RoomID
	}

	if l.UserID != "" {
		fields[model.FieldUserID] = l.UserID
	}

	if date, err := slot.ParseDate(l.Date); err == nil {
		fields[model.FieldBookingDate] = date
	}

	if l.Status != "" {
		fields[model.FieldStatus] = l.Status
	}

	return shared.FilterByFields(model.TableName, fields)
}

type BookingResponse struct {
	ID                string `json:"id"`
	RoomID            string `json:"room_id"`
	UserID            string `json:"user_id"`
	Date              string `json:"date"`
	StartTime         string `json:"start_time"`
	EndTime           string `json:"end_time"`
	Status            string `json:"status"`
	TotalPrice        int64  `json:"total_price"`
	Passcode          string `json:"passcode,omitempty"`
	CredentialStatus  string `json:"credential_status"`
	CredentialEnabled bool   `json:"credential_enabled"`
	gDto.Metadata
}

func (r *BookingResponse) FromModel(booking model.Booking) {
	r.ID = booking.ID
	r.RoomID = booking.RoomID
	r.UserID = booking.UserID
	r.Date = slot.FormatDate(booking.BookingDate)
	r.StartTime = slot.FormatHour(booking.StartHour)
	r.EndTime = slot.FormatHour(booking.EndHour)
	r.Status = booking.Status
	r.TotalPrice = booking.TotalPrice
	r.Passcode = booking.Passcode.String
	r.CredentialStatus = booking.CredentialStatus
	r.CredentialEnabled = booking.CredentialEnabled
	r.Metadata.FromModel(booking.Metadata)
}

type GetBookingsResponse struct {
	Bookings  []BookingResponse `json:"bookings"`
	TotalPage int               `json:"total_page"`
	TotalData int               `json:"total_data"`
}

func (r *GetBookingsResponse) FromModels(models []model.Booking, totalData, limit int) {
	r.TotalData = totalData
	r.TotalPage = shared.CalculateTotalPage(totalData, limit)

	r.Bookings = make([]BookingResponse, len(models))
	for i, mod := range models {
		r.Bookings[i].FromModel(mod)
	}
}

type SlotState struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	State     string `json:"state"`
}

type AvailabilityResponse struct {
	RoomID string      `json:"room_id"`
	Date   string      `json:"date"`
	Slots  []SlotState `json:"slots"`
}

// BuildGrid marks each business hour booked, blocked or available. A booked hour stays booked even when a block
// was added over it later.
func (r *AvailabilityResponse) BuildGrid(openHour, closeHour int, booked, blocked []slot.Interval) {
	r.Slots = make([]SlotState, 0, closeHour-openHour)

	for hour := openHour; hour < closeHour; hour++ {
		current := slot.Interval{Start: hour, End: hour + 1}
		state := SlotAvailable

		switch {
		case overlapsAny(current, booked):
			state = SlotBooked
		case overlapsAny(current, blocked):
			state = SlotBlocked
		}

		r.Slots = append(r.Slots, SlotState{
			StartTime: slot.FormatHour(current.Start),
			EndTime:   slot.FormatHour(current.End),
			State:     state,
		})
	}
}

func overlapsAny(target slot.Interval, intervals []slot.Interval) bool {
	for _, interval := range intervals {
		if interval.Overlaps(target) {
			return true
		}
	}

	return false
}

type CancelUserBookingsResponse struct {
	UserID               string   `json:"user_id"`
	Cancelled            []string `json:"cancelled"`
	CredentialsRemaining int      `json:"credentials_remaining"`
}
