package dto

import (
	"database/sql"

	"roomkey/internal/domains/room/model"
	"roomkey/shared"
	gDto "roomkey/shared/dto"
	"roomkey/shared/slot"
)

type RoomResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	PricingMode    string `json:"pricing_mode"`
	HourlyRate     int64  `json:"hourly_rate,omitempty"`
	DayRate        int64  `json:"day_rate,omitempty"`
	EveningRate    int64  `json:"evening_rate,omitempty"`
	DayStart       string `json:"day_start,omitempty"`
	DayEnd         string `json:"day_end,omitempty"`
	FrontLockID    string `json:"front_lock_id,omitempty"`
	InteriorLockID string `json:"interior_lock_id,omitempty"`
	gDto.Metadata
}

func (r *RoomResponse) FromModel(room model.Room) {
	r.ID = room.ID
	r.Name = room.Name
	r.PricingMode = room.PricingMode
	r.HourlyRate = room.HourlyRate
	r.FrontLockID = room.FrontLockID.String
	r.InteriorLockID = room.InteriorLockID.String

	if room.PricingMode == model.PricingSplit {
		r.DayRate = room.DayRate
		r.EveningRate = room.EveningRate
		r.DayStart = slot.FormatHour(room.DayStartHour)
		r.DayEnd = slot.FormatHour(room.DayEndHour)
	}

	r.Metadata.FromModel(room.Metadata)
}

type GetRoomsResponse struct {
	Rooms     []RoomResponse `json:"rooms"`
	TotalPage int            `json:"total_page"`
	TotalData int            `json:"total_data"`
}

func (r *GetRoomsResponse) FromModels(models []model.Room, totalData, limit int) {
	r.TotalData = totalData
	r.TotalPage = shared.CalculateTotalPage(totalData, limit)

	r.Rooms = make([]RoomResponse, len(models))
	for i, mod := range models {
		r.Rooms[i].FromModel(mod)
	}
}

// UpdateLocksRequest attaches vendor lock ids to a room. An empty string detaches the lock.
type UpdateLocksRequest struct {
	FrontLockID    *string `json:"front_lock_id"    validate:"omitempty,max=64"`
	InteriorLockID *string `json:"interior_lock_id" validate:"omitempty,max=64"`
}

func (u *UpdateLocksRequest) Fields() map[string]any {
	fields := map[string]any{}

	if u.FrontLockID != nil {
		fields[model.FieldFrontLockID] = nullable(*u.FrontLockID)
	}

	if u.InteriorLockID != nil {
		fields[model.FieldInteriorLockID] = nullable(*u.InteriorLockID)
	}

	return fields
}

func nullable(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
