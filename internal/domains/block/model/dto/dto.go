package dto

import (
	"database/sql"
	"time"

	"roomkey/internal/domains/block/model"
	"roomkey/shared"
	gDto "roomkey/shared/dto"
	"roomkey/shared/slot"
	"roomkey/shared/timezone"

	"github.com/google/uuid"
)

type CreateBlockRequest struct {
	RoomID     string `json:"room_id"     validate:"required,uuid"`
	Date       string `json:"date"        validate:"required,date"`
	StartTime  string `json:"start_time"  validate:"required,hour"`
	EndTime    string `json:"end_time"    validate:"required,hour"`
	Reason     string `json:"reason"      validate:"omitempty,max=255"`
	Recurring  bool   `json:"recurring"`
	RecurUntil string `json:"recur_until" validate:"required_if=Recurring true,omitempty,date"`
}

// UpdateBlockRequest patches one record; siblings in the same series are left untouched.
type UpdateBlockRequest struct {
	StartTime *string `json:"start_time" validate:"omitempty,hour"`
	EndTime   *string `json:"end_time"   validate:"omitempty,hour"`
	Reason    *string `json:"reason"     validate:"omitempty,max=255"`
}

type ListBlocksRequest struct {
	RoomID string
	From   string
	To     string
}

func (l ListBlocksRequest) Filter() gDto.FilterGroup {
	group := gDto.FilterGroup{Operator: gDto.FilterGroupOperatorAnd}

	if l.RoomID != "" {
		group.Filters = append(group.Filters, gDto.Filter{
			Field: model.FieldRoomID, Value: l.RoomID, Operator: gDto.FilterOperatorEq, Table: model.TableName,
		})
	}

	if from, err := slot.ParseDate(l.From); err == nil {
		group.Filters = append(group.Filters, gDto.Filter{
			ArgName: "from_date", Field: model.FieldBlockDate, Value: from, Operator: gDto.FilterOperatorGreaterEq, Table: model.TableName,
		})
	}

	if to, err := slot.ParseDate(l.To); err == nil {
		group.Filters = append(group.Filters, gDto.Filter{
			ArgName: "to_date", Field: model.FieldBlockDate, Value: to, Operator: gDto.FilterOperatorLessEq, Table: model.TableName,
		})
	}

	return group
}

type BlockResponse struct {
	ID         string `json:"id"`
	RoomID     string `json:"room_id"`
	Date       string `json:"date"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Reason     string `json:"reason,omitempty"`
	Kind       string `json:"kind"`
	Recurring  bool   `json:"recurring"`
	RecurUntil string `json:"recur_until,omitempty"`
	ParentID   string `json:"parent_id,omitempty"`
	Label      string `json:"label"`
	gDto.Metadata
}

func (r *BlockResponse) FromModel(block model.BlockedSlot) {
	r.ID = block.ID
	r.RoomID = block.RoomID
	r.Date = slot.FormatDate(block.BlockDate)
	r.StartTime = slot.FormatHour(block.StartHour)
	r.EndTime = slot.FormatHour(block.EndHour)
	r.Reason = block.Reason.String
	r.Kind = block.Kind
	r.Recurring = block.Recurring
	r.ParentID = block.ParentID.String
	r.Label = label(block.Variant())

	if block.RecurUntil.Valid {
		r.RecurUntil = slot.FormatDate(block.RecurUntil.Time)
	}

	r.Metadata.FromModel(block.Metadata)
}

// MarkOrphaned relabels a child whose head no longer exists.
func (r *BlockResponse) MarkOrphaned() {
	r.Label = model.LabelOrphaned
}

func label(variant model.Variant) string {
	switch variant.(type) {
	case model.RecurrenceHead:
		return model.LabelHead
	case model.RecurrenceChild:
		return model.LabelChild
	default:
		return model.LabelStandalone
	}
}

type GetBlocksResponse struct {
	Blocks    []BlockResponse `json:"blocks"`
	TotalPage int             `json:"total_page"`
	TotalData int             `json:"total_data"`
}

func (r *GetBlocksResponse) FromModels(models []model.BlockedSlot, totalData, limit int) {
	r.TotalData = totalData
	r.TotalPage = shared.CalculateTotalPage(totalData, limit)

	r.Blocks = make([]BlockResponse, len(models))
	for i, mod := range models {
		r.Blocks[i].FromModel(mod)
	}
}

func nullableReason(reason string) sql.NullString {
	return sql.NullString{String: reason, Valid: reason != ""}
}

// Series is the set of rows one create request expands into, head first.
func (c *CreateBlockRequest) Series(interval slot.Interval, date, until time.Time, user string) []model.BlockedSlot {
	now := timezone.Now()

	base := model.BlockedSlot{
		RoomID:    c.RoomID,
		StartHour: interval.Start,
		EndHour:   interval.End,
		Reason:    nullableReason(c.Reason),
	}
	base.CreatedAt, base.ModifiedAt = now, now
	base.CreatedBy, base.ModifiedBy = user, user

	if !c.Recurring {
		block := base
		block.ID = uuid.NewString()
		block.BlockDate = date
		block.Kind = model.KindStandalone

		return []model.BlockedSlot{block}
	}

	dates := model.Weekly(date, until)
	series := make([]model.BlockedSlot, 0, len(dates))

	head := base
	head.ID = uuid.NewString()
	head.BlockDate = dates[0]
	head.Kind = model.KindRecurrenceHead
	head.Recurring = true
	head.RecurUntil = sql.NullTime{Time: until, Valid: true}
	series = append(series, head)

	for _, occurrence := range dates[1:] {
		child := base
		child.ID = uuid.NewString()
		child.BlockDate = occurrence
		child.Kind = model.KindRecurrenceChild
		child.Recurring = true
		child.ParentID = sql.NullString{String: head.ID, Valid: true}
		series = append(series, child)
	}

	return series
}

// Fields returns the columns to patch and the interval the record ends up with.
func (u *UpdateBlockRequest) Fields(current model.BlockedSlot) (fields map[string]any, interval slot.Interval, err error) {
	fields = map[string]any{}
	start, end := current.StartHour, current.EndHour

	if u.StartTime != nil {
		if start, err = slot.ParseHour(*u.StartTime); err != nil {
			return nil, interval, err
		}

		fields[model.FieldStartHour] = start
	}

	if u.EndTime != nil {
		if end, err = slot.ParseHour(*u.EndTime); err != nil {
			return nil, interval, err
		}

		fields[model.FieldEndHour] = end
	}

	if u.Reason != nil {
		fields[model.FieldReason] = nullableReason(*u.Reason)
	}

	interval, err = slot.New(start, end)

	return fields, interval, err
}
