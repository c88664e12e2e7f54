package model

import (
	"database/sql"
	"time"

	"roomkey/shared/model"
	"roomkey/shared/slot"
)

const CacheGetAllBlock = "block:gets"

const (
	TableName  = "blocked_slots"
	EntityName = "blocked_slot"

	FieldID         = "id"
	FieldRoomID     = "room_id"
	FieldBlockDate  = "block_date"
	FieldStartHour  = "start_hour"
	FieldEndHour    = "end_hour"
	FieldReason     = "reason"
	FieldKind       = "kind"
	FieldRecurring  = "recurring"
	FieldRecurUntil = "recur_until"
	FieldParentID   = "parent_id"
)

const (
	KindStandalone      = "standalone"
	KindRecurrenceHead  = "recurrence_head"
	KindRecurrenceChild = "recurrence_child"
)

const (
	LabelStandalone = "standalone"
	LabelHead       = "recurring series head"
	LabelChild      = "recurring"
	LabelOrphaned   = "orphaned, series ended"
)

// BlockedSlot is one stored row. Series are flat: children point at their head through ParentID only.
type BlockedSlot struct {
	ID         string         `db:"id"`
	RoomID     string         `db:"room_id"`
	BlockDate  time.Time      `db:"block_date"`
	StartHour  int            `db:"start_hour"`
	EndHour    int            `db:"end_hour"`
	Reason     sql.NullString `db:"reason"`
	Kind       string         `db:"kind"`
	Recurring  bool           `db:"recurring"`
	RecurUntil sql.NullTime   `db:"recur_until"`
	ParentID   sql.NullString `db:"parent_id"`
	model.Metadata
}

func (b BlockedSlot) Interval() slot.Interval {
	return slot.Interval{Start: b.StartHour, End: b.EndHour}
}

// Variant is the role of a block, fixed when the block is created.
type Variant interface {
	variant()
}

type Standalone struct{}

type RecurrenceHead struct {
	Until time.Time
}

type RecurrenceChild struct {
	ParentID string
}

func (Standalone) variant()      {}
func (RecurrenceHead) variant()  {}
func (RecurrenceChild) variant() {}

// Variant decodes the stored kind column.
func (b BlockedSlot) Variant() Variant {
	switch b.Kind {
	case KindRecurrenceHead:
		return RecurrenceHead{Until: b.RecurUntil.Time}
	case KindRecurrenceChild:
		return RecurrenceChild{ParentID: b.ParentID.String}
	default:
		return Standalone{}
	}
}

// Weekly lists the dates of a weekly series from date through until inclusive.
func Weekly(date, until time.Time) []time.Time {
	dates := []time.Time{}

	for current := date; !current.After(until); current = current.AddDate(0, 0, 7) {
		dates = append(dates, current)
	}

	return dates
}
