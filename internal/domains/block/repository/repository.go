package repository

//go:generate go run go.uber.org/mock/mockgen -source=./repository.go -destination=../mocks/repository_mock.go -package=mocks

import (
	"context"
	"time"

	"roomkey/infras/database"
	"roomkey/infras/otel"
	"roomkey/internal/domains/block/model"
	gDto "roomkey/shared/dto"
	gRepo "roomkey/shared/repository"

	"github.com/jmoiron/sqlx"
)

type BlockedSlot interface {
	InsertBulkTx(ctx context.Context, tx *sqlx.Tx, models []model.BlockedSlot) error
	Get(ctx context.Context, filter gDto.FilterGroup, columns ...string) (model.BlockedSlot, error)
	GetAll(ctx context.Context, params gDto.QueryParams, filter gDto.FilterGroup, columns ...string) ([]model.BlockedSlot, error)
	GetAllTx(ctx context.Context, tx *sqlx.Tx, params gDto.QueryParams, filter gDto.FilterGroup, columns ...string) ([]model.BlockedSlot, error)
	Count(ctx context.Context, filter gDto.FilterGroup) (int, error)
	Update(ctx context.Context, req map[string]any, filter gDto.FilterGroup) error
	Delete(ctx context.Context, filter gDto.FilterGroup) error
	DeleteTx(ctx context.Context, tx *sqlx.Tx, filter gDto.FilterGroup) error
}

type repositoryImpl struct {
	gRepo.Repository[model.BlockedSlot]
	db   *database.Connection
	otel otel.Otel
}

func New(db *database.Connection, otel otel.Otel) BlockedSlot {
	return &repositoryImpl{
		Repository: gRepo.NewRepository[model.BlockedSlot](model.EntityName, model.TableName, model.FieldID, db, otel),
		db:         db,
		otel:       otel,
	}
}

func ByRoomDay(roomID string, date time.Time) gDto.FilterGroup {
	return gDto.FilterGroup{
		Filters: []any{
			gDto.Filter{Field: model.FieldRoomID, Value: roomID, Operator: gDto.FilterOperatorEq, Table: model.TableName},
			gDto.Filter{Field: model.FieldBlockDate, Value: date, Operator: gDto.FilterOperatorEq, Table: model.TableName},
		},
		Operator: gDto.FilterGroupOperatorAnd,
	}
}

// BySeries matches a head and every child that points at it.
func BySeries(headID string) gDto.FilterGroup {
	return gDto.FilterGroup{
		Filters: []any{
			gDto.Filter{Field: model.FieldID, Value: headID, Operator: gDto.FilterOperatorEq, Table: model.TableName},
			gDto.Filter{ArgName: "series_parent_id", Field: model.FieldParentID, Value: headID, Operator: gDto.FilterOperatorEq, Table: model.TableName},
		},
		Operator: gDto.FilterGroupOperatorOr,
	}
}
