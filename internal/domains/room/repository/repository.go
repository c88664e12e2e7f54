package repository

//go:generate go run go.uber.org/mock/mockgen -source=./repository.go -destination=../mocks/repository_mock.go -package=mocks

import (
	"context"
	"fmt"

	"roomkey/infras/database"
	"roomkey/infras/otel"
	"roomkey/internal/domains/room/model"
	"roomkey/shared/constant"
	gDto "roomkey/shared/dto"
	"roomkey/shared/logger"
	gRepo "roomkey/shared/repository"

	"github.com/jmoiron/sqlx"
)

type Room interface {
	Get(ctx context.Context, filter gDto.FilterGroup, columns ...string) (model.Room, error)
	GetAll(ctx context.Context, params gDto.QueryParams, filter gDto.FilterGroup, columns ...string) ([]model.Room, error)
	Exist(ctx context.Context, filter gDto.FilterGroup) (bool, error)
	Count(ctx context.Context, filter gDto.FilterGroup) (int, error)
	Update(ctx context.Context, req map[string]any, filter gDto.FilterGroup) error
	// LockTx serialises writers for one room until tx ends.
	LockTx(ctx context.Context, tx *sqlx.Tx, id string) error
}

type repositoryImpl struct {
	gRepo.Repository[model.Room]
	db   *database.Connection
	otel otel.Otel
}

func New(db *database.Connection, otel otel.Otel) Room {
	return &repositoryImpl{
		Repository: gRepo.NewRepository[model.Room](model.EntityName, model.TableName, model.FieldID, db, otel),
		db:         db,
		otel:       otel,
	}
}

func (r *repositoryImpl) LockTx(ctx context.Context, tx *sqlx.Tx, id string) error {
	ctx, scope := r.otel.NewScope(ctx, constant.OtelRepositoryScopeName, constant.OtelRepositoryScopeName+".room.LockTx")
	defer scope.End()

	// SQLite already holds the database write lock from BEGIN IMMEDIATE.
	if !r.db.IsPostgres() {
		return nil
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 FOR UPDATE", model.FieldID, model.TableName, model.FieldID)
	scope.SetAttribute(constant.OtelQueryAttributeKey, query)

	var locked string
	if err := tx.GetContext(ctx, &locked, query, id); err != nil {
		logger.ErrorWithStack(err)
		scope.TraceError(err)

		return fmt.Errorf("failed to lock room %s: %w", id, err)
	}

	return nil
}
