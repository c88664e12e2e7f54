package service

import (
	"context"
	"fmt"

	"roomkey/config"
	"roomkey/infras/database"
	"roomkey/infras/otel"
	"roomkey/internal/domains/block/model"
	"roomkey/internal/domains/block/model/dto"
	"roomkey/internal/domains/block/repository"
	bookingModel "roomkey/internal/domains/booking/model"
	roomModel "roomkey/internal/domains/room/model"
	roomRepo "roomkey/internal/domains/room/repository"
	"roomkey/shared"
	"roomkey/shared/cache"
	"roomkey/shared/constant"
	gDto "roomkey/shared/dto"
	"roomkey/shared/failure"
	"roomkey/shared/slot"
	"roomkey/shared/timezone"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

type Block interface {
	Create(ctx context.Context, req dto.CreateBlockRequest) ([]dto.BlockResponse, error)
	GetAll(ctx context.Context, params gDto.QueryParams, req dto.ListBlocksRequest) (dto.GetBlocksResponse, error)
	Get(ctx context.Context, id string) (dto.BlockResponse, error)
	Update(ctx context.Context, req dto.UpdateBlockRequest, id string) error
	Delete(ctx context.Context, id string) (int, error)
}

type serviceImpl struct {
	repo     repository.BlockedSlot
	roomRepo roomRepo.Room
	db       database.Transactor
	cfg      *config.Config
	cache    cache.RedisCache
	otel     otel.Otel
}

func New(repo repository.BlockedSlot, roomRepo roomRepo.Room, db database.Transactor, cfg *config.Config, cache cache.RedisCache, otel otel.Otel) Block {
	return &serviceImpl{
		repo:     repo,
		roomRepo: roomRepo,
		db:       db,
		cfg:      cfg,
		cache:    cache,
		otel:     otel,
	}
}

// Create inserts a standalone block, or a head plus one child per following week through recur_until.
// Existing bookings are not checked: a block is an administrative override enforced at booking time.
func (s *serviceImpl) Create(ctx context.Context, req dto.CreateBlockRequest) (res []dto.BlockResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".block.Create")
	defer scope.End()
	defer scope.TraceIfError(&err)

	user, _ := ctx.Value(constant.ContextKeyUserID).(string)

	interval, err := slot.Parse(req.StartTime, req.EndTime)
	if err != nil {
		return nil, failure.BadRequest(err) // nolint:wrapcheck
	}

	date, err := slot.ParseDate(req.Date)
	if err != nil {
		return nil, failure.BadRequest(err) // nolint:wrapcheck
	}

	until := date
	if req.Recurring {
		until, err = slot.ParseDate(req.RecurUntil)
		if err != nil {
			return nil, failure.BadRequestFromString("recur_until must use the YYYY-MM-DD format") // nolint:wrapcheck
		}

		if !until.After(date) {
			return nil, failure.BadRequestFromString("recur_until must be after date") // nolint:wrapcheck
		}

		if occurrences := len(model.Weekly(date, until)); occurrences > s.cfg.Block.MaxOccurrences {
			return nil, failure.BadRequestFromString(fmt.Sprintf("series would create %d blocks, the limit is %d", occurrences, s.cfg.Block.MaxOccurrences)) // nolint:wrapcheck
		}
	}

	roomExists, err := s.roomRepo.Exist(ctx, shared.FilterByID(req.RoomID, roomModel.FieldID, roomModel.TableName))
	if err != nil {
		log.Error().Err(err).Msg("failed to check if room exists")

		return nil, fmt.Errorf("failed to check if room exists: %w", err)
	}

	if !roomExists {
		return nil, failure.BadRequestFromString("room does not exist") // nolint:wrapcheck
	}

	series := req.Series(interval, date, until, user)

	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		return s.repo.InsertBulkTx(ctx, tx, series)
	})
	if err != nil {
		log.Error().Err(err).Str("room_id", req.RoomID).Int("blocks", len(series)).Msg("failed to create blocked slots")

		return nil, fmt.Errorf("failed to create blocked slots: %w", err)
	}

	log.Info().Str("room_id", req.RoomID).Int("blocks", len(series)).Bool("recurring", req.Recurring).Msg("blocked slots created")

	s.invalidate(ctx)

	res = make([]dto.BlockResponse, len(series))
	for i, block := range series {
		res[i].FromModel(block)
	}

	return res, nil
}

func (s *serviceImpl) GetAll(ctx context.Context, params gDto.QueryParams, req dto.ListBlocksRequest) (res dto.GetBlocksResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".block.GetAll")
	defer scope.End()
	defer scope.TraceIfError(&err)

	filter := req.Filter()
	cacheKey := shared.BuildCacheKeyWithQuery(model.CacheGetAllBlock, params, filter)

	err = s.cache.Get(ctx, cacheKey, &res)
	if err == nil {
		log.Info().Str("cacheKey", cacheKey).Msg("cache hit for blocked slots")

		return res, nil
	}

	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to count blocked slots")

		return res, fmt.Errorf("failed to count blocked slots: %w", err)
	}

	models, err := s.repo.GetAll(ctx, params, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to get blocked slots")

		return res, fmt.Errorf("failed to get blocked slots: %w", err)
	}

	res.FromModels(models, total, params.Limit)

	orphans, err := s.orphans(ctx, models)
	if err != nil {
		return res, err
	}

	for i, block := range models {
		if orphans[block.ID] {
			res.Blocks[i].MarkOrphaned()
		}
	}

	go func() {
		c := context.WithoutCancel(ctx)

		if err := s.cache.Save(c, cacheKey, res, s.cfg.Cache.TTL); err != nil {
			log.Error().Err(err).Msg("failed to save blocked slots to cache")
		}
	}()

	return res, nil
}

func (s *serviceImpl) Get(ctx context.Context, id string) (res dto.BlockResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".block.Get")
	defer scope.End()
	defer scope.TraceIfError(&err)

	block, err := s.find(ctx, id)
	if err != nil {
		return res, err
	}

	res.FromModel(block)

	orphans, err := s.orphans(ctx, []model.BlockedSlot{block})
	if err != nil {
		return res, err
	}

	if orphans[block.ID] {
		res.MarkOrphaned()
	}

	return res, nil
}

func (s *serviceImpl) Update(ctx context.Context, req dto.UpdateBlockRequest, id string) (err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".block.Update")
	defer scope.End()
	defer scope.TraceIfError(&err)

	user, _ := ctx.Value(constant.ContextKeyUserID).(string)

	current, err := s.find(ctx, id)
	if err != nil {
		return err
	}

	fields, _, err := req.Fields(current)
	if err != nil {
		return failure.BadRequest(err) // nolint:wrapcheck
	}

	if len(fields) == 0 {
		return failure.BadRequestFromString("nothing to update") // nolint:wrapcheck
	}

	fields[constant.FieldModifiedAt] = timezone.Now()
	fields[constant.FieldModifiedBy] = user

	if err = s.repo.Update(ctx, fields, shared.FilterByID(id, model.FieldID, model.TableName)); err != nil {
		log.Error().Err(err).Str("block_id", id).Msg("failed to update blocked slot")

		return fmt.Errorf("failed to update blocked slot: %w", err)
	}

	s.invalidate(ctx)

	return nil
}

// Delete removes a whole series when given its head and a single record otherwise.
// It returns how many records were targeted.
func (s *serviceImpl) Delete(ctx context.Context, id string) (deleted int, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".block.Delete")
	defer scope.End()
	defer scope.TraceIfError(&err)

	block, err := s.find(ctx, id)
	if err != nil {
		return 0, err
	}

	switch block.Variant().(type) {
	case model.RecurrenceHead:
		series := repository.BySeries(block.ID)

		deleted, err = s.repo.Count(ctx, series)
		if err != nil {
			log.Error().Err(err).Str("block_id", id).Msg("failed to count blocked slot series")

			return 0, fmt.Errorf("failed to count blocked slot series: %w", err)
		}

		err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
			return s.repo.DeleteTx(ctx, tx, series)
		})
	default:
		deleted = 1
		err = s.repo.Delete(ctx, shared.FilterByID(block.ID, model.FieldID, model.TableName))
	}

	if err != nil {
		log.Error().Err(err).Str("block_id", id).Msg("failed to delete blocked slot")

		return 0, fmt.Errorf("failed to delete blocked slot: %w", err)
	}

	log.Info().Str("block_id", id).Str("kind", block.Kind).Int("deleted", deleted).Msg("blocked slot deleted")

	s.invalidate(ctx)

	return deleted, nil
}

func (s *serviceImpl) find(ctx context.Context, id string) (model.BlockedSlot, error) {
	block, err := s.repo.Get(ctx, shared.FilterByID(id, model.FieldID, model.TableName))
	if err != nil {
		log.Error().Err(err).Str("block_id", id).Msg("failed to get blocked slot")

		return block, fmt.Errorf("failed to get blocked slot: %w", err)
	}

	if block.ID == constant.Empty {
		return block, failure.NotFound("blocked slot not found") // nolint:wrapcheck
	}

	return block, nil
}

// orphans returns the ids of children whose head can no longer be resolved.
func (s *serviceImpl) orphans(ctx context.Context, blocks []model.BlockedSlot) (map[string]bool, error) {
	parents := []string{}

	for _, block := range blocks {
		if child, ok := block.Variant().(model.RecurrenceChild); ok {
			parents = append(parents, child.ParentID)
		}
	}

	orphans := map[string]bool{}
	if len(parents) == 0 {
		return orphans, nil
	}

	heads, err := s.repo.GetAll(ctx, gDto.QueryParams{}, gDto.FilterGroup{
		Filters: []any{
			gDto.Filter{Field: model.FieldID, Value: parents, Operator: gDto.FilterOperatorIn, Table: model.TableName},
		},
	}, model.FieldID)
	if err != nil {
		log.Error().Err(err).Msg("failed to resolve blocked slot series heads")

		return nil, fmt.Errorf("failed to resolve blocked slot series heads: %w", err)
	}

	resolved := make(map[string]bool, len(heads))
	for _, head := range heads {
		resolved[head.ID] = true
	}

	for _, block := range blocks {
		if child, ok := block.Variant().(model.RecurrenceChild); ok && !resolved[child.ParentID] {
			orphans[block.ID] = true
		}
	}

	return orphans, nil
}

func (s *serviceImpl) invalidate(ctx context.Context) {
	go func() {
		c := context.WithoutCancel(ctx)

		shared.InvalidateCaches(c, s.cache, model.CacheGetAllBlock)
		shared.InvalidateCaches(c, s.cache, bookingModel.CacheAvailability)
	}()
}
