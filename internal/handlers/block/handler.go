package block

import (
	"fmt"
	"net/http"

	"roomkey/infras/otel"
	"roomkey/internal/domains/block/model"
	"roomkey/internal/domains/block/model/dto"
	"roomkey/internal/domains/block/service"
	"roomkey/shared/constant"
	gDto "roomkey/shared/dto"
	"roomkey/shared/validator"
	"roomkey/transport/http/response"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

type Handler struct {
	service service.Block
	otel    otel.Otel
}

func New(service service.Block, otel otel.Otel) Handler {
	return Handler{
		service: service,
		otel:    otel,
	}
}

func (handler *Handler) Router(router chi.Router) {
	router.Route("/admin/blocks", func(routerGroup chi.Router) {
		routerGroup.Post("/", handler.CreateBlock)
		routerGroup.Get("/", handler.GetBlocks)
		routerGroup.Get("/{id}", handler.GetBlockByID)
		routerGroup.Patch("/{id}", handler.UpdateBlock)
		routerGroup.Delete("/{id}", handler.DeleteBlock)
	})
}

// CreateBlock blocks a slot once or weekly until recur_until.
// @Summary Create a blocked slot
// @Description A recurring request creates a series head on the given date and one child per following week.
// @Tags Block
// @Accept json
// @Produce json
// @Param request body dto.CreateBlockRequest true "Create Block Request"
// @Success 201 {object} response.Data[[]dto.BlockResponse] "Created blocks, head first"
// @Failure 400 {object} response.Error
// @Failure 404 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/admin/blocks [post]
// @Security BearerAuth
func (handler *Handler) CreateBlock(writer http.ResponseWriter, request *http.Request) {
	ctx, scope := handler.otel.NewScope(request.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".CreateBlock")
	defer scope.End()

	req := dto.CreateBlockRequest{}
	if err := validator.Validate(request.Body, &req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to validate request body")

		response.WithError(writer, err)

		return
	}

	blocks, err := handler.service.Create(ctx, req)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to create block")

		response.WithError(writer, err)

		return
	}

	scope.SetAttribute("block.count", len(blocks))

	response.WithJSON(writer, http.StatusCreated, blocks)
}

// GetBlocks lists blocked slots with their series label.
// @Summary Get blocked slots
// @Tags Block
// @Produce json
// @Param pagination query gDto.QueryParams false "Pagination parameters"
// @Param room_id query string false "Filter by room ID"
// @Param from query string false "First date (YYYY-MM-DD)"
// @Param to query string false "Last date (YYYY-MM-DD)"
// @Success 200 {object} response.Data[dto.GetBlocksResponse] "List of blocks"
// @Failure 500 {object} response.Error
// @Router /v1/admin/blocks [get]
// @Security BearerAuth
func (handler *Handler) GetBlocks(writer http.ResponseWriter, request *http.Request) {
	ctx, scope := handler.otel.NewScope(request.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".GetBlocks")
	defer scope.End()

	queryParams := gDto.QueryParams{}
	queryParams.FromRequest(request, true)

	query := request.URL.Query()
	req := dto.ListBlocksRequest{
		RoomID: query.Get(model.FieldRoomID),
		From:   query.Get(constant.RequestParamFrom),
		To:     query.Get(constant.RequestParamTo),
	}

	blocks, err := handler.service.GetAll(ctx, queryParams, req)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to get blocks")

		response.WithError(writer, err)

		return
	}

	response.WithJSON(writer, http.StatusOK, blocks)
}

// GetBlockByID retrieves one blocked slot.
// @Summary Get a blocked slot by ID
// @Tags Block
// @Produce json
// @Param id path string true "Block ID"
// @Success 200 {object} response.Data[dto.BlockResponse] "Block details"
// @Failure 404 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/admin/blocks/{id} [get]
// @Security BearerAuth
func (handler *Handler) GetBlockByID(writer http.ResponseWriter, request *http.Request) {
	ctx, scope := handler.otel.NewScope(request.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".GetBlockByID")
	defer scope.End()

	block, err := handler.service.Get(ctx, chi.URLParam(request, constant.RequestParamID))
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to get block by ID")

		response.WithError(writer, err)

		return
	}

	response.WithJSON(writer, http.StatusOK, block)
}

// UpdateBlock patches a single record; other records of its series are unchanged.
// @Summary Update a blocked slot
// @Tags Block
// @Accept json
// @Produce json
// @Param id path string true "Block ID"
// @Param request body dto.UpdateBlockRequest true "Update Block Request"
// @Success 200 {object} response.Message "Block updated successfully"
// @Failure 400 {object} response.Error
// @Failure 404 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/admin/blocks/{id} [patch]
// @Security BearerAuth
func (handler *Handler) UpdateBlock(writer http.ResponseWriter, request *http.Request) {
	ctx, scope := handler.otel.NewScope(request.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".UpdateBlock")
	defer scope.End()

	req := dto.UpdateBlockRequest{}
	if err := validator.Validate(request.Body, &req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to validate request body")

		response.WithError(writer, err)

		return
	}

	if err := handler.service.Update(ctx, req, chi.URLParam(request, constant.RequestParamID)); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to update block")

		response.WithError(writer, err)

		return
	}

	response.WithMessage(writer, http.StatusOK, "Block updated successfully")
}

// DeleteBlock removes a block. Deleting a series head removes its whole series.
// @Summary Delete a blocked slot
// @Tags Block
// @Produce json
// @Param id path string true "Block ID"
// @Success 200 {object} response.Message "Number of deleted blocks"
// @Failure 404 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/admin/blocks/{id} [delete]
// @Security BearerAuth
func (handler *Handler) DeleteBlock(writer http.ResponseWriter, request *http.Request) {
	ctx, scope := handler.otel.NewScope(request.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".DeleteBlock")
	defer scope.End()

	deleted, err := handler.service.Delete(ctx, chi.URLParam(request, constant.RequestParamID))
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to delete block")

		response.WithError(writer, err)

		return
	}

	response.WithMessage(writer, http.StatusOK, fmt.Sprintf("%d block(s) deleted", deleted))
}
