package reconciliation

import (
	"net/http"

	"roomkey/infras/otel"
	"roomkey/internal/domains/reconciliation/model/dto"
	"roomkey/internal/domains/reconciliation/scheduler"
	"roomkey/shared/constant"
	"roomkey/transport/http/response"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

const paramJob = "job"

type Handler struct {
	scheduler *scheduler.Scheduler
	otel      otel.Otel
}

func New(scheduler *scheduler.Scheduler, otel otel.Otel) Handler {
	return Handler{
		scheduler: scheduler,
		otel:      otel,
	}
}

func (handler *Handler) Router(router chi.Router) {
	router.Post("/admin/reconciliation/{job}", handler.RunJob)
}

// RunJob runs one reconciliation job now.
// @Summary Run a reconciliation job
// @Description job is one of expire-credentials, purge-old-records, resync-future or lock-health.
// @Tags Reconciliation
// @Produce json
// @Param job path string true "Job name"
// @Success 200 {object} response.Data[dto.JobResult] "Job result"
// @Failure 404 {object} response.Error
// @Failure 409 {object} response.Error "Job already running"
// @Failure 500 {object} response.Error
// @Router /v1/admin/reconciliation/{job} [post]
// @Security BearerAuth
func (handler *Handler) RunJob(writer http.ResponseWriter, request *http.Request) {
	ctx, scope := handler.otel.NewScope(request.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".RunJob")
	defer scope.End()

	job := chi.URLParam(request, paramJob)

	var res dto.JobResult

	res, err := handler.scheduler.Run(ctx, job)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Str("job", job).Msg("failed to run reconciliation job")

		response.WithError(writer, err)

		return
	}

	response.WithJSON(writer, http.StatusOK, res)
}
