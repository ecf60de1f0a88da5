package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	models "HoopsCast/internal/domain/models"
	domrepo "HoopsCast/internal/domain/repository"
	"HoopsCast/internal/service/metrics"
	"HoopsCast/internal/service/ratelimit"
	"HoopsCast/internal/usecase"
	xhttp "HoopsCast/pkg/http"
	xlogger "HoopsCast/pkg/logger"
	"HoopsCast/pkg/queue"
	"HoopsCast/pkg/util"

	"github.com/labstack/echo/v4"
)

// Predictor is the prediction use case as seen by HTTP handlers.
type Predictor interface {
	Predict(ctx context.Context, p usecase.PredictParams) (*models.PredictionReport, error)
}

// PipelineEchoHandler serves predictions and accepts pipeline jobs.
type PipelineEchoHandler struct {
	logger    *xlogger.Logger
	predictor Predictor
	enqueuer  queue.Enqueuer
	archive   domrepo.PredictionArchive
	features  domrepo.FeatureStore
	rl        *ratelimit.Limiter
}

func NewPipelineEchoHandler(logger *xlogger.Logger, predictor Predictor) *PipelineEchoHandler {
	metrics.Register()
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &PipelineEchoHandler{logger: logger, predictor: predictor, rl: ratelimit.New()}
}

// SetEnqueuer enables the pipeline endpoints.
func (h *PipelineEchoHandler) SetEnqueuer(q queue.Enqueuer) { h.enqueuer = q }

func (h *PipelineEchoHandler) SetArchive(a domrepo.PredictionArchive) { h.archive = a }

func (h *PipelineEchoHandler) SetFeatureStore(f domrepo.FeatureStore) { h.features = f }

func (h *PipelineEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/health", h.Health)
	g.GET("/predictions", h.Predictions)
	g.GET("/predictions/history", h.History)
	g.GET("/matchups", h.Matchups)
	g.POST("/pipeline/etl", h.ETL)
	g.POST("/pipeline/train", h.Train)
}

func (h *PipelineEchoHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"status":   "ok",
		"pipeline": h.enqueuer != nil,
		"archive":  h.archive != nil,
		"time":     time.Now().UTC(),
	})
}

func (h *PipelineEchoHandler) Predictions(c echo.Context) error {
	start := time.Now()
	endpoint := "predictions"
	defer func() { metrics.EndpointLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.PredictionsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	// refresh bypasses the cache and is rationed per client
	if req.Refresh && !h.rl.Allow(c.RealIP()+":refresh", 2, ratelimit.PerMinute(6)) {
		metrics.RateLimited.WithLabelValues(endpoint).Inc()
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limited")
	}

	res, err := h.predictor.Predict(c.Request().Context(), usecase.PredictParams{
		Validate: req.ValidateFlag(),
		Refresh:  req.Refresh,
	})
	if err != nil {
		metrics.EndpointErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("predict usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, res)
}

func (h *PipelineEchoHandler) History(c echo.Context) error {
	if h.archive == nil {
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("prediction archive is disabled"))
	}
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	now := time.Now().UTC()
	from := util.ParseTimeDefault(req.From, now.AddDate(0, 0, -30))
	to := util.ParseTimeDefault(req.To, now).Add(24*time.Hour - time.Nanosecond)

	res, err := h.archive.QueryPredictions(c.Request().Context(), from, to, req.Limit)
	if err != nil {
		metrics.EndpointErrors.WithLabelValues("history").Inc()
		h.logger.Error("query prediction archive", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *PipelineEchoHandler) Matchups(c echo.Context) error {
	if h.features == nil {
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("feature store is disabled"))
	}
	req := &models.MatchupsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows, err := h.features.LatestMatchups(c.Request().Context(), req.Limit)
	if err != nil {
		metrics.EndpointErrors.WithLabelValues("matchups").Inc()
		h.logger.Error("query feature store", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, rows)
}

func (h *PipelineEchoHandler) ETL(c echo.Context) error {
	req := &models.ETLRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.enqueue(c, usecase.JobETL, req)
}

func (h *PipelineEchoHandler) Train(c echo.Context) error {
	req := &models.TrainRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.enqueue(c, usecase.JobTrain, req)
}

func (h *PipelineEchoHandler) enqueue(c echo.Context, jobType string, payload interface{}) error {
	if h.enqueuer == nil {
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("job queue is disabled"))
	}
	id, err := h.enqueuer.Enqueue(c.Request().Context(), jobType, payload)
	if err != nil {
		h.logger.Error("enqueue job", xlogger.String("type", jobType), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("could not enqueue job").WithError(err))
	}
	h.logger.Info("job enqueued", xlogger.String("type", jobType), xlogger.String("id", id))
	return xhttp.AcceptedResponse(c, models.JobAccepted{JobID: id, Type: jobType})
}

// toAppError maps domain errors to HTTP statuses.
func toAppError(err error) error {
	switch {
	case errors.Is(err, models.ErrModelNotFound), errors.Is(err, models.ErrDatasetNotFound):
		return xhttp.NotFoundError("model or dataset not found, run the pipeline first").WithError(err)
	case errors.Is(err, models.ErrFeatureSchemaMismatch), errors.Is(err, models.ErrMissingColumn), errors.Is(err, models.ErrEmptyTable):
		return xhttp.UnprocessableError(err.Error()).WithError(err)
	case errors.Is(err, models.ErrPipelineBusy):
		return xhttp.ConflictError("pipeline already running").WithError(err)
	}
	return xhttp.InternalError("prediction failed").WithError(err)
}
