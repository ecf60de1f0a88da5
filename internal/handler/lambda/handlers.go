package lambda

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"HoopsCast/internal/domain/models"
	"HoopsCast/internal/usecase"
	applogger "HoopsCast/pkg/logger"

	"github.com/aws/aws-lambda-go/events"
)

type ETLRunner interface {
	Run(ctx context.Context, p usecase.ETLParams) (*models.RunSummary, error)
}

type TrainRunner interface {
	Run(ctx context.Context, p usecase.TrainParams) (*models.TrainSummary, error)
}

type Predictor interface {
	Predict(ctx context.Context, p usecase.PredictParams) (*models.PredictionReport, error)
}

// Handlers adapts the pipeline stages to Lambda invocations. Events are
// opaque: every invocation runs the stage with its configured settings.
type Handlers struct {
	etl       ETLRunner
	trainer   TrainRunner
	predictor Predictor
	l         *applogger.Logger
}

func NewHandlers(etl ETLRunner, trainer TrainRunner, predictor Predictor, l *applogger.Logger) *Handlers {
	if l == nil {
		l = applogger.Nop()
	}
	return &Handlers{etl: etl, trainer: trainer, predictor: predictor, l: l}
}

func (h *Handlers) ETL(ctx context.Context, _ json.RawMessage) (*models.RunSummary, error) {
	if h.etl == nil {
		return nil, fmt.Errorf("etl handler is not configured")
	}
	return h.etl.Run(ctx, usecase.ETLParams{})
}

func (h *Handlers) Train(ctx context.Context, _ json.RawMessage) (*models.TrainSummary, error) {
	if h.trainer == nil {
		return nil, fmt.Errorf("train handler is not configured")
	}
	return h.trainer.Run(ctx, usecase.TrainParams{})
}

// predictBody is the API Gateway response payload.
type predictBody struct {
	Predictions []models.Prediction `json:"predictions"`
	RMSE        *float64            `json:"rmse"`
}

func (h *Handlers) Predict(ctx context.Context, _ events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if h.predictor == nil {
		return events.APIGatewayProxyResponse{}, fmt.Errorf("predict handler is not configured")
	}
	report, err := h.predictor.Predict(ctx, usecase.PredictParams{Refresh: true})
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}

	preds := report.Predictions
	if preds == nil {
		preds = []models.Prediction{}
	}
	body, err := json.Marshal(predictBody{Predictions: preds, RMSE: report.RMSE})
	if err != nil {
		return events.APIGatewayProxyResponse{}, fmt.Errorf("encode predictions: %w", err)
	}
	h.l.Info("predict response", applogger.Int("predictions", len(report.Predictions)), applogger.Int("bytes", len(body)))

	return events.APIGatewayProxyResponse{
		StatusCode:      http.StatusOK,
		Headers:         map[string]string{"Content-Type": "application/json"},
		Body:            string(body),
		IsBase64Encoded: false,
	}, nil
}
