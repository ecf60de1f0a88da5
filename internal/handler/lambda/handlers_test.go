package lambda

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"HoopsCast/internal/domain/models"
	"HoopsCast/internal/usecase"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubETL struct{ calls int }

func (s *stubETL) Run(context.Context, usecase.ETLParams) (*models.RunSummary, error) {
	s.calls++
	return &models.RunSummary{RunID: "r1", TrainRows: 10}, nil
}

type stubTrainer struct{ err error }

func (s *stubTrainer) Run(context.Context, usecase.TrainParams) (*models.TrainSummary, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.TrainSummary{Algorithm: "gbm"}, nil
}

type stubPredictor struct {
	report *models.PredictionReport
	err    error
}

func (s *stubPredictor) Predict(context.Context, usecase.PredictParams) (*models.PredictionReport, error) {
	return s.report, s.err
}

func TestETLIgnoresEvent(t *testing.T) {
	etl := &stubETL{}
	h := NewHandlers(etl, nil, nil, nil)
	summary, err := h.ETL(context.Background(), json.RawMessage(`{"anything":1}`))
	require.NoError(t, err)
	assert.Equal(t, "r1", summary.RunID)
	assert.Equal(t, 1, etl.calls)
}

func TestTrainPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	h := NewHandlers(nil, &stubTrainer{err: boom}, nil, nil)
	_, err := h.Train(context.Background(), nil)
	require.ErrorIs(t, err, boom)
}

func TestPredictResponseShape(t *testing.T) {
	rmse := 12.25
	h := NewHandlers(nil, nil, &stubPredictor{report: &models.PredictionReport{
		Predictions: []models.Prediction{{GameID: 3, Match: "AAA vs BBB", HomeTeam: "AAA", AwayTeam: "BBB", HomeScore: 101, AwayScore: 99, Total: 200}},
		RMSE:        &rmse,
		Model:       "gbm@x",
	}}, nil)

	resp, err := h.Predict(context.Background(), events.APIGatewayProxyRequest{})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.False(t, resp.IsBase64Encoded)
	assert.Equal(t, "application/json", resp.Headers["Content-Type"])

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	assert.Len(t, body, 2)
	assert.JSONEq(t, `12.25`, string(body["rmse"]))

	var preds []map[string]interface{}
	require.NoError(t, json.Unmarshal(body["predictions"], &preds))
	require.Len(t, preds, 1)
	assert.Equal(t, 200.0, preds[0]["sum_result"])
	assert.Equal(t, "AAA vs BBB", preds[0]["match"])
}

func TestPredictEmptyList(t *testing.T) {
	h := NewHandlers(nil, nil, &stubPredictor{report: &models.PredictionReport{}}, nil)
	resp, err := h.Predict(context.Background(), events.APIGatewayProxyRequest{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"predictions":[],"rmse":null}`, resp.Body)
}

func TestPredictError(t *testing.T) {
	h := NewHandlers(nil, nil, &stubPredictor{err: models.ErrModelNotFound}, nil)
	_, err := h.Predict(context.Background(), events.APIGatewayProxyRequest{})
	require.ErrorIs(t, err, models.ErrModelNotFound)
}
