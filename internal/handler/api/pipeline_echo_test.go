package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"HoopsCast/internal/domain/models"
	"HoopsCast/internal/usecase"
	xhttp "HoopsCast/pkg/http"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePredictor struct {
	report *models.PredictionReport
	err    error
	last   usecase.PredictParams
}

func (f *fakePredictor) Predict(_ context.Context, p usecase.PredictParams) (*models.PredictionReport, error) {
	f.last = p
	return f.report, f.err
}

type fakeEnqueuer struct {
	types    []string
	payloads []interface{}
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, msgType string, payload interface{}) (string, error) {
	f.types = append(f.types, msgType)
	f.payloads = append(f.payloads, payload)
	return fmt.Sprintf("job-%d", len(f.types)), nil
}

func newRouter(h *PipelineEchoHandler) *echo.Echo {
	e := echo.New()
	h.RegisterRoutes(e)
	return e
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestPredictionsOK(t *testing.T) {
	rmse := 11.5
	fp := &fakePredictor{report: &models.PredictionReport{
		Predictions: []models.Prediction{{GameID: 1, Match: "AAA vs BBB", HomeScore: 110, AwayScore: 100, Total: 210}},
		RMSE:        &rmse,
	}}
	e := newRouter(NewPipelineEchoHandler(nil, fp))

	rec := do(e, http.MethodGet, "/api/predictions?validate=false", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, fp.last.Validate)
	assert.False(t, *fp.last.Validate)
	assert.False(t, fp.last.Refresh)

	var resp struct {
		Data models.PredictionReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Predictions, 1)
	assert.Equal(t, 210.0, resp.Data.Predictions[0].Total)
	assert.Equal(t, 11.5, *resp.Data.RMSE)
}

func TestPredictionsDefaultsValidationToConfig(t *testing.T) {
	fp := &fakePredictor{report: &models.PredictionReport{}}
	e := newRouter(NewPipelineEchoHandler(nil, fp))

	rec := do(e, http.MethodGet, "/api/predictions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, fp.last.Validate)
}

func TestPredictionsErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("load model: %w", models.ErrModelNotFound), http.StatusNotFound},
		{models.ErrFeatureSchemaMismatch, http.StatusUnprocessableEntity},
		{models.ErrPipelineBusy, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		e := newRouter(NewPipelineEchoHandler(nil, &fakePredictor{err: tc.err}))
		rec := do(e, http.MethodGet, "/api/predictions", "")
		assert.Equal(t, tc.code, rec.Code, "error %v", tc.err)
	}
}

func TestPredictionsRejectsBadValidateFlag(t *testing.T) {
	e := newRouter(NewPipelineEchoHandler(nil, &fakePredictor{report: &models.PredictionReport{}}))
	rec := do(e, http.MethodGet, "/api/predictions?validate=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshIsRateLimited(t *testing.T) {
	e := newRouter(NewPipelineEchoHandler(nil, &fakePredictor{report: &models.PredictionReport{}}))
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, do(e, http.MethodGet, "/api/predictions?refresh=true", "").Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestPipelineEnqueue(t *testing.T) {
	q := &fakeEnqueuer{}
	h := NewPipelineEchoHandler(nil, &fakePredictor{})
	h.SetEnqueuer(q)
	e := newRouter(h)

	rec := do(e, http.MethodPost, "/api/pipeline/etl", `{"start_date":"2024-01-01"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp struct {
		Data models.JobAccepted `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "job-1", resp.Data.JobID)
	assert.Equal(t, usecase.JobETL, resp.Data.Type)
	assert.Equal(t, "2024-01-01", q.payloads[0].(*models.ETLRequest).StartDate)

	rec = do(e, http.MethodPost, "/api/pipeline/train", `{"search":true}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{usecase.JobETL, usecase.JobTrain}, q.types)

	rec = do(e, http.MethodPost, "/api/pipeline/etl", `{"start_date":"01/01/2024"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPipelineDisabledWithoutQueue(t *testing.T) {
	e := newRouter(NewPipelineEchoHandler(nil, &fakePredictor{}))
	rec := do(e, http.MethodPost, "/api/pipeline/train", `{}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(e, http.MethodGet, "/api/predictions/history", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealth(t *testing.T) {
	e := newRouter(NewPipelineEchoHandler(nil, &fakePredictor{}))
	rec := do(e, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp xhttp.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Data.(map[string]interface{})["status"])
}
