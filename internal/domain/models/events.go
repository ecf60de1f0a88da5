package models

import "time"

const (
	EventETLCompleted   = "etl.completed"
	EventModelTrained   = "model.trained"
	EventPipelineFailed = "pipeline.failed"
)

// PipelineEvent announces the outcome of a pipeline stage.
type PipelineEvent struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Stage      string            `json:"stage"`
	OccurredAt time.Time         `json:"occurred_at"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// RunSummary is returned by an ETL run.
type RunSummary struct {
	RunID       string    `json:"run_id"`
	StartDate   string    `json:"start_date"`
	EndDate     string    `json:"end_date,omitempty"`
	Fetched     int       `json:"fetched"`
	TrainRows   int       `json:"train_rows"`
	PredictRows int       `json:"predict_rows"`
	TrainKey    string    `json:"train_key"`
	PredictKey  string    `json:"predict_key"`
	DurationMS  int64     `json:"duration_ms"`
	CompletedAt time.Time `json:"completed_at"`
}

// TrainSummary is returned by a training run.
type TrainSummary struct {
	RunID       string             `json:"run_id"`
	Algorithm   string             `json:"algorithm"`
	Params      map[string]float64 `json:"params"`
	TrainRows   int                `json:"train_rows"`
	TestRows    int                `json:"test_rows"`
	Metrics     map[string]float64 `json:"metrics"`
	Searched    bool               `json:"searched"`
	ModelKey    string             `json:"model_key"`
	DurationMS  int64              `json:"duration_ms"`
	CompletedAt time.Time          `json:"completed_at"`
}
