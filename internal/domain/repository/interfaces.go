package repository

import (
	"context"
	"time"

	"HoopsCast/internal/domain/models"
)

// GameSource fetches raw game records in a date range. A nil end means no
// upper bound.
type GameSource interface {
	FetchGames(ctx context.Context, start string, end *string) ([]models.Record, error)
}

// DatasetStore persists tables under object store keys.
type DatasetStore interface {
	Save(ctx context.Context, key string, t *models.Table) error
	Load(ctx context.Context, key string) (*models.Table, error)
}

// ModelStore persists the encoded model artifact.
type ModelStore interface {
	SaveModel(ctx context.Context, key string, artifact []byte) error
	LoadModel(ctx context.Context, key string) ([]byte, error)
}

// FeatureStore keeps every transformed matchup for ad-hoc analysis.
type FeatureStore interface {
	Init(ctx context.Context) error
	SaveMatchups(ctx context.Context, runID string, rows []models.Matchup) error
	LatestMatchups(ctx context.Context, limit int) ([]models.Matchup, error)
}

// PredictionArchive stores prediction events consumed from Kafka.
type PredictionArchive interface {
	Init(ctx context.Context) error
	StorePredictions(ctx context.Context, events []models.PredictionEvent) error
	QueryPredictions(ctx context.Context, from, to time.Time, limit int) ([]models.PredictionEvent, error)
}

type Publisher interface {
	PublishPredictions(ctx context.Context, events []models.PredictionEvent) error
	PublishEvent(ctx context.Context, event models.PipelineEvent) error
	Close() error
}

type Metrics interface {
	RecordRows(stage string, n int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordModelScore(metric string, value float64)
}
