package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"HoopsCast/internal/domain/models"
	drepo "HoopsCast/internal/domain/repository"
	"HoopsCast/internal/services/ml"
	"HoopsCast/pkg/cache"
	"HoopsCast/pkg/config"
	"HoopsCast/pkg/logger"
)

// Broadcaster pushes a fresh report to live subscribers.
type Broadcaster interface {
	Broadcast(report *models.PredictionReport)
}

// PredictParams controls one predictor call. A nil Validate uses
// predictor.validate.
type PredictParams struct {
	Validate *bool
	Refresh  bool
}

// Predictor scores the prediction table with the persisted model.
type Predictor struct {
	datasets    drepo.DatasetStore
	models      drepo.ModelStore
	publisher   drepo.Publisher
	metrics     drepo.Metrics
	cache       cache.Service
	broadcaster Broadcaster

	cfg         config.PredictorConfig
	storageCfg  config.StorageConfig
	cachePrefix string

	l   *logger.Logger
	now func() time.Time
}

func NewPredictor(cfg *config.Config, datasets drepo.DatasetStore, modelStore drepo.ModelStore, metrics drepo.Metrics) *Predictor {
	return &Predictor{
		datasets:    datasets,
		models:      modelStore,
		metrics:     orNopMetrics(metrics),
		cfg:         cfg.Predictor,
		storageCfg:  cfg.Storage,
		cachePrefix: "predictions",
		l:           logger.Nop(),
		now:         time.Now,
	}
}

func (p *Predictor) SetLogger(l *logger.Logger)       { p.l = orNopLogger(l) }
func (p *Predictor) SetPublisher(pub drepo.Publisher) { p.publisher = pub }
func (p *Predictor) SetBroadcaster(b Broadcaster)     { p.broadcaster = b }
func (p *Predictor) SetCache(c cache.Service)         { p.cache = c }
func (p *Predictor) SetClock(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

func (p *Predictor) cacheKey(validate bool) string {
	return cache.Key(p.cachePrefix, p.storageCfg.ModelKey, p.storageCfg.PredictKey, validate)
}

// Invalidate drops cached reports after the tables or the model changed.
func (p *Predictor) Invalidate(ctx context.Context) error {
	if p.cache == nil {
		return nil
	}
	return p.cache.Delete(ctx, p.cacheKey(true), p.cacheKey(false))
}

// Predict returns a report for the current prediction table, from cache
// unless params.Refresh is set.
func (p *Predictor) Predict(ctx context.Context, params PredictParams) (*models.PredictionReport, error) {
	validate := p.cfg.Validate
	if params.Validate != nil {
		validate = *params.Validate
	}
	key := p.cacheKey(validate)

	if p.cache != nil && !params.Refresh {
		var cached models.PredictionReport
		err := p.cache.Get(ctx, key, &cached)
		if err == nil {
			p.metrics.RecordRows("predict_cached", len(cached.Predictions))
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			p.l.Warn("read prediction cache", logger.Error(err))
		}
	}

	start := time.Now()
	runID := newRunID()
	log := p.l.With(logger.String("run_id", runID), logger.String("stage", StagePredict))

	report, err := p.predict(ctx, validate)
	if err != nil {
		p.metrics.RecordError(StagePredict)
		log.Error("prediction failed", logger.Error(err))
		return nil, err
	}
	elapsed := time.Since(start)
	p.metrics.RecordLatency(StagePredict, elapsed.Seconds())
	p.metrics.RecordRows(StagePredict, len(report.Predictions))
	if report.RMSE != nil {
		p.metrics.RecordModelScore("validation_rmse", *report.RMSE)
	}
	log.Info("prediction finished",
		logger.Int("predictions", len(report.Predictions)),
		logger.Bool("validated", report.RMSE != nil),
		logger.Duration("elapsed", elapsed))

	if p.cache != nil && p.cfg.CacheTTL > 0 {
		if err := p.cache.Set(ctx, key, report, p.cfg.CacheTTL); err != nil {
			log.Warn("write prediction cache", logger.Error(err))
		}
	}
	p.fanOut(ctx, runID, report, log)
	return report, nil
}

func (p *Predictor) predict(ctx context.Context, validate bool) (*models.PredictionReport, error) {
	artifact, err := p.LoadArtifact(ctx)
	if err != nil {
		return nil, err
	}

	table, err := p.datasets.Load(ctx, p.storageCfg.PredictKey)
	if err != nil {
		return nil, fmt.Errorf("load prediction table: %w", err)
	}
	if err := artifact.CheckSchema(table); err != nil {
		return nil, err
	}

	predictions, err := Score(artifact, table)
	if err != nil {
		return nil, err
	}

	report := &models.PredictionReport{
		Predictions:    predictions,
		Model:          artifact.Describe(),
		ModelTrainedAt: artifact.TrainedAt,
		GeneratedAt:    p.now().UTC(),
	}
	if validate {
		rmse, err := p.Validate(ctx, artifact)
		if err != nil {
			return nil, err
		}
		report.RMSE = &rmse
	}
	return report, nil
}

// LoadArtifact reads and decodes the persisted model.
func (p *Predictor) LoadArtifact(ctx context.Context) (*ml.Artifact, error) {
	blob, err := p.models.LoadModel(ctx, p.storageCfg.ModelKey)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	artifact, err := ml.DecodeArtifact(blob)
	if err != nil {
		return nil, err
	}
	if artifact.Model == nil || !artifact.Model.Fitted() {
		return nil, fmt.Errorf("decode model: %w", ml.ErrNotFitted)
	}
	return artifact, nil
}

// Validate refits a clone of the model on the head of the training table
// and returns the RMSE of summed targets on the tail.
func (p *Predictor) Validate(ctx context.Context, artifact *ml.Artifact) (float64, error) {
	table, err := p.datasets.Load(ctx, p.storageCfg.TrainKey)
	if err != nil {
		return 0, fmt.Errorf("load training table: %w", err)
	}
	if err := artifact.CheckSchema(table); err != nil {
		return 0, err
	}
	if err := artifact.CheckTargets(table); err != nil {
		return 0, err
	}

	table.SortByDate()
	head, tail := table.Split(p.cfg.ValidationRatio)
	if head.Len() == 0 || tail.Len() == 0 {
		return 0, fmt.Errorf("validation split of %d rows: %w", table.Len(), models.ErrEmptyTable)
	}

	Xh, Yh, err := schemaMatrices(head, artifact)
	if err != nil {
		return 0, err
	}
	Xt, Yt, err := schemaMatrices(tail, artifact)
	if err != nil {
		return 0, err
	}

	clone := artifact.Model.Clone()
	if err := clone.Fit(Xh, Yh); err != nil {
		return 0, fmt.Errorf("refit clone: %w", err)
	}
	pred, err := clone.Predict(Xt)
	if err != nil {
		return 0, fmt.Errorf("predict holdout: %w", err)
	}
	return ml.RMSE(ml.RowSums(Yt), ml.RowSums(pred)), nil
}

// schemaMatrices reads features and targets in the artifact's column order.
func schemaMatrices(tbl *models.Table, artifact *ml.Artifact) ([][]float64, [][]float64, error) {
	X, err := tbl.Matrix(artifact.Features)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", models.ErrFeatureSchemaMismatch, err)
	}
	Y, err := tbl.Matrix(artifact.Targets)
	if err != nil {
		return nil, nil, fmt.Errorf("target matrix: %w", err)
	}
	return X, Y, nil
}

// Score predicts every row of table. Targets named home_team_score and
// away_team_score fill the per-team points; Total is the sum of all targets.
func Score(artifact *ml.Artifact, table *models.Table) ([]models.Prediction, error) {
	out := make([]models.Prediction, 0, table.Len())
	if table.Len() == 0 {
		return out, nil
	}
	X, err := table.Matrix(artifact.Features)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrFeatureSchemaMismatch, err)
	}
	Y, err := artifact.Model.Predict(X)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}

	home, away := -1, -1
	for i, name := range artifact.Targets {
		switch name {
		case models.ColumnHomeScore:
			home = i
		case models.ColumnAwayScore:
			away = i
		}
	}

	for i, row := range table.Rows {
		pr := models.Prediction{
			GameID:   row.ID,
			Date:     row.Date,
			Match:    row.Label(),
			HomeTeam: row.HomeTeam,
			AwayTeam: row.AwayTeam,
		}
		if home >= 0 {
			pr.HomeScore = Y[i][home]
		}
		if away >= 0 {
			pr.AwayScore = Y[i][away]
		}
		for _, v := range Y[i] {
			pr.Total += v
		}
		out = append(out, pr)
	}
	return out, nil
}

// fanOut delivers a fresh report to Kafka and websocket subscribers.
// Failures there never fail the call.
func (p *Predictor) fanOut(ctx context.Context, runID string, report *models.PredictionReport, log *logger.Logger) {
	if p.broadcaster != nil {
		p.broadcaster.Broadcast(report)
	}
	if p.publisher == nil || len(report.Predictions) == 0 {
		return
	}
	events := make([]models.PredictionEvent, len(report.Predictions))
	for i, pr := range report.Predictions {
		events[i] = models.PredictionEvent{
			RunID:       runID,
			Prediction:  pr,
			Model:       report.Model,
			GeneratedAt: report.GeneratedAt,
		}
	}
	if err := p.publisher.PublishPredictions(ctx, events); err != nil {
		p.metrics.RecordError("publish_predictions")
		log.Warn("publish predictions", logger.Int("count", len(events)), logger.Error(err))
	}
}
