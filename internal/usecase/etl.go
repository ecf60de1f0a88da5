package usecase

import (
	"context"
	"fmt"
	"time"

	"HoopsCast/internal/domain/models"
	drepo "HoopsCast/internal/domain/repository"
	dservice "HoopsCast/internal/domain/service"
	"HoopsCast/pkg/config"
	"HoopsCast/pkg/logger"
	"HoopsCast/pkg/util"
)

// ETLParams overrides the configured range for one run. Empty dates fall
// back to config, a zero Today to the clock.
type ETLParams struct {
	StartDate string
	EndDate   string
	Today     time.Time
}

// ETLParamsFromRequest validates nothing; binding already did.
func ETLParamsFromRequest(req models.ETLRequest) ETLParams {
	p := ETLParams{StartDate: req.StartDate, EndDate: req.EndDate}
	if t, ok := util.ParseTime(req.Today); ok {
		p.Today = t
	}
	return p
}

// ETL pulls games, builds the feature tables and writes them to storage.
type ETL struct {
	source      drepo.GameSource
	transformer dservice.Transformer
	datasets    drepo.DatasetStore
	features    drepo.FeatureStore
	publisher   drepo.Publisher
	metrics     drepo.Metrics

	sourceCfg  config.SourceConfig
	storageCfg config.StorageConfig

	l   *logger.Logger
	now func() time.Time
}

func NewETL(cfg *config.Config, source drepo.GameSource, transformer dservice.Transformer, datasets drepo.DatasetStore, metrics drepo.Metrics) *ETL {
	return &ETL{
		source:      source,
		transformer: transformer,
		datasets:    datasets,
		metrics:     orNopMetrics(metrics),
		sourceCfg:   cfg.Source,
		storageCfg:  cfg.Storage,
		l:           logger.Nop(),
		now:         time.Now,
	}
}

func (e *ETL) SetLogger(l *logger.Logger) { e.l = orNopLogger(l) }

// SetFeatureStore enables archiving every merged matchup after a run.
func (e *ETL) SetFeatureStore(fs drepo.FeatureStore) { e.features = fs }

func (e *ETL) SetPublisher(p drepo.Publisher) { e.publisher = p }

// SetClock replaces the wall clock used when no run date is given.
func (e *ETL) SetClock(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// Run executes extract, transform and load. Any stage error aborts the run.
func (e *ETL) Run(ctx context.Context, p ETLParams) (*models.RunSummary, error) {
	start := time.Now()
	runID := newRunID()
	today := p.Today
	if today.IsZero() {
		today = e.now()
	}
	today = util.MidnightUTC(today)

	from, to := e.window(p, today)
	log := e.l.With(logger.String("run_id", runID), logger.String("stage", StageETL))
	log.Info("etl started", logger.String("start_date", from), logger.String("today", util.FormatDate(today)))

	summary, err := e.run(ctx, runID, from, to, today, log)
	if err != nil {
		e.metrics.RecordError(StageETL)
		announceFailure(ctx, e.publisher, e.metrics, log, StageETL, runID, err, e.now().UTC())
		log.Error("etl failed", logger.Error(err), logger.Duration("elapsed", time.Since(start)))
		return nil, err
	}

	elapsed := time.Since(start)
	summary.DurationMS = elapsed.Milliseconds()
	e.metrics.RecordLatency(StageETL, elapsed.Seconds())
	log.Info("etl finished",
		logger.Int("fetched", summary.Fetched),
		logger.Int("train_rows", summary.TrainRows),
		logger.Int("predict_rows", summary.PredictRows),
		logger.Duration("elapsed", elapsed))

	announce(ctx, e.publisher, e.metrics, log, models.PipelineEvent{
		Type:       models.EventETLCompleted,
		Stage:      StageETL,
		OccurredAt: summary.CompletedAt,
		Attributes: map[string]string{
			"run_id":       runID,
			"train_rows":   itoa(summary.TrainRows),
			"predict_rows": itoa(summary.PredictRows),
		},
	})
	return summary, nil
}

func (e *ETL) run(ctx context.Context, runID, from string, to *string, today time.Time, log *logger.Logger) (*models.RunSummary, error) {
	records, err := e.Extract(ctx, from, to)
	if err != nil {
		return nil, err
	}
	parts, err := e.Transform(records, today)
	if err != nil {
		return nil, err
	}
	if err := e.Load(ctx, parts); err != nil {
		return nil, err
	}
	e.archive(ctx, runID, parts, log)

	summary := &models.RunSummary{
		RunID:       runID,
		StartDate:   from,
		Fetched:     len(records),
		TrainRows:   parts.Train.Len(),
		PredictRows: parts.Predict.Len(),
		TrainKey:    e.storageCfg.TrainKey,
		PredictKey:  e.storageCfg.PredictKey,
		CompletedAt: e.now().UTC(),
	}
	if to != nil {
		summary.EndDate = *to
	}
	return summary, nil
}

// Extract fetches raw records. An empty result is an error.
func (e *ETL) Extract(ctx context.Context, from string, to *string) ([]models.Record, error) {
	started := time.Now()
	records, err := e.source.FetchGames(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("extract games: %w", err)
	}
	e.metrics.RecordLatency("extract", time.Since(started).Seconds())
	if len(records) == 0 {
		return nil, models.ErrNoGames
	}
	e.metrics.RecordRows("extract", len(records))
	return records, nil
}

func (e *ETL) Transform(records []models.Record, today time.Time) (*models.Partitions, error) {
	parts, err := e.transformer.Transform(records, today)
	if err != nil {
		return nil, fmt.Errorf("transform games: %w", err)
	}
	e.metrics.RecordRows("train", parts.Train.Len())
	e.metrics.RecordRows("predict", parts.Predict.Len())
	return parts, nil
}

// Load writes the training table, then the prediction table.
func (e *ETL) Load(ctx context.Context, parts *models.Partitions) error {
	if err := e.datasets.Save(ctx, e.storageCfg.TrainKey, parts.Train); err != nil {
		return fmt.Errorf("load training table: %w", err)
	}
	if err := e.datasets.Save(ctx, e.storageCfg.PredictKey, parts.Predict); err != nil {
		return fmt.Errorf("load prediction table: %w", err)
	}
	return nil
}

func (e *ETL) archive(ctx context.Context, runID string, parts *models.Partitions, log *logger.Logger) {
	if e.features == nil || parts.All.Len() == 0 {
		return
	}
	if err := e.features.SaveMatchups(ctx, runID, parts.All.Rows); err != nil {
		e.metrics.RecordError("feature_store")
		log.Warn("archive matchups", logger.Int("rows", parts.All.Len()), logger.Error(err))
	}
}

// window resolves the fetch range: explicit params, then config, then a
// lookback from today. A nil end leaves the range open.
func (e *ETL) window(p ETLParams, today time.Time) (string, *string) {
	from := p.StartDate
	if from == "" {
		from = e.sourceCfg.StartDate
	}
	if from == "" {
		from = util.FormatDate(today.AddDate(0, 0, -e.sourceCfg.LookbackDays))
	}

	end := p.EndDate
	if end == "" {
		end = e.sourceCfg.EndDate
	}
	if end == "" {
		return from, nil
	}
	return from, &end
}
