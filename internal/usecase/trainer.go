package usecase

import (
	"context"
	"fmt"
	"time"

	"HoopsCast/internal/domain/models"
	drepo "HoopsCast/internal/domain/repository"
	"HoopsCast/internal/services/ml"
	"HoopsCast/pkg/config"
	"HoopsCast/pkg/logger"
)

// TrainParams overrides trainer settings for one run. A nil Search uses
// trainer.search.enabled.
type TrainParams struct {
	Search *bool
}

// Trainer fits the regressor on the stored training table and persists the
// artifact.
type Trainer struct {
	datasets  drepo.DatasetStore
	models    drepo.ModelStore
	publisher drepo.Publisher
	metrics   drepo.Metrics

	cfg        config.TrainerConfig
	features   []string
	targets    []string
	storageCfg config.StorageConfig

	l   *logger.Logger
	now func() time.Time
}

func NewTrainer(cfg *config.Config, datasets drepo.DatasetStore, modelStore drepo.ModelStore, metrics drepo.Metrics) *Trainer {
	return &Trainer{
		datasets:   datasets,
		models:     modelStore,
		metrics:    orNopMetrics(metrics),
		cfg:        cfg.Trainer,
		features:   append([]string(nil), cfg.Features.Columns...),
		targets:    append([]string(nil), cfg.Features.Targets...),
		storageCfg: cfg.Storage,
		l:          logger.Nop(),
		now:        time.Now,
	}
}

func (t *Trainer) SetLogger(l *logger.Logger) { t.l = orNopLogger(l) }

func (t *Trainer) SetPublisher(p drepo.Publisher) { t.publisher = p }

func (t *Trainer) SetClock(now func() time.Time) {
	if now != nil {
		t.now = now
	}
}

// ParamsFromConfig returns the configured hyperparameters of the selected
// algorithm.
func ParamsFromConfig(cfg config.TrainerConfig) ml.Params {
	if cfg.Algorithm == ml.AlgorithmForest {
		return ml.Params{
			ml.ParamNEstimators:    float64(cfg.Forest.NEstimators),
			ml.ParamMaxDepth:       float64(cfg.Forest.MaxDepth),
			ml.ParamMaxFeatures:    cfg.Forest.MaxFeatures,
			ml.ParamMinSamplesLeaf: float64(cfg.Forest.MinSamplesLeaf),
		}
	}
	return ml.Params{
		ml.ParamNEstimators:     float64(cfg.GBM.NEstimators),
		ml.ParamLearningRate:    cfg.GBM.LearningRate,
		ml.ParamMaxDepth:        float64(cfg.GBM.MaxDepth),
		ml.ParamSubsample:       cfg.GBM.Subsample,
		ml.ParamColsampleByTree: cfg.GBM.ColsampleByTree,
		ml.ParamMinSamplesLeaf:  float64(cfg.GBM.MinSamplesLeaf),
	}
}

func (t *Trainer) Run(ctx context.Context, p TrainParams) (*models.TrainSummary, error) {
	start := time.Now()
	runID := newRunID()
	search := t.cfg.Search.Enabled
	if p.Search != nil {
		search = *p.Search
	}

	log := t.l.With(logger.String("run_id", runID), logger.String("stage", StageTrain))
	log.Info("training started", logger.String("algorithm", t.cfg.Algorithm), logger.Bool("search", search))

	summary, err := t.run(ctx, runID, search, log)
	if err != nil {
		t.metrics.RecordError(StageTrain)
		announceFailure(ctx, t.publisher, t.metrics, log, StageTrain, runID, err, t.now().UTC())
		log.Error("training failed", logger.Error(err), logger.Duration("elapsed", time.Since(start)))
		return nil, err
	}

	elapsed := time.Since(start)
	summary.DurationMS = elapsed.Milliseconds()
	t.metrics.RecordLatency(StageTrain, elapsed.Seconds())
	for name, v := range summary.Metrics {
		t.metrics.RecordModelScore(name, v)
	}
	log.Info("training finished",
		logger.Int("train_rows", summary.TrainRows),
		logger.Int("test_rows", summary.TestRows),
		logger.Any("metrics", summary.Metrics),
		logger.Duration("elapsed", elapsed))

	announce(ctx, t.publisher, t.metrics, log, models.PipelineEvent{
		Type:       models.EventModelTrained,
		Stage:      StageTrain,
		OccurredAt: summary.CompletedAt,
		Attributes: map[string]string{
			"run_id":    runID,
			"algorithm": summary.Algorithm,
			"model_key": summary.ModelKey,
		},
	})
	return summary, nil
}

func (t *Trainer) run(ctx context.Context, runID string, search bool, log *logger.Logger) (*models.TrainSummary, error) {
	table, err := t.datasets.Load(ctx, t.storageCfg.TrainKey)
	if err != nil {
		return nil, fmt.Errorf("load training table: %w", err)
	}
	if missing := table.MissingColumns(append(append([]string(nil), t.features...), t.targets...)); len(missing) > 0 {
		return nil, fmt.Errorf("training table: %w: %v", models.ErrMissingColumn, missing)
	}

	table.SortByDate()
	train, test := table.Split(t.cfg.TrainRatio)
	if train.Len() == 0 || test.Len() == 0 {
		return nil, fmt.Errorf("split %d rows at %.2f: %w", table.Len(), t.cfg.TrainRatio, models.ErrEmptyTable)
	}

	Xtr, Ytr, err := t.matrices(train)
	if err != nil {
		return nil, err
	}
	Xte, Yte, err := t.matrices(test)
	if err != nil {
		return nil, err
	}

	params := ParamsFromConfig(t.cfg)
	if search {
		best, err := t.search(ctx, params, Xtr, Ytr, Xte, Yte, log)
		if err != nil {
			return nil, err
		}
		params = best
	}

	model, err := ml.New(t.cfg.Algorithm, params, t.cfg.Seed)
	if err != nil {
		return nil, err
	}
	if err := model.Fit(Xtr, Ytr); err != nil {
		return nil, fmt.Errorf("fit model: %w", err)
	}
	pred, err := model.Predict(Xte)
	if err != nil {
		return nil, fmt.Errorf("score model: %w", err)
	}
	scores := ml.Score(Yte, pred)

	trainedAt := t.now().UTC()
	artifact := ml.NewArtifact(model, t.features, t.targets, scores, train.Len(), trainedAt)
	blob, err := artifact.Encode()
	if err != nil {
		return nil, err
	}
	if err := t.models.SaveModel(ctx, t.storageCfg.ModelKey, blob); err != nil {
		return nil, fmt.Errorf("save model: %w", err)
	}

	return &models.TrainSummary{
		RunID:       runID,
		Algorithm:   model.Algorithm,
		Params:      model.Params,
		TrainRows:   train.Len(),
		TestRows:    test.Len(),
		Metrics:     artifact.Metrics,
		Searched:    search,
		ModelKey:    t.storageCfg.ModelKey,
		CompletedAt: trainedAt,
	}, nil
}

// search minimises held-out MSE over the algorithm's space.
func (t *Trainer) search(ctx context.Context, base ml.Params, Xtr, Ytr, Xte, Yte [][]float64, log *logger.Logger) (ml.Params, error) {
	space, err := ml.SpaceFor(t.cfg.Algorithm)
	if err != nil {
		return nil, err
	}

	objective := func(ctx context.Context, p ml.Params) (float64, error) {
		m, err := ml.New(t.cfg.Algorithm, p, t.cfg.Seed)
		if err != nil {
			return 0, err
		}
		if err := m.Fit(Xtr, Ytr); err != nil {
			return 0, err
		}
		pred, err := m.Predict(Xte)
		if err != nil {
			return 0, err
		}
		return ml.MSE(ml.Flatten(Yte), ml.Flatten(pred)), nil
	}

	res, err := ml.Minimize(ctx, objective, space, base, ml.SearchOptions{
		Calls:         t.cfg.Search.Calls,
		InitialPoints: t.cfg.Search.InitialPoints,
		Candidates:    t.cfg.Search.Candidates,
		Seed:          t.cfg.Search.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("hyperparameter search: %w", err)
	}
	log.Info("search finished",
		logger.Int("calls", len(res.Trials)),
		logger.Float64("best_mse", res.BestScore),
		logger.Any("best", res.Best))
	return res.Best, nil
}

func (t *Trainer) matrices(tbl *models.Table) ([][]float64, [][]float64, error) {
	X, err := tbl.Matrix(t.features)
	if err != nil {
		return nil, nil, fmt.Errorf("feature matrix: %w", err)
	}
	Y, err := tbl.Matrix(t.targets)
	if err != nil {
		return nil, nil, fmt.Errorf("target matrix: %w", err)
	}
	return X, Y, nil
}
