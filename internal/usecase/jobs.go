package usecase

import (
	"context"
	"fmt"
	"time"

	"HoopsCast/internal/domain/models"
	"HoopsCast/pkg/cache"
	"HoopsCast/pkg/logger"
	"HoopsCast/pkg/queue"
)

// Queue message types.
const (
	JobETL   = "pipeline.etl"
	JobTrain = "pipeline.train"
)

const pipelineLockKey = "pipeline:lock"

// PipelineLock keeps ETL and training runs mutually exclusive across
// workers and processes.
type PipelineLock struct {
	cache cache.Service
	ttl   time.Duration
}

func NewPipelineLock(c cache.Service, ttl time.Duration) *PipelineLock {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &PipelineLock{cache: c, ttl: ttl}
}

// Do runs fn while holding the lock, or returns ErrPipelineBusy.
func (l *PipelineLock) Do(ctx context.Context, fn func(context.Context) error) error {
	if l == nil || l.cache == nil {
		return fn(ctx)
	}
	ok, err := l.cache.TryLock(ctx, pipelineLockKey, l.ttl)
	if err != nil {
		return fmt.Errorf("acquire pipeline lock: %w", err)
	}
	if !ok {
		return models.ErrPipelineBusy
	}
	defer func() {
		// the run context may already be cancelled
		_ = l.cache.Unlock(context.Background(), pipelineLockKey)
	}()
	return fn(ctx)
}

// ETLJob runs the ETL pipeline for queued pipeline.etl messages.
type ETLJob struct {
	etl       *ETL
	predictor *Predictor
	lock      *PipelineLock
	l         *logger.Logger
}

var _ queue.Job = (*ETLJob)(nil)

func NewETLJob(etl *ETL, predictor *Predictor, lock *PipelineLock, l *logger.Logger) *ETLJob {
	return &ETLJob{etl: etl, predictor: predictor, lock: lock, l: orNopLogger(l)}
}

func (j *ETLJob) Name() string { return "etl" }
func (j *ETLJob) Type() string { return JobETL }

func (j *ETLJob) Handle(ctx context.Context, payload interface{}) error {
	req, err := queue.ParsePayload[models.ETLRequest](payload)
	if err != nil {
		return err
	}
	return j.lock.Do(ctx, func(ctx context.Context) error {
		summary, err := j.etl.Run(ctx, ETLParamsFromRequest(*req))
		if err != nil {
			return err
		}
		j.l.Info("etl job done", logger.String("run_id", summary.RunID))
		invalidate(ctx, j.predictor, j.l)
		return nil
	})
}

// TrainJob runs the trainer for queued pipeline.train messages.
type TrainJob struct {
	trainer   *Trainer
	predictor *Predictor
	lock      *PipelineLock
	l         *logger.Logger
}

var _ queue.Job = (*TrainJob)(nil)

func NewTrainJob(trainer *Trainer, predictor *Predictor, lock *PipelineLock, l *logger.Logger) *TrainJob {
	return &TrainJob{trainer: trainer, predictor: predictor, lock: lock, l: orNopLogger(l)}
}

func (j *TrainJob) Name() string { return "train" }
func (j *TrainJob) Type() string { return JobTrain }

func (j *TrainJob) Handle(ctx context.Context, payload interface{}) error {
	req, err := queue.ParsePayload[models.TrainRequest](payload)
	if err != nil {
		return err
	}
	return j.lock.Do(ctx, func(ctx context.Context) error {
		params := TrainParams{}
		if req.Search {
			params.Search = &req.Search
		}
		summary, err := j.trainer.Run(ctx, params)
		if err != nil {
			return err
		}
		j.l.Info("train job done", logger.String("run_id", summary.RunID), logger.Any("metrics", summary.Metrics))
		invalidate(ctx, j.predictor, j.l)
		return nil
	})
}

func invalidate(ctx context.Context, p *Predictor, l *logger.Logger) {
	if p == nil {
		return
	}
	if err := p.Invalidate(ctx); err != nil {
		l.Warn("invalidate prediction cache", logger.Error(err))
	}
}
