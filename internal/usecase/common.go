package usecase

import (
	"context"
	"strconv"
	"time"

	"HoopsCast/internal/domain/models"
	drepo "HoopsCast/internal/domain/repository"
	"HoopsCast/pkg/logger"

	"github.com/google/uuid"
)

const (
	StageETL     = "etl"
	StageTrain   = "train"
	StagePredict = "predict"
)

type nopMetrics struct{}

func (nopMetrics) RecordRows(string, int)           {}
func (nopMetrics) RecordError(string)               {}
func (nopMetrics) RecordLatency(string, float64)    {}
func (nopMetrics) RecordModelScore(string, float64) {}

var _ drepo.Metrics = nopMetrics{}

func orNopMetrics(m drepo.Metrics) drepo.Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}

func orNopLogger(l *logger.Logger) *logger.Logger {
	if l == nil {
		return logger.Nop()
	}
	return l
}

func newRunID() string { return uuid.NewString() }

// announce publishes a pipeline event. Delivery failures are logged and
// counted; the stage result is already persisted at this point.
func announce(ctx context.Context, pub drepo.Publisher, m drepo.Metrics, l *logger.Logger, ev models.PipelineEvent) {
	if pub == nil {
		return
	}
	if ev.ID == "" {
		ev.ID = newRunID()
	}
	if err := pub.PublishEvent(ctx, ev); err != nil {
		m.RecordError("publish_event")
		l.Warn("publish pipeline event",
			logger.String("type", ev.Type),
			logger.String("stage", ev.Stage),
			logger.Error(err))
	}
}

// announceFailure publishes pipeline.failed for a stage error.
func announceFailure(ctx context.Context, pub drepo.Publisher, m drepo.Metrics, l *logger.Logger, stage, runID string, err error, at time.Time) {
	announce(ctx, pub, m, l, models.PipelineEvent{
		Type:       models.EventPipelineFailed,
		Stage:      stage,
		OccurredAt: at,
		Attributes: map[string]string{"run_id": runID, "error": err.Error()},
	})
}

func itoa(n int) string { return strconv.Itoa(n) }
