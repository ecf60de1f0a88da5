package usecase

import (
	"context"
	"fmt"
	"time"

	"HoopsCast/internal/domain/models"
	"HoopsCast/pkg/config"
	"HoopsCast/pkg/logger"
	"HoopsCast/pkg/queue"

	"github.com/robfig/cron/v3"
)

// Scheduler enqueues pipeline jobs on cron expressions. Runs happen in the
// queue workers, never in the cron goroutine.
type Scheduler struct {
	cron *cron.Cron
	enq  queue.Enqueuer
	cfg  config.ScheduleConfig
	l    *logger.Logger
}

func NewScheduler(cfg config.ScheduleConfig, enq queue.Enqueuer, l *logger.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithLocation(time.UTC)),
		enq:  enq,
		cfg:  cfg,
		l:    orNopLogger(l),
	}
}

// Register adds the configured entries. Empty expressions are skipped.
func (s *Scheduler) Register() error {
	entries := []struct {
		expr    string
		jobType string
		payload interface{}
	}{
		{s.cfg.ETL, JobETL, models.ETLRequest{}},
		{s.cfg.Train, JobTrain, models.TrainRequest{}},
	}
	for _, e := range entries {
		if e.expr == "" {
			continue
		}
		jobType, payload := e.jobType, e.payload
		if _, err := s.cron.AddFunc(e.expr, func() { s.fire(jobType, payload) }); err != nil {
			return fmt.Errorf("schedule %s %q: %w", jobType, e.expr, err)
		}
		s.l.Info("job scheduled", logger.String("type", jobType), logger.String("cron", e.expr))
	}
	return nil
}

func (s *Scheduler) fire(jobType string, payload interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	id, err := s.enq.Enqueue(ctx, jobType, payload)
	if err != nil {
		s.l.Error("enqueue scheduled job", logger.String("type", jobType), logger.Error(err))
		return
	}
	s.l.Info("scheduled job enqueued", logger.String("type", jobType), logger.String("id", id))
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop waits for running enqueue calls to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Entries returns how many cron entries are registered.
func (s *Scheduler) Entries() int { return len(s.cron.Entries()) }
