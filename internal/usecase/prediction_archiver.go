package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"HoopsCast/internal/domain/models"
	domrepo "HoopsCast/internal/domain/repository"
	pkgkafka "HoopsCast/pkg/kafka"
)

// PredictionArchiver consumes prediction events and writes them to the
// archive.
type PredictionArchiver struct {
	topic   string
	archive domrepo.PredictionArchive
	metrics domrepo.Metrics
}

func NewPredictionArchiver(topic string, archive domrepo.PredictionArchive, metrics domrepo.Metrics) *PredictionArchiver {
	return &PredictionArchiver{topic: topic, archive: archive, metrics: orNopMetrics(metrics)}
}

func (h *PredictionArchiver) Topic() string { return h.topic }

// incoming message schema: models.PredictionEvent
func (h *PredictionArchiver) Handle(ctx context.Context, b []byte) error {
	var ev models.PredictionEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode prediction event: %w", err)
	}
	if ev.RunID == "" || ev.Prediction.GameID == 0 {
		h.metrics.RecordError("consumer_invalid")
		return fmt.Errorf("prediction event without run id or game id")
	}
	if !ev.GeneratedAt.IsZero() {
		h.metrics.RecordLatency("archive_e2e_seconds", time.Since(ev.GeneratedAt).Seconds())
	}

	start := time.Now()
	err := h.archive.StorePredictions(ctx, []models.PredictionEvent{ev})
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordRows("archived", 1)
	return nil
}

var _ pkgkafka.MessageHandler = (*PredictionArchiver)(nil)
