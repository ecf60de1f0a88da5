package repository

import (
	"context"
	"strconv"

	"HoopsCast/internal/domain/models"
	"HoopsCast/internal/domain/repository"
	pkgkafka "HoopsCast/pkg/kafka"
)

// KafkaPublisher implements Publisher for Kafka.
type KafkaPublisher struct {
	producer         *pkgkafka.Producer
	predictionsTopic string
	eventsTopic      string
}

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, predictionsTopic, eventsTopic string) repository.Publisher {
	return &KafkaPublisher{producer: producer, predictionsTopic: predictionsTopic, eventsTopic: eventsTopic}
}

// PublishPredictions keys each event by game id so updates of one game stay
// ordered.
func (p *KafkaPublisher) PublishPredictions(ctx context.Context, events []models.PredictionEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(events))
	for i, e := range events {
		msgs[i] = pkgkafka.Message{
			Key:     []byte(strconv.FormatInt(e.Prediction.GameID, 10)),
			Value:   e,
			Headers: map[string]string{"run_id": e.RunID, "model": e.Model},
		}
	}
	return p.producer.PublishBatch(ctx, p.predictionsTopic, msgs)
}

func (p *KafkaPublisher) PublishEvent(ctx context.Context, event models.PipelineEvent) error {
	return p.producer.PublishBatch(ctx, p.eventsTopic, []pkgkafka.Message{{
		Key:     []byte(event.Stage),
		Value:   event,
		Headers: map[string]string{"type": event.Type},
	}})
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
