//go:build wireinject
// +build wireinject

package di

import (
	"HoopsCast/pkg/config"
	"HoopsCast/pkg/server"

	"github.com/google/wire"
)

var storageSet = wire.NewSet(
	ProvideObjectStore,
	ProvideDatasetStore,
	ProvideModelStore,
)

var messagingSet = wire.NewSet(
	ProvideKafkaProducer,
	ProvidePublisher,
)

var stageSet = wire.NewSet(
	ProvideGameSource,
	ProvideTransformer,
	ProvideETL,
	ProvideTrainer,
	ProvidePredictor,
)

// InitializeApp wires up service mode.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		storageSet,
		messagingSet,
		ProvideRedisCache,
		ProvideCache,
		ProvideClickHouseClient,

		// Side stores
		ProvideFeatureStore,
		ProvidePredictionArchive,

		// Use cases
		stageSet,
		ProvideQueue,
		ProvideScheduler,
		ProvideKafkaConsumer,
		ProvidePredictionArchiver,

		// Handlers
		ProvideHub,
		ProvideHTTPHandler,

		ProvideApp,
	)
	return &server.App{}, nil
}

// InitializePipeline wires the stages for Lambda functions and the CLI.
// Redis is never needed here; ClickHouse only when enabled.
func InitializePipeline(cfg *config.Config) (*Pipeline, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		storageSet,
		messagingSet,
		ProvideClickHouseClient,
		ProvideFeatureStore,
		stageSet,
		ProvidePipeline,
	)
	return &Pipeline{}, nil
}
