//go:build !wireinject
// +build !wireinject

// Injector bodies for the providers declared in wire.go. Maintained by hand,
// keep the two files in sync.

package di

import (
	"HoopsCast/pkg/config"
	"HoopsCast/pkg/server"
)

// Injectors from wire.go:

// InitializeApp wires up service mode.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, err
	}
	repositoryMetrics := ProvideMetrics()
	store, err := ProvideObjectStore(cfg)
	if err != nil {
		return nil, err
	}
	datasetStore, err := ProvideDatasetStore(store, cfg, logger)
	if err != nil {
		return nil, err
	}
	modelStore := ProvideModelStore(store)
	producer, err := ProvideKafkaProducer(cfg)
	if err != nil {
		return nil, err
	}
	publisher := ProvidePublisher(producer, cfg)
	redisCache, err := ProvideRedisCache(cfg)
	if err != nil {
		return nil, err
	}
	service := ProvideCache(redisCache, cfg)
	client, err := ProvideClickHouseClient(cfg)
	if err != nil {
		return nil, err
	}
	featureStore, err := ProvideFeatureStore(client, cfg, logger)
	if err != nil {
		return nil, err
	}
	predictionArchive, err := ProvidePredictionArchive(client, cfg)
	if err != nil {
		return nil, err
	}
	gameSource := ProvideGameSource(cfg, logger)
	transformer, err := ProvideTransformer(cfg, logger)
	if err != nil {
		return nil, err
	}
	etl := ProvideETL(cfg, gameSource, transformer, datasetStore, repositoryMetrics, featureStore, publisher, logger)
	trainer := ProvideTrainer(cfg, datasetStore, modelStore, repositoryMetrics, publisher, logger)
	predictor := ProvidePredictor(cfg, datasetStore, modelStore, repositoryMetrics, publisher, logger)
	redisQueue := ProvideQueue(cfg, logger, redisCache, service, etl, trainer, predictor)
	scheduler := ProvideScheduler(cfg, redisQueue, logger)
	consumer, err := ProvideKafkaConsumer(cfg, logger, predictionArchive, repositoryMetrics)
	if err != nil {
		return nil, err
	}
	predictionArchiver := ProvidePredictionArchiver(cfg, predictionArchive, repositoryMetrics)
	hub := ProvideHub(cfg, logger)
	pipelineEchoHandler := ProvideHTTPHandler(logger, predictor, redisQueue, predictionArchive, featureStore)
	app := ProvideApp(cfg, logger, pipelineEchoHandler, hub, predictor, service, redisQueue, scheduler, consumer, predictionArchiver, producer, client)
	return app, nil
}

// InitializePipeline wires the stages for Lambda functions and the CLI.
// Redis is never needed here; ClickHouse only when enabled.
func InitializePipeline(cfg *config.Config) (*Pipeline, error) {
	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, err
	}
	repositoryMetrics := ProvideMetrics()
	store, err := ProvideObjectStore(cfg)
	if err != nil {
		return nil, err
	}
	datasetStore, err := ProvideDatasetStore(store, cfg, logger)
	if err != nil {
		return nil, err
	}
	modelStore := ProvideModelStore(store)
	producer, err := ProvideKafkaProducer(cfg)
	if err != nil {
		return nil, err
	}
	publisher := ProvidePublisher(producer, cfg)
	client, err := ProvideClickHouseClient(cfg)
	if err != nil {
		return nil, err
	}
	featureStore, err := ProvideFeatureStore(client, cfg, logger)
	if err != nil {
		return nil, err
	}
	gameSource := ProvideGameSource(cfg, logger)
	transformer, err := ProvideTransformer(cfg, logger)
	if err != nil {
		return nil, err
	}
	etl := ProvideETL(cfg, gameSource, transformer, datasetStore, repositoryMetrics, featureStore, publisher, logger)
	trainer := ProvideTrainer(cfg, datasetStore, modelStore, repositoryMetrics, publisher, logger)
	predictor := ProvidePredictor(cfg, datasetStore, modelStore, repositoryMetrics, publisher, logger)
	pipeline := ProvidePipeline(logger, etl, trainer, predictor, producer, client)
	return pipeline, nil
}
