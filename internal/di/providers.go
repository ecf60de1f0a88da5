package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"HoopsCast/internal/domain/repository"
	dservice "HoopsCast/internal/domain/service"
	"HoopsCast/internal/handler/api"
	"HoopsCast/internal/handler/ws"
	internalrepo "HoopsCast/internal/repository"
	"HoopsCast/internal/service/balldontlie"
	"HoopsCast/internal/services/features"
	"HoopsCast/internal/usecase"
	"HoopsCast/pkg/cache"
	pkgch "HoopsCast/pkg/clickhouse"
	"HoopsCast/pkg/config"
	pkgkafka "HoopsCast/pkg/kafka"
	applogger "HoopsCast/pkg/logger"
	"HoopsCast/pkg/metrics"
	"HoopsCast/pkg/objectstore"
	"HoopsCast/pkg/queue"
	"HoopsCast/pkg/server"

	"github.com/segmentio/kafka-go"
)

// Pipeline bundles the three stages for entry points that run them directly
// (Lambda functions and the CLI).
type Pipeline struct {
	Logger    *applogger.Logger
	ETL       *usecase.ETL
	Trainer   *usecase.Trainer
	Predictor *usecase.Predictor

	producer *pkgkafka.Producer
	ch       *pkgch.Client
}

// Close releases the optional Kafka and ClickHouse clients.
func (p *Pipeline) Close() error {
	var errs []error
	if p.producer != nil {
		errs = append(errs, p.producer.Close())
	}
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
	}
	return errors.Join(errs...)
}

// ProvideLogger creates the process logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideObjectStore picks S3 or a local directory from storage.type.
func ProvideObjectStore(cfg *config.Config) (objectstore.Store, error) {
	switch cfg.Storage.Type {
	case "local":
		store, err := objectstore.NewLocalStore(cfg.Storage.Dir)
		if err != nil {
			return nil, fmt.Errorf("local store: %w", err)
		}
		return store, nil
	default:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		store, err := objectstore.NewS3Store(ctx, cfg.Storage.Bucket,
			objectstore.WithRegion(cfg.Storage.Region),
			objectstore.WithEndpoint(cfg.Storage.Endpoint, cfg.Storage.UsePathStyle),
		)
		if err != nil {
			return nil, fmt.Errorf("s3 store: %w", err)
		}
		return store, nil
	}
}

// ProvideDatasetStore stores tables in the configured format.
func ProvideDatasetStore(store objectstore.Store, cfg *config.Config, l *applogger.Logger) (repository.DatasetStore, error) {
	codec, err := internalrepo.CodecFor(cfg.Storage.Format)
	if err != nil {
		return nil, err
	}
	ds := internalrepo.NewObjectDatasetStore(store, codec)
	ds.SetLogger(l)
	return ds, nil
}

func ProvideModelStore(store objectstore.Store) repository.ModelStore {
	return internalrepo.NewObjectModelStore(store)
}

// ProvideGameSource creates the games API client.
func ProvideGameSource(cfg *config.Config, l *applogger.Logger) repository.GameSource {
	return balldontlie.New(
		balldontlie.WithBaseURL(cfg.Source.BaseURL),
		balldontlie.WithAPIKey(cfg.Source.APIKey),
		balldontlie.WithPerPage(cfg.Source.PerPage),
		balldontlie.WithTimeout(cfg.Source.Timeout),
		balldontlie.WithRateLimit(cfg.Source.RequestsPerMinute),
		balldontlie.WithLogger(l),
	)
}

func ProvideTransformer(cfg *config.Config, l *applogger.Logger) (dservice.Transformer, error) {
	t, err := features.NewTransformer(cfg.Features, l)
	if err != nil {
		return nil, fmt.Errorf("transformer: %w", err)
	}
	return t, nil
}

// ProvideRedisCache connects to Redis when it is enabled. A nil cache means
// service mode runs with in-process caching and locking only.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideCache layers an in-process cache over Redis when available.
func ProvideCache(rc *cache.RedisCache, cfg *config.Config) cache.Service {
	opts := []cache.MemoryOption{
		cache.WithMemoryMaxSize(256),
		cache.WithMemoryDefaultTTL(cfg.Predictor.CacheTTL),
	}
	if rc == nil {
		return cache.NewLayeredCache(nil, opts...)
	}
	return cache.NewLayeredCache(rc, opts...)
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS " + cfg.ClickHouse.Database,
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideFeatureStore creates the matchup store and its table.
func ProvideFeatureStore(ch *pkgch.Client, cfg *config.Config, l *applogger.Logger) (repository.FeatureStore, error) {
	if ch == nil {
		return nil, nil
	}
	fs := internalrepo.NewCHFeatureStore(ch, cfg.ClickHouse.Database)
	fs.SetLogger(l)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := fs.Init(ctx); err != nil {
		return nil, fmt.Errorf("feature store: %w", err)
	}
	return fs, nil
}

func ProvidePredictionArchive(ch *pkgch.Client, cfg *config.Config) (repository.PredictionArchive, error) {
	if ch == nil {
		return nil, nil
	}
	pa := internalrepo.NewCHPredictionArchive(ch, cfg.ClickHouse.Database)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := pa.Init(ctx); err != nil {
		return nil, fmt.Errorf("prediction archive: %w", err)
	}
	return pa, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvidePublisher wraps the producer for predictions and pipeline events.
func ProvidePublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topics.Predictions, cfg.Kafka.Topics.Events)
}

// ProvideKafkaConsumer creates the prediction archiver consumer, or nil when
// there is nowhere to archive.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger, archive repository.PredictionArchive, m repository.Metrics) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || archive == nil {
		return nil, nil
	}
	c := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(c.GroupID),
		pkgkafka.WithConsumerWorkers(c.Workers, c.BufferSize),
		pkgkafka.WithConsumerRetry(c.RetryMax, c.BackoffMin, c.BackoffMax),
		pkgkafka.WithConsumerDLQ(c.DLQTopic),
		pkgkafka.WithConsumerFetch(c.MinBytes, c.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.SetHook(pkgkafka.HookFuncs{
		Err: func(_ context.Context, km kafka.Message, err error) {
			m.RecordError("archive_consume")
			l.Warn("archive message failed",
				applogger.String("topic", km.Topic),
				applogger.Int64("offset", km.Offset),
				applogger.String("run_id", pkgkafka.Header(km, "run_id")),
				applogger.Error(err))
		},
	})
	return consumer, nil
}

func ProvidePredictionArchiver(cfg *config.Config, archive repository.PredictionArchive, m repository.Metrics) *usecase.PredictionArchiver {
	if archive == nil {
		return nil
	}
	return usecase.NewPredictionArchiver(cfg.Kafka.Topics.Predictions, archive, m)
}

// ProvideETL creates the ETL use case with its optional side stores.
func ProvideETL(
	cfg *config.Config,
	source repository.GameSource,
	transformer dservice.Transformer,
	datasets repository.DatasetStore,
	m repository.Metrics,
	fs repository.FeatureStore,
	pub repository.Publisher,
	l *applogger.Logger,
) *usecase.ETL {
	etl := usecase.NewETL(cfg, source, transformer, datasets, m)
	etl.SetLogger(l)
	if fs != nil {
		etl.SetFeatureStore(fs)
	}
	if pub != nil {
		etl.SetPublisher(pub)
	}
	return etl
}

func ProvideTrainer(
	cfg *config.Config,
	datasets repository.DatasetStore,
	models repository.ModelStore,
	m repository.Metrics,
	pub repository.Publisher,
	l *applogger.Logger,
) *usecase.Trainer {
	t := usecase.NewTrainer(cfg, datasets, models, m)
	t.SetLogger(l)
	if pub != nil {
		t.SetPublisher(pub)
	}
	return t
}

// ProvidePredictor creates the predictor. The cache and broadcaster are
// attached only in service mode.
func ProvidePredictor(
	cfg *config.Config,
	datasets repository.DatasetStore,
	models repository.ModelStore,
	m repository.Metrics,
	pub repository.Publisher,
	l *applogger.Logger,
) *usecase.Predictor {
	p := usecase.NewPredictor(cfg, datasets, models, m)
	p.SetLogger(l)
	if pub != nil {
		p.SetPublisher(pub)
	}
	return p
}

// ProvidePipeline bundles the stages for direct invocation.
func ProvidePipeline(
	l *applogger.Logger,
	etl *usecase.ETL,
	trainer *usecase.Trainer,
	predictor *usecase.Predictor,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
) *Pipeline {
	return &Pipeline{Logger: l, ETL: etl, Trainer: trainer, Predictor: predictor, producer: producer, ch: ch}
}

func ProvideHub(cfg *config.Config, l *applogger.Logger) *ws.Hub {
	return ws.NewHub(l, cfg.Server.AllowedOrigins)
}

// ProvideQueue creates the Redis job queue with the pipeline jobs
// registered, or nil without Redis.
func ProvideQueue(
	cfg *config.Config,
	l *applogger.Logger,
	rc *cache.RedisCache,
	c cache.Service,
	etl *usecase.ETL,
	trainer *usecase.Trainer,
	predictor *usecase.Predictor,
) *queue.RedisQueue {
	if rc == nil {
		return nil
	}
	q := queue.NewRedisQueue(l, queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.MaxRetries,
		RetryDelay: cfg.Queue.RetryBackoff,
		JobTimeout: cfg.Queue.LockTTL,
	}, rc.Client(), queue.WithKeyPrefix(cfg.Redis.Prefix+":queue:"+cfg.Queue.Name))

	lock := usecase.NewPipelineLock(c, cfg.Queue.LockTTL)
	q.RegisterJobs(
		usecase.NewETLJob(etl, predictor, lock, l),
		usecase.NewTrainJob(trainer, predictor, lock, l),
	)
	return q
}

// ProvideScheduler creates the cron scheduler when enabled.
func ProvideScheduler(cfg *config.Config, q *queue.RedisQueue, l *applogger.Logger) *usecase.Scheduler {
	if !cfg.Schedule.Enabled || q == nil {
		return nil
	}
	return usecase.NewScheduler(cfg.Schedule, q, l)
}

// ProvideHTTPHandler creates the pipeline API with whatever optional stores
// are configured.
func ProvideHTTPHandler(
	l *applogger.Logger,
	predictor *usecase.Predictor,
	q *queue.RedisQueue,
	archive repository.PredictionArchive,
	fs repository.FeatureStore,
) *api.PipelineEchoHandler {
	h := api.NewPipelineEchoHandler(l, predictor)
	if q != nil {
		h.SetEnqueuer(q)
	}
	if archive != nil {
		h.SetArchive(archive)
	}
	if fs != nil {
		h.SetFeatureStore(fs)
	}
	return h
}

// ProvideApp assembles service mode.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	h *api.PipelineEchoHandler,
	hub *ws.Hub,
	predictor *usecase.Predictor,
	c cache.Service,
	q *queue.RedisQueue,
	scheduler *usecase.Scheduler,
	consumer *pkgkafka.Consumer,
	archiver *usecase.PredictionArchiver,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
) *server.App {
	predictor.SetCache(c)
	predictor.SetBroadcaster(hub)

	if cfg.Log.Collect && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval: cfg.Log.Flush,
			Topic:        cfg.Kafka.Topics.Logs,
			Publisher:    producer,
		})
	}

	app := server.New(cfg, l, h, hub)
	app.SetCache(c)
	if q != nil {
		app.SetQueue(q)
	}
	if scheduler != nil {
		app.SetScheduler(scheduler)
	}
	if consumer != nil && archiver != nil {
		app.SetConsumer(consumer, archiver)
	}
	if producer != nil {
		app.SetProducer(producer)
	}
	if ch != nil {
		app.SetClickHouse(ch)
	}
	return app
}
