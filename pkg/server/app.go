package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"HoopsCast/pkg/cache"
	pkgch "HoopsCast/pkg/clickhouse"
	"HoopsCast/pkg/config"
	xhttp "HoopsCast/pkg/http"
	pkgkafka "HoopsCast/pkg/kafka"
	applogger "HoopsCast/pkg/logger"
	"HoopsCast/pkg/queue"

	"github.com/aws/aws-lambda-go/lambda"
	echoadapter "github.com/awslabs/aws-lambda-go-api-proxy/echo"
)

// Scheduler is the cron side of service mode.
type Scheduler interface {
	Register() error
	Start()
	Stop(ctx context.Context) error
}

// Closer is anything that must be released on shutdown, like the websocket hub.
type Closer interface {
	Close()
}

// App encapsulates the service lifecycle: HTTP server, job queue workers,
// Kafka archiver and scheduler.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	httpServer *xhttp.Server
	hub        Closer

	cache     cache.Service
	queue     *queue.RedisQueue
	scheduler Scheduler
	consumer  *pkgkafka.Consumer
	archiver  pkgkafka.MessageHandler
	producer  *pkgkafka.Producer
	chClient  *pkgch.Client
}

// RoutedCloser registers routes and is closed on shutdown.
type RoutedCloser interface {
	xhttp.Handler
	Closer
}

// New creates an App serving the given handlers.
func New(cfg *config.Config, l *applogger.Logger, api xhttp.Handler, hub RoutedCloser) *App {
	if l == nil {
		l = applogger.Nop()
	}
	handlers := []xhttp.Handler{api}
	if hub != nil {
		handlers = append(handlers, hub)
	}

	opts := []xhttp.ServerOption{
		xhttp.WithAddr("", cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithAllowOrigins(cfg.Server.AllowedOrigins),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path))
	}

	a := &App{
		cfg:        cfg,
		l:          l,
		httpServer: xhttp.NewServer(l, handlers, opts...),
	}
	if hub != nil {
		a.hub = hub
	}
	return a
}

func (a *App) SetCache(c cache.Service)         { a.cache = c }
func (a *App) SetQueue(q *queue.RedisQueue)     { a.queue = q }
func (a *App) SetScheduler(s Scheduler)         { a.scheduler = s }
func (a *App) SetProducer(p *pkgkafka.Producer) { a.producer = p }
func (a *App) SetClickHouse(ch *pkgch.Client)   { a.chClient = ch }

// SetConsumer attaches the Kafka consumer and the handler it routes to.
func (a *App) SetConsumer(c *pkgkafka.Consumer, h pkgkafka.MessageHandler) {
	a.consumer = c
	a.archiver = h
}

// HTTP exposes the underlying server, mainly for tests.
func (a *App) HTTP() *xhttp.Server { return a.httpServer }

// Run starts the application and blocks until interrupted. Inside Lambda
// the echo router is served through the API Gateway proxy instead, and no
// background workers are started.
func (a *App) Run() error {
	if a.cfg.IsLambda {
		a.l.Info("running behind api gateway")
		adapter := echoadapter.New(a.httpServer.Echo())
		lambda.Start(adapter.ProxyWithContext)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.start(ctx); err != nil {
		_ = a.shutdown(context.Background())
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.l.Info("shutdown signal received")
	cancel()
	return a.shutdown(context.Background())
}

func (a *App) start(ctx context.Context) error {
	if a.queue != nil {
		if err := a.queue.Start(ctx); err != nil {
			return err
		}
		a.l.Info("job queue started", applogger.String("queue", a.cfg.Queue.Name), applogger.Int("workers", a.cfg.Queue.Workers))
	}

	if a.scheduler != nil {
		if err := a.scheduler.Register(); err != nil {
			return err
		}
		a.scheduler.Start()
		a.l.Info("scheduler started")
	}

	if a.consumer != nil && a.archiver != nil {
		a.consumer.RegisterHandler(a.archiver)
		if err := a.consumer.Start(); err != nil {
			return err
		}
		a.l.Info("kafka consumer started", applogger.String("topic", a.archiver.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}
	return nil
}

// shutdown stops producers of work first, then the things they write to.
func (a *App) shutdown(ctx context.Context) error {
	a.l.Info("shutting down...")
	ctx, cancel := context.WithTimeout(ctx, a.httpServer.ShutdownTimeout())
	defer cancel()

	var errs []error
	if err := a.httpServer.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}
	if a.hub != nil {
		a.hub.Close()
	}

	if a.scheduler != nil {
		if err := a.scheduler.Stop(ctx); err != nil {
			a.l.Warn("scheduler stop error", applogger.Error(err))
		}
	}
	if a.queue != nil {
		if err := a.queue.Stop(ctx); err != nil {
			a.l.Warn("job queue stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	// the log collector publishes through the producer
	a.l.RemoveCollector()
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.l.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.l.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.l.Warn("cache close error", applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	return errors.Join(errs...)
}
