package main

import (
	"errors"
	"flag"
	"log"
	"os"

	"HoopsCast/internal/di"
	"HoopsCast/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	// Lambda images ship without a config file
	load := config.LoadWithEnv
	if _, err := os.Stat(*configPath); errors.Is(err, os.ErrNotExist) {
		load = func(string) (*config.Config, error) { return config.LoadFromEnv() }
	}
	cfg, err := load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s storage=%s lambda=%v", cfg.Environment, cfg.Storage.Type, cfg.IsLambda)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	if cfg.ClickHouse.Enabled {
		log.Printf("clickhouse: connected and schema ready - db: %s", cfg.ClickHouse.Database)
	}
	if cfg.Kafka.Enabled {
		log.Printf("kafka: brokers=%v predictions=%s", cfg.Kafka.Brokers, cfg.Kafka.Topics.Predictions)
	}

	// Run application (blocks until signal)
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
