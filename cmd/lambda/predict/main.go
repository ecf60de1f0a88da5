package main

import (
	"log"

	"HoopsCast/internal/di"
	handler "HoopsCast/internal/handler/lambda"
	"HoopsCast/pkg/config"

	"github.com/aws/aws-lambda-go/lambda"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	p, err := di.InitializePipeline(cfg)
	if err != nil {
		log.Fatalf("pipeline initialization failed: %v", err)
	}

	h := handler.NewHandlers(p.ETL, p.Trainer, p.Predictor, p.Logger)
	lambda.Start(h.Predict)
}
