package main

import (
	"context"
	"log"

	"cre-chatbot-platform/internal/config"
	"cre-chatbot-platform/internal/logger"
	"cre-chatbot-platform/internal/queue"
	"cre-chatbot-platform/internal/telemetry"
	"cre-chatbot-platform/services"

	"github.com/hibiken/asynq"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer mongoClient.Disconnect(context.Background())
	db := mongoClient.Database(cfg.DBName)

	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	redisOpt, err := queue.RedisOpt(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal("Worker requires Redis:", err)
	}

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to init metrics:", err)
	}

	store := services.NewContextStore(rdb, nil, services.ContextStoreOptions{
		TTL:           cfg.ContextTTL,
		PartThreshold: cfg.ContextPartThreshold,
		Metrics:       metrics,
	})
	extractor := services.NewPDFExtractor(cfg.MaxCharsPerChunk)
	processor := services.NewDocumentProcessor(db, extractor, store, metrics)

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"documents": 6,
				"default":   3,
				"low":       1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	taskProcessor := queue.NewTaskProcessor(processor)

	logger.Info("starting worker", "queues", "documents(6), default(3), low(1)", "redis", cfg.RedisURL)
	if err := server.Run(taskProcessor.Mux()); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
