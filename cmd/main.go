package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cre-chatbot-platform/internal/ai"
	"cre-chatbot-platform/internal/config"
	"cre-chatbot-platform/internal/logger"
	"cre-chatbot-platform/internal/queue"
	"cre-chatbot-platform/internal/telemetry"
	"cre-chatbot-platform/middleware"
	"cre-chatbot-platform/routes"
	"cre-chatbot-platform/services"

	"github.com/gin-gonic/gin"
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
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()
	db := mongoClient.Database(cfg.DBName)

	// Redis is optional: without it the context store runs on the
	// in-process fallback map and async processing is disabled
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	if rdb == nil {
		logger.Warn("Redis not configured, context store running in fallback mode")
	}

	var local *services.LocalStore
	if rdb == nil && cfg.ContextFallbackEnabled {
		local = services.NewLocalStore()
	}

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to init metrics:", err)
	}

	var shutdownTracer func()
	if cfg.TracingEnabled {
		shutdownTracer, err = telemetry.InitTracer("cre-chatbot-platform", cfg.OTLPEndpoint, cfg.Environment)
		if err != nil {
			log.Fatal("Failed to init tracer:", err)
		}
		defer shutdownTracer()
	}

	store := services.NewContextStore(rdb, local, services.ContextStoreOptions{
		TTL:           cfg.ContextTTL,
		PartThreshold: cfg.ContextPartThreshold,
		Metrics:       metrics,
	})
	// Without the Atlas search flag the engine starts at the regex scan
	searchIndex := ""
	if cfg.TextSearchEnabled {
		searchIndex = cfg.SearchIndexName
	}
	searcher := services.NewMongoChunkSearcher(db.Collection("doc_chunks"), searchIndex)
	engine := services.NewRetrievalEngine(store, searcher, cfg.MaxCharsPerChunk)
	queryBuilder := services.NewConversationalQueryBuilder(engine, services.QueryBuilderOptions{
		TopK:       cfg.RetrievalTopK,
		MaxResults: cfg.MaxContextChunks,
		MaxChars:   cfg.MaxCharsPerChunk,
	})
	guard := services.NewIdempotencyGuard(store, cfg.IdempotencyTTL)
	extractor := services.NewPDFExtractor(cfg.MaxCharsPerChunk)
	processor := services.NewDocumentProcessor(db, extractor, store, metrics)
	exportService := services.NewExportService(db.Collection("messages"))

	geminiClient, err := ai.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiTier)
	if err != nil {
		log.Fatal("Failed to init Gemini client:", err)
	}
	defer geminiClient.Close()

	var queueClient *asynq.Client
	if rdb != nil {
		redisOpt, err := queue.RedisOpt(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
		if err == nil {
			queueClient = asynq.NewClient(redisOpt)
			defer queueClient.Close()
		}
	}

	janitor := services.NewCacheJanitor(local)
	janitor.Start()
	defer janitor.Stop()

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORSMiddlewareWithOrigins(cfg.CORSOrigins))
	if cfg.TracingEnabled {
		router.Use(middleware.TracingMiddleware())
		router.Use(middleware.EnrichTrace())
	}
	router.Use(middleware.MetricsMiddleware(metrics))
	router.Use(middleware.RateLimitMiddleware(rdb, cfg))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":        "healthy",
			"cache_backend": cacheBackend(rdb != nil, local != nil),
			"timestamp":     time.Now(),
		})
	})

	authMiddleware := middleware.NewAuthMiddleware(cfg)

	routes.SetupChatRoutes(router, routes.ChatDeps{
		Config:       cfg,
		DB:           db,
		QueryBuilder: queryBuilder,
		Gemini:       geminiClient,
		Metrics:      metrics,
	}, authMiddleware)
	routes.SetupDocumentRoutes(router, routes.DocumentDeps{
		Config:    cfg,
		DB:        db,
		Store:     store,
		Processor: processor,
		Guard:     guard,
		Queue:     queueClient,
	}, authMiddleware)
	routes.SetupExportRoutes(router, exportService, authMiddleware)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}
}

func cacheBackend(redisConfigured, fallback bool) string {
	switch {
	case redisConfigured:
		return "redis"
	case fallback:
		return "local"
	default:
		return "unavailable"
	}
}
