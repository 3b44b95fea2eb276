package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI     string
	DBName       string
	JWTSecret    string
	GeminiAPIKey string
	GeminiTier   string
	Port         string
	GinMode      string
	CORSOrigins  []string
	MaxFileSize  int64
	AllowedTypes []string

	RateLimitReqs   int
	RateLimitWindow int

	FileStorageDir      string
	SyncProcessingLimit int64

	// Redis Configuration. Empty RedisURL means the backing KV store was
	// never configured and the context store runs in fallback mode.
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Context store
	ContextTTL             time.Duration
	ContextPartThreshold   int
	ContextFallbackEnabled bool
	IdempotencyTTL         time.Duration

	// Retrieval
	RetrievalTopK     int
	MaxContextChunks  int
	MaxCharsPerChunk  int
	SearchIndexName   string
	TextSearchEnabled bool

	// Telemetry
	TracingEnabled bool
	OTLPEndpoint   string
	Environment    string
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI:     getEnv("MONGO_URI", "mongodb://localhost:27017/cre_chatbot"),
		DBName:       getEnv("DB_NAME", "cre_chatbot"),
		JWTSecret:    getEnv("JWT_SECRET", ""),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiTier:   getEnv("GEMINI_TIER", "free"),
		Port:         getEnv("PORT", "8080"),
		GinMode:      getEnv("GIN_MODE", "debug"),
		CORSOrigins:  strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ","),
		MaxFileSize:  getEnvInt64("MAX_FILE_SIZE", 52428800), // 50MB
		AllowedTypes: strings.Split(getEnv("ALLOWED_FILE_TYPES", "application/pdf"), ","),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		FileStorageDir:      getEnv("FILE_STORAGE_DIR", "./storage"),
		SyncProcessingLimit: getEnvInt64("SYNC_PROCESSING_LIMIT", 5242880), // 5MB processed inline

		// Redis Configuration
		RedisURL:      getEnv("REDIS_URL", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		// Context store
		ContextTTL:             getEnvDuration("CONTEXT_TTL", 30*time.Minute),
		ContextPartThreshold:   getEnvInt("CONTEXT_PART_THRESHOLD", 900*1024),
		ContextFallbackEnabled: getEnvBool("CONTEXT_FALLBACK_ENABLED", true),
		IdempotencyTTL:         getEnvDuration("IDEMPOTENCY_TTL", 2*time.Minute),

		// Retrieval
		RetrievalTopK:     getEnvInt("RETRIEVAL_TOP_K", 6),
		MaxContextChunks:  getEnvInt("MAX_CONTEXT_CHUNKS", 10),
		MaxCharsPerChunk:  getEnvInt("MAX_CHARS_PER_CHUNK", 1500),
		SearchIndexName:   getEnv("MONGODB_SEARCH_INDEX", "doc_chunks_text"),
		TextSearchEnabled: getEnvBool("MONGODB_SEARCH_ENABLED", false),

		// Telemetry
		TracingEnabled: getEnvBool("TRACING_ENABLED", false),
		OTLPEndpoint:   getEnv("OTLP_ENDPOINT", "localhost:4317"),
		Environment:    getEnv("ENVIRONMENT", "development"),
	}

	// Validate required fields
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required - set it in .env file")
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
