package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	StorageLocal = "local"
	StorageS3    = "s3"

	VectorSQLite = "sqlite"
	VectorChroma = "chroma"
)

type Config struct {
	Port         string
	LogLevel     string
	DatabasePath string

	// Raw upload archive
	StorageBackend    string
	UploadDir         string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3BucketName      string
	S3Region          string
	S3Prefix          string
	S3UseSSL          bool

	// Gemini
	GeminiAPIKey         string
	PrimaryModel         string
	FallbackModel        string
	EmbeddingModel       string
	LLMMaxRetries        int
	LLMBaseDelay         time.Duration
	LLMErrorDelay        time.Duration
	LLMRequestsPerMinute int

	// Vector store
	VectorBackend    string
	ChromaHost       string
	ChromaAPIKey     string
	ChromaTenant     string
	ChromaDatabase   string
	ChromaCollection string
	VectorBatchSize  int
	QueryResults     int

	// Chunking
	ChunkSize    int
	ChunkOverlap int

	// CSV screening
	AuditRoundUnit       decimal.Decimal
	AuditHighAmount      decimal.Decimal
	AuditVendorFrequency int
	AuditPayloadLimit    int

	// Upload limits
	MaxFileSize int64
}

// Load reads the process environment, after merging an optional .env file.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	var errs []error

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		DatabasePath:         getEnv("DATABASE_PATH", "data/audit.db"),
		StorageBackend:       getEnv("STORAGE_BACKEND", StorageLocal),
		UploadDir:            getEnv("UPLOAD_DIR", "uploads"),
		S3Endpoint:           getEnv("S3_ENDPOINT", "localhost:9000"),
		S3AccessKeyID:        getEnv("S3_ACCESS_KEY_ID", "minioadmin"),
		S3SecretAccessKey:    getEnv("S3_SECRET_ACCESS_KEY", "minioadmin"),
		S3BucketName:         getEnv("S3_BUCKET_NAME", "audit-uploads"),
		S3Region:             getEnv("S3_REGION", "us-east-1"),
		S3Prefix:             getEnv("S3_PREFIX", "uploads/"),
		S3UseSSL:             getEnv("S3_USE_SSL", "false") == "true",
		GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
		PrimaryModel:         getEnv("GEMINI_PRIMARY_MODEL", "gemini-2.0-flash"),
		FallbackModel:        getEnv("GEMINI_FALLBACK_MODEL", "gemini-1.5-flash"),
		EmbeddingModel:       getEnv("GEMINI_EMBEDDING_MODEL", "text-embedding-004"),
		LLMMaxRetries:        getEnvInt("LLM_MAX_RETRIES", 3, &errs),
		LLMBaseDelay:         getEnvDuration("LLM_BASE_DELAY", 5*time.Second, &errs),
		LLMErrorDelay:        getEnvDuration("LLM_ERROR_DELAY", 2*time.Second, &errs),
		LLMRequestsPerMinute: getEnvInt("LLM_REQUESTS_PER_MINUTE", 0, &errs),
		VectorBackend:        getEnv("VECTOR_BACKEND", VectorSQLite),
		ChromaHost:           getEnv("CHROMA_HOST", "https://api.trychroma.com"),
		ChromaAPIKey:         getEnv("CHROMA_API_KEY", ""),
		ChromaTenant:         getEnv("CHROMA_TENANT", ""),
		ChromaDatabase:       getEnv("CHROMA_DATABASE", ""),
		ChromaCollection:     getEnv("CHROMA_COLLECTION", "audit_docs"),
		VectorBatchSize:      getEnvInt("VECTOR_BATCH_SIZE", 5000, &errs),
		QueryResults:         getEnvInt("QUERY_RESULTS", 3, &errs),
		ChunkSize:            getEnvInt("CHUNK_SIZE", 1000, &errs),
		ChunkOverlap:         getEnvInt("CHUNK_OVERLAP", 200, &errs),
		AuditRoundUnit:       getEnvDecimal("AUDIT_ROUND_UNIT", decimal.NewFromInt(1000), &errs),
		AuditHighAmount:      getEnvDecimal("AUDIT_HIGH_AMOUNT", decimal.NewFromInt(5000), &errs),
		AuditVendorFrequency: getEnvInt("AUDIT_VENDOR_FREQUENCY", 5, &errs),
		AuditPayloadLimit:    getEnvInt("AUDIT_PAYLOAD_LIMIT", 50, &errs),
		MaxFileSize:          int64(getEnvInt("MAX_FILE_SIZE", 20<<20, &errs)),
	}

	if cfg.GeminiAPIKey == "" {
		errs = append(errs, fmt.Errorf("GEMINI_API_KEY is required"))
	}

	switch cfg.StorageBackend {
	case StorageLocal, StorageS3:
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend))
	}

	switch cfg.VectorBackend {
	case VectorSQLite:
	case VectorChroma:
		if cfg.ChromaAPIKey == "" || cfg.ChromaTenant == "" || cfg.ChromaDatabase == "" {
			errs = append(errs, fmt.Errorf("CHROMA_API_KEY, CHROMA_TENANT and CHROMA_DATABASE are required for the chroma backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown VECTOR_BACKEND %q", cfg.VectorBackend))
	}

	if cfg.ChunkSize <= 0 || cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP (%d) must be in [0, CHUNK_SIZE (%d))", cfg.ChunkOverlap, cfg.ChunkSize))
	}
	if cfg.LLMMaxRetries <= 0 {
		errs = append(errs, fmt.Errorf("LLM_MAX_RETRIES must be positive"))
	}
	if cfg.VectorBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("VECTOR_BATCH_SIZE must be positive"))
	}
	if cfg.QueryResults <= 0 {
		errs = append(errs, fmt.Errorf("QUERY_RESULTS must be positive"))
	}
	if !cfg.AuditRoundUnit.IsPositive() || !cfg.AuditHighAmount.IsPositive() {
		errs = append(errs, fmt.Errorf("AUDIT_ROUND_UNIT and AUDIT_HIGH_AMOUNT must be positive"))
	}
	if cfg.AuditVendorFrequency <= 0 || cfg.AuditPayloadLimit <= 0 {
		errs = append(errs, fmt.Errorf("AUDIT_VENDOR_FREQUENCY and AUDIT_PAYLOAD_LIMIT must be positive"))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int, errs *[]error) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid integer %q", key, raw))
		return defaultValue
	}
	return v
}

func getEnvDecimal(key string, defaultValue decimal.Decimal, errs *[]error) decimal.Decimal {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid decimal %q", key, raw))
		return defaultValue
	}
	return v
}

// getEnvDuration accepts Go durations ("5s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid duration %q", key, raw))
		return defaultValue
	}
	return d
}
