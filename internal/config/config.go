package config

import (
	"os"
	"strconv"
	"time"

	"github.com/zhangjing-777/receipt-processing-center/internal/common"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Storage  StorageConfig
	LLM      LLMConfig
	Crypto   CryptoConfig
	Quota    QuotaConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string
}

// StorageConfig holds object-storage configuration (S3-compatible).
type StorageConfig struct {
	Bucket       string
	Region       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
	SignedURLTTL time.Duration
}

// LLMConfig holds model endpoint configuration shared by OCR, field
// extraction and narrative generation.
type LLMConfig struct {
	BaseURL       string
	APIKey        string
	VisionModel   string // low-cost primary for OCR
	FallbackModel string // stronger model tried once on failure
	TextModel     string // field extraction + narrative
	Temperature   float32
	Timeout       time.Duration
}

// CryptoConfig holds the process-wide field-encryption secret.
type CryptoConfig struct {
	Secret string
}

// QuotaConfig bounds batch behavior around the persisted counters.
type QuotaConfig struct {
	MaxParallelDocs int
	MaxParallelGets int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:             getEnv("DB_URL", ""),
			MaxConns:        getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:        getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:     getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		Server: ServerConfig{
			GRPCAddr: getEnv("GRPC_ADDR", ":8080"),
		},
		Storage: StorageConfig{
			Bucket:       getEnv("S3_BUCKET", "receipts"),
			Region:       getEnv("S3_REGION", "us-east-1"),
			BaseEndpoint: getEnv("S3_BASE_ENDPOINT", ""),
			AccessKey:    getEnv("S3_ACCESS_KEY", ""),
			SecretKey:    getEnv("S3_SECRET_KEY", ""),
			SignedURLTTL: getEnvAsDuration("S3_SIGNED_URL_TTL", 24*time.Hour),
		},
		LLM: LLMConfig{
			BaseURL:       getEnv("LLM_BASE_URL", "https://openrouter.ai/api/v1"),
			APIKey:        getEnv("LLM_API_KEY", ""),
			VisionModel:   getEnv("LLM_VISION_MODEL", ""),
			FallbackModel: getEnv("LLM_FALLBACK_MODEL", ""),
			TextModel:     getEnv("LLM_TEXT_MODEL", ""),
			Temperature:   getEnvAsFloat32("LLM_TEMPERATURE", 0.3),
			Timeout:       getEnvAsDuration("LLM_TIMEOUT", 45*time.Second),
		},
		Crypto: CryptoConfig{
			Secret: getEnv("ENCRYPTION_SECRET", ""),
		},
		Quota: QuotaConfig{
			MaxParallelDocs: getEnvAsInt("MAX_PARALLEL_DOCS", 5),
			MaxParallelGets: getEnvAsInt("MAX_PARALLEL_GETS", 10),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return common.NewAppError("CONFIG_ERROR", "DB_URL is required", common.ErrInvalidInput)
	}
	if c.LLM.APIKey == "" {
		return common.NewAppError("CONFIG_ERROR", "LLM_API_KEY is required", common.ErrInvalidInput)
	}
	if c.Crypto.Secret == "" {
		return common.NewAppError("CONFIG_ERROR", "ENCRYPTION_SECRET is required", common.ErrInvalidInput)
	}
	if c.Server.GRPCAddr == "" {
		return common.NewAppError("CONFIG_ERROR", "GRPC_ADDR is required", common.ErrInvalidInput)
	}
	return nil
}
