package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Backend selects the persistence gateway implementation
const (
	BackendRemote = "remote"
	BackendLocal  = "local"
)

// Feed types for the live preferences change feed
const (
	FeedMemory = "memory"
	FeedRedis  = "redis"
	FeedNATS   = "nats"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Port string

	// Logging configuration
	LogLevel  string
	LogFormat string

	// Backend is "remote" (document store + Authorizer) or "local" (KV bootstrap)
	Backend string

	// Database configuration
	DBType            string // mysql, postgres, sqlite, sqlite3, sqlserver
	DBHost            string
	DBPort            string
	DBDatabase        string
	DBUser            string
	DBPassword        string
	DBConnectionLimit int

	// Authorizer configuration
	AuthzURL      string
	AuthzClientID string

	// Change feed and KV configuration
	FeedType      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	NATSURL       string

	// Vision model configuration
	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string
	VisionTimeout time.Duration

	// Session reconciliation tuning
	ProfileRetryAttempts int
	ProfileRetryDelay    time.Duration
	HistoryPageSize      int
	NoteReadoutDelay     time.Duration
	SessionIdleTimeout   time.Duration

	// Speech
	SpeechCommand string
}

// Load loads configuration from environment variables, after reading an optional .env file
func Load() (*Config, error) {
	return LoadFile(getEnv("ENV_FILE", ".env"))
}

// LoadFile loads configuration from the given .env file (if it exists) and the environment
func LoadFile(envFile string) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		}
	}

	cfg := &Config{
		Port:                 getEnv("PORT", "3000"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFormat:            getEnv("LOG_FORMAT", "json"),
		Backend:              getEnv("BACKEND", BackendRemote),
		DBType:               getEnv("DB_TYPE", "sqlite"),
		DBHost:               getEnv("DB_HOST", "localhost"),
		DBPort:               getEnv("DB_PORT", "3306"),
		DBDatabase:           getEnv("DB_DATABASE", ""),
		DBUser:               getEnv("DB_USER", ""),
		DBPassword:           getEnv("DB_PASSWORD", ""),
		DBConnectionLimit:    getEnvAsInt("DB_CONNECTION_LIMIT", 5),
		AuthzURL:             getEnv("AUTHZ_URL", ""),
		AuthzClientID:        getEnv("AUTHZ_CLIENT_ID", ""),
		FeedType:             getEnv("FEED_TYPE", FeedMemory),
		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		RedisDB:              getEnvAsInt("REDIS_DB", 0),
		NATSURL:              getEnv("NATS_URL", ""),
		GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
		GeminiModel:          getEnv("GEMINI_MODEL", "gemini-3-flash-preview"),
		GeminiBaseURL:        getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		VisionTimeout:        getEnvAsDuration("VISION_TIMEOUT", 45*time.Second),
		ProfileRetryAttempts: getEnvAsInt("PROFILE_RETRY_ATTEMPTS", 3),
		ProfileRetryDelay:    getEnvAsDuration("PROFILE_RETRY_DELAY", 800*time.Millisecond),
		HistoryPageSize:      getEnvAsInt("HISTORY_PAGE_SIZE", 50),
		NoteReadoutDelay:     getEnvAsDuration("NOTE_READOUT_DELAY", 1500*time.Millisecond),
		SessionIdleTimeout:   getEnvAsDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		SpeechCommand:        getEnv("SPEECH_COMMAND", "espeak"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the required fields for the selected backend and feed
func (cfg *Config) Validate() error {
	switch cfg.Backend {
	case BackendRemote:
		if cfg.DBDatabase == "" {
			return fmt.Errorf("DB_DATABASE is required")
		}
		if cfg.AuthzURL == "" {
			return fmt.Errorf("AUTHZ_URL is required")
		}
		if cfg.AuthzClientID == "" {
			return fmt.Errorf("AUTHZ_CLIENT_ID is required")
		}
	case BackendLocal:
	default:
		return fmt.Errorf("unsupported BACKEND: %s", cfg.Backend)
	}

	switch cfg.FeedType {
	case FeedMemory:
	case FeedRedis:
		if cfg.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for FEED_TYPE=redis")
		}
	case FeedNATS:
		if cfg.NATSURL == "" {
			return fmt.Errorf("NATS_URL is required for FEED_TYPE=nats")
		}
	default:
		return fmt.Errorf("unsupported FEED_TYPE: %s", cfg.FeedType)
	}

	if cfg.ProfileRetryAttempts < 1 {
		return fmt.Errorf("PROFILE_RETRY_ATTEMPTS must be at least 1")
	}
	if cfg.HistoryPageSize < 1 {
		return fmt.Errorf("HISTORY_PAGE_SIZE must be at least 1")
	}
	if cfg.SessionIdleTimeout <= 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT must be positive")
	}

	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go durations ("800ms") or plain milliseconds ("800")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
