package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: every environment variable is read here and nowhere else
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	Database  DatabaseConfig
	Redis     RedisConfig
	Provider  ProviderConfig
	Screening ScreeningConfig
	Scheduler SchedulerConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
	Prefix   string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// ProviderConfig holds the market-data provider settings used by ingestion
type ProviderConfig struct {
	BaseURL      string
	UserAgent    string
	Timeout      time.Duration
	RatePerSec   float64
	Burst        int
	MaxRetries   int
	Workers      int
	HistoryYears int
	ListingPages int
}

// ScreeningConfig holds engine limits
type ScreeningConfig struct {
	Workers         int
	HistoryYears    int
	DefaultPageSize int
	MaxPageSize     int
	CacheTTL        time.Duration
	PresetDir       string
}

// SchedulerConfig holds cron specs (6 fields, seconds first)
type SchedulerConfig struct {
	IngestSpec      string
	ScreeningSpec   string
	QualitySpec     string
	MaintenanceSpec string
	RetentionDays   int // screening runs and quality reports older than this are pruned
	MaxRetries      int
	RetryDelay      time.Duration
}

// Load reads configuration from environment variables
// ⭐ SSOT: the only function that calls os.Getenv()
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Prefix:   getEnv("REDIS_PREFIX", "screener"),
		},

		Provider: ProviderConfig{
			BaseURL:      getEnv("PROVIDER_BASE_URL", "https://kabutan.jp"),
			UserAgent:    getEnv("PROVIDER_USER_AGENT", "Mozilla/5.0 (compatible; aegis-screener/1.0)"),
			Timeout:      getEnvAsDuration("PROVIDER_TIMEOUT", "30s"),
			RatePerSec:   getEnvAsFloat("PROVIDER_RATE_PER_SEC", 2),
			Burst:        getEnvAsInt("PROVIDER_BURST", 1),
			MaxRetries:   getEnvAsInt("PROVIDER_MAX_RETRIES", 3),
			Workers:      getEnvAsInt("PROVIDER_WORKERS", 4),
			HistoryYears: getEnvAsInt("PROVIDER_HISTORY_YEARS", 10),
			ListingPages: getEnvAsInt("PROVIDER_LISTING_PAGES", 40),
		},

		Screening: ScreeningConfig{
			Workers:         getEnvAsInt("SCREENING_WORKERS", 8),
			HistoryYears:    getEnvAsInt("SCREENING_HISTORY_YEARS", 10),
			DefaultPageSize: getEnvAsInt("SCREENING_PAGE_SIZE", 50),
			MaxPageSize:     getEnvAsInt("SCREENING_MAX_PAGE_SIZE", 500),
			CacheTTL:        getEnvAsDuration("SCREENING_CACHE_TTL", "24h"),
			PresetDir:       getEnv("SCREENING_PRESET_DIR", "presets"),
		},

		Scheduler: SchedulerConfig{
			IngestSpec:      getEnv("SCHEDULE_INGEST", "0 0 18 * * 1-5"),
			ScreeningSpec:   getEnv("SCHEDULE_SCREENING", "0 30 19 * * 1-5"),
			QualitySpec:     getEnv("SCHEDULE_QUALITY", "0 0 20 * * 1-5"),
			MaintenanceSpec: getEnv("SCHEDULE_MAINTENANCE", "0 0 3 * * 0"),
			RetentionDays:   getEnvAsInt("SCHEDULE_RETENTION_DAYS", 90),
			MaxRetries:      getEnvAsInt("SCHEDULE_MAX_RETRIES", 3),
			RetryDelay:      getEnvAsDuration("SCHEDULE_RETRY_DELAY", "1m"),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks that configured values are usable
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Screening.Workers < 1 {
		return fmt.Errorf("SCREENING_WORKERS must be >= 1")
	}
	if c.Screening.DefaultPageSize < 1 {
		return fmt.Errorf("SCREENING_PAGE_SIZE must be >= 1")
	}
	if c.Screening.MaxPageSize < c.Screening.DefaultPageSize {
		return fmt.Errorf("SCREENING_MAX_PAGE_SIZE (%d) must be >= SCREENING_PAGE_SIZE (%d)",
			c.Screening.MaxPageSize, c.Screening.DefaultPageSize)
	}

	if c.Provider.RatePerSec <= 0 {
		return fmt.Errorf("PROVIDER_RATE_PER_SEC must be > 0")
	}
	if c.Provider.Workers < 1 {
		return fmt.Errorf("PROVIDER_WORKERS must be >= 1")
	}

	if c.Scheduler.RetentionDays < 1 {
		return fmt.Errorf("SCHEDULE_RETENTION_DAYS must be >= 1")
	}
	if c.Scheduler.MaxRetries < 0 {
		return fmt.Errorf("SCHEDULE_MAX_RETRIES must be >= 0")
	}

	return nil
}

// RequireDatabase reports an error when no database URL is configured.
// Commands that can run from fixtures call it only when they need Postgres.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
