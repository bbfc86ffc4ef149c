package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/basel-ax/orthoview/internal/domain"
)

const (
	defaultModel          = "gemini-2.5-flash-image"
	defaultHTTPAddr       = ":8080"
	defaultMaxUploadBytes = 20 << 20
	defaultPruneSchedule  = "0 0 3 * * *"
)

// DBConfig holds database configuration for the generation archive
type DBConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string
	Format string
}

// Config holds all configuration for the application
type Config struct {
	GeminiAPIKey    string
	GeminiModel     string
	GeminiBaseURL   string
	GeminiTimeout   time.Duration
	HTTPAddr        string
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
	Log             LogConfig
	DB              DBConfig
	RetentionDays   int
	PruneSchedule   string
}

// Load loads the configuration from the environment, reading .env first when present
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds the configuration from a variable lookup function
func FromEnv(getenv func(string) string) (*Config, error) {
	config := &Config{
		GeminiAPIKey:  getenv("GEMINI_API_KEY"),
		GeminiModel:   getenv("GEMINI_MODEL"),
		GeminiBaseURL: getenv("GEMINI_BASE_URL"),
		HTTPAddr:      getenv("HTTP_ADDR"),
		PruneSchedule: getenv("ARCHIVE_PRUNE_SCHEDULE"),
		Log: LogConfig{
			Level:  getenv("LOG_LEVEL"),
			Format: getenv("LOG_FORMAT"),
		},
	}

	if config.GeminiAPIKey == "" {
		config.GeminiAPIKey = getenv("API_KEY")
	}
	if config.GeminiModel == "" {
		config.GeminiModel = defaultModel
	}
	if config.HTTPAddr == "" {
		config.HTTPAddr = defaultHTTPAddr
	}
	if config.PruneSchedule == "" {
		config.PruneSchedule = defaultPruneSchedule
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "json"
	}

	// Zero means no client-side timeout
	if timeout, err := strconv.Atoi(getenv("GEMINI_TIMEOUT")); err == nil {
		config.GeminiTimeout = time.Duration(timeout) * time.Second
	}

	if timeout, err := strconv.Atoi(getenv("SHUTDOWN_TIMEOUT")); err == nil {
		config.ShutdownTimeout = time.Duration(timeout) * time.Second
	} else {
		config.ShutdownTimeout = 5 * time.Second // default value
	}

	if maxBytes, err := strconv.ParseInt(getenv("MAX_UPLOAD_BYTES"), 10, 64); err == nil {
		config.MaxUploadBytes = maxBytes
	} else {
		config.MaxUploadBytes = defaultMaxUploadBytes
	}

	if days, err := strconv.Atoi(getenv("ARCHIVE_RETENTION_DAYS")); err == nil {
		config.RetentionDays = days
	} else {
		config.RetentionDays = 30 // default value
	}

	// Load database configuration
	dbConfig := DBConfig{
		Host:     getenv("DB_HOST"),
		User:     getenv("DB_USER"),
		Password: getenv("DB_PASSWORD"),
		Database: getenv("DB_NAME"),
		SSLMode:  getenv("DB_SSL_MODE"),
	}

	if dbConfig.SSLMode == "" {
		dbConfig.SSLMode = "disable"
	}

	if port, err := strconv.Atoi(getenv("DB_PORT")); err == nil {
		dbConfig.Port = port
	} else {
		dbConfig.Port = 5432 // default PostgreSQL port
	}

	if maxOpenConns, err := strconv.Atoi(getenv("DB_MAX_OPEN_CONNS")); err == nil {
		dbConfig.MaxOpenConns = maxOpenConns
	} else {
		dbConfig.MaxOpenConns = 10 // default value
	}

	if maxIdleConns, err := strconv.Atoi(getenv("DB_MAX_IDLE_CONNS")); err == nil {
		dbConfig.MaxIdleConns = maxIdleConns
	} else {
		dbConfig.MaxIdleConns = 5 // default value
	}

	if connMaxLifetime, err := strconv.Atoi(getenv("DB_CONN_MAX_LIFETIME")); err == nil {
		dbConfig.ConnMaxLifetime = time.Duration(connMaxLifetime) * time.Second
	} else {
		dbConfig.ConnMaxLifetime = 5 * time.Minute // default value
	}

	config.DB = dbConfig

	// Validate required fields
	if config.GeminiAPIKey == "" {
		return nil, &domain.ConfigurationError{Key: "GEMINI_API_KEY", Message: "is required"}
	}
	if config.MaxUploadBytes <= 0 {
		return nil, &domain.ConfigurationError{Key: "MAX_UPLOAD_BYTES", Message: "must be positive"}
	}

	// The archive is optional, but a partial database configuration is a mistake
	if config.ArchiveEnabled() {
		if config.DB.User == "" {
			return nil, &domain.ConfigurationError{Key: "DB_USER", Message: "is required when DB_HOST is set"}
		}
		if config.DB.Password == "" {
			return nil, &domain.ConfigurationError{Key: "DB_PASSWORD", Message: "is required when DB_HOST is set"}
		}
		if config.DB.Database == "" {
			return nil, &domain.ConfigurationError{Key: "DB_NAME", Message: "is required when DB_HOST is set"}
		}
	}

	return config, nil
}

// ArchiveEnabled reports whether generation runs should be stored in PostgreSQL
func (c *Config) ArchiveEnabled() bool {
	return c.DB.Host != ""
}

// GetDSN returns the PostgreSQL connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}
