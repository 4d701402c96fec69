package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"tablebook/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Storage    StorageConfig    `yaml:"storage"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	API        APIConfig        `yaml:"api"`
	Auth       AuthConfig       `yaml:"auth"`
	Booking    BookingConfig    `yaml:"booking"`
	Calendar   CalendarConfig   `yaml:"calendar"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type StorageConfig struct {
	Driver     string         `yaml:"driver"`
	SQLitePath string         `yaml:"sqlite_path"`
	Postgres   PostgresConfig `yaml:"postgres"`
	Mongo      MongoConfig    `yaml:"mongo"`
}

type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	MaxConnections int32  `yaml:"max_connections"`
}

type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Key      string `yaml:"key"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
	// BookingRateLimit commits per holder within BookingRateWindow seconds.
	BookingRateLimit  int `yaml:"booking_rate_limit"`
	BookingRateWindow int `yaml:"booking_rate_window"`
}

type BookingConfig struct {
	MaxCommitRetries int           `yaml:"max_commit_retries"`
	RetryBaseDelay   time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay    time.Duration `yaml:"retry_max_delay"`
}

type CalendarConfig struct {
	Enabled      bool          `yaml:"enabled"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	QueueSize    int           `yaml:"queue_size"`
	Summary      string        `yaml:"summary"`
	Timeout      time.Duration `yaml:"timeout"`
	DeadLetter   string        `yaml:"dead_letter_key"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" || c.Auth.JWTSecret == "CHANGE_ME" {
		return errors.New("auth jwt secret is required")
	}

	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("storage sqlite_path is required")
		}
	case DriverRedis:
		if c.Redis.Address == "" {
			return errors.New("redis address is required for the redis driver")
		}
	case DriverPostgres:
		if c.Storage.Postgres.DSN == "" {
			return errors.New("storage postgres dsn is required")
		}
	case DriverMongo:
		if c.Storage.Mongo.URI == "" {
			return errors.New("storage mongo uri is required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if c.Booking.MaxCommitRetries < 1 {
		return fmt.Errorf("booking max_commit_retries must be positive, got %d", c.Booking.MaxCommitRetries)
	}
	if c.Booking.RetryMaxDelay < c.Booking.RetryBaseDelay {
		return errors.New("booking retry_max_delay must not be below retry_base_delay")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "tablebook"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverSQLite
	}
	if c.Storage.Driver == DriverSQLite && c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "data/tablebook.db"
	}
	if c.Storage.Postgres.MaxConnections == 0 {
		c.Storage.Postgres.MaxConnections = 10
	}
	if c.Storage.Mongo.Database == "" {
		c.Storage.Mongo.Database = "tablebook"
	}
	if c.Storage.Mongo.Collection == "" {
		c.Storage.Mongo.Collection = "slots"
	}
	if c.Redis.Key == "" {
		c.Redis.Key = "tablebook:slots"
	}

	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 10
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 20
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}
	if c.Auth.BookingRateLimit == 0 {
		c.Auth.BookingRateLimit = models.BookingRateLimit
	}
	if c.Auth.BookingRateWindow == 0 {
		c.Auth.BookingRateWindow = models.BookingRateWindow
	}

	if c.Booking.MaxCommitRetries == 0 {
		c.Booking.MaxCommitRetries = models.DefaultCommitRetries
	}
	if c.Booking.RetryBaseDelay == 0 {
		c.Booking.RetryBaseDelay = 10 * time.Millisecond
	}
	if c.Booking.RetryMaxDelay == 0 {
		c.Booking.RetryMaxDelay = 200 * time.Millisecond
	}

	if c.Calendar.QueueSize == 0 {
		c.Calendar.QueueSize = models.CalendarQueueSize
	}
	if c.Calendar.Summary == "" {
		c.Calendar.Summary = models.CalendarSummary
	}
	if c.Calendar.Timeout == 0 {
		c.Calendar.Timeout = 10 * time.Second
	}
	if c.Calendar.DeadLetter == "" {
		c.Calendar.DeadLetter = "tablebook:calendar:dead"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}
