package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Storage      StorageConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Archive      ArchiveConfig
	RateLimit    RateLimitConfig
	Telemetry    TelemetryConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	PublicBaseURL         string
	CORSOrigins           string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr               string
	Password           string
	DB                 int
	PoolSize           int
	DialTimeoutSeconds int
}

// StorageConfig points at the S3-compatible bucket holding uploads.
type StorageConfig struct {
	Endpoint       string
	AccessKey      string
	SecretKey      string
	Bucket         string
	UseSSL         bool
	MaxUploadBytes int64
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// NotificationConfig tunes the outbox relay, the notification queue and
// the delivery worker.
type NotificationConfig struct {
	QueueKey            string
	PollIntervalSeconds int
	MaxAttempts         int
	OutboxPollMillis    int
	OutboxBatchSize     int
	OutboxLeaseSeconds  int
}

// ArchiveConfig controls the completed -> archived sweep.
type ArchiveConfig struct {
	SweepIntervalMinutes int
	AfterHours           int
}

// RateLimitConfig bounds requests per client IP.
type RateLimitConfig struct {
	PerMinute int
}

// TelemetryConfig enables OTLP trace export when an endpoint is set.
type TelemetryConfig struct {
	OTLPEndpoint string
	Insecure     bool
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxUpload, err := strconv.ParseInt(getEnv("STORAGE_MAX_UPLOAD_BYTES", "5242880"), 10, 64)
	if err != nil || maxUpload <= 0 {
		return nil, fmt.Errorf("invalid STORAGE_MAX_UPLOAD_BYTES: %q", os.Getenv("STORAGE_MAX_UPLOAD_BYTES"))
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "facility-desk"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8000"),
			Version:               getEnv("APP_VERSION", "dev"),
			PublicBaseURL:         strings.TrimRight(getEnv("APP_PUBLIC_BASE_URL", "http://localhost:8000"), "/"),
			CORSOrigins:           getEnv("APP_CORS_ORIGINS", "http://localhost:3000"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:               getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:           os.Getenv("REDIS_PASSWORD"),
			DB:                 redisDB,
			PoolSize:           getEnvAsInt("REDIS_POOL_SIZE", 10),
			DialTimeoutSeconds: getEnvAsInt("REDIS_DIAL_TIMEOUT_SECONDS", 5),
		},
		Storage: StorageConfig{
			Endpoint:       getEnv("STORAGE_ENDPOINT", "127.0.0.1:9000"),
			AccessKey:      getEnv("STORAGE_ACCESS_KEY", "minioadmin"),
			SecretKey:      getEnv("STORAGE_SECRET_KEY", "minioadmin"),
			Bucket:         getEnv("STORAGE_BUCKET", "facility-desk"),
			UseSSL:         getEnvAsBool("STORAGE_USE_SSL", false),
			MaxUploadBytes: maxUpload,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 720),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Notification: NotificationConfig{
			QueueKey:            getEnv("NOTIFY_QUEUE_KEY", "facility-desk:notifications"),
			PollIntervalSeconds: getEnvAsInt("NOTIFY_POLL_INTERVAL_SECONDS", 2),
			MaxAttempts:         getEnvAsInt("NOTIFY_MAX_ATTEMPTS", 5),
			OutboxPollMillis:    getEnvAsInt("NOTIFY_OUTBOX_POLL_MS", 500),
			OutboxBatchSize:     getEnvAsInt("NOTIFY_OUTBOX_BATCH_SIZE", 100),
			OutboxLeaseSeconds:  getEnvAsInt("NOTIFY_OUTBOX_LEASE_SECONDS", 30),
		},
		Archive: ArchiveConfig{
			SweepIntervalMinutes: getEnvAsInt("ARCHIVE_SWEEP_INTERVAL_MINUTES", 60),
			AfterHours:           getEnvAsInt("ARCHIVE_AFTER_HOURS", 24*30),
		},
		RateLimit: RateLimitConfig{
			PerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 300),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			Insecure:     getEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// DialTimeout returns the connect timeout for Redis.
func (r RedisConfig) DialTimeout() time.Duration {
	if r.DialTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(r.DialTimeoutSeconds) * time.Second
}

// PollInterval returns how long the worker waits on an empty queue.
func (n NotificationConfig) PollInterval() time.Duration {
	if n.PollIntervalSeconds <= 0 {
		return 2 * time.Second
	}
	return time.Duration(n.PollIntervalSeconds) * time.Second
}

// OutboxPollInterval returns how often the relay looks for new events.
func (n NotificationConfig) OutboxPollInterval() time.Duration {
	if n.OutboxPollMillis <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(n.OutboxPollMillis) * time.Millisecond
}

// OutboxLease returns how long a claimed event stays hidden from other relays.
func (n NotificationConfig) OutboxLease() time.Duration {
	if n.OutboxLeaseSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(n.OutboxLeaseSeconds) * time.Second
}

// SweepInterval returns the archival sweep period.
func (a ArchiveConfig) SweepInterval() time.Duration {
	if a.SweepIntervalMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(a.SweepIntervalMinutes) * time.Minute
}

// RetainCompleted returns how long a completed request stays in the active board.
func (a ArchiveConfig) RetainCompleted() time.Duration {
	if a.AfterHours <= 0 {
		return 30 * 24 * time.Hour
	}
	return time.Duration(a.AfterHours) * time.Hour
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
