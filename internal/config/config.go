package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/sla"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	SLA          SLAConfig
	Bulk         BulkConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
	LockTimeoutMs  int
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
	// FilePath enables a rotated log file in addition to stdout.
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AuthConfig defines token verification parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// NotificationConfig configures intent delivery sinks.
type NotificationConfig struct {
	QueueKey    string
	QueueMaxLen int64
	BufferSize  int
	EmailFrom   string
	WebhookURL  string
}

// SLAConfig holds the priority policy and lifecycle windows.
type SLAConfig struct {
	Policy            sla.Policy
	ReopenWindowHours int
	SweepCron         string
	SweepBatchSize    int
}

// BulkConfig bounds bulk executions.
type BulkConfig struct {
	Workers  int
	MaxItems int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	policy := loadPolicy()
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid SLA policy: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk-engine"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
			LockTimeoutMs:  getEnvAsInt("POSTGRES_LOCK_TIMEOUT_MS", 5000),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			FilePath:   os.Getenv("LOG_FILE_PATH"),
			MaxSizeMB:  getEnvAsInt("LOG_FILE_MAX_SIZE_MB", 100),
			MaxBackups: getEnvAsInt("LOG_FILE_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvAsInt("LOG_FILE_MAX_AGE_DAYS", 28),
			Compress:   getEnvAsBool("LOG_FILE_COMPRESS", true),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Notification: NotificationConfig{
			QueueKey:    getEnv("NOTIFY_QUEUE_KEY", "helpdesk:notifications"),
			QueueMaxLen: int64(getEnvAsInt("NOTIFY_QUEUE_MAX_LEN", 10000)),
			BufferSize:  getEnvAsInt("NOTIFY_BUFFER_SIZE", 1024),
			EmailFrom:   getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL:  getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
		SLA: SLAConfig{
			Policy:            policy,
			ReopenWindowHours: getEnvAsInt("SLA_REOPEN_WINDOW_HOURS", 72),
			SweepCron:         getEnv("SLA_ESCALATION_SWEEP_CRON", "@every 5m"),
			SweepBatchSize:    getEnvAsInt("SLA_ESCALATION_SWEEP_BATCH", 500),
		},
		Bulk: BulkConfig{
			Workers:  getEnvAsInt("BULK_WORKERS", 8),
			MaxItems: getEnvAsInt("BULK_MAX_ITEMS", 500),
		},
	}

	return cfg, nil
}

// loadPolicy overlays SLA_<PRIORITY>_{RESPONSE,RESOLUTION,ESCALATION}_HOURS on the defaults.
func loadPolicy() sla.Policy {
	policy := sla.DefaultPolicy()
	for _, priority := range domain.AllPriorities {
		target := policy[priority]
		prefix := "SLA_" + strings.ToUpper(string(priority))
		target.ResponseHours = getEnvAsInt(prefix+"_RESPONSE_HOURS", target.ResponseHours)
		target.ResolutionHours = getEnvAsInt(prefix+"_RESOLUTION_HOURS", target.ResolutionHours)
		target.EscalationHours = getEnvAsInt(prefix+"_ESCALATION_HOURS", target.EscalationHours)
		policy[priority] = target
	}
	return policy
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

// ReopenWindow returns how long a resolved ticket may be reopened.
func (s SLAConfig) ReopenWindow() time.Duration {
	return time.Duration(s.ReopenWindowHours) * time.Hour
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
