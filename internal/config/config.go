package config

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	CORS        CORSConfig
	RateLimit   RateLimitConfig
	Log         LogConfig
	Sync        SyncConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Mirror      MirrorConfig
	Maintenance MaintenanceConfig
}

type AppConfig struct {
	Name  string
	Env   string
	Port  string
	Debug bool
}

type DatabaseConfig struct {
	Driver   string // postgres or sqlite
	Path     string // sqlite file
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	Timezone string
}

type JWTConfig struct {
	Secret      string
	ExpiryHours time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

type RateLimitConfig struct {
	Requests int
	Duration int
}

type LogConfig struct {
	Level  string
	Format string
}

// SyncConfig configures the replication job and its transport.
type SyncConfig struct {
	JobName              string
	RemoteURL            string
	TokenURL             string
	ClientID             string
	ClientSecret         string
	Schedule             string
	ProductBatchSize     int
	TransactionBatchSize int
	MaxAttempts          int
	InitialBackoff       time.Duration
	MaxBackoff           time.Duration
	RequestTimeout       time.Duration
	RunTimeout           time.Duration
	RequestsPerSecond    float64
	CursorOverlap        time.Duration
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

// MirrorConfig configures the reference analytics mirror server.
type MirrorConfig struct {
	Port             string
	ClientID         string
	ClientSecretHash string
	JWTSecret        string
	TokenTTL         time.Duration
	DatabasePath     string
}

type MaintenanceConfig struct {
	IdempotencyCleanupSchedule string
}

// Load reads configuration from path (a .env file) and the environment.
// A missing file is not an error; environment variables and defaults apply.
func Load(path string) *Config {
	v := viper.New()
	if path == "" {
		path = ".env"
	}
	v.SetConfigFile(path)
	v.SetConfigType("env")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("config file not read, using environment variables")
	}

	setDefaults(v)

	return &Config{
		App: AppConfig{
			Name:  v.GetString("APP_NAME"),
			Env:   v.GetString("APP_ENV"),
			Port:  v.GetString("APP_PORT"),
			Debug: v.GetBool("APP_DEBUG"),
		},
		Database: DatabaseConfig{
			Driver:   v.GetString("DB_DRIVER"),
			Path:     v.GetString("DB_PATH"),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			Name:     v.GetString("DB_NAME"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			SSLMode:  v.GetString("DB_SSL_MODE"),
			Timezone: v.GetString("DB_TIMEZONE"),
		},
		JWT: JWTConfig{
			Secret:      v.GetString("JWT_SECRET"),
			ExpiryHours: time.Duration(v.GetInt("JWT_EXPIRY_HOURS")) * time.Hour,
		},
		CORS: CORSConfig{
			AllowedOrigins: v.GetStringSlice("CORS_ALLOWED_ORIGINS"),
			AllowedMethods: v.GetStringSlice("CORS_ALLOWED_METHODS"),
			AllowedHeaders: v.GetStringSlice("CORS_ALLOWED_HEADERS"),
		},
		RateLimit: RateLimitConfig{
			Requests: v.GetInt("RATE_LIMIT_REQUESTS"),
			Duration: v.GetInt("RATE_LIMIT_DURATION"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Sync: SyncConfig{
			JobName:              v.GetString("SYNC_JOB_NAME"),
			RemoteURL:            v.GetString("SYNC_REMOTE_URL"),
			TokenURL:             v.GetString("SYNC_TOKEN_URL"),
			ClientID:             v.GetString("SYNC_CLIENT_ID"),
			ClientSecret:         v.GetString("SYNC_CLIENT_SECRET"),
			Schedule:             v.GetString("SYNC_SCHEDULE"),
			ProductBatchSize:     v.GetInt("SYNC_PRODUCT_BATCH_SIZE"),
			TransactionBatchSize: v.GetInt("SYNC_TRANSACTION_BATCH_SIZE"),
			MaxAttempts:          v.GetInt("SYNC_MAX_ATTEMPTS"),
			InitialBackoff:       v.GetDuration("SYNC_INITIAL_BACKOFF"),
			MaxBackoff:           v.GetDuration("SYNC_MAX_BACKOFF"),
			RequestTimeout:       v.GetDuration("SYNC_REQUEST_TIMEOUT"),
			RunTimeout:           v.GetDuration("SYNC_RUN_TIMEOUT"),
			RequestsPerSecond:    v.GetFloat64("SYNC_REQUESTS_PER_SECOND"),
			CursorOverlap:        v.GetDuration("SYNC_CURSOR_OVERLAP"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("REDIS_ENABLED"),
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			LockTTL:  v.GetDuration("REDIS_LOCK_TTL"),
		},
		Kafka: KafkaConfig{
			Enabled: v.GetBool("KAFKA_ENABLED"),
			Brokers: v.GetStringSlice("KAFKA_BROKERS"),
			Topic:   v.GetString("KAFKA_TOPIC"),
		},
		Mirror: MirrorConfig{
			Port:             v.GetString("MIRROR_PORT"),
			ClientID:         v.GetString("MIRROR_CLIENT_ID"),
			ClientSecretHash: v.GetString("MIRROR_CLIENT_SECRET_HASH"),
			JWTSecret:        v.GetString("MIRROR_JWT_SECRET"),
			TokenTTL:         v.GetDuration("MIRROR_TOKEN_TTL"),
			DatabasePath:     v.GetString("MIRROR_DB_PATH"),
		},
		Maintenance: MaintenanceConfig{
			IdempotencyCleanupSchedule: v.GetString("MAINTENANCE_IDEMPOTENCY_SCHEDULE"),
		},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "tillsync")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("APP_DEBUG", true)
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_PATH", "tillsync.db")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "tillsync")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_TIMEZONE", "Africa/Lagos")
	v.SetDefault("JWT_SECRET", "change-this-secret-in-production")
	v.SetDefault("JWT_EXPIRY_HOURS", 12)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("CORS_ALLOWED_HEADERS", []string{})
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_DURATION", 60)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SYNC_JOB_NAME", "mirror-sync")
	v.SetDefault("SYNC_REMOTE_URL", "http://localhost:8090")
	v.SetDefault("SYNC_TOKEN_URL", "http://localhost:8090/oauth/token")
	v.SetDefault("SYNC_CLIENT_ID", "till")
	v.SetDefault("SYNC_CLIENT_SECRET", "")
	v.SetDefault("SYNC_SCHEDULE", "@every 30m")
	v.SetDefault("SYNC_PRODUCT_BATCH_SIZE", 50)
	v.SetDefault("SYNC_TRANSACTION_BATCH_SIZE", 20)
	v.SetDefault("SYNC_MAX_ATTEMPTS", 3)
	v.SetDefault("SYNC_INITIAL_BACKOFF", "2s")
	v.SetDefault("SYNC_MAX_BACKOFF", "30s")
	v.SetDefault("SYNC_REQUEST_TIMEOUT", "30s")
	v.SetDefault("SYNC_RUN_TIMEOUT", "10m")
	v.SetDefault("SYNC_REQUESTS_PER_SECOND", 5)
	v.SetDefault("SYNC_CURSOR_OVERLAP", "5m")

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_LOCK_TTL", "15m")

	v.SetDefault("KAFKA_ENABLED", false)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_TOPIC", "till.settlements")

	v.SetDefault("MIRROR_PORT", "8090")
	v.SetDefault("MIRROR_CLIENT_ID", "till")
	v.SetDefault("MIRROR_CLIENT_SECRET_HASH", "")
	v.SetDefault("MIRROR_JWT_SECRET", "change-this-mirror-secret")
	v.SetDefault("MIRROR_TOKEN_TTL", "1h")
	v.SetDefault("MIRROR_DB_PATH", "mirror.db")

	v.SetDefault("MAINTENANCE_IDEMPOTENCY_SCHEDULE", "@every 1h")
}

func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.Name +
		" port=" + c.Port +
		" sslmode=" + c.SSLMode +
		" TimeZone=" + c.Timezone
}

// Validate reports settings the sync job cannot run without.
func (c *SyncConfig) Validate() error {
	if c.RemoteURL == "" {
		return fmt.Errorf("SYNC_REMOTE_URL is required")
	}
	if c.TokenURL == "" {
		return fmt.Errorf("SYNC_TOKEN_URL is required")
	}
	if c.ProductBatchSize <= 0 || c.TransactionBatchSize <= 0 {
		return fmt.Errorf("sync batch sizes must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("SYNC_MAX_ATTEMPTS must be positive")
	}
	return nil
}
