// Package config builds the service configuration from environment variables.
// A .env file in the working directory is loaded first when present.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	pstrings "scholarship/pkg/platform/strings"
)

// Config is the complete service configuration.
type Config struct {
	Server      Server
	Auth        Auth
	Database    Database
	Redis       RedisConfig
	Kafka       Kafka
	Storage     Storage
	Fraud       Fraud
	Eligibility Eligibility
	Sweep       Sweep
	Outbox      Outbox
	Policy      Policy
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	Environment     string
	ShutdownTimeout time.Duration
}

type Auth struct {
	JWTSigningKey string
	Issuer        string
	Audience      string
}

// Database selects Postgres when URL is set; in-memory stores otherwise.
type Database struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	TxTimeout       time.Duration
}

// RedisConfig is optional; an empty URL disables Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka is optional; no brokers means notifications go to the log only and
// the outbox relay is disabled.
type Kafka struct {
	Brokers           []string
	ClientID          string
	NotificationTopic string
	AuditTopic        string
}

type Storage struct {
	UploadDir     string
	PublicBaseURL string
	MaxFileBytes  int64
	MaxFiles      int
}

// Fraud configures the external scorer. An empty URL disables scoring.
type Fraud struct {
	URL              string
	Timeout          time.Duration
	FailureThreshold int
	Cooldown         time.Duration
}

type Eligibility struct {
	IncomeCeiling decimal.Decimal
	MinPercentage float64
	Categories    []string
}

type Sweep struct {
	Enabled  bool
	Interval time.Duration
	LockTTL  time.Duration
}

type Outbox struct {
	Interval  time.Duration
	BatchSize int
}

type Policy struct {
	// FingerprintKey keys the hash used to compare identity and bank numbers
	// across students without storing them in alert records.
	FingerprintKey string
}

// FromEnv loads .env (if any) and builds a Config from environment variables.
func FromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	incomeCeiling, err := decimal.NewFromString(getEnv("ELIGIBILITY_INCOME_CEILING", "250000"))
	if err != nil {
		return Config{}, fmt.Errorf("ELIGIBILITY_INCOME_CEILING: %w", err)
	}

	cfg := Config{
		Server: Server{
			Addr:            getEnv("SCHOLARSHIP_ADDR", ":8080"),
			Environment:     getEnv("ENVIRONMENT", "development"),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Auth: Auth{
			JWTSigningKey: os.Getenv("JWT_SIGNING_KEY"),
			Issuer:        getEnv("JWT_ISSUER", "scholarship"),
			Audience:      getEnv("JWT_AUDIENCE", "scholarship-api"),
		},
		Database: Database{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			TxTimeout:       getDuration("DB_TX_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers:           pstrings.SplitList(os.Getenv("KAFKA_BROKERS")),
			ClientID:          getEnv("KAFKA_CLIENT_ID", "scholarship"),
			NotificationTopic: getEnv("KAFKA_NOTIFICATION_TOPIC", "scholarship.notifications"),
			AuditTopic:        getEnv("KAFKA_AUDIT_TOPIC", "scholarship.audit"),
		},
		Storage: Storage{
			UploadDir:     getEnv("UPLOAD_DIR", "./uploads"),
			PublicBaseURL: getEnv("UPLOAD_PUBLIC_BASE_URL", "/files"),
			MaxFileBytes:  int64(getInt("UPLOAD_MAX_FILE_BYTES", 10<<20)),
			MaxFiles:      getInt("UPLOAD_MAX_FILES", 10),
		},
		Fraud: Fraud{
			URL:              os.Getenv("FRAUD_SCORER_URL"),
			Timeout:          getDuration("FRAUD_SCORER_TIMEOUT", 3*time.Second),
			FailureThreshold: getInt("FRAUD_SCORER_FAILURE_THRESHOLD", 5),
			Cooldown:         getDuration("FRAUD_SCORER_COOLDOWN", 30*time.Second),
		},
		Eligibility: Eligibility{
			IncomeCeiling: incomeCeiling,
			MinPercentage: getFloat("ELIGIBILITY_MIN_PERCENTAGE", 60),
			Categories:    pstrings.DedupeAndTrimUpper(pstrings.SplitList(getEnv("ELIGIBILITY_CATEGORIES", "SC,ST,OBC"))),
		},
		Sweep: Sweep{
			Enabled:  getEnv("EXPIRY_SWEEP_ENABLED", "true") == "true",
			Interval: getDuration("EXPIRY_SWEEP_INTERVAL", 24*time.Hour),
			LockTTL:  getDuration("EXPIRY_SWEEP_LOCK_TTL", 10*time.Minute),
		},
		Outbox: Outbox{
			Interval:  getDuration("OUTBOX_RELAY_INTERVAL", time.Second),
			BatchSize: getInt("OUTBOX_RELAY_BATCH_SIZE", 100),
		},
		Policy: Policy{
			FingerprintKey: os.Getenv("POLICY_FINGERPRINT_KEY"),
		},
	}

	if cfg.Auth.JWTSigningKey == "" {
		if cfg.IsProduction() {
			return Config{}, errors.New("JWT_SIGNING_KEY is required in production")
		}
		cfg.Auth.JWTSigningKey = "dev-secret-key-change-in-production"
	}
	if cfg.Policy.FingerprintKey == "" {
		cfg.Policy.FingerprintKey = cfg.Auth.JWTSigningKey
	}
	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}
