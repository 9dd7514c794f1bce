package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"jewelshot/internal/backoff"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv        string
	Port          string
	DatabaseURL   string
	JWTSecret     string
	DefaultLocale string
	CORSOrigins   []string

	RedisAddr      string
	RedisDB        int
	AMQPURL        string
	NotifyExchange string

	StorageDriver  string
	StoragePath    string
	StorageBaseURL string
	S3Endpoint     string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UseSSL       bool
	S3PresignTTL   time.Duration
	GeoIPDBPath    string

	ProviderBaseURL   string
	ProviderAPIKeys   []string
	ProviderMode      string
	ProviderTimeout   time.Duration
	ProviderRPSPerKey float64

	WorkerConcurrency int
	QueueLease        time.Duration
	QueuePoll         time.Duration
	LaneWeights       string
	RetryBase         time.Duration
	RetryCap          time.Duration
	RetryMaxAttempts  int
	BatchMaxAttempts  int

	RateLimitUser     int
	RateLimitGlobal   int
	RateLimitWindow   time.Duration
	RateLimitAdvisory int

	LowCreditThreshold int64
	ReservationTTL     time.Duration
	ReaperInterval     time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:        getEnv("APP_ENV", "development"),
		Port:          port,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		DefaultLocale: getEnv("DEFAULT_LOCALE", "en"),
		CORSOrigins:   getEnvList("CORS_ALLOWED_ORIGINS"),

		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		AMQPURL:        os.Getenv("AMQP_URL"),
		NotifyExchange: getEnv("NOTIFY_EXCHANGE", "jewelshot.events"),

		StorageDriver:  strings.ToLower(getEnv("STORAGE_DRIVER", "file")),
		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"),
		S3Endpoint:     os.Getenv("S3_ENDPOINT"),
		S3Bucket:       os.Getenv("S3_BUCKET"),
		S3AccessKey:    os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:    os.Getenv("S3_SECRET_KEY"),
		S3UseSSL:       getEnvBool("S3_USE_SSL", true),
		S3PresignTTL:   getEnvSeconds("S3_PRESIGN_TTL_SECONDS", 3600),
		GeoIPDBPath:    os.Getenv("GEOIP_DB_PATH"),

		ProviderBaseURL:   getEnv("PROVIDER_BASE_URL", "https://fal.run"),
		ProviderAPIKeys:   getEnvList("PROVIDER_API_KEYS"),
		ProviderMode:      strings.ToLower(getEnv("PROVIDER_MODE", "remote")),
		ProviderTimeout:   getEnvSeconds("PROVIDER_TIMEOUT_SECONDS", 120),
		ProviderRPSPerKey: getEnvFloat("PROVIDER_RPS_PER_KEY", 5),

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),
		QueueLease:        getEnvSeconds("QUEUE_LEASE_SECONDS", 300),
		QueuePoll:         time.Millisecond * time.Duration(getEnvInt("QUEUE_POLL_MS", 2000)),
		LaneWeights:       getEnv("LANE_WEIGHTS", "interactive=6,batch=3,low=1"),
		RetryBase:         time.Millisecond * time.Duration(getEnvInt("RETRY_BASE_MS", 1000)),
		RetryCap:          time.Millisecond * time.Duration(getEnvInt("RETRY_CAP_MS", 5000)),
		RetryMaxAttempts:  getEnvInt("RETRY_MAX_ATTEMPTS", 3),
		BatchMaxAttempts:  getEnvInt("BATCH_MAX_ATTEMPTS", 2),

		RateLimitUser:     getEnvInt("RATE_LIMIT_USER", 20),
		RateLimitGlobal:   getEnvInt("RATE_LIMIT_GLOBAL", 600),
		RateLimitWindow:   getEnvSeconds("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitAdvisory: getEnvInt("RATE_LIMIT_ADVISORY", 30),

		LowCreditThreshold: int64(getEnvInt("LOW_CREDIT_THRESHOLD", 10)),
		ReservationTTL:     getEnvSeconds("RESERVATION_TTL_SECONDS", 900),
		ReaperInterval:     getEnvSeconds("REAPER_INTERVAL_SECONDS", 60),

		HTTPReadTimeout:  getEnvSeconds("HTTP_READ_TIMEOUT_SECONDS", 15),
		HTTPWriteTimeout: getEnvSeconds("HTTP_WRITE_TIMEOUT_SECONDS", 150),
		HTTPIdleTimeout:  getEnvSeconds("HTTP_IDLE_TIMEOUT_SECONDS", 60),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.WorkerConcurrency < 1 {
		return nil, fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}
	switch cfg.StorageDriver {
	case "file":
	case "s3":
		if cfg.S3Endpoint == "" || cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3_ENDPOINT and S3_BUCKET are required when STORAGE_DRIVER=s3")
		}
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.StorageDriver)
	}
	switch cfg.ProviderMode {
	case "remote", "synthetic":
	default:
		return nil, fmt.Errorf("unsupported PROVIDER_MODE %q", cfg.ProviderMode)
	}

	return cfg, nil
}

// RequireJWT is called by binaries that verify bearer tokens.
func (c *Config) RequireJWT() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return nil
}

// Backoff is the retry policy shared by queued jobs and batch units.
func (c *Config) Backoff() backoff.Policy {
	return backoff.Policy{Base: c.RetryBase, Cap: c.RetryCap, MaxAttempts: c.RetryMaxAttempts}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Second * time.Duration(getEnvInt(key, fallback))
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
