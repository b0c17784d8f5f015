package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultJWTSecret = "default-secret-change-in-production"

type Config struct {
	Port string
	Env  string

	DatabaseURL    string
	DBMaxConns     int
	DBAcquireWait  time.Duration
	DBIdleTimeout  time.Duration
	UploadDir      string
	MaxUploadBytes int64

	JWTSecret string
	JWTTTL    time.Duration

	FrontendURL string
	APIURL      string

	StripeSecretKey     string
	StripeWebhookSecret string
	CommissionRate      float64
	Currency            string

	RedisURL        string
	RateLimitMax    int
	RateLimitWindow time.Duration

	LogLevel string

	AdminEmail    string
	AdminPassword string
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:                getEnv("PORT", "3001"),
		Env:                 strings.ToLower(getEnv("APP_ENV", "development")),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		DBMaxConns:          getEnvInt("DB_MAX_CONNS", 20),
		DBAcquireWait:       getEnvDuration("DB_ACQUIRE_TIMEOUT", 5*time.Second),
		DBIdleTimeout:       getEnvDuration("DB_IDLE_TIMEOUT", 30*time.Second),
		UploadDir:           getEnv("UPLOAD_DIR", "./uploads"),
		MaxUploadBytes:      getEnvInt64("MAX_FILE_SIZE", 100*1024*1024),
		JWTSecret:           getEnv("JWT_SECRET", defaultJWTSecret),
		JWTTTL:              getEnvDuration("JWT_EXPIRES_IN", 7*24*time.Hour),
		FrontendURL:         strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
		APIURL:              strings.TrimRight(getEnv("API_URL", "http://localhost:3001"), "/"),
		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		CommissionRate:      getEnvFloat("STRIPE_COMMISSION", 0.15),
		Currency:            strings.ToLower(getEnv("STRIPE_CURRENCY", "eur")),
		RedisURL:            getEnv("REDIS_URL", ""),
		RateLimitMax:        getEnvInt("RATE_LIMIT_MAX", 100),
		RateLimitWindow:     getEnvDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
		LogLevel:            strings.ToLower(getEnv("LOG_LEVEL", "info")),
		AdminEmail:          strings.ToLower(strings.TrimSpace(getEnv("ADMIN_EMAIL", ""))),
		AdminPassword:       getEnv("ADMIN_PASSWORD", ""),
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = buildDSN(cfg.DBAcquireWait)
	}
	if cfg.CommissionRate < 0 || cfg.CommissionRate > 1 {
		return nil, fmt.Errorf("STRIPE_COMMISSION must be within [0,1], got %v", cfg.CommissionRate)
	}
	if cfg.IsProduction() && cfg.JWTSecret == defaultJWTSecret {
		return nil, errors.New("JWT_SECRET must be set in production")
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool { return c.Env == "production" }

func (c *Config) IsDevelopment() bool { return c.Env == "development" }

func buildDSN(connectTimeout time.Duration) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(getEnv("DB_USER", "nexusstore_user"), getEnv("DB_PASSWORD", "")),
		Host:   getEnv("DB_HOST", "localhost") + ":" + getEnv("DB_PORT", "5432"),
		Path:   "/" + getEnv("DB_NAME", "nexusstore"),
	}
	q := url.Values{}
	q.Set("sslmode", getEnv("DB_SSLMODE", "disable"))
	secs := int(connectTimeout / time.Second)
	if secs < 1 {
		secs = 1
	}
	q.Set("connect_timeout", strconv.Itoa(secs))
	u.RawQuery = q.Encode()
	return u.String()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil && intValue > 0 {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil && intValue > 0 {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

// ParseDuration accepts time.ParseDuration syntax plus a whole-day suffix ("7d").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, fmt.Errorf("invalid day duration %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
