// Package config loads service settings from the environment and an optional .env file.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all settings for the trade service.
type Config struct {
	// HTTP
	Port string

	// Postgres
	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string

	// Redis, shared by the asynq queue and the snapshot cache
	RedisAddr     string
	CacheURL      string
	CacheTTL      time.Duration
	AlertsEnabled bool

	// Auth
	JWTSecret           string
	TokenLifetime       time.Duration
	AdminBootstrapToken string

	// Collaborators
	ScoringURL     string
	ScoringTimeout time.Duration
	ScoringAPIKey  string
	UploadDir      string
	S3Bucket       string
	S3Prefix       string
	S3Region       string
	S3Endpoint     string

	// Progression
	LevelTablePath string
	LevelWidths    []int64
	BaseAwardXP    int64

	LogLevel  string
	LogPretty bool
}

// Load reads configuration from environment variables and .env file.
// Environment variables take precedence over the .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port: getEnv("PORT", "8080"),

		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBName:     getEnv("DB_NAME", "skillswap"),

		RedisAddr:     redisAddr(),
		CacheURL:      getEnv("CACHE_URL", ""),
		CacheTTL:      time.Duration(getEnvAsInt("CACHE_TTL_SECONDS", 300)) * time.Second,
		AlertsEnabled: getEnvAsBool("ALERTS_ENABLED", true),

		JWTSecret:           getEnv("JWT_SECRET", ""),
		TokenLifetime:       time.Duration(getEnvAsInt("TOKEN_LIFETIME_HOURS", 72)) * time.Hour,
		AdminBootstrapToken: getEnv("ADMIN_BOOTSTRAP_TOKEN", ""),

		ScoringURL:     getEnv("SCORING_URL", ""),
		ScoringTimeout: time.Duration(getEnvAsInt("SCORING_TIMEOUT_SECONDS", 20)) * time.Second,
		ScoringAPIKey:  getEnv("SCORING_API_KEY", ""),
		UploadDir:      getEnv("UPLOAD_DIR", "./uploads"),
		S3Bucket:       getEnv("S3_BUCKET", ""),
		S3Prefix:       getEnv("S3_PREFIX", "proofs/"),
		S3Region:       getEnv("AWS_REGION", "us-east-1"),
		S3Endpoint:     getEnv("S3_ENDPOINT", ""),

		LevelTablePath: getEnv("LEVEL_TABLE_PATH", ""),
		BaseAwardXP:    int64(getEnvAsInt("BASE_AWARD_XP", 20)),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvAsBool("LOG_PRETTY", false),
	}

	widths, err := loadLevelWidths(cfg.LevelTablePath, getEnv("LEVEL_WIDTHS", ""))
	if err != nil {
		return nil, err
	}
	cfg.LevelWidths = widths

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	if c.BaseAwardXP < 0 {
		return fmt.Errorf("BASE_AWARD_XP must not be negative")
	}
	for i, w := range c.LevelWidths {
		if w <= 0 {
			return fmt.Errorf("level %d width must be positive, got %d", i+1, w)
		}
	}
	return nil
}

// DatabaseURL returns the Postgres connection string with the credentials
// escaped.
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Host:   net.JoinHostPort(c.DBHost, c.DBPort),
		Path:   "/" + c.DBName,
	}
	return u.String()
}

// levelFile is the on-disk shape of LEVEL_TABLE_PATH.
type levelFile struct {
	Widths []int64 `yaml:"widths"`
}

// loadLevelWidths prefers the YAML file, then the comma separated env value.
// A nil result means the built-in table is used.
func loadLevelWidths(path, inline string) ([]int64, error) {
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read level table: %w", err)
		}
		var f levelFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("parse level table: %w", err)
		}
		if len(f.Widths) == 0 {
			return nil, fmt.Errorf("level table %s has no widths", path)
		}
		return f.Widths, nil
	}
	if inline == "" {
		return nil, nil
	}
	parts := strings.Split(inline, ",")
	widths := make([]int64, 0, len(parts))
	for _, p := range parts {
		w, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("LEVEL_WIDTHS: %w", err)
		}
		widths = append(widths, w)
	}
	return widths, nil
}

func redisAddr() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	if host := os.Getenv("REDIS_HOST"); host != "" {
		return host + ":" + getEnv("REDIS_PORT", "6379")
	}
	if os.Getenv("RUN_LOCAL") == "true" {
		return "127.0.0.1:6379"
	}
	return "redis:6379"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
