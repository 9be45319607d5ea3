package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/joho/godotenv"
	"github.com/peterhellberg/duration"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Config struct {
	Port          string
	BindAddress   string
	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	JWTSecret     string
	RabbitMQURL   string
	OpenAIAPIKey  string
	OpenAIModel   string

	AutoSaveDelay     time.Duration
	DraftTTL          time.Duration
	SessionLinger     time.Duration
	WarningThresholds []time.Duration
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first when present; variables already set
// in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(errors.Cause(err)) {
		glog.Warningf("ignoring .env: %v", err)
	}

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		BindAddress:   getEnv("BIND_ADDRESS", "localhost"),
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBPort:        getEnv("DB_PORT", "5432"),
		DBUser:        getEnv("DB_USER", "quizsession"),
		DBPassword:    getEnv("DB_PASSWORD", "quizsession123"),
		DBName:        getEnv("DB_NAME", "quizsession"),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		JWTSecret:     getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		RabbitMQURL:   getEnv("RABBITMQ_URL", ""),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
	}

	var err error
	if cfg.AutoSaveDelay, err = getDuration("AUTOSAVE_DELAY", "30s"); err != nil {
		return nil, err
	}
	if cfg.DraftTTL, err = getDuration("DRAFT_TTL", "2d"); err != nil {
		return nil, err
	}
	if cfg.SessionLinger, err = getDuration("SESSION_LINGER", "10m"); err != nil {
		return nil, err
	}
	if cfg.WarningThresholds, err = parseDurations(getEnv("WARNING_THRESHOLDS", "5m,1m")); err != nil {
		return nil, errors.Wrap(err, "WARNING_THRESHOLDS")
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key, defaultValue string) (time.Duration, error) {
	d, err := duration.Parse(getEnv(key, defaultValue))
	if err != nil {
		return 0, errors.Wrapf(err, "invalid duration in %s", key)
	}
	if d < 0 {
		return 0, errors.Errorf("%s must not be negative", key)
	}
	return d, nil
}

func parseDurations(s string) ([]time.Duration, error) {
	var out []time.Duration
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := duration.Parse(part)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid duration %q", part)
		}
		out = append(out, d)
	}
	return out, nil
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%s", c.BindAddress, c.Port)
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	return db, nil
}

func InitRedis(cfg *Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       0,
	})
}
