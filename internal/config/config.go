// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds every setting read from the environment. A .env file is loaded by
// the godotenv autoload import in each command's main package.
type Config struct {
	Port string

	PostgresUser     string
	PostgresPassword string
	PGHost           string
	PGPort           string
	PGDatabase       string

	RedisAddr string
	RedisDB   int

	QueueName      string
	BatchSize      int
	FlushInterval  time.Duration
	InactiveAfter  time.Duration
	PersistTimeout time.Duration

	// TokenExpiry is zero when tokens never expire.
	TokenExpiry time.Duration
	// JWT key files; when unset a key pair is generated per process.
	JWTPrivateKeyPath string
	JWTPublicKeyPath  string

	LogLevel logrus.Level
}

// Load reads the environment, applying defaults for anything unset.
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		PostgresUser:      getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword:  os.Getenv("POSTGRES_PASSWORD"),
		PGHost:            getEnv("PG_HOST", "localhost"),
		PGPort:            getEnv("PG_PORT", "5432"),
		PGDatabase:        getEnv("PG_DATABASE", "coup"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		QueueName:         getEnv("HISTORIAN_QUEUE_NAME", "coup_actions"),
		BatchSize:         getEnvInt("HISTORIAN_BATCH_SIZE", 100),
		FlushInterval:     time.Duration(getEnvInt("HISTORIAN_FLUSH_MS", 500)) * time.Millisecond,
		InactiveAfter:     time.Duration(getEnvInt("HISTORIAN_INACTIVE_MIN", 30)) * time.Minute,
		PersistTimeout:    time.Duration(getEnvInt("PERSIST_TIMEOUT_MS", 5000)) * time.Millisecond,
		JWTPrivateKeyPath: os.Getenv("JWT_PRIVATE_KEY_PATH"),
		JWTPublicKeyPath:  os.Getenv("JWT_PUBLIC_KEY_PATH"),
	}

	expiry, err := parseTokenExpireTime(os.Getenv("TOKEN_EXPIRE_TIME"))
	if err != nil {
		return nil, err
	}
	cfg.TokenExpiry = expiry

	level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	cfg.LogLevel = level

	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("HISTORIAN_BATCH_SIZE must be positive, got %d", cfg.BatchSize)
	}
	return cfg, nil
}

// PostgresURL is the pgx connection string.
func (c *Config) PostgresURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		c.PostgresUser,
		c.PostgresPassword,
		c.PGHost,
		c.PGPort,
		c.PGDatabase,
	)
}

// NewLogger builds the process logger at the configured level.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger
}

// parseTokenExpireTime accepts a Go duration, or "never"/"0"/"" for no expiry.
func parseTokenExpireTime(v string) (time.Duration, error) {
	if v == "never" || v == "0" || v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("failed to parse TOKEN_EXPIRE_TIME: %w", err)
	}
	return d, nil
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
