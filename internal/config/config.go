package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	DBDriverPQ  = "postgres"
	DBDriverPGX = "pgx"
)

type Config struct {
	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	ServerPort string

	StoreDriver string

	IdentityBaseURL            string
	IdentityTimeout            time.Duration
	IdentityBreakerThreshold   int
	IdentityBreakerOpenTimeout time.Duration

	RabbitMQURL      string
	RabbitMQExchange string

	ConflictRetries int
}

// Load reads the configuration from the environment, falling back to
// defaults suitable for local development.
func Load() *Config {
	return &Config{
		DBDriver:   getEnv("DB_DRIVER", DBDriverPQ),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "wallet"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		ServerPort: getEnv("SERVER_PORT", "8081"),

		StoreDriver: getEnv("STORE_DRIVER", StoreDriverPostgres),

		IdentityBaseURL:            getEnv("IDENTITY_BASE_URL", "http://localhost:8080"),
		IdentityTimeout:            getDuration("IDENTITY_TIMEOUT", 5*time.Second),
		IdentityBreakerThreshold:   getInt("IDENTITY_BREAKER_THRESHOLD", 5),
		IdentityBreakerOpenTimeout: getDuration("IDENTITY_BREAKER_OPEN_TIMEOUT", 10*time.Second),

		RabbitMQURL:      getEnv("RABBITMQ_URL", ""),
		RabbitMQExchange: getEnv("RABBITMQ_EXCHANGE", "wallet.events"),

		ConflictRetries: getInt("CONFLICT_RETRIES", 3),
	}
}

func (c *Config) GetDBConnectionString() string {
	sslMode := c.DBSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, sslMode)
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
