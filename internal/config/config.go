package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DBUser  string
	DBPass  string
	DBHost  string
	DBPort  string
	DBName  string
	SSLMode string

	RedisHost string
	RedisPort string

	NatsHost string
	NatsPort string

	ApiPort    string
	ApiEnabled string

	ModelAPIKey     string
	ModelBaseURL    string
	ModelName       string
	ModelMaxRetries int
}

// New loads and validates configuration from environment variables.
// The HTTP server is optional: if JUMPGEN_API_ENABLED != "true",
// ApiAddr() returns an error and the server simply won't start.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:          os.Getenv("JUMPGEN_POSTGRES_USER"),
		DBPass:          os.Getenv("JUMPGEN_POSTGRES_PASSWORD"),
		DBHost:          os.Getenv("JUMPGEN_POSTGRES_HOST"),
		DBPort:          os.Getenv("JUMPGEN_POSTGRES_PORT"),
		DBName:          os.Getenv("JUMPGEN_POSTGRES_DB"),
		SSLMode:         os.Getenv("JUMPGEN_POSTGRES_SSLMODE"),
		RedisHost:       os.Getenv("JUMPGEN_REDIS_HOST"),
		RedisPort:       os.Getenv("JUMPGEN_REDIS_PORT"),
		NatsHost:        os.Getenv("JUMPGEN_NATS_HOST"),
		NatsPort:        os.Getenv("JUMPGEN_NATS_PORT"),
		ApiPort:         os.Getenv("JUMPGEN_API_PORT"),
		ApiEnabled:      os.Getenv("JUMPGEN_API_ENABLED"),
		ModelAPIKey:     os.Getenv("JUMPGEN_MODEL_API_KEY"),
		ModelBaseURL:    os.Getenv("JUMPGEN_MODEL_BASE_URL"),
		ModelName:       os.Getenv("JUMPGEN_MODEL_NAME"),
		ModelMaxRetries: getEnvInt("JUMPGEN_MODEL_MAX_RETRIES", 3),
	}

	// Required: database
	if cfg.DBUser == "" || cfg.DBHost == "" || cfg.DBName == "" || cfg.SSLMode == "" {
		return nil, fmt.Errorf("missing required env for database: JUMPGEN_POSTGRES_USER/HOST/DB/SSLMODE")
	}

	// Required: redis
	if cfg.RedisHost == "" || cfg.RedisPort == "" {
		return nil, fmt.Errorf("missing required env for redis: JUMPGEN_REDIS_HOST/PORT")
	}

	// Required: nats (refund reconciliation queue)
	if cfg.NatsHost == "" || cfg.NatsPort == "" {
		return nil, fmt.Errorf("missing required env for nats: JUMPGEN_NATS_HOST/PORT")
	}

	// Required: model endpoint
	if cfg.ModelAPIKey == "" {
		return nil, fmt.Errorf("missing required env: JUMPGEN_MODEL_API_KEY")
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("missing required env: JUMPGEN_MODEL_NAME")
	}
	if cfg.ModelMaxRetries < 1 {
		return nil, fmt.Errorf("JUMPGEN_MODEL_MAX_RETRIES must be >= 1, got %d", cfg.ModelMaxRetries)
	}

	return cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName, c.SSLMode)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func (c *Config) NatsAddr() string {
	return fmt.Sprintf("nats://%s:%s", c.NatsHost, c.NatsPort)
}

// ApiAddr returns the HTTP listen address if the API is enabled.
// Returns an error if JUMPGEN_API_ENABLED != "true", in which case
// callers should skip starting the HTTP server.
func (c *Config) ApiAddr() (string, error) {
	if c.ApiEnabled == "true" {
		if c.ApiPort == "" {
			return "", fmt.Errorf("JUMPGEN_API_PORT is required when JUMPGEN_API_ENABLED=true")
		}
		return ":" + c.ApiPort, nil
	}
	return "", fmt.Errorf("HTTP API is disabled (JUMPGEN_API_ENABLED != true)")
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return intVal
}
