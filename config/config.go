package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
}

// Enabled reports whether enough settings are present to dial ClickHouse.
func (c ClickHouseConfig) Enabled() bool {
	return c.Host != "" && c.Port != 0 && c.Database != ""
}

type Config struct {
	Port           string
	GinMode        string
	FrontendOrigin string

	// Tracker script defaults, overridable by window.StorePulseConfig.
	Endpoint       string
	Platform       string
	DefaultStoreID string
	QueueFn        string

	TenantTTL      time.Duration
	SweepInterval  time.Duration
	SeedMonths     int
	ConversionMode string

	DatabaseURL string
	ClickHouse  ClickHouseConfig
}

// Load reads .env if present, then the environment.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading .env: %v", err)
	}
	return FromEnv()
}

func FromEnv() Config {
	return Config{
		Port:           GetEnvOrDefault("PORT", "8080"),
		GinMode:        os.Getenv("GIN_MODE"),
		FrontendOrigin: GetEnvOrDefault("FE_ORIGIN", "http://localhost:3000"),

		Endpoint:       os.Getenv("STOREPULSE_ENDPOINT"),
		Platform:       GetEnvOrDefault("STOREPULSE_PLATFORM", "custom"),
		DefaultStoreID: GetEnvOrDefault("STOREPULSE_DEFAULT_STORE", "demo"),
		QueueFn:        GetEnvOrDefault("STOREPULSE_QUEUE_FN", "storepulse"),

		TenantTTL:      getDuration("STOREPULSE_TENANT_TTL", 30*time.Minute),
		SweepInterval:  getDuration("STOREPULSE_SWEEP_INTERVAL", time.Minute),
		SeedMonths:     getInt("STOREPULSE_SEED_MONTHS", 6),
		ConversionMode: GetEnvOrDefault("STOREPULSE_CONVERSION_MODE", "ratio"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		ClickHouse: ClickHouseConfig{
			Host:     os.Getenv("CLICKHOUSE_HOST"),
			Port:     getInt("CLICKHOUSE_NATIVE_PORT", 0),
			Database: os.Getenv("CLICKHOUSE_DB_NAME"),
			Username: os.Getenv("CLICKHOUSE_USERNAME"),
			Password: os.Getenv("CLICKHOUSE_PASSWORD"),
		},
	}
}

func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Invalid %s=%q, using %d: %v", key, v, defaultValue, err)
		return defaultValue
	}
	return parsed
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Invalid %s=%q, using %s: %v", key, v, defaultValue, err)
		return defaultValue
	}
	return parsed
}
