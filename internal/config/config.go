package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string

	DatabaseDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Empty KafkaBrokers disables the event bus.
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroup   string

	// Empty ClickHouseAddr disables the tick journal.
	ClickHouseAddr     string
	ClickHouseUsername string
	ClickHousePassword string

	BotToken string

	SourcesFile   string
	SourceTimeout time.Duration

	MonitorInterval    time.Duration
	MonitorMinInterval time.Duration
	DefaultMaxMonitors int

	HubPingInterval time.Duration

	SearchCacheTTL   time.Duration
	SearchRateWindow time.Duration

	LogLevel  string
	PrettyLog bool
}

// Load reads the environment, after an optional .env in the working directory.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Env file is not found, using process environment")
	}

	return &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		DatabaseDSN: getEnv("DATABASE_DSN",
			"host=localhost user=postgres password=password dbname=market_hunter port=5432 sslmode=disable"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		KafkaBrokers: getEnvAsSlice("KAFKA_BROKERS", nil, ","),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "market-events"),
		KafkaGroup:   getEnv("KAFKA_GROUP", "market-hunter"),

		ClickHouseAddr:     getEnv("CLICKHOUSE_ADDR", ""),
		ClickHouseUsername: getEnv("CLICKHOUSE_USERNAME", "default"),
		ClickHousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),

		BotToken: getEnv("BOT_TOKEN", ""),

		SourcesFile:   getEnv("SOURCES_FILE", "sources.yaml"),
		SourceTimeout: getEnvAsDuration("SOURCE_TIMEOUT", 15*time.Second),

		MonitorInterval:    getEnvAsDuration("MONITOR_INTERVAL", 30*time.Second),
		MonitorMinInterval: getEnvAsDuration("MONITOR_MIN_INTERVAL", 10*time.Second),
		DefaultMaxMonitors: getEnvAsInt("DEFAULT_MAX_MONITORS", 10),

		HubPingInterval: getEnvAsDuration("HUB_PING_INTERVAL", 30*time.Second),

		SearchCacheTTL:   getEnvAsDuration("SEARCH_CACHE_TTL", 10*time.Minute),
		SearchRateWindow: getEnvAsDuration("SEARCH_RATE_WINDOW", 5*time.Minute),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		PrettyLog: getEnvAsBool("LOG_PRETTY", false),
	}
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsSlice(key string, defaultVal []string, sep string) []string {
	valStr := getEnv(key, "")
	if valStr == "" {
		return defaultVal
	}

	parts := make([]string, 0, 4)
	for _, part := range strings.Split(valStr, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
