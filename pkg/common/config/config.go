package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers []string
	KafkaGroupID string
	KafkaEnabled bool
	RefreshTopic string
	AlertTopic   string
	ExtractTopic string

	// Scoring engine
	ScoringConfigPath string
	AgentConfigPath   string
	SourceCatalogPath string
	RefreshInterval   time.Duration
	RefreshWorkers    int

	// Snapshot cache
	SnapshotCacheTTL time.Duration

	// Extract feed (pull mode, optional)
	FeedBaseURL string
	FeedTimeout time.Duration
	FeedRetries int

	// HTTP surface
	RateLimitRPS   int
	RateLimitBurst int
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 4*1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "clinsight"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "clinsight123"),
		PostgresDB:       getEnv("POSTGRES_DB", "clinsight"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers: getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID: getEnv("KAFKA_GROUP_ID", "clinsight-insight"),
		KafkaEnabled: getBoolEnv("KAFKA_ENABLED", false),
		RefreshTopic: getEnv("KAFKA_REFRESH_TOPIC", "insight.refresh.completed"),
		AlertTopic:   getEnv("KAFKA_ALERT_TOPIC", "insight.study.alerts"),
		ExtractTopic: getEnv("KAFKA_EXTRACT_TOPIC", "insight.extracts.received"),

		ScoringConfigPath: getEnv("SCORING_CONFIG_PATH", ""),
		AgentConfigPath:   getEnv("AGENT_CONFIG_PATH", ""),
		SourceCatalogPath: getEnv("SOURCE_CATALOG_PATH", ""),
		RefreshInterval:   getDuration("REFRESH_INTERVAL", 15*time.Minute),
		RefreshWorkers:    getIntEnv("REFRESH_WORKERS", 4),

		SnapshotCacheTTL: getDuration("SNAPSHOT_CACHE_TTL", 24*time.Hour),

		FeedBaseURL: getEnv("FEED_BASE_URL", ""),
		FeedTimeout: getDuration("FEED_TIMEOUT", 10*time.Second),
		FeedRetries: getIntEnv("FEED_RETRIES", 3),

		RateLimitRPS:   getIntEnv("RATE_LIMIT_RPS", 50),
		RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 100),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
