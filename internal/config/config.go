package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	LogLevel         string
	HTTPListenAddr   string
	DatabaseURL      string
	ConversationID   string
	OllamaBase       string
	OllamaModel      string
	OllamaTimeout    time.Duration
	GatewayBase      string
	GatewayTimeout   time.Duration
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	RedisTLS         bool
	DedupTTL         time.Duration
	FallbackScan     int
	MetricsNamespace string
}

// Load returns configuration populated from environment variables with fallbacks.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:           getenvDefault("APP_ENV", "development"),
		LogLevel:         getenvDefault("LOG_LEVEL", "info"),
		HTTPListenAddr:   getenvDefault("HTTP_LISTEN_ADDR", ":8081"),
		DatabaseURL:      trimmedEnv("DATABASE_URL"),
		ConversationID:   getenvDefault("CONVERSATION_ID", "demo-conv-1"),
		OllamaBase:       strings.TrimRight(getenvDefault("OLLAMA_BASE", "http://localhost:11434"), "/"),
		OllamaModel:      getenvDefault("OLLAMA_MODEL", "llama3.1"),
		GatewayBase:      strings.TrimRight(getenvDefault("GATEWAY_BASE", "http://localhost:8080"), "/"),
		RedisAddr:        getenvDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    trimmedEnv("REDIS_PASSWORD"),
		MetricsNamespace: getenvDefault("METRICS_NAMESPACE", "billing_agent"),
	}

	var err error
	if cfg.OllamaTimeout, err = durationEnv("OLLAMA_TIMEOUT", "60s"); err != nil {
		return nil, err
	}
	if cfg.GatewayTimeout, err = durationEnv("GATEWAY_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.DedupTTL, err = durationEnv("DEDUP_TTL", "24h"); err != nil {
		return nil, err
	}

	if scanStr := getenvDefault("FALLBACK_SCAN_LIMIT", "120"); scanStr != "" {
		scan, convErr := strconv.Atoi(scanStr)
		if convErr != nil {
			return nil, fmt.Errorf("invalid FALLBACK_SCAN_LIMIT value: %w", convErr)
		}
		if scan <= 0 {
			return nil, fmt.Errorf("FALLBACK_SCAN_LIMIT must be positive")
		}
		cfg.FallbackScan = scan
	}

	if redisDBStr := getenvDefault("REDIS_DB", "0"); redisDBStr != "" {
		db, convErr := strconv.Atoi(redisDBStr)
		if convErr != nil {
			return nil, fmt.Errorf("invalid REDIS_DB value: %w", convErr)
		}
		cfg.RedisDB = db
	}

	cfg.RedisTLS = strings.EqualFold(getenvDefault("REDIS_TLS", "false"), "true")

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.GatewayBase == "" {
		return nil, fmt.Errorf("GATEWAY_BASE cannot be empty")
	}

	return cfg, nil
}

func durationEnv(key, fallback string) (time.Duration, error) {
	raw := getenvDefault(key, fallback)
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return dur, nil
}

func getenvDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		if trimmed := strings.TrimSpace(val); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func trimmedEnv(key string) string {
	if val, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(val)
	}
	return ""
}
