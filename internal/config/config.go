package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DatabaseURL string
	Port        string
	Environment string
	LogLevel    string

	SteamAPIKey    string
	Currency       string
	RequestDelayMs int
	DelayJitterMs  int
	UserAgents     []string

	InventoryQuota  int
	InventoryWindow time.Duration
	QuotaBuffer     time.Duration
	BackoffBase     time.Duration
	BackoffCap      time.Duration
	MaxRetries      int
	HTTPTimeout     time.Duration

	RefreshCron string
}

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
}

func Load() *Config {
	return &Config{
		DatabaseURL: getEnv("DATABASE_URL", "case_tracker.db"),
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		SteamAPIKey:    getEnv("STEAM_API_KEY", ""),
		Currency:       getEnv("CURRENCY", "USD"),
		RequestDelayMs: getEnvInt("REQUEST_DELAY_MS", 3000),
		DelayJitterMs:  getEnvInt("REQUEST_DELAY_JITTER_MS", 2000),
		UserAgents:     getEnvList("USER_AGENT_POOL", defaultUserAgents),

		InventoryQuota:  getEnvInt("INVENTORY_QUOTA", 5),
		InventoryWindow: getEnvDuration("INVENTORY_WINDOW", 30*time.Minute),
		QuotaBuffer:     getEnvDuration("INVENTORY_QUOTA_BUFFER", 5*time.Second),
		BackoffBase:     getEnvDuration("BACKOFF_BASE", time.Second),
		BackoffCap:      getEnvDuration("BACKOFF_CAP", time.Minute),
		MaxRetries:      getEnvInt("MAX_RETRIES", 5),
		HTTPTimeout:     getEnvDuration("HTTP_TIMEOUT", 30*time.Second),

		RefreshCron: getEnv("REFRESH_CRON", "0 */6 * * *"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
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
