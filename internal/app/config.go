package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr        string
	RequestTimeout  time.Duration
	LogLevel        string
	LogFormat       string
	UserAgent       string
	RegistryFile    string
	DanmuAPIURL     string
	DefaultProvider string
	CacheSeconds    int
	RedisURL        string
	RateLimitRPS    float64
	RateLimitBurst  int
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:        getEnv("HTTP_ADDR", ":8091"),
		RequestTimeout:  time.Duration(getEnvInt("SEARCH_TIMEOUT_SECONDS", 15)) * time.Second,
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(getEnv("LOG_FORMAT", "text")),
		UserAgent:       getEnv("SEARCH_USER_AGENT", "danmu-search/1.0"),
		RegistryFile:    getEnv("DANMU_REGISTRY_FILE", "config/providers.yaml"),
		DanmuAPIURL:     strings.TrimRight(getEnv("DANMU_API_URL", ""), "/"),
		DefaultProvider: getEnv("DANMU_DEFAULT_PROVIDER", "netlify"),
		CacheSeconds:    getEnvNonNegativeInt("DANMU_CACHE_SECONDS", 7200),
		RedisURL:        getEnv("REDIS_URL", ""),
		RateLimitRPS:    getEnvFloat("RATE_LIMIT_RPS", 50),
		RateLimitBurst:  getEnvInt("RATE_LIMIT_BURST", 100),
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

// getEnvNonNegativeInt accepts 0, which disables client caching.
func getEnvNonNegativeInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
