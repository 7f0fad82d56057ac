package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	DataServiceURL        string
	DataServiceToken      string
	DataServiceTimeout    time.Duration
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	PermissionTTLSeconds  int
	AuthSecret            string
	AccessTokenTTLMinutes int
	SessionIdleMinutes    int
	LogLevel              string
	MetricsEnabled        bool
	OTLPEndpoint          string
	ServiceName           string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		DataServiceURL:        strings.TrimRight(strings.TrimSpace(os.Getenv("DATA_SERVICE_URL")), "/"),
		DataServiceToken:      strings.TrimSpace(os.Getenv("DATA_SERVICE_TOKEN")),
		DataServiceTimeout:    time.Duration(positiveInt("DATA_SERVICE_TIMEOUT_SECONDS", 10)) * time.Second,
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		PermissionTTLSeconds:  positiveInt("PERMISSION_TTL_SECONDS", 300),
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: positiveInt("ACCESS_TOKEN_TTL_MINUTES", 480),
		SessionIdleMinutes:    positiveInt("SESSION_IDLE_MINUTES", 120),
		LogLevel:              strings.ToLower(getEnv("LOG_LEVEL", "info")),
		MetricsEnabled:        getBool("METRICS_ENABLED", true),
		OTLPEndpoint:          strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		ServiceName:           getEnv("SERVICE_NAME", "cajapos-backend"),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) PermissionTTL() time.Duration {
	return time.Duration(c.PermissionTTLSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) SessionIdle() time.Duration {
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

// positiveInt falls back when the value is missing, malformed or below 1.
func positiveInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(fallback)))
	if err != nil {
		return fallback
	}
	return v
}
