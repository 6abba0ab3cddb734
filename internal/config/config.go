package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Upstream UpstreamConfig
	Channel  ChannelConfig
	Identity IdentityConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	Environment        string
	LogFilePath        string
	ChannelLogFilePath string
	CorsAllowedOrigins string
	StaticDir          string
}

type UpstreamConfig struct {
	// BaseURL of the classification backend everything under /api is
	// forwarded to.
	BaseURL string
}

type ChannelConfig struct {
	NatsURL           string
	RetryDelay        time.Duration
	MaxRetryAttempts  int // 0 = retry forever
	HeartbeatInterval time.Duration
	FeedTTL           time.Duration
}

type IdentityConfig struct {
	// LocalStorePath backs the durable cross-session identity store.
	LocalStorePath string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			ChannelLogFilePath: getEnv("CHANNEL_LOG_FILE_PATH", "logs/channel.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
			StaticDir:          getEnv("STATIC_DIR", "./assets"),
		},
		Upstream: UpstreamConfig{
			BaseURL: getEnv("BACKEND_URL", "http://localhost:8080"),
		},
		Channel: ChannelConfig{
			NatsURL:           getEnv("NATS_URL", "nats://localhost:4222"),
			RetryDelay:        getEnvAsDuration("CHANNEL_RETRY_DELAY", 5*time.Second),
			MaxRetryAttempts:  getEnvAsInt("CHANNEL_MAX_RETRY_ATTEMPTS", 0),
			HeartbeatInterval: getEnvAsDuration("CHANNEL_HEARTBEAT_INTERVAL", 30*time.Second),
			FeedTTL:           getEnvAsDuration("FEED_TTL", 10*time.Minute),
		},
		Identity: IdentityConfig{
			LocalStorePath: getEnv("IDENTITY_STORE_PATH", "identity.json"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
