package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Database
	DatabaseURL string

	// Redis (notifications + tick leadership lock). Empty disables both.
	RedisURL string

	// Matchmaking
	MatchmakingInterval time.Duration
	RatingWindowMin     float64
	RatingWindowMax     float64
	RatingWindowStep    float64
	DispatchConcurrency int
	AutoRequeue         bool
	InfraRetryBackoff   time.Duration

	// Rate limits
	DailyMatchLimit int
	MatchCooldown   time.Duration

	// Executor Service
	ExecutorURL  string
	MatchTimeout time.Duration

	// CORS
	CORSAllowedOrigins []string
}

func Load() (*Config, error) {
	// .env 파일 로드 (있는 경우)
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		MatchmakingInterval: getDuration("MATCHMAKING_INTERVAL", 30*time.Second),
		RatingWindowMin:     getFloat("RATING_WINDOW_MIN", 100),
		RatingWindowMax:     getFloat("RATING_WINDOW_MAX", 500),
		RatingWindowStep:    getFloat("RATING_WINDOW_STEP", 100),
		DispatchConcurrency: getInt("DISPATCH_CONCURRENCY", 4),
		AutoRequeue:         getBool("AUTO_REQUEUE", true),
		InfraRetryBackoff:   getDuration("INFRA_RETRY_BACKOFF", 0),

		DailyMatchLimit: getInt("DAILY_MATCH_LIMIT", 100),
		MatchCooldown:   getDuration("MATCH_COOLDOWN", 5*time.Minute),

		ExecutorURL: getEnv("EXECUTOR_URL", "http://localhost:8081"),
		// 실행 시간 + 여유분. 배포 파라미터이며 하드코딩하지 않는다.
		MatchTimeout: getDuration("MATCH_TIMEOUT", 6*time.Minute),

		CORSAllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
