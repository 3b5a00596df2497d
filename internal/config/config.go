package config

import (
	"os"
	"strconv"
	"time"

	"chatgames/internal/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort       string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	JWTSecret     string
	LogLevel      string
	LogJSON       bool

	// Game limits
	MinEntry        int64
	MaxEntry        int64
	BigGameMinEntry int64
	HouseFeePercent int64

	// Command rate limiting
	CommandRateLimit  int
	CommandRateWindow time.Duration

	// Timer poller
	TimerPollInterval time.Duration
}

// Загрузка конфига из env
func Load() *Config {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal("DATABASE_URL is not set")
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		logger.Fatal("REDIS_ADDR is not set")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Fatal("JWT_SECRET is not set")
	}

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	redisDB := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			redisDB = n
		}
	}

	// Game limits (по умолчанию)
	minEntry := int64(1) // минимальная ставка 1 COIN
	if v := os.Getenv("MIN_ENTRY"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			minEntry = n
		}
	}

	maxEntry := int64(999_999_999)
	if v := os.Getenv("MAX_ENTRY"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			maxEntry = n
		}
	}

	bigGameMinEntry := int64(50) // "big game" rooms raise the floor
	if v := os.Getenv("BIG_GAME_MIN_ENTRY"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			bigGameMinEntry = n
		}
	}

	houseFeePercent := int64(10)
	if v := os.Getenv("HOUSE_FEE_PERCENT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 && n < 100 {
			houseFeePercent = n
		}
	}

	cmdRateLimit := 20 // макс команд на пользователя за окно
	if v := os.Getenv("COMMAND_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cmdRateLimit = n
		}
	}

	cmdRateWindow := 10 * time.Second // окно подсчёта
	if v := os.Getenv("COMMAND_RATE_WINDOW_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cmdRateWindow = time.Duration(n) * time.Second
		}
	}

	pollInterval := time.Second
	if v := os.Getenv("TIMER_POLL_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			pollInterval = time.Duration(n) * time.Millisecond
		}
	}

	return &Config{
		AppPort:           port,
		DatabaseURL:       dbURL,
		RedisAddr:         redisAddr,
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           redisDB,
		JWTSecret:         jwtSecret,
		LogLevel:          getEnvDefault("LOG_LEVEL", "info"),
		LogJSON:           os.Getenv("LOG_JSON") == "true",
		MinEntry:          minEntry,
		MaxEntry:          maxEntry,
		BigGameMinEntry:   bigGameMinEntry,
		HouseFeePercent:   houseFeePercent,
		CommandRateLimit:  cmdRateLimit,
		CommandRateWindow: cmdRateWindow,
		TimerPollInterval: pollInterval,
	}
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
