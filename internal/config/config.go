package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port                     string
	DatabaseURL              string
	MinutesPerVisit          int
	AutoSuspendGrace         time.Duration
	AutoSuspendInterval      time.Duration
	AutoSuspendBatchSize     int
	RateLimitPerMinute       int
	RateLimitBurst           int
	ParishRateLimitPerMinute   int
	ParishRateLimitBurst       int
	EstimateRateLimitPerMinute int
	EstimateRateLimitBurst     int
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:                       port,
		DatabaseURL:                os.Getenv("DB_DSN"),
		MinutesPerVisit:            readInt("MINUTES_PER_VISIT", 10),
		AutoSuspendGrace:           readDurationSeconds("AUTO_SUSPEND_GRACE_SECONDS", 3600),
		AutoSuspendInterval:        readDurationSeconds("AUTO_SUSPEND_SCAN_INTERVAL_SECONDS", 60),
		AutoSuspendBatchSize:       readInt("AUTO_SUSPEND_BATCH_SIZE", 100),
		RateLimitPerMinute:         readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:             readInt("RATE_LIMIT_BURST", 30),
		ParishRateLimitPerMinute:   readInt("PARISH_RATE_LIMIT_PER_MIN", 600),
		ParishRateLimitBurst:       readInt("PARISH_RATE_LIMIT_BURST", 120),
		EstimateRateLimitPerMinute: readInt("ESTIMATE_RATE_LIMIT_PER_MIN", 60),
		EstimateRateLimitBurst:     readInt("ESTIMATE_RATE_LIMIT_BURST", 10),
	}
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
