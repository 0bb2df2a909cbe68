// Package config provides configuration for the orchestrator.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the orchestrator configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// Completion service
	CompletionURL    string
	CompletionAPIKey string
	CallTimeout      time.Duration

	// Model-call governor
	RateWindow        time.Duration
	MaxCallsPerWindow int
	FailureThreshold  int
	CooldownBase      time.Duration
	CooldownMax       time.Duration
	GlobalRate        float64
	GlobalBurst       int

	// Turn coordination
	LockTimeout     time.Duration
	DuplicateWindow time.Duration
	MaxProcessedIDs int

	// Sessions and dialogue
	SessionTTL         time.Duration
	DefaultLocale      string
	MaxReplyLen        int
	AllowedLinkDomains []string

	// Logging
	LogLevel string
}

// Load loads configuration from the environment, reading a .env file first
// when one is present.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("WARN: could not read .env file: %v", err)
	}

	cfg := &Config{
		HTTPPort:          getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:       getEnv("DATABASE_URL", "file:orchestrator.db?cache=shared&mode=rwc"),
		CompletionURL:     getEnv("COMPLETION_URL", "http://localhost:4000"),
		CompletionAPIKey:  getEnv("COMPLETION_API_KEY", ""),
		CallTimeout:       time.Duration(getEnvInt("COMPLETION_TIMEOUT_MS", 20000)) * time.Millisecond,
		RateWindow:        time.Duration(getEnvInt("RATE_WINDOW_MS", 60000)) * time.Millisecond,
		MaxCallsPerWindow: getEnvInt("MAX_CALLS_PER_WINDOW", 10),
		FailureThreshold:  getEnvInt("FAILURE_THRESHOLD", 3),
		CooldownBase:      time.Duration(getEnvInt("COOLDOWN_BASE_MS", 30000)) * time.Millisecond,
		CooldownMax:       time.Duration(getEnvInt("COOLDOWN_MAX_MS", 600000)) * time.Millisecond,
		GlobalRate:        float64(getEnvInt("GLOBAL_RATE_PER_SEC", 20)),
		GlobalBurst:       getEnvInt("GLOBAL_BURST", 40),
		LockTimeout:       time.Duration(getEnvInt("LOCK_TIMEOUT_MS", 15000)) * time.Millisecond,
		DuplicateWindow:   time.Duration(getEnvInt("DUPLICATE_WINDOW_MS", 2000)) * time.Millisecond,
		MaxProcessedIDs:   getEnvInt("MAX_PROCESSED_IDS", 10000),
		SessionTTL:        time.Duration(getEnvInt("SESSION_TTL_MS", 1800000)) * time.Millisecond,
		DefaultLocale:     getEnv("DEFAULT_LOCALE", "es-AR"),
		MaxReplyLen:       getEnvInt("MAX_REPLY_LEN", 1200),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}

	if domains := getEnv("ALLOWED_LINK_DOMAINS", ""); domains != "" {
		for _, d := range strings.Split(domains, ",") {
			if d = strings.TrimSpace(d); d != "" {
				cfg.AllowedLinkDomains = append(cfg.AllowedLinkDomains, d)
			}
		}
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
