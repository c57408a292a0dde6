package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL   string
	DBMaxConns    int
	DBMinConns    int
	MigrationsDir string

	// Redis
	RedisURL string

	// JWT
	JWTSecret string

	// Background work
	WorkerCount          int
	ReminderLeadTime     time.Duration
	ReminderPollInterval time.Duration

	// SMTP
	SMTPHost string
	SMTPPort string
	SMTPUser string
	SMTPPass string
	SMTPFrom string

	// Frontend
	FrontendURL string

	// TrustProxy honours X-Forwarded-For / X-Real-IP. Only set it when a
	// reverse proxy in front of the API overwrites those headers.
	TrustProxy bool
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                 getEnvOrDefault("PORT", "8080"),
		Env:                  getEnvOrDefault("ENV", "development"),
		DatabaseURL:          mustGetEnv("DATABASE_URL"),
		DBMaxConns:           getEnvAsIntOrDefault("DB_MAX_CONNS", 25),
		DBMinConns:           getEnvAsIntOrDefault("DB_MIN_CONNS", 5),
		MigrationsDir:        getEnvOrDefault("MIGRATIONS_DIR", ""),
		RedisURL:             mustGetEnv("REDIS_URL"),
		JWTSecret:            mustGetEnv("JWT_SECRET"),
		WorkerCount:          getEnvAsIntOrDefault("WORKER_COUNT", 3),
		ReminderLeadTime:     getEnvAsDurationOrDefault("REMINDER_LEAD_TIME", 15*time.Minute),
		ReminderPollInterval: getEnvAsDurationOrDefault("REMINDER_POLL_INTERVAL", time.Minute),
		SMTPHost:             getEnvOrDefault("SMTP_HOST", ""),
		SMTPPort:             getEnvOrDefault("SMTP_PORT", "587"),
		SMTPUser:             getEnvOrDefault("SMTP_USER", ""),
		SMTPPass:             getEnvOrDefault("SMTP_PASS", ""),
		SMTPFrom:             getEnvOrDefault("SMTP_FROM", "noreply@studyflow.app"),
		FrontendURL:          getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
		TrustProxy:           getEnvAsBoolOrDefault("TRUST_PROXY", false),
	}

	return cfg
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

// getEnvAsDurationOrDefault accepts Go duration strings ("90s", "15m").
// Non-positive values fall back to the default.
func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
