package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// Server
	ServerPort        string
	CORSAllowedOrigin string
	SessionCookieName string

	// Logging
	LogLevel string

	// Long task monitor
	LongTaskThresholdMinutes int
	MonitorInterval          time.Duration
	MonitorMaxConcurrent     int
	MonitorAlertCooldown     time.Duration

	// Notification cleanup
	NotificationCleanupInterval time.Duration
	NotificationGracePeriod     time.Duration

	// Rate Limit
	RateLimitGeneral int
	RateLimitReport  int

	// Alert webhook
	AlertWebhookURL       string
	AlertWebhookTimeout   time.Duration
	AlertWebhookAllowHTTP bool
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.DBMaxOpenConns = getEnvPositiveInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = getEnvPositiveInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.SessionCookieName = getEnvString("SESSION_COOKIE_NAME", "session_id")
	cfg.LogLevel = strings.ToLower(getEnvString("LOG_LEVEL", "info"))
	cfg.LongTaskThresholdMinutes = getEnvPositiveInt("LONG_TASK_THRESHOLD_MINUTES", 120)
	cfg.MonitorInterval = getEnvDuration("MONITOR_INTERVAL", 5*time.Minute)
	cfg.MonitorMaxConcurrent = getEnvPositiveInt("MONITOR_MAX_CONCURRENT", 10)
	cfg.MonitorAlertCooldown = getEnvDuration("MONITOR_ALERT_COOLDOWN", time.Hour)
	cfg.NotificationCleanupInterval = getEnvDuration("NOTIFICATION_CLEANUP_INTERVAL", time.Hour)
	cfg.NotificationGracePeriod = getEnvDuration("NOTIFICATION_GRACE_PERIOD", 0)
	cfg.RateLimitGeneral = getEnvPositiveInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitReport = getEnvPositiveInt("RATE_LIMIT_REPORT", 10)
	cfg.AlertWebhookURL = getEnvString("ALERT_WEBHOOK_URL", "")
	cfg.AlertWebhookTimeout = getEnvDuration("ALERT_WEBHOOK_TIMEOUT", 5*time.Second)
	cfg.AlertWebhookAllowHTTP = getEnvBool("ALERT_WEBHOOK_ALLOW_HTTP", false)

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

// getEnvPositiveInt は0以下の値をデフォルト値に置き換える。
func getEnvPositiveInt(key string, defaultVal int) int {
	if i := getEnvInt(key, defaultVal); i > 0 {
		return i
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return defaultVal
	}
	return d
}
