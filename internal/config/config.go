package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"staybook/internal/cache"
	"staybook/internal/database"
	"staybook/internal/external"
	"staybook/internal/messaging"
	"staybook/internal/notifications"
)

// Config содержит конфигурацию приложения
type Config struct {
	Port           string
	GinMode        string
	LogLevel       string
	LogFormat      string
	RequestTimeout time.Duration

	// Performance monitoring
	PprofEnabled bool
	PprofPort    string

	Database       database.Config
	NATS           messaging.Config
	Redis          cache.Config
	Gateway        external.ChapaConfig
	Mail           notifications.Config
	Payment        PaymentConfig
	Reconciliation ReconciliationConfig
}

// PaymentConfig holds defaults used when building gateway requests
type PaymentConfig struct {
	Currency         string
	PublicBaseURL    string
	DefaultReturnURL string
}

// CallbackURL is where the gateway reports transaction outcomes
func (p PaymentConfig) CallbackURL() string {
	return p.PublicBaseURL + "/api/payments/verify"
}

// ReconciliationConfig drives the stale pending payment job
type ReconciliationConfig struct {
	Interval time.Duration
	After    time.Duration
	Batch    int
}

// Load загружает конфигурацию из переменных окружения
func Load() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	return &Config{
		Port:           getEnv("PORT", "8081"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SEC", 30)) * time.Second,

		// Performance monitoring
		PprofEnabled: getEnv("PPROF_ENABLED", "false") == "true",
		PprofPort:    getEnv("PPROF_PORT", "6060"),

		Database: database.Config{
			Host:               getEnv("DB_HOST", "localhost"),
			Port:               getEnvInt("DB_PORT", 5432),
			User:               getEnv("DB_USER", "staybook"),
			Password:           getEnv("DB_PASSWORD", "staybook"),
			DBName:             getEnv("DB_NAME", "staybook"),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetimeMin: getEnvInt("DB_CONN_MAX_LIFETIME_MIN", 5),
			ConnMaxIdleTimeMin: getEnvInt("DB_CONN_MAX_IDLE_TIME_MIN", 1),
		},

		NATS: messaging.Config{
			URL:       getEnv("NATS_URL", "nats://localhost:4222"),
			ClusterID: getEnv("NATS_CLUSTER_ID", "staybook"),
			ClientID:  getEnv("NATS_CLIENT_ID", "staybook-api"),
		},

		Redis: cache.Config{
			Addr:          getEnv("REDIS_ADDR", "localhost:6379"),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getEnvInt("REDIS_DB", 0),
			AuthKeyPrefix: getEnv("REDIS_AUTH_KEY_PREFIX", "users:auth"),
			AuthTTL:       time.Duration(getEnvInt("AUTH_CACHE_TTL_SEC", 300)) * time.Second,
			DedupeTTL:     time.Duration(getEnvInt("NOTIFY_DEDUPE_TTL_HOURS", 72)) * time.Hour,
		},

		Gateway: external.ChapaConfig{
			BaseURL:   getEnv("CHAPA_BASE_URL", "https://api.chapa.co"),
			SecretKey: getEnv("CHAPA_SECRET_KEY", ""),
			Timeout:   time.Duration(getEnvInt("GATEWAY_TIMEOUT_SEC", 15)) * time.Second,
		},

		Mail: notifications.Config{
			BrevoAPIKey: getEnv("BREVO_API_KEY", ""),
			SenderEmail: getEnv("EMAIL_SENDER", "noreply@travelapp.com"),
			SenderName:  getEnv("EMAIL_SENDER_NAME", "Travel App"),
			Timeout:     time.Duration(getEnvInt("EMAIL_TIMEOUT_SEC", 10)) * time.Second,
		},

		Payment: PaymentConfig{
			Currency:         getEnv("PAYMENT_CURRENCY", "ETB"),
			PublicBaseURL:    getEnv("PUBLIC_BASE_URL", "http://localhost:8081"),
			DefaultReturnURL: getEnv("PAYMENT_RETURN_URL", "http://localhost:3000/payment/success"),
		},

		Reconciliation: ReconciliationConfig{
			Interval: time.Duration(getEnvInt("RECONCILE_INTERVAL_SEC", 60)) * time.Second,
			After:    time.Duration(getEnvInt("RECONCILE_AFTER_MIN", 15)) * time.Minute,
			Batch:    getEnvInt("RECONCILE_BATCH", 50),
		},
	}
}

// getEnv получает значение переменной окружения или возвращает значение по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt получает целочисленное значение переменной окружения
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
