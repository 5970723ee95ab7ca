package config

import (
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	JWT          JWTConfig
	Booking      BookingConfig
	Payment      PaymentConfig
	Admin        AdminConfig
	Notification NotificationConfig
	Firebase     FirebaseConfig
	Scheduler    SchedulerConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// Requests per minute per caller on the public API.
	RateLimitPerMinute int
}

type DatabaseConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type JWTConfig struct {
	AccessSecret string
	AccessExpiry time.Duration
	Issuer       string
}

type BookingConfig struct {
	Timezone           string // IANA name; calendar days are computed here
	SlotGranularity    time.Duration
	MaxDurationMinutes int
}

// Location resolves Timezone, falling back to UTC on an unknown name.
func (b BookingConfig) Location() *time.Location {
	if b.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type PaymentConfig struct {
	Provider         string // "stub" or "hosted"
	BaseURL          string
	APIKey           string
	WebhookSecret    string
	WebhookTolerance time.Duration
	Currency         string
	SuccessURL       string
	CancelURL        string
	// RefundReversal writes a compensating platform debit on charge.refunded
	// when the funds have not been transferred yet.
	RefundReversal bool
}

type AdminConfig struct {
	Email    string
	Password string
	Name     string
}

type NotificationConfig struct {
	QueueSize int
	Workers   int
}

type FirebaseConfig struct {
	ServiceAccountPath string
}

type SchedulerConfig struct {
	SlotPruneSpec string
}

// Load reads .env when present, then the process environment.
func Load() *Config {
	_ = godotenv.Load()
	return &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8099"),
			Env:                getEnv("APP_ENV", "development"),
			ReadTimeout:        getEnvDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:       getEnvDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		},
		Database: DatabaseConfig{
			DSN:             getEnv("DB_DSN", "root:@tcp(localhost:3306)/mentorbook?charset=utf8mb4&parseTime=True&loc=UTC"),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		},
		JWT: JWTConfig{
			AccessSecret: getEnv("JWT_ACCESS_SECRET", "change-me-in-production"),
			AccessExpiry: getEnvDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
			Issuer:       getEnv("JWT_ISSUER", "mentorbook"),
		},
		Booking: BookingConfig{
			Timezone:           getEnv("BOOKING_TIMEZONE", "UTC"),
			SlotGranularity:    getEnvDuration("BOOKING_SLOT_GRANULARITY", 30*time.Minute),
			MaxDurationMinutes: getEnvInt("BOOKING_MAX_DURATION_MINUTES", 480),
		},
		Payment: PaymentConfig{
			Provider:         strings.ToLower(getEnv("PAYMENT_PROVIDER", "stub")),
			BaseURL:          getEnv("PAYMENT_BASE_URL", "https://api.stripe.com"),
			APIKey:           getEnv("PAYMENT_API_KEY", ""),
			WebhookSecret:    getEnv("PAYMENT_WEBHOOK_SECRET", ""),
			WebhookTolerance: getEnvDuration("PAYMENT_WEBHOOK_TOLERANCE", 5*time.Minute),
			Currency:         strings.ToUpper(getEnv("PAYMENT_CURRENCY", "USD")),
			SuccessURL:       getEnv("PAYMENT_SUCCESS_URL", "http://localhost:3000/payment/success"),
			CancelURL:        getEnv("PAYMENT_CANCEL_URL", "http://localhost:3000/payment/cancel"),
			RefundReversal:   getEnvBool("PAYMENT_REFUND_REVERSAL", true),
		},
		Admin: AdminConfig{
			Email:    getEnv("ADMIN_EMAIL", "admin@mentorbook.local"),
			Password: getEnv("ADMIN_PASSWORD", ""),
			Name:     getEnv("ADMIN_NAME", "Platform"),
		},
		Notification: NotificationConfig{
			QueueSize: getEnvInt("NOTIFY_QUEUE_SIZE", 256),
			Workers:   getEnvInt("NOTIFY_WORKERS", 2),
		},
		Firebase: FirebaseConfig{
			ServiceAccountPath: getEnv("FIREBASE_SERVICE_ACCOUNT", ""),
		},
		Scheduler: SchedulerConfig{
			SlotPruneSpec: getEnv("SLOT_PRUNE_CRON", "15 2 * * *"),
		},
	}
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := getEnv(key, ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := getEnv(key, ""); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// getEnvDuration accepts Go durations ("30m") or a bare number of seconds.
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}
