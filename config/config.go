package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App               AppConfig
	HTTP              ServerConfig
	GRPC              ServerConfig
	MySQL             MySQLConfig
	Log               LogConfig
	InternalEndpoints InternalEndpointsConfig
	Stripe            StripeConfig
	Auth              AuthConfig
	Redis             RedisConfig
	Mail              MailConfig
	Notifications     NotificationsConfig
	Referral          ReferralConfig
	Payments          PaymentsConfig
	Jobs              JobsConfig
}

type AppConfig struct {
	ServiceName string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type InternalEndpointsConfig struct {
	AuthGRPCAddr string
}

type StripeConfig struct {
	SecretKey                 string
	WebhookSecret             string
	APIURL                    string
	SignatureToleranceSeconds int64
	HTTPTimeout               time.Duration
}

type AuthConfig struct {
	JWTSecret string
	AdminRole string
}

// RedisConfig is optional. An empty Addr disables the notification queue.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type MailConfig struct {
	Transport    string
	FromAddress  string
	FromName     string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	APIURL       string
	APIToken     string
	HTTPTimeout  time.Duration
}

type NotificationsConfig struct {
	MaxAttempts    int
	RetryBaseDelay time.Duration
	AdminEmail     string
	DedupeTTL      time.Duration
	PollTimeout    time.Duration
}

type ReferralConfig struct {
	PointsPerReferral int64
}

type PaymentsConfig struct {
	DefaultCurrency     string
	GatewayMaxRetries   int
	GatewayRetryBackoff time.Duration
	FollowUpTimeout     time.Duration
	ReconcileStaleAfter time.Duration
	JobBatchSize        int32
}

type JobsConfig struct {
	ReconcileInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "booking-payments-service"),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		GRPC: ServerConfig{
			Host: getEnv("GRPC_HOST", "0.0.0.0"),
			Port: getEnv("GRPC_PORT", "9090"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		InternalEndpoints: InternalEndpointsConfig{
			AuthGRPCAddr: getEnv("AUTH_SERVICE_GRPC_ADDR", "localhost:9090"),
		},
		Stripe: StripeConfig{
			SecretKey:                 getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret:             getEnv("STRIPE_WEBHOOK_SECRET", ""),
			APIURL:                    getEnv("STRIPE_API_URL", ""),
			SignatureToleranceSeconds: int64(getIntEnv("STRIPE_SIGNATURE_TOLERANCE_SECONDS", 300)),
			HTTPTimeout:               getSecondsEnv("STRIPE_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			AdminRole: getEnv("JWT_ADMIN_ROLE", "admin"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Mail: MailConfig{
			Transport:    strings.ToLower(getEnv("MAIL_TRANSPORT", "smtp")),
			FromAddress:  getEnv("MAIL_FROM_ADDRESS", "no-reply@localhost"),
			FromName:     getEnv("MAIL_FROM_NAME", "Bookings"),
			SMTPHost:     getEnv("MAIL_SMTP_HOST", "localhost"),
			SMTPPort:     getIntEnv("MAIL_SMTP_PORT", 1025),
			SMTPUsername: getEnv("MAIL_SMTP_USERNAME", ""),
			SMTPPassword: getEnv("MAIL_SMTP_PASSWORD", ""),
			APIURL:       getEnv("MAIL_API_URL", ""),
			APIToken:     getEnv("MAIL_API_TOKEN", ""),
			HTTPTimeout:  getSecondsEnv("MAIL_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Notifications: NotificationsConfig{
			MaxAttempts:    getIntEnv("NOTIFY_MAX_ATTEMPTS", 3),
			RetryBaseDelay: getMillisEnv("NOTIFY_RETRY_BASE_MS", 500*time.Millisecond),
			AdminEmail:     getEnv("NOTIFY_ADMIN_EMAIL", ""),
			DedupeTTL:      getMinutesEnv("NOTIFY_DEDUPE_TTL_MINUTES", 24*60*time.Minute),
			PollTimeout:    getSecondsEnv("NOTIFY_POLL_TIMEOUT_SECONDS", 5*time.Second),
		},
		Referral: ReferralConfig{
			PointsPerReferral: int64(getIntEnv("REFERRAL_POINTS", 100)),
		},
		Payments: PaymentsConfig{
			DefaultCurrency:     strings.ToUpper(getEnv("PAYMENTS_DEFAULT_CURRENCY", "GBP")),
			GatewayMaxRetries:   getIntEnv("GATEWAY_MAX_RETRIES", 2),
			GatewayRetryBackoff: getMillisEnv("GATEWAY_RETRY_BACKOFF_MS", 200*time.Millisecond),
			FollowUpTimeout:     getSecondsEnv("PAYMENTS_FOLLOW_UP_TIMEOUT_SECONDS", 60*time.Second),
			ReconcileStaleAfter: getMinutesEnv("PAYMENTS_RECONCILE_STALE_AFTER_MINUTES", 15*time.Minute),
			JobBatchSize:        int32(getIntEnv("PAYMENTS_JOB_BATCH_SIZE", 100)),
		},
		Jobs: JobsConfig{
			ReconcileInterval: getMinutesEnv("PAYMENTS_RECONCILE_INTERVAL_MINUTES", 2*time.Minute),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

func getMillisEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if millis, err := strconv.Atoi(value); err == nil {
			return time.Duration(millis) * time.Millisecond
		}
	}
	return defaultValue
}
