package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Leaves        LeavesConfig
	Payments      PaymentsConfig
	Notifications NotificationsConfig
	Locations     LocationsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// LeavesConfig tunes the leave-request workflow surface.
type LeavesConfig struct {
	MaxReasonLength int
	PassEnabled     bool
}

// PaymentsConfig configures hostel fee invoicing and reminders.
type PaymentsConfig struct {
	Enabled           bool
	GatewayKey        string
	GatewaySecret     string
	ReminderInterval  time.Duration
	ReminderLeadTime  time.Duration
	WorkerConcurrency int
	WorkerRetries     int
}

// NotificationsConfig configures outbound email dispatch.
type NotificationsConfig struct {
	Enabled     bool
	SMTPHost    string
	SMTPPort    int
	SMTPUser    string
	SMTPPass    string
	FromAddress string
	Workers     int
}

// LocationsConfig governs the geolocation ping storage.
type LocationsConfig struct {
	Enabled      bool
	LastKnownTTL time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Leaves = LeavesConfig{
		MaxReasonLength: v.GetInt("LEAVES_MAX_REASON_LENGTH"),
		PassEnabled:     v.GetBool("ENABLE_LEAVE_PASS"),
	}

	cfg.Payments = PaymentsConfig{
		Enabled:           v.GetBool("ENABLE_PAYMENTS"),
		GatewayKey:        v.GetString("PAYMENT_GATEWAY_KEY"),
		GatewaySecret:     v.GetString("PAYMENT_GATEWAY_SECRET"),
		ReminderInterval:  parseDuration(v.GetString("PAYMENT_REMINDER_INTERVAL"), 12*time.Hour),
		ReminderLeadTime:  parseDuration(v.GetString("PAYMENT_REMINDER_LEAD_TIME"), 72*time.Hour),
		WorkerConcurrency: v.GetInt("PAYMENT_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("PAYMENT_WORKER_RETRIES"),
	}

	cfg.Notifications = NotificationsConfig{
		Enabled:     v.GetBool("ENABLE_NOTIFICATIONS"),
		SMTPHost:    v.GetString("SMTP_HOST"),
		SMTPPort:    v.GetInt("SMTP_PORT"),
		SMTPUser:    v.GetString("SMTP_USER"),
		SMTPPass:    v.GetString("SMTP_PASSWORD"),
		FromAddress: v.GetString("SMTP_FROM"),
		Workers:     v.GetInt("NOTIFICATION_WORKERS"),
	}

	cfg.Locations = LocationsConfig{
		Enabled:      v.GetBool("ENABLE_LOCATIONS"),
		LastKnownTTL: parseDuration(v.GetString("LOCATION_LAST_KNOWN_TTL"), 30*time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "asrama")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("LEAVES_MAX_REASON_LENGTH", 500)
	v.SetDefault("ENABLE_LEAVE_PASS", true)

	v.SetDefault("ENABLE_PAYMENTS", false)
	v.SetDefault("PAYMENT_GATEWAY_KEY", "")
	v.SetDefault("PAYMENT_GATEWAY_SECRET", "")
	v.SetDefault("PAYMENT_REMINDER_INTERVAL", "12h")
	v.SetDefault("PAYMENT_REMINDER_LEAD_TIME", "72h")
	v.SetDefault("PAYMENT_WORKER_CONCURRENCY", 1)
	v.SetDefault("PAYMENT_WORKER_RETRIES", 3)

	v.SetDefault("ENABLE_NOTIFICATIONS", false)
	v.SetDefault("SMTP_HOST", "localhost")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "noreply@asrama.local")
	v.SetDefault("NOTIFICATION_WORKERS", 1)

	v.SetDefault("ENABLE_LOCATIONS", false)
	v.SetDefault("LOCATION_LAST_KNOWN_TTL", "30m")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
