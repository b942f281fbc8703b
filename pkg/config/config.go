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

// Escalation dedup relies on notification history; retention must never undercut
// the longest cool-down on the escalation ladder.
const MinRetention = 31 * 24 * time.Hour

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Scheduler  SchedulerConfig
	Email      EmailConfig
	Push       PushConfig
	Reminders  RemindersConfig
	Escalation EscalationConfig
	Reports    ReportsConfig
	Retention  RetentionConfig
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
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SchedulerConfig holds recurring job intervals. The intervals are tuning knobs,
// not structural requirements.
type SchedulerConfig struct {
	Enabled         bool
	SweepInterval   time.Duration
	FlushInterval   time.Duration
	CleanupInterval time.Duration
	DigestInterval  time.Duration
}

// EmailConfig configures the Resend email channel. An empty APIKey disables
// the channel.
type EmailConfig struct {
	APIKey      string
	FromAddress string
	FromName    string
	BaseURL     string
}

// PushConfig configures the webhook push channel. An empty URL disables it.
type PushConfig struct {
	WebhookURL string
	AuthToken  string
	Timeout    time.Duration
}

// RemindersConfig tunes deadline reminder behaviour.
type RemindersConfig struct {
	DedupWindow         time.Duration
	DefaultLeadDays     int
	DigestLookaheadDays int
}

// EscalationConfig tunes the overdue escalation ladder.
type EscalationConfig struct {
	DedupWindow     time.Duration
	DeliveryTimeout time.Duration
}

// ReportsConfig controls where overdue breakdown reports are written.
type ReportsConfig struct {
	StorageDir string
}

// RetentionConfig controls the cleanup job.
type RetentionConfig struct {
	MaxAge time.Duration
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
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: splitAndTrim(v.GetString("JWT_AUDIENCE")),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Scheduler = SchedulerConfig{
		Enabled:         v.GetBool("SCHEDULER_ENABLED"),
		SweepInterval:   parseDuration(v.GetString("SCHEDULER_SWEEP_INTERVAL"), time.Hour),
		FlushInterval:   parseDuration(v.GetString("SCHEDULER_FLUSH_INTERVAL"), 5*time.Minute),
		CleanupInterval: parseDuration(v.GetString("SCHEDULER_CLEANUP_INTERVAL"), 24*time.Hour),
		DigestInterval:  parseDuration(v.GetString("SCHEDULER_DIGEST_INTERVAL"), 7*24*time.Hour),
	}

	cfg.Email = EmailConfig{
		APIKey:      v.GetString("RESEND_API_KEY"),
		FromAddress: v.GetString("EMAIL_FROM_ADDRESS"),
		FromName:    v.GetString("EMAIL_FROM_NAME"),
		BaseURL:     v.GetString("APP_BASE_URL"),
	}

	cfg.Push = PushConfig{
		WebhookURL: v.GetString("PUSH_WEBHOOK_URL"),
		AuthToken:  v.GetString("PUSH_AUTH_TOKEN"),
		Timeout:    parseDuration(v.GetString("PUSH_TIMEOUT"), 10*time.Second),
	}

	cfg.Reminders = RemindersConfig{
		DedupWindow:         parseDuration(v.GetString("REMINDER_DEDUP_WINDOW"), 24*time.Hour),
		DefaultLeadDays:     v.GetInt("REMINDER_DEFAULT_LEAD_DAYS"),
		DigestLookaheadDays: v.GetInt("DIGEST_LOOKAHEAD_DAYS"),
	}

	cfg.Escalation = EscalationConfig{
		DedupWindow:     parseDuration(v.GetString("ESCALATION_DEDUP_WINDOW"), 24*time.Hour),
		DeliveryTimeout: parseDuration(v.GetString("ESCALATION_DELIVERY_TIMEOUT"), 15*time.Second),
	}

	cfg.Reports = ReportsConfig{
		StorageDir: v.GetString("REPORTS_STORAGE_DIR"),
	}

	cfg.Retention = RetentionConfig{
		MaxAge: parseDuration(v.GetString("NOTIFICATION_RETENTION"), 90*24*time.Hour),
	}
	if cfg.Retention.MaxAge < MinRetention {
		cfg.Retention.MaxAge = MinRetention
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
	v.SetDefault("DB_NAME", "campus_iqa")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "campus-iqa")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SCHEDULER_ENABLED", true)
	v.SetDefault("SCHEDULER_SWEEP_INTERVAL", "1h")
	v.SetDefault("SCHEDULER_FLUSH_INTERVAL", "5m")
	v.SetDefault("SCHEDULER_CLEANUP_INTERVAL", "24h")
	v.SetDefault("SCHEDULER_DIGEST_INTERVAL", "168h")

	v.SetDefault("RESEND_API_KEY", "")
	v.SetDefault("EMAIL_FROM_ADDRESS", "no-reply@campus-iqa.local")
	v.SetDefault("EMAIL_FROM_NAME", "IQA Notifications")
	v.SetDefault("APP_BASE_URL", "http://localhost:3000")

	v.SetDefault("PUSH_WEBHOOK_URL", "")
	v.SetDefault("PUSH_AUTH_TOKEN", "")
	v.SetDefault("PUSH_TIMEOUT", "10s")

	v.SetDefault("REMINDER_DEDUP_WINDOW", "24h")
	v.SetDefault("REMINDER_DEFAULT_LEAD_DAYS", 7)
	v.SetDefault("DIGEST_LOOKAHEAD_DAYS", 7)

	v.SetDefault("ESCALATION_DEDUP_WINDOW", "24h")
	v.SetDefault("ESCALATION_DELIVERY_TIMEOUT", "15s")

	v.SetDefault("REPORTS_STORAGE_DIR", "./reports")

	v.SetDefault("NOTIFICATION_RETENTION", "2160h")
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
