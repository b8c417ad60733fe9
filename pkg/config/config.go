package config

import (
	"errors"
	"fmt"
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

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Scheduler SchedulerConfig
	Calendar  CalendarConfig
	Cache     CacheConfig
}

type DatabaseConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxOpenConns   int
	MaxIdleConns   int
	MigrateOnStart bool
}

// DSN renders a libpq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig validates tokens minted by the identity service.
type JWTConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SchedulerConfig holds course defaults and runtime knobs for exam-slot generation.
type SchedulerConfig struct {
	ExamDurationMinutes    int
	BufferMinutes          int
	StartTime              string
	EndTime                string
	ExcludedDays           []string
	ScheduleFrequencyWeeks int
	TotalExams             int
	LockTTL                time.Duration
	RunTTL                 time.Duration
	Workers                int
}

// CalendarConfig signs public student calendar links.
type CalendarConfig struct {
	SigningSecret string
	LinkTTL       time.Duration
	PublicBaseURL string
	TimeZone      string
}

// CacheConfig tunes the slot listing cache.
type CacheConfig struct {
	ListingTTL time.Duration
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("APP_ENV")
	cfg.Port = v.GetInt("API_PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:           v.GetString("DB_HOST"),
		Port:           v.GetInt("DB_PORT"),
		User:           v.GetString("DB_USER"),
		Password:       v.GetString("DB_PASSWORD"),
		Name:           v.GetString("DB_NAME"),
		SSLMode:        v.GetString("DB_SSL_MODE"),
		MaxOpenConns:   v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:   v.GetInt("DB_MAX_IDLE_CONNS"),
		MigrateOnStart: v.GetBool("MIGRATE_ON_START"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Issuer:     v.GetString("JWT_ISSUER"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("CORS_ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Scheduler = SchedulerConfig{
		ExamDurationMinutes:    v.GetInt("SCHEDULE_EXAM_DURATION_MINUTES"),
		BufferMinutes:          v.GetInt("SCHEDULE_BUFFER_MINUTES"),
		StartTime:              v.GetString("SCHEDULE_START_TIME"),
		EndTime:                v.GetString("SCHEDULE_END_TIME"),
		ExcludedDays:           splitAndTrim(v.GetString("SCHEDULE_EXCLUDED_DAYS")),
		ScheduleFrequencyWeeks: v.GetInt("SCHEDULE_FREQUENCY_WEEKS"),
		TotalExams:             v.GetInt("SCHEDULE_TOTAL_EXAMS"),
		LockTTL:                parseDuration(v.GetString("SCHEDULE_LOCK_TTL"), 2*time.Minute),
		RunTTL:                 parseDuration(v.GetString("SCHEDULE_RUN_TTL"), time.Hour),
		Workers:                v.GetInt("SCHEDULE_WORKERS"),
	}

	cfg.Calendar = CalendarConfig{
		SigningSecret: v.GetString("CALENDAR_SIGNING_SECRET"),
		LinkTTL:       parseDuration(v.GetString("CALENDAR_LINK_TTL"), 30*24*time.Hour),
		PublicBaseURL: strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/"),
		TimeZone:      v.GetString("CALENDAR_TIMEZONE"),
	}

	cfg.Cache = CacheConfig{
		ListingTTL: parseDuration(v.GetString("CACHE_LISTING_TTL"), 5*time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", EnvDevelopment)
	v.SetDefault("API_PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "examslot")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("MIGRATE_ON_START", false)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "examslot")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SCHEDULE_EXAM_DURATION_MINUTES", 7)
	v.SetDefault("SCHEDULE_BUFFER_MINUTES", 1)
	v.SetDefault("SCHEDULE_START_TIME", "13:30")
	v.SetDefault("SCHEDULE_END_TIME", "14:50")
	v.SetDefault("SCHEDULE_EXCLUDED_DAYS", "saturday,sunday")
	v.SetDefault("SCHEDULE_FREQUENCY_WEEKS", 2)
	v.SetDefault("SCHEDULE_TOTAL_EXAMS", 5)
	v.SetDefault("SCHEDULE_LOCK_TTL", "2m")
	v.SetDefault("SCHEDULE_RUN_TTL", "1h")
	v.SetDefault("SCHEDULE_WORKERS", 2)

	v.SetDefault("CALENDAR_SIGNING_SECRET", "dev_calendar_secret")
	v.SetDefault("CALENDAR_LINK_TTL", "720h")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")
	v.SetDefault("CALENDAR_TIMEZONE", "UTC")
	v.SetDefault("CACHE_LISTING_TTL", "5m")
}

// viper reports a missing explicit config file as a path error rather than ConfigFileNotFoundError.
func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
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
