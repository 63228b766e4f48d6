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

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Registrar RegistrarConfig
	Export    ExportConfig
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
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// RegistrarConfig tunes the enrollment and grading engine.
type RegistrarConfig struct {
	DefaultMaxCreditHours int
	CGPACacheEnabled      bool
	CGPACacheTTL          time.Duration
	ReconcileEnabled      bool
}

// ExportConfig tunes background transcript exports.
type ExportConfig struct {
	Dir             string
	SignSecret      string
	ResultTTL       time.Duration
	CleanupInterval time.Duration
	Workers         int
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

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Registrar = RegistrarConfig{
		DefaultMaxCreditHours: v.GetInt("REGISTRAR_DEFAULT_MAX_CREDIT_HOURS"),
		CGPACacheEnabled:      v.GetBool("REGISTRAR_CGPA_CACHE_ENABLED"),
		CGPACacheTTL:          parseDuration(v.GetString("REGISTRAR_CGPA_CACHE_TTL"), 10*time.Minute),
		ReconcileEnabled:      v.GetBool("REGISTRAR_RECONCILE_ENABLED"),
	}

	cfg.Export = ExportConfig{
		Dir:             v.GetString("EXPORT_DIR"),
		SignSecret:      v.GetString("EXPORT_SIGN_SECRET"),
		ResultTTL:       parseDuration(v.GetString("EXPORT_RESULT_TTL"), 24*time.Hour),
		CleanupInterval: parseDuration(v.GetString("EXPORT_CLEANUP_INTERVAL"), time.Hour),
		Workers:         v.GetInt("EXPORT_WORKERS"),
	}
	if cfg.Export.SignSecret == "" {
		cfg.Export.SignSecret = cfg.JWT.Secret
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
	v.SetDefault("DB_NAME", "uni_registrar")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("REGISTRAR_DEFAULT_MAX_CREDIT_HOURS", 18)
	v.SetDefault("REGISTRAR_CGPA_CACHE_ENABLED", true)
	v.SetDefault("REGISTRAR_CGPA_CACHE_TTL", "10m")
	v.SetDefault("REGISTRAR_RECONCILE_ENABLED", true)

	v.SetDefault("EXPORT_DIR", "./exports")
	v.SetDefault("EXPORT_SIGN_SECRET", "")
	v.SetDefault("EXPORT_RESULT_TTL", "24h")
	v.SetDefault("EXPORT_CLEANUP_INTERVAL", "1h")
	v.SetDefault("EXPORT_WORKERS", 2)
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
