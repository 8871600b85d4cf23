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

	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Mail     MailConfig
	Storage  StorageConfig
	CORS     CORSConfig
	Log      LogConfig
	Invoices InvoicesConfig
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

// AuthConfig carries the token signing material and lifetimes. Access and
// refresh tokens are signed with distinct secrets so a leaked access key
// cannot forge refresh tokens and vice versa.
type AuthConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	Issuer        string
	OTPExpiry     time.Duration
	CookieDomain  string
	CookieSecure  bool
}

// MailConfig configures the SMTP sender used for OTP delivery.
type MailConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	Encryption  string
	FromAddress string
	FromName    string
}

// StorageConfig points at the S3-compatible bucket holding rendered invoice PDFs.
type StorageConfig struct {
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	Bucket       string
	PublicURL    string
	UsePathStyle bool
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// InvoicesConfig caps per-user invoice history and tunes the list cache.
type InvoicesConfig struct {
	MaxPerUser   int
	ListCacheTTL time.Duration
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

	cfg.Auth = AuthConfig{
		AccessSecret:  v.GetString("JWT_ACCESS_SECRET"),
		RefreshSecret: v.GetString("JWT_REFRESH_SECRET"),
		AccessExpiry:  parseDuration(v.GetString("ACCESS_TOKEN_EXPIRATION"), 15*time.Minute),
		RefreshExpiry: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
		Issuer:        v.GetString("JWT_ISSUER"),
		OTPExpiry:     parseDuration(v.GetString("OTP_EXPIRATION"), 10*time.Minute),
		CookieDomain:  v.GetString("AUTH_COOKIE_DOMAIN"),
		CookieSecure:  v.GetString("ENV") == EnvProduction,
	}

	cfg.Mail = MailConfig{
		Host:        v.GetString("MAIL_HOST"),
		Port:        v.GetInt("MAIL_PORT"),
		Username:    v.GetString("MAIL_USERNAME"),
		Password:    v.GetString("MAIL_PASSWORD"),
		Encryption:  v.GetString("MAIL_ENCRYPTION"),
		FromAddress: v.GetString("MAIL_FROM_ADDRESS"),
		FromName:    v.GetString("MAIL_FROM_NAME"),
	}

	cfg.Storage = StorageConfig{
		Region:       v.GetString("S3_REGION"),
		Endpoint:     v.GetString("S3_ENDPOINT"),
		AccessKey:    v.GetString("S3_ACCESS_KEY"),
		SecretKey:    v.GetString("S3_SECRET_KEY"),
		Bucket:       v.GetString("S3_BUCKET"),
		PublicURL:    v.GetString("S3_PUBLIC_URL"),
		UsePathStyle: v.GetBool("S3_USE_PATH_STYLE"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Invoices = InvoicesConfig{
		MaxPerUser:   v.GetInt("INVOICES_MAX_PER_USER"),
		ListCacheTTL: parseDuration(v.GetString("INVOICES_LIST_CACHE_TTL"), 5*time.Minute),
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
	v.SetDefault("DB_NAME", "challan_maker")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_ACCESS_SECRET", "dev_access_secret")
	v.SetDefault("JWT_REFRESH_SECRET", "dev_refresh_secret")
	v.SetDefault("ACCESS_TOKEN_EXPIRATION", "15m")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")
	v.SetDefault("JWT_ISSUER", "challan-maker")
	v.SetDefault("OTP_EXPIRATION", "10m")
	v.SetDefault("AUTH_COOKIE_DOMAIN", "")

	v.SetDefault("MAIL_HOST", "localhost")
	v.SetDefault("MAIL_PORT", 587)
	v.SetDefault("MAIL_USERNAME", "")
	v.SetDefault("MAIL_PASSWORD", "")
	v.SetDefault("MAIL_ENCRYPTION", "starttls")
	v.SetDefault("MAIL_FROM_ADDRESS", "no-reply@challan-maker.local")
	v.SetDefault("MAIL_FROM_NAME", "Challan Maker")

	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("S3_ACCESS_KEY", "")
	v.SetDefault("S3_SECRET_KEY", "")
	v.SetDefault("S3_BUCKET", "challan-invoices")
	v.SetDefault("S3_PUBLIC_URL", "")
	v.SetDefault("S3_USE_PATH_STYLE", true)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("INVOICES_MAX_PER_USER", 5)
	v.SetDefault("INVOICES_LIST_CACHE_TTL", "5m")
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
