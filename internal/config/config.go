package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend names accepted by the configuration
const (
	TokenStorePostgres = "postgres"
	TokenStoreRedis    = "redis"

	ImageServerLocal = "local"
	ImageServerS3    = "s3"

	MailDriverSES  = "ses"
	MailDriverSMTP = "smtp"
)

// Config is built once at startup and never mutated afterwards
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	Auth     AuthConfig
	Mail     MailConfig
	Upload   UploadConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	LogFormat      string // "json" | "text"
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TrustedProxies []string
}

type AuthConfig struct {
	JWTSecret           string
	TokenStore          string
	TokenMaxAge         time.Duration // 0 disables age-based sweeping
	CleanupInterval     time.Duration
	BcryptCost          int
	TimingDelayBaseMs   int
	TimingDelayRandomMs int
	LoginRatePerMinute  int
}

type MailConfig struct {
	Driver       string
	FromAddress  string
	AWSRegion    string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPTLSMode  string
}

type UploadConfig struct {
	ImageServer    string
	LocalDir       string
	MaxImageBytes  int
	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3AccessKeyID  string
	S3SecretKey    string
	S3UsePathStyle bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "consensus"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Prefix:   getEnv("REDIS_PREFIX", "consensus"),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", defaultLogFormat(env)),
			AllowedOrigins: parseAllowedOrigins(env),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES"),
		},
		Auth: AuthConfig{
			JWTSecret:           jwtSecret,
			TokenStore:          strings.ToLower(getEnv("TOKEN_STORE", TokenStorePostgres)),
			TokenMaxAge:         getEnvAsDuration("TOKEN_MAX_AGE", 0),
			CleanupInterval:     getEnvAsDuration("TOKEN_CLEANUP_INTERVAL", 1*time.Hour),
			BcryptCost:          getEnvAsInt("BCRYPT_COST", 12),
			TimingDelayBaseMs:   getEnvAsInt("AUTH_TIMING_DELAY_BASE_MS", 300),
			TimingDelayRandomMs: getEnvAsInt("AUTH_TIMING_DELAY_RANDOM_MS", 100),
			LoginRatePerMinute:  getEnvAsInt("LOGIN_RATE_PER_MINUTE", 10),
		},
		Mail: MailConfig{
			Driver:       strings.ToLower(getEnv("MAIL_DRIVER", MailDriverSMTP)),
			FromAddress:  getEnv("MAIL_FROM", "no-reply@newconsensus.local"),
			AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
			SMTPHost:     getEnv("SMTP_HOST", "localhost"),
			SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			SMTPTLSMode:  getEnv("SMTP_TLS_MODE", "auto"),
		},
		Upload: UploadConfig{
			ImageServer:    strings.ToLower(getEnv("IMAGE_SERVER", ImageServerLocal)),
			LocalDir:       getEnv("UPLOAD_DIR", "./uploads"),
			MaxImageBytes:  getEnvAsInt("UPLOAD_MAX_IMAGE_BYTES", 2<<20),
			S3Bucket:       getEnv("S3_BUCKET", ""),
			S3Region:       getEnv("S3_REGION", "us-east-1"),
			S3Endpoint:     getEnv("S3_ENDPOINT", ""),
			S3AccessKeyID:  getEnv("S3_ACCESS_KEY_ID", ""),
			S3SecretKey:    getEnv("S3_SECRET_ACCESS_KEY", ""),
			S3UsePathStyle: getEnvAsBool("S3_USE_PATH_STYLE", false),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if err := cfg.validateBackends(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

// validateBackends rejects unknown backend names so a typo fails at startup
// instead of at the first upload, mail or login
func (c *Config) validateBackends() error {
	switch c.Auth.TokenStore {
	case TokenStorePostgres, TokenStoreRedis:
	default:
		return fmt.Errorf("TOKEN_STORE must be %q or %q (got %q)", TokenStorePostgres, TokenStoreRedis, c.Auth.TokenStore)
	}

	switch c.Upload.ImageServer {
	case ImageServerLocal:
	case ImageServerS3:
		if c.Upload.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when IMAGE_SERVER=s3")
		}
	default:
		return fmt.Errorf("IMAGE_SERVER must be %q or %q (got %q)", ImageServerLocal, ImageServerS3, c.Upload.ImageServer)
	}

	switch c.Mail.Driver {
	case MailDriverSES, MailDriverSMTP:
	default:
		return fmt.Errorf("MAIL_DRIVER must be %q or %q (got %q)", MailDriverSES, MailDriverSMTP, c.Mail.Driver)
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func defaultLogFormat(env string) string {
	if env == "development" {
		return "text"
	}
	return "json"
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	items := strings.Split(value, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return getEnvAsList("ALLOWED_ORIGINS")
	}

	// Development: the admin console and web client dev servers
	return []string{
		"http://localhost:3000",
		"http://localhost:4200",
		"http://localhost:4300",
		"http://localhost:8080",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:4200",
		"http://127.0.0.1:4300",
		"http://127.0.0.1:8080",
	}
}
