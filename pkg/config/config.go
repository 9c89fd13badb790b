package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/diagnosis/luma-gate/internal/utils"
)

type Config struct {
	Gate     GateConfig
	Server   ServerConfig
	API      APIConfig
	Auth     AuthConfig
	Scanner  ScannerConfig
	Redis    RedisConfig
	Database DatabaseConfig
	NATS     NATSConfig
	Email    EmailConfig
}

type GateConfig struct {
	Name string // lane identifier, appears in logs, events and alerts
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	CORSOrigins  string // comma-separated allowed origins for the admin UI
}

type APIConfig struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	RetryMax  int
	RetryBase time.Duration
	RetryCap  time.Duration
}

type AuthConfig struct {
	AccountEmail      string
	AccountPassword   string
	CredentialsFile   string
	JWTSecret         string
	AdminPasswordHash string // argon2id PHC string; empty disables operator login
	AdminTokenTTL     time.Duration
}

type ScannerConfig struct {
	URLPrefix string
	Cooldown  time.Duration
	QueueSize int
}

type RedisConfig struct {
	Addr     string // empty keeps deduplication in-process
	Password string
	DB       int
}

type DatabaseConfig struct {
	URL string // empty disables the check-in audit log
}

type NATSConfig struct {
	URL string // empty disables outcome publishing
}

type EmailConfig struct {
	SMTPHost      string
	SMTPPort      int
	SMTPUser      string
	SMTPPass      string
	SMTPFrom      string
	SMTPUseTLS    bool
	MailerSendKey string
	OperatorEmail string // recipient for gate alerts; empty disables them
	DevMode       bool   // print emails to logs instead of sending
}

func Load() *Config {
	return &Config{
		Gate: GateConfig{
			Name: getEnv("GATE_NAME", "gate-1"),
		},
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 5*time.Second),
			WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			CORSOrigins:  getEnv("CORS_ORIGINS", "*"),
		},
		API: APIConfig{
			BaseURL:   getEnv("LUMA_BASE_URL", "https://api.lu.ma"),
			Timeout:   getDuration("LUMA_API_TIMEOUT", 15*time.Second),
			UserAgent: getEnv("LUMA_USER_AGENT", "luma-gate/1.0"),
			RetryMax:  getInt("LUMA_RETRY_MAX", 3),
			RetryBase: getDuration("LUMA_RETRY_BASE", 500*time.Millisecond),
			RetryCap:  getDuration("LUMA_RETRY_CAP", 5*time.Second),
		},
		Auth: AuthConfig{
			AccountEmail:      getEnv("LUMA_EMAIL", ""),
			AccountPassword:   getEnv("LUMA_PASSWORD", ""),
			CredentialsFile:   getEnv("CREDENTIALS_FILE", "credentials.json"),
			JWTSecret:         getEnv("JWT_SECRET", "dev-only-secret-change-in-prod"),
			AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
			AdminTokenTTL:     getDuration("ADMIN_TOKEN_TTL", 12*time.Hour),
		},
		Scanner: ScannerConfig{
			URLPrefix: getEnv("CHECKIN_URL_PREFIX", "https://lu.ma/check-in/"),
			Cooldown:  getDuration("SCAN_COOLDOWN", 5*time.Second),
			QueueSize: getInt("SCAN_QUEUE_SIZE", 32),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		NATS: NATSConfig{
			URL: getEnv("NATS_URL", ""),
		},
		Email: EmailConfig{
			SMTPHost:      getEnv("SMTP_HOST", "localhost"),
			SMTPPort:      getInt("SMTP_PORT", 1025),
			SMTPUser:      getEnv("SMTP_USER", ""),
			SMTPPass:      getEnv("SMTP_PASS", ""),
			SMTPFrom:      getEnv("SMTP_FROM", "noreply@luma-gate.local"),
			SMTPUseTLS:    getBool("SMTP_USE_TLS", false),
			MailerSendKey: getEnv("MAILERSEND_API_KEY", ""),
			OperatorEmail: getEnv("OPERATOR_EMAIL", ""),
			DevMode:       getBool("EMAIL_DEV_MODE", true),
		},
	}
}

// Validate checks the settings the gate cannot run without.
func (c *Config) Validate() error {
	if c.Auth.AccountEmail == "" {
		return fmt.Errorf("LUMA_EMAIL is required")
	}
	if !utils.IsValidEmail(c.Auth.AccountEmail) {
		return fmt.Errorf("LUMA_EMAIL %q is not a valid email address", c.Auth.AccountEmail)
	}
	if c.Auth.AccountPassword == "" {
		return fmt.Errorf("LUMA_PASSWORD is required")
	}
	if c.Email.OperatorEmail != "" && !utils.IsValidEmail(c.Email.OperatorEmail) {
		return fmt.Errorf("OPERATOR_EMAIL %q is not a valid email address", c.Email.OperatorEmail)
	}
	if c.Scanner.Cooldown <= 0 {
		return fmt.Errorf("SCAN_COOLDOWN must be positive")
	}
	if c.API.RetryMax < 1 {
		return fmt.Errorf("LUMA_RETRY_MAX must be at least 1")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
