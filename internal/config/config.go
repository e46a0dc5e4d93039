package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	Env      string // "development" or "production"
	Port     int
	SiteURL  string
	LogLevel string
	LogJSON  bool

	DatabaseDriver string // sqlite3, sqlite or postgres
	DatabaseURL    string

	AdminPassword string

	Wedding Wedding
	SMTP    SMTP

	NotifyEmail   string
	WebhookURL    string
	WebhookSecret string

	PhoneCountryCode string
	SendDelay        time.Duration
	BulkEmailLimit   int

	PublicRateLimit int // requests per minute per IP
	EmailRateLimit  int // single sends per minute per IP

	WhatsAppEnabled bool
	WhatsAppDataDir string

	Backup Backup
}

// Wedding holds the details printed on every invitation
type Wedding struct {
	Date      string
	Location  string
	BrideName string
	GroomName string
}

// Couple returns "Bride & Groom"
func (w Wedding) Couple() string {
	return w.BrideName + " & " + w.GroomName
}

// SMTP holds outbound mail settings
type SMTP struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
	TLS      bool // implicit TLS, usually port 465
}

// Configured reports whether enough is set to attempt delivery
func (s SMTP) Configured() bool {
	return s.Host != "" && s.From != ""
}

// Addr returns host:port
func (s SMTP) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Backup holds S3-compatible backup settings
type Backup struct {
	Bucket        string
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	Prefix        string
	RetentionDays int
}

// Configured reports whether backups can be uploaded
func (b Backup) Configured() bool {
	return b.Bucket != "" && b.AccessKey != "" && b.SecretKey != ""
}

// LoadConfig loads configuration from a .env file (when present), environment
// variables and defaults
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("APP_ENV", "development"),
		Port:     getEnvInt("PORT", 3000),
		SiteURL:  strings.TrimRight(getEnv("SITE_URL", "http://localhost:3000"), "/"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogJSON:  getEnvBool("LOG_JSON", false),

		DatabaseDriver: getEnv("DATABASE_DRIVER", "sqlite3"),
		DatabaseURL:    getEnv("DATABASE_URL", "data/wedding.db"),

		AdminPassword: os.Getenv("ADMIN_PASSWORD"),

		Wedding: Wedding{
			Date:      getEnv("WEDDING_DATE", "14 juin 2026"),
			Location:  getEnv("WEDDING_LOCATION", "Paris"),
			BrideName: getEnv("BRIDE_NAME", "Dvora"),
			GroomName: getEnv("GROOM_NAME", "Nathan"),
		},
		SMTP: SMTP{
			Host:     os.Getenv("EMAIL_HOST"),
			Port:     getEnvInt("EMAIL_PORT", 587),
			User:     os.Getenv("EMAIL_USER"),
			Password: os.Getenv("EMAIL_PASS"),
			From:     os.Getenv("EMAIL_FROM"),
			FromName: os.Getenv("EMAIL_FROM_NAME"),
			TLS:      getEnvBool("EMAIL_SECURE", false),
		},

		NotifyEmail:   os.Getenv("NOTIFY_EMAIL"),
		WebhookURL:    os.Getenv("WEBHOOK_URL"),
		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),

		PhoneCountryCode: getEnv("PHONE_COUNTRY_CODE", "33"),
		SendDelay:        getEnvDuration("SEND_DELAY", 500*time.Millisecond),
		BulkEmailLimit:   getEnvInt("BULK_EMAIL_LIMIT", 50),

		PublicRateLimit: getEnvInt("PUBLIC_RATE_LIMIT", 100),
		EmailRateLimit:  getEnvInt("EMAIL_RATE_LIMIT", 10),

		WhatsAppEnabled: getEnvBool("WHATSAPP_ENABLED", false),
		WhatsAppDataDir: getEnv("WHATSAPP_DATA_DIR", "data"),

		Backup: Backup{
			Bucket:        os.Getenv("BACKUP_BUCKET_NAME"),
			Endpoint:      os.Getenv("BACKUP_ENDPOINT_URL"),
			Region:        getEnv("BACKUP_REGION", "auto"),
			AccessKey:     os.Getenv("BACKUP_ACCESS_KEY_ID"),
			SecretKey:     os.Getenv("BACKUP_SECRET_ACCESS_KEY"),
			Prefix:        getEnv("BACKUP_PREFIX", "wedding-rsvp"),
			RetentionDays: getEnvInt("BACKUP_RETENTION_DAYS", 30),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProduction reports whether internal error details must be hidden
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// InvitationLink builds the personal RSVP link for a guest token
func (c *Config) InvitationLink(token string) string {
	return c.SiteURL + "/invitation/" + token
}

func (c *Config) validate() error {
	switch c.DatabaseDriver {
	case "sqlite3", "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q (sqlite3, sqlite or postgres)", c.DatabaseDriver)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.IsProduction() && c.AdminPassword == "" {
		return fmt.Errorf("ADMIN_PASSWORD required in production")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
