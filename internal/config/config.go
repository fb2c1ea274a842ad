// Package config loads service configuration from environment variables and
// validates the invariants the rest of the system assumes, in particular the
// relative ordering of the token lifetimes.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every knob the service reads at startup.
type Config struct {
	Addr        string
	Environment string
	Version     string

	// Postgres. Empty DSN keeps the service on in-memory stores.
	PGDSN string

	// Token signing and lifetimes.
	AuthSecret  string
	Issuer      string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	RecoveryTTL time.Duration

	// Password policy.
	MinPasswordLen int

	// Audit retention used by the cleanup maintenance operation.
	AuditRetention time.Duration

	// Per-IP rate limiting on the HTTP surface.
	RateBurst  int
	RatePerSec int

	// SMTP delivery for recovery emails.
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	SMTPEncryption string
	EmailFrom      string
	EmailFromName  string

	// Public base URL used to compose reset links in emails.
	PublicBaseURL string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// Load reads configuration from the environment with development defaults.
func Load() *Config {
	return &Config{
		Addr:        getenv("JOBDESK_ADDR", ":8080"),
		Environment: getenv("JOBDESK_ENV", "development"),
		Version:     getenv("JOBDESK_VERSION", "dev"),

		PGDSN: getenv("JOBDESK_PG_DSN", ""),

		AuthSecret:  getenv("JOBDESK_AUTH_SECRET", ""),
		Issuer:      getenv("JOBDESK_TOKEN_ISSUER", "jobdesk"),
		AccessTTL:   getenvDuration("JOBDESK_ACCESS_TTL", time.Hour),
		RefreshTTL:  getenvDuration("JOBDESK_REFRESH_TTL", 7*24*time.Hour),
		RecoveryTTL: getenvDuration("JOBDESK_RECOVERY_TTL", 30*time.Minute),

		MinPasswordLen: getenvInt("JOBDESK_MIN_PASSWORD_LEN", 8),
		AuditRetention: getenvDuration("JOBDESK_AUDIT_RETENTION", 90*24*time.Hour),

		RateBurst:  getenvInt("JOBDESK_RATE_BURST", 20),
		RatePerSec: getenvInt("JOBDESK_RATE_PER_SEC", 10),

		SMTPHost:       getenv("JOBDESK_SMTP_HOST", ""),
		SMTPPort:       getenvInt("JOBDESK_SMTP_PORT", 587),
		SMTPUsername:   getenv("JOBDESK_SMTP_USERNAME", ""),
		SMTPPassword:   getenv("JOBDESK_SMTP_PASSWORD", ""),
		SMTPEncryption: getenv("JOBDESK_SMTP_ENCRYPTION", "STARTTLS"),
		EmailFrom:      getenv("JOBDESK_EMAIL_FROM", ""),
		EmailFromName:  getenv("JOBDESK_EMAIL_FROM_NAME", "JobDesk Admin"),

		PublicBaseURL: getenv("JOBDESK_PUBLIC_BASE_URL", ""),
	}
}

// Validate checks the invariants that would otherwise surface as runtime
// faults: a signing secret outside development, and the required relative
// ordering of the token lifetimes.
func (c *Config) Validate() error {
	if c.AuthSecret == "" && c.Environment != "development" {
		return errors.New("config: JOBDESK_AUTH_SECRET is required outside development")
	}
	if c.RecoveryTTL <= 0 || c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return errors.New("config: token lifetimes must be positive")
	}
	if c.RecoveryTTL >= c.AccessTTL || c.AccessTTL >= c.RefreshTTL {
		return fmt.Errorf("config: token lifetimes must satisfy recovery < access < refresh (got %s, %s, %s)",
			c.RecoveryTTL, c.AccessTTL, c.RefreshTTL)
	}
	if c.MinPasswordLen < 1 {
		return errors.New("config: minimum password length must be at least 1")
	}
	return nil
}
