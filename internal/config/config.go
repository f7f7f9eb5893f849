package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`
	NotifyDomain string `mapstructure:"NOTIFY_DOMAIN"`

	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`

	// Exempt categories whose submissions are approved without convened
	// board review once validation passes.
	ExemptAutoApproveCategories []string `mapstructure:"EXEMPT_AUTO_APPROVE_CATEGORIES"`

	// Reviewer pool for expedited auto-assignment (round robin).
	ExpeditedReviewers []string `mapstructure:"EXPEDITED_REVIEWERS"`

	// Desk addresses receiving trigger-routed notifications.
	SafetyEmail     string `mapstructure:"SAFETY_EMAIL"`
	RegulatoryEmail string `mapstructure:"REGULATORY_EMAIL"`
	IRBEmail        string `mapstructure:"IRB_EMAIL"`

	SchedulerEnabled       bool          `mapstructure:"SCHEDULER_ENABLED"`
	ScanInterval           time.Duration `mapstructure:"SCAN_INTERVAL"`
	ContinuingReviewWindow time.Duration `mapstructure:"CONTINUING_REVIEW_WINDOW"`
	DocumentExpiryWindow   time.Duration `mapstructure:"DOCUMENT_EXPIRY_WINDOW"`
	ComplianceFlagWindow   time.Duration `mapstructure:"COMPLIANCE_FLAG_WINDOW"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("NOTIFY_DOMAIN", "localhost")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("EXEMPT_AUTO_APPROVE_CATEGORIES", "EXEMPT_1,EXEMPT_2,EXEMPT_4")
	v.SetDefault("SAFETY_EMAIL", "safety-desk@localhost")
	v.SetDefault("REGULATORY_EMAIL", "regulatory-desk@localhost")
	v.SetDefault("IRB_EMAIL", "irb-office@localhost")
	v.SetDefault("SCHEDULER_ENABLED", true)
	v.SetDefault("SCAN_INTERVAL", "1h")
	v.SetDefault("CONTINUING_REVIEW_WINDOW", "720h") // 30 days
	v.SetDefault("DOCUMENT_EXPIRY_WINDOW", "720h")
	v.SetDefault("COMPLIANCE_FLAG_WINDOW", "24h")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"CORS_ORIGINS", "AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
		"SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD",
		"SMTP_FROM", "NOTIFY_DOMAIN", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
		"REQUEST_TIMEOUT", "BODY_LIMIT", "EXEMPT_AUTO_APPROVE_CATEGORIES",
		"EXPEDITED_REVIEWERS", "SAFETY_EMAIL", "REGULATORY_EMAIL", "IRB_EMAIL",
		"SCHEDULER_ENABLED", "SCAN_INTERVAL", "CONTINUING_REVIEW_WINDOW",
		"DOCUMENT_EXPIRY_WINDOW", "COMPLIANCE_FLAG_WINDOW",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.ExemptAutoApproveCategories == nil {
		cats := v.GetString("EXEMPT_AUTO_APPROVE_CATEGORIES")
		if cats != "" {
			cfg.ExemptAutoApproveCategories = strings.Split(cats, ",")
		}
	}

	if cfg.ExpeditedReviewers == nil {
		reviewers := v.GetString("EXPEDITED_REVIEWERS")
		if reviewers != "" {
			cfg.ExpeditedReviewers = strings.Split(reviewers, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active — all requests get admin access.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: Set ENV=production and configure AUTH_SIGNING_KEY.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// a JWT signing key is required so real authentication is enforced, and SMTP
// must be configured so regulatory notifications can actually be delivered.
func (c *Config) Validate() error {
	if !c.IsDev() {
		if c.AuthSigningKey == "" {
			return fmt.Errorf(
				"AUTH_SIGNING_KEY must be set when ENV is %q. "+
					"Refusing to start without authentication configuration", c.Env)
		}
		if c.SMTPHost == "" {
			return fmt.Errorf("SMTP_HOST is required when ENV is %q: regulatory notifications must be deliverable", c.Env)
		}
		if c.SMTPFrom == "" {
			return fmt.Errorf("SMTP_FROM is required when SMTP is configured")
		}
	}

	if c.ScanInterval <= 0 {
		return fmt.Errorf("SCAN_INTERVAL must be positive, got %s", c.ScanInterval)
	}
	if c.ContinuingReviewWindow <= 0 || c.DocumentExpiryWindow <= 0 || c.ComplianceFlagWindow <= 0 {
		return fmt.Errorf("scan windows must be positive")
	}

	return nil
}
