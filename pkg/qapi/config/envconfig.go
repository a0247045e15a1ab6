package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type EnvConfig struct {
	Port        string `envconfig:"PORT" default:"3000"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	// AuthSecret enables HS256 bearer verification on /api routes.
	AuthSecret   string        `envconfig:"AUTH_SECRET"`
	AuthAudience string        `envconfig:"AUTH_AUDIENCE" default:"qfold"`
	JobsRoot     string        `envconfig:"QFOLD_JOBS_ROOT" default:"jobs"`
	Records      string        `envconfig:"QFOLD_RECORDS"`
	LogOrder     string        `envconfig:"QFOLD_LOG_ORDER" default:"listing"`
	ValkeyURL    string        `envconfig:"VALKEY_URL"`
	CacheTTL     time.Duration `envconfig:"CACHE_TTL" default:"168h"`
}

// IsDev reports whether ENVIRONMENT names a development setup.
func IsDev() bool {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	return env == "development" || env == "dev" || env == ""
}

func ValidateEnv() (*EnvConfig, error) {
	if IsDev() {
		if err := godotenv.Load(); err != nil {
			log.Println("ℹ No .env file found")
		} else {
			log.Println("✓ Loaded .env file")
		}
	}

	var cfg EnvConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *EnvConfig) Validate() error {
	var errors []string

	if c.AuthSecret != "" && len(c.AuthSecret) < 32 {
		errors = append(errors, "  ❌ AUTH_SECRET must be at least 32 characters")
	}
	if c.LogOrder != "listing" && c.LogOrder != "mtime" {
		errors = append(errors, "  ❌ QFOLD_LOG_ORDER must be listing or mtime")
	}
	if c.JobsRoot == "" {
		errors = append(errors, "  ❌ QFOLD_JOBS_ROOT must not be empty")
	}

	if len(errors) > 0 {
		return fmt.Errorf("environment validation failed:\n%s", strings.Join(errors, "\n"))
	}
	return nil
}

func MaskSecret(secret string) string {
	if secret == "" {
		return "<not set>"
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}

func (c *EnvConfig) Print(fmtr func(string, ...interface{})) {
	fmtr("📋 Configuration:\n")
	fmtr("  Environment: %s\n", c.Environment)
	fmtr("  Port: %s\n", c.Port)
	fmtr("  Jobs root: %s\n", c.JobsRoot)
	fmtr("  Log order: %s\n", c.LogOrder)
	if c.AuthSecret != "" {
		fmtr("  Auth: ✓ Enabled (%s, audience %s)\n", MaskSecret(c.AuthSecret), c.AuthAudience)
	} else {
		fmtr("  Auth: ✗ Disabled\n")
	}
	if c.ValkeyURL != "" {
		fmtr("  Accounting cache: valkey (ttl %s)\n", c.CacheTTL)
	} else {
		fmtr("  Accounting cache: memory (ttl %s)\n", c.CacheTTL)
	}
}
