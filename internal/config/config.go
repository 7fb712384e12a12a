// Package config loads gateway settings from the environment, optionally
// seeded from a .env file in the working directory.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the gateway.
type Config struct {
	Addr string `env:"LUMINO_GATEWAY_ADDR" envDefault:":8000"`

	FirebaseCredentialsFile string `env:"FIREBASE_CREDENTIALS_FILE"`

	N8NWebhookURL string        `env:"N8N_WEBHOOK_URL"`
	N8NSecretKey  string        `env:"N8N_SECRET_KEY"`
	N8NTimeout    time.Duration `env:"N8N_TIMEOUT" envDefault:"60s"`

	HeyGenAPIURL string `env:"HEYGEN_API_URL" envDefault:"https://api.heygen.com/v2"`
	HeyGenAPIKey string `env:"HEYGEN_API_KEY"`

	CatalogCacheTTL time.Duration `env:"CATALOG_CACHE_TTL" envDefault:"1h"`

	PublicBaseURL  string `env:"BACKEND_PUBLIC_URL" envDefault:"http://localhost:8000"`
	StaticDir      string `env:"LUMINO_GATEWAY_STATIC_DIR" envDefault:"static"`
	MaxUploadBytes int64  `env:"LUMINO_GATEWAY_MAX_UPLOAD_BYTES" envDefault:"10485760"`

	AllowedOrigins []string `env:"LUMINO_GATEWAY_ALLOWED_ORIGINS" envDefault:"http://localhost:5173"`

	LogLevel  string `env:"LUMINO_GATEWAY_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LUMINO_GATEWAY_LOG_FORMAT" envDefault:"json"`

	TLSCertFile string `env:"LUMINO_GATEWAY_TLS_CERT"`
	TLSKeyFile  string `env:"LUMINO_GATEWAY_TLS_KEY"`
}

// Load reads a .env file when present, then parses the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse builds a Config from the current environment without touching .env.
func Parse() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail deep inside a request.
func (c Config) Validate() error {
	if strings.TrimSpace(c.N8NWebhookURL) != "" {
		parsed, err := url.Parse(c.N8NWebhookURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("N8N_WEBHOOK_URL %q is not an absolute URL", c.N8NWebhookURL)
		}
	}
	if c.CatalogCacheTTL <= 0 {
		return fmt.Errorf("CATALOG_CACHE_TTL must be positive, got %s", c.CatalogCacheTTL)
	}
	if c.N8NTimeout <= 0 {
		return fmt.Errorf("N8N_TIMEOUT must be positive, got %s", c.N8NTimeout)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("LUMINO_GATEWAY_MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return fmt.Errorf("TLS cert and key must be provided together")
	}
	return nil
}
