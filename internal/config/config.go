package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

type Config struct {
	ServerPort int    `envconfig:"PORT" default:"8080"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	AppEnv     string `envconfig:"APP_ENV" default:"development"`
	BaseURL    string `envconfig:"BASE_URL"`

	DataDir          string `envconfig:"DATA_DIR" default:"data"`
	DBDriver         string `envconfig:"DB_DRIVER" default:"file"`
	DBDataSourceName string `envconfig:"DB_DSN"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`

	ResendAPIKey string `envconfig:"RESEND_API_KEY"`
	EmailFrom    string `envconfig:"EMAIL_FROM" default:"Digistore <newsletter@digistore.dev>"`

	CloudinaryCloudName string `envconfig:"CLOUDINARY_CLOUD_NAME"`
	CloudinaryAPIKey    string `envconfig:"CLOUDINARY_API_KEY"`
	CloudinaryAPISecret string `envconfig:"CLOUDINARY_API_SECRET"`
	UploadDir           string `envconfig:"UPLOAD_DIR" default:"uploads"`

	GitHubToken string `envconfig:"GITHUB_TOKEN"`

	AdminPassword   string   `envconfig:"ADMIN_PASSWORD"`
	AllowedAdminIPs []string `envconfig:"ALLOWED_ADMIN_IPS"`

	// TrustedProxies are the peer addresses (IPs or CIDRs) whose
	// X-Forwarded-For and X-Real-IP headers are believed.
	TrustedProxies []string `envconfig:"TRUSTED_PROXIES"`

	JanitorInterval time.Duration `envconfig:"JANITOR_INTERVAL" default:"1m"`
}

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: Could not load .env file, using environment")
	}
	return loadFromEnv()
}

func loadFromEnv() (*Config, error) {
	config := &Config{}
	if err := envconfig.Process("", config); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	config.DBDriver = strings.ToLower(strings.TrimSpace(config.DBDriver))
	switch config.DBDriver {
	case "", "file":
		config.DBDriver = "file"
	case "postgres", "sqlite3":
		if config.DBDataSourceName == "" {
			return nil, fmt.Errorf("DB_DSN is required when DB_DRIVER is %s", config.DBDriver)
		}
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", config.DBDriver)
	}

	if config.JanitorInterval <= 0 {
		return nil, fmt.Errorf("JANITOR_INTERVAL must be a positive duration")
	}

	for i, ip := range config.AllowedAdminIPs {
		config.AllowedAdminIPs[i] = strings.TrimSpace(ip)
	}
	for i, p := range config.TrustedProxies {
		config.TrustedProxies[i] = strings.TrimSpace(p)
	}
	if config.BaseURL == "" {
		config.BaseURL = fmt.Sprintf("http://localhost:%d", config.ServerPort)
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return config, nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

// UseRedis reports whether shared rate limiting and idempotency are enabled.
func (c *Config) UseRedis() bool {
	return c.RedisAddr != ""
}
