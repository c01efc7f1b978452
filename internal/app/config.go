package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (COUPON_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string        `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string        `usage:"PostgreSQL connection URL (COUPON_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL     string        `default:"" usage:"Redis URL for the coupon cache and shared rate limits; empty disables both" flag:"redis-url"`
	CacheTTL     time.Duration `default:"30s" usage:"How long coupon definitions stay cached" flag:"cache-ttl"`
	APIKeyPepper string        `usage:"HMAC pepper for API key hashing (COUPON_API_KEY_PEPPER)" flag:"api-key-pepper"`
	RateLimit    RateLimitConfig
	Graceful     GracefulConfig
}

// RateLimitConfig controls per-client request limits.
type RateLimitConfig struct {
	Max            int           `default:"100" usage:"Max API requests per window"`
	Window         time.Duration `default:"1m"  usage:"Rate limit window duration"`
	ValidateMax    int           `default:"20"  usage:"Max coupon validations per window" flag:"validate-max"`
	ValidateWindow time.Duration `default:"1m"  usage:"Coupon validation window duration" flag:"validate-window"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables and YAML config
// files, then applies platform defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "COUPON",
		Files:     []string{"config.yaml", "/etc/coupon/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set COUPON_DATABASE_URL or DATABASE_URL")
	case c.APIKeyPepper == "":
		return errors.New("api key pepper is required: set COUPON_API_KEY_PEPPER")
	case c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0:
		return errors.New("rate limit max and window must be positive")
	case c.RateLimit.ValidateMax <= 0 || c.RateLimit.ValidateWindow <= 0:
		return errors.New("validate rate limit max and window must be positive")
	}
	return nil
}

// applyPlatformDefaults maps the DATABASE_URL, REDIS_URL and PORT variables
// set by hosting platforms.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.RedisURL == "" {
		c.RedisURL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
