package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Payment gateway modes.
const (
	PaymentDeterministic = "deterministic"
	PaymentWeighted      = "weighted"
)

// Config holds the complete application configuration, loadable from
// environment variables (STORE_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (STORE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (STORE_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Storage      StorageConfig
	Session      SessionConfig
	Payment      PaymentConfig
	RateLimit    RateLimitConfig
	Reconcile    ReconcileConfig
	Demo         DemoConfig
	Graceful     GracefulConfig
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver string `default:"postgres" usage:"Storage driver: postgres or memory"`
}

// SessionConfig controls the signed session cookie.
type SessionConfig struct {
	Secret     string        `usage:"HS256 secret for session tokens, at least 16 bytes"`
	CookieName string        `default:"storefront_session" usage:"Session cookie name" flag:"session-cookie"`
	TTL        time.Duration `default:"24h" usage:"Session lifetime"`
	Secure     bool          `default:"false" usage:"Set the Secure cookie attribute"`
}

// PaymentConfig controls the simulated payment gateway.
type PaymentConfig struct {
	Mode          string        `default:"weighted" usage:"Gateway mode: deterministic or weighted"`
	Delay         time.Duration `default:"2s" usage:"Simulated gateway latency"`
	SuccessWeight int           `default:"80" usage:"Relative weight of approvals in weighted mode" flag:"payment-success-weight"`
	FailureWeight int           `default:"20" usage:"Relative weight of declines in weighted mode" flag:"payment-failure-weight"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max        int           `default:"100" usage:"Max requests per window"`
	Window     time.Duration `default:"1m"  usage:"Rate limit window duration"`
	PaymentMax int           `default:"10" usage:"Max payment attempts per principal per window" flag:"payment-rate-max"`
}

// ReconcileConfig controls the background follow-up of paid orders.
type ReconcileConfig struct {
	Interval time.Duration `default:"1m" usage:"Reconciliation sweep interval, 0 disables it" flag:"reconcile-interval"`
	Grace    time.Duration `default:"2m" usage:"Age a paid order must reach before it is reconciled" flag:"reconcile-grace"`
}

// DemoConfig seeds demo data into the memory driver.
type DemoConfig struct {
	AdminKey    string `usage:"API key of the demo admin" flag:"demo-admin-key"`
	StaffKey    string `usage:"API key of the demo staff member" flag:"demo-staff-key"`
	CustomerKey string `usage:"API key of the demo customer" flag:"demo-customer-key"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads an optional .env file, then configuration from environment
// variables and YAML config files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STORE",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
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
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set STORE_DATABASE_URL or DATABASE_URL")
		}
	case DriverMemory:
	default:
		return errors.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Payment.Mode {
	case PaymentDeterministic:
	case PaymentWeighted:
		w := c.Payment
		if w.SuccessWeight < 0 || w.FailureWeight < 0 {
			return errors.Errorf("payment weights must not be negative: got %d/%d", w.SuccessWeight, w.FailureWeight)
		}
		if w.SuccessWeight+w.FailureWeight == 0 {
			return errors.New("payment weights must not both be zero")
		}
	default:
		return errors.Errorf("unknown payment mode %q", c.Payment.Mode)
	}
	if len(c.Session.Secret) < 16 {
		return errors.New("session secret must be at least 16 bytes: set STORE_SESSION_SECRET")
	}
	if c.APIKeyPepper == "" {
		return errors.New("api key pepper is required: set STORE_API_KEY_PEPPER")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's STORE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
