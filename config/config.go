package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// APIKey describes one machine-to-machine credential in the registry.
type APIKey struct {
	Name        string   `mapstructure:"name"`
	Key         string   `mapstructure:"key"`
	Permissions []string `mapstructure:"permissions"`
	AllowedIPs  []string `mapstructure:"allowed_ips"`
	RateLimit   int      `mapstructure:"rate_limit"` // requests per minute, 0 = unlimited
}

// SecurityConfig holds every knob of the security core. Tags use
// mapstructure for Viper unmarshalling; keys double as env var names.
type SecurityConfig struct {
	Environment string `mapstructure:"ENVIRONMENT"` // local|staging|production
	HTTPPort    string `mapstructure:"HTTP_PORT"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	LogPretty   bool   `mapstructure:"LOG_PRETTY"`

	// Backing store for security state: memory or redis. Redis is required
	// once more than one instance runs, otherwise sessions fragment.
	StoreBackend  string `mapstructure:"STORE_BACKEND"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// External event sink (used when Environment != local).
	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`

	// Session profile overrides, in minutes. Zero keeps the defaults.
	AdminSessionMaxAgeMin int `mapstructure:"ADMIN_SESSION_MAX_AGE_MIN"`
	AdminSessionIdleMin   int `mapstructure:"ADMIN_SESSION_IDLE_MIN"`
	UserSessionMaxAgeMin  int `mapstructure:"USER_SESSION_MAX_AGE_MIN"`
	UserSessionIdleMin    int `mapstructure:"USER_SESSION_IDLE_MIN"`
	CSRFTokenExpiryMin    int `mapstructure:"CSRF_TOKEN_EXPIRY_MIN"`
	SweepIntervalMin      int `mapstructure:"SWEEP_INTERVAL_MIN"`
	LoginMaxAttempts      int `mapstructure:"LOGIN_MAX_ATTEMPTS"`
	LoginAttemptWindowMin int `mapstructure:"LOGIN_ATTEMPT_WINDOW_MIN"`
	LoginLockoutMin       int `mapstructure:"LOGIN_LOCKOUT_MIN"`
	AlertDebounceSec      int `mapstructure:"ALERT_DEBOUNCE_SEC"`

	// Request-signing secret for the optional API security layer.
	SignatureSecret string `mapstructure:"SIGNATURE_SECRET"`

	// Admin IP allow-list; empty disables the check.
	AdminAllowedIPs []string `mapstructure:"ADMIN_ALLOWED_IPS"`

	// Supported values for the x-api-version header.
	SupportedAPIVersions []string `mapstructure:"SUPPORTED_API_VERSIONS"`

	// API-key registry, config-file only.
	APIKeys []APIKey `mapstructure:"API_KEYS"`

	// Bootstrap operator credential for the login endpoint.
	AdminEmail        string `mapstructure:"ADMIN_EMAIL"`
	AdminPasswordHash string `mapstructure:"ADMIN_PASSWORD_HASH"` // bcrypt
}

// IsLocal reports whether the core runs in local development mode, which
// keeps events off the external sink and alerts on the console.
func (c *SecurityConfig) IsLocal() bool {
	return c.Environment == "local" || c.Environment == ""
}

// LoadConfig reads configuration from file, environment variables, and
// defaults, in that order of increasing precedence for env vars.
func LoadConfig() (*SecurityConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/velour/")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("ENVIRONMENT", "local")
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("STORE_BACKEND", "memory")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DB_NAME", "velour_security")
	v.SetDefault("CSRF_TOKEN_EXPIRY_MIN", 60)
	v.SetDefault("SWEEP_INTERVAL_MIN", 5)
	v.SetDefault("LOGIN_MAX_ATTEMPTS", 5)
	v.SetDefault("LOGIN_ATTEMPT_WINDOW_MIN", 60)
	v.SetDefault("LOGIN_LOCKOUT_MIN", 15)
	v.SetDefault("ALERT_DEBOUNCE_SEC", 60)
	v.SetDefault("SUPPORTED_API_VERSIONS", []string{"1", "2"})

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, we run on defaults and env.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg SecurityConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}
