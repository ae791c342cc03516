package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all configuration for the dashboard and the demo backend
type Config struct {
	API       APIConfig
	Session   SessionConfig
	TOTP      TOTPConfig
	Dashboard DashboardConfig
	Server    ServerConfig
	Metrics   MetricsConfig
	Kafka     KafkaConfig
	Logging   LoggingConfig
	Mock      MockConfig
}

// APIConfig holds the backend connection settings
type APIConfig struct {
	BaseURL  string        `validate:"required,url"`
	Timeout  time.Duration `validate:"gte=0"`
	Exchange string        `validate:"required"`
}

// SessionConfig selects and configures the durable session backend
type SessionConfig struct {
	Backend       string `validate:"oneof=file sqlite redis memory"`
	Path          string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
}

// TOTPConfig holds the demo code refresher settings
type TOTPConfig struct {
	Enabled         bool
	RefreshInterval time.Duration `validate:"gt=0"`
}

// DashboardConfig holds login form and watchlist defaults
type DashboardConfig struct {
	DefaultUsername string
	DefaultPIN      string
	DefaultSymbol   string
	Watchlist       []string
}

// ServerConfig holds the local HTTP surface configuration
type ServerConfig struct {
	Port         string `validate:"required"`
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// MetricsConfig holds the Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// KafkaConfig holds the dashboard event publisher configuration
type KafkaConfig struct {
	Enabled bool
	Brokers []string `validate:"required_if=Enabled true"`
	Topic   string
	Async   bool
}

// LoggingConfig holds logging specific configuration
type LoggingConfig struct {
	Level  string
	Format string `validate:"oneof=json console"`
}

// MockConfig holds the demo backend configuration
type MockConfig struct {
	Port          string
	Username      string
	PIN           string
	TOTPSecret    string
	JWTSecret     string
	TokenDuration time.Duration
}

// LoadConfig loads the configuration from file and environment variables.
// An empty path skips the file and uses defaults plus environment only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read config file
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables override, e.g. API_BASEURL
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate checks struct constraints on the loaded configuration
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	// API defaults
	v.SetDefault("api.baseURL", "http://localhost:8001")
	v.SetDefault("api.timeout", "0s")
	v.SetDefault("api.exchange", "NSE")

	// Session defaults
	v.SetDefault("session.backend", "file")
	v.SetDefault("session.path", ".signal-dashboard/session.yaml")
	v.SetDefault("session.sqlitePath", ".signal-dashboard/session.db")
	v.SetDefault("session.redisAddr", "localhost:6379")
	v.SetDefault("session.redisPassword", "")
	v.SetDefault("session.redisDB", 0)
	v.SetDefault("session.keyPrefix", "dashboard-session:")

	// TOTP defaults
	v.SetDefault("totp.enabled", true)
	v.SetDefault("totp.refreshInterval", "30s")

	// Dashboard defaults
	v.SetDefault("dashboard.defaultUsername", "demo_user")
	v.SetDefault("dashboard.defaultPIN", "1234")
	v.SetDefault("dashboard.defaultSymbol", "RELIANCE")
	v.SetDefault("dashboard.watchlist", []string{"RELIANCE", "TCS", "INFY", "HDFCBANK", "ICICIBANK"})

	// Server defaults
	v.SetDefault("server.port", "8090")
	v.SetDefault("server.readTimeout", "10s")
	v.SetDefault("server.writeTimeout", "10s")
	v.SetDefault("server.idleTimeout", "120s")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "dashboard-events")
	v.SetDefault("kafka.async", true)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Demo backend defaults
	v.SetDefault("mock.port", "8001")
	v.SetDefault("mock.username", "demo_user")
	v.SetDefault("mock.pin", "1234")
	v.SetDefault("mock.totpSecret", "JBSWY3DPEHPK3PXP")
	v.SetDefault("mock.jwtSecret", "change-me-demo-secret")
	v.SetDefault("mock.tokenDuration", "24h")
}
