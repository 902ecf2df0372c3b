// config.go - Handles configuration for the project
//
// Values come from (highest priority first): environment variables, an
// optional config.yaml in ./ or ./instance, then the defaults map.
// A .env file in the working directory is loaded into the environment first.

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel string `mapstructure:"log_level"` // DEBUG, INFO, WARN or ERROR

	HTTP     HTTPConfig     `mapstructure:"http"`
	Database DatabaseConfig `mapstructure:"database"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Access   AccessConfig   `mapstructure:"access"`
	Session  SessionConfig  `mapstructure:"session"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`             // Listen address, e.g. ":8080"
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"` // Grace period for in-flight requests
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // "sqlite" or "postgres"
	Path   string `mapstructure:"path"`   // SQLite file path (":memory:" allowed)
	DSN    string `mapstructure:"dsn"`    // PostgreSQL DSN
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"` // HMAC key for HS256 tokens
	TTL    time.Duration `mapstructure:"ttl"`    // Token lifetime
}

// MQTTConfig configures the optional MQTT device transport. An empty Broker
// disables it.
type MQTTConfig struct {
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
}

func (m MQTTConfig) Enabled() bool {
	return m.Broker != ""
}

type AccessConfig struct {
	InviteTTL     time.Duration `mapstructure:"invite_ttl"`     // Validity window of an invite PIN
	PendingTTL    time.Duration `mapstructure:"pending_ttl"`    // Age after which unanswered requests are swept
	SweepInterval time.Duration `mapstructure:"sweep_interval"` // Period of the expiry sweeper
}

type SessionConfig struct {
	WriteTimeout time.Duration `mapstructure:"write_timeout"` // Upper bound on a single command write
	PingInterval time.Duration `mapstructure:"ping_interval"` // WebSocket keepalive period
}

// Legacy variable names accepted alongside the derived ones (DATABASE_PATH, ...).
var envAliases = map[string]string{
	"database.path": "DB_PATH",
	"mqtt.broker":   "MQTT_BROKER",
	"jwt.secret":    "JWT_SECRET",
}

// Load reads the configuration. An explicit configFile overrides the search path.
func Load(configFile ...string) (*Config, error) {
	_ = godotenv.Load() // Missing .env is fine

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./instance")
	explicit := false
	for _, path := range configFile {
		if path != "" {
			v.SetConfigFile(path)
			explicit = true
		}
	}

	for k, val := range Defaults() {
		v.SetDefault(k, val)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, alias := range envAliases {
		if err := v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), alias); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("database.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.JWT.Secret == "" && os.Getenv("GIN_MODE") == "release" {
		return errors.New("jwt.secret must be set in release mode")
	}
	if c.JWT.TTL <= 0 {
		return errors.New("jwt.ttl must be positive")
	}
	if c.Access.InviteTTL <= 0 || c.Access.PendingTTL <= 0 || c.Access.SweepInterval <= 0 {
		return errors.New("access durations must be positive")
	}
	if c.Session.WriteTimeout <= 0 {
		return errors.New("session.write_timeout must be positive")
	}
	return nil
}
