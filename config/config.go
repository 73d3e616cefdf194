package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ServerConfig holds all configuration for the reference host.
// Tags use mapstructure for Viper unmarshalling.
type ServerConfig struct {
	HTTPPort string `mapstructure:"HTTP_PORT"`

	// Identity provider backend (GoTrue-compatible REST API).
	IdentityBaseURL    string `mapstructure:"IDENTITY_BASE_URL"`
	IdentityServiceKey string `mapstructure:"IDENTITY_SERVICE_KEY"`

	// CallbackRedirectBase is the app deep-link base the issuing side
	// redirects to, e.g. "app://auth/callback".
	CallbackRedirectBase string `mapstructure:"CALLBACK_REDIRECT_BASE"`

	// Session code store. Backend is "memory" or "redis"; redis is the
	// right choice when more than one host issues codes.
	SessionCodeBackend string `mapstructure:"SESSION_CODE_BACKEND"`
	RedisAddr          string `mapstructure:"REDIS_ADDR"`
	RedisPassword      string `mapstructure:"REDIS_PASSWORD"`

	// Profile store.
	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`

	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
}

// LoadConfig reads configuration from file, environment variables, and defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("/etc/authcore/")
	v.AddConfigPath("$HOME/.authcore")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("SESSION_CODE_BACKEND", "memory")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/authcore_dev")
	v.SetDefault("MONGO_DB_NAME", "authcore_dev")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("OTEL_SERVICE_NAME", "authcore")

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine: defaults and env vars carry it.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}

// Validate rejects configurations the host cannot start with. Missing
// identity credentials are a startup failure, not a runtime surprise.
func (c *ServerConfig) Validate() error {
	if c.IdentityBaseURL == "" {
		return fmt.Errorf("IDENTITY_BASE_URL is required")
	}
	if c.IdentityServiceKey == "" {
		return fmt.Errorf("IDENTITY_SERVICE_KEY is required")
	}
	if c.CallbackRedirectBase == "" {
		return fmt.Errorf("CALLBACK_REDIRECT_BASE is required")
	}
	switch c.SessionCodeBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("SESSION_CODE_BACKEND must be \"memory\" or \"redis\", got %q", c.SessionCodeBackend)
	}
	if c.SessionCodeBackend == "redis" && c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required when SESSION_CODE_BACKEND is redis")
	}
	return nil
}
