/*
Copyright (c) 2025 Mike Lane

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every environment override, e.g. EVENTKEEPER_STORE_BACKEND
	EnvPrefix = "EVENTKEEPER"
	// LegacyTokenEnv is consulted when no token is configured otherwise
	LegacyTokenEnv = "bot_token"
	// DefaultConfigName is the config file searched in the working directory
	DefaultConfigName = "eventkeeper"
)

// Store backends
const (
	BackendFile      = "file"
	BackendConfigMap = "configmap"
	BackendRedis     = "redis"
)

// Config is the runtime configuration of the bot.
//
// Sources, highest precedence first: flags bound by the caller, EVENTKEEPER_*
// environment variables (including those loaded from .env), the config file,
// defaults.
type Config struct {
	Discord DiscordConfig `mapstructure:"discord"`

	// Timezone is the IANA zone every stored and displayed time is expressed in
	Timezone string `mapstructure:"timezone" validate:"required"`

	// SweepInterval is the time between retention sweeps
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"gt=0"`

	// Retention is how long a channel lives after its event starts or completes
	Retention time.Duration `mapstructure:"retention" validate:"gt=0"`

	// Lookahead is how close to its start a newly scheduled event gets its channel
	Lookahead time.Duration `mapstructure:"lookahead" validate:"gte=0"`

	// DryRun replaces the Discord provisioner with an in-memory one
	DryRun bool `mapstructure:"dry_run"`

	Store   StoreConfig   `mapstructure:"store"`
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// DiscordConfig holds the bot credentials.
type DiscordConfig struct {
	Token string `mapstructure:"token"`
}

// StoreConfig selects and configures the state store.
type StoreConfig struct {
	Backend   string          `mapstructure:"backend" validate:"oneof=file configmap redis"`
	Path      string          `mapstructure:"path" validate:"required_if=Backend file"`
	ConfigMap ConfigMapConfig `mapstructure:"configmap"`
	Redis     RedisConfig     `mapstructure:"redis"`
}

// ConfigMapConfig locates the ConfigMap holding the state document.
type ConfigMapConfig struct {
	Namespace string `mapstructure:"namespace"`
	Name      string `mapstructure:"name"`
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
	Key      string `mapstructure:"key"`
}

// WebhookConfig configures the HTTP notification server.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Port    int    `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	Secret  string `mapstructure:"secret"`
}

// NewViper returns a viper instance with defaults and environment overrides
// configured. Callers may bind flags to it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("discord.token", "")
	v.SetDefault("timezone", "America/New_York")
	v.SetDefault("sweep_interval", time.Minute)
	v.SetDefault("retention", 24*time.Hour)
	v.SetDefault("lookahead", 5*time.Minute)
	v.SetDefault("dry_run", false)
	v.SetDefault("store.backend", BackendFile)
	v.SetDefault("store.path", "events.json")
	v.SetDefault("store.configmap.namespace", "default")
	v.SetDefault("store.configmap.name", "eventkeeper-state")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.key", "eventkeeper:events")
	v.SetDefault("webhook.enabled", false)
	v.SetDefault("webhook.addr", "0.0.0.0")
	v.SetDefault("webhook.port", 8080)
	v.SetDefault("webhook.secret", "")

	// EVENTKEEPER_STORE_REDIS_ADDR overrides store.redis.addr
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// LoadDotEnv loads variables from a .env file into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load reads the config file (configPath, or eventkeeper.yaml in the working
// directory when empty), applies v's defaults, environment and flags, and
// validates the result.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Discord.Token == "" {
		cfg.Discord.Token = os.Getenv(LegacyTokenEnv)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// RequireToken reports a missing bot token. Dry runs never connect and need none.
func (c *Config) RequireToken() error {
	if c.DryRun || c.Discord.Token != "" {
		return nil
	}
	return fmt.Errorf("discord token is required: set discord.token, %s_DISCORD_TOKEN or %s", EnvPrefix, LegacyTokenEnv)
}

// Validate checks field constraints and the rules that span fields.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return err
	}

	if cfg.Webhook.Enabled && cfg.Webhook.Secret == "" {
		return errors.New("webhook.secret is required when the webhook is enabled")
	}

	switch cfg.Store.Backend {
	case BackendConfigMap:
		if cfg.Store.ConfigMap.Namespace == "" || cfg.Store.ConfigMap.Name == "" {
			return errors.New("store.configmap.namespace and store.configmap.name are required for the configmap backend")
		}
	case BackendRedis:
		if cfg.Store.Redis.Addr == "" {
			return errors.New("store.redis.addr is required for the redis backend")
		}
	}
	return nil
}
