// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	"errors"
	"net"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sigil-dev/chainroute/internal/provider"
	routeerr "github.com/sigil-dev/chainroute/pkg/errors"
)

// EnvPrefix is the prefix for environment overrides, e.g.
// CHAINROUTE_NETWORKING_LISTEN.
const EnvPrefix = "CHAINROUTE"

// DefaultChainsFile is the chain catalog file name inside the data directory.
const DefaultChainsFile = "chains.json"

// Config is the top-level chainroute configuration.
type Config struct {
	Networking NetworkingConfig          `mapstructure:"networking"`
	DataDir    string                    `mapstructure:"data_dir"`
	Storage    StorageConfig             `mapstructure:"storage"`
	Chains     ChainsConfig              `mapstructure:"chains"`
	Health     HealthConfig              `mapstructure:"health"`
	Routing    RoutingConfig             `mapstructure:"routing"`
	Providers  map[string]ProviderConfig `mapstructure:"providers"`
	Server     ServerConfig              `mapstructure:"server"`
}

// NetworkingConfig controls how the gateway listens for connections.
type NetworkingConfig struct {
	Listen string `mapstructure:"listen"`
}

// StorageConfig selects the account store backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
}

// ChainsConfig locates the persisted chain catalog.
type ChainsConfig struct {
	// Path defaults to <data_dir>/chains.json when empty.
	Path string `mapstructure:"path"`
}

// HealthConfig tunes account cooldowns.
type HealthConfig struct {
	Backoff BackoffConfig `mapstructure:"backoff"`
}

// BackoffConfig mirrors provider.BackoffConfig in config form.
type BackoffConfig struct {
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay"`
	Multiplier float64       `mapstructure:"multiplier"`
}

// RoutingConfig tunes waterfall attempts made by the gateway itself.
type RoutingConfig struct {
	// AttemptTimeout bounds a single upstream attempt; zero disables it.
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
}

// ProviderConfig holds the credentials of a standard (config-defined)
// account. APIKey may be a keyring:// reference.
type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// ServerConfig controls the admin API surface.
type ServerConfig struct {
	AuthTokens  []string `mapstructure:"auth_tokens"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("networking.listen", "127.0.0.1:18790")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("chains.path", "")
	v.SetDefault("health.backoff.base_delay", provider.DefaultBaseDelay)
	v.SetDefault("health.backoff.max_delay", provider.DefaultMaxDelay)
	v.SetDefault("health.backoff.multiplier", provider.DefaultMultiplier)
	v.SetDefault("routing.attempt_timeout", 10*time.Second)
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173"})
}

// SetupEnv binds CHAINROUTE_* environment variables to config keys.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix CHAINROUTE_).
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, routeerr.Errorf(routeerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, routeerr.Errorf(routeerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, routeerr.Errorf(routeerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// ChainsPath returns the chain catalog location.
func (c *Config) ChainsPath() string {
	if c.Chains.Path != "" {
		return c.Chains.Path
	}
	return filepath.Join(c.DataDir, DefaultChainsFile)
}

// Backoff converts the health section into the tracker's policy.
func (c *Config) Backoff() provider.BackoffConfig {
	return provider.BackoffConfig{
		BaseDelay:  c.Health.Backoff.BaseDelay,
		MaxDelay:   c.Health.Backoff.MaxDelay,
		Multiplier: c.Health.Backoff.Multiplier,
	}
}

// Validate checks the configuration for logical errors.
// It returns a slice of all validation errors found, collecting all issues
// rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateNetworking()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateHealth()...)
	if c.Routing.AttemptTimeout < 0 {
		errs = append(errs, routeerr.Errorf(routeerr.CodeConfigValidateInvalidValue,
			"config: routing.attempt_timeout must not be negative, got %s", c.Routing.AttemptTimeout,
		))
	}
	errs = append(errs, c.validateProviders()...)
	errs = append(errs, c.validateServer()...)

	return errs
}

func (c *Config) validateNetworking() []error {
	var errs []error

	if c.Networking.Listen == "" {
		errs = append(errs, routeerr.Errorf(routeerr.CodeConfigValidateInvalidValue, "config: networking.listen must not be empty"))
		return errs
	}

	_, portStr, err := net.SplitHostPort(c.Networking.Listen)
	if err != nil {
		errs = append(errs, routeerr.Errorf(routeerr.CodeConfigValidateInvalidValue,
			"config: networking.listen must be a valid host:port address, got %q: %w",
			c.Networking.Listen, err,
		))
		return errs
	}

	// host can be empty (e.g., ":8080"), which is valid
	port, err := strconv.Atoi(portStr)
	if err != nil {
		errs = append(errs, routeerr.Errorf(routeerr.CodeConfigValidateInvalidValue,
			"config: networking.listen port must be a number, got %q",
			portStr,
		))
	} else if port < 1 || port > 65535 {
		errs = append(errs, routeerr.Errorf(routeerr.CodeConfigValidateInvalidValue,
			"config: networking.listen port must be between 1 and 65535, got %d",
			port,
		))
	}

	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error

	validBackends := map[string]bool{"sqlite": true, "memory": true}
	if !validBackends[c.Storage.Backend] {
		errs = append(errs, routeerr.Errorf(routeerr.CodeConfigValidateInvalidValue,
			"config: storage.backend must be one of [sqlite, memory], got %q",
			c.Storage.Backend,
		))
	}

	if c.DataDir == "" && c.Chains.Path == "" {
		errs = append(errs, routeerr.Errorf(routeerr.CodeConfigValidateInvalidValue,
			"config: one of data_dir or chains.path must be set",
		))
	}

	return errs
}

func (c *Config) validateHealth() []error {
	if err := c.Backoff().Validate(); err != nil {
		return []error{routeerr.Wrapf(err, routeerr.CodeConfigValidateInvalidValue, "config: health.backoff")}
	}
	return nil
}

func (c *Config) validateProviders() []error {
	var errs []error

	for id, pc := range c.Providers {
		pt, ok := provider.ProviderTypeFromID(id)
		if !ok {
			errs = append(errs, routeerr.Errorf(routeerr.CodeConfigValidateInvalidValue,
				"config: providers.%s is not a known provider type", id,
			))
			continue
		}
		if pc.BaseURL != "" {
			if u, err := url.Parse(pc.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
				errs = append(errs, routeerr.Errorf(routeerr.CodeConfigValidateInvalidValue,
					"config: providers.%s.base_url must be an absolute URL, got %q", id, pc.BaseURL,
				))
			}
		} else if pt == provider.TypeCustom {
			errs = append(errs, routeerr.Errorf(routeerr.CodeConfigValidateInvalidValue,
				"config: providers.%s.base_url is required for custom providers", id,
			))
		}
	}

	return errs
}

func (c *Config) validateServer() []error {
	var errs []error

	for i, tok := range c.Server.AuthTokens {
		if strings.TrimSpace(tok) == "" {
			errs = append(errs, routeerr.Errorf(routeerr.CodeConfigValidateInvalidValue,
				"config: server.auth_tokens[%d] must not be empty", i,
			))
		}
	}

	return errs
}
