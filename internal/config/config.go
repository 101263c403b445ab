package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. SUITCASE_LOGLEVEL=debug
const EnvPrefix = "SUITCASE"

// scalar keys that may be overridden from the environment
var envKeys = []string{
	"logLevel",
	"minBatchInterval",
	"maxPasses",
	"requestTimeout",
	"probeTimeout",
	"probeInterval",
	"metadataCacheSize",
	"metadataCacheTtl",
}

// Load reads and parses the configuration file. The format is inferred from the
// file extension (json, yaml, toml).
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// FromURLs builds a configuration from a plain list of RPC URLs.
// Environment overrides still apply to the scalar settings.
func FromURLs(urls []string) (*Config, error) {
	v := newViper()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	for i, u := range urls {
		cfg.Endpoints = append(cfg.Endpoints, EndpointConfig{
			Name:   endpointName(u, i),
			RPCURL: u,
		})
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}
	// 0 is meaningful for these keys (no throttle, no timeout, no cache, cache
	// forever), so their defaults only apply when the key is absent
	v.SetDefault("minBatchInterval", DefaultMinBatchInterval)
	v.SetDefault("maxPasses", DefaultMaxPasses)
	v.SetDefault("requestTimeout", DefaultRequestTimeout)
	v.SetDefault("probeTimeout", DefaultProbeTimeout)
	v.SetDefault("probeInterval", DefaultProbeInterval)
	v.SetDefault("metadataCacheSize", DefaultMetadataCacheSize)
	v.SetDefault("metadataCacheTtl", DefaultMetadataCacheTTL)
	return v
}

// endpointName derives a readable endpoint name from its URL host
func endpointName(rawURL string, index int) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return fmt.Sprintf("endpoint-%d", index)
	}
	return fmt.Sprintf("%s-%d", u.Hostname(), index)
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}

	for i := range cfg.Endpoints {
		if cfg.Endpoints[i].Name == "" {
			cfg.Endpoints[i].Name = endpointName(cfg.Endpoints[i].RPCURL, i)
		}
	}
}

// validate checks the configuration for errors
func validate(cfg *Config) error {
	if len(cfg.Endpoints) == 0 {
		return errors.New("at least one endpoint is required")
	}

	names := make(map[string]bool)
	for i, ep := range cfg.Endpoints {
		if names[ep.Name] {
			return fmt.Errorf("endpoint[%d]: duplicate endpoint name '%s'", i, ep.Name)
		}
		names[ep.Name] = true

		if ep.RPCURL == "" {
			return fmt.Errorf("endpoint '%s': rpcUrl is required", ep.Name)
		}
		if err := validateURL(ep.RPCURL, "http", "https"); err != nil {
			return fmt.Errorf("endpoint '%s': rpcUrl: %w", ep.Name, err)
		}
		if ep.WSURL != "" {
			if err := validateURL(ep.WSURL, "ws", "wss"); err != nil {
				return fmt.Errorf("endpoint '%s': wsUrl: %w", ep.Name, err)
			}
		}
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("logLevel must be one of: debug, info, warn, error")
	}

	if cfg.MinBatchInterval < 0 {
		return fmt.Errorf("minBatchInterval must be non-negative")
	}

	if cfg.MaxPasses < 0 {
		return fmt.Errorf("maxPasses must be non-negative")
	}

	if cfg.RequestTimeout < 0 {
		return fmt.Errorf("requestTimeout must be non-negative")
	}

	if cfg.ProbeTimeout < 0 {
		return fmt.Errorf("probeTimeout must be non-negative")
	}

	if cfg.ProbeInterval < 0 {
		return fmt.Errorf("probeInterval must be non-negative")
	}

	if cfg.MetadataCacheSize < 0 {
		return fmt.Errorf("metadataCacheSize must be non-negative")
	}

	if cfg.MetadataCacheTTL < 0 {
		return fmt.Errorf("metadataCacheTtl must be non-negative")
	}

	return nil
}

// validateURL checks that raw parses and uses one of the given schemes
func validateURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, s := range schemes {
		if u.Scheme == s {
			if u.Host == "" {
				return fmt.Errorf("host is required")
			}
			return nil
		}
	}
	return fmt.Errorf("scheme must be one of: %s", strings.Join(schemes, ", "))
}
