package config

import "time"

// Config represents the main configuration structure
type Config struct {
	LogLevel          string           `mapstructure:"logLevel"`
	MinBatchInterval  int              `mapstructure:"minBatchInterval"` // ms - minimum spacing between batch starts
	MaxPasses         int              `mapstructure:"maxPasses"`        // 0 means retry until every item succeeds
	RequestTimeout    int              `mapstructure:"requestTimeout"`   // ms - per-item request timeout
	ProbeTimeout      int              `mapstructure:"probeTimeout"`     // ms
	ProbeInterval     int              `mapstructure:"probeInterval"`    // ms - interval for the probe monitor
	MetadataCacheSize int              `mapstructure:"metadataCacheSize"`
	MetadataCacheTTL  int              `mapstructure:"metadataCacheTtl"` // seconds
	Endpoints         []EndpointConfig `mapstructure:"endpoints"`
}

// EndpointConfig represents a single Sui fullnode endpoint
type EndpointConfig struct {
	Name   string `mapstructure:"name"`
	RPCURL string `mapstructure:"rpcUrl"`
	WSURL  string `mapstructure:"wsUrl"`
}

// Default values
const (
	DefaultLogLevel          = "info"
	DefaultMinBatchInterval  = 334 // ms - roughly three batches per second
	DefaultMaxPasses         = 0
	DefaultRequestTimeout    = 10000 // ms
	DefaultProbeTimeout      = 5000  // ms
	DefaultProbeInterval     = 30000 // ms
	DefaultMetadataCacheSize = 256
	DefaultMetadataCacheTTL  = 3600 // seconds
	DefaultMainnetRPCURL     = "https://fullnode.mainnet.sui.io:443"
)

// GetMinBatchIntervalDuration returns the batch interval as time.Duration
func (c *Config) GetMinBatchIntervalDuration() time.Duration {
	return time.Duration(c.MinBatchInterval) * time.Millisecond
}

// GetRequestTimeoutDuration returns request timeout as time.Duration
func (c *Config) GetRequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Millisecond
}

// GetProbeTimeoutDuration returns probe timeout as time.Duration
func (c *Config) GetProbeTimeoutDuration() time.Duration {
	return time.Duration(c.ProbeTimeout) * time.Millisecond
}

// GetProbeIntervalDuration returns probe interval as time.Duration
func (c *Config) GetProbeIntervalDuration() time.Duration {
	return time.Duration(c.ProbeInterval) * time.Millisecond
}

// GetMetadataCacheTTLDuration returns metadata cache TTL as time.Duration
func (c *Config) GetMetadataCacheTTLDuration() time.Duration {
	return time.Duration(c.MetadataCacheTTL) * time.Second
}

// HasWS returns true if the endpoint has a WebSocket URL configured
func (e EndpointConfig) HasWS() bool {
	return e.WSURL != ""
}
