// Package config loads and validates the tracker's YAML configuration.
package config

import "time"

// TrackerConfig is the root configuration for a tracker instance.
type TrackerConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	API      APIConfig      `yaml:"api"`
	Stream   StreamConfig   `yaml:"stream"`
	Engine   EngineConfig   `yaml:"engine"`
	Health   HealthConfig   `yaml:"health"`
	Log      LogConfig      `yaml:"log"`
}

// InstanceConfig identifies this tracker.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// APIConfig holds LedgerX REST settings. The legacy URL serves the
// endpoints that never moved to the trading API host.
type APIConfig struct {
	RestURL       string        `yaml:"rest_url"`
	LegacyRestURL string        `yaml:"legacy_rest_url"`
	APIKey        string        `yaml:"api_key"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	PageDelay     time.Duration `yaml:"page_delay"`
}

// StreamConfig holds websocket settings.
type StreamConfig struct {
	URL               string        `yaml:"url"`
	ReconnectBaseWait time.Duration `yaml:"reconnect_base_wait"`
	ReconnectMaxWait  time.Duration `yaml:"reconnect_max_wait"`
	PingTimeout       time.Duration `yaml:"ping_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	BufferSize        int           `yaml:"buffer_size"`
}

// EngineConfig holds reconciliation engine settings.
type EngineConfig struct {
	SkipExpired       bool          `yaml:"skip_expired"`
	ExpiryPreemptive  time.Duration `yaml:"expiry_preemptive"`
	BasisDelayTicks   int           `yaml:"basis_delay_ticks"`
	BasisMaxRetries   int           `yaml:"basis_max_retries"`
	MaxReloadsPerTick int           `yaml:"max_reloads_per_tick"`
	TaskBatchTimeout  time.Duration `yaml:"task_batch_timeout"`
	LateHeartbeat     time.Duration `yaml:"late_heartbeat"`
	BulkLoadParallel  int           `yaml:"bulk_load_parallel"`
}

// HealthConfig holds the local health endpoint settings.
type HealthConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
