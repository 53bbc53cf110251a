package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultRestURL           = "https://trade.ledgerx.com/api"
	DefaultLegacyRestURL     = "https://api.ledgerx.com"
	DefaultWSURL             = "wss://trade.ledgerx.com/api/ws"
	DefaultAPITimeout        = 30 * time.Second
	DefaultMaxRetries        = 3
	DefaultPageDelay         = 250 * time.Millisecond
	DefaultReconnectBaseWait = 1 * time.Second
	DefaultReconnectMaxWait  = 60 * time.Second
	DefaultPingTimeout       = 30 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
	DefaultBufferSize        = 1000
	DefaultExpiryPreemptive  = 15 * time.Second
	DefaultBasisDelayTicks   = 3
	DefaultBasisMaxRetries   = 5
	DefaultMaxReloadsPerTick = 100
	DefaultTaskBatchTimeout  = 50 * time.Millisecond
	DefaultLateHeartbeat     = 2 * time.Second
	DefaultBulkLoadParallel  = 32
	DefaultHealthPort        = 8090
	DefaultHealthPath        = "/healthz"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
)

func (c *TrackerConfig) applyDefaults() {
	// API defaults
	if c.API.RestURL == "" {
		c.API.RestURL = DefaultRestURL
	}
	if c.API.LegacyRestURL == "" {
		c.API.LegacyRestURL = DefaultLegacyRestURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}
	if c.API.PageDelay == 0 {
		c.API.PageDelay = DefaultPageDelay
	}

	// Stream defaults
	if c.Stream.URL == "" {
		c.Stream.URL = DefaultWSURL
	}
	if c.Stream.ReconnectBaseWait == 0 {
		c.Stream.ReconnectBaseWait = DefaultReconnectBaseWait
	}
	if c.Stream.ReconnectMaxWait == 0 {
		c.Stream.ReconnectMaxWait = DefaultReconnectMaxWait
	}
	if c.Stream.PingTimeout == 0 {
		c.Stream.PingTimeout = DefaultPingTimeout
	}
	if c.Stream.WriteTimeout == 0 {
		c.Stream.WriteTimeout = DefaultWriteTimeout
	}
	if c.Stream.BufferSize == 0 {
		c.Stream.BufferSize = DefaultBufferSize
	}

	// Engine defaults
	if c.Engine.ExpiryPreemptive == 0 {
		c.Engine.ExpiryPreemptive = DefaultExpiryPreemptive
	}
	if c.Engine.BasisDelayTicks == 0 {
		c.Engine.BasisDelayTicks = DefaultBasisDelayTicks
	}
	if c.Engine.BasisMaxRetries == 0 {
		c.Engine.BasisMaxRetries = DefaultBasisMaxRetries
	}
	if c.Engine.MaxReloadsPerTick == 0 {
		c.Engine.MaxReloadsPerTick = DefaultMaxReloadsPerTick
	}
	if c.Engine.TaskBatchTimeout == 0 {
		c.Engine.TaskBatchTimeout = DefaultTaskBatchTimeout
	}
	if c.Engine.LateHeartbeat == 0 {
		c.Engine.LateHeartbeat = DefaultLateHeartbeat
	}
	if c.Engine.BulkLoadParallel == 0 {
		c.Engine.BulkLoadParallel = DefaultBulkLoadParallel
	}

	// Health defaults
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
	if c.Health.Path == "" {
		c.Health.Path = DefaultHealthPath
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}
