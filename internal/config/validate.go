package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *TrackerConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}
	if c.API.APIKey == "" {
		return errors.New("api.api_key is required")
	}

	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}

	if c.Stream.ReconnectBaseWait > c.Stream.ReconnectMaxWait {
		return fmt.Errorf("stream.reconnect_base_wait (%s) cannot exceed reconnect_max_wait (%s)",
			c.Stream.ReconnectBaseWait, c.Stream.ReconnectMaxWait)
	}
	if c.Stream.BufferSize < 1 {
		return errors.New("stream.buffer_size must be >= 1")
	}

	if c.Engine.BasisDelayTicks < 1 {
		return errors.New("engine.basis_delay_ticks must be >= 1")
	}
	if c.Engine.MaxReloadsPerTick < 1 {
		return errors.New("engine.max_reloads_per_tick must be >= 1")
	}
	if c.Engine.BulkLoadParallel < 1 {
		return errors.New("engine.bulk_load_parallel must be >= 1")
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}
