package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-tracker
api:
  rest_url: https://trade.example.com/api
  api_key: abc123
stream:
  url: wss://trade.example.com/api/ws
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-tracker" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-tracker")
	}
	if cfg.API.RestURL != "https://trade.example.com/api" {
		t.Errorf("API.RestURL = %q", cfg.API.RestURL)
	}
	if cfg.Stream.URL != "wss://trade.example.com/api/ws" {
		t.Errorf("Stream.URL = %q", cfg.Stream.URL)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_LEDGERX_KEY", "secret123")

	yaml := `
instance:
  id: test-tracker
api:
  api_key: ${TEST_LEDGERX_KEY}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.APIKey != "secret123" {
		t.Errorf("API.APIKey = %q, want %q", cfg.API.APIKey, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: test-tracker
api:
  api_key: abc123
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.API.RestURL != DefaultRestURL {
		t.Errorf("API.RestURL = %q, want default %q", cfg.API.RestURL, DefaultRestURL)
	}
	if cfg.API.LegacyRestURL != DefaultLegacyRestURL {
		t.Errorf("API.LegacyRestURL = %q, want default", cfg.API.LegacyRestURL)
	}
	if cfg.Stream.URL != DefaultWSURL {
		t.Errorf("Stream.URL = %q, want default", cfg.Stream.URL)
	}
	if cfg.Engine.BasisDelayTicks != DefaultBasisDelayTicks {
		t.Errorf("Engine.BasisDelayTicks = %d, want %d", cfg.Engine.BasisDelayTicks, DefaultBasisDelayTicks)
	}
	if cfg.Engine.LateHeartbeat != DefaultLateHeartbeat {
		t.Errorf("Engine.LateHeartbeat = %v, want %v", cfg.Engine.LateHeartbeat, DefaultLateHeartbeat)
	}
	if cfg.Health.Port != DefaultHealthPort {
		t.Errorf("Health.Port = %d, want %d", cfg.Health.Port, DefaultHealthPort)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v, want info/text", cfg.Log)
	}
}

func TestLoadExplicitValuesSurviveDefaults(t *testing.T) {
	yaml := `
instance:
  id: test-tracker
api:
  api_key: abc123
engine:
  basis_delay_ticks: 7
  late_heartbeat: 5s
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}
	if cfg.Engine.BasisDelayTicks != 7 {
		t.Errorf("Engine.BasisDelayTicks = %d, want 7", cfg.Engine.BasisDelayTicks)
	}
	if cfg.Engine.LateHeartbeat != 5*time.Second {
		t.Errorf("Engine.LateHeartbeat = %v, want 5s", cfg.Engine.LateHeartbeat)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *TrackerConfig {
		cfg := &TrackerConfig{}
		cfg.Instance.ID = "t1"
		cfg.API.APIKey = "key"
		cfg.applyDefaults()
		return cfg
	}

	t.Run("valid config passes", func(t *testing.T) {
		if err := valid().Validate(); err != nil {
			t.Errorf("Validate() = %v, want nil", err)
		}
	})

	t.Run("missing instance id", func(t *testing.T) {
		cfg := valid()
		cfg.Instance.ID = ""
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for missing instance.id")
		}
	})

	t.Run("missing api key", func(t *testing.T) {
		cfg := valid()
		cfg.API.APIKey = ""
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for missing api.api_key")
		}
	})

	t.Run("backoff bounds inverted", func(t *testing.T) {
		cfg := valid()
		cfg.Stream.ReconnectBaseWait = 2 * time.Minute
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for base wait above max wait")
		}
	})

	t.Run("bad log level", func(t *testing.T) {
		cfg := valid()
		cfg.Log.Level = "verbose"
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for unknown log level")
		}
	})

	t.Run("bad health port", func(t *testing.T) {
		cfg := valid()
		cfg.Health.Port = 70000
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for out-of-range port")
		}
	})
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/tracker.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}
