package config

import (
	"testing"
	"time"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Server.Host == "" {
		t.Error("expected Server.Host to be set")
	}
	if cfg.Server.Port == 0 {
		t.Error("expected Server.Port to be non-zero")
	}
	if cfg.Database.Name == "" {
		t.Error("expected Database.Name to be set")
	}
	if cfg.JWT.Secret == "" {
		t.Error("expected JWT.Secret to be set")
	}

	// 验证默认值
	if cfg.Log.Level == "" {
		t.Error("expected Log.Level to be set")
	}
}

func TestConfig_DatabaseSettings(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Database.MaxOpenConns == 0 {
		t.Error("expected MaxOpenConns to be set")
	}
	if cfg.Database.MaxIdleConns == 0 {
		t.Error("expected MaxIdleConns to be set")
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		t.Error("expected ConnMaxLifetime to be set")
	}
}

func TestConfig_AssignmentDefaults(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Assignment.LookupTimeout != 5*time.Second {
		t.Errorf("expected 5s lookup timeout, got %v", cfg.Assignment.LookupTimeout)
	}
	if cfg.Assignment.MarkRetries != 1 {
		t.Errorf("expected 1 mark retry, got %d", cfg.Assignment.MarkRetries)
	}
}

func TestConfig_SecurityDefaults(t *testing.T) {
	cfg := GetDefaultConfig()

	if !cfg.Security.RateLimiting.Enabled {
		t.Error("expected rate limiting enabled by default")
	}
	if cfg.Security.RateLimiting.RequestsPerMinute == 0 {
		t.Error("expected RequestsPerMinute to be set")
	}
	if !cfg.Security.CORS.Enabled {
		t.Error("expected CORS enabled by default")
	}
}
