// internal/common/config/loader_test.go
package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Defaults & Validation Tests
// ==========================

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ERPNext.BaseURL = "http://localhost:8001"

	applyDefaults(cfg)

	assert.Equal(t, "erpnext-bridge", cfg.App.Name)
	assert.Equal(t, 30000, cfg.ERPNext.Timeout)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, 1000, cfg.Retry.BaseDelay)
	assert.Equal(t, 30000, cfg.Retry.MaxDelay)
	assert.Equal(t, 5, cfg.Bulk.Workers)
	assert.Equal(t, 64, cfg.Bulk.ProgressBuffer)
	assert.Equal(t, 300000, cfg.SchemaCache.TTL)
	assert.Equal(t, "stdio", cfg.Server.Transport)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.ERPNext.BaseURL = "http://localhost:8001"
	cfg.Retry.MaxRetries = 7
	cfg.Bulk.Workers = 2
	cfg.Server.Transport = "sse"

	applyDefaults(cfg)

	assert.Equal(t, 7, cfg.Retry.MaxRetries)
	assert.Equal(t, 2, cfg.Bulk.Workers)
	assert.Equal(t, "sse", cfg.Server.Transport)
}

func TestValidateConfig(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.ERPNext.BaseURL = "http://localhost:8001"
		applyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid config passes",
			mutate:  func(cfg *Config) {},
			wantErr: "",
		},
		{
			name:    "missing base url",
			mutate:  func(cfg *Config) { cfg.ERPNext.BaseURL = "" },
			wantErr: "erpnext.base_url",
		},
		{
			name:    "base delay above cap",
			mutate:  func(cfg *Config) { cfg.Retry.BaseDelay = 60000 },
			wantErr: "retry.base_delay",
		},
		{
			name:    "zero workers",
			mutate:  func(cfg *Config) { cfg.Bulk.Workers = 0 },
			wantErr: "bulk.workers",
		},
		{
			name: "redis enabled without address",
			mutate: func(cfg *Config) {
				cfg.SchemaCache.Redis.Enabled = true
				cfg.SchemaCache.Redis.Address = ""
			},
			wantErr: "schema_cache.redis.address",
		},
		{
			name:    "unknown transport",
			mutate:  func(cfg *Config) { cfg.Server.Transport = "grpc" },
			wantErr: "server.transport",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := validateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, GetDuration(1500))
	assert.Equal(t, time.Duration(0), GetDuration(0))
}
