package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Server config
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	// Sandbox config
	assert.Equal(t, int64(5000), cfg.Sandbox.ExecTimeoutMS)
	assert.Equal(t, int64(5000), cfg.Sandbox.OpTimeoutMS)
	assert.True(t, cfg.Sandbox.EnableConsole)
	assert.Equal(t, 256, cfg.Sandbox.StreamBuffer)

	// Gateway config
	assert.Equal(t, int64(30000), cfg.Gateway.ToolTimeoutMS)

	// Bundle config
	assert.True(t, cfg.Bundle.Enabled)
	assert.Equal(t, "data/bundles", cfg.Bundle.CacheDir)
	assert.Equal(t, int64(4*1024*1024), cfg.Bundle.MaxFetchBytes)

	// Security config defaults to the compiled-in blocklist
	assert.Empty(t, cfg.Security.PolicyPath)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	// Rate limit config
	assert.Equal(t, 100, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestLoadOrDefault(t *testing.T) {
	// Should return default when no env vars set
	cfg := LoadOrDefault()

	assert.NotNil(t, cfg)
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                    "9000",
		"HOST":                    "127.0.0.1",
		"SANDBOX_EXEC_TIMEOUT_MS": "2500",
		"SANDBOX_OP_TIMEOUT_MS":   "1000",
		"SANDBOX_CONSOLE":         "false",
		"GATEWAY_TOOL_TIMEOUT_MS": "10000",
		"BUNDLE_ENABLED":          "false",
		"SECURITY_POLICY_PATH":    "policy.yaml",
		"LOG_LEVEL":               "debug",
		"LOG_DEV":                 "true",
		"RATE_LIMIT_RPS":          "500",
		"RATE_LIMIT_BURST":        "1000",
		"RATE_LIMIT_ENABLED":      "false",
	}

	for key, value := range envVars {
		err := os.Setenv(key, value)
		require.NoError(t, err)
		defer os.Unsetenv(key)
	}

	cfg, err := Load()
	require.NoError(t, err)

	// Verify server config
	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)

	// Verify sandbox config
	assert.Equal(t, int64(2500), cfg.Sandbox.ExecTimeoutMS)
	assert.Equal(t, int64(1000), cfg.Sandbox.OpTimeoutMS)
	assert.False(t, cfg.Sandbox.EnableConsole)

	// Verify gateway and bundle config
	assert.Equal(t, int64(10000), cfg.Gateway.ToolTimeoutMS)
	assert.False(t, cfg.Bundle.Enabled)

	// Verify security config
	assert.Equal(t, "policy.yaml", cfg.Security.PolicyPath)

	// Verify logging config
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)

	// Verify rate limit config
	assert.Equal(t, 500, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 1000, cfg.RateLimit.Burst)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestLoadWithPartialEnvironmentVariables(t *testing.T) {
	err := os.Setenv("PORT", "3000")
	require.NoError(t, err)
	defer os.Unsetenv("PORT")

	err = os.Setenv("SANDBOX_EXEC_TIMEOUT_MS", "1500")
	require.NoError(t, err)
	defer os.Unsetenv("SANDBOX_EXEC_TIMEOUT_MS")

	cfg, err := Load()
	require.NoError(t, err)

	// Verify overridden values
	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, int64(1500), cfg.Sandbox.ExecTimeoutMS)

	// Verify default values still apply
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, int64(5000), cfg.Sandbox.OpTimeoutMS)
	assert.True(t, cfg.Bundle.Enabled)
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 5*time.Second, cfg.Sandbox.ExecTimeout())
	assert.Equal(t, 5*time.Second, cfg.Sandbox.OpTimeout())
	assert.Equal(t, 30*time.Second, cfg.Gateway.ToolTimeout())
	assert.Equal(t, 15*time.Second, cfg.Bundle.Timeout())
}

func TestSandboxConfig(t *testing.T) {
	tests := []struct {
		name     string
		exec     string
		op       string
		wantExec int64
		wantOp   int64
	}{
		{
			name:     "default values",
			exec:     "",
			op:       "",
			wantExec: 5000,
			wantOp:   5000,
		},
		{
			name:     "custom execute timeout",
			exec:     "2000",
			op:       "",
			wantExec: 2000,
			wantOp:   5000,
		},
		{
			name:     "custom operation timeout",
			exec:     "",
			op:       "750",
			wantExec: 5000,
			wantOp:   750,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Unsetenv("SANDBOX_EXEC_TIMEOUT_MS")
			os.Unsetenv("SANDBOX_OP_TIMEOUT_MS")

			if tt.exec != "" {
				err := os.Setenv("SANDBOX_EXEC_TIMEOUT_MS", tt.exec)
				require.NoError(t, err)
				defer os.Unsetenv("SANDBOX_EXEC_TIMEOUT_MS")
			}
			if tt.op != "" {
				err := os.Setenv("SANDBOX_OP_TIMEOUT_MS", tt.op)
				require.NoError(t, err)
				defer os.Unsetenv("SANDBOX_OP_TIMEOUT_MS")
			}

			cfg := LoadOrDefault()

			assert.Equal(t, tt.wantExec, cfg.Sandbox.ExecTimeoutMS)
			assert.Equal(t, tt.wantOp, cfg.Sandbox.OpTimeoutMS)
		})
	}
}
