package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixels-app/pixels-supervisor/internal/config"
	"github.com/pixels-app/pixels-supervisor/internal/lifecycle"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
backend:
  command: pixels
  args: ["serve", "--host", "localhost", "--port", "5000"]
  healthUrl: http://localhost:5000/health
  probeTimeout: 2s
  stopTimeout: 5s
supervisor:
  baseDelay: 1s
  maxDelay: 30s
  maxRetries: 5
  startTimeout: 15s
  healthCheckInterval: 5s
lifecycle:
  backgroundGracePeriod: 3s
server:
  address: ":9090"
telemetry:
  enabled: true
  endpoint: localhost:4318
`)

	cfg, err := config.Load(config.WithConfigPath(path))
	require.NoError(t, err)

	assert.Equal(t, "pixels", cfg.Backend.Command)
	assert.Equal(t, []string{"serve", "--host", "localhost", "--port", "5000"}, cfg.Backend.Args)
	assert.Equal(t, "http://localhost:5000/health", cfg.Backend.HealthURL)

	proc := cfg.ProcessConfig()
	assert.Equal(t, 2*time.Second, proc.ProbeTimeout)
	assert.Equal(t, 5*time.Second, proc.StopTimeout)

	sup := cfg.SupervisorSettings()
	assert.Equal(t, time.Second, sup.BaseDelay)
	assert.Equal(t, 30*time.Second, sup.MaxDelay)
	assert.Equal(t, 5, sup.MaxRetries)
	assert.Equal(t, 15*time.Second, sup.StartTimeout)
	assert.Equal(t, 5*time.Second, sup.HealthCheckInterval)

	assert.Equal(t, 3*time.Second, cfg.GracePeriod())
	assert.Equal(t, ":9090", cfg.ServerAddress())

	require.NotNil(t, cfg.Telemetry)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "localhost:4318", cfg.Telemetry.Endpoint)
}

func TestLoadMinimalConfigAppliesDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
backend:
  command: pixels
  healthUrl: http://localhost:5000/health
`)

	cfg, err := config.Load(config.WithConfigPath(path))
	require.NoError(t, err)

	sup := cfg.SupervisorSettings()
	assert.Zero(t, sup.BaseDelay)
	assert.Zero(t, sup.MaxRetries)

	assert.Equal(t, lifecycle.DefaultBackgroundGracePeriod, cfg.GracePeriod())
	assert.Equal(t, config.DefaultServerAddress, cfg.ServerAddress())
	assert.Nil(t, cfg.Telemetry)
}

func TestLoadValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing command",
			content: `
backend:
  healthUrl: http://localhost:5000/health
`,
			wantErr: "backend.command is required",
		},
		{
			name: "missing health url",
			content: `
backend:
  command: pixels
`,
			wantErr: "backend.healthUrl is required",
		},
		{
			name: "bad health url scheme",
			content: `
backend:
  command: pixels
  healthUrl: ftp://localhost:5000/health
`,
			wantErr: "must be http or https",
		},
		{
			name: "invalid duration",
			content: `
backend:
  command: pixels
  healthUrl: http://localhost:5000/health
supervisor:
  baseDelay: "not-a-duration"
`,
			wantErr: "invalid duration",
		},
		{
			name: "negative retries",
			content: `
backend:
  command: pixels
  healthUrl: http://localhost:5000/health
supervisor:
  maxRetries: -1
`,
			wantErr: "must not be negative",
		},
		{
			name: "base delay above max delay",
			content: `
backend:
  command: pixels
  healthUrl: http://localhost:5000/health
supervisor:
  baseDelay: 1m
  maxDelay: 30s
`,
			wantErr: "must not exceed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := writeConfig(t, tt.content)
			_, err := config.Load(config.WithConfigPath(path))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadNoSource(t *testing.T) {
	t.Parallel()

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no configuration source")
}

func TestWithConfigPathEmpty(t *testing.T) {
	t.Parallel()

	_, err := config.Load(config.WithConfigPath(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path is required")
}

func TestWithConfigPathNonexistent(t *testing.T) {
	t.Parallel()

	_, err := config.Load(config.WithConfigPath(filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Error(t, err)
}

func TestDurationRoundTrip(t *testing.T) {
	t.Parallel()

	d := config.Duration(90 * time.Second)
	out, err := d.MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", out)
	assert.Equal(t, 90*time.Second, d.Std())
}
