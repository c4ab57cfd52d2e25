package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTmpConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeTmpConfig(t, `
alumet:
  node:
    hostname: "test-host"
    tags:
      env: "test"
  control:
    pid_file: "/tmp/test.pid"
  log:
    level: "debug"
  metrics:
    enabled: true
    listen: ":9999"
  pipeline:
    source_channel_capacity: 2048
    broadcast_capacity: 128
`))
	require.NoError(t, err)
	assert.Equal(t, "test-host", cfg.Node.Hostname)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 2048, cfg.Pipeline.SourceChannelCapacity)
	assert.Equal(t, 128, cfg.Pipeline.BroadcastCapacity)
	assert.Equal(t, ":9999", cfg.Metrics.Listen)
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeTmpConfig(t, `
alumet:
  node:
    hostname: "test-host"
`))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 1024, cfg.Pipeline.SourceChannelCapacity)
	assert.Equal(t, 64, cfg.Pipeline.BroadcastCapacity)
	assert.Equal(t, 0, cfg.Pipeline.RealtimePoolSize)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9091", cfg.Metrics.Listen)
	assert.Equal(t, "1s", cfg.Pipeline.DefaultPollInterval)
	assert.Equal(t, "5s", cfg.Pipeline.DefaultFlushInterval)
	assert.Equal(t, 256, cfg.Control.QueueCapacity)
}

func TestLoadInvalidPollFlushOrdering(t *testing.T) {
	_, err := Load(writeTmpConfig(t, `
alumet:
  node:
    hostname: "test-host"
  pipeline:
    default_poll_interval: "5s"
    default_flush_interval: "1s"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default_flush_interval")
}

func TestLoadInvalidLogLevel(t *testing.T) {
	_, err := Load(writeTmpConfig(t, `
alumet:
  node:
    hostname: "test-host"
  log:
    level: "verbose"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestLoadHostnameAutoDetect(t *testing.T) {
	cfg, err := Load(writeTmpConfig(t, `
alumet: {}
`))
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Node.Hostname)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yml"))
	require.Error(t, err)
}

func TestLoadPluginSections(t *testing.T) {
	cfg, err := Load(writeTmpConfig(t, `
alumet:
  node:
    hostname: "test-host"
  plugins:
    cpu_rapl:
      poll_interval: "500ms"
      enabled: true
`))
	require.NoError(t, err)
	require.Contains(t, cfg.Plugins, "cpu_rapl")
	assert.Equal(t, true, cfg.Plugins["cpu_rapl"]["enabled"])
}
