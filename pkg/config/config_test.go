package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *Config {
	cfg := NewDefaultConfig()
	cfg.Log.Path = t.TempDir()
	return cfg
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10*time.Second, cfg.Remoting.Client.ReconnectInterval)
	assert.Equal(t, 30*time.Second, cfg.Remoting.Server.IdleTimeout)
	assert.Equal(t, 2*time.Second, cfg.Queue.PollTimeout)
}

func TestValidateRejectsHeartbeatOutsideIdleWindow(t *testing.T) {
	cfg := testConfig(t)
	cfg.Remoting.Client.HeartbeatInterval = cfg.Remoting.Client.IdleTimeout

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "heartbeat_interval")
}

func TestValidateConsumers(t *testing.T) {
	cases := map[string][]string{
		"empty list": {},
		"blank":      {"exporter", " "},
		"duplicate":  {"exporter", "exporter"},
		"whitespace": {"export er"},
	}
	for name, consumers := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Collector.Consumers = consumers
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Log.Level = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestLogConfigValidate(t *testing.T) {
	cfg := testConfig(t)
	cfg.Log.Level = " WARN"
	cfg.Log.Format = "Console"
	cfg.Log.Path = filepath.Join(t.TempDir(), "nested", "logs")
	require.NoError(t, cfg.Log.Validate())
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.DirExists(t, cfg.Log.Path)
	entries, err := os.ReadDir(cfg.Log.Path)
	require.NoError(t, err)
	assert.Empty(t, entries, "write check leaves nothing behind")

	cfg = testConfig(t)
	cfg.Log.Level = "dpanic"
	assert.NoError(t, cfg.Log.Validate())

	cfg = testConfig(t)
	file := filepath.Join(t.TempDir(), "collector.log")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	cfg.Log.Path = file
	assert.ErrorContains(t, cfg.Log.Validate(), "not a directory")
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
remoting:
  client:
    manager_addr: "10.0.0.5:1158"
    reconnect_interval: 3s
queue:
  poll_timeout: 500ms
  capacity: 128
collector:
  name: edge-01
  consumers: [exporter, transmitter, archiver]
log:
  path: ` + filepath.Join(dir, "logs") + `
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5:1158", cfg.Remoting.Client.ManagerAddr)
	assert.Equal(t, 3*time.Second, cfg.Remoting.Client.ReconnectInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.Queue.PollTimeout)
	assert.Equal(t, 128, cfg.Queue.Capacity)
	assert.Equal(t, "edge-01", cfg.Collector.Name)
	assert.Equal(t, []string{"exporter", "transmitter", "archiver"}, cfg.Collector.Consumers)
	// 未覆盖的字段保持默认值
	assert.Equal(t, 30*time.Second, cfg.Remoting.Client.IdleTimeout)
}

func TestLoadConfigWithCliFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	f := cmd.Flags()
	f.String("config", "", "")
	f.String("collector.name", "", "")
	f.Duration("remoting.client.idle-timeout", 0, "")
	f.String("log.path", "", "")

	require.NoError(t, f.Set("collector.name", "flag-collector"))
	require.NoError(t, f.Set("remoting.client.idle-timeout", "45s"))
	require.NoError(t, f.Set("log.path", t.TempDir()))

	cfg, err := LoadConfigWithCli(cmd)
	require.NoError(t, err)
	assert.Equal(t, "flag-collector", cfg.Collector.Name)
	assert.Equal(t, 45*time.Second, cfg.Remoting.Client.IdleTimeout)
}

func TestLoadConfigWithCliPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
remoting:
  client:
    manager_addr: "10.0.0.5:1158"
collector:
  name: from-file
log:
  path: ` + filepath.Join(dir, "logs") + `
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	t.Setenv("REMOTING_CLIENT_RECONNECT_INTERVAL", "4s")

	cmd := &cobra.Command{Use: "test"}
	f := cmd.Flags()
	f.String("config", "", "")
	f.String("remoting.client.manager-addr", "127.0.0.1:1158", "")
	f.String("collector.name", "", "")
	require.NoError(t, f.Set("config", path))
	require.NoError(t, f.Set("collector.name", "from-flag"))

	cfg, err := LoadConfigWithCli(cmd)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5:1158", cfg.Remoting.Client.ManagerAddr, "unset flag default must not override the file")
	assert.Equal(t, "from-flag", cfg.Collector.Name)
	assert.Equal(t, 4*time.Second, cfg.Remoting.Client.ReconnectInterval)
}
