package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLayered_CLIOverridesEverything(t *testing.T) {
	embedded := []byte("monitor:\n  pid: 10\n  interval: 2s\noutput:\n  path: embedded.csv")
	t.Setenv("SYSMON_PID", "20")
	t.Setenv("SYSMON_OUTPUT", "env.jsonl")

	pid := 30
	interval := 250 * time.Millisecond
	cli := CLIOverrides{PID: &pid, Interval: &interval, Output: "cli.cbor"}

	cfg, err := LoadLayered(cli, embedded, "")
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Monitor.PID)
	assert.Equal(t, interval, cfg.Monitor.Interval.Duration)
	assert.Equal(t, "cli.cbor", cfg.Output.Path)
	assert.Equal(t, "cbor", cfg.OutputFormat())
}

func TestLoadLayered_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sysmon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("monitor:\n  pid: 10\n  interval: 500ms\nlogging:\n  level: warn\n"), 0644))
	t.Setenv("SYSMON_INTERVAL", "100")

	cfg, err := LoadLayered(CLIOverrides{}, nil, path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Monitor.PID)
	assert.Equal(t, 100*time.Millisecond, cfg.Monitor.Interval.Duration)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadLayered_FileOverridesEmbedded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sysmon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("publish:\n  enabled: true\n"), 0644))
	embedded := []byte("publish:\n  enabled: false\n  endpoint: tcp://0.0.0.0:6000\n")

	cfg, err := LoadLayered(CLIOverrides{}, embedded, path)
	require.NoError(t, err)
	assert.True(t, cfg.Publish.Enabled)
	assert.Equal(t, "tcp://0.0.0.0:6000", cfg.Publish.Endpoint)
}

func TestLoadLayered_DefaultsWhenEmpty(t *testing.T) {
	cfg, err := LoadLayered(CLIOverrides{}, nil, "")
	require.NoError(t, err)
	assert.Equal(t, NoPID, cfg.Monitor.PID)
	assert.Equal(t, time.Second, cfg.Monitor.Interval.Duration)
	assert.Equal(t, "collector-out.csv", cfg.Output.Path)
	assert.Equal(t, "csv", cfg.OutputFormat())
	assert.False(t, cfg.Publish.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoadLayered_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadLayered(CLIOverrides{}, nil, filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadLayered_BadInputs(t *testing.T) {
	_, err := LoadLayered(CLIOverrides{}, []byte("monitor:\n  interval: soon\n"), "")
	assert.Error(t, err)

	t.Setenv("SYSMON_PID", "abc")
	_, err = LoadLayered(CLIOverrides{}, nil, "")
	assert.Error(t, err)
}

func TestParseInterval(t *testing.T) {
	tests := map[string]time.Duration{
		"1000":  time.Second,
		"250":   250 * time.Millisecond,
		"1.5s":  1500 * time.Millisecond,
		" 2m ":  2 * time.Minute,
		"100ms": 100 * time.Millisecond,
	}
	for in, want := range tests {
		got, err := ParseInterval(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseInterval("fast")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"bound pid", func(c *Config) { c.Monitor.PID = 1234 }, true},
		{"zero pid", func(c *Config) { c.Monitor.PID = 0 }, false},
		{"negative pid", func(c *Config) { c.Monitor.PID = -2 }, false},
		{"zero interval", func(c *Config) { c.Monitor.Interval.Duration = 0 }, false},
		{"negative interval", func(c *Config) { c.Monitor.Interval.Duration = -time.Second }, false},
		{"unknown format", func(c *Config) { c.Output.Format = "xml" }, false},
		{"inferred format", func(c *Config) { c.Output.Path = "run.jsonl.zst" }, true},
		{"no output", func(c *Config) { c.Output.Path = "" }, false},
		{"publish without endpoint", func(c *Config) {
			c.Publish.Enabled = true
			c.Publish.Endpoint = ""
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if tt.ok {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.Error(t, cfg.Validate())
			}
		})
	}
}

func TestWriteConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "sysmon.yaml")

	cfg := DefaultConfig()
	cfg.Monitor.PID = 42
	cfg.Monitor.Interval.Duration = 750 * time.Millisecond
	require.NoError(t, WriteConfig(cfg, path))

	loaded, err := LoadLayered(CLIOverrides{}, nil, path)
	require.NoError(t, err)
	assert.Equal(t, 42, loaded.Monitor.PID)
	assert.Equal(t, 750*time.Millisecond, loaded.Monitor.Interval.Duration)
}

func TestWriteConfig_ResolvedLayersReload(t *testing.T) {
	embedded := []byte("monitor:\n  interval: 250ms\noutput:\n  path: /var/log/sysmon.jsonl\n")
	pid := 77
	publish := true
	cfg, err := LoadLayered(CLIOverrides{
		PID:      &pid,
		Publish:  &publish,
		Endpoint: "ipc:///run/sysmon.sock",
		LogLevel: "debug",
	}, embedded, "")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	path := filepath.Join(t.TempDir(), "resolved.yaml")
	require.NoError(t, WriteConfig(cfg, path))

	loaded, err := LoadLayered(CLIOverrides{}, nil, path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
