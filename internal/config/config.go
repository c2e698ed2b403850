// Package config handles configuration loading from YAML files and environment variables.
// Configuration precedence: CLI flags > environment variables > config file > embedded > defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Guliveer/sysmon/internal/output"
)

// NoPID disables process sampling.
const NoPID = -1

// Duration is a wrapper around time.Duration that supports YAML unmarshaling
// from human-readable strings like "500ms", "1s".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("unsupported duration format: %v", value.Kind)
	}
	parsed, err := ParseInterval(value.Value)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements the yaml.Marshaler interface for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// ParseInterval accepts a Go duration string or a bare integer number of
// milliseconds, the unit the command line uses.
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}

// Config holds all sysmon configuration.
type Config struct {
	Monitor MonitorConfig `yaml:"monitor"`
	Output  OutputConfig  `yaml:"output"`
	Publish PublishConfig `yaml:"publish"`
	Logging LoggingConfig `yaml:"logging"`
}

// MonitorConfig holds sampling settings.
type MonitorConfig struct {
	PID      int      `yaml:"pid"`
	Interval Duration `yaml:"interval"`
	ProcFS   string   `yaml:"procfs"`
	SysFS    string   `yaml:"sysfs"`
}

// OutputConfig selects the snapshot file. An empty format is inferred from
// the path.
type OutputConfig struct {
	Path   string `yaml:"path"`
	Format string `yaml:"format"`
}

// PublishConfig holds ZeroMQ publisher settings.
type PublishConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Monitor: MonitorConfig{
			PID:      NoPID,
			Interval: Duration{time.Second},
			ProcFS:   "/proc",
			SysFS:    "/sys",
		},
		Output: OutputConfig{
			Path: "collector-out.csv",
		},
		Publish: PublishConfig{
			Enabled:  false,
			Endpoint: "tcp://127.0.0.1:5560",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// OutputFormat returns the configured format, or the one implied by the
// output path.
func (c *Config) OutputFormat() string {
	if c.Output.Format != "" {
		return c.Output.Format
	}
	return output.FormatForPath(c.Output.Path)
}

// CLIOverrides holds values from command-line flags.
// Nil pointers and empty strings are treated as "not set" and skipped.
type CLIOverrides struct {
	PID      *int
	Interval *time.Duration
	Output   string
	Format   string
	Publish  *bool
	Endpoint string
	LogLevel string
}

// Locate searches standard config file paths and returns the first one found.
// Returns empty string if no config file exists.
func Locate() string {
	for _, p := range configSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// LoadLayered loads configuration with the full precedence chain:
// CLI flags > env vars > external YAML file > embedded bytes > defaults.
//
// An optional configPath argument controls external-file discovery:
//   - omitted        → auto-discover via Locate()
//   - explicit value  → use that path ("" means no external file)
func LoadLayered(cli CLIOverrides, embedded []byte, configPath ...string) (*Config, error) {
	cfg := DefaultConfig()

	if len(embedded) > 0 {
		if err := yaml.Unmarshal(embedded, cfg); err != nil {
			return nil, fmt.Errorf("parsing embedded config: %w", err)
		}
	}

	var filePath string
	if len(configPath) > 0 {
		filePath = configPath[0]
	} else {
		filePath = Locate()
	}
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", filePath, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	applyCLIOverrides(cfg, cli)
	return cfg, nil
}

// WriteConfig serializes the config to a YAML file at the given path.
// Creates parent directories if needed.
func WriteConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0640)
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("SYSMON_PID"); v != "" {
		pid, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SYSMON_PID: %w", err)
		}
		cfg.Monitor.PID = pid
	}
	if v := os.Getenv("SYSMON_INTERVAL"); v != "" {
		d, err := ParseInterval(v)
		if err != nil {
			return fmt.Errorf("SYSMON_INTERVAL: %w", err)
		}
		cfg.Monitor.Interval.Duration = d
	}
	if v := os.Getenv("SYSMON_OUTPUT"); v != "" {
		cfg.Output.Path = v
	}
	if v := os.Getenv("SYSMON_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}

func applyCLIOverrides(cfg *Config, cli CLIOverrides) {
	if cli.PID != nil {
		cfg.Monitor.PID = *cli.PID
	}
	if cli.Interval != nil {
		cfg.Monitor.Interval.Duration = *cli.Interval
	}
	if cli.Output != "" {
		cfg.Output.Path = cli.Output
	}
	if cli.Format != "" {
		cfg.Output.Format = cli.Format
	}
	if cli.Publish != nil {
		cfg.Publish.Enabled = *cli.Publish
	}
	if cli.Endpoint != "" {
		cfg.Publish.Endpoint = cli.Endpoint
	}
	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}
}

// Validate checks that the configuration can drive a sampling run.
func (c *Config) Validate() error {
	if c.Monitor.Interval.Duration <= 0 {
		return fmt.Errorf("interval must be positive (got: %s)", c.Monitor.Interval.Duration)
	}
	if c.Monitor.PID < NoPID || c.Monitor.PID == 0 {
		return fmt.Errorf("pid must be %d or a positive process id (got: %d)", NoPID, c.Monitor.PID)
	}
	if c.Output.Path == "" {
		return fmt.Errorf("output path is required")
	}
	if !output.IsFormat(c.OutputFormat()) {
		return fmt.Errorf("unknown output format %q (supported: %s)",
			c.OutputFormat(), strings.Join(output.Formats, ", "))
	}
	if c.Publish.Enabled && c.Publish.Endpoint == "" {
		return fmt.Errorf("publish endpoint is required when publishing is enabled")
	}
	return nil
}
