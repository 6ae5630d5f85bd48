// Package config provides configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the monitor configuration.
type Config struct {
	Monitor   MonitorConfig   `toml:"monitor"`
	Protocol  ProtocolConfig  `toml:"protocol"`
	Source    SourceConfig    `toml:"source"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	UI        UIConfig        `toml:"ui"`
}

// MonitorConfig bounds what the state model retains.
type MonitorConfig struct {
	LogCapacity         int `toml:"log_capacity"`          // Ring buffer size for user-visible log entries
	PreviewChars        int `toml:"preview_chars"`         // Rolling preview kept per sub-execution
	ArgsChars           int `toml:"args_chars"`            // Serialized invocation arguments cap
	ResultChars         int `toml:"result_chars"`          // Serialized result cap
	FailureExcerptChars int `toml:"failure_excerpt_chars"` // Result excerpt attached to failure log entries
	DedupCacheSize      int `toml:"dedup_cache_size"`      // Resolved correlation tokens remembered for duplicate suppression
}

// ProtocolConfig describes the engine's event conventions.
type ProtocolConfig struct {
	NamespacePrefix        string   `toml:"namespace_prefix"`
	DispatchAction         string   `toml:"dispatch_action"`
	TaskListAction         string   `toml:"task_list_action"`
	ArtifactActions        []string `toml:"artifact_actions"`
	DescriptionKeys        []string `toml:"description_keys"`
	NameKeys               []string `toml:"name_keys"`
	PlaceholderDescription string   `toml:"placeholder_description"`
	FailurePatterns        []string `toml:"failure_patterns"`
}

// SourceConfig selects where events come from.
type SourceConfig struct {
	Path        string `toml:"path"`         // NDJSON file, "-" for stdin
	Follow      bool   `toml:"follow"`       // Tail the file as the engine appends
	NATSURL     string `toml:"nats_url"`     // Subscribe over NATS instead of reading a file
	NATSSubject string `toml:"nats_subject"` // Subject carrying one event per message
}

// TelemetryConfig contains tracing settings.
type TelemetryConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"` // OTLP endpoint (e.g., localhost:4317)
	Protocol string `toml:"protocol"` // grpc, http or noop
}

// UIConfig contains rendering settings.
type UIConfig struct {
	RefreshMs int `toml:"refresh_ms"` // Minimum interval between repaints
}

// New creates a new config with defaults.
func New() *Config {
	return &Config{
		Monitor: MonitorConfig{
			LogCapacity:         100,
			PreviewChars:        160,
			ArgsChars:           500,
			ResultChars:         500,
			FailureExcerptChars: 300,
			DedupCacheSize:      1024,
		},
		Protocol: ProtocolConfig{
			NamespacePrefix:        "tools:",
			DispatchAction:         "task",
			TaskListAction:         "write_todos",
			ArtifactActions:        []string{"write_file"},
			DescriptionKeys:        []string{"description", "task", "prompt", "instructions"},
			NameKeys:               []string{"subagent_type", "agent", "name"},
			PlaceholderDescription: "Working on delegated task",
			FailurePatterns: []string{
				"Error:",
				"Exception:",
				"Traceback (most recent call last)",
			},
		},
		Source: SourceConfig{
			NATSSubject: "execmon.events",
		},
		Telemetry: TelemetryConfig{
			Protocol: "noop",
		},
		UI: UIConfig{
			RefreshMs: 50,
		},
	}
}

// Default returns a default configuration.
func Default() *Config {
	return New()
}

// LoadFile loads configuration from a TOML file on top of the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads execmon.toml from the current directory, falling back to
// defaults when the file does not exist.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	cfg, err := LoadFile(filepath.Join(cwd, "execmon.toml"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return New(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the monitor cannot run with.
func (c *Config) Validate() error {
	if c.Monitor.LogCapacity <= 0 {
		return fmt.Errorf("monitor.log_capacity must be positive, got %d", c.Monitor.LogCapacity)
	}
	if c.Monitor.PreviewChars <= 0 {
		return fmt.Errorf("monitor.preview_chars must be positive, got %d", c.Monitor.PreviewChars)
	}
	if c.Monitor.DedupCacheSize <= 0 {
		return fmt.Errorf("monitor.dedup_cache_size must be positive, got %d", c.Monitor.DedupCacheSize)
	}
	if c.Protocol.NamespacePrefix == "" {
		return fmt.Errorf("protocol.namespace_prefix must not be empty")
	}
	if c.Protocol.DispatchAction == "" {
		return fmt.Errorf("protocol.dispatch_action must not be empty")
	}
	return nil
}

// IsArtifactAction reports whether a successful completion of action means a
// file was written.
func (c *Config) IsArtifactAction(action string) bool {
	for _, a := range c.Protocol.ArtifactActions {
		if a == action {
			return true
		}
	}
	return false
}
