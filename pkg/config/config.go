package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// AppConfig is the root configuration for nodekeeper.
type AppConfig struct {
	// PackagesDir is the directory node packages are installed under.
	PackagesDir string `yaml:"packages_dir" validate:"required"`

	Registry  RegistryConfig  `yaml:"registry"`
	Database  DatabaseConfig  `yaml:"database"`
	Deps      DepsConfig      `yaml:"deps"`
	Git       GitConfig       `yaml:"git"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// RegistryConfig configures the package registry client.
type RegistryConfig struct {
	BaseURL  string   `yaml:"base_url" validate:"required,url"`
	Timeout  Duration `yaml:"timeout" validate:"gte=0"`
	RetryMax int      `yaml:"retry_max" validate:"gte=0"`
	CacheTTL Duration `yaml:"cache_ttl" validate:"gte=0"`
}

// Duration is a time.Duration that accepts YAML strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration value on line %d", value.Line)
	}
	*d = Duration(time.Duration(n) * time.Second)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// DatabaseConfig configures the local SQLite store.
type DatabaseConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// DepsConfig configures the dependency-installation step.
type DepsConfig struct {
	// Interpreter runs requirements installs and install scripts.
	Interpreter string `yaml:"interpreter"`

	// Skip disables the dependency step for all operations.
	Skip bool `yaml:"skip"`
}

// GitConfig configures the git binary used for nightly checkouts.
type GitConfig struct {
	Binary string `yaml:"binary"`
}

// TelemetryConfig configures logging, tracing and metrics.
type TelemetryConfig struct {
	LogLevel  string `yaml:"log_level" validate:"oneof=trace debug info warn error fatal"`
	LogFormat string `yaml:"log_format" validate:"oneof=console json"`

	TracingEnabled  bool   `yaml:"tracing_enabled"`
	TracingExporter string `yaml:"tracing_exporter" validate:"oneof=otlp stdout none"`
	OTLPEndpoint    string `yaml:"otlp_endpoint"`

	MetricsEnabled bool   `yaml:"metrics_enabled"`
	MetricsListen  string `yaml:"metrics_listen"`
}

// Default returns the configuration used when no file is present.
func Default() *AppConfig {
	return &AppConfig{
		PackagesDir: "custom_nodes",
		Registry: RegistryConfig{
			BaseURL:  "https://api.comfy.org",
			Timeout:  Duration(30 * time.Second),
			RetryMax: 3,
			CacheTTL: Duration(15 * time.Minute),
		},
		Database: DatabaseConfig{
			Path: "nodekeeper.db",
		},
		Deps: DepsConfig{
			Interpreter: "python3",
		},
		Git: GitConfig{
			Binary: "git",
		},
		Telemetry: TelemetryConfig{
			LogLevel:        "info",
			LogFormat:       "console",
			TracingEnabled:  false,
			TracingExporter: "none",
			MetricsEnabled:  false,
			MetricsListen:   ":9090",
		},
	}
}

// Load reads the YAML file at path over the defaults and validates the
// result. A missing file yields the defaults.
func Load(path string) (*AppConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the configuration against its struct tags.
func (c *AppConfig) Validate() error {
	return validator.New().Struct(c)
}
