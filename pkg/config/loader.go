package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/openfroyo/manifold/pkg/telemetry"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file looked up in the working directory.
const DefaultFile = "manifold.yaml"

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		ProjectDir: ".",
		TargetPath: "target",
		Generation: "1.5",
		Output: OutputConfig{
			Format: "selector",
		},
		Store: StoreConfig{
			Path: ".manifold/snapshots.db",
		},
		Policy: PolicyConfig{
			FailOn: "error",
		},
		Telemetry: TelemetryConfig{
			LogLevel:  "info",
			LogFormat: "console",
			Tracing: TracingConfig{
				Exporter: "none",
			},
			Metrics: MetricsConfig{
				Enabled: true,
			},
		},
	}
}

// Load reads the config at path over the defaults. An empty path loads
// DefaultFile if it exists and the defaults otherwise; an explicit path must
// exist.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s (got %q)", fe.Namespace(), fe.Tag(), fe.Param(), fmt.Sprint(fe.Value())))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// ProfilesPath returns the directory holding profiles.yml.
func (c *Config) ProfilesPath() string {
	if c.ProfilesDir != "" {
		return c.ProfilesDir
	}
	return c.ProjectDir
}

// ManifestPath returns the current manifest file.
func (c *Config) ManifestPath() string {
	if c.Manifest != "" {
		return c.Manifest
	}
	target := c.TargetPath
	if !filepath.IsAbs(target) {
		target = filepath.Join(c.ProjectDir, target)
	}
	return filepath.Join(target, "manifest.json")
}

// TelemetryConfig converts the telemetry section for the given binary version.
func (c *Config) TelemetryConfig(version string) *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = version
	cfg.Logging.Level = c.Telemetry.LogLevel
	cfg.Logging.Format = c.Telemetry.LogFormat
	cfg.Tracing.Enabled = c.Telemetry.Tracing.Enabled
	cfg.Tracing.Exporter = c.Telemetry.Tracing.Exporter
	cfg.Metrics.Enabled = c.Telemetry.Metrics.Enabled
	cfg.Metrics.TextfilePath = c.Telemetry.Metrics.Textfile
	return cfg
}
