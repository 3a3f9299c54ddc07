package config

// Config is the content of manifold.yaml.
type Config struct {
	// ProjectDir is the root of the data project.
	ProjectDir string `yaml:"project_dir" validate:"required"`

	// ProfilesDir holds profiles.yml. Empty means ProjectDir.
	ProfilesDir string `yaml:"profiles_dir"`

	// TargetPath is the build output directory, relative to ProjectDir.
	TargetPath string `yaml:"target_path" validate:"required"`

	// Generation is the upstream release family the project uses.
	Generation string `yaml:"generation" validate:"required,oneof=1.3 1.4 1.5"`

	// Manifest is the current manifest. Empty means
	// <project_dir>/<target_path>/manifest.json.
	Manifest string `yaml:"manifest"`

	// State configures the base snapshot for state selection.
	State StateConfig `yaml:"state"`

	// Output configures result encoding.
	Output OutputConfig `yaml:"output"`

	// Store configures the snapshot store.
	Store StoreConfig `yaml:"store"`

	// Policy configures the diff gate.
	Policy PolicyConfig `yaml:"policy"`

	// Telemetry configures logging, tracing and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// StateConfig names the base snapshot. At most one of Path and Snapshot is set.
type StateConfig struct {
	// Path is a manifest file.
	Path string `yaml:"path" validate:"excluded_with=Snapshot"`

	// Snapshot is the name of a stored snapshot.
	Snapshot string `yaml:"snapshot"`
}

// OutputConfig configures result encoding.
type OutputConfig struct {
	Format string   `yaml:"format" validate:"required,oneof=selector json"`
	Keys   []string `yaml:"keys" validate:"dive,required"`
}

// StoreConfig configures the snapshot store.
type StoreConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// PolicyConfig configures the diff gate.
type PolicyConfig struct {
	// Paths are extra .rego files or directories.
	Paths []string `yaml:"paths" validate:"dive,required"`

	// FailOn is the lowest severity that fails the gate.
	FailOn string `yaml:"fail_on" validate:"required,oneof=error warning never"`
}

// TelemetryConfig configures logging, tracing and metrics.
type TelemetryConfig struct {
	LogLevel  string `yaml:"log_level" validate:"required,oneof=trace debug info warn error"`
	LogFormat string `yaml:"log_format" validate:"required,oneof=console json"`

	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter" validate:"required,oneof=stdout none"`
}

// MetricsConfig configures the metrics textfile.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Textfile is where metrics are written on exit, in the node-exporter
	// textfile format.
	Textfile string `yaml:"textfile"`
}
