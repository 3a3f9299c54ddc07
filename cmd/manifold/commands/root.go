package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/openfroyo/manifold/pkg/config"
	"github.com/openfroyo/manifold/pkg/engine"
	"github.com/openfroyo/manifold/pkg/environment"
	"github.com/openfroyo/manifold/pkg/output"
	"github.com/openfroyo/manifold/pkg/telemetry"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"
)

var (
	// Global flags
	configPath   string
	verbose      bool
	projectDir   string
	profilesDir  string
	targetPath   string
	generation   string
	manifestPath string
	outputFormat string
	outputKeys   string
)

// session holds what every subcommand shares once the config is loaded.
type session struct {
	version string
	cfg     *config.Config
	tel     *telemetry.Telemetry
	span    trace.Span
	logger  zerolog.Logger
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	s := &session{version: version, logger: zerolog.Nop()}
	rootCmd := newRootCommand(s, version, commit, buildDate)

	err := rootCmd.ExecuteContext(ctx)
	if closeErr := s.close(err); closeErr != nil && err == nil {
		err = fmt.Errorf("failed to flush telemetry: %w", closeErr)
	}
	return err
}

func newRootCommand(s *session, version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "manifold",
		Short: "Manifold - resource graph selection and state comparison",
		Long: `Manifold reads the manifest a data-transformation project writes on build
and answers two questions about it:

  - which resources match a selection expression
  - which resources changed since a previous manifest, and what depends on them

Features:
  - Manifests from schema generation v4 onwards, upgraded in memory
  - Selection by type, name, path and state, with downstream closure
  - Per-node state diff with a Rego policy gate
  - Named snapshots of previous manifests in a local SQLite store`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return s.setup(cmd)
		},
	}

	// Persistent flags available to all commands
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "config file path (default manifold.yaml if present)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	flags.StringVar(&projectDir, "project-dir", "", "project root directory")
	flags.StringVar(&profilesDir, "profiles-dir", "", "directory holding profiles.yml")
	flags.StringVar(&targetPath, "target-path", "", "build output directory")
	flags.StringVar(&generation, "generation", "", "upstream release family (1.3, 1.4 or 1.5)")
	flags.StringVarP(&manifestPath, "manifest", "m", "", "current manifest (default <project-dir>/<target-path>/manifest.json)")
	flags.StringVarP(&outputFormat, "output", "o", "", "output format (selector or json)")
	flags.StringVar(&outputKeys, "keys", "", "comma-separated JSON output keys")

	rootCmd.AddCommand(newListCommand(s))
	rootCmd.AddCommand(newCompareCommand(s))
	rootCmd.AddCommand(newChangesCommand(s))
	rootCmd.AddCommand(newDiffCommand(s))
	rootCmd.AddCommand(newGraphCommand(s))
	rootCmd.AddCommand(newSnapshotCommand(s))
	rootCmd.AddCommand(newWatchCommand(s))
	rootCmd.AddCommand(newValidateCommand(s))

	return rootCmd
}

// setup loads the config, applies flag overrides and starts telemetry.
func (s *session) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("project-dir") {
		cfg.ProjectDir = projectDir
	}
	if flags.Changed("profiles-dir") {
		cfg.ProfilesDir = profilesDir
	}
	if flags.Changed("target-path") {
		cfg.TargetPath = targetPath
	}
	if flags.Changed("generation") {
		cfg.Generation = generation
	}
	if flags.Changed("manifest") {
		cfg.Manifest = manifestPath
	}
	if flags.Changed("output") {
		cfg.Output.Format = outputFormat
	}
	if flags.Changed("keys") {
		cfg.Output.Keys = output.ParseKeys(outputKeys)
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Telemetry.LogLevel = level
	}
	if verbose {
		cfg.Telemetry.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// The global level set in main would otherwise cap the configured one.
	zerolog.SetGlobalLevel(telemetry.ParseLevel(cfg.Telemetry.LogLevel))

	tel, err := telemetry.NewTelemetry(cfg.TelemetryConfig(s.version), cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	invocationID := uuid.NewString()
	ctx, span := tel.Tracer.StartInvocationSpan(tel.WithContext(cmd.Context()), invocationID, cmd.CommandPath())
	logger := tel.Logger.WithInvocationID(invocationID)

	s.cfg = cfg
	s.tel = tel
	s.span = span
	s.logger = logger.NewComponentLogger("cli").Zerolog()
	cmd.SetContext(logger.WithContext(ctx))

	s.logger.Debug().
		Str("command", cmd.CommandPath()).
		Str("project_dir", cfg.ProjectDir).
		Str("generation", cfg.Generation).
		Msg("Configuration loaded")

	return nil
}

// close ends the invocation span with the command's outcome and flushes
// telemetry.
func (s *session) close(err error) error {
	if s.span != nil {
		if err != nil {
			telemetry.RecordError(s.span, err)
		} else {
			telemetry.RecordSuccess(s.span)
		}
		s.span.End()
	}
	if s.tel == nil {
		return nil
	}
	return s.tel.Shutdown(context.Background())
}

// runner creates an engine runner for the configured generation.
func (s *session) runner() (*engine.Runner, error) {
	shim, err := environment.New(
		environment.Generation(s.cfg.Generation),
		environment.WithProjectRoot(s.cfg.ProjectDir),
		environment.WithLogger(s.logger),
	)
	if err != nil {
		return nil, err
	}

	return engine.NewRunner(shim,
		engine.WithTargetPath(s.cfg.TargetPath),
		engine.WithProfilesDir(s.cfg.ProfilesPath()),
		engine.WithRunnerLogger(s.logger),
	)
}

// encoder creates the configured output encoder.
func (s *session) encoder() (*output.Encoder, error) {
	return output.NewEncoder(output.Format(s.cfg.Output.Format), s.cfg.Output.Keys...)
}
