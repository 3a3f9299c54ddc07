package environment

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/openfroyo/manifold/pkg/errdefs"
	"github.com/openfroyo/manifold/pkg/manifest"
	"github.com/rs/zerolog"
)

// Generation identifies a supported upstream release family.
type Generation string

const (
	Generation13 Generation = "1.3"
	Generation14 Generation = "1.4"
	Generation15 Generation = "1.5"
)

// DefaultGeneration is the generation used when none is configured.
const DefaultGeneration = Generation15

// Shim builds the minimal project context one upstream generation needs.
// Exactly one implementation exists per supported generation.
type Shim interface {
	// Generation returns the upstream generation this shim targets.
	Generation() Generation

	// ManifestGeneration returns the canonical manifest generation the
	// upstream generation reads.
	ManifestGeneration() manifest.Generation

	// Build constructs a fresh context. The caller must Close it.
	Build(targetPath, profilesDir string) (*Context, error)
}

// Option configures a shim.
type Option func(*base)

// WithProjectRoot sets the project root. It defaults to the working directory.
func WithProjectRoot(dir string) Option {
	return func(b *base) {
		b.projectRoot = dir
	}
}

// WithScratchRoot sets the parent of per-call scratch directories. It
// defaults to the system temp directory.
func WithScratchRoot(dir string) Option {
	return func(b *base) {
		b.scratchRoot = dir
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *base) {
		b.logger = logger
	}
}

// New returns the shim for gen.
func New(gen Generation, opts ...Option) (Shim, error) {
	b := base{
		projectRoot: ".",
		logger:      zerolog.Nop(),
		validate:    validator.New(),
	}
	for _, opt := range opts {
		opt(&b)
	}
	b.logger = b.logger.With().
		Str("component", "environment").
		Str("generation", string(gen)).
		Logger()

	if abs, err := filepath.Abs(b.projectRoot); err == nil {
		b.projectRoot = abs
	}

	switch gen {
	case Generation13:
		return &shim13{base: b}, nil
	case Generation14:
		return &shim14{base: b}, nil
	case Generation15:
		return &shim15{base: b}, nil
	default:
		return nil, errdefs.NewEnvironmentError(
			fmt.Sprintf("upstream generation %q is not supported", gen),
			nil,
		).WithCode(errdefs.CodeUnsupportedGeneration).
			WithDetail("supported", SupportedGenerations())
	}
}

// SupportedGenerations lists the generations New accepts.
func SupportedGenerations() []Generation {
	return []Generation{Generation13, Generation14, Generation15}
}

// base carries what every shim shares.
type base struct {
	projectRoot string
	scratchRoot string
	logger      zerolog.Logger
	validate    *validator.Validate
}

// scaffold creates the scratch directory and the defaults every generation
// shares, runs fill, and validates the result. The scratch directory is
// removed if any step fails.
func (b *base) scaffold(
	gen Generation,
	manifestGen manifest.Generation,
	targetPath, profilesDir string,
	fill func(*Context) error,
) (ctx *Context, err error) {
	scratch, err := os.MkdirTemp(b.scratchRoot, "manifold-")
	if err != nil {
		return nil, errdefs.NewEnvironmentError("failed to create scratch directory", err).
			WithCode(errdefs.CodeScratchDir)
	}
	defer func() {
		if err != nil {
			if rmErr := os.RemoveAll(scratch); rmErr != nil {
				b.logger.Warn().Err(rmErr).Str("dir", scratch).Msg("Failed to remove scratch directory")
			}
		}
	}()

	if targetPath == "" {
		targetPath = "target"
	}

	ctx = &Context{
		Generation:          gen,
		ManifestGeneration:  manifestGen,
		ProjectRoot:         b.projectRoot,
		ProfilesDir:         profilesDir,
		TargetPath:          targetPath,
		PackagesInstallPath: filepath.Join(scratch, "packages"),
		ModelPaths:          []string{"models"},
		MacroPaths:          []string{"macros"},
		SeedPaths:           []string{"seeds"},
		TestPaths:           []string{"tests"},
		SnapshotPaths:       []string{"snapshots"},
		Quoting:             Quoting{Database: true, Schema: true, Identifier: true},
		Threads:             1,
		Vars:                map[string]interface{}{},
		Flags: Flags{
			IndirectSelection: IndirectSelectionEager,
		},
		ScratchDir: scratch,
	}

	if err = fill(ctx); err != nil {
		return nil, err
	}

	if err = b.validate.Struct(ctx); err != nil {
		return nil, errdefs.NewEnvironmentError("constructed context is invalid", err).
			WithCode(errdefs.CodeInvalidContext)
	}

	b.logger.Debug().
		Str("project", ctx.ProjectName).
		Str("scratch_dir", scratch).
		Msg("Built environment context")

	return ctx, nil
}

// synthetic fills in the fixed project used by generations that do not read
// project files.
func synthetic(ctx *Context) {
	ctx.ProjectName = "manifold"
	ctx.ProfileName = "manifold"
	ctx.TargetName = "manifold"
}
