package environment

import (
	"os"
	"sync"

	"github.com/openfroyo/manifold/pkg/manifest"
)

// IndirectSelectionEager includes every candidate of an ambiguous selector
// match instead of failing.
const IndirectSelectionEager = "eager"

// Context is the synthetic project and runtime configuration one invocation
// runs against. It is built once per call, never mutated afterwards, and
// must be closed to release its scratch directory.
type Context struct {
	// Generation is the upstream generation the context was built for.
	Generation Generation `validate:"required"`

	// ManifestGeneration is the canonical manifest generation that the
	// upstream generation reads.
	ManifestGeneration manifest.Generation `validate:"required,gte=4"`

	ProjectName string `validate:"required"`
	ProjectRoot string `validate:"required"`
	ProfileName string `validate:"required"`
	TargetName  string `validate:"required"`
	ProfilesDir string

	// AdapterType is the adapter named by the selected profile output, if any.
	AdapterType string

	TargetPath          string `validate:"required"`
	PackagesInstallPath string `validate:"required"`

	ModelPaths    []string `validate:"required,min=1,dive,required"`
	MacroPaths    []string `validate:"dive,required"`
	SeedPaths     []string `validate:"dive,required"`
	TestPaths     []string `validate:"dive,required"`
	SnapshotPaths []string `validate:"dive,required"`

	Quoting Quoting

	// Threads is pinned to one.
	Threads int `validate:"eq=1"`

	// Vars are the project variable bindings.
	Vars map[string]interface{}

	Flags Flags

	// ScratchDir holds transient build artifacts for this call.
	ScratchDir string `validate:"required"`

	closeOnce sync.Once
	closeErr  error
}

// Quoting controls identifier quoting of relations.
type Quoting struct {
	Database   bool
	Schema     bool
	Identifier bool
}

// Flags are the runtime switches the compiler consults.
type Flags struct {
	SendAnonymousUsageStats bool `validate:"eq=false"`
	MacroDebugging          bool `validate:"eq=false"`
	WarnError               bool `validate:"eq=false"`
	IndirectSelection       string `validate:"eq=eager"`

	// WarnErrorOptions is nil for generations that predate the option.
	WarnErrorOptions *WarnErrorOptions
}

// WarnErrorOptions lists warnings promoted to errors.
type WarnErrorOptions struct {
	Include []string
	Exclude []string
}

// Var returns the project variable bound to name.
func (c *Context) Var(name string) (interface{}, bool) {
	v, ok := c.Vars[name]
	return v, ok
}

// Close removes the scratch directory. It is safe to call more than once.
func (c *Context) Close() error {
	c.closeOnce.Do(func() {
		if c.ScratchDir != "" {
			c.closeErr = os.RemoveAll(c.ScratchDir)
		}
	})
	return c.closeErr
}
