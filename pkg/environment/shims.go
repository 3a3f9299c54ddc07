package environment

import (
	"github.com/openfroyo/manifold/pkg/manifest"
)

// shim13 targets the 1.3 family: synthetic project, no warn-error options.
type shim13 struct {
	base
}

func (s *shim13) Generation() Generation                  { return Generation13 }
func (s *shim13) ManifestGeneration() manifest.Generation { return 7 }

func (s *shim13) Build(targetPath, profilesDir string) (*Context, error) {
	return s.scaffold(Generation13, s.ManifestGeneration(), targetPath, profilesDir, func(ctx *Context) error {
		synthetic(ctx)
		return nil
	})
}

// shim14 targets the 1.4 family: synthetic project with empty warn-error
// options.
type shim14 struct {
	base
}

func (s *shim14) Generation() Generation                  { return Generation14 }
func (s *shim14) ManifestGeneration() manifest.Generation { return 8 }

func (s *shim14) Build(targetPath, profilesDir string) (*Context, error) {
	return s.scaffold(Generation14, s.ManifestGeneration(), targetPath, profilesDir, func(ctx *Context) error {
		synthetic(ctx)
		ctx.Flags.WarnErrorOptions = &WarnErrorOptions{}
		return nil
	})
}

// shim15 targets the 1.5 family, which builds its runtime configuration from
// the project and profile files on disk.
type shim15 struct {
	base
}

func (s *shim15) Generation() Generation                  { return Generation15 }
func (s *shim15) ManifestGeneration() manifest.Generation { return 9 }

func (s *shim15) Build(targetPath, profilesDir string) (*Context, error) {
	return s.scaffold(Generation15, s.ManifestGeneration(), targetPath, profilesDir, func(ctx *Context) error {
		project, err := loadProject(s.projectRoot)
		if err != nil {
			return err
		}
		profile, err := loadProfile(profilesDir, project.profileName())
		if err != nil {
			return err
		}

		project.apply(ctx)
		profile.apply(ctx)
		ctx.Flags.WarnErrorOptions = &WarnErrorOptions{}
		return nil
	})
}
