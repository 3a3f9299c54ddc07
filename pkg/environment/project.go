package environment

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/openfroyo/manifold/pkg/errdefs"
	"gopkg.in/yaml.v3"
)

const (
	projectFileName = "dbt_project.yml"
	profileFileName = "profiles.yml"
)

// projectFile is the subset of the project file the context needs.
type projectFile struct {
	Name                string                 `yaml:"name"`
	Version             string                 `yaml:"version"`
	ConfigVersion       int                    `yaml:"config-version"`
	Profile             string                 `yaml:"profile"`
	ModelPaths          []string               `yaml:"model-paths"`
	MacroPaths          []string               `yaml:"macro-paths"`
	SeedPaths           []string               `yaml:"seed-paths"`
	TestPaths           []string               `yaml:"test-paths"`
	SnapshotPaths       []string               `yaml:"snapshot-paths"`
	PackagesInstallPath string                 `yaml:"packages-install-path"`
	Quoting             map[string]bool        `yaml:"quoting"`
	Vars                map[string]interface{} `yaml:"vars"`
}

func (p *projectFile) profileName() string {
	if p.Profile != "" {
		return p.Profile
	}
	return p.Name
}

// apply overrides the scaffold defaults with what the project declares.
func (p *projectFile) apply(ctx *Context) {
	ctx.ProjectName = p.Name
	ctx.ProfileName = p.profileName()

	if len(p.ModelPaths) > 0 {
		ctx.ModelPaths = p.ModelPaths
	}
	if len(p.MacroPaths) > 0 {
		ctx.MacroPaths = p.MacroPaths
	}
	if len(p.SeedPaths) > 0 {
		ctx.SeedPaths = p.SeedPaths
	}
	if len(p.TestPaths) > 0 {
		ctx.TestPaths = p.TestPaths
	}
	if len(p.SnapshotPaths) > 0 {
		ctx.SnapshotPaths = p.SnapshotPaths
	}
	if p.PackagesInstallPath != "" {
		ctx.PackagesInstallPath = filepath.Join(ctx.ScratchDir, p.PackagesInstallPath)
	}
	for key, v := range p.Quoting {
		switch key {
		case "database":
			ctx.Quoting.Database = v
		case "schema":
			ctx.Quoting.Schema = v
		case "identifier":
			ctx.Quoting.Identifier = v
		}
	}
	for k, v := range p.Vars {
		ctx.Vars[k] = v
	}
}

// profileEntry is one named profile in the profiles file. Output bodies
// carry credentials and are reduced to their adapter type.
type profileEntry struct {
	Target  string                            `yaml:"target"`
	Outputs map[string]map[string]interface{} `yaml:"outputs"`
}

type resolvedProfile struct {
	target      string
	adapterType string
}

func (p resolvedProfile) apply(ctx *Context) {
	ctx.TargetName = p.target
	ctx.AdapterType = p.adapterType
}

func loadProject(projectRoot string) (*projectFile, error) {
	path := filepath.Join(projectRoot, projectFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errdefs.NewEnvironmentError("failed to read project file", err).
			WithCode(errdefs.CodeProjectLoad).
			WithResource(path)
	}

	var project projectFile
	if err := yaml.Unmarshal(data, &project); err != nil {
		return nil, errdefs.NewEnvironmentError("failed to parse project file", err).
			WithCode(errdefs.CodeProjectLoad).
			WithResource(path)
	}
	if project.Name == "" {
		return nil, errdefs.NewEnvironmentError("project file does not declare a name", nil).
			WithCode(errdefs.CodeProjectLoad).
			WithResource(path)
	}

	return &project, nil
}

func loadProfile(profilesDir, name string) (resolvedProfile, error) {
	path := filepath.Join(profilesDir, profileFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		return resolvedProfile{}, errdefs.NewEnvironmentError("failed to read profiles file", err).
			WithCode(errdefs.CodeProjectLoad).
			WithResource(path)
	}

	var profiles map[string]profileEntry
	if err := yaml.Unmarshal(data, &profiles); err != nil {
		return resolvedProfile{}, errdefs.NewEnvironmentError("failed to parse profiles file", err).
			WithCode(errdefs.CodeProjectLoad).
			WithResource(path)
	}

	entry, ok := profiles[name]
	if !ok {
		return resolvedProfile{}, errdefs.NewEnvironmentError(
			fmt.Sprintf("profile %q not found", name),
			nil,
		).WithCode(errdefs.CodeProjectLoad).
			WithResource(path)
	}

	target := entry.Target
	if target == "" {
		target = "default"
	}
	output, ok := entry.Outputs[target]
	if !ok {
		return resolvedProfile{}, errdefs.NewEnvironmentError(
			fmt.Sprintf("profile %q has no output for target %q", name, target),
			nil,
		).WithCode(errdefs.CodeProjectLoad).
			WithResource(path)
	}

	adapterType, _ := output["type"].(string)
	return resolvedProfile{target: target, adapterType: adapterType}, nil
}
