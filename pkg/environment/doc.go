// Package environment builds the synthetic project context a selection or
// diff call runs against.
//
// Three upstream generations are supported, each behind its own Shim. The
// generation is fixed by configuration, never detected from the manifest:
//
//	shim, err := environment.New(environment.Generation15,
//	    environment.WithProjectRoot(projectDir))
//	if err != nil {
//	    return err
//	}
//	ctx, err := shim.Build("target", profilesDir)
//	if err != nil {
//	    return err
//	}
//	defer ctx.Close()
//
// Every context runs single-threaded with usage stats and macro debugging off
// and eager indirect selection. Each Build creates a scratch directory that
// Close removes.
package environment
