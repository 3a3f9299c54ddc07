package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/openfroyo/manifold/pkg/engine"
	"github.com/openfroyo/manifold/pkg/errdefs"
	"github.com/openfroyo/manifold/pkg/stores"
	"github.com/spf13/cobra"
)

// stateFlags name the base manifest of a state comparison.
type stateFlags struct {
	path     string
	snapshot string
}

func (f *stateFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.path, "state", "", "previous manifest file to compare against")
	cmd.Flags().StringVar(&f.snapshot, "state-snapshot", "", "name of a stored snapshot to compare against")
	cmd.MarkFlagsMutuallyExclusive("state", "state-snapshot")
}

// baseState is a loaded previous manifest.
type baseState struct {
	raw      []byte
	snapshot *stores.Snapshot
}

// resolve loads the base manifest named by the flags, falling back to the
// config's state section. No base at all yields a nil raw manifest.
func (f *stateFlags) resolve(ctx context.Context, s *session) (*baseState, error) {
	path, name := f.path, f.snapshot
	if path == "" && name == "" {
		path, name = s.cfg.State.Path, s.cfg.State.Snapshot
	}

	switch {
	case path != "":
		raw, err := readManifest(path)
		if err != nil {
			return nil, err
		}
		return &baseState{raw: raw}, nil
	case name != "":
		store, err := s.openStore(ctx)
		if err != nil {
			return nil, err
		}
		defer store.Close()

		snap, err := store.LatestSnapshot(ctx, name)
		if err != nil {
			return nil, err
		}
		s.logger.Debug().
			Str("snapshot", snap.Name).
			Str("id", snap.ID).
			Str("sha256", snap.SHA256).
			Msg("Loaded base snapshot")
		return &baseState{raw: snap.Manifest, snapshot: snap}, nil
	default:
		return &baseState{}, nil
	}
}

// selectionFlags are the selection inputs shared by list and watch.
type selectionFlags struct {
	selectors     []string
	resourceTypes []string
	stateMode     string
}

func (f *selectionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.selectors, "select", "s", nil, "selection expression (repeatable; expressions are unioned)")
	cmd.Flags().StringSliceVarP(&f.resourceTypes, "resource-type", "t", nil, "restrict to resource types (model, test, seed, source, metric)")
	cmd.Flags().StringVar(&f.stateMode, "state-mode", "", "state predicate: modified or modified+")
}

// params converts the flags to selection parameters.
func (f *selectionFlags) params() (engine.Params, error) {
	mode, err := engine.ParseStateMode(f.stateMode)
	if err != nil {
		return engine.Params{}, err
	}

	var types []engine.ResourceType
	for _, name := range f.resourceTypes {
		t, ok := engine.ParseResourceType(name)
		if !ok {
			return engine.Params{}, errdefs.NewSelectionError(
				fmt.Sprintf("unknown resource type %q", name), nil,
			).WithCode(errdefs.CodeMalformedExpression).WithResource(name)
		}
		types = append(types, t)
	}

	return engine.Params{
		ResourceTypes: types,
		Select:        f.selectors,
		StateMode:     mode,
	}, nil
}

// openStore opens and migrates the snapshot store.
func (s *session) openStore(ctx context.Context) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: s.cfg.Store.Path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// currentManifest reads the configured current manifest.
func (s *session) currentManifest() ([]byte, error) {
	return readManifest(s.cfg.ManifestPath())
}

func readManifest(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return raw, nil
}
