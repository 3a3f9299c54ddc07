package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newWatchCommand(s *session) *cobra.Command {
	var (
		sel      selectionFlags
		state    stateFlags
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run a selection whenever the manifest is rewritten",
		Long: `Watch the current manifest and print the selection each time the build
rewrites it. Bursts of writes within --debounce are coalesced into one run.
Selection errors are logged and watching continues; the base state is loaded
once at start.`,
		Example: `  manifold watch -s 'stg_*+'
  manifold watch -t model --state-mode modified --state-snapshot prod`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			params, err := sel.params()
			if err != nil {
				return err
			}
			enc, err := s.encoder()
			if err != nil {
				return err
			}
			base, err := state.resolve(ctx, s)
			if err != nil {
				return err
			}
			runner, err := s.runner()
			if err != nil {
				return err
			}

			path := s.cfg.ManifestPath()
			run := func() {
				raw, err := readManifest(path)
				if err != nil {
					s.logger.Warn().Err(err).Str("manifest", path).Msg("Manifest not readable")
					return
				}
				resources, err := runner.Select(ctx, raw, base.raw, params)
				if err != nil {
					s.logger.Error().Err(err).Msg("Selection failed")
					return
				}
				if err := enc.Encode(cmd.OutOrStdout(), resources); err != nil {
					s.logger.Error().Err(err).Msg("Failed to write selection")
					return
				}
				s.logger.Info().Int("selected", len(resources)).Msg("Selection updated")
			}

			w, err := newManifestWatcher(path, debounce, s.logger, run)
			if err != nil {
				return err
			}
			defer w.Close()

			if _, err := os.Stat(path); err == nil {
				run()
			}
			s.logger.Info().Str("manifest", path).Msg("Watching manifest")

			return w.Run(ctx)
		},
	}

	sel.register(cmd)
	state.register(cmd)
	cmd.Flags().DurationVar(&debounce, "debounce", 250*time.Millisecond, "quiet period before re-running after a change")

	return cmd
}

// manifestWatcher calls onChange after the manifest file is written or
// replaced and then left alone for the debounce period.
type manifestWatcher struct {
	path     string
	debounce time.Duration
	logger   zerolog.Logger
	onChange func()
	watcher  *fsnotify.Watcher
}

// newManifestWatcher starts watching path's directory; builders usually
// replace the file rather than write it in place.
func newManifestWatcher(path string, debounce time.Duration, logger zerolog.Logger, onChange func()) (*manifestWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve manifest path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &manifestWatcher{
		path:     abs,
		debounce: debounce,
		logger:   logger,
		onChange: onChange,
		watcher:  watcher,
	}, nil
}

// Run processes events until ctx is done. onChange is called from this
// goroutine only, so runs never overlap.
func (w *manifestWatcher) Run(ctx context.Context) error {
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.logger.Debug().Str("event", event.Op.String()).Msg("Manifest changed")

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.onChange()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("Watcher error")
		}
	}
}

// Close stops watching.
func (w *manifestWatcher) Close() error {
	return w.watcher.Close()
}
