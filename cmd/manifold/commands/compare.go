package commands

import (
	"github.com/openfroyo/manifold/pkg/engine"
	"github.com/spf13/cobra"
)

func newCompareCommand(s *session) *cobra.Command {
	var (
		state          stateFlags
		downstream     bool
		includeMetrics bool
	)

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "List models modified since a previous manifest",
		Long: `List the models whose content, macros or declared dependencies changed
between the previous manifest and the current one.

With --downstream the result also holds every model that depends on a
modified one. With --include-metrics metrics are considered too, and the
downstream closure is always included.`,
		Example: `  # Models changed since the last prod deploy
  manifold compare --state-snapshot prod

  # Changed models and everything built on them
  manifold compare --state prod/manifest.json --downstream`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			enc, err := s.encoder()
			if err != nil {
				return err
			}
			current, err := s.currentManifest()
			if err != nil {
				return err
			}
			base, err := state.resolve(cmd.Context(), s)
			if err != nil {
				return err
			}
			runner, err := s.runner()
			if err != nil {
				return err
			}

			var resources []*engine.Resource
			if includeMetrics {
				resources, err = runner.ModifiedWithDownstream(cmd.Context(), current, base.raw)
			} else {
				resources, err = runner.CompareModels(cmd.Context(), current, base.raw, downstream)
			}
			if err != nil {
				return err
			}

			return enc.Encode(cmd.OutOrStdout(), resources)
		},
	}

	state.register(cmd)
	cmd.Flags().BoolVar(&downstream, "downstream", false, "include models downstream of modified ones")
	cmd.Flags().BoolVar(&includeMetrics, "include-metrics", false, "include metrics (implies --downstream)")

	return cmd
}
