package commands

import (
	"github.com/spf13/cobra"
)

func newChangesCommand(s *session) *cobra.Command {
	var (
		state        stateFlags
		modifiedOnly bool
	)

	cmd := &cobra.Command{
		Use:   "changes",
		Short: "List every resource, or only modified ones",
		Long: `List every resource of the current manifest. With --modified-only, list
only resources modified since the previous manifest; added resources count
as modified.`,
		Example: `  manifold changes
  manifold changes --modified-only --state-snapshot prod -o json`,
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

			resources, err := runner.Changes(cmd.Context(), current, base.raw, modifiedOnly)
			if err != nil {
				return err
			}

			return enc.Encode(cmd.OutOrStdout(), resources)
		},
	}

	state.register(cmd)
	cmd.Flags().BoolVar(&modifiedOnly, "modified-only", false, "list only resources modified since the previous manifest")

	return cmd
}
