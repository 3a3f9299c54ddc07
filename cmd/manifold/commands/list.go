package commands

import (
	"github.com/spf13/cobra"
)

func newListCommand(s *session) *cobra.Command {
	var (
		sel   selectionFlags
		state stateFlags
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List resources matching a selection",
		Long: `List the resources of the current manifest that match a selection.

Selection fields given to --select are unioned; comma-separated parts within
a field are intersected. A trailing + adds everything downstream of a match.
The --resource-type filter and the --state-mode predicate are intersected
with the selection.

Methods:
  name:<glob>            resource name, or exact unique id
  path:<path>            original file path (prefix, or glob)
  resource_type:<type>   resource type
  state:modified         changed since the --state manifest`,
		Example: `  # All models
  manifold list --resource-type model

  # Staging models and everything built on them, as JSON
  manifold list -s 'stg_*+' -o json --keys unique_id,name

  # Models changed since the prod snapshot, with their dependents
  manifold list -t model --state-mode modified+ --state-snapshot prod`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := sel.params()
			if err != nil {
				return err
			}
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

			resources, err := runner.List(cmd.Context(), current, base.raw,
				params.ResourceTypes, params.Select, params.StateMode)
			if err != nil {
				return err
			}

			return enc.Encode(cmd.OutOrStdout(), resources)
		},
	}

	sel.register(cmd)
	state.register(cmd)

	return cmd
}
