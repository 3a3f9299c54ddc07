package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newGraphCommand(s *session) *cobra.Command {
	var (
		dot    bool
		levels bool
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Export the resource graph",
		Long: `Build the resource graph of the current manifest and print it.

By default every resource is printed with the configured output format.
--dot prints a Graphviz digraph; --levels prints the resources grouped by
dependency depth, one level per line.`,
		Example: `  manifold graph --dot | dot -Tsvg > graph.svg
  manifold graph --levels`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dot && levels {
				return fmt.Errorf("--dot and --levels are mutually exclusive")
			}

			current, err := s.currentManifest()
			if err != nil {
				return err
			}
			runner, err := s.runner()
			if err != nil {
				return err
			}

			graph, err := runner.Graph(cmd.Context(), current)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case dot:
				_, err = fmt.Fprint(out, graph.ToDOT())
				return err
			case levels:
				for i, level := range graph.Levels() {
					if _, err := fmt.Fprintf(out, "%d: %s\n", i, strings.Join(level, " ")); err != nil {
						return err
					}
				}
				return nil
			default:
				enc, err := s.encoder()
				if err != nil {
					return err
				}
				return enc.Encode(out, graph.Resources())
			}
		},
	}

	cmd.Flags().BoolVar(&dot, "dot", false, "print the graph in Graphviz DOT format")
	cmd.Flags().BoolVar(&levels, "levels", false, "print resources grouped by dependency level")

	return cmd
}
