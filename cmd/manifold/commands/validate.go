package commands

import (
	"fmt"
	"strings"

	"github.com/openfroyo/manifold/pkg/engine"
	"github.com/openfroyo/manifold/pkg/manifest"
	"github.com/spf13/cobra"
)

func newValidateCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [manifest...]",
		Short: "Check that manifests load and form a valid graph",
		Long: `Validate the configuration and one or more manifests.

For each manifest this checks:
  - the schema version is supported and not newer than the configured generation reads
  - the upgraded document matches the canonical schema
  - every dependency resolves and the graph has no cycles

Without arguments the current manifest is validated.`,
		Example: `  manifold validate
  manifold validate target/manifest.json prod/manifest.json --generation 1.4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := args
			if len(paths) == 0 {
				paths = []string{s.cfg.ManifestPath()}
			}

			runner, err := s.runner()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var failed int
			for _, path := range paths {
				summary, err := validateManifest(cmd, runner, path)
				if err != nil {
					failed++
					s.logger.Error().Err(err).Str("manifest", path).Msg("Manifest is invalid")
					fmt.Fprintf(out, "%s: invalid: %v\n", path, err)
					continue
				}
				fmt.Fprintf(out, "%s: ok (%s)\n", path, summary)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d manifest(s) invalid", failed, len(paths))
			}
			return nil
		},
	}

	return cmd
}

func validateManifest(cmd *cobra.Command, runner *engine.Runner, path string) (string, error) {
	raw, err := readManifest(path)
	if err != nil {
		return "", err
	}

	doc, err := manifest.Load(raw)
	if err != nil {
		return "", err
	}
	graph, err := runner.Graph(cmd.Context(), raw)
	if err != nil {
		return "", err
	}

	counts := make(map[engine.ResourceType]int)
	for _, r := range graph.Resources() {
		counts[r.Type]++
	}
	parts := make([]string, 0, len(counts))
	for _, t := range engine.AllResourceTypes() {
		if n := counts[t]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, t))
		}
	}

	summary := fmt.Sprintf("%s, %d resources", doc.SourceGeneration, graph.Len())
	if len(parts) > 0 {
		summary += ": " + strings.Join(parts, ", ")
	}
	return summary, nil
}
