package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/openfroyo/manifold/pkg/manifest"
	"github.com/openfroyo/manifold/pkg/stores"
	"github.com/spf13/cobra"
)

func newSnapshotCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage stored manifest snapshots",
		Long: `Save manifests under a name and use them later as the base state of a
comparison with --state-snapshot. Saving an existing name adds a newer
snapshot; comparisons use the newest one.`,
	}

	cmd.AddCommand(newSnapshotSaveCommand(s))
	cmd.AddCommand(newSnapshotListCommand(s))
	cmd.AddCommand(newSnapshotDeleteCommand(s))

	return cmd
}

func newSnapshotSaveCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "save NAME",
		Short: "Store the current manifest under a name",
		Example: `  # After a production deploy
  manifold snapshot save prod

  # Store a manifest from another build
  manifold snapshot save main --manifest main-build/manifest.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			raw, err := s.currentManifest()
			if err != nil {
				return err
			}

			// Refuse to store what a comparison could not load back.
			doc, err := manifest.Load(raw)
			if err != nil {
				return err
			}
			runner, err := s.runner()
			if err != nil {
				return err
			}
			graph, err := runner.Graph(ctx, raw)
			if err != nil {
				return err
			}

			store, err := s.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			snap := &stores.Snapshot{
				Name:             args[0],
				SourceGeneration: int(doc.SourceGeneration),
				Resources:        graph.Len(),
				Manifest:         raw,
			}
			if err := store.SaveSnapshot(ctx, snap); err != nil {
				return err
			}

			s.logger.Info().
				Str("name", snap.Name).
				Str("id", snap.ID).
				Str("sha256", snap.SHA256).
				Int("resources", snap.Resources).
				Msg("Snapshot saved")

			_, err = fmt.Fprintln(cmd.OutOrStdout(), snap.ID)
			return err
		},
	}

	return cmd
}

func newSnapshotListCommand(s *session) *cobra.Command {
	var (
		name  string
		limit int
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored snapshots, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := s.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			snaps, err := store.ListSnapshots(ctx, stores.SnapshotFilter{Name: name, Limit: limit})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tGENERATION\tRESOURCES\tSHA256\tCREATED")
			for _, snap := range snaps {
				fmt.Fprintf(w, "%s\t%s\tv%d\t%d\t%.12s\t%s\n",
					snap.ID, snap.Name, snap.SourceGeneration, snap.Resources,
					snap.SHA256, snap.CreatedAt.Local().Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "only snapshots with this name")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of snapshots (0 for all)")

	return cmd
}

func newSnapshotDeleteCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a stored snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := s.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.DeleteSnapshot(ctx, args[0]); err != nil {
				return err
			}

			s.logger.Info().Str("id", args[0]).Msg("Snapshot deleted")
			return nil
		},
	}

	return cmd
}
