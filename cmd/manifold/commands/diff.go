package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/openfroyo/manifold/pkg/engine"
	"github.com/openfroyo/manifold/pkg/policy"
	"github.com/openfroyo/manifold/pkg/stores"
	"github.com/spf13/cobra"
)

// errGateFailed is returned when the diff policy gate blocks.
var errGateFailed = errors.New("diff blocked by policy")

func newDiffCommand(s *session) *cobra.Command {
	var (
		state       stateFlags
		policyPaths []string
		failOn      string
		disabled    []string
		noPolicy    bool
		record      bool
	)

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Classify every resource as added, removed, modified or unchanged",
		Long: `Compare the current manifest with a previous one and classify every
resource. Removed resources are listed after the current ones.

The diff is then checked by the policy gate. Built-in policies flag removing
a resource others depended on (error), modified seeds (warning) and diffs
touching more than half the project (info). Extra .rego files are added with
--policy or policy.paths in manifold.yaml. The command fails when a
violation reaches --fail-on.

Selector output lists the ids of changed resources; JSON output lists every
resource with its status and reasons.`,
		Example: `  # Diff against the prod snapshot
  manifold diff --state-snapshot prod

  # Diff with custom policies, failing on warnings, and store the report
  manifold diff --state old/manifest.json --policy policies/ --fail-on warning --record -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if !cmd.Flags().Changed("fail-on") {
				failOn = s.cfg.Policy.FailOn
			}
			threshold, err := policy.ParseFailOn(failOn)
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
			base, err := state.resolve(ctx, s)
			if err != nil {
				return err
			}
			runner, err := s.runner()
			if err != nil {
				return err
			}

			cmp, err := runner.Diff(ctx, current, base.raw)
			if err != nil {
				return err
			}

			if err := enc.EncodeDiff(cmd.OutOrStdout(), cmp.Result); err != nil {
				return err
			}

			sum := cmp.Result.Summary
			s.logger.Info().
				Int("total", sum.Total).
				Int("added", sum.Added).
				Int("removed", sum.Removed).
				Int("modified", sum.Modified).
				Int("unchanged", sum.Unchanged).
				Msg("Diff computed")

			if noPolicy {
				return nil
			}

			paths := append(append([]string{}, s.cfg.Policy.Paths...), policyPaths...)
			result, err := s.evaluatePolicies(ctx, cmp, paths, threshold, disabled)
			if err != nil {
				return err
			}
			printViolations(cmd.ErrOrStderr(), result)

			if record {
				if err := s.recordDiff(ctx, current, base, cmp, result); err != nil {
					return err
				}
			}

			if !result.Allowed {
				return fmt.Errorf("%w: %d error(s), %d warning(s)", errGateFailed,
					result.Count(policy.SeverityError), result.Count(policy.SeverityWarning))
			}
			return nil
		},
	}

	state.register(cmd)
	cmd.Flags().StringArrayVar(&policyPaths, "policy", nil, "additional .rego policy file or directory (repeatable)")
	cmd.Flags().StringVar(&failOn, "fail-on", "error", "lowest violation severity that fails the command (error, warning, never)")
	cmd.Flags().StringSliceVar(&disabled, "disable-policy", nil, "disable a policy by name (repeatable)")
	cmd.Flags().BoolVar(&noPolicy, "no-policy", false, "skip the policy gate")
	cmd.Flags().BoolVar(&record, "record", false, "store the diff report in the snapshot store")

	return cmd
}

func (s *session) evaluatePolicies(
	ctx context.Context,
	cmp *engine.Comparison,
	paths []string,
	threshold policy.FailOn,
	disabled []string,
) (*policy.Result, error) {
	eng, err := policy.NewEngine(s.logger, policy.WithFailOn(threshold))
	if err != nil {
		return nil, err
	}
	if err := eng.LoadPolicies(ctx, paths); err != nil {
		return nil, err
	}
	for _, name := range disabled {
		if err := eng.DisablePolicy(name); err != nil {
			return nil, err
		}
	}

	return eng.Evaluate(ctx, cmp)
}

func printViolations(w io.Writer, result *policy.Result) {
	for _, v := range result.Violations {
		if v.Resource != "" {
			fmt.Fprintf(w, "%-7s %s: %s (%s)\n", v.Severity, v.Policy, v.Message, v.Resource)
		} else {
			fmt.Fprintf(w, "%-7s %s: %s\n", v.Severity, v.Policy, v.Message)
		}
	}
	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "%-7s %s\n", "skipped", warning)
	}
}

// recordDiff stores the diff summary and gate outcome.
func (s *session) recordDiff(
	ctx context.Context,
	current []byte,
	base *baseState,
	cmp *engine.Comparison,
	result *policy.Result,
) error {
	summary, err := json.Marshal(cmp.Result.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	violations, err := json.Marshal(result.Violations)
	if err != nil {
		return fmt.Errorf("failed to encode violations: %w", err)
	}

	report := &stores.DiffReport{
		BaseSHA256:    stores.Checksum(base.raw),
		AlteredSHA256: stores.Checksum(current),
		Summary:       string(summary),
		Violations:    string(violations),
		Allowed:       result.Allowed,
	}
	if base.snapshot != nil {
		report.BaseSnapshotID = &base.snapshot.ID
	}

	store, err := s.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.RecordDiffReport(ctx, report); err != nil {
		return err
	}

	s.logger.Info().
		Str("report_id", report.ID).
		Bool("allowed", report.Allowed).
		Msg("Diff report recorded")
	return nil
}
