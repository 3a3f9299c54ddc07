package policy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openfroyo/manifold/pkg/engine"
	"github.com/openfroyo/manifold/pkg/manifest"
	"github.com/openfroyo/manifold/pkg/telemetry"
	"github.com/rs/zerolog"
)

func node(id, resourceType, fingerprint string, deps ...string) *manifest.Node {
	name := id[strings.LastIndex(id, ".")+1:]
	return &manifest.Node{
		UniqueID:         id,
		Name:             name,
		ResourceType:     resourceType,
		PackageName:      "shop",
		OriginalFilePath: resourceType + "s/" + name + ".sql",
		DependsOn:        manifest.DependsOn{Nodes: deps},
		Fingerprint:      fingerprint,
	}
}

func compare(t *testing.T, base, altered []*manifest.Node) *engine.Comparison {
	t.Helper()

	build := func(nodes []*manifest.Node) *engine.ResourceGraph {
		graph, err := engine.NewGraphBuilder(zerolog.Nop()).Build(&manifest.Document{
			Generation: manifest.LatestGeneration(),
			Nodes:      nodes,
			Macros:     map[string]*manifest.Macro{},
		})
		if err != nil {
			t.Fatalf("Failed to build graph: %v", err)
		}
		return graph
	}

	b, a := build(base), build(altered)
	return &engine.Comparison{Base: b, Altered: a, Result: engine.NewDiffEngine().Diff(b, a)}
}

// shopComparison modifies a seed and removes a model another model used.
func shopComparison(t *testing.T) *engine.Comparison {
	t.Helper()
	base := []*manifest.Node{
		node("seed.shop.countries", "seed", "c1"),
		node("model.shop.stg_orders", "model", "o1"),
		node("model.shop.orders", "model", "o2", "model.shop.stg_orders"),
		node("model.shop.legacy", "model", "l1"),
		node("model.shop.legacy_report", "model", "r1", "model.shop.legacy"),
	}
	altered := []*manifest.Node{
		node("seed.shop.countries", "seed", "c2"),
		node("model.shop.stg_orders", "model", "o1"),
		node("model.shop.orders", "model", "o2", "model.shop.stg_orders"),
		node("model.shop.legacy_report", "model", "r1"),
	}
	return compare(t, base, altered)
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	eng, err := NewEngine(zerolog.Nop(), opts...)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return eng
}

func TestNewEngine(t *testing.T) {
	eng := newTestEngine(t)

	policies := eng.ListPolicies()
	expected := []string{"large-change", "modified-seed", "removed-with-dependents"}
	if len(policies) != len(expected) {
		t.Fatalf("Expected %d built-in policies, got %d", len(expected), len(policies))
	}
	for i, p := range policies {
		if p.Name != expected[i] {
			t.Errorf("Expected policy %d to be %s, got %s", i, expected[i], p.Name)
		}
		if !p.Enabled {
			t.Errorf("Expected built-in policy %s to be enabled", p.Name)
		}
	}
}

func TestNewInput(t *testing.T) {
	in := NewInput(shopComparison(t))

	if in.Summary.Total != 5 || in.Summary.Modified != 2 || in.Summary.Removed != 1 {
		t.Errorf("Unexpected summary %+v", in.Summary)
	}
	if len(in.Changes) != 3 {
		t.Fatalf("Expected 3 changes, got %d", len(in.Changes))
	}

	removed := in.Changes[2]
	if removed.UniqueID != "model.shop.legacy" || removed.Status != "removed" {
		t.Fatalf("Expected removed legacy last, got %+v", removed)
	}
	if len(removed.BaseDependents) != 1 || removed.BaseDependents[0] != "model.shop.legacy_report" {
		t.Errorf("Expected legacy_report as base dependent, got %v", removed.BaseDependents)
	}
	if removed.Path != "models/legacy.sql" {
		t.Errorf("Expected removed node path from base graph, got %s", removed.Path)
	}

	report := in.Changes[1]
	if len(report.Reasons) != 1 || report.Reasons[0] != engine.ReasonDependsOn {
		t.Errorf("Expected depends_on reason for legacy_report, got %v", report.Reasons)
	}
}

func TestEvaluate_BuiltinPolicies(t *testing.T) {
	eng := newTestEngine(t)

	result, err := eng.Evaluate(context.Background(), shopComparison(t))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if result.Allowed {
		t.Error("Expected removal with dependents to block")
	}
	if len(result.EvaluatedPolicies) != 3 {
		t.Errorf("Expected 3 evaluated policies, got %v", result.EvaluatedPolicies)
	}
	if len(result.Violations) != 2 {
		t.Fatalf("Expected 2 violations, got %d: %+v", len(result.Violations), result.Violations)
	}

	seed := result.Violations[0]
	if seed.Policy != "modified-seed" || seed.Severity != SeverityWarning || seed.Resource != "seed.shop.countries" {
		t.Errorf("Unexpected seed violation %+v", seed)
	}
	if seed.Message != "seed countries was modified (body)" {
		t.Errorf("Unexpected seed message %q", seed.Message)
	}

	removal := result.Violations[1]
	if removal.Policy != "removed-with-dependents" || removal.Severity != SeverityError {
		t.Errorf("Unexpected removal violation %+v", removal)
	}
	if removal.Resource != "model.shop.legacy" {
		t.Errorf("Expected removal about legacy, got %s", removal.Resource)
	}
	if _, ok := removal.Details["dependents"]; !ok {
		t.Errorf("Expected dependents detail, got %v", removal.Details)
	}

	if result.Count(SeverityError) != 1 || result.Count(SeverityWarning) != 1 || result.Count(SeverityInfo) != 0 {
		t.Errorf("Unexpected severity counts")
	}
}

func TestEvaluate_FailOn(t *testing.T) {
	tests := []struct {
		name     string
		failOn   FailOn
		disable  []string
		expected bool
	}{
		{"error blocks on error", FailOnError, nil, false},
		{"error allows warnings", FailOnError, []string{"removed-with-dependents"}, true},
		{"warning blocks on warnings", FailOnWarning, []string{"removed-with-dependents"}, false},
		{"never", FailOnNever, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newTestEngine(t, WithFailOn(tt.failOn))
			for _, name := range tt.disable {
				if err := eng.DisablePolicy(name); err != nil {
					t.Fatalf("Failed to disable %s: %v", name, err)
				}
			}

			result, err := eng.Evaluate(context.Background(), shopComparison(t))
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if result.Allowed != tt.expected {
				t.Errorf("Expected allowed=%v, got %v (%+v)", tt.expected, result.Allowed, result.Violations)
			}
		})
	}
}

func TestEvaluateInput_LargeChange(t *testing.T) {
	eng := newTestEngine(t)

	result, err := eng.EvaluateInput(context.Background(), &Input{
		Summary: engine.DiffSummary{Total: 10, Added: 3, Modified: 3, Unchanged: 4},
		Changes: []Change{},
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if !result.Allowed {
		t.Error("Expected info violation not to block")
	}
	if len(result.Violations) != 1 {
		t.Fatalf("Expected 1 violation, got %+v", result.Violations)
	}
	if v := result.Violations[0]; v.Policy != "large-change" || v.Message != "6 of 10 resources changed" {
		t.Errorf("Unexpected violation %+v", v)
	}
}

func TestEnableDisablePolicy(t *testing.T) {
	eng := newTestEngine(t)

	if err := eng.DisablePolicy("modified-seed"); err != nil {
		t.Fatalf("Failed to disable policy: %v", err)
	}
	p, err := eng.GetPolicy("modified-seed")
	if err != nil {
		t.Fatalf("Failed to get policy: %v", err)
	}
	if p.Enabled {
		t.Error("Expected policy to be disabled")
	}

	result, _ := eng.Evaluate(context.Background(), shopComparison(t))
	for _, name := range result.EvaluatedPolicies {
		if name == "modified-seed" {
			t.Error("Disabled policy was evaluated")
		}
	}

	if err := eng.EnablePolicy("modified-seed"); err != nil {
		t.Fatalf("Failed to enable policy: %v", err)
	}
	if err := eng.DisablePolicy("nonexistent"); err == nil {
		t.Error("Expected error for unknown policy")
	}
}

func TestLoadPolicies_Custom(t *testing.T) {
	dir := t.TempDir()
	src := `# Removing any model needs sign-off.
# severity: error
package custom.removals

import rego.v1

deny contains msg if {
	some change in input.changes
	change.status == "removed"
	change.resource_type == "model"
	msg := sprintf("model %s removed", [change.name])
}
`
	if err := os.WriteFile(filepath.Join(dir, "no-removals.rego"), []byte(src), 0644); err != nil {
		t.Fatalf("Failed to write policy: %v", err)
	}

	eng := newTestEngine(t)
	if err := eng.DisablePolicy("removed-with-dependents"); err != nil {
		t.Fatalf("Failed to disable policy: %v", err)
	}
	if err := eng.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("Failed to load policies: %v", err)
	}

	p, err := eng.GetPolicy("no-removals")
	if err != nil {
		t.Fatalf("Expected custom policy to be loaded: %v", err)
	}
	if p.Description != "Removing any model needs sign-off." {
		t.Errorf("Unexpected description %q", p.Description)
	}

	result, err := eng.Evaluate(context.Background(), shopComparison(t))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if result.Allowed {
		t.Error("Expected custom error policy to block")
	}

	var found bool
	for _, v := range result.Violations {
		if v.Policy == "no-removals" {
			found = true
			if v.Severity != SeverityError || v.Message != "model legacy removed" {
				t.Errorf("Unexpected custom violation %+v", v)
			}
		}
	}
	if !found {
		t.Error("Expected violation from custom policy")
	}
}

func TestLoadPolicies_InvalidRego(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.rego"), []byte("package broken\ndeny contains"), 0644); err != nil {
		t.Fatalf("Failed to write policy: %v", err)
	}

	eng := newTestEngine(t)
	if err := eng.LoadPolicies(context.Background(), []string{dir}); err == nil {
		t.Fatal("Expected error for invalid rego")
	}
}

func TestEvaluate_RecordsMetrics(t *testing.T) {
	tel, err := telemetry.NewTelemetry(telemetry.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("Failed to create telemetry: %v", err)
	}
	ctx := tel.WithContext(context.Background())

	if _, err := newTestEngine(t).Evaluate(ctx, shopComparison(t)); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	families, err := tel.Metrics.Registry().Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	for _, f := range families {
		if f.GetName() == "manifold_policy_violations_total" {
			if len(f.GetMetric()) != 2 {
				t.Errorf("Expected 2 labelled series, got %d", len(f.GetMetric()))
			}
			return
		}
	}
	t.Error("Expected manifold_policy_violations_total to be recorded")
}

func TestEvaluate_IncompleteComparison(t *testing.T) {
	if _, err := newTestEngine(t).Evaluate(context.Background(), &engine.Comparison{}); err == nil {
		t.Error("Expected error for incomplete comparison")
	}
}

func TestParseFailOn(t *testing.T) {
	if f, err := ParseFailOn(""); err != nil || f != FailOnError {
		t.Errorf("Expected empty to mean error, got %s, %v", f, err)
	}
	if _, err := ParseFailOn("sometimes"); err == nil {
		t.Error("Expected error for unknown fail_on")
	}
}
