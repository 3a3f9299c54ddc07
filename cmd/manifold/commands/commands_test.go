package commands

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// testProject writes a config pointing at a private store and returns the
// config path together with the engine test manifests.
func testProject(t *testing.T) (cfgPath, base, altered string) {
	t.Helper()

	dir := t.TempDir()
	cfgPath = filepath.Join(dir, "manifold.yaml")
	cfg := "generation: \"1.4\"\n" +
		"store:\n  path: " + filepath.Join(dir, "snapshots.db") + "\n" +
		"telemetry:\n  log_level: error\n  metrics:\n    enabled: false\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	testdata := filepath.Join("..", "..", "..", "pkg", "engine", "testdata")
	return cfgPath, filepath.Join(testdata, "base.json"), filepath.Join(testdata, "altered.json")
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	s := &session{version: "test", logger: zerolog.Nop()}
	root := newRootCommand(s, "test", "none", "unknown")

	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	_ = s.close(err)
	return stdout.String(), stderr.String(), err
}

func lines(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return []string{}
	}
	return strings.Split(s, "\n")
}

func TestList(t *testing.T) {
	cfg, _, altered := testProject(t)

	stdout, _, err := execute(t, "list", "-c", cfg, "-m", altered, "-t", "model")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	expected := []string{
		"model.shop.stg_orders",
		"model.shop.orders",
		"model.shop.customers",
		"model.shop.payments",
	}
	if got := lines(stdout); !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
}

func TestList_JSONKeys(t *testing.T) {
	cfg, _, altered := testProject(t)

	stdout, _, err := execute(t, "list", "-c", cfg, "-m", altered,
		"-s", "name:payments", "-o", "json", "--keys", "unique_id,resource_type")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	expected := `{"unique_id":"model.shop.payments","resource_type":"model"}`
	if got := strings.TrimSpace(stdout); got != expected {
		t.Errorf("Expected %s, got %s", expected, got)
	}
}

func TestList_Invalid(t *testing.T) {
	cfg, _, altered := testProject(t)

	tests := []struct {
		name string
		args []string
	}{
		{"unknown resource type", []string{"-t", "snapshot"}},
		{"unknown state mode", []string{"--state-mode", "removed"}},
		{"malformed selector", []string{"-s", "+orders"}},
		{"unknown output key", []string{"-o", "json", "--keys", "colour"}},
		{"state and snapshot", []string{"--state", "a.json", "--state-snapshot", "prod"}},
		{"state mode without base", []string{"--state-mode", "modified"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"list", "-c", cfg, "-m", altered}, tt.args...)
			if _, _, err := execute(t, args...); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestList_SelectorTerms(t *testing.T) {
	cfg, _, altered := testProject(t)

	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "comma intersects within a term",
			args:     []string{"-s", "resource_type:model,name:orders"},
			expected: []string{"model.shop.orders"},
		},
		{
			name:     "brace glob",
			args:     []string{"-s", "{orders,payments}"},
			expected: []string{"model.shop.orders", "model.shop.payments"},
		},
		{
			name:     "repeated flags union",
			args:     []string{"-s", "payments", "-s", "orders"},
			expected: []string{"model.shop.orders", "model.shop.payments"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"list", "-c", cfg, "-m", altered}, tt.args...)
			stdout, _, err := execute(t, args...)
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if got := lines(stdout); !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestInvocationSpan(t *testing.T) {
	cfg, _, altered := testProject(t)

	f, err := os.OpenFile(cfg, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("Failed to open config: %v", err)
	}
	if _, err := f.WriteString("  tracing:\n    enabled: true\n    exporter: stdout\n"); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	f.Close()

	_, stderr, err := execute(t, "list", "-c", cfg, "-m", altered)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	for _, want := range []string{`"invocation.manifold list"`, `"runner.list"`, `"invocation.id"`} {
		if !strings.Contains(stderr, want) {
			t.Errorf("Expected exported spans to contain %s", want)
		}
	}
}

func TestCompare(t *testing.T) {
	cfg, base, altered := testProject(t)

	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "modified models",
			args:     nil,
			expected: []string{"model.shop.stg_orders", "model.shop.payments"},
		},
		{
			name: "with downstream",
			args: []string{"--downstream"},
			expected: []string{
				"model.shop.stg_orders",
				"model.shop.orders",
				"model.shop.payments",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"compare", "-c", cfg, "-m", altered, "--state", base}, tt.args...)
			stdout, _, err := execute(t, args...)
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if got := lines(stdout); !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestDiff(t *testing.T) {
	cfg, base, altered := testProject(t)

	stdout, _, err := execute(t, "diff", "-c", cfg, "-m", altered, "--state", base)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	got := lines(stdout)
	if len(got) != 3 {
		t.Fatalf("Expected 3 changed ids, got %v", got)
	}
	if got[len(got)-1] != "model.shop.legacy" {
		t.Errorf("Expected removed resource last, got %v", got)
	}
}

func TestDiff_PolicyBlocks(t *testing.T) {
	cfg, base, altered := testProject(t)

	// Commas in a policy path are part of the path.
	policyDir := filepath.Join(t.TempDir(), "team,shop")
	if err := os.Mkdir(policyDir, 0755); err != nil {
		t.Fatalf("Failed to create policy dir: %v", err)
	}
	policyFile := filepath.Join(policyDir, "no-removals.rego")
	src := "# severity: error\npackage custom.removals\n\nimport rego.v1\n\n" +
		"deny contains msg if {\n\tsome change in input.changes\n\tchange.status == \"removed\"\n" +
		"\tmsg := sprintf(\"%s removed\", [change.unique_id])\n}\n"
	if err := os.WriteFile(policyFile, []byte(src), 0644); err != nil {
		t.Fatalf("Failed to write policy: %v", err)
	}

	_, stderr, err := execute(t, "diff", "-c", cfg, "-m", altered, "--state", base, "--policy", policyFile)
	if !errors.Is(err, errGateFailed) {
		t.Fatalf("Expected gate failure, got: %v", err)
	}
	if !strings.Contains(stderr, "model.shop.legacy removed") {
		t.Errorf("Expected violation on stderr, got %q", stderr)
	}

	if _, _, err := execute(t, "diff", "-c", cfg, "-m", altered, "--state", base, "--policy", policyFile, "--fail-on", "never"); err != nil {
		t.Errorf("Expected --fail-on never to pass, got: %v", err)
	}
}

func TestDiff_RequiresBase(t *testing.T) {
	cfg, _, altered := testProject(t)

	if _, _, err := execute(t, "diff", "-c", cfg, "-m", altered); err == nil {
		t.Error("Expected error without a base manifest")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	cfg, base, altered := testProject(t)

	stdout, _, err := execute(t, "snapshot", "save", "prod", "-c", cfg, "-m", base)
	if err != nil {
		t.Fatalf("Failed to save snapshot: %v", err)
	}
	id := strings.TrimSpace(stdout)
	if id == "" {
		t.Fatal("Expected snapshot id on stdout")
	}

	stdout, _, err = execute(t, "snapshot", "list", "-c", cfg)
	if err != nil {
		t.Fatalf("Failed to list snapshots: %v", err)
	}
	if !strings.Contains(stdout, id) || !strings.Contains(stdout, "prod") {
		t.Errorf("Expected snapshot in listing, got %q", stdout)
	}

	stdout, _, err = execute(t, "compare", "-c", cfg, "-m", altered, "--state-snapshot", "prod")
	if err != nil {
		t.Fatalf("Failed to compare against snapshot: %v", err)
	}
	expected := []string{"model.shop.stg_orders", "model.shop.payments"}
	if got := lines(stdout); !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}

	if _, _, err := execute(t, "diff", "-c", cfg, "-m", altered, "--state-snapshot", "prod", "--record"); err != nil {
		t.Fatalf("Failed to record diff: %v", err)
	}

	if _, _, err := execute(t, "snapshot", "delete", id, "-c", cfg); err != nil {
		t.Fatalf("Failed to delete snapshot: %v", err)
	}
	if _, _, err := execute(t, "compare", "-c", cfg, "-m", altered, "--state-snapshot", "prod"); err == nil {
		t.Error("Expected error for deleted snapshot")
	}
}

func TestGraph(t *testing.T) {
	cfg, _, altered := testProject(t)

	stdout, _, err := execute(t, "graph", "-c", cfg, "-m", altered, "--dot")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.HasPrefix(stdout, "digraph") {
		t.Errorf("Expected DOT output, got %q", stdout)
	}

	stdout, _, err = execute(t, "graph", "-c", cfg, "-m", altered, "--levels")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.HasPrefix(stdout, "0: ") {
		t.Errorf("Expected level output, got %q", stdout)
	}
}

func TestValidate(t *testing.T) {
	cfg, base, altered := testProject(t)

	stdout, _, err := execute(t, "validate", "-c", cfg, base, altered)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got := lines(stdout); len(got) != 2 || !strings.Contains(got[0], ": ok (v8, ") {
		t.Errorf("Unexpected validate output %q", stdout)
	}

	broken := filepath.Join(t.TempDir(), "manifest.json")
	if err := os.WriteFile(broken, []byte(`{"metadata": {}}`), 0644); err != nil {
		t.Fatalf("Failed to write manifest: %v", err)
	}
	stdout, _, err = execute(t, "validate", "-c", cfg, broken)
	if err == nil {
		t.Error("Expected error for manifest without version")
	}
	if !strings.Contains(stdout, "invalid") {
		t.Errorf("Expected invalid line, got %q", stdout)
	}
}

func TestManifestWatcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")

	var (
		mu    sync.Mutex
		calls int
	)
	changed := make(chan struct{}, 4)
	w, err := newManifestWatcher(path, 200*time.Millisecond, zerolog.Nop(), func() {
		mu.Lock()
		calls++
		mu.Unlock()
		changed <- struct{}{}
	})
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Unrelated files are ignored; a burst of writes is one change.
	if err := os.WriteFile(filepath.Join(dir, "run_results.json"), []byte("{}"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte("{}"), 0644); err != nil {
			t.Fatalf("Failed to write manifest: %v", err)
		}
	}

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for change")
	}
	time.Sleep(400 * time.Millisecond)

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Expected clean stop, got: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("Expected 1 coalesced change, got %d", calls)
	}
}
