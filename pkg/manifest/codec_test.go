package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/openfroyo/manifold/pkg/errdefs"
)

func newTestCodec(t *testing.T, opts ...Option) *Codec {
	t.Helper()
	codec, err := NewCodec(opts...)
	if err != nil {
		t.Fatalf("Failed to create codec: %v", err)
	}
	return codec
}

func minimalManifest(version string) []byte {
	return []byte(fmt.Sprintf(`{
  "metadata": {"dbt_schema_version": %q},
  "nodes": {
    "model.p.a": {"unique_id": "model.p.a", "name": "a", "resource_type": "model"}
  }
}`, version))
}

func TestCodec_Load_UpgradesOldestGeneration(t *testing.T) {
	codec := newTestCodec(t)

	doc, err := codec.LoadFile(filepath.Join("testdata", "v4.json"))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if doc.Generation != LatestGeneration() {
		t.Errorf("Expected generation %s, got %s", LatestGeneration(), doc.Generation)
	}
	if doc.SourceGeneration != 4 {
		t.Errorf("Expected source generation v4, got %s", doc.SourceGeneration)
	}
	if doc.Metadata.SchemaVersion != LatestGeneration().SchemaURL() {
		t.Errorf("Expected metadata version rewritten, got %s", doc.Metadata.SchemaVersion)
	}
	if len(doc.Upgrades) != 5 {
		t.Errorf("Expected 5 upgrade steps, got %v", doc.Upgrades)
	}

	wantOrder := []string{
		"model.shop.stg_orders",
		"model.shop.orders",
		"source.shop.shop.orders",
		"metric.shop.revenue",
	}
	if doc.Len() != len(wantOrder) {
		t.Fatalf("Expected %d nodes, got %d", len(wantOrder), doc.Len())
	}
	for i, id := range wantOrder {
		if doc.Nodes[i].UniqueID != id {
			t.Errorf("Position %d: expected %s, got %s", i, id, doc.Nodes[i].UniqueID)
		}
	}

	stg, ok := doc.Lookup("model.shop.stg_orders")
	if !ok {
		t.Fatal("Expected stg_orders to be indexed")
	}
	if stg.Checksum.Checksum != "a1b2c3" || stg.Checksum.Name != "sha256" {
		t.Errorf("Expected reshaped checksum, got %+v", stg.Checksum)
	}
	if stg.Fingerprint != "a1b2c3" {
		t.Errorf("Expected fingerprint from checksum, got %s", stg.Fingerprint)
	}
	if stg.RawCode == "" || stg.Language != "sql" {
		t.Errorf("Expected raw_code and language backfilled, got %q / %q", stg.RawCode, stg.Language)
	}
	if len(stg.DependsOn.Nodes) != 1 || stg.DependsOn.Nodes[0] != "source.shop.shop.orders" {
		t.Errorf("Expected reshaped depends_on, got %+v", stg.DependsOn)
	}
	if stg.Access != "protected" {
		t.Errorf("Expected access backfilled to protected, got %q", stg.Access)
	}
	if stg.Section != SectionNodes {
		t.Errorf("Expected section nodes, got %s", stg.Section)
	}

	metric, _ := doc.Lookup("metric.shop.revenue")
	if metric.CalculationMethod != "sum" || metric.Expression != "amount" {
		t.Errorf("Expected renamed metric fields, got %q / %q", metric.CalculationMethod, metric.Expression)
	}
	if metric.Access != "" {
		t.Errorf("Expected no access on metrics, got %q", metric.Access)
	}
}

func TestCodec_Load_EveryGenerationReachesCanonical(t *testing.T) {
	codec := newTestCodec(t)

	for _, b := range Generations() {
		t.Run(b.Generation.String(), func(t *testing.T) {
			doc, err := codec.Load(minimalManifest(b.Generation.SchemaURL()))
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if doc.Generation != codec.Canonical() {
				t.Errorf("Expected %s, got %s", codec.Canonical(), doc.Generation)
			}
			if doc.SourceGeneration != b.Generation {
				t.Errorf("Expected source %s, got %s", b.Generation, doc.SourceGeneration)
			}
		})
	}
}

func TestCodec_Load_CanonicalDocumentNeedsNoUpgrade(t *testing.T) {
	codec := newTestCodec(t)

	doc, err := codec.LoadFile(filepath.Join("testdata", "v9.json"))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(doc.Upgrades) != 0 {
		t.Errorf("Expected no upgrade steps, got %v", doc.Upgrades)
	}

	seed, ok := doc.Lookup("seed.shop.countries")
	if !ok {
		t.Fatal("Expected unique_id backfilled from key")
	}
	if seed.Fingerprint != "c0ffee" {
		t.Errorf("Expected fingerprint c0ffee, got %s", seed.Fingerprint)
	}

	customers, _ := doc.Lookup("model.shop.customers")
	if customers.Access != "public" {
		t.Errorf("Expected declared access kept, got %q", customers.Access)
	}

	macro, ok := doc.Macros["macro.shop.cents"]
	if !ok {
		t.Fatal("Expected macro to be decoded")
	}
	if len(macro.Fingerprint) != 64 {
		t.Errorf("Expected sha256 hex fingerprint, got %q", macro.Fingerprint)
	}
}

func TestCodec_Load_NewerGenerationIsIncompatible(t *testing.T) {
	tests := []struct {
		name      string
		canonical Generation
		version   string
	}{
		{name: "beyond table", canonical: 9, version: "https://schemas.getdbt.com/dbt/manifest/v10.json"},
		{name: "beyond configured canonical", canonical: 7, version: "https://schemas.getdbt.com/dbt/manifest/v8.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codec := newTestCodec(t, WithCanonicalGeneration(tt.canonical))

			_, err := codec.Load(minimalManifest(tt.version))
			if err == nil {
				t.Fatal("Expected error for newer generation")
			}
			if !errdefs.IsSchema(err) || !errdefs.HasCode(err, errdefs.CodeIncompatibleVersion) {
				t.Fatalf("Expected incompatible schema error, got: %v", err)
			}

			e := err.(*errdefs.Error)
			if e.Details["expected"] != tt.canonical.SchemaURL() {
				t.Errorf("Expected expected=%s, got %v", tt.canonical.SchemaURL(), e.Details["expected"])
			}
			if e.Details["found"] != tt.version {
				t.Errorf("Expected found=%s, got %v", tt.version, e.Details["found"])
			}
		})
	}
}

func TestCodec_Load_VersionErrors(t *testing.T) {
	codec := newTestCodec(t)

	tests := []struct {
		name string
		raw  string
		code string
	}{
		{
			name: "missing metadata",
			raw:  `{"nodes": {}}`,
			code: errdefs.CodeMissingVersion,
		},
		{
			name: "empty version",
			raw:  `{"metadata": {"dbt_schema_version": ""}, "nodes": {}}`,
			code: errdefs.CodeMissingVersion,
		},
		{
			name: "unparseable version",
			raw:  `{"metadata": {"dbt_schema_version": "latest"}, "nodes": {}}`,
			code: errdefs.CodeUnsupportedVersion,
		},
		{
			name: "older than table",
			raw:  `{"metadata": {"dbt_schema_version": "https://schemas.getdbt.com/dbt/manifest/v3.json"}, "nodes": {}}`,
			code: errdefs.CodeUnsupportedVersion,
		},
		{
			name: "not a mapping",
			raw:  `[1, 2, 3]`,
			code: errdefs.CodeInvalidDocument,
		},
		{
			name: "node without resource type",
			raw:  `{"metadata": {"dbt_schema_version": "v9"}, "nodes": {"model.p.a": {"name": "a"}}}`,
			code: errdefs.CodeInvalidDocument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Load([]byte(tt.raw))
			if err == nil {
				t.Fatal("Expected error")
			}
			if !errdefs.IsSchema(err) {
				t.Errorf("Expected schema error, got: %v", err)
			}
			if !errdefs.HasCode(err, tt.code) {
				t.Errorf("Expected code %s, got %s", tt.code, errdefs.CodeOf(err))
			}
		})
	}
}

func TestCodec_Load_SchemaVersionAlias(t *testing.T) {
	raw := []byte(`{
  "metadata": {"schemaVersion": "v6"},
  "nodes": {"test.p.t": {"name": "t", "resource_type": "test", "depends_on": {"nodes": [], "macros": []}}}
}`)

	doc, err := Load(raw)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if doc.SourceGeneration != 6 {
		t.Errorf("Expected source generation v6, got %s", doc.SourceGeneration)
	}
}

func TestCodec_Load_YAMLInput(t *testing.T) {
	raw := []byte(`
metadata:
  dbt_schema_version: https://schemas.getdbt.com/dbt/manifest/v8.json
nodes:
  model.p.b:
    name: b
    resource_type: model
  model.p.a:
    name: a
    resource_type: model
`)

	doc, err := Load(raw)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if doc.Nodes[0].UniqueID != "model.p.b" || doc.Nodes[1].UniqueID != "model.p.a" {
		t.Errorf("Expected document order b, a; got %s, %s", doc.Nodes[0].UniqueID, doc.Nodes[1].UniqueID)
	}
}

func TestCodec_Load_DigestFingerprintIsStable(t *testing.T) {
	raw := []byte(`{
  "metadata": {"dbt_schema_version": "v9"},
  "nodes": {"model.p.a": {"name": "a", "resource_type": "model", "raw_code": "select 1", "created_at": 1}}
}`)
	touched := []byte(`{
  "metadata": {"dbt_schema_version": "v9"},
  "nodes": {"model.p.a": {"name": "a", "resource_type": "model", "raw_code": "select 1", "created_at": 2}}
}`)
	edited := []byte(`{
  "metadata": {"dbt_schema_version": "v9"},
  "nodes": {"model.p.a": {"name": "a", "resource_type": "model", "raw_code": "select 2", "created_at": 1}}
}`)

	load := func(b []byte) string {
		doc, err := Load(b)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		return doc.Nodes[0].Fingerprint
	}

	first := load(raw)
	if first != load(raw) {
		t.Error("Expected identical input to produce identical fingerprints")
	}
	if first != load(touched) {
		t.Error("Expected created_at to be ignored")
	}
	if first == load(edited) {
		t.Error("Expected a code change to change the fingerprint")
	}
}

func TestCodec_Load_UpgradedMetricMatchesNative(t *testing.T) {
	upgraded, err := Load([]byte(`{
  "metadata": {"dbt_schema_version": "v4"},
  "nodes": {},
  "metrics": {
    "metric.shop.revenue": {
      "unique_id": "metric.shop.revenue", "name": "revenue", "resource_type": "metric",
      "fqn": ["shop", "revenue"], "label": "Revenue",
      "type": "sum", "sql": "amount", "timestamp": "ordered_at",
      "time_grains": ["day"], "dimensions": [], "filters": [],
      "depends_on": ["model.shop.orders"], "created_at": 1
    }
  }
}`))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	native, err := Load([]byte(`{
  "metadata": {"dbt_schema_version": "v9"},
  "nodes": {},
  "metrics": {
    "metric.shop.revenue": {
      "unique_id": "metric.shop.revenue", "name": "revenue", "resource_type": "metric",
      "fqn": ["shop", "revenue"], "label": "Revenue",
      "calculation_method": "sum", "expression": "amount", "timestamp": "ordered_at",
      "time_grains": ["day"], "dimensions": [], "filters": [],
      "depends_on": {"nodes": ["model.shop.orders"], "macros": []},
      "refs": [["orders"]], "metrics": [], "group": null,
      "unrendered_config": {}, "created_at": 2
    }
  }
}`))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if upgraded.Nodes[0].Fingerprint != native.Nodes[0].Fingerprint {
		t.Error("Expected an upgraded metric to fingerprint like the native one")
	}
}

func TestNewCodec_RejectsUnknownCanonical(t *testing.T) {
	if _, err := NewCodec(WithCanonicalGeneration(3)); err == nil {
		t.Error("Expected error for canonical generation outside the table")
	}
}

func TestCodec_LoadFile_Missing(t *testing.T) {
	codec := newTestCodec(t)
	_, err := codec.LoadFile(filepath.Join(t.TempDir(), "manifest.json"))
	if err == nil {
		t.Fatal("Expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected not-exist error, got: %v", err)
	}
}

