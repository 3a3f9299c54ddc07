package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/openfroyo/manifold/pkg/engine"
	"github.com/openfroyo/manifold/pkg/errdefs"
	"github.com/openfroyo/manifold/pkg/manifest"
	"github.com/rs/zerolog"
)

func testResources() []*engine.Resource {
	return []*engine.Resource{
		{
			UniqueID:         "model.shop.orders",
			Name:             "orders",
			Type:             engine.ResourceModel,
			OriginalFilePath: "models/orders.sql",
		},
		{
			UniqueID:         "seed.shop.countries",
			Name:             "countries",
			Type:             engine.ResourceSeed,
			OriginalFilePath: "seeds/countries.csv",
		},
	}
}

func TestNewEncoder_Unsupported(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		keys   []string
	}{
		{"unknown format", Format("yaml"), nil},
		{"empty format", Format(""), nil},
		{"unknown key", FormatJSON, []string{"unique_id", "config"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEncoder(tt.format, tt.keys...)
			if !errdefs.IsEncoding(err) {
				t.Fatalf("Expected encoding error, got %v", err)
			}
			if !errdefs.HasCode(err, errdefs.CodeUnsupportedFormat) {
				t.Errorf("Expected code %s, got %s", errdefs.CodeUnsupportedFormat, errdefs.CodeOf(err))
			}
		})
	}
}

func TestEncoder_Encode_Selector(t *testing.T) {
	enc, err := NewEncoder(FormatSelector)
	if err != nil {
		t.Fatalf("Failed to create encoder: %v", err)
	}

	var buf bytes.Buffer
	if err := enc.Encode(&buf, testResources()); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	expected := "model.shop.orders\nseed.shop.countries\n"
	if buf.String() != expected {
		t.Errorf("Expected %q, got %q", expected, buf.String())
	}
}

func TestEncoder_Encode_JSON(t *testing.T) {
	enc, err := NewEncoder(FormatJSON)
	if err != nil {
		t.Fatalf("Failed to create encoder: %v", err)
	}

	var buf bytes.Buffer
	if err := enc.Encode(&buf, testResources()); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d: %q", len(lines), buf.String())
	}

	for i, line := range lines {
		var record map[string]interface{}
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			t.Fatalf("Line %d is not valid JSON: %v", i, err)
		}
		for _, key := range DefaultKeys {
			if _, ok := record[key]; !ok {
				t.Errorf("Line %d missing key %s", i, key)
			}
		}
	}

	expected := `{"unique_id":"model.shop.orders","name":"orders","resource_type":"model","original_file_path":"models/orders.sql"}`
	if lines[0] != expected {
		t.Errorf("Expected %s, got %s", expected, lines[0])
	}
}

func TestEncoder_Encode_KeySubset(t *testing.T) {
	enc, err := NewEncoder(FormatJSON, ParseKeys("name, unique_id")...)
	if err != nil {
		t.Fatalf("Failed to create encoder: %v", err)
	}

	var buf bytes.Buffer
	if err := enc.Encode(&buf, testResources()[:1]); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	expected := "{\"name\":\"orders\",\"unique_id\":\"model.shop.orders\"}\n"
	if buf.String() != expected {
		t.Errorf("Expected %q, got %q", expected, buf.String())
	}
}

func TestEncoder_Encode_Empty(t *testing.T) {
	for _, format := range Formats() {
		enc, err := NewEncoder(format)
		if err != nil {
			t.Fatalf("Failed to create encoder: %v", err)
		}

		var buf bytes.Buffer
		if err := enc.Encode(&buf, nil); err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		if buf.Len() != 0 {
			t.Errorf("%s: expected no output, got %q", format, buf.String())
		}
	}
}

func TestEncoder_EncodeDiff(t *testing.T) {
	build := func(nodes ...*manifest.Node) *engine.ResourceGraph {
		graph, err := engine.NewGraphBuilder(zerolog.Nop()).Build(&manifest.Document{Nodes: nodes})
		if err != nil {
			t.Fatalf("Failed to build graph: %v", err)
		}
		return graph
	}

	base := build(
		&manifest.Node{UniqueID: "model.p.a", Name: "a", ResourceType: "model", Fingerprint: "1"},
		&manifest.Node{UniqueID: "model.p.b", Name: "b", ResourceType: "model", Fingerprint: "1"},
	)
	altered := build(
		&manifest.Node{UniqueID: "model.p.a", Name: "a", ResourceType: "model", Fingerprint: "2"},
		&manifest.Node{UniqueID: "model.p.c", Name: "c", ResourceType: "model", Fingerprint: "1"},
	)
	result := engine.NewDiffEngine().Diff(base, altered)

	selector, _ := NewEncoder(FormatSelector)
	var buf bytes.Buffer
	if err := selector.EncodeDiff(&buf, result); err != nil {
		t.Fatalf("EncodeDiff failed: %v", err)
	}
	if expected := "model.p.a\nmodel.p.c\nmodel.p.b\n"; buf.String() != expected {
		t.Errorf("Expected %q, got %q", expected, buf.String())
	}

	jsonEnc, _ := NewEncoder(FormatJSON)
	buf.Reset()
	if err := jsonEnc.EncodeDiff(&buf, result); err != nil {
		t.Fatalf("EncodeDiff failed: %v", err)
	}
	first := strings.SplitN(buf.String(), "\n", 2)[0]
	expected := `{"unique_id":"model.p.a","name":"a","resource_type":"model","status":"modified","reasons":["body"]}`
	if first != expected {
		t.Errorf("Expected %s, got %s", expected, first)
	}
}
