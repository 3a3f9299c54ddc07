package manifest

import "testing"

func TestParseGeneration(t *testing.T) {
	tests := []struct {
		version string
		want    Generation
		ok      bool
	}{
		{"https://schemas.getdbt.com/dbt/manifest/v9.json", 9, true},
		{"https://schemas.getdbt.com/dbt/manifest/v12.json", 12, true},
		{"v7", 7, true},
		{"v7.json", 7, true},
		{"manifest-v7", 0, false},
		{"latest", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got, ok := parseGeneration(tt.version)
		if ok != tt.ok || got != tt.want {
			t.Errorf("parseGeneration(%q) = (%d, %v), want (%d, %v)", tt.version, got, ok, tt.want, tt.ok)
		}
	}
}

func TestGenerationTable(t *testing.T) {
	if OldestGeneration() != 4 {
		t.Errorf("Expected oldest v4, got %s", OldestGeneration())
	}
	if LatestGeneration() != 9 {
		t.Errorf("Expected latest v9, got %s", LatestGeneration())
	}

	release, ok := ReleaseFor(8)
	if !ok || release != "1.4" {
		t.Errorf("Expected v8 -> 1.4, got %q (%v)", release, ok)
	}

	if _, ok := ReleaseFor(42); ok {
		t.Error("Expected no release for v42")
	}

	prev := Generation(0)
	for _, b := range Generations() {
		if b.Generation <= prev {
			t.Errorf("Expected table ordered oldest first, %s after %s", b.Generation, prev)
		}
		prev = b.Generation
	}
}
