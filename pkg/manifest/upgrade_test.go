package manifest

import (
	"reflect"
	"testing"
)

func TestStepsBetween(t *testing.T) {
	tests := []struct {
		from, to Generation
		want     []string
	}{
		{from: 4, to: 9, want: []string{"checksum-object", "depends-on-object", "raw-code-rename", "metric-calculation-method", "model-access-defaults"}},
		{from: 7, to: 8, want: []string{"metric-calculation-method"}},
		{from: 6, to: 7, want: []string{"raw-code-rename"}},
		{from: 9, to: 9, want: nil},
	}

	for _, tt := range tests {
		var got []string
		for _, s := range stepsBetween(tt.from, tt.to) {
			got = append(got, s.name)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("stepsBetween(%d, %d) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestUpgradeSteps_Idempotent(t *testing.T) {
	inputs := []map[string]interface{}{
		{
			"resource_type": "model",
			"checksum":      "abc",
			"depends_on":    []interface{}{"model.p.x"},
			"raw_sql":       "select 1",
			"compiled_sql":  "select 1",
		},
		{
			"resource_type": "metric",
			"type":          "count",
			"sql":           "*",
			"depends_on":    nil,
		},
		{
			"resource_type": "seed",
		},
	}

	for _, step := range upgradeSteps {
		for i, in := range inputs {
			once := deepCopy(in)
			step.apply(once)
			twice := deepCopy(once)
			step.apply(twice)

			if !reflect.DeepEqual(once, twice) {
				t.Errorf("step %s not idempotent on input %d: %v vs %v", step.name, i, once, twice)
			}
		}
	}
}

func TestReshapeDependsOn(t *testing.T) {
	node := map[string]interface{}{"depends_on": []interface{}{"a", "b"}}
	reshapeDependsOn(node)

	deps, ok := node["depends_on"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected depends_on object, got %T", node["depends_on"])
	}
	if !reflect.DeepEqual(deps["nodes"], []interface{}{"a", "b"}) {
		t.Errorf("Expected nodes [a b], got %v", deps["nodes"])
	}

	absent := map[string]interface{}{}
	reshapeDependsOn(absent)
	if _, ok := absent["depends_on"]; ok {
		t.Error("Expected absent depends_on to stay absent")
	}
}

func TestBackfillModelAccess_OnlyModels(t *testing.T) {
	model := map[string]interface{}{"resource_type": "model"}
	test := map[string]interface{}{"resource_type": "test"}

	backfillModelAccess(model)
	backfillModelAccess(test)

	if model["access"] != "protected" {
		t.Errorf("Expected model access protected, got %v", model["access"])
	}
	if _, ok := test["access"]; ok {
		t.Error("Expected tests to be left untouched")
	}
}

func deepCopy(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case map[string]interface{}:
			out[k] = deepCopy(val)
		case []interface{}:
			cp := make([]interface{}, len(val))
			copy(cp, val)
			out[k] = cp
		default:
			out[k] = v
		}
	}
	return out
}
