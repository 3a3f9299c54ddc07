package manifest

// upgradeStep transforms every resource entry of a document from generation
// `from` to `from+1`. Steps are idempotent and total: entries already in the
// newer shape, or not concerned by the step, are left untouched.
type upgradeStep struct {
	from  Generation
	name  string
	apply func(node map[string]interface{})
}

// upgradeSteps is ordered by source generation.
var upgradeSteps = []upgradeStep{
	{from: 4, name: "checksum-object", apply: reshapeChecksum},
	{from: 5, name: "depends-on-object", apply: reshapeDependsOn},
	{from: 6, name: "raw-code-rename", apply: renameRawSQL},
	{from: 7, name: "metric-calculation-method", apply: renameMetricFields},
	{from: 8, name: "model-access-defaults", apply: backfillModelAccess},
}

// stepsBetween returns the steps needed to move a document from `from` to `to`.
func stepsBetween(from, to Generation) []upgradeStep {
	var steps []upgradeStep
	for _, s := range upgradeSteps {
		if s.from >= from && s.from < to {
			steps = append(steps, s)
		}
	}
	return steps
}

// reshapeChecksum turns a bare checksum string into {name, checksum}.
func reshapeChecksum(node map[string]interface{}) {
	if s, ok := node["checksum"].(string); ok {
		node["checksum"] = map[string]interface{}{
			"name":     "sha256",
			"checksum": s,
		}
	}
}

// reshapeDependsOn turns a flat list of node ids into {nodes, macros}.
func reshapeDependsOn(node map[string]interface{}) {
	switch deps := node["depends_on"].(type) {
	case []interface{}:
		node["depends_on"] = map[string]interface{}{
			"nodes":  deps,
			"macros": []interface{}{},
		}
	case nil:
		if _, present := node["depends_on"]; present {
			node["depends_on"] = map[string]interface{}{
				"nodes":  []interface{}{},
				"macros": []interface{}{},
			}
		}
	}
}

// renameRawSQL renames raw_sql to raw_code and backfills the language.
func renameRawSQL(node map[string]interface{}) {
	if raw, ok := node["raw_sql"]; ok {
		if _, exists := node["raw_code"]; !exists {
			node["raw_code"] = raw
		}
		delete(node, "raw_sql")
	}
	if compiled, ok := node["compiled_sql"]; ok {
		if _, exists := node["compiled_code"]; !exists {
			node["compiled_code"] = compiled
		}
		delete(node, "compiled_sql")
	}
	if _, ok := node["raw_code"]; ok {
		if _, exists := node["language"]; !exists {
			node["language"] = "sql"
		}
	}
}

// renameMetricFields renames the metric type and sql fields.
func renameMetricFields(node map[string]interface{}) {
	if node["resource_type"] != "metric" {
		return
	}
	if t, ok := node["type"]; ok {
		if _, exists := node["calculation_method"]; !exists {
			node["calculation_method"] = t
		}
		delete(node, "type")
	}
	if sql, ok := node["sql"]; ok {
		if _, exists := node["expression"]; !exists {
			node["expression"] = sql
		}
		delete(node, "sql")
	}
}

// backfillModelAccess adds the access and constraints defaults to models.
func backfillModelAccess(node map[string]interface{}) {
	if node["resource_type"] != "model" {
		return
	}
	if _, ok := node["access"]; !ok {
		node["access"] = "protected"
	}
	if _, ok := node["constraints"]; !ok {
		node["constraints"] = []interface{}{}
	}
}
