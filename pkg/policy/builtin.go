package policy

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		removedWithDependentsPolicy(),
		modifiedSeedPolicy(),
		largeChangePolicy(),
	}
}

// removedWithDependentsPolicy blocks removing a resource other resources
// relied on.
func removedWithDependentsPolicy() Policy {
	return Policy{
		Name:        "removed-with-dependents",
		Description: "Removing a resource that other resources depended on",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package manifold.policies.removal

import rego.v1

deny contains violation if {
	some change in input.changes
	change.status == "removed"
	count(change.base_dependents) > 0
	violation := {
		"message": sprintf("%s was removed while %d resource(s) depended on it", [change.unique_id, count(change.base_dependents)]),
		"severity": "error",
		"resource": change.unique_id,
		"details": {"dependents": change.base_dependents},
	}
}
`,
	}
}

// modifiedSeedPolicy flags seed edits, which reload data downstream.
func modifiedSeedPolicy() Policy {
	return Policy{
		Name:        "modified-seed",
		Description: "Seeds whose content changed",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package manifold.policies.seeds

import rego.v1

deny contains violation if {
	some change in input.changes
	change.status == "modified"
	change.resource_type == "seed"
	violation := {
		"message": sprintf("seed %s was modified (%s)", [change.name, concat(", ", change.reasons)]),
		"severity": "warning",
		"resource": change.unique_id,
	}
}
`,
	}
}

// largeChangePolicy notes diffs touching more than half of a non-trivial
// project.
func largeChangePolicy() Policy {
	return Policy{
		Name:        "large-change",
		Description: "More than half of the resources changed",
		Severity:    SeverityInfo,
		Enabled:     true,
		Rego: `package manifold.policies.size

import rego.v1

changed := (input.summary.added + input.summary.removed) + input.summary.modified

deny contains violation if {
	input.summary.total >= 10
	changed * 2 > input.summary.total
	violation := {
		"message": sprintf("%d of %d resources changed", [changed, input.summary.total]),
		"severity": "info",
	}
}
`,
	}
}
