// Package policy gates state diffs with Rego policies.
//
// An Engine holds compiled policies. Each policy is a Rego module whose
// deny set lists violations; a violation is either a message string or an
// object with message, severity, resource and details keys. Evaluate builds
// an Input from an engine.Comparison and runs every enabled policy against
// it, in name order.
//
// # Input
//
//	{
//	  "summary": {"total": 8, "added": 1, "removed": 1, "modified": 1, "unchanged": 5},
//	  "changes": [
//	    {
//	      "unique_id": "model.shop.legacy",
//	      "name": "legacy",
//	      "resource_type": "model",
//	      "status": "removed",
//	      "reasons": [],
//	      "package_name": "shop",
//	      "original_file_path": "models/legacy.sql",
//	      "depends_on": [],
//	      "base_dependents": ["model.shop.legacy_report"]
//	    }
//	  ]
//	}
//
// Only added, removed and modified nodes appear in changes.
//
// # Built-in policies
//
//   - removed-with-dependents (error): a removed node had dependents in the
//     base snapshot that were not removed with it.
//   - modified-seed (warning): a seed's content changed.
//   - large-change (info): more than half of a project of ten or more
//     resources changed.
//
// # Custom policies
//
// LoadPolicies reads .rego files (named after the file) and .json
// definitions. A leading comment block describes a .rego policy, and a
// "# severity: error" line in it sets the default severity:
//
//	# Removing any model needs sign-off.
//	# severity: error
//	package custom.removals
//
//	import rego.v1
//
//	deny contains msg if {
//		some change in input.changes
//		change.status == "removed"
//		msg := sprintf("model %s removed", [change.name])
//	}
//
// The result is disallowed when a violation meets the FailOn threshold.
package policy
