// Package config loads manifold.yaml.
//
// The file is decoded over Default, so every key is optional, and then
// validated with struct tags. Unknown keys are rejected. Command-line flags
// override file values after loading.
//
// # Example
//
//	project_dir: ./warehouse
//	generation: "1.5"
//	state:
//	  snapshot: prod
//	output:
//	  format: json
//	  keys: [unique_id, name]
//	policy:
//	  paths: [policies/]
//	  fail_on: warning
//	telemetry:
//	  log_level: debug
//	  metrics:
//	    textfile: /var/lib/node_exporter/manifold.prom
package config
