// Package engine builds resource graphs from canonical manifests and answers
// selection and state-diff queries over them.
//
// # Overview
//
// One query runs through four stages:
//
//  1. Environment - build a fresh synthetic project context (environment.Shim)
//  2. Load - decode and upgrade the manifest (manifest.Codec)
//  3. Graph - compile the manifest into a ResourceGraph (GraphBuilder)
//  4. Select - evaluate an Expression, diffing against a previous graph when
//     a state predicate is present (Selector, DiffEngine)
//
// Runner wires the stages together and releases the environment on every
// exit path.
//
// # Core Domain Types
//
//   - Resource: a model, test, seed, source or metric with its dependencies
//     and fingerprints
//   - ResourceGraph: the immutable dependency graph of one snapshot
//   - Expression: the selection algebra (AllOfType, ByName, ByPath,
//     StateModified, Downstream, And, Or)
//   - DiffResult: the added/removed/modified/unchanged classification of two
//     snapshots
//
// # Selection Syntax
//
// ParseSelection accepts the selector strings of the command line:
//
//	orders                     name or unique id, glob patterns allowed
//	stg_*+                     matches and everything downstream of them
//	resource_type:model        all models
//	path:models/staging        everything defined under a directory
//	state:modified+            changed resources and their dependents
//	stg_*,resource_type:model  comma intersects
//	orders customers           whitespace unions
//
// A selection matching nothing yields an empty result, never an error.
//
// # Example Usage
//
//	shim, err := environment.New(environment.Generation15)
//	runner, err := engine.NewRunner(shim)
//
//	resources, err := runner.ModifiedWithDownstream(ctx, current, previous)
//	for _, r := range resources {
//	    fmt.Println(r.UniqueID)
//	}
//
// # Determinism
//
// Results are ordered by manifest insertion order. Diff(a, b) depends only
// on the two graphs, so repeated calls and mirrored calls agree.
package engine
