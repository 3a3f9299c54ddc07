// Package manifest loads versioned project manifests and upgrades them to a
// single canonical generation.
//
// A manifest declares its schema generation in metadata.dbt_schema_version
// as a URL ending in "vN". Documents of an older generation are walked
// through an ordered list of upgrade steps, one per generation boundary,
// until they reach the codec's canonical generation. Documents of a newer
// generation are rejected; the codec never downgrades.
//
// Basic usage:
//
//	codec, err := manifest.NewCodec(manifest.WithCanonicalGeneration(9))
//	if err != nil {
//	    return err
//	}
//	doc, err := codec.LoadFile("target/manifest.json")
//
// Resource entries keep their document order: nodes, then sources, then
// metrics. Graph construction and selection output rely on that order.
package manifest
