package engine_test

import (
	"context"
	"fmt"
	"log"

	"github.com/openfroyo/manifold/pkg/engine"
	"github.com/openfroyo/manifold/pkg/manifest"
	"github.com/rs/zerolog"
)

const exampleBase = `{
  "metadata": {"dbt_schema_version": "https://schemas.getdbt.com/dbt/manifest/v9.json"},
  "nodes": {
    "seed.shop.countries": {"name": "countries", "resource_type": "seed",
      "checksum": {"name": "sha256", "checksum": "c1"}},
    "model.shop.stg_orders": {"name": "stg_orders", "resource_type": "model",
      "checksum": {"name": "sha256", "checksum": "s1"}},
    "model.shop.orders": {"name": "orders", "resource_type": "model",
      "checksum": {"name": "sha256", "checksum": "o1"},
      "depends_on": {"nodes": ["model.shop.stg_orders", "seed.shop.countries"]}}
  }
}`

const exampleAltered = `{
  "metadata": {"dbt_schema_version": "https://schemas.getdbt.com/dbt/manifest/v9.json"},
  "nodes": {
    "seed.shop.countries": {"name": "countries", "resource_type": "seed",
      "checksum": {"name": "sha256", "checksum": "c1"}},
    "model.shop.stg_orders": {"name": "stg_orders", "resource_type": "model",
      "checksum": {"name": "sha256", "checksum": "s2"}},
    "model.shop.orders": {"name": "orders", "resource_type": "model",
      "checksum": {"name": "sha256", "checksum": "o1"},
      "depends_on": {"nodes": ["model.shop.stg_orders", "seed.shop.countries"]}}
  }
}`

func mustGraph(raw string) *engine.ResourceGraph {
	doc, err := manifest.Load([]byte(raw))
	if err != nil {
		log.Fatalf("Failed to load manifest: %v", err)
	}
	graph, err := engine.NewGraphBuilder(zerolog.Nop()).Build(doc)
	if err != nil {
		log.Fatalf("Failed to build graph: %v", err)
	}
	return graph
}

// Example_stateSelection selects what changed between two snapshots, with
// and without the downstream closure.
func Example_stateSelection() {
	base := mustGraph(exampleBase)
	altered := mustGraph(exampleAltered)
	selector := engine.NewSelector(zerolog.Nop())

	for _, sel := range []string{"state:modified", "state:modified+"} {
		expr, err := engine.ParseSelection(engine.Params{
			ResourceTypes: []engine.ResourceType{engine.ResourceModel},
			Select:        []string{sel},
		})
		if err != nil {
			log.Fatalf("Failed to parse selection: %v", err)
		}

		resources, err := selector.Select(context.Background(), altered, expr, nil, base)
		if err != nil {
			log.Fatalf("Failed to select: %v", err)
		}

		fmt.Printf("%s:", sel)
		for _, r := range resources {
			fmt.Printf(" %s", r.Name)
		}
		fmt.Println()
	}

	// Output:
	// state:modified: stg_orders
	// state:modified+: stg_orders orders
}

// Example_graphLevels groups resources by dependency depth.
func Example_graphLevels() {
	graph := mustGraph(exampleBase)

	for level, ids := range graph.Levels() {
		fmt.Printf("Level %d: %v\n", level, ids)
	}

	// Output:
	// Level 0: [seed.shop.countries model.shop.stg_orders]
	// Level 1: [model.shop.orders]
}

// ExampleDiffEngine_Diff classifies every resource of two snapshots.
func ExampleDiffEngine_Diff() {
	result := engine.NewDiffEngine().Diff(mustGraph(exampleBase), mustGraph(exampleAltered))

	for _, e := range result.Entries {
		fmt.Printf("%-22s %s\n", e.UniqueID, e.Status)
	}
	fmt.Printf("modified=%d unchanged=%d\n", result.Summary.Modified, result.Summary.Unchanged)

	// Output:
	// seed.shop.countries    unchanged
	// model.shop.stg_orders  modified
	// model.shop.orders      unchanged
	// modified=1 unchanged=2
}
