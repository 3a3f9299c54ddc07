package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/openfroyo/manifold/pkg/errdefs"
	"github.com/openfroyo/manifold/pkg/manifest"
	"github.com/rs/zerolog"
)

// ResourceGraph is the dependency graph of one manifest snapshot.
// Every edge endpoint is a resource of the graph and the relation is acyclic.
type ResourceGraph struct {
	// resources maps unique ids to their resources
	resources map[string]*Resource

	// order lists unique ids in manifest insertion order
	order []string

	// position maps unique ids to their index in order
	position map[string]int

	// dependents maps unique ids to the ids that depend on them
	dependents map[string][]string
}

// Len returns the number of resources.
func (g *ResourceGraph) Len() int {
	return len(g.order)
}

// Resource returns the resource with the given unique id.
func (g *ResourceGraph) Resource(uniqueID string) (*Resource, bool) {
	r, ok := g.resources[uniqueID]
	return r, ok
}

// Resources returns every resource in manifest insertion order.
func (g *ResourceGraph) Resources() []*Resource {
	out := make([]*Resource, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.resources[id])
	}
	return out
}

// Dependents returns the ids of the resources that directly depend on uniqueID.
func (g *ResourceGraph) Dependents(uniqueID string) []string {
	return g.dependents[uniqueID]
}

// Ordered returns the resources of ids in manifest insertion order. Ids not
// in the graph are ignored.
func (g *ResourceGraph) Ordered(ids map[string]struct{}) []*Resource {
	out := make([]*Resource, 0, len(ids))
	for id := range ids {
		if r, ok := g.resources[id]; ok {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return g.position[out[i].UniqueID] < g.position[out[j].UniqueID]
	})
	return out
}

// Downstream returns the seeds present in the graph together with every
// resource that transitively depends on them. The closure is computed per
// call by breadth-first traversal; nothing is precomputed.
func (g *ResourceGraph) Downstream(seeds map[string]struct{}) map[string]struct{} {
	closure := make(map[string]struct{}, len(seeds))
	queue := make([]string, 0, len(seeds))

	for _, id := range g.order {
		if _, ok := seeds[id]; ok {
			closure[id] = struct{}{}
			queue = append(queue, id)
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dependent := range g.dependents[id] {
			if _, seen := closure[dependent]; !seen {
				closure[dependent] = struct{}{}
				queue = append(queue, dependent)
			}
		}
	}

	return closure
}

// Levels groups resources by dependency depth: level 0 holds resources
// without dependencies, level n those whose deepest dependency is at n-1.
// Each level is in manifest insertion order.
func (g *ResourceGraph) Levels() [][]string {
	// Kahn's algorithm with level tracking
	inDegree := make(map[string]int, len(g.order))
	for _, id := range g.order {
		inDegree[id] = len(g.resources[id].DependsOn)
	}

	current := make([]string, 0)
	for _, id := range g.order {
		if inDegree[id] == 0 {
			current = append(current, id)
		}
	}

	levels := make([][]string, 0)
	for len(current) > 0 {
		levels = append(levels, current)

		next := make(map[string]struct{})
		for _, id := range current {
			for _, dependent := range g.dependents[id] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next[dependent] = struct{}{}
				}
			}
		}

		current = make([]string, 0, len(next))
		for _, r := range g.Ordered(next) {
			current = append(current, r.UniqueID)
		}
	}

	return levels
}

// ToDOT generates a DOT format representation of the graph for visualization.
// The output can be rendered with Graphviz tools.
func (g *ResourceGraph) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph ResourceGraph {\n")
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	// Group nodes by level for better visualization
	for level, ids := range g.Levels() {
		sb.WriteString(fmt.Sprintf("  subgraph cluster_level_%d {\n", level))
		sb.WriteString(fmt.Sprintf("    label=\"Level %d\";\n", level))
		sb.WriteString("    style=dashed;\n")

		for _, id := range ids {
			r := g.resources[id]
			label := dotEscape(r.Name) + "\\n" + string(r.Type)
			sb.WriteString(fmt.Sprintf("    \"%s\" [label=\"%s\", fillcolor=\"%s\", style=\"filled,rounded\"];\n",
				dotEscape(id), label, getTypeColor(r.Type)))
		}

		sb.WriteString("  }\n\n")
	}

	for _, id := range g.order {
		for _, dep := range g.resources[id].DependsOn {
			sb.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\";\n", dotEscape(dep), dotEscape(id)))
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

var dotReplacer = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// dotEscape makes s safe inside a quoted DOT string.
func dotEscape(s string) string {
	return dotReplacer.Replace(s)
}

// GraphBuilder compiles a canonical manifest into a ResourceGraph.
type GraphBuilder struct {
	logger zerolog.Logger

	// resources maps unique ids to their resources
	resources map[string]*Resource

	// order lists unique ids in manifest insertion order
	order []string

	// adjacencyList maps unique ids to their dependents
	adjacencyList map[string][]string

	// skipped holds ids of manifest entries that are not graph resources
	skipped map[string]struct{}
}

// NewGraphBuilder creates a new graph builder. A builder is used for one Build.
func NewGraphBuilder(logger zerolog.Logger) *GraphBuilder {
	return &GraphBuilder{
		logger:        logger.With().Str("component", "graph-builder").Logger(),
		resources:     make(map[string]*Resource),
		order:         make([]string, 0),
		adjacencyList: make(map[string][]string),
		skipped:       make(map[string]struct{}),
	}
}

// Build constructs the resource graph of doc.
// It resolves dependencies, rejects dangling references and detects cycles.
func (b *GraphBuilder) Build(doc *manifest.Document) (*ResourceGraph, error) {
	if err := b.initialize(doc); err != nil {
		return nil, err
	}

	if err := b.detectCycles(); err != nil {
		return nil, err
	}

	position := make(map[string]int, len(b.order))
	for i, id := range b.order {
		position[id] = i
	}

	b.logger.Debug().
		Int("resources", len(b.order)).
		Int("skipped", len(b.skipped)).
		Msg("Built resource graph")

	return &ResourceGraph{
		resources:  b.resources,
		order:      b.order,
		position:   position,
		dependents: b.adjacencyList,
	}, nil
}

// initialize sets up the internal data structures from manifest nodes.
func (b *GraphBuilder) initialize(doc *manifest.Document) error {
	// First pass: index all resources
	for _, node := range doc.Nodes {
		rt, ok := ParseResourceType(node.ResourceType)
		if !ok {
			b.skipped[node.UniqueID] = struct{}{}
			continue
		}

		if _, exists := b.resources[node.UniqueID]; exists {
			return errdefs.NewGraphError(fmt.Sprintf("duplicate unique id: %s", node.UniqueID), nil).
				WithCode(errdefs.CodeDuplicateID).
				WithResource(node.UniqueID)
		}

		macroFingerprints := make(map[string]string, len(node.DependsOn.Macros))
		for _, macroID := range node.DependsOn.Macros {
			if m, ok := doc.Macros[macroID]; ok {
				macroFingerprints[macroID] = m.Fingerprint
			} else {
				macroFingerprints[macroID] = ""
			}
		}

		b.resources[node.UniqueID] = &Resource{
			UniqueID:          node.UniqueID,
			Name:              node.Name,
			Type:              rt,
			Package:           node.PackageName,
			Path:              node.Path,
			OriginalFilePath:  node.OriginalFilePath,
			MacroDependsOn:    node.DependsOn.Macros,
			Fingerprint:       node.Fingerprint,
			MacroFingerprints: macroFingerprints,
		}
		b.order = append(b.order, node.UniqueID)
		b.adjacencyList[node.UniqueID] = make([]string, 0)
	}

	// Second pass: resolve dependencies
	for _, node := range doc.Nodes {
		r, ok := b.resources[node.UniqueID]
		if !ok {
			continue
		}

		seen := make(map[string]struct{}, len(node.DependsOn.Nodes))
		deps := make([]string, 0, len(node.DependsOn.Nodes))
		for _, targetID := range node.DependsOn.Nodes {
			if _, dup := seen[targetID]; dup {
				continue
			}
			seen[targetID] = struct{}{}

			if _, exists := b.resources[targetID]; !exists {
				if _, isSkipped := b.skipped[targetID]; isSkipped {
					// Edges to entries that are not graph resources are dropped
					continue
				}
				return errdefs.NewGraphError(
					fmt.Sprintf("%s depends on non-existent resource %s", node.UniqueID, targetID),
					nil,
				).WithCode(errdefs.CodeDanglingReference).
					WithResource(targetID).
					WithDetail("referenced_by", node.UniqueID)
			}

			deps = append(deps, targetID)
			b.adjacencyList[targetID] = append(b.adjacencyList[targetID], node.UniqueID)
		}
		r.DependsOn = deps
	}

	return nil
}

// detectCycles uses depth-first search to detect circular dependencies.
func (b *GraphBuilder) detectCycles() error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	path := make([]string, 0)

	for _, id := range b.order {
		if !visited[id] {
			if cycle := b.detectCyclesUtil(id, visited, recStack, path); cycle != nil {
				return errdefs.NewGraphError(
					fmt.Sprintf("circular dependency detected: %s", formatCycle(cycle)),
					nil,
				).WithCode(errdefs.CodeCycleDetected).
					WithResource(cycle[0]).
					WithDetail("cycle", cycle)
			}
		}
	}

	return nil
}

// detectCyclesUtil performs DFS over dependents and returns the first cycle found.
func (b *GraphBuilder) detectCyclesUtil(
	nodeID string,
	visited map[string]bool,
	recStack map[string]bool,
	path []string,
) []string {
	visited[nodeID] = true
	recStack[nodeID] = true
	path = append(path, nodeID)

	for _, dependent := range b.adjacencyList[nodeID] {
		if !visited[dependent] {
			if cycle := b.detectCyclesUtil(dependent, visited, recStack, path); cycle != nil {
				return cycle
			}
		} else if recStack[dependent] {
			// Found a cycle - construct the cycle path
			for i, id := range path {
				if id == dependent {
					cycle := make([]string, 0, len(path)-i+1)
					cycle = append(cycle, path[i:]...)
					return append(cycle, dependent)
				}
			}
		}
	}

	recStack[nodeID] = false
	return nil
}

// formatCycle formats a cycle path for error messages.
func formatCycle(cycle []string) string {
	if len(cycle) == 0 {
		return ""
	}
	return strings.Join(cycle, " -> ")
}

// getTypeColor returns a color for visualizing resource types.
func getTypeColor(t ResourceType) string {
	switch t {
	case ResourceModel:
		return "lightblue"
	case ResourceSeed:
		return "lightgreen"
	case ResourceSource:
		return "khaki"
	case ResourceTest:
		return "lightgray"
	case ResourceMetric:
		return "plum"
	default:
		return "white"
	}
}
