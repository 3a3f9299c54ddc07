package engine

import (
	"context"
	"fmt"

	"github.com/openfroyo/manifold/pkg/environment"
	"github.com/openfroyo/manifold/pkg/errdefs"
	"github.com/rs/zerolog"
)

// Selector evaluates selection expressions against resource graphs.
type Selector struct {
	logger zerolog.Logger
	diff   *DiffEngine
}

// NewSelector creates a selector. The diff options configure the diff engine
// used by state predicates.
func NewSelector(logger zerolog.Logger, opts ...DiffOption) *Selector {
	return &Selector{
		logger: logger.With().Str("component", "selector").Logger(),
		diff:   NewDiffEngine(opts...),
	}
}

// DiffEngine returns the diff engine backing state predicates.
func (s *Selector) DiffEngine() *DiffEngine {
	return s.diff
}

// Select evaluates expr against graph and returns the matching resources in
// manifest insertion order. previous is the base snapshot for state
// predicates and may be nil when expr has none.
//
// Matching nothing is not an error: the result is an empty slice and a
// warning is logged for each pattern that matched nothing.
func (s *Selector) Select(
	ctx context.Context,
	graph *ResourceGraph,
	expr Expression,
	env *environment.Context,
	previous *ResourceGraph,
) ([]*Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ev := &evaluation{
		graph:    graph,
		previous: previous,
		engine:   s.diff,
		eager:    env == nil || env.Flags.IndirectSelection == environment.IndirectSelectionEager,
		logger:   s.logger.With().Str("expression", expr.String()).Logger(),
	}

	ids, err := expr.eval(ev)
	if err != nil {
		return nil, err
	}

	result := graph.Ordered(ids)
	if len(result) == 0 {
		ev.logger.Info().Msg("Selection matched no resources")
	} else {
		ev.logger.Debug().Int("selected", len(result)).Msg("Selection evaluated")
	}

	return result, nil
}

// evaluation carries the state of one Select call.
type evaluation struct {
	graph    *ResourceGraph
	previous *ResourceGraph
	engine   *DiffEngine
	eager    bool
	logger   zerolog.Logger

	// diff is computed on first use and shared by every state predicate
	diff *DiffResult
}

func (ev *evaluation) all() map[string]struct{} {
	out := make(map[string]struct{}, ev.graph.Len())
	for _, r := range ev.graph.Resources() {
		out[r.UniqueID] = struct{}{}
	}
	return out
}

func (ev *evaluation) stateDiff() (*DiffResult, error) {
	if ev.previous == nil {
		return nil, errdefs.NewSelectionError("state selection requires a previous manifest", nil).
			WithCode(errdefs.CodeNoBaseState)
	}
	if ev.diff == nil {
		ev.diff = ev.engine.Diff(ev.previous, ev.graph)
		ev.logger.Debug().
			Int("added", ev.diff.Summary.Added).
			Int("modified", ev.diff.Summary.Modified).
			Int("removed", ev.diff.Summary.Removed).
			Msg("Computed state diff")
	}
	return ev.diff, nil
}

// resolve adds the matches of one name pattern to out. Under eager indirect
// selection a pattern matching several resources selects all of them;
// otherwise it is rejected as ambiguous.
func (ev *evaluation) resolve(pattern string, matched []string, out map[string]struct{}) error {
	switch {
	case len(matched) == 0:
		ev.unmatched(pattern)
	case len(matched) > 1 && !ev.eager:
		return errdefs.NewSelectionError(
			fmt.Sprintf("pattern matches %d resources", len(matched)),
			nil,
		).WithCode(errdefs.CodeMalformedExpression).
			WithResource(pattern).
			WithDetail("matches", matched)
	}

	for _, id := range matched {
		out[id] = struct{}{}
	}
	return nil
}

func (ev *evaluation) unmatched(pattern string) {
	ev.logger.Warn().Str("pattern", pattern).Msg("The selection criterion does not match any nodes")
}
