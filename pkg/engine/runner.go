package engine

import (
	"context"
	"fmt"

	"github.com/openfroyo/manifold/pkg/environment"
	"github.com/openfroyo/manifold/pkg/errdefs"
	"github.com/openfroyo/manifold/pkg/manifest"
	"github.com/openfroyo/manifold/pkg/telemetry"
	"github.com/rs/zerolog"
)

// Runner answers selection and diff queries over manifests. Every call builds
// its own environment context, manifests and graphs and releases them before
// returning; a Runner holds no per-call state.
type Runner struct {
	shim        environment.Shim
	codec       *manifest.Codec
	selector    *Selector
	targetPath  string
	profilesDir string
	logger      zerolog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*runnerOptions)

type runnerOptions struct {
	targetPath  string
	profilesDir string
	logger      zerolog.Logger
	diffOpts    []DiffOption
}

// WithTargetPath sets the target path passed to the environment shim.
func WithTargetPath(path string) RunnerOption {
	return func(o *runnerOptions) {
		o.targetPath = path
	}
}

// WithProfilesDir sets the profiles directory passed to the environment shim.
func WithProfilesDir(dir string) RunnerOption {
	return func(o *runnerOptions) {
		o.profilesDir = dir
	}
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger(logger zerolog.Logger) RunnerOption {
	return func(o *runnerOptions) {
		o.logger = logger
	}
}

// WithDiffOptions configures the diff engine behind state predicates.
func WithDiffOptions(opts ...DiffOption) RunnerOption {
	return func(o *runnerOptions) {
		o.diffOpts = append(o.diffOpts, opts...)
	}
}

// NewRunner creates a runner for shim. Manifests are upgraded to the
// generation the shim's upstream release reads.
func NewRunner(shim environment.Shim, opts ...RunnerOption) (*Runner, error) {
	o := runnerOptions{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	codec, err := manifest.NewCodec(
		manifest.WithCanonicalGeneration(shim.ManifestGeneration()),
		manifest.WithLogger(o.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create manifest codec: %w", err)
	}

	return &Runner{
		shim:        shim,
		codec:       codec,
		selector:    NewSelector(o.logger, o.diffOpts...),
		targetPath:  o.targetPath,
		profilesDir: o.profilesDir,
		logger:      o.logger.With().Str("component", "runner").Logger(),
	}, nil
}

// Select evaluates params against current. previous is the raw base
// manifest for state predicates and may be nil.
func (r *Runner) Select(ctx context.Context, current, previous []byte, params Params) ([]*Resource, error) {
	return r.run(ctx, "select", current, previous, params)
}

// List lists the resources of the given types matching selectors, optionally
// restricted by a state predicate against previous.
func (r *Runner) List(
	ctx context.Context,
	current, previous []byte,
	types []ResourceType,
	selectors []string,
	state StateMode,
) ([]*Resource, error) {
	return r.run(ctx, "list", current, previous, Params{
		ResourceTypes: types,
		Select:        selectors,
		StateMode:     state,
	})
}

// CompareModels returns the models modified between previous and current,
// with their downstream closure when includeDownstream is set.
func (r *Runner) CompareModels(ctx context.Context, current, previous []byte, includeDownstream bool) ([]*Resource, error) {
	state := StateModifiedOnly
	if includeDownstream {
		state = StateModifiedUpstream
	}
	return r.run(ctx, "compare_models", current, previous, Params{
		ResourceTypes: []ResourceType{ResourceModel},
		Select:        []string{"state:" + string(state)},
	})
}

// ModifiedWithDownstream returns the models and metrics that were modified
// between previous and current or depend on one that was.
func (r *Runner) ModifiedWithDownstream(ctx context.Context, current, previous []byte) ([]*Resource, error) {
	return r.run(ctx, "modified_with_downstream", current, previous, Params{
		ResourceTypes: []ResourceType{ResourceModel, ResourceMetric},
		Select:        []string{"state:modified+"},
	})
}

// Changes returns every resource of current, or only those modified relative
// to previous when modifiedOnly is set.
func (r *Runner) Changes(ctx context.Context, current, previous []byte, modifiedOnly bool) ([]*Resource, error) {
	params := Params{}
	if modifiedOnly {
		params.Select = []string{"state:modified"}
	}
	return r.run(ctx, "changes", current, previous, params)
}

// Comparison is a state diff together with the graphs it was computed from.
type Comparison struct {
	Base    *ResourceGraph
	Altered *ResourceGraph
	Result  *DiffResult
}

// Diff classifies every resource of current and previous.
func (r *Runner) Diff(ctx context.Context, current, previous []byte) (cmp *Comparison, err error) {
	ic := telemetry.StartOperation(ctx, "runner.diff")
	defer func() { ic.End(err) }()

	if previous == nil {
		return nil, errdefs.NewSelectionError("diff requires a previous manifest", nil).
			WithCode(errdefs.CodeNoBaseState)
	}

	env, err := r.shim.Build(r.targetPath, r.profilesDir)
	if err != nil {
		return nil, err
	}
	defer r.closeEnv(env)

	altered, err := r.loadGraph(ic.Ctx, current)
	if err != nil {
		return nil, err
	}
	base, err := r.loadGraph(ic.Ctx, previous)
	if err != nil {
		return nil, err
	}

	result := r.selector.DiffEngine().Diff(base, altered)
	telemetry.MetricsFromContext(ctx).RecordDiff(result.Summary.Counts())

	logger := ic.Logger.NewComponentLogger("runner").Zerolog()
	logger.Debug().
		Int("added", result.Summary.Added).
		Int("removed", result.Summary.Removed).
		Int("modified", result.Summary.Modified).
		Msg("Diff complete")

	return &Comparison{Base: base, Altered: altered, Result: result}, nil
}

// Graph loads raw and builds its resource graph within a fresh environment.
func (r *Runner) Graph(ctx context.Context, raw []byte) (graph *ResourceGraph, err error) {
	ic := telemetry.StartOperation(ctx, "runner.graph")
	defer func() { ic.End(err) }()

	env, err := r.shim.Build(r.targetPath, r.profilesDir)
	if err != nil {
		return nil, err
	}
	defer r.closeEnv(env)

	return r.loadGraph(ic.Ctx, raw)
}

func (r *Runner) run(ctx context.Context, op string, current, previous []byte, params Params) (result []*Resource, err error) {
	ic := telemetry.StartOperation(ctx, "runner."+op)
	defer func() { ic.End(err) }()

	// The context logger carries the caller's invocation id and trace ids.
	logger := ic.Logger.NewComponentLogger("runner").Zerolog()

	env, err := r.shim.Build(r.targetPath, r.profilesDir)
	if err != nil {
		return nil, err
	}
	defer r.closeEnv(env)

	expr, err := ParseSelection(params)
	if err != nil {
		telemetry.MetricsFromContext(ctx).RecordSelection("error", 0)
		return nil, err
	}
	if ic.Span != nil {
		ic.Span.SetAttributes(telemetry.AttrExpression.String(expr.String()))
	}

	graph, err := r.loadGraph(ic.Ctx, current)
	if err != nil {
		return nil, err
	}

	var base *ResourceGraph
	if previous != nil {
		if base, err = r.loadGraph(ic.Ctx, previous); err != nil {
			return nil, err
		}
	}

	result, err = r.selector.Select(ic.Ctx, graph, expr, env, base)
	if err != nil {
		telemetry.MetricsFromContext(ctx).RecordSelection("error", 0)
		return nil, err
	}

	outcome := "matched"
	if len(result) == 0 {
		outcome = "empty"
	}
	telemetry.MetricsFromContext(ctx).RecordSelection(outcome, len(result))
	if ic.Span != nil {
		ic.Span.SetAttributes(telemetry.AttrSelected.Int(len(result)))
	}

	logger.Debug().
		Str("expression", expr.String()).
		Int("selected", len(result)).
		Msg("Selection complete")

	return result, nil
}

func (r *Runner) loadGraph(ctx context.Context, raw []byte) (*ResourceGraph, error) {
	doc, err := r.codec.Load(raw)
	if err != nil {
		return nil, err
	}

	metrics := telemetry.MetricsFromContext(ctx)
	metrics.RecordManifestLoaded(doc.SourceGeneration.String(), doc.Generation.String(), doc.Upgrades)

	graph, err := NewGraphBuilder(r.logger).Build(doc)
	if err != nil {
		return nil, err
	}

	counts := make(map[ResourceType]int)
	for _, res := range graph.Resources() {
		counts[res.Type]++
	}
	for _, t := range AllResourceTypes() {
		metrics.SetGraphResources(string(t), counts[t])
	}

	return graph, nil
}

func (r *Runner) closeEnv(env *environment.Context) {
	if err := env.Close(); err != nil {
		r.logger.Warn().Err(err).Str("dir", env.ScratchDir).Msg("Failed to release environment")
	}
}
