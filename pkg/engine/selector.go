package engine

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
	"github.com/openfroyo/manifold/pkg/errdefs"
)

// Expression is a node of the selection algebra. Evaluating an expression
// yields a set of unique ids of the graph it is evaluated against.
type Expression interface {
	// String renders the expression for logs and traces.
	String() string

	eval(ev *evaluation) (map[string]struct{}, error)
}

// Everything selects every resource.
type Everything struct{}

// AllOfType selects resources whose type is in Types. An empty set selects
// nothing.
type AllOfType struct {
	Types TypeSet
}

// ByName selects resources whose name matches any pattern, either exactly or
// as a glob. A pattern equal to a unique id selects that resource.
type ByName struct {
	Patterns []string
}

// ByPath selects resources by original file path. A pattern without glob
// metacharacters matches the path itself and everything below it.
type ByPath struct {
	Patterns []string
}

// StateModified selects resources added or modified relative to the previous
// snapshot, optionally expanded to their downstream closure.
type StateModified struct {
	IncludeDownstream bool
}

// Downstream selects the resources of Expr and everything depending on them.
type Downstream struct {
	Expr Expression
}

// And intersects its sub-expressions. An empty And selects everything.
type And struct {
	Exprs []Expression
}

// Or unions its sub-expressions. An empty Or selects nothing.
type Or struct {
	Exprs []Expression
}

func (Everything) String() string { return "*" }

func (e AllOfType) String() string {
	types := make([]string, 0, len(e.Types))
	for _, t := range AllResourceTypes() {
		if e.Types.Has(t) {
			types = append(types, string(t))
		}
	}
	return "resource_type(" + strings.Join(types, ",") + ")"
}

func (e ByName) String() string {
	return "name(" + strings.Join(e.Patterns, ",") + ")"
}

func (e ByPath) String() string {
	return "path(" + strings.Join(e.Patterns, ",") + ")"
}

func (e StateModified) String() string {
	if e.IncludeDownstream {
		return "state:modified+"
	}
	return "state:modified"
}

func (e Downstream) String() string {
	return "(" + e.Expr.String() + ")+"
}

func (e And) String() string { return joinExprs("and", e.Exprs) }

func (e Or) String() string { return joinExprs("or", e.Exprs) }

func joinExprs(op string, exprs []Expression) string {
	parts := make([]string, 0, len(exprs))
	for _, e := range exprs {
		parts = append(parts, e.String())
	}
	return op + "(" + strings.Join(parts, " ") + ")"
}

// StateMode is the state predicate requested alongside a selection.
type StateMode string

const (
	StateNone             StateMode = ""
	StateModifiedOnly     StateMode = "modified"
	StateModifiedUpstream StateMode = "modified+"
)

// ParseStateMode maps a CLI value to a StateMode. "none" and the empty
// string both mean no state predicate.
func ParseStateMode(s string) (StateMode, error) {
	switch s {
	case "", "none":
		return StateNone, nil
	case string(StateModifiedOnly):
		return StateModifiedOnly, nil
	case string(StateModifiedUpstream):
		return StateModifiedUpstream, nil
	default:
		return "", errdefs.NewSelectionError(fmt.Sprintf("unknown state mode %q", s), nil).
			WithCode(errdefs.CodeMalformedExpression).
			WithResource(s)
	}
}

// Params are the CLI-level inputs of a selection.
type Params struct {
	// ResourceTypes filters by type. Nil means no filter; an empty non-nil
	// slice selects nothing.
	ResourceTypes []ResourceType

	// Select holds selector strings. Nil means no selector.
	Select []string

	// StateMode adds a state predicate.
	StateMode StateMode
}

// ParseSelection builds the expression described by p. The type filter, the
// selectors and the state predicate are intersected.
//
// Within a selector string, whitespace-separated terms are unioned and
// comma-separated parts of a term are intersected. A trailing "+" expands a
// part to its downstream closure. Parts are either "method:value" with method
// one of state, resource_type, path or name, or a bare name pattern.
func ParseSelection(p Params) (Expression, error) {
	terms := make([]Expression, 0, 3)

	if p.ResourceTypes != nil {
		terms = append(terms, AllOfType{Types: NewTypeSet(p.ResourceTypes...)})
	}

	if p.Select != nil {
		union := make([]Expression, 0, len(p.Select))
		for _, s := range p.Select {
			fields := strings.Fields(s)
			if len(fields) == 0 {
				return nil, malformed("empty selector", s)
			}
			for _, field := range fields {
				term, err := parseTerm(field)
				if err != nil {
					return nil, err
				}
				union = append(union, term)
			}
		}
		terms = append(terms, collapse(union, func(e []Expression) Expression { return Or{Exprs: e} }))
	}

	switch p.StateMode {
	case StateNone:
	case StateModifiedOnly:
		terms = append(terms, StateModified{})
	case StateModifiedUpstream:
		terms = append(terms, StateModified{IncludeDownstream: true})
	default:
		return nil, malformed("unknown state mode", string(p.StateMode))
	}

	if len(terms) == 0 {
		return Everything{}, nil
	}
	return collapse(terms, func(e []Expression) Expression { return And{Exprs: e} }), nil
}

func collapse(exprs []Expression, combine func([]Expression) Expression) Expression {
	if len(exprs) == 1 {
		return exprs[0]
	}
	return combine(exprs)
}

// parseTerm parses one whitespace-free selector term.
func parseTerm(term string) (Expression, error) {
	parts := strings.Split(term, ",")
	exprs := make([]Expression, 0, len(parts))
	for _, part := range parts {
		e, err := parsePart(part)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}
	return collapse(exprs, func(e []Expression) Expression { return And{Exprs: e} }), nil
}

func parsePart(part string) (Expression, error) {
	if part == "" {
		return nil, malformed("empty selector part", part)
	}
	if strings.HasPrefix(part, "+") {
		return nil, malformed("upstream expansion is not supported", part)
	}

	body := strings.TrimSuffix(part, "+")
	downstream := body != part
	if body == "" || strings.HasSuffix(body, "+") {
		return nil, malformed("invalid downstream modifier", part)
	}

	method, value, hasMethod := strings.Cut(body, ":")
	if !hasMethod {
		method, value = "name", body
	}
	if value == "" {
		return nil, malformed("selector method without value", part)
	}

	var expr Expression
	switch method {
	case "state":
		if value != "modified" {
			return nil, malformed("unknown state selector", part)
		}
		// The state selector expands itself
		return StateModified{IncludeDownstream: downstream}, nil
	case "resource_type":
		rt, ok := ParseResourceType(value)
		if !ok {
			return nil, malformed("unknown resource type", part)
		}
		expr = AllOfType{Types: NewTypeSet(rt)}
	case "name":
		if _, err := glob.Compile(value); err != nil {
			return nil, malformed("invalid name pattern", part)
		}
		expr = ByName{Patterns: []string{value}}
	case "path":
		if _, err := glob.Compile(value, '/'); err != nil {
			return nil, malformed("invalid path pattern", part)
		}
		expr = ByPath{Patterns: []string{value}}
	default:
		return nil, malformed(fmt.Sprintf("unknown selector method %q", method), part)
	}

	if downstream {
		return Downstream{Expr: expr}, nil
	}
	return expr, nil
}

func malformed(msg, pattern string) error {
	return errdefs.NewSelectionError(msg, nil).
		WithCode(errdefs.CodeMalformedExpression).
		WithResource(pattern)
}

// Evaluation

func (Everything) eval(ev *evaluation) (map[string]struct{}, error) {
	return ev.all(), nil
}

func (e AllOfType) eval(ev *evaluation) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	for _, r := range ev.graph.Resources() {
		if e.Types.Has(r.Type) {
			out[r.UniqueID] = struct{}{}
		}
	}
	return out, nil
}

func (e ByName) eval(ev *evaluation) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	for _, pattern := range e.Patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, malformed("invalid name pattern", pattern)
		}

		matched := make([]string, 0)
		for _, r := range ev.graph.Resources() {
			if r.UniqueID == pattern || g.Match(r.Name) {
				matched = append(matched, r.UniqueID)
			}
		}

		if err := ev.resolve(pattern, matched, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (e ByPath) eval(ev *evaluation) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	for _, pattern := range e.Patterns {
		match, err := pathMatcher(pattern)
		if err != nil {
			return nil, err
		}

		matched := make([]string, 0)
		for _, r := range ev.graph.Resources() {
			if match(r.OriginalFilePath) {
				matched = append(matched, r.UniqueID)
			}
		}

		// Several files under one directory are not ambiguous
		if len(matched) == 0 {
			ev.unmatched(pattern)
		}
		for _, id := range matched {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

func pathMatcher(pattern string) (func(string) bool, error) {
	if !strings.ContainsAny(pattern, "*?[{") {
		prefix := strings.TrimSuffix(pattern, "/")
		return func(p string) bool {
			return p == prefix || strings.HasPrefix(p, prefix+"/")
		}, nil
	}

	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, malformed("invalid path pattern", pattern)
	}
	return g.Match, nil
}

func (e StateModified) eval(ev *evaluation) (map[string]struct{}, error) {
	diff, err := ev.stateDiff()
	if err != nil {
		return nil, err
	}

	changed := diff.Changed()
	if !e.IncludeDownstream {
		return changed, nil
	}
	return ev.graph.Downstream(changed), nil
}

func (e Downstream) eval(ev *evaluation) (map[string]struct{}, error) {
	seeds, err := e.Expr.eval(ev)
	if err != nil {
		return nil, err
	}
	return ev.graph.Downstream(seeds), nil
}

func (e And) eval(ev *evaluation) (map[string]struct{}, error) {
	if len(e.Exprs) == 0 {
		return ev.all(), nil
	}

	result, err := e.Exprs[0].eval(ev)
	if err != nil {
		return nil, err
	}
	for _, sub := range e.Exprs[1:] {
		set, err := sub.eval(ev)
		if err != nil {
			return nil, err
		}
		for id := range result {
			if _, ok := set[id]; !ok {
				delete(result, id)
			}
		}
	}
	return result, nil
}

func (e Or) eval(ev *evaluation) (map[string]struct{}, error) {
	result := make(map[string]struct{})
	for _, sub := range e.Exprs {
		set, err := sub.eval(ev)
		if err != nil {
			return nil, err
		}
		for id := range set {
			result[id] = struct{}{}
		}
	}
	return result, nil
}
