package policy

import (
	"fmt"
	"time"

	"github.com/openfroyo/manifold/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for changes that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for changes that should block a deploy.
	SeverityError Severity = "error"
)

func (s Severity) rank() int {
	switch s {
	case SeverityError:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// FailOn is the lowest severity that fails the gate.
type FailOn string

const (
	FailOnError   FailOn = "error"
	FailOnWarning FailOn = "warning"
	FailOnNever   FailOn = "never"
)

// ParseFailOn validates a fail_on setting. Empty means FailOnError.
func ParseFailOn(s string) (FailOn, error) {
	switch f := FailOn(s); f {
	case "":
		return FailOnError, nil
	case FailOnError, FailOnWarning, FailOnNever:
		return f, nil
	default:
		return "", fmt.Errorf("unknown fail_on %q (want error, warning or never)", s)
	}
}

// Blocks reports whether a violation of severity sev fails the gate.
func (f FailOn) Blocks(sev Severity) bool {
	switch f {
	case FailOnNever:
		return false
	case FailOnWarning:
		return sev.rank() >= SeverityWarning.rank()
	default:
		return sev.rank() >= SeverityError.rank()
	}
}

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. Violations are read from the
	// deny set of its package.
	Rego string `json:"rego"`

	// Severity is the default severity for violations that do not carry one.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Source is the file the policy was loaded from; empty for built-ins.
	Source string `json:"source,omitempty"`
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Resource is the unique id the violation is about.
	Resource string `json:"resource,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`

	// Details contains additional violation details.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Result represents the result of evaluating every enabled policy.
type Result struct {
	// Allowed is false when a violation meets the fail_on threshold.
	Allowed bool `json:"allowed"`

	// Violations lists all policy violations, in policy name order.
	Violations []Violation `json:"violations"`

	// Warnings lists policies that failed to evaluate.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Count returns the number of violations with the given severity.
func (r *Result) Count(sev Severity) int {
	n := 0
	for i := range r.Violations {
		if r.Violations[i].Severity == sev {
			n++
		}
	}
	return n
}

// Input is the document policies see as input.
type Input struct {
	// Summary holds the diff counts.
	Summary engine.DiffSummary `json:"summary"`

	// Changes lists every node that is not unchanged.
	Changes []Change `json:"changes"`
}

// Change is one added, removed or modified node.
type Change struct {
	UniqueID     string   `json:"unique_id"`
	Name         string   `json:"name"`
	ResourceType string   `json:"resource_type"`
	Status       string   `json:"status"`
	Reasons      []string `json:"reasons"`
	Package      string   `json:"package_name"`
	Path         string   `json:"original_file_path"`
	DependsOn    []string `json:"depends_on"`

	// BaseDependents lists the nodes that depended on this one in the base
	// snapshot and were not themselves removed.
	BaseDependents []string `json:"base_dependents"`
}

// NewInput builds the policy input from a comparison.
func NewInput(cmp *engine.Comparison) *Input {
	in := &Input{
		Summary: cmp.Result.Summary,
		Changes: []Change{},
	}

	for _, entry := range cmp.Result.Entries {
		if entry.Status == engine.DiffUnchanged {
			continue
		}

		c := Change{
			UniqueID:       entry.UniqueID,
			Name:           entry.Name,
			ResourceType:   string(entry.Type),
			Status:         string(entry.Status),
			Reasons:        entry.Reasons,
			DependsOn:      []string{},
			BaseDependents: []string{},
		}
		if c.Reasons == nil {
			c.Reasons = []string{}
		}

		res, ok := cmp.Altered.Resource(entry.UniqueID)
		if !ok {
			res, _ = cmp.Base.Resource(entry.UniqueID)
		}
		if res != nil {
			c.Package = res.Package
			c.Path = res.OriginalFilePath
			c.DependsOn = append(c.DependsOn, res.DependsOn...)
		}

		if entry.Status == engine.DiffRemoved {
			for _, dep := range cmp.Base.Dependents(entry.UniqueID) {
				if status, _ := cmp.Result.Status(dep); status != engine.DiffRemoved {
					c.BaseDependents = append(c.BaseDependents, dep)
				}
			}
		}

		in.Changes = append(in.Changes, c)
	}

	return in
}
