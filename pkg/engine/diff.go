package engine

import (
	"sort"
)

// DiffStatus classifies one node of a state diff.
type DiffStatus string

const (
	// DiffAdded marks a node present only in the altered snapshot.
	DiffAdded DiffStatus = "added"

	// DiffRemoved marks a node present only in the base snapshot.
	DiffRemoved DiffStatus = "removed"

	// DiffModified marks a node present in both snapshots whose content,
	// macros or declared dependencies changed.
	DiffModified DiffStatus = "modified"

	// DiffUnchanged marks a node present and identical in both snapshots.
	DiffUnchanged DiffStatus = "unchanged"
)

// Reasons a node is classified modified.
const (
	ReasonBody      = "body"
	ReasonMacros    = "macros"
	ReasonDependsOn = "depends_on"
)

// FingerprintComparator reports whether two fingerprints denote the same content.
type FingerprintComparator func(base, altered string) bool

// ExactFingerprints compares fingerprints byte for byte.
func ExactFingerprints(base, altered string) bool {
	return base == altered
}

// NodeDiff is the classification of one node.
type NodeDiff struct {
	// UniqueID is the node's unique id.
	UniqueID string `json:"unique_id"`

	// Name is the node name, from the altered snapshot when present.
	Name string `json:"name"`

	// Type is the node type.
	Type ResourceType `json:"resource_type"`

	// Status is the classification.
	Status DiffStatus `json:"status"`

	// Reasons lists why a modified node is modified.
	Reasons []string `json:"reasons,omitempty"`
}

// DiffResult is the per-node classification of altered against base.
// Entries list altered nodes in altered insertion order, followed by removed
// nodes in base insertion order.
type DiffResult struct {
	// Entries lists every classified node.
	Entries []NodeDiff `json:"entries"`

	// Summary provides statistics about the diff.
	Summary DiffSummary `json:"summary"`

	index map[string]int
}

// DiffSummary provides statistics about a diff.
type DiffSummary struct {
	// Total is the number of classified nodes.
	Total int `json:"total"`

	Added     int `json:"added"`
	Removed   int `json:"removed"`
	Modified  int `json:"modified"`
	Unchanged int `json:"unchanged"`
}

// Counts returns the summary keyed by status.
func (s DiffSummary) Counts() map[string]int {
	return map[string]int{
		string(DiffAdded):     s.Added,
		string(DiffRemoved):   s.Removed,
		string(DiffModified):  s.Modified,
		string(DiffUnchanged): s.Unchanged,
	}
}

// Status returns the classification of uniqueID.
func (d *DiffResult) Status(uniqueID string) (DiffStatus, bool) {
	i, ok := d.index[uniqueID]
	if !ok {
		return "", false
	}
	return d.Entries[i].Status, true
}

// Entry returns the full classification of uniqueID.
func (d *DiffResult) Entry(uniqueID string) (NodeDiff, bool) {
	i, ok := d.index[uniqueID]
	if !ok {
		return NodeDiff{}, false
	}
	return d.Entries[i], true
}

// IDs returns the ids with any of the given statuses, in entry order.
func (d *DiffResult) IDs(statuses ...DiffStatus) []string {
	want := make(map[DiffStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}

	out := make([]string, 0)
	for _, e := range d.Entries {
		if want[e.Status] {
			out = append(out, e.UniqueID)
		}
	}
	return out
}

// Changed returns the ids of added and modified nodes as a set.
func (d *DiffResult) Changed() map[string]struct{} {
	out := make(map[string]struct{})
	for _, id := range d.IDs(DiffAdded, DiffModified) {
		out[id] = struct{}{}
	}
	return out
}

// DiffEngine classifies nodes between two graph snapshots.
type DiffEngine struct {
	compare FingerprintComparator
}

// DiffOption configures a DiffEngine.
type DiffOption func(*DiffEngine)

// WithComparator replaces the fingerprint comparison.
func WithComparator(c FingerprintComparator) DiffOption {
	return func(e *DiffEngine) {
		e.compare = c
	}
}

// NewDiffEngine creates a diff engine. Fingerprints are compared exactly
// unless WithComparator is given.
func NewDiffEngine(opts ...DiffOption) *DiffEngine {
	e := &DiffEngine{compare: ExactFingerprints}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Diff compares altered against base. The result depends only on the two
// graphs: Diff(a, b) and Diff(b, a) mirror each other.
func (e *DiffEngine) Diff(base, altered *ResourceGraph) *DiffResult {
	result := &DiffResult{
		Entries: make([]NodeDiff, 0, altered.Len()),
		index:   make(map[string]int),
	}

	for _, r := range altered.Resources() {
		entry := NodeDiff{
			UniqueID: r.UniqueID,
			Name:     r.Name,
			Type:     r.Type,
		}

		prev, ok := base.Resource(r.UniqueID)
		if !ok {
			entry.Status = DiffAdded
		} else if reasons := e.compareResources(prev, r); len(reasons) > 0 {
			entry.Status = DiffModified
			entry.Reasons = reasons
		} else {
			entry.Status = DiffUnchanged
		}

		result.add(entry)
	}

	for _, r := range base.Resources() {
		if _, ok := altered.Resource(r.UniqueID); ok {
			continue
		}
		result.add(NodeDiff{
			UniqueID: r.UniqueID,
			Name:     r.Name,
			Type:     r.Type,
			Status:   DiffRemoved,
		})
	}

	return result
}

// compareResources returns why altered differs from base, or nothing.
func (e *DiffEngine) compareResources(base, altered *Resource) []string {
	var reasons []string

	if !e.compare(base.Fingerprint, altered.Fingerprint) {
		reasons = append(reasons, ReasonBody)
	}

	macrosChanged := !sameSet(base.MacroDependsOn, altered.MacroDependsOn)
	if !macrosChanged {
		for id, fp := range altered.MacroFingerprints {
			if !e.compare(base.MacroFingerprints[id], fp) {
				macrosChanged = true
				break
			}
		}
	}
	if macrosChanged {
		reasons = append(reasons, ReasonMacros)
	}

	if !sameSet(base.DependsOn, altered.DependsOn) {
		reasons = append(reasons, ReasonDependsOn)
	}

	return reasons
}

func (d *DiffResult) add(entry NodeDiff) {
	d.index[entry.UniqueID] = len(d.Entries)
	d.Entries = append(d.Entries, entry)

	d.Summary.Total++
	switch entry.Status {
	case DiffAdded:
		d.Summary.Added++
	case DiffRemoved:
		d.Summary.Removed++
	case DiffModified:
		d.Summary.Modified++
	case DiffUnchanged:
		d.Summary.Unchanged++
	}
}

// sameSet reports whether a and b hold the same ids, ignoring order.
func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
