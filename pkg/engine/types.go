package engine

// ResourceType is the kind of a graph resource.
type ResourceType string

const (
	// ResourceModel is a transformation producing a relation.
	ResourceModel ResourceType = "model"

	// ResourceTest is a data test attached to other resources.
	ResourceTest ResourceType = "test"

	// ResourceSeed is a static file loaded as a relation.
	ResourceSeed ResourceType = "seed"

	// ResourceSource is an upstream relation declared by the project.
	ResourceSource ResourceType = "source"

	// ResourceMetric is a metric defined over models.
	ResourceMetric ResourceType = "metric"
)

// AllResourceTypes returns every graph resource type.
func AllResourceTypes() []ResourceType {
	return []ResourceType{ResourceModel, ResourceTest, ResourceSeed, ResourceSource, ResourceMetric}
}

// ParseResourceType maps a manifest resource_type to a ResourceType.
// Types that are not graph resources (analysis, operation, exposure, ...)
// report false.
func ParseResourceType(s string) (ResourceType, bool) {
	switch t := ResourceType(s); t {
	case ResourceModel, ResourceTest, ResourceSeed, ResourceSource, ResourceMetric:
		return t, true
	default:
		return "", false
	}
}

// Resource is one node of the resource graph. It is immutable once the graph
// is built.
type Resource struct {
	// UniqueID is globally unique and stable across snapshots.
	UniqueID string `json:"unique_id"`

	// Name is the resource name selectors match against.
	Name string `json:"name"`

	// Type is the resource type.
	Type ResourceType `json:"resource_type"`

	// Package is the package that defines the resource.
	Package string `json:"package_name,omitempty"`

	// Path is the resource path relative to its resource directory.
	Path string `json:"path,omitempty"`

	// OriginalFilePath is the file the resource is defined in.
	OriginalFilePath string `json:"original_file_path"`

	// DependsOn lists the unique ids of the resources this one depends on,
	// in declaration order.
	DependsOn []string `json:"depends_on,omitempty"`

	// MacroDependsOn lists the macros this resource calls.
	MacroDependsOn []string `json:"macro_depends_on,omitempty"`

	// Fingerprint identifies the resource content.
	Fingerprint string `json:"fingerprint"`

	// MacroFingerprints maps each called macro to its fingerprint. Macros
	// absent from the manifest map to the empty string.
	MacroFingerprints map[string]string `json:"-"`
}

// TypeSet is a set of resource types. A nil TypeSet means no filter; an
// empty non-nil one matches nothing.
type TypeSet map[ResourceType]struct{}

// NewTypeSet creates a set holding types.
func NewTypeSet(types ...ResourceType) TypeSet {
	s := make(TypeSet, len(types))
	for _, t := range types {
		s[t] = struct{}{}
	}
	return s
}

// Has reports whether t is in the set.
func (s TypeSet) Has(t ResourceType) bool {
	_, ok := s[t]
	return ok
}
