package manifest

// Section names of the resource-bearing parts of a manifest, in the order
// their entries contribute to insertion order.
const (
	SectionNodes   = "nodes"
	SectionSources = "sources"
	SectionMetrics = "metrics"
)

var resourceSections = []string{SectionNodes, SectionSources, SectionMetrics}

// Document is a manifest upgraded to the codec's canonical generation.
// It is immutable once Load returns.
type Document struct {
	// Generation is the canonical generation the document was upgraded to.
	Generation Generation

	// SourceGeneration is the generation the input declared.
	SourceGeneration Generation

	// SchemaVersion is the canonical schema version string.
	SchemaVersion string

	// Metadata is the decoded metadata block.
	Metadata Metadata

	// Nodes holds every resource entry in insertion order: nodes, then
	// sources, then metrics.
	Nodes []*Node

	// Macros maps macro unique ids to their definitions.
	Macros map[string]*Macro

	// Upgrades lists the upgrade steps applied, in order.
	Upgrades []string

	index map[string]*Node
}

// Metadata is the manifest metadata block.
type Metadata struct {
	SchemaVersion string `mapstructure:"dbt_schema_version"`
	DbtVersion    string `mapstructure:"dbt_version"`
	GeneratedAt   string `mapstructure:"generated_at"`
	InvocationID  string `mapstructure:"invocation_id"`
	ProjectID     string `mapstructure:"project_id"`
	AdapterType   string `mapstructure:"adapter_type"`
}

// Node is one resource entry of a manifest.
type Node struct {
	UniqueID         string                 `mapstructure:"unique_id"`
	Name             string                 `mapstructure:"name"`
	ResourceType     string                 `mapstructure:"resource_type"`
	PackageName      string                 `mapstructure:"package_name"`
	Path             string                 `mapstructure:"path"`
	OriginalFilePath string                 `mapstructure:"original_file_path"`
	DependsOn        DependsOn              `mapstructure:"depends_on"`
	Checksum         Checksum               `mapstructure:"checksum"`
	RawCode          string                 `mapstructure:"raw_code"`
	Language         string                 `mapstructure:"language"`
	Access           string                 `mapstructure:"access"`
	Config           map[string]interface{} `mapstructure:"config"`

	// Metric-only fields.
	CalculationMethod string `mapstructure:"calculation_method"`
	Expression        string `mapstructure:"expression"`

	// Section is the manifest section the node was read from.
	Section string `mapstructure:"-"`

	// Fingerprint is the node's content fingerprint: the declared checksum,
	// or a digest of the section's content fields when no checksum is declared.
	Fingerprint string `mapstructure:"-"`
}

// DependsOn lists the declared dependencies of a node.
type DependsOn struct {
	Nodes  []string `mapstructure:"nodes"`
	Macros []string `mapstructure:"macros"`
}

// Checksum is the declared content checksum of a node.
type Checksum struct {
	Name     string `mapstructure:"name"`
	Checksum string `mapstructure:"checksum"`
}

// Macro is a macro definition. Macros are not graph resources; their
// fingerprints feed state comparison of the nodes that call them.
type Macro struct {
	UniqueID    string `mapstructure:"unique_id"`
	Name        string `mapstructure:"name"`
	PackageName string `mapstructure:"package_name"`
	MacroSQL    string `mapstructure:"macro_sql"`

	Fingerprint string `mapstructure:"-"`
}

// Lookup returns the node with the given unique id.
func (d *Document) Lookup(uniqueID string) (*Node, bool) {
	n, ok := d.index[uniqueID]
	return n, ok
}

// Len returns the number of resource entries.
func (d *Document) Len() int {
	return len(d.Nodes)
}
