package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/mitchellh/mapstructure"
	"github.com/openfroyo/manifold/pkg/errdefs"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Codec parses raw manifests, detects their generation and upgrades them to
// one canonical generation.
type Codec struct {
	canonical Generation
	schema    *schemaValidator
	logger    zerolog.Logger
}

// Option configures a Codec.
type Option func(*Codec)

// WithCanonicalGeneration sets the generation documents are upgraded to.
// It defaults to LatestGeneration.
func WithCanonicalGeneration(g Generation) Option {
	return func(c *Codec) {
		c.canonical = g
	}
}

// WithLogger sets the logger used to report upgrade steps.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Codec) {
		c.logger = logger.With().Str("component", "manifest-codec").Logger()
	}
}

// NewCodec creates a codec.
func NewCodec(opts ...Option) (*Codec, error) {
	c := &Codec{
		canonical: LatestGeneration(),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if _, ok := ReleaseFor(c.canonical); !ok {
		return nil, fmt.Errorf("canonical generation %s is not in the generation table", c.canonical)
	}

	schema, err := newSchemaValidator()
	if err != nil {
		return nil, err
	}
	c.schema = schema

	return c, nil
}

// Canonical returns the generation this codec upgrades to.
func (c *Codec) Canonical() Generation {
	return c.canonical
}

var (
	defaultCodec     *Codec
	defaultCodecErr  error
	defaultCodecOnce sync.Once
)

// Load parses raw with a codec targeting LatestGeneration.
func Load(raw []byte) (*Document, error) {
	defaultCodecOnce.Do(func() {
		defaultCodec, defaultCodecErr = NewCodec()
	})
	if defaultCodecErr != nil {
		return nil, defaultCodecErr
	}
	return defaultCodec.Load(raw)
}

// LoadFile reads and parses the manifest at path.
func (c *Codec) LoadFile(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	return c.Load(raw)
}

// Load parses raw, upgrades it to the canonical generation and decodes it.
func (c *Codec) Load(raw []byte) (*Document, error) {
	rd, err := parseRaw(raw)
	if err != nil {
		return nil, err
	}

	version := rd.schemaVersion()
	if version == "" {
		return nil, errdefs.NewSchemaError("manifest doesn't have a schema version", nil).
			WithCode(errdefs.CodeMissingVersion)
	}

	gen, ok := parseGeneration(version)
	if !ok {
		return nil, errdefs.NewSchemaError("unsupported manifest schema version", nil).
			WithCode(errdefs.CodeUnsupportedVersion).
			WithDetail("found", version)
	}
	if gen > c.canonical {
		return nil, errdefs.NewSchemaError(
			fmt.Sprintf("manifest schema %s is newer than supported %s", gen, c.canonical),
			nil,
		).WithCode(errdefs.CodeIncompatibleVersion).
			WithDetail("expected", c.canonical.SchemaURL()).
			WithDetail("found", version)
	}
	if gen < OldestGeneration() {
		return nil, errdefs.NewSchemaError(
			fmt.Sprintf("manifest schema %s predates the oldest supported %s", gen, OldestGeneration()),
			nil,
		).WithCode(errdefs.CodeUnsupportedVersion).
			WithDetail("found", version)
	}

	// Entries keyed by id but missing the field get it from the key.
	rd.eachEntry(func(_ string, e *rawEntry) {
		if _, ok := e.value["unique_id"]; !ok {
			e.value["unique_id"] = e.key
		}
	})

	var applied []string
	for _, step := range stepsBetween(gen, c.canonical) {
		rd.eachEntry(func(_ string, e *rawEntry) {
			step.apply(e.value)
		})
		applied = append(applied, step.name)
		c.logger.Debug().
			Str("step", step.name).
			Int("from", int(step.from)).
			Msg("Applied manifest upgrade step")
	}

	delete(rd.metadata, "schemaVersion")
	rd.metadata["dbt_schema_version"] = c.canonical.SchemaURL()

	if violations := c.schema.validate(rd.toMap()); len(violations) > 0 {
		return nil, errdefs.NewSchemaError("manifest does not match the canonical schema", nil).
			WithCode(errdefs.CodeInvalidDocument).
			WithDetail("violations", violations)
	}

	doc, err := rd.decode()
	if err != nil {
		return nil, err
	}
	doc.Generation = c.canonical
	doc.SourceGeneration = gen
	doc.SchemaVersion = c.canonical.SchemaURL()
	doc.Upgrades = applied

	return doc, nil
}

// rawEntry is one keyed entry of a section, in document order.
type rawEntry struct {
	key   string
	value map[string]interface{}
}

// rawDocument is the generic, order-preserving form of a manifest that
// upgrade steps operate on.
type rawDocument struct {
	metadata map[string]interface{}
	sections map[string][]*rawEntry
	macros   []*rawEntry
}

// parseRaw decodes raw JSON or YAML keeping the key order of the sections.
func parseRaw(raw []byte) (*rawDocument, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, errdefs.NewSchemaError("failed to parse manifest", err).
			WithCode(errdefs.CodeInvalidDocument)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return nil, errdefs.NewSchemaError("manifest is not a mapping", nil).
			WithCode(errdefs.CodeInvalidDocument)
	}

	rd := &rawDocument{
		metadata: make(map[string]interface{}),
		sections: make(map[string][]*rawEntry),
	}

	top := root.Content[0]
	for i := 0; i+1 < len(top.Content); i += 2 {
		key, val := top.Content[i].Value, top.Content[i+1]

		switch key {
		case "metadata":
			if err := val.Decode(&rd.metadata); err != nil {
				return nil, errdefs.NewSchemaError("failed to decode manifest metadata", err).
					WithCode(errdefs.CodeInvalidDocument)
			}
			if rd.metadata == nil {
				rd.metadata = make(map[string]interface{})
			}
		case SectionNodes, SectionSources, SectionMetrics:
			entries, err := decodeEntries(key, val)
			if err != nil {
				return nil, err
			}
			rd.sections[key] = entries
		case "macros":
			entries, err := decodeEntries(key, val)
			if err != nil {
				return nil, err
			}
			rd.macros = entries
		}
	}

	return rd, nil
}

// decodeEntries decodes a mapping of id to object, in document order.
func decodeEntries(section string, val *yaml.Node) ([]*rawEntry, error) {
	if val.Kind == yaml.ScalarNode && val.Tag == "!!null" {
		return nil, nil
	}
	if val.Kind != yaml.MappingNode {
		return nil, errdefs.NewSchemaError(fmt.Sprintf("manifest section %q is not a mapping", section), nil).
			WithCode(errdefs.CodeInvalidDocument)
	}

	entries := make([]*rawEntry, 0, len(val.Content)/2)
	for i := 0; i+1 < len(val.Content); i += 2 {
		key := val.Content[i].Value
		var body map[string]interface{}
		if err := val.Content[i+1].Decode(&body); err != nil {
			return nil, errdefs.NewSchemaError(fmt.Sprintf("failed to decode %s entry", section), err).
				WithCode(errdefs.CodeInvalidDocument).
				WithResource(key)
		}
		if body == nil {
			body = make(map[string]interface{})
		}
		entries = append(entries, &rawEntry{key: key, value: body})
	}
	return entries, nil
}

func (rd *rawDocument) schemaVersion() string {
	for _, key := range []string{"dbt_schema_version", "schemaVersion"} {
		if v, ok := rd.metadata[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// eachEntry visits every resource entry in insertion order.
func (rd *rawDocument) eachEntry(fn func(section string, e *rawEntry)) {
	for _, section := range resourceSections {
		for _, e := range rd.sections[section] {
			fn(section, e)
		}
	}
}

// toMap rebuilds a generic document for schema validation.
func (rd *rawDocument) toMap() map[string]interface{} {
	out := map[string]interface{}{
		"metadata": rd.metadata,
	}
	for _, section := range resourceSections {
		entries, ok := rd.sections[section]
		if !ok && section != SectionNodes {
			continue
		}
		m := make(map[string]interface{}, len(entries))
		for _, e := range entries {
			m[e.key] = e.value
		}
		out[section] = m
	}
	if len(rd.macros) > 0 {
		m := make(map[string]interface{}, len(rd.macros))
		for _, e := range rd.macros {
			m[e.key] = e.value
		}
		out["macros"] = m
	}
	return out
}

// decode converts the upgraded generic form into a Document.
func (rd *rawDocument) decode() (*Document, error) {
	doc := &Document{
		Macros: make(map[string]*Macro, len(rd.macros)),
		index:  make(map[string]*Node),
	}

	if err := decodeInto(rd.metadata, &doc.Metadata); err != nil {
		return nil, errdefs.NewSchemaError("failed to decode manifest metadata", err).
			WithCode(errdefs.CodeInvalidDocument)
	}

	var decodeErr error
	rd.eachEntry(func(section string, e *rawEntry) {
		if decodeErr != nil {
			return
		}
		node := &Node{}
		if err := decodeInto(e.value, node); err != nil {
			decodeErr = errdefs.NewSchemaError("failed to decode manifest node", err).
				WithCode(errdefs.CodeInvalidDocument).
				WithResource(e.key)
			return
		}
		node.Section = section
		node.Fingerprint = node.Checksum.Checksum
		if node.Fingerprint == "" {
			node.Fingerprint = digest(section, e.value)
		}
		doc.Nodes = append(doc.Nodes, node)
		if _, exists := doc.index[node.UniqueID]; !exists {
			doc.index[node.UniqueID] = node
		}
	})
	if decodeErr != nil {
		return nil, decodeErr
	}

	for _, e := range rd.macros {
		macro := &Macro{}
		if err := decodeInto(e.value, macro); err != nil {
			return nil, errdefs.NewSchemaError("failed to decode manifest macro", err).
				WithCode(errdefs.CodeInvalidDocument).
				WithResource(e.key)
		}
		if macro.UniqueID == "" {
			macro.UniqueID = e.key
		}
		macro.Fingerprint = sha256Hex([]byte(macro.MacroSQL))
		doc.Macros[macro.UniqueID] = macro
	}

	return doc, nil
}

func decodeInto(input interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// contentFields are the fields whose values define a checksum-less entry,
// per section. Fields that only exist in some generations, or that upgrades
// backfill, are left out so that an upgraded entry and the same entry
// written natively share a fingerprint.
var contentFields = map[string][]string{
	"nodes": {
		"fqn", "config", "language", "raw_code", "test_metadata",
	},
	"sources": {
		"fqn", "config", "database", "schema", "identifier",
		"quoting", "loaded_at_field", "freshness", "external",
	},
	"metrics": {
		"fqn", "config", "label", "calculation_method", "expression",
		"filters", "timestamp", "time_grains", "dimensions", "window",
	},
}

// digest fingerprints an entry body that declares no checksum.
func digest(section string, body map[string]interface{}) string {
	stable := make(map[string]interface{}, len(contentFields[section]))
	for _, k := range contentFields[section] {
		if v, ok := body[k]; ok {
			stable[k] = v
		}
	}
	data, err := json.Marshal(stable)
	if err != nil {
		data = []byte(fmt.Sprint(stable))
	}
	return sha256Hex(data)
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
