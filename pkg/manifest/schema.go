package manifest

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// schemaValidator checks canonical documents against the envelope schema.
type schemaValidator struct {
	ctx      *cue.Context
	manifest cue.Value
}

func newSchemaValidator() (*schemaValidator, error) {
	ctx := cuecontext.New()
	val := ctx.CompileString(canonicalSchema, cue.Filename("manifest.cue"))
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile manifest schema: %w", err)
	}

	def := val.LookupPath(cue.ParsePath("#Manifest"))
	if !def.Exists() {
		return nil, fmt.Errorf("manifest schema has no #Manifest definition")
	}

	return &schemaValidator{ctx: ctx, manifest: def}, nil
}

// validate unifies data with #Manifest and returns one message per violation.
func (sv *schemaValidator) validate(data map[string]interface{}) []string {
	dataVal := sv.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return []string{fmt.Sprintf("failed to encode document: %v", err)}
	}

	unified := sv.manifest.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		var messages []string
		for _, e := range cueerrors.Errors(err) {
			messages = append(messages, cueerrors.Details(e, nil))
		}
		return messages
	}

	return nil
}

// canonicalSchema describes the envelope every canonical document must satisfy.
// Node bodies stay open; only the fields the graph depends on are constrained.
const canonicalSchema = `
#Node: {
	unique_id:     string & !=""
	name:          string
	resource_type: string & !=""
	depends_on?: {
		nodes?: [...string]
		macros?: [...string]
		...
	}
	checksum?: {
		name:     string
		checksum: string
		...
	}
	original_file_path?: string | null
	...
}

#Macro: {
	unique_id?: string
	name?:      string
	...
}

#Manifest: {
	metadata: {
		dbt_schema_version: string & =~"v[0-9]+(\\.json)?$"
		...
	}
	nodes: [string]: #Node
	sources?: [string]: #Node
	metrics?: [string]: #Node
	macros?: [string]: #Macro
	...
}
`
