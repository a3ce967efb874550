package announce

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// statusSchema is the JSON Schema every status payload must satisfy.
//
// The services map is only constrained when the device announces itself
// connected; a disconnect announcement may carry anything (or nothing) there
// and it is ignored.
const statusSchema = `{
	"type": "object",
	"required": ["clientid", "connected"],
	"properties": {
		"clientid": {"type": "string", "minLength": 1},
		"connected": {"enum": [0, 1]},
		"version": {"type": "string"}
	},
	"if": {
		"properties": {"connected": {"const": 1}}
	},
	"then": {
		"required": ["services"],
		"properties": {
			"services": {
				"type": "object",
				"minProperties": 1,
				"additionalProperties": {"type": "string", "minLength": 1}
			}
		}
	}
}`

// compileStatusSchema compiles the embedded announcement schema.
func compileStatusSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(statusSchema))
	if err != nil {
		return nil, fmt.Errorf("parsing status schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("status.json", doc); err != nil {
		return nil, fmt.Errorf("adding status schema resource: %w", err)
	}
	compiled, err := c.Compile("status.json")
	if err != nil {
		return nil, fmt.Errorf("compiling status schema: %w", err)
	}
	return compiled, nil
}
