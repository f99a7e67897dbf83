package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// GenerateSchema reflects the JSON Schema for pgpulse.yml from the Config type.
func GenerateSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		// Expand struct references instead of using $ref for a flat schema.
		ExpandedStruct: true,
		DoNotReference: true,
	}

	schema := r.Reflect(&Config{})
	schema.Title = "pgpulse configuration"
	schema.Description = "Schema for pgpulse.yml"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return json.MarshalIndent(schema, "", "  ")
}
