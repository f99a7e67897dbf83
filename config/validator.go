package config

import (
	"sync"

	"github.com/grovetools/pgpulse/schema"
)

var (
	validatorOnce sync.Once
	sharedSchema  *schema.Validator
	validatorErr  error
)

// SchemaValidator validates configuration against the schema reflected from Config.
type SchemaValidator struct {
	validator *schema.Validator
}

// NewSchemaValidator returns a validator for the Config schema. The schema is
// generated and compiled once per process.
func NewSchemaValidator() (*SchemaValidator, error) {
	validatorOnce.Do(func() {
		data, err := GenerateSchema()
		if err != nil {
			validatorErr = err
			return
		}
		sharedSchema, validatorErr = schema.NewValidator("pgpulse.schema.json", data)
	})
	if validatorErr != nil {
		return nil, validatorErr
	}
	return &SchemaValidator{validator: sharedSchema}, nil
}

// Validate validates configuration data against the schema.
func (v *SchemaValidator) Validate(configData interface{}) error {
	return v.validator.Validate(configData)
}
