package schema

import (
	"slices"
	"sort"
)

// Schema maps field names to their expected types.
type Schema map[string]Type

// Fields returns the field names in sorted order.
func (s Schema) Fields() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate checks data against schema and reports every failure.
// Fields not declared in schema are ignored.
func Validate(schema Schema, data map[string]any) error {
	if len(schema) == 0 {
		return nil
	}

	var errs []error
	for _, field := range schema.Fields() {
		typ := schema[field]
		value, exists := data[field]
		if !exists || value == nil {
			if !IsOptional(typ) {
				errs = append(errs, &ValidationError{Key: field, Reason: "required"})
			}
			continue
		}
		if err := typ.Validate(value); err != nil {
			errs = append(errs, &ValidationError{Key: field, Reason: err.Error(), Value: value})
		}
	}

	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}

// JSONSchema exports schema as a JSON Schema object definition.
func JSONSchema(schema Schema) map[string]any {
	props := make(map[string]any, len(schema))
	required := []string{}
	for _, field := range schema.Fields() {
		typ := schema[field]
		props[field] = typ.JSONSchema()
		if !IsOptional(typ) {
			required = append(required, field)
		}
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             slices.Clip(required),
		"additionalProperties": false,
	}
}
