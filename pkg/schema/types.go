package schema

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// Type validates a value and describes itself as JSON Schema.
type Type interface {
	// Name returns the type string (e.g. "string", "[int]").
	Name() string
	// Validate checks if a value conforms to this type.
	Validate(value any) error
	// JSONSchema returns the JSON Schema fragment for this type.
	JSONSchema() map[string]any
}

type stringType struct{}

func (stringType) Name() string { return "string" }

func (stringType) Validate(value any) error {
	if _, ok := value.(string); !ok {
		return fmt.Errorf("expected string, got %T", value)
	}
	return nil
}

func (stringType) JSONSchema() map[string]any { return map[string]any{"type": "string"} }

type intType struct{}

func (intType) Name() string { return "int" }

func (intType) Validate(value any) error {
	switch v := value.(type) {
	case int, int8, int16, int32, int64:
		return nil
	case float64:
		// JSON numbers decode as float64
		if v == float64(int64(v)) {
			return nil
		}
		return fmt.Errorf("expected int, got float (not a whole number)")
	default:
		return fmt.Errorf("expected int, got %T", value)
	}
}

func (intType) JSONSchema() map[string]any { return map[string]any{"type": "integer"} }

type floatType struct{}

func (floatType) Name() string { return "float" }

func (floatType) Validate(value any) error {
	switch value.(type) {
	case float32, float64, int, int8, int16, int32, int64:
		return nil
	default:
		return fmt.Errorf("expected float, got %T", value)
	}
}

func (floatType) JSONSchema() map[string]any { return map[string]any{"type": "number"} }

type boolType struct{}

func (boolType) Name() string { return "bool" }

func (boolType) Validate(value any) error {
	if _, ok := value.(bool); !ok {
		return fmt.Errorf("expected bool, got %T", value)
	}
	return nil
}

func (boolType) JSONSchema() map[string]any { return map[string]any{"type": "boolean"} }

type sliceType struct {
	elem Type
}

func (t sliceType) Name() string { return "[" + t.elem.Name() + "]" }

func (t sliceType) Validate(value any) error {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return fmt.Errorf("expected slice, got %T", value)
	}
	for i := 0; i < rv.Len(); i++ {
		if err := t.elem.Validate(rv.Index(i).Interface()); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

func (t sliceType) JSONSchema() map[string]any {
	return map[string]any{"type": "array", "items": t.elem.JSONSchema()}
}

type enumType struct {
	values []string
}

func (t enumType) Name() string { return "enum(" + strings.Join(t.values, "|") + ")" }

func (t enumType) Validate(value any) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("expected string, got %T", value)
	}
	if !slices.Contains(t.values, s) {
		return fmt.Errorf("%q is not one of %v", s, t.values)
	}
	return nil
}

func (t enumType) JSONSchema() map[string]any {
	return map[string]any{"type": "string", "enum": slices.Clone(t.values)}
}

// optionalType marks a field that may be absent.
type optionalType struct {
	Type
}

func (t optionalType) Name() string { return t.Type.Name() + "?" }

type describedType struct {
	Type
	description string
}

func (t describedType) JSONSchema() map[string]any {
	out := t.Type.JSONSchema()
	out["description"] = t.description
	return out
}

type customType struct {
	name     string
	validate func(any) error
}

func (t customType) Name() string { return t.name }

func (t customType) Validate(value any) error { return t.validate(value) }

func (t customType) JSONSchema() map[string]any { return map[string]any{} }

// String creates a string type.
func String() Type { return stringType{} }

// Int creates an integer type. Whole float64 values are accepted.
func Int() Type { return intType{} }

// Float creates a number type.
func Float() Type { return floatType{} }

// Bool creates a boolean type.
func Bool() Type { return boolType{} }

// Slice creates a slice type for elements of the given type.
func Slice(elem Type) Type { return sliceType{elem: elem} }

// Enum creates a string type restricted to values.
func Enum(values ...string) Type { return enumType{values: slices.Clone(values)} }

// Optional marks t as not required.
func Optional(t Type) Type { return optionalType{Type: t} }

// Describe attaches a description that is exported with the JSON Schema.
func Describe(t Type, description string) Type {
	if opt, ok := t.(optionalType); ok {
		return optionalType{Type: describedType{Type: opt.Type, description: description}}
	}
	return describedType{Type: t, description: description}
}

// Custom creates a type validated by fn.
func Custom(name string, fn func(any) error) Type {
	return customType{name: name, validate: fn}
}

// IsOptional reports whether t was wrapped with Optional.
func IsOptional(t Type) bool {
	_, ok := t.(optionalType)
	return ok
}

// ParseType converts a type string to a Type.
// Supports "string", "int", "float", "bool", "[T]" and a trailing "?" for optional.
func ParseType(typeStr string) (Type, error) {
	typeStr = strings.TrimSpace(typeStr)
	if strings.HasSuffix(typeStr, "?") {
		inner, err := ParseType(strings.TrimSuffix(typeStr, "?"))
		if err != nil {
			return nil, err
		}
		return Optional(inner), nil
	}
	if len(typeStr) > 2 && typeStr[0] == '[' && typeStr[len(typeStr)-1] == ']' {
		elem, err := ParseType(typeStr[1 : len(typeStr)-1])
		if err != nil {
			return nil, fmt.Errorf("invalid slice element type: %w", err)
		}
		return Slice(elem), nil
	}
	switch typeStr {
	case "string":
		return String(), nil
	case "int":
		return Int(), nil
	case "float":
		return Float(), nil
	case "bool":
		return Bool(), nil
	default:
		return nil, fmt.Errorf("unsupported type: %s", typeStr)
	}
}

// ParseTypeMap converts field names to type strings into a Schema.
func ParseTypeMap(typeMap map[string]string) (Schema, error) {
	result := make(Schema, len(typeMap))
	for key, typeStr := range typeMap {
		t, err := ParseType(typeStr)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}
		result[key] = t
	}
	return result, nil
}
