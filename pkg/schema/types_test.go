package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypes_Validate(t *testing.T) {
	tests := []struct {
		name    string
		typ     Type
		value   any
		wantErr bool
	}{
		{"string ok", String(), "x", false},
		{"string bad", String(), 1, true},
		{"int ok", Int(), 3, false},
		{"int from json", Int(), float64(3), false},
		{"int fractional", Int(), 3.5, true},
		{"float ok", Float(), 1.5, false},
		{"float accepts int", Float(), 2, false},
		{"bool ok", Bool(), true, false},
		{"bool bad", Bool(), "true", true},
		{"slice ok", Slice(String()), []string{"a"}, false},
		{"slice of any", Slice(Int()), []any{1, float64(2)}, false},
		{"slice bad element", Slice(Int()), []any{1, "x"}, true},
		{"slice not a slice", Slice(Int()), 1, true},
		{"enum ok", Enum("a", "b"), "b", false},
		{"enum outside", Enum("a", "b"), "c", true},
		{"enum wrong type", Enum("a"), 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.typ.Validate(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCustomType(t *testing.T) {
	positive := Custom("positive_int", func(v any) error {
		i, ok := v.(int)
		if !ok || i <= 0 {
			return errors.New("must be a positive int")
		}
		return nil
	})
	assert.Equal(t, "positive_int", positive.Name())
	assert.NoError(t, positive.Validate(1))
	assert.Error(t, positive.Validate(-1))
}

func TestParseType(t *testing.T) {
	tests := map[string]string{
		"string":    "string",
		"int":       "int",
		"float":     "float",
		"bool":      "bool",
		"[string]":  "[string]",
		"[[int]]":   "[[int]]",
		"string?":   "string?",
		" [bool]? ": "[bool]?",
	}
	for in, want := range tests {
		typ, err := ParseType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, typ.Name(), in)
	}

	_, err := ParseType("complex")
	assert.Error(t, err)
	_, err = ParseType("[complex]")
	assert.Error(t, err)
}

func TestParseTypeMap(t *testing.T) {
	s, err := ParseTypeMap(map[string]string{"q": "string", "limit": "int?"})
	require.NoError(t, err)
	assert.False(t, IsOptional(s["q"]))
	assert.True(t, IsOptional(s["limit"]))

	_, err = ParseTypeMap(map[string]string{"q": "nope"})
	assert.ErrorContains(t, err, "field q")
}

func TestDescribe_KeepsOptional(t *testing.T) {
	typ := Describe(Optional(String()), "a note")
	assert.True(t, IsOptional(typ))
	assert.Equal(t, map[string]any{"type": "string", "description": "a note"}, typ.JSONSchema())
}
