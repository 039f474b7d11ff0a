// Package schema models capability input schemas and validates extracted
// parameters against them.
package schema

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// ParamType is the declared type of a schema parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
)

// Param is one named parameter of a capability's input schema.
type Param struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Description string    `json:"description,omitempty"`
	Required    bool      `json:"required"`
}

// InputSchema declares the named parameters a capability accepts.
type InputSchema struct {
	Params []Param `json:"params"`
}

// ValidationError reports which parameters were missing or type-invalid.
// It is recovered locally as a clarifying question, never surfaced raw.
type ValidationError struct {
	Missing []string
	Invalid []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing: %s", strings.Join(e.Missing, ", ")))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, fmt.Sprintf("invalid: %s", strings.Join(e.Invalid, ", ")))
	}
	return "schema validation failed (" + strings.Join(parts, "; ") + ")"
}

// Fields returns every offending parameter name, sorted for stable output.
func (e *ValidationError) Fields() []string {
	fields := append(append([]string{}, e.Missing...), e.Invalid...)
	sort.Strings(fields)
	return fields
}

// Validate checks values strictly against the schema: every required
// parameter must be present and type-correct, and optional parameters, when
// present and non-nil, must be type-correct. Values are expected in decoded
// JSON form (numbers as float64).
func (s InputSchema) Validate(values map[string]any) error {
	verr := &ValidationError{}

	for _, p := range s.Params {
		v, ok := values[p.Name]
		if !ok || v == nil {
			if p.Required {
				verr.Missing = append(verr.Missing, p.Name)
			}
			continue
		}
		if !typeMatches(p.Type, v) {
			verr.Invalid = append(verr.Invalid, p.Name)
		}
	}

	if len(verr.Missing) > 0 || len(verr.Invalid) > 0 {
		return verr
	}
	return nil
}

func typeMatches(t ParamType, v any) bool {
	switch t {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeNumber:
		switch v.(type) {
		case float64, int, int64:
			return true
		}
		return false
	case TypeInteger:
		switch n := v.(type) {
		case int, int64:
			return true
		case float64:
			return n == math.Trunc(n)
		}
		return false
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeArray:
		_, ok := v.([]any)
		return ok
	case TypeObject:
		_, ok := v.(map[string]any)
		return ok
	default:
		// Unknown declared types are treated as string.
		_, ok := v.(string)
		return ok
	}
}
