package schema

import (
	"fmt"
	"reflect"
	"strings"
)

// Type checks the value of one dispatch argument field.
type Type interface {
	// Name returns the type as written in definitions (e.g. "string", "[int]").
	Name() string
	// Validate checks if a value conforms to this type.
	Validate(value any) error
}

type scalar struct {
	name  string
	check func(value any) bool
}

func (t scalar) Name() string { return t.name }

func (t scalar) Validate(value any) error {
	if !t.check(value) {
		return fmt.Errorf("expected %s, got %T", t.name, value)
	}
	return nil
}

type list struct {
	elem Type
}

func (t list) Name() string { return "[" + t.elem.Name() + "]" }

func (t list) Validate(value any) error {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return fmt.Errorf("expected %s, got %T", t.Name(), value)
	}
	for i := 0; i < rv.Len(); i++ {
		if err := t.elem.Validate(rv.Index(i).Interface()); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

// optional marks a field that may be left out of the payload.
type optional struct {
	Type
}

func (t optional) Name() string { return t.Type.Name() + "?" }

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}

func isInt(v any) bool {
	switch n := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		// JSON numbers
		return n == float64(int64(n))
	}
	return false
}

func isFloat(v any) bool {
	switch v.(type) {
	case float32, float64:
		return true
	}
	return isInt(v)
}

func isBool(v any) bool {
	_, ok := v.(bool)
	return ok
}

func isMap(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}

// String accepts strings.
func String() Type { return scalar{"string", isString} }

// Int accepts integers and whole floats.
func Int() Type { return scalar{"int", isInt} }

// Float accepts any number.
func Float() Type { return scalar{"float", isFloat} }

// Bool accepts booleans.
func Bool() Type { return scalar{"bool", isBool} }

// Map accepts objects.
func Map() Type { return scalar{"map", isMap} }

// Any accepts every value, nil included.
func Any() Type { return scalar{"any", func(any) bool { return true }} }

// Slice accepts slices whose elements all satisfy elem.
func Slice(elem Type) Type { return list{elem: elem} }

// Optional lets the field be absent from the payload.
func Optional(t Type) Type { return optional{t} }

// ParseType converts a type name to a Type: "string", "int", "float",
// "bool", "map", "any", "[T]" for slices and a trailing "?" for optional
// fields.
func ParseType(name string) (Type, error) {
	name = strings.TrimSpace(name)
	if base, ok := strings.CutSuffix(name, "?"); ok {
		t, err := ParseType(base)
		if err != nil {
			return nil, err
		}
		return Optional(t), nil
	}
	if len(name) > 2 && name[0] == '[' && name[len(name)-1] == ']' {
		elem, err := ParseType(name[1 : len(name)-1])
		if err != nil {
			return nil, err
		}
		return Slice(elem), nil
	}

	switch name {
	case "string":
		return String(), nil
	case "int":
		return Int(), nil
	case "float":
		return Float(), nil
	case "bool":
		return Bool(), nil
	case "map":
		return Map(), nil
	case "any":
		return Any(), nil
	default:
		return nil, fmt.Errorf("unsupported type: %s", name)
	}
}
