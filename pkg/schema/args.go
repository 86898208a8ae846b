package schema

import (
	"fmt"
	"slices"

	"github.com/spf13/cast"
)

// Args describes the object a node expects as its first dispatch argument.
// Example: {"title": String(), "tags": Optional(Slice(String()))}
type Args map[string]Type

// ParseArgs converts a map of field names to type names into Args.
func ParseArgs(types map[string]string) (Args, error) {
	out := make(Args, len(types))
	for key, name := range types {
		t, err := ParseType(name)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}
		out[key] = t
	}
	return out, nil
}

// Validate checks payload against the declared fields. Every failure is
// reported, in field order.
func (a Args) Validate(payload any) error {
	if len(a) == 0 {
		return nil
	}
	data, err := cast.ToStringMapE(payload)
	if err != nil {
		return &AggregateError{Errors: []error{&ValidationError{Key: "args", Reason: "expected an object", Value: payload}}}
	}

	var errs []error
	for _, key := range sortedKeys(a) {
		t := a[key]
		value, exists := data[key]
		if !exists {
			if _, ok := t.(optional); !ok {
				errs = append(errs, &ValidationError{Key: key, Reason: "required"})
			}
			continue
		}
		if err := t.Validate(value); err != nil {
			errs = append(errs, &ValidationError{Key: key, Reason: err.Error(), Value: value})
		}
	}
	for _, key := range sortedKeys(data) {
		if _, declared := a[key]; !declared {
			errs = append(errs, &ValidationError{Key: key, Reason: "unexpected field", Value: data[key]})
		}
	}

	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}

// Names returns the declared type name of every field.
func (a Args) Names() map[string]string {
	out := make(map[string]string, len(a))
	for key, t := range a {
		out[key] = t.Name()
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
