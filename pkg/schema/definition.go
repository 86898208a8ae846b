package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Format selects the encoding of a definition document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Definition is a flow described as data. Reducers, conditions and next
// resolvers are referenced by registry name.
type Definition struct {
	Name        string  `mapstructure:"name"`
	Description string  `mapstructure:"description"`
	Compare     string  `mapstructure:"compare"`
	Root        NodeDef `mapstructure:"root"`
}

// NodeDef mirrors the flow.Node builder.
type NodeDef struct {
	ID              string                         `mapstructure:"id"`
	Value           any                            `mapstructure:"value"`
	Reducer         Ref                            `mapstructure:"reducer"`
	Project         []string                       `mapstructure:"project"`
	Args            Args                           `mapstructure:"args"`
	Condition       Ref                            `mapstructure:"condition"`
	Internal        bool                           `mapstructure:"internal"`
	Debounce        time.Duration                  `mapstructure:"debounce"`
	Async           string                         `mapstructure:"async"`
	Template        string                         `mapstructure:"template"`
	On              map[string]*NodeDef            `mapstructure:"on"`
	OnPath          map[string]map[string]*NodeDef `mapstructure:"on_path"`
	Define          map[string]*NodeDef            `mapstructure:"define"`
	Success         *NodeDef                       `mapstructure:"success"`
	SuccessID       string                         `mapstructure:"success_id"`
	SuccessTemplate string                         `mapstructure:"success_template"`
	Failure         *NodeDef                       `mapstructure:"failure"`
	FailureID       string                         `mapstructure:"failure_id"`
	FailureTemplate string                         `mapstructure:"failure_template"`
	Next            string                         `mapstructure:"next"`
	NextFunc        Ref                            `mapstructure:"next_func"`
	Transfer        string                         `mapstructure:"transfer"`
	TransferFunc    Ref                            `mapstructure:"transfer_func"`
	Forward         []ForwardDef                   `mapstructure:"forward"`
	Uses            []string                       `mapstructure:"uses"`
}

// Ref names a registry entry. In documents it is either a bare name or an
// object with "use" and "with".
type Ref struct {
	Use  string         `mapstructure:"use"`
	With map[string]any `mapstructure:"with"`
}

// IsZero reports whether the reference is unset.
func (r Ref) IsZero() bool {
	return r.Use == ""
}

// ForwardDef dispatches event on the machine registered as Machine whenever
// the node settles.
type ForwardDef struct {
	Machine string `mapstructure:"machine"`
	Event   string `mapstructure:"event"`
	Args    []any  `mapstructure:"args"`
}

// FormatOf picks the format from a file extension; anything but ".json" is
// read as YAML.
func FormatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Load reads and parses the definition at path.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition: %w", err)
	}
	def, err := Parse(data, FormatOf(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// Parse decodes a definition document. Unknown keys are errors.
func Parse(data []byte, format Format) (*Definition, error) {
	var raw map[string]any
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse json: %w", err)
		}
		raw, _ = Normalize(raw).(map[string]any)
	case FormatYAML, "":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
	if raw == nil {
		return nil, fmt.Errorf("empty definition")
	}

	var def Definition
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &def,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			refHook,
			argsHook,
		),
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("invalid definition: %w", err)
	}
	return &def, nil
}

// Normalize turns whole JSON numbers into ints, recursively, so documents and
// payloads decoded from JSON behave like their YAML counterparts.
func Normalize(v any) any {
	switch t := v.(type) {
	case float64:
		if t == float64(int64(t)) {
			return int(t)
		}
	case map[string]any:
		for k, val := range t {
			t[k] = Normalize(val)
		}
	case []any:
		for i, val := range t {
			t[i] = Normalize(val)
		}
	}
	return v
}

var (
	refType  = reflect.TypeOf(Ref{})
	argsType = reflect.TypeOf(Args{})
)

// refHook accepts a bare registry name wherever a Ref is expected.
func refHook(from, to reflect.Type, data any) (any, error) {
	if to != refType || from.Kind() != reflect.String {
		return data, nil
	}
	return Ref{Use: data.(string)}, nil
}

// argsHook parses a map of type names into Args.
func argsHook(from, to reflect.Type, data any) (any, error) {
	if to != argsType || from.Kind() != reflect.Map {
		return data, nil
	}
	raw, ok := data.(map[string]any)
	if !ok {
		return data, nil
	}
	names := make(map[string]string, len(raw))
	for key, v := range raw {
		name, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("args field %s: expected a type name, got %T", key, v)
		}
		names[key] = name
	}
	return ParseArgs(names)
}
