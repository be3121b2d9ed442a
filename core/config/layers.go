package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/samber/lo"
	"gopkg.in/yaml.v2"
)

// Layer is one source of configuration values keyed by config key.
type Layer map[string]any

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report config keys rather than Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	return v
}

// ExtractOverrides keeps the entries of raw that name a recognized key and hold
// a value. Everything else in raw, such as the config file option, is not an
// override and is dropped.
func ExtractOverrides(raw map[string]any) Layer {
	overrides := Layer{}
	for key, value := range raw {
		if !IsRecognized(key) || isNil(value) {
			continue
		}
		overrides[key] = value
	}
	return overrides
}

// MergeLayers overwrites defaults with file and file with overrides, key by key,
// and validates the result. Nested values are replaced, never merged.
func MergeLayers(defaults, file, overrides Layer) (*BundlerConfig, error) {
	merged := lo.Assign(defaults, file, overrides)
	return decodeLayer(merged)
}

func decodeLayer(merged Layer) (*BundlerConfig, error) {
	keys := lo.Keys(merged)
	sort.Strings(keys)

	for _, key := range keys {
		if !IsRecognized(key) {
			return nil, &SchemaValidationError{Field: key, Reason: ReasonUnknown}
		}
	}
	for _, f := range schema {
		if !f.Optional && isNil(merged[f.Key]) {
			return nil, &SchemaValidationError{Field: f.Key, Reason: ReasonMissing}
		}
	}

	// one key at a time so a type error names its field
	var cfg BundlerConfig
	for _, key := range keys {
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			DecodeHook: integralNumberHook,
			Result:     &cfg,
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(map[string]any{key: merged[key]}); err != nil {
			return nil, &SchemaValidationError{Field: key, Reason: ReasonType, Err: err}
		}
	}

	if err := validate.Struct(&cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return nil, &SchemaValidationError{Field: fe.Field(), Reason: fe.Tag(), Err: fmt.Errorf("value %v", fe.Value())}
		}
		return nil, err
	}
	return &cfg, nil
}

// integralNumberHook refuses fractional or out of range numbers for integer
// keys; JSON decodes every number as float64 and mapstructure would truncate or
// wrap it.
func integralNumberHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.Float64 && from.Kind() != reflect.Float32 {
		return data, nil
	}

	f := reflect.ValueOf(data).Float()
	var lower, upper float64
	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		upper = math.Ldexp(1, to.Bits()-1)
		lower = -upper
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		upper = math.Ldexp(1, to.Bits())
	default:
		return data, nil
	}

	if f != math.Trunc(f) {
		return nil, fmt.Errorf("%v is not an integer", f)
	}
	// upper itself is one past the largest value
	if f < lower || f >= upper {
		return nil, fmt.Errorf("%v is out of range for %s", f, to.Kind())
	}
	return data, nil
}

// LoadFileLayer reads the config file at path. A missing file, or an empty path,
// is an empty layer. Files ending in .yaml or .yml are YAML, anything else JSON.
func LoadFileLayer(path string) (Layer, error) {
	if path == "" {
		return Layer{}, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Layer{}, nil
	}
	if err != nil {
		return nil, &ConfigSourceError{Path: path, Err: err}
	}

	layer := Layer{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &layer)
		if err == nil {
			layer = normalizeYAML(layer)
		}
	default:
		err = json.Unmarshal(data, &layer)
	}
	if err != nil {
		return nil, &ConfigSourceError{Path: path, Err: err}
	}
	if layer == nil {
		// the document was null
		layer = Layer{}
	}
	return layer, nil
}

// normalizeYAML turns the map[interface{}]interface{} values yaml.v2 produces
// into map[string]any so every layer has the same shape.
func normalizeYAML(layer Layer) Layer {
	out := make(Layer, len(layer))
	for k, v := range layer {
		out[k] = normalizeYAMLValue(v)
	}
	return out
}

func normalizeYAMLValue(v any) any {
	switch x := v.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]any, len(x))
		for k, e := range x {
			m[fmt.Sprint(k)] = normalizeYAMLValue(e)
		}
		return m
	case []interface{}:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalizeYAMLValue(e)
		}
		return out
	}
	return v
}

// isNil treats typed nil pointers, slices and maps from option bags as unset.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
