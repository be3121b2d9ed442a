package config

import (
	"reflect"
	"strings"
)

// BundlerConfig is the resolved bundler configuration. Keys follow the bundler
// config file; a mapstructure tag with omitempty marks an optional key.
type BundlerConfig struct {
	Network               string   `json:"network" mapstructure:"network" validate:"required"`
	Mnemonic              string   `json:"mnemonic" mapstructure:"mnemonic" validate:"required"`
	EntryPoint            string   `json:"entryPoint" mapstructure:"entryPoint" validate:"required,eth_addr"`
	Beneficiary           string   `json:"beneficiary" mapstructure:"beneficiary" validate:"required,eth_addr"`
	GasFactor             string   `json:"gasFactor" mapstructure:"gasFactor" validate:"required,numeric"`
	MinBalance            string   `json:"minBalance" mapstructure:"minBalance" validate:"required,numeric"`
	Port                  string   `json:"port" mapstructure:"port" validate:"required,numeric"`
	Unsafe                bool     `json:"unsafe" mapstructure:"unsafe"`
	ConditionalRpc        bool     `json:"conditionalRpc" mapstructure:"conditionalRpc"`
	MaxBundleGas          uint64   `json:"maxBundleGas" mapstructure:"maxBundleGas" validate:"gt=0"`
	AutoBundleInterval    uint64   `json:"autoBundleInterval" mapstructure:"autoBundleInterval"`
	AutoBundleMempoolSize uint64   `json:"autoBundleMempoolSize" mapstructure:"autoBundleMempoolSize"`
	MinStake              string   `json:"minStake,omitempty" mapstructure:"minStake,omitempty" validate:"omitempty,numeric"`
	MinUnstakeDelay       uint64   `json:"minUnstakeDelay,omitempty" mapstructure:"minUnstakeDelay,omitempty"`
	DebugRpc              bool     `json:"debugRpc,omitempty" mapstructure:"debugRpc,omitempty"`
	Whitelist             []string `json:"whitelist,omitempty" mapstructure:"whitelist,omitempty" validate:"omitempty,dive,eth_addr"`
	Blacklist             []string `json:"blacklist,omitempty" mapstructure:"blacklist,omitempty" validate:"omitempty,dive,eth_addr"`
}

const (
	DefaultEntryPoint = "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"
	// ConfigFileOption is the raw option naming the config file; it is not a config key.
	ConfigFileOption = "config"
)

// Defaults returns the built-in layer. It holds every required key.
func Defaults() Layer {
	return Layer{
		"network":               "goerli",
		"mnemonic":              "./mnemonic.txt",
		"entryPoint":            DefaultEntryPoint,
		"beneficiary":           "0x0000000000000000000000000000000000000000",
		"gasFactor":             "1",
		"minBalance":            "1",
		"port":                  "3000",
		"unsafe":                false,
		"conditionalRpc":        false,
		"maxBundleGas":          uint64(5_000_000),
		"autoBundleInterval":    uint64(3),
		"autoBundleMempoolSize": uint64(10),
		"minStake":              "1",
		"minUnstakeDelay":       uint64(0),
	}
}

// Field describes one recognized configuration key.
type Field struct {
	Key      string
	Kind     reflect.Kind
	Optional bool
}

var schema = buildSchema(reflect.TypeOf(BundlerConfig{}))

func buildSchema(t reflect.Type) []Field {
	fields := make([]Field, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		key, opts, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		fields = append(fields, Field{
			Key:      key,
			Kind:     f.Type.Kind(),
			Optional: strings.Contains(opts, "omitempty"),
		})
	}
	return fields
}

// Fields lists the recognized keys in declaration order.
func Fields() []Field {
	return append([]Field(nil), schema...)
}

// IsRecognized reports whether key is part of the schema.
func IsRecognized(key string) bool {
	for _, f := range schema {
		if f.Key == key {
			return true
		}
	}
	return false
}
