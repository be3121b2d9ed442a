package config

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/ap-userop/core/testutil"
)

func TestExtractOverrides(t *testing.T) {
	var nilSlice []string
	var nilPtr *string

	raw := map[string]any{
		"network":   "sepolia",
		"port":      "4337",
		"unsafe":    false,
		"mnemonic":  nil,
		"whitelist": nilSlice,
		"minStake":  nilPtr,
		"config":    "./bundler.config.json",
		"verbose":   true,
	}

	assert.Equal(t, Layer{
		"network": "sepolia",
		"port":    "4337",
		"unsafe":  false,
	}, ExtractOverrides(raw))
	assert.Empty(t, ExtractOverrides(nil))
}

func TestMergeLayersPrecedence(t *testing.T) {
	file := Layer{"network": "http://localhost:8545", "port": "3001", "gasFactor": "1.5"}
	overrides := Layer{"port": "4337", "unsafe": true}

	tests := []struct {
		name      string
		file      Layer
		overrides Layer
		check     func(t *testing.T, cfg *BundlerConfig)
	}{
		{
			name: "defaults only",
			check: func(t *testing.T, cfg *BundlerConfig) {
				assert.Equal(t, "goerli", cfg.Network)
				assert.Equal(t, "3000", cfg.Port)
				assert.Equal(t, "1", cfg.GasFactor)
				assert.False(t, cfg.Unsafe)
			},
		},
		{
			name: "file over defaults",
			file: file,
			check: func(t *testing.T, cfg *BundlerConfig) {
				assert.Equal(t, "http://localhost:8545", cfg.Network)
				assert.Equal(t, "3001", cfg.Port)
				assert.Equal(t, "1.5", cfg.GasFactor)
				assert.Equal(t, DefaultEntryPoint, cfg.EntryPoint)
			},
		},
		{
			name:      "overrides over file",
			file:      file,
			overrides: overrides,
			check: func(t *testing.T, cfg *BundlerConfig) {
				assert.Equal(t, "http://localhost:8545", cfg.Network)
				assert.Equal(t, "4337", cfg.Port)
				assert.Equal(t, "1.5", cfg.GasFactor)
				assert.True(t, cfg.Unsafe)
				assert.Equal(t, "./mnemonic.txt", cfg.Mnemonic)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := MergeLayers(Defaults(), tt.file, tt.overrides)
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestMergeLayersDoesNotMutateInputs(t *testing.T) {
	defaults := Defaults()
	_, err := MergeLayers(defaults, Layer{"port": "1"}, Layer{"port": "2"})
	require.NoError(t, err)
	assert.Equal(t, "3000", defaults["port"])
}

func TestMergeLayersRejects(t *testing.T) {
	withoutNetwork := Defaults()
	delete(withoutNetwork, "network")

	tests := []struct {
		name      string
		defaults  Layer
		file      Layer
		overrides Layer
		field     string
		reason    string
	}{
		{name: "unknown key from file", file: Layer{"netwrok": "x"}, field: "netwrok", reason: ReasonUnknown},
		{name: "unknown key from overrides", overrides: Layer{"bogus": 1}, field: "bogus", reason: ReasonUnknown},
		{name: "missing required key", defaults: withoutNetwork, field: "network", reason: ReasonMissing},
		{name: "required key nulled by file", file: Layer{"mnemonic": nil}, field: "mnemonic", reason: ReasonMissing},
		{name: "number for string", file: Layer{"port": float64(3000)}, field: "port", reason: ReasonType},
		{name: "string for bool", overrides: Layer{"unsafe": "true"}, field: "unsafe", reason: ReasonType},
		{name: "string for number", file: Layer{"maxBundleGas": "5000000"}, field: "maxBundleGas", reason: ReasonType},
		{name: "fractional number", file: Layer{"maxBundleGas": 1.5}, field: "maxBundleGas", reason: ReasonType},
		{name: "number above uint64", file: Layer{"maxBundleGas": float64(1e20)}, field: "maxBundleGas", reason: ReasonType},
		{name: "number at 2^64", overrides: Layer{"minUnstakeDelay": math.Ldexp(1, 64)}, field: "minUnstakeDelay", reason: ReasonType},
		{name: "negative number", file: Layer{"autoBundleInterval": float64(-1)}, field: "autoBundleInterval", reason: ReasonType},
		{name: "scalar for list", file: Layer{"whitelist": "0x0000000000000000000000000000000000000001"}, field: "whitelist", reason: ReasonType},
		{name: "bad entrypoint", overrides: Layer{"entryPoint": "0x1234"}, field: "entryPoint", reason: "eth_addr"},
		{name: "bad list entry", file: Layer{"blacklist": []any{"0x0000000000000000000000000000000000000001", "nope"}}, field: "blacklist[1]", reason: "eth_addr"},
		{name: "non numeric port", overrides: Layer{"port": "http"}, field: "port", reason: "numeric"},
		{name: "zero bundle gas", file: Layer{"maxBundleGas": float64(0)}, field: "maxBundleGas", reason: "gt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defaults := tt.defaults
			if defaults == nil {
				defaults = Defaults()
			}
			_, err := MergeLayers(defaults, tt.file, tt.overrides)

			var schemaErr *SchemaValidationError
			require.ErrorAs(t, err, &schemaErr)
			assert.Equal(t, tt.field, schemaErr.Field)
			assert.Equal(t, tt.reason, schemaErr.Reason)
		})
	}
}

func TestMergeLayersOptionalKeys(t *testing.T) {
	cfg, err := MergeLayers(Defaults(), Layer{
		"whitelist":       []any{"0x0000000000000000000000000000000000000001"},
		"minUnstakeDelay": float64(86400),
		"debugRpc":        true,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"0x0000000000000000000000000000000000000001"}, cfg.Whitelist)
	assert.Equal(t, uint64(86400), cfg.MinUnstakeDelay)
	assert.True(t, cfg.DebugRpc)

	defaults := Defaults()
	delete(defaults, "minStake")
	delete(defaults, "minUnstakeDelay")
	cfg, err = MergeLayers(defaults, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.MinStake)
}

func TestLoadFileLayer(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		path := testutil.WriteFile(t, "bundler.config.json", `{"network": "sepolia", "maxBundleGas": 3000000, "whitelist": ["0x0000000000000000000000000000000000000001"]}`)
		layer, err := LoadFileLayer(path)
		require.NoError(t, err)
		assert.Equal(t, Layer{
			"network":      "sepolia",
			"maxBundleGas": float64(3000000),
			"whitelist":    []any{"0x0000000000000000000000000000000000000001"},
		}, layer)
	})

	t.Run("yaml", func(t *testing.T) {
		path := testutil.WriteFile(t, "bundler.yaml", "network: sepolia\nmaxBundleGas: 3000000\nwhitelist:\n  - \"0x0000000000000000000000000000000000000001\"\n")
		layer, err := LoadFileLayer(path)
		require.NoError(t, err)

		cfg, err := MergeLayers(Defaults(), layer, nil)
		require.NoError(t, err)
		assert.Equal(t, "sepolia", cfg.Network)
		assert.Equal(t, uint64(3000000), cfg.MaxBundleGas)
		assert.Equal(t, []string{"0x0000000000000000000000000000000000000001"}, cfg.Whitelist)
	})

	t.Run("missing file is empty", func(t *testing.T) {
		layer, err := LoadFileLayer("/path/none-exists/bundler.config.json")
		require.NoError(t, err)
		assert.Empty(t, layer)

		layer, err = LoadFileLayer("")
		require.NoError(t, err)
		assert.Empty(t, layer)
	})

	t.Run("null document is empty", func(t *testing.T) {
		layer, err := LoadFileLayer(testutil.WriteFile(t, "c.json", "null"))
		require.NoError(t, err)
		assert.NotNil(t, layer)
		assert.Empty(t, layer)
	})

	t.Run("malformed json", func(t *testing.T) {
		path := testutil.WriteFile(t, "c.json", `{"network": "sepolia",`)
		_, err := LoadFileLayer(path)

		var srcErr *ConfigSourceError
		require.ErrorAs(t, err, &srcErr)
		assert.Equal(t, path, srcErr.Path)
		assert.Contains(t, err.Error(), path)
	})

	t.Run("not an object", func(t *testing.T) {
		_, err := LoadFileLayer(testutil.WriteFile(t, "c.json", `["network"]`))
		var srcErr *ConfigSourceError
		assert.ErrorAs(t, err, &srcErr)
	})

	t.Run("unreadable", func(t *testing.T) {
		// a directory exists but cannot be read as a file
		_, err := LoadFileLayer(t.TempDir())
		var srcErr *ConfigSourceError
		assert.ErrorAs(t, err, &srcErr)
	})
}

func TestFields(t *testing.T) {
	fields := Fields()
	require.NotEmpty(t, fields)
	assert.Equal(t, "network", fields[0].Key)

	optional := map[string]bool{}
	for _, f := range fields {
		optional[f.Key] = f.Optional
	}
	assert.False(t, optional["mnemonic"])
	assert.True(t, optional["whitelist"])
	assert.True(t, IsRecognized("entryPoint"))
	assert.False(t, IsRecognized("config"))

	// defaults cover every required key
	for _, f := range fields {
		if !f.Optional {
			assert.Contains(t, Defaults(), f.Key)
		}
	}
}
