package userop

import (
	"context"
	"errors"
	"math/big"
	"regexp"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lowerHex = regexp.MustCompile(`^0x[0-9a-f]*$`)

func assertHexLeaves(t *testing.T, v any) {
	t.Helper()
	switch x := v.(type) {
	case map[string]any:
		for _, e := range x {
			assertHexLeaves(t, e)
		}
	case []any:
		for _, e := range x {
			assertHexLeaves(t, e)
		}
	case string:
		assert.Regexp(t, lowerHex, x)
	default:
		t.Errorf("unexpected leaf %#v (%T)", v, v)
	}
}

func TestHexlifyLeaves(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"zero int", 0, "0x0"},
		{"int", 7, "0x7"},
		{"uint64", uint64(255), "0xff"},
		{"big int", big.NewInt(21000), "0x5208"},
		{"hexutil big", (*hexutil.Big)(big.NewInt(16)), "0x10"},
		{"bytes", []byte{0x0a, 0xbc}, "0x0abc"},
		{"empty bytes", []byte{}, "0x"},
		{"fixed bytes", [4]byte{0xde, 0xad, 0xbe, 0xef}, "0xdeadbeef"},
		{"address", common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"), "0x5ff137d4b0fdcd49dca30c7cf57e578a026d2789"},
		{"hex string", "0xABCdef", "0xabcdef"},
		{"upper prefix", "0XFF", "0xff"},
		{"zero padded hex string kept", "0x07", "0x07"},
		{"nil", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Hexlify(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHexlifyNested(t *testing.T) {
	in := map[string]any{
		"sender": common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		"nonce":  big.NewInt(3),
		"skip":   nil,
		"nested": map[string]any{
			"list":  []any{1, []byte{0xff}, "0xAA"},
			"typed": []uint64{1, 2},
		},
		"pending": PendingFunc(func(ctx context.Context) (any, error) {
			return uint8(9), nil
		}),
	}

	got, err := Hexlify(in)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"sender": "0x00000000000000000000000000000000000000aa",
		"nonce":  "0x3",
		"nested": map[string]any{
			"list":  []any{"0x1", "0xff", "0xaa"},
			"typed": []any{"0x1", "0x2"},
		},
		"pending": "0x9",
	}, got)
	assertHexLeaves(t, got)
}

func TestHexlifyIdempotent(t *testing.T) {
	op := Struct{
		Sender:       common.HexToAddress("0xD7050816337a3f8f690F8083B5Ff8019D50c0E50"),
		Nonce:        big.NewInt(42),
		InitCode:     []byte{},
		CallData:     common.FromHex("0xb61d27f6"),
		CallGasLimit: 100000,
		MaxFeePerGas: PendingFunc(func(ctx context.Context) (any, error) {
			return PendingFunc(func(ctx context.Context) (any, error) {
				return big.NewInt(1_000_000_000), nil
			}), nil
		}),
		Signature: "0xDEAD",
	}

	once, err := Hexlify(op)
	require.NoError(t, err)
	twice, err := Hexlify(once)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	assertHexLeaves(t, once)

	m := once.(map[string]any)
	assert.Equal(t, "0x3b9aca00", m["maxFeePerGas"])
	assert.Equal(t, "0xdead", m["signature"])
	assert.NotContains(t, m, "paymasterAndData")
}

func TestHexlifyRejects(t *testing.T) {
	tests := []struct {
		name string
		in   any
	}{
		{"plain string", map[string]any{"sender": "alice"}},
		{"negative", map[string]any{"nonce": -1}},
		{"negative big", big.NewInt(-5)},
		{"bool", true},
		{"float", 1.5},
		{"nil list element", []any{nil}},
		{"int keyed map", map[int]string{1: "0x1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Hexlify(tt.in)
			var hexErr *HexlifyError
			assert.ErrorAs(t, err, &hexErr)
		})
	}
}

func TestHexlifyPendingError(t *testing.T) {
	boom := errors.New("nonce lookup failed")
	_, err := Hexlify(Struct{Nonce: PendingFunc(func(ctx context.Context) (any, error) {
		return nil, boom
	})})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "nonce")
}
