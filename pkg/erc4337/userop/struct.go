package userop

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/mitchellh/mapstructure"
)

// Pending is a field value that is not known yet, such as a nonce that still
// has to be read from chain or a signature that is produced last.
type Pending interface {
	Resolve(ctx context.Context) (any, error)
}

// PendingFunc adapts a function to Pending.
type PendingFunc func(ctx context.Context) (any, error)

func (f PendingFunc) Resolve(ctx context.Context) (any, error) {
	return f(ctx)
}

// Struct is a user operation whose fields may hold any value Hexlify accepts,
// or a Pending that yields one. Nil fields are left out of the wire form, which
// is how partial operations are expressed for gas estimation.
type Struct struct {
	Sender               any `json:"sender,omitempty" mapstructure:"sender"`
	Nonce                any `json:"nonce,omitempty" mapstructure:"nonce"`
	InitCode             any `json:"initCode,omitempty" mapstructure:"initCode"`
	CallData             any `json:"callData,omitempty" mapstructure:"callData"`
	CallGasLimit         any `json:"callGasLimit,omitempty" mapstructure:"callGasLimit"`
	VerificationGasLimit any `json:"verificationGasLimit,omitempty" mapstructure:"verificationGasLimit"`
	PreVerificationGas   any `json:"preVerificationGas,omitempty" mapstructure:"preVerificationGas"`
	MaxFeePerGas         any `json:"maxFeePerGas,omitempty" mapstructure:"maxFeePerGas"`
	MaxPriorityFeePerGas any `json:"maxPriorityFeePerGas,omitempty" mapstructure:"maxPriorityFeePerGas"`
	PaymasterAndData     any `json:"paymasterAndData,omitempty" mapstructure:"paymasterAndData"`
	Signature            any `json:"signature,omitempty" mapstructure:"signature"`
}

func (s *Struct) fields() []struct {
	name string
	ptr  *any
} {
	return []struct {
		name string
		ptr  *any
	}{
		{"sender", &s.Sender},
		{"nonce", &s.Nonce},
		{"initCode", &s.InitCode},
		{"callData", &s.CallData},
		{"callGasLimit", &s.CallGasLimit},
		{"verificationGasLimit", &s.VerificationGasLimit},
		{"preVerificationGas", &s.PreVerificationGas},
		{"maxFeePerGas", &s.MaxFeePerGas},
		{"maxPriorityFeePerGas", &s.MaxPriorityFeePerGas},
		{"paymasterAndData", &s.PaymasterAndData},
		{"signature", &s.Signature},
	}
}

// StructFromMap builds a Struct from a decoded JSON object. Unknown keys are
// rejected so that typos in an operation file do not silently vanish.
func StructFromMap(m map[string]any) (Struct, error) {
	var s Struct
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused: true,
		Result:      &s,
	})
	if err != nil {
		return Struct{}, err
	}
	if err := dec.Decode(m); err != nil {
		return Struct{}, fmt.Errorf("invalid user operation: %w", err)
	}
	return s, nil
}

// Resolve returns a copy of s in which every Pending field has been replaced by
// the concrete value it yields. s itself is not modified.
func (s Struct) Resolve(ctx context.Context) (Struct, error) {
	out := s
	for _, f := range out.fields() {
		v, err := resolveValue(ctx, *f.ptr)
		if err != nil {
			return Struct{}, fmt.Errorf("resolve %s: %w", f.name, err)
		}
		*f.ptr = v
	}
	return out, nil
}

// resolveValue follows Pending chains until a concrete value comes out.
func resolveValue(ctx context.Context, v any) (any, error) {
	for {
		p, ok := v.(Pending)
		if !ok {
			return v, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, err := p.Resolve(ctx)
		if err != nil {
			return nil, err
		}
		v = next
	}
}

// Concrete resolves and canonicalizes s, then decodes every field into a
// UserOperation. Missing fields become zero values.
func (s Struct) Concrete(ctx context.Context) (*UserOperation, error) {
	wire, err := HexlifyContext(ctx, s)
	if err != nil {
		return nil, err
	}
	m, _ := wire.(map[string]any)
	str := func(key string) string {
		v, _ := m[key].(string)
		return v
	}

	op := &UserOperation{}
	if sender := str("sender"); sender != "" {
		if !common.IsHexAddress(sender) {
			return nil, fmt.Errorf("sender %q is not an address", sender)
		}
		op.Sender = common.HexToAddress(sender)
	}

	quantities := []struct {
		key string
		dst **big.Int
	}{
		{"nonce", &op.Nonce},
		{"callGasLimit", &op.CallGasLimit},
		{"verificationGasLimit", &op.VerificationGasLimit},
		{"preVerificationGas", &op.PreVerificationGas},
		{"maxFeePerGas", &op.MaxFeePerGas},
		{"maxPriorityFeePerGas", &op.MaxPriorityFeePerGas},
	}
	for _, q := range quantities {
		raw := str(q.key)
		if raw == "" {
			*q.dst = new(big.Int)
			continue
		}
		// quantities may arrive zero padded, e.g. "0x07"
		n, ok := new(big.Int).SetString(raw[2:], 16)
		if !ok && raw != "0x" {
			return nil, fmt.Errorf("%s %q is not a quantity", q.key, raw)
		}
		if n == nil {
			n = new(big.Int)
		}
		*q.dst = n
	}

	data := []struct {
		key string
		dst *[]byte
	}{
		{"initCode", &op.InitCode},
		{"callData", &op.CallData},
		{"paymasterAndData", &op.PaymasterAndData},
		{"signature", &op.Signature},
	}
	for _, d := range data {
		raw := str(d.key)
		if raw == "" {
			*d.dst = []byte{}
			continue
		}
		b, err := hexutil.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = b
	}
	return op, nil
}
