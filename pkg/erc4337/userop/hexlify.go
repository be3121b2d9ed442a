package userop

import (
	"context"
	"fmt"
	"math/big"
	"reflect"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var hexPattern = regexp.MustCompile(`^0[xX][0-9a-fA-F]*$`)

// HexlifyError reports a value that has no hex wire form.
type HexlifyError struct {
	Path  string
	Value any
}

func (e *HexlifyError) Error() string {
	return fmt.Sprintf("cannot hexlify %s: unsupported value %#v (%T)", e.Path, e.Value, e.Value)
}

// Hexlify converts v into the form bundlers expect on the wire. See HexlifyContext.
func Hexlify(v any) (any, error) {
	return HexlifyContext(context.Background(), v)
}

// HexlifyContext walks v recursively and returns a copy built only from
// map[string]any, []any and lowercase 0x-prefixed hex strings.
//
// Pending values are resolved first. Integers become minimal quantities ("0x0",
// "0x1c"), byte slices and arrays, addresses and hashes become byte strings, hex
// strings are lowercased. Structs are walked by their json field names. Nil map
// and struct entries are dropped. Anything else is an error, so is a negative
// number. Applying it to its own output returns the same output.
func HexlifyContext(ctx context.Context, v any) (any, error) {
	return hexlify(ctx, "value", v)
}

func hexlify(ctx context.Context, path string, v any) (any, error) {
	v, err := resolveValue(ctx, v)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		if !hexPattern.MatchString(x) {
			return nil, &HexlifyError{Path: path, Value: x}
		}
		return "0x" + strings.ToLower(x[2:]), nil
	case []byte:
		return hexutil.Encode(x), nil
	case hexutil.Bytes:
		return hexutil.Encode(x), nil
	case common.Address:
		return hexutil.Encode(x.Bytes()), nil
	case common.Hash:
		return x.Hex(), nil
	case *big.Int:
		if x == nil {
			return nil, nil
		}
		return encodeBig(path, x)
	case big.Int:
		return encodeBig(path, &x)
	case *hexutil.Big:
		if x == nil {
			return nil, nil
		}
		return encodeBig(path, (*big.Int)(x))
	case hexutil.Big:
		return encodeBig(path, (*big.Int)(&x))
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			h, err := hexlify(ctx, path+"."+k, e)
			if err != nil {
				return nil, err
			}
			if h != nil {
				out[k] = h
			}
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			h, err := hexlify(ctx, fmt.Sprintf("%s[%d]", path, i), e)
			if err != nil {
				return nil, err
			}
			if h == nil {
				return nil, &HexlifyError{Path: fmt.Sprintf("%s[%d]", path, i), Value: e}
			}
			out[i] = h
		}
		return out, nil
	}

	return hexlifyReflect(ctx, path, reflect.ValueOf(v))
}

func hexlifyReflect(ctx context.Context, path string, rv reflect.Value) (any, error) {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if rv.Int() < 0 {
			return nil, &HexlifyError{Path: path, Value: rv.Interface()}
		}
		return hexutil.EncodeUint64(uint64(rv.Int())), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return hexutil.EncodeUint64(rv.Uint()), nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return hexlify(ctx, path, rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(b), rv)
			return hexutil.Encode(b), nil
		}
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil, nil
		}
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return hexlify(ctx, path, items)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, &HexlifyError{Path: path, Value: rv.Interface()}
		}
		if rv.IsNil() {
			return nil, nil
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return hexlify(ctx, path, m)
	case reflect.Struct:
		return hexlify(ctx, path, structFields(rv))
	}
	return nil, &HexlifyError{Path: path, Value: rv.Interface()}
}

// structFields flattens exported fields into a map keyed like encoding/json would.
func structFields(rv reflect.Value) map[string]any {
	t := rv.Type()
	m := make(map[string]any, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		m[name] = rv.Field(i).Interface()
	}
	return m
}

func encodeBig(path string, n *big.Int) (any, error) {
	if n.Sign() < 0 {
		return nil, &HexlifyError{Path: path, Value: n}
	}
	return hexutil.EncodeBig(n), nil
}
