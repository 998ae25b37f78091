package codec

import (
	"fmt"
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cast"
)

// CoerceArg converts a config literal or a decoded field value into the Go
// type go-ethereum expects when packing an argument of type t.
func CoerceArg(t abi.Type, value interface{}) (interface{}, error) {
	if value != nil && reflect.TypeOf(value) == t.GetType() {
		return value, nil
	}

	switch t.T {
	case abi.AddressTy:
		return AsAddress(value)
	case abi.UintTy, abi.IntTy:
		return coerceInt(t, value)
	case abi.BoolTy:
		return cast.ToBoolE(value)
	case abi.StringTy:
		return cast.ToStringE(value)
	case abi.BytesTy:
		return coerceBytes(value)
	case abi.FixedBytesTy:
		raw, err := coerceBytes(value)
		if err != nil {
			return nil, err
		}
		if len(raw) != t.Size {
			return nil, fmt.Errorf("expected %d bytes, got %d", t.Size, len(raw))
		}
		out := reflect.New(t.GetType()).Elem()
		reflect.Copy(out, reflect.ValueOf(raw))
		return out.Interface(), nil
	case abi.SliceTy, abi.ArrayTy:
		items, err := cast.ToSliceE(value)
		if err != nil {
			return nil, err
		}
		var out reflect.Value
		if t.T == abi.ArrayTy {
			if len(items) != t.Size {
				return nil, fmt.Errorf("expected %d items, got %d", t.Size, len(items))
			}
			out = reflect.New(t.GetType()).Elem()
		} else {
			out = reflect.MakeSlice(t.GetType(), len(items), len(items))
		}
		for i, item := range items {
			elem, err := CoerceArg(*t.Elem, item)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			out.Index(i).Set(reflect.ValueOf(elem))
		}
		return out.Interface(), nil
	default:
		return value, nil
	}
}

func coerceInt(t abi.Type, value interface{}) (interface{}, error) {
	n, err := AsBigInt(value)
	if err != nil {
		return nil, err
	}
	min, max := intBounds(t)
	if n.Cmp(min) < 0 || n.Cmp(max) > 0 {
		return nil, fmt.Errorf("value %s out of range for %s", n, t.String())
	}
	target := t.GetType()
	if target == reflect.TypeOf(&big.Int{}) {
		return n, nil
	}
	if t.T == abi.UintTy {
		return reflect.ValueOf(n.Uint64()).Convert(target).Interface(), nil
	}
	return reflect.ValueOf(n.Int64()).Convert(target).Interface(), nil
}

func intBounds(t abi.Type) (*big.Int, *big.Int) {
	if t.T == abi.UintTy {
		max := new(big.Int).Lsh(big.NewInt(1), uint(t.Size))
		return big.NewInt(0), max.Sub(max, big.NewInt(1))
	}
	half := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
	max := new(big.Int).Sub(half, big.NewInt(1))
	return new(big.Int).Neg(half), max
}

func coerceBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case common.Hash:
		return v.Bytes(), nil
	case string:
		raw, err := hexutil.Decode(v)
		if err != nil {
			return nil, fmt.Errorf("invalid hex %q: %w", v, err)
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("unsupported bytes type %T", value)
	}
}
