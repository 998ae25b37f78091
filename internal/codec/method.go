// Package codec encodes contract calls and decodes their results into
// canonical field values.
package codec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"discoveryScope/internal/model"
)

// Method is a parsed contract function.
type Method struct {
	abi abi.Method
}

// ParseMethod parses a human-readable fragment ("function owner() view returns (address)")
// or a single JSON ABI function entry.
func ParseMethod(fragment string) (Method, error) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return Method{}, fmt.Errorf("empty method fragment")
	}
	if strings.HasPrefix(fragment, "{") {
		return parseJSONMethod(fragment)
	}
	return parseHumanMethod(fragment)
}

// MustParseMethod is like ParseMethod but panics on error.
func MustParseMethod(fragment string) Method {
	m, err := ParseMethod(fragment)
	if err != nil {
		panic(err)
	}
	return m
}

func parseJSONMethod(fragment string) (Method, error) {
	parsed, err := abi.JSON(strings.NewReader("[" + fragment + "]"))
	if err != nil {
		return Method{}, fmt.Errorf("parse abi fragment: %w", err)
	}
	if len(parsed.Methods) != 1 {
		return Method{}, fmt.Errorf("abi fragment must describe exactly one function, got %d", len(parsed.Methods))
	}
	for _, m := range parsed.Methods {
		return Method{abi: m}, nil
	}
	return Method{}, fmt.Errorf("abi fragment has no function")
}

// Name returns the function name.
func (m Method) Name() string { return m.abi.RawName }

// Signature returns the canonical signature, e.g. "getRoleMember(bytes32,uint256)".
func (m Method) Signature() string { return m.abi.Sig }

// Selector returns the 4-byte function selector.
func (m Method) Selector() []byte { return append([]byte(nil), m.abi.ID...) }

func (m Method) Inputs() abi.Arguments  { return m.abi.Inputs }
func (m Method) Outputs() abi.Arguments { return m.abi.Outputs }

// OutputNames returns the output names, using the position for unnamed outputs.
func (m Method) OutputNames() []string {
	names := make([]string, len(m.abi.Outputs))
	for i, out := range m.abi.Outputs {
		if out.Name != "" {
			names[i] = out.Name
		} else {
			names[i] = strconv.Itoa(i)
		}
	}
	return names
}

// Encode packs the selector and arguments. Arguments are coerced to the
// declared input types first.
func (m Method) Encode(args ...interface{}) ([]byte, error) {
	if len(args) != len(m.abi.Inputs) {
		return nil, fmt.Errorf("%s expects %d arguments, got %d", m.abi.Sig, len(m.abi.Inputs), len(args))
	}
	coerced := make([]interface{}, len(args))
	for i, arg := range args {
		value, err := CoerceArg(m.abi.Inputs[i].Type, arg)
		if err != nil {
			return nil, fmt.Errorf("%s argument %d: %w", m.abi.Sig, i, err)
		}
		coerced[i] = value
	}
	packed, err := m.abi.Inputs.Pack(coerced...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", m.abi.Sig, err)
	}
	return append(m.Selector(), packed...), nil
}

// Decode unpacks returned bytes into go-ethereum values.
func (m Method) Decode(data []byte) ([]interface{}, error) {
	if len(m.abi.Outputs) == 0 {
		return nil, nil
	}
	if len(data) == 0 {
		return nil, &DecodeError{Method: m.abi.Sig, Err: fmt.Errorf("empty return data")}
	}
	values, err := m.abi.Outputs.Unpack(data)
	if err != nil {
		return nil, &DecodeError{Method: m.abi.Sig, Err: err}
	}
	return values, nil
}

// DecodeValue decodes returned bytes into a single field value. A single
// output yields that value, several outputs yield a map keyed by output name,
// and a method without declared outputs yields the raw hex.
func (m Method) DecodeValue(data []byte) (model.Value, error) {
	if len(m.abi.Outputs) == 0 {
		return hexutil.Encode(data), nil
	}
	values, err := m.Decode(data)
	if err != nil {
		return nil, err
	}
	if len(values) == 1 {
		return ToValue(values[0]), nil
	}
	return namedValues(m.OutputNames(), values), nil
}

// DecodeNamed decodes returned bytes into a map keyed by output name.
func (m Method) DecodeNamed(data []byte) (map[string]model.Value, error) {
	values, err := m.Decode(data)
	if err != nil {
		return nil, err
	}
	return namedValues(m.OutputNames(), values), nil
}

func namedValues(names []string, values []interface{}) map[string]model.Value {
	out := make(map[string]model.Value, len(values))
	for i, value := range values {
		out[names[i]] = ToValue(value)
	}
	return out
}
