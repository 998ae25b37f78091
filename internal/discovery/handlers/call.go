package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"discoveryScope/internal/codec"
	"discoveryScope/internal/discovery"
	"discoveryScope/internal/model"
)

// CallHandler calls a method with literal or referenced arguments.
//
// With ExpectRevert a reverted call records false instead of an error. With
// Expand every named output is also recorded as "<field>.<output>".
type CallHandler struct {
	field        string
	method       codec.Method
	args         []interface{}
	expectRevert bool
	expand       bool
	deps         []string
	produces     []string
}

// NewCallHandler builds a CallHandler from def.
func NewCallHandler(field string, def Definition) (*CallHandler, error) {
	method, err := codec.ParseMethod(def.Method)
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", field, err)
	}
	if len(def.Args) != len(method.Inputs()) {
		return nil, fmt.Errorf("field %q: %s takes %d arguments, got %d", field, method.Signature(), len(method.Inputs()), len(def.Args))
	}

	h := &CallHandler{
		field:        field,
		method:       method,
		args:         def.Args,
		expectRevert: def.ExpectRevert,
		expand:       def.Expand,
		deps:         references(def.Args...),
	}
	if def.Expand {
		if len(method.Outputs()) < 2 {
			return nil, fmt.Errorf("field %q: expand needs a method with several outputs", field)
		}
		for _, name := range method.OutputNames() {
			h.produces = append(h.produces, field+"."+name)
		}
	}
	return h, nil
}

func (h *CallHandler) Field() string          { return h.field }
func (h *CallHandler) Dependencies() []string { return h.deps }
func (h *CallHandler) Produces() []string     { return h.produces }

func (h *CallHandler) Execute(ctx context.Context, p discovery.Provider, address common.Address) (discovery.Result, error) {
	args, err := resolveAll(p, h.args)
	if err != nil {
		return discovery.Result{}, err
	}

	value, err := p.CallMethod(ctx, address, h.method, args...)
	if err != nil {
		var reverted *discovery.RevertedError
		if h.expectRevert && errors.As(err, &reverted) {
			return discovery.Result{Value: false, Extra: h.emptyExtras()}, nil
		}
		return discovery.Result{}, err
	}
	if !h.expand {
		return discovery.Result{Value: value}, nil
	}

	outputs, ok := value.(map[string]model.Value)
	if !ok {
		return discovery.Result{}, fmt.Errorf("expand %s: unexpected value %T", h.method.Signature(), value)
	}
	extra := make(map[string]model.Value, len(outputs))
	for name, v := range outputs {
		extra[h.field+"."+name] = v
	}
	return discovery.Result{Value: value, Extra: extra}, nil
}

func (h *CallHandler) emptyExtras() map[string]model.Value {
	if len(h.produces) == 0 {
		return nil
	}
	extra := make(map[string]model.Value, len(h.produces))
	for _, name := range h.produces {
		extra[name] = nil
	}
	return extra
}
