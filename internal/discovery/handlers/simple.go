// Package handlers implements the field handler kinds used by discovery
// projects.
package handlers

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"discoveryScope/internal/codec"
	"discoveryScope/internal/discovery"
)

// SimpleMethodHandler reads a method that takes no arguments. The field is
// named after the method.
type SimpleMethodHandler struct {
	method codec.Method
}

// NewSimpleMethodHandler parses fragment, e.g. "function admin() view returns (address)".
func NewSimpleMethodHandler(fragment string) (*SimpleMethodHandler, error) {
	method, err := codec.ParseMethod(fragment)
	if err != nil {
		return nil, err
	}
	if len(method.Inputs()) != 0 {
		return nil, fmt.Errorf("simple method %s must not take arguments", method.Signature())
	}
	return &SimpleMethodHandler{method: method}, nil
}

func (h *SimpleMethodHandler) Field() string          { return h.method.Name() }
func (h *SimpleMethodHandler) Dependencies() []string { return nil }

func (h *SimpleMethodHandler) Execute(ctx context.Context, p discovery.Provider, address common.Address) (discovery.Result, error) {
	value, err := p.CallMethod(ctx, address, h.method)
	if err != nil {
		return discovery.Result{}, err
	}
	return discovery.Result{Value: value}, nil
}

// SimpleMethods builds one SimpleMethodHandler per fragment.
func SimpleMethods(fragments []string) ([]discovery.Handler, error) {
	out := make([]discovery.Handler, 0, len(fragments))
	for _, fragment := range fragments {
		h, err := NewSimpleMethodHandler(fragment)
		if err != nil {
			return nil, fmt.Errorf("method %q: %w", fragment, err)
		}
		out = append(out, h)
	}
	return out, nil
}
