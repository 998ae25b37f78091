package handlers

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"discoveryScope/internal/codec"
	"discoveryScope/internal/discovery"
	"discoveryScope/internal/model"
	"discoveryScope/internal/multicall"
)

const arrayPageSize = 10

// ArrayHandler reads method(i) for a range of indices into a list.
//
// A known length (literal or reference) reads every index in one batch.
// Without one, pages of indices are probed until the first revert. Indices
// reads only the listed positions.
type ArrayHandler struct {
	field     string
	method    codec.Method
	length    interface{}
	maxLength int
	indices   []int
	deps      []string
}

// NewArrayHandler builds an ArrayHandler from def.
func NewArrayHandler(field string, def Definition) (*ArrayHandler, error) {
	method, err := codec.ParseMethod(def.Method)
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", field, err)
	}
	if len(method.Inputs()) != 1 {
		return nil, fmt.Errorf("field %q: array method %s must take exactly one index argument", field, method.Signature())
	}
	maxLength := def.MaxLength
	if maxLength == 0 {
		maxLength = DefaultMaxLength
	}
	return &ArrayHandler{
		field:     field,
		method:    method,
		length:    def.Length,
		maxLength: maxLength,
		indices:   def.Indices,
		deps:      references(def.Length),
	}, nil
}

func (h *ArrayHandler) Field() string          { return h.field }
func (h *ArrayHandler) Dependencies() []string { return h.deps }

func (h *ArrayHandler) Execute(ctx context.Context, p discovery.Provider, address common.Address) (discovery.Result, error) {
	switch {
	case len(h.indices) > 0:
		values, err := h.readAll(ctx, p, address, h.indices)
		return discovery.Result{Value: values}, err
	case h.length != nil:
		raw, err := resolve(p, h.length)
		if err != nil {
			return discovery.Result{}, err
		}
		n, err := codec.AsBigInt(raw)
		if err != nil {
			return discovery.Result{}, fmt.Errorf("length of %s: %w", h.field, err)
		}
		if n.Sign() < 0 || n.Cmp(big.NewInt(int64(h.maxLength))) > 0 {
			return discovery.Result{}, fmt.Errorf("length %s of %s exceeds max length %d", n, h.field, h.maxLength)
		}
		values, err := h.readAll(ctx, p, address, sequence(0, int(n.Int64())))
		return discovery.Result{Value: values}, err
	default:
		values, err := h.probe(ctx, p, address)
		return discovery.Result{Value: values}, err
	}
}

func (h *ArrayHandler) readAll(ctx context.Context, p discovery.Provider, address common.Address, indices []int) ([]model.Value, error) {
	responses, err := h.call(ctx, p, address, indices)
	if err != nil {
		return nil, err
	}
	values := make([]model.Value, len(responses))
	for i, resp := range responses {
		if !resp.Success {
			return nil, &discovery.RevertedError{Target: address, Method: fmt.Sprintf("%s[%d]", h.method.Signature(), indices[i])}
		}
		values[i], err = h.method.DecodeValue(resp.Data)
		if err != nil {
			return nil, err
		}
	}
	return values, nil
}

func (h *ArrayHandler) probe(ctx context.Context, p discovery.Provider, address common.Address) ([]model.Value, error) {
	values := make([]model.Value, 0)
	for start := 0; start < h.maxLength; start += arrayPageSize {
		end := start + arrayPageSize
		if end > h.maxLength {
			end = h.maxLength
		}
		responses, err := h.call(ctx, p, address, sequence(start, end))
		if err != nil {
			return nil, err
		}
		for _, resp := range responses {
			if !resp.Success {
				return values, nil
			}
			value, err := h.method.DecodeValue(resp.Data)
			if err != nil {
				return nil, err
			}
			values = append(values, value)
		}
	}
	return nil, fmt.Errorf("%s reached max length %d without a revert", h.field, h.maxLength)
}

func (h *ArrayHandler) call(ctx context.Context, p discovery.Provider, address common.Address, indices []int) ([]multicall.Response, error) {
	requests := make([]multicall.Request, len(indices))
	for i, index := range indices {
		data, err := h.method.Encode(index)
		if err != nil {
			return nil, err
		}
		requests[i] = multicall.Request{Target: address, Data: data}
	}
	return p.CallMany(ctx, requests)
}

func sequence(from, to int) []int {
	out := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}
