package discovery

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"discoveryScope/internal/codec"
	"discoveryScope/internal/model"
	"discoveryScope/internal/multicall"
)

// Multicaller executes batched reads at a block height.
type Multicaller interface {
	Multicall(ctx context.Context, requests []multicall.Request, blockNumber uint64) ([]multicall.Response, error)
}

// StorageReader reads raw contract storage.
type StorageReader interface {
	StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error)
}

// Provider is what a handler sees of a run: reads bound to one contract and
// block, and the values of the fields the handler declared as dependencies.
type Provider interface {
	Address() common.Address
	BlockNumber() uint64
	Call(ctx context.Context, to common.Address, data []byte) (multicall.Response, error)
	CallMany(ctx context.Context, requests []multicall.Request) ([]multicall.Response, error)
	CallMethod(ctx context.Context, to common.Address, method codec.Method, args ...interface{}) (model.Value, error)
	StorageAt(ctx context.Context, slot common.Hash) (common.Hash, error)
	Dependency(name string) (model.Value, error)
}

type readFunc func(ctx context.Context, requests []multicall.Request) ([]multicall.Response, error)

type provider struct {
	field       string
	address     common.Address
	blockNumber uint64
	read        readFunc
	storage     StorageReader
	deps        map[string]model.Value
}

// NewProvider returns a Provider that issues every read as its own
// Multicall invocation. deps holds the values visible through Dependency.
func NewProvider(mc Multicaller, storage StorageReader, address common.Address, blockNumber uint64, deps map[string]model.Value) Provider {
	return &provider{
		address:     address,
		blockNumber: blockNumber,
		read: func(ctx context.Context, requests []multicall.Request) ([]multicall.Response, error) {
			return mc.Multicall(ctx, requests, blockNumber)
		},
		storage: storage,
		deps:    deps,
	}
}

func (p *provider) Address() common.Address { return p.address }
func (p *provider) BlockNumber() uint64      { return p.blockNumber }

func (p *provider) Call(ctx context.Context, to common.Address, data []byte) (multicall.Response, error) {
	responses, err := p.CallMany(ctx, []multicall.Request{{Target: to, Data: data}})
	if err != nil {
		return multicall.Response{}, err
	}
	return responses[0], nil
}

func (p *provider) CallMany(ctx context.Context, requests []multicall.Request) ([]multicall.Response, error) {
	if len(requests) == 0 {
		return []multicall.Response{}, nil
	}
	responses, err := p.read(ctx, requests)
	if err != nil {
		return nil, err
	}
	if len(responses) != len(requests) {
		return nil, fmt.Errorf("got %d responses for %d requests", len(responses), len(requests))
	}
	return responses, nil
}

func (p *provider) CallMethod(ctx context.Context, to common.Address, method codec.Method, args ...interface{}) (model.Value, error) {
	data, err := method.Encode(args...)
	if err != nil {
		return nil, err
	}
	resp, err := p.Call(ctx, to, data)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &RevertedError{Target: to, Method: method.Signature()}
	}
	return method.DecodeValue(resp.Data)
}

func (p *provider) StorageAt(ctx context.Context, slot common.Hash) (common.Hash, error) {
	if p.storage == nil {
		return common.Hash{}, ErrStorageUnavailable
	}
	raw, err := p.storage.StorageAt(ctx, p.address, slot, new(big.Int).SetUint64(p.blockNumber))
	if err != nil {
		return common.Hash{}, &multicall.TransportError{
			Target: p.address,
			Err:    fmt.Errorf("storage at %s: %w", slot.Hex(), err),
		}
	}
	return common.BytesToHash(raw), nil
}

func (p *provider) Dependency(name string) (model.Value, error) {
	value, ok := p.deps[name]
	if !ok {
		return nil, &UndeclaredDependencyError{Field: p.field, Dependency: name}
	}
	return value, nil
}
