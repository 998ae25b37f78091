package handlers

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discoveryScope/internal/codec"
	"discoveryScope/internal/discovery"
	"discoveryScope/internal/model"
	"discoveryScope/internal/multicall"
)

var contract = common.HexToAddress("0x5FDCCA53617f4d2b9134B29090C87D01058e27e9")

type fakeChain struct {
	mu          sync.Mutex
	invocations int
	returns     map[string][]byte
	storage     map[common.Hash]common.Hash
}

func newFakeChain() *fakeChain {
	return &fakeChain{returns: make(map[string][]byte), storage: make(map[common.Hash]common.Hash)}
}

func (f *fakeChain) answer(t *testing.T, fragment string, args []interface{}, outputs ...interface{}) {
	t.Helper()
	m := codec.MustParseMethod(fragment)
	data, err := m.Encode(args...)
	require.NoError(t, err)
	out, err := m.Outputs().Pack(outputs...)
	require.NoError(t, err)
	f.returns[hexutil.Encode(data)] = out
}

func (f *fakeChain) Multicall(_ context.Context, requests []multicall.Request, _ uint64) ([]multicall.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invocations++
	responses := make([]multicall.Response, len(requests))
	for i, req := range requests {
		data := f.returns[hexutil.Encode(req.Data)]
		responses[i] = multicall.Response{Success: len(data) > 0, Data: data}
	}
	return responses, nil
}

func (f *fakeChain) StorageAt(_ context.Context, _ common.Address, key common.Hash, _ *big.Int) ([]byte, error) {
	word := f.storage[key]
	return word.Bytes(), nil
}

func provider(chain *fakeChain, deps map[string]model.Value) discovery.Provider {
	return discovery.NewProvider(chain, chain, contract, 15_000_000, deps)
}

func TestSimpleMethodHandler(t *testing.T) {
	t.Parallel()

	chain := newFakeChain()
	chain.answer(t, "function admin() view returns (address)", nil, common.HexToAddress("0xA1"))

	h, err := NewSimpleMethodHandler("function admin() view returns (address)")
	require.NoError(t, err)
	assert.Equal(t, "admin", h.Field())
	assert.Empty(t, h.Dependencies())

	res, err := h.Execute(context.Background(), provider(chain, nil), contract)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xA1").Hex(), res.Value)

	_, err = NewSimpleMethodHandler("function balanceOf(address) view returns (uint256)")
	assert.Error(t, err)
}

func TestSimpleMethods(t *testing.T) {
	t.Parallel()

	got, err := SimpleMethods([]string{
		"function owner() view returns (address)",
		"function paused() view returns (bool)",
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "paused", got[1].Field())

	_, err = SimpleMethods([]string{"function broken("})
	assert.Error(t, err)
}

func TestCallHandlerReferences(t *testing.T) {
	t.Parallel()

	role := "0x0000000000000000000000000000000000000000000000000000000000000abc"
	chain := newFakeChain()
	chain.answer(t, "function getRoleMember(bytes32,uint256) view returns (address)",
		[]interface{}{role, 1}, common.HexToAddress("0xB2"))

	h, err := NewCallHandler("member", Definition{
		Type:   "call",
		Method: "function getRoleMember(bytes32 role, uint256 index) view returns (address)",
		Args:   []interface{}{"{{ adminRole }}", 1},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"adminRole"}, h.Dependencies())

	res, err := h.Execute(context.Background(), provider(chain, map[string]model.Value{"adminRole": role}), contract)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xB2").Hex(), res.Value)

	_, err = h.Execute(context.Background(), provider(chain, nil), contract)
	var undeclared *discovery.UndeclaredDependencyError
	assert.True(t, errors.As(err, &undeclared))
}

func TestCallHandlerExpectRevert(t *testing.T) {
	t.Parallel()

	def := Definition{Type: "call", Method: "function isFrozen() view returns (bool)"}

	h, err := NewCallHandler("isFrozen", def)
	require.NoError(t, err)
	_, err = h.Execute(context.Background(), provider(newFakeChain(), nil), contract)
	var reverted *discovery.RevertedError
	assert.True(t, errors.As(err, &reverted))

	def.ExpectRevert = true
	h, err = NewCallHandler("isFrozen", def)
	require.NoError(t, err)
	res, err := h.Execute(context.Background(), provider(newFakeChain(), nil), contract)
	require.NoError(t, err)
	assert.Equal(t, false, res.Value)
}

func TestCallHandlerExpand(t *testing.T) {
	t.Parallel()

	chain := newFakeChain()
	chain.answer(t, "function getReserves() view returns (uint112 reserve0, uint112 reserve1, uint32 ts)",
		nil, big.NewInt(10), big.NewInt(20), uint32(30))

	h, err := NewCallHandler("reserves", Definition{
		Type:   "call",
		Method: "function getReserves() view returns (uint112 reserve0, uint112 reserve1, uint32 ts)",
		Expand: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"reserves.reserve0", "reserves.reserve1", "reserves.ts"}, h.Produces())

	res, err := h.Execute(context.Background(), provider(chain, nil), contract)
	require.NoError(t, err)
	assert.Equal(t, map[string]model.Value{
		"reserves.reserve0": "10",
		"reserves.reserve1": "20",
		"reserves.ts":       "30",
	}, res.Extra)

	_, err = NewCallHandler("owner", Definition{Type: "call", Method: "function owner() view returns (address)", Expand: true})
	assert.Error(t, err)
	_, err = NewCallHandler("member", Definition{Type: "call", Method: "function getRoleMember(bytes32,uint256) view returns (address)"})
	assert.Error(t, err)
}

func answerOperators(t *testing.T, chain *fakeChain, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		chain.answer(t, "function getOperator(uint256) view returns (address)",
			[]interface{}{i}, common.BigToAddress(big.NewInt(int64(i+1))))
	}
}

func operators(n int) []model.Value {
	out := make([]model.Value, n)
	for i := range out {
		out[i] = common.BigToAddress(big.NewInt(int64(i + 1))).Hex()
	}
	return out
}

func TestArrayHandler(t *testing.T) {
	t.Parallel()

	const method = "function getOperator(uint256 index) view returns (address)"

	t.Run("literal length", func(t *testing.T) {
		t.Parallel()

		chain := newFakeChain()
		answerOperators(t, chain, 5)
		h, err := NewArrayHandler("operators", Definition{Type: "array", Method: method, Length: 3})
		require.NoError(t, err)

		res, err := h.Execute(context.Background(), provider(chain, nil), contract)
		require.NoError(t, err)
		assert.Equal(t, operators(3), res.Value)
		assert.Equal(t, 1, chain.invocations)
	})

	t.Run("referenced length", func(t *testing.T) {
		t.Parallel()

		chain := newFakeChain()
		answerOperators(t, chain, 4)
		h, err := NewArrayHandler("operators", Definition{Type: "array", Method: method, Length: "{{ operatorCount }}"})
		require.NoError(t, err)
		assert.Equal(t, []string{"operatorCount"}, h.Dependencies())

		res, err := h.Execute(context.Background(), provider(chain, map[string]model.Value{"operatorCount": "4"}), contract)
		require.NoError(t, err)
		assert.Equal(t, operators(4), res.Value)
	})

	t.Run("length past the end reverts", func(t *testing.T) {
		t.Parallel()

		chain := newFakeChain()
		answerOperators(t, chain, 2)
		h, err := NewArrayHandler("operators", Definition{Type: "array", Method: method, Length: 3})
		require.NoError(t, err)

		_, err = h.Execute(context.Background(), provider(chain, nil), contract)
		var reverted *discovery.RevertedError
		assert.True(t, errors.As(err, &reverted))
	})

	t.Run("probe until revert", func(t *testing.T) {
		t.Parallel()

		chain := newFakeChain()
		answerOperators(t, chain, 12)
		h, err := NewArrayHandler("operators", Definition{Type: "array", Method: method})
		require.NoError(t, err)

		res, err := h.Execute(context.Background(), provider(chain, nil), contract)
		require.NoError(t, err)
		assert.Equal(t, operators(12), res.Value)
		assert.Equal(t, 2, chain.invocations)
	})

	t.Run("probe empty", func(t *testing.T) {
		t.Parallel()

		h, err := NewArrayHandler("operators", Definition{Type: "array", Method: method})
		require.NoError(t, err)

		res, err := h.Execute(context.Background(), provider(newFakeChain(), nil), contract)
		require.NoError(t, err)
		assert.Equal(t, []model.Value{}, res.Value)
	})

	t.Run("max length", func(t *testing.T) {
		t.Parallel()

		chain := newFakeChain()
		answerOperators(t, chain, 6)
		h, err := NewArrayHandler("operators", Definition{Type: "array", Method: method, MaxLength: 5})
		require.NoError(t, err)
		_, err = h.Execute(context.Background(), provider(chain, nil), contract)
		assert.Error(t, err)

		h, err = NewArrayHandler("operators", Definition{Type: "array", Method: method, MaxLength: 5, Length: 6})
		require.NoError(t, err)
		_, err = h.Execute(context.Background(), provider(chain, nil), contract)
		assert.Error(t, err)
	})

	t.Run("indices", func(t *testing.T) {
		t.Parallel()

		chain := newFakeChain()
		answerOperators(t, chain, 5)
		h, err := NewArrayHandler("operators", Definition{Type: "array", Method: method, Indices: []int{4, 1}})
		require.NoError(t, err)

		res, err := h.Execute(context.Background(), provider(chain, nil), contract)
		require.NoError(t, err)
		all := operators(5)
		assert.Equal(t, []model.Value{all[4], all[1]}, res.Value)
	})
}

func TestStorageHandler(t *testing.T) {
	t.Parallel()

	implementation := common.HexToAddress("0x2C1d2D3a7E2B8b6F1fD6a0e5e3aa49C2D0fBD6A1")
	implSlot := common.HexToHash("0x360894a13ba1a3210667c828492db98dca3e2076cc3735a920a3ca505d382bbc")

	holder := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	balanceSlot := crypto.Keccak256Hash(common.LeftPadBytes(holder.Bytes(), 32), common.BigToHash(big.NewInt(3)).Bytes())
	nextSlot := common.BigToHash(new(big.Int).Add(balanceSlot.Big(), big.NewInt(1)))

	chain := newFakeChain()
	chain.storage[implSlot] = common.BytesToHash(implementation.Bytes())
	chain.storage[common.BigToHash(big.NewInt(7))] = common.BigToHash(big.NewInt(86400))
	chain.storage[nextSlot] = common.BigToHash(big.NewInt(500))

	tests := []struct {
		name string
		def  Definition
		deps map[string]model.Value
		want model.Value
	}{
		{
			name: "implementation address",
			def:  Definition{Type: "storage", Slot: implSlot.Hex(), ReturnType: "address"},
			want: implementation.Hex(),
		},
		{
			name: "numeric slot",
			def:  Definition{Type: "storage", Slot: 7, ReturnType: "uint"},
			want: "86400",
		},
		{
			name: "raw bytes",
			def:  Definition{Type: "storage", Slot: "7"},
			want: common.BigToHash(big.NewInt(86400)).Hex(),
		},
		{
			name: "mapping entry with offset",
			def:  Definition{Type: "storage", Slot: []interface{}{3, "{{ holder }}"}, Offset: 1, ReturnType: "uint"},
			deps: map[string]model.Value{"holder": holder.Hex()},
			want: "500",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h, err := NewStorageHandler("value", tt.def)
			require.NoError(t, err)

			res, err := h.Execute(context.Background(), provider(chain, tt.deps), contract)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Value)
		})
	}
}

func TestStorageHandlerWithoutReader(t *testing.T) {
	t.Parallel()

	h, err := NewStorageHandler("value", Definition{Type: "storage", Slot: 0})
	require.NoError(t, err)

	p := discovery.NewProvider(newFakeChain(), nil, contract, 1, nil)
	_, err = h.Execute(context.Background(), p, contract)
	assert.ErrorIs(t, err, discovery.ErrStorageUnavailable)
}

func TestFromDefinition(t *testing.T) {
	t.Parallel()

	valid := []Definition{
		{Type: "call", Method: "function owner() view returns (address)"},
		{Type: "array", Method: "function getOperator(uint256) view returns (address)", MaxLength: 20},
		{Type: "storage", Slot: 0, ReturnType: "address"},
	}
	for _, def := range valid {
		_, err := FromDefinition("field", def)
		assert.NoError(t, err, def.Type)
	}

	invalid := []Definition{
		{},
		{Type: "event", Method: "function owner() view returns (address)"},
		{Type: "call"},
		{Type: "storage"},
		{Type: "storage", Slot: 0, ReturnType: "int"},
		{Type: "array", Method: "function owner() view returns (address)"},
		{Type: "array", Method: "function getOperator(uint256) view returns (address)", MaxLength: -1},
	}
	for _, def := range invalid {
		_, err := FromDefinition("field", def)
		assert.Error(t, err, "%+v", def)
	}
}

func TestHandlersInEngine(t *testing.T) {
	t.Parallel()

	chain := newFakeChain()
	chain.answer(t, "function operatorCount() view returns (uint256)", nil, big.NewInt(2))
	answerOperators(t, chain, 2)

	simple, err := SimpleMethods([]string{"function operatorCount() view returns (uint256)"})
	require.NoError(t, err)
	array, err := FromDefinition("operators", Definition{
		Type:   "array",
		Method: "function getOperator(uint256) view returns (address)",
		Length: "{{ operatorCount }}",
	})
	require.NoError(t, err)

	plan, err := discovery.NewPlan(append(simple, array))
	require.NoError(t, err)
	engine, err := discovery.NewEngine(chain, discovery.DefaultOptions())
	require.NoError(t, err)

	snapshot, err := engine.Discover(context.Background(), contract, 15_000_000, plan)
	require.NoError(t, err)
	assert.Equal(t, "2", snapshot.Fields["operatorCount"].Value)
	assert.Equal(t, operators(2), snapshot.Fields["operators"].Value)
}
