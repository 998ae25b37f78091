package handlers

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"discoveryScope/internal/codec"
	"discoveryScope/internal/discovery"
	"discoveryScope/internal/model"
)

// StorageHandler reads one storage word.
//
// The slot is a number, a reference, or a list [slot, key...] addressing a
// (nested) mapping entry. Offset is added to the final slot.
type StorageHandler struct {
	field      string
	slot       interface{}
	offset     int
	returnType string
	deps       []string
}

// NewStorageHandler builds a StorageHandler from def.
func NewStorageHandler(field string, def Definition) (*StorageHandler, error) {
	if def.Slot == nil {
		return nil, fmt.Errorf("field %q: slot is required", field)
	}
	returnType := def.ReturnType
	if returnType == "" {
		returnType = "bytes"
	}
	return &StorageHandler{
		field:      field,
		slot:       def.Slot,
		offset:     def.Offset,
		returnType: returnType,
		deps:       references(def.Slot),
	}, nil
}

func (h *StorageHandler) Field() string          { return h.field }
func (h *StorageHandler) Dependencies() []string { return h.deps }

func (h *StorageHandler) Execute(ctx context.Context, p discovery.Provider, _ common.Address) (discovery.Result, error) {
	slot, err := h.computeSlot(p)
	if err != nil {
		return discovery.Result{}, err
	}
	word, err := p.StorageAt(ctx, slot)
	if err != nil {
		return discovery.Result{}, err
	}
	return discovery.Result{Value: storageValue(word, h.returnType)}, nil
}

func (h *StorageHandler) computeSlot(p discovery.Provider) (common.Hash, error) {
	parts, ok := h.slot.([]interface{})
	if !ok {
		parts = []interface{}{h.slot}
	}
	if len(parts) == 0 {
		return common.Hash{}, fmt.Errorf("empty slot for %s", h.field)
	}

	words := make([]common.Hash, len(parts))
	for i, part := range parts {
		value, err := resolve(p, part)
		if err != nil {
			return common.Hash{}, err
		}
		words[i], err = storageWord(value)
		if err != nil {
			return common.Hash{}, fmt.Errorf("slot of %s: %w", h.field, err)
		}
	}

	slot := words[0]
	for _, key := range words[1:] {
		slot = crypto.Keccak256Hash(key.Bytes(), slot.Bytes())
	}
	if h.offset != 0 {
		slot = common.BigToHash(new(big.Int).Add(slot.Big(), big.NewInt(int64(h.offset))))
	}
	return slot, nil
}

func storageWord(value model.Value) (common.Hash, error) {
	if s, ok := value.(string); ok && len(s) == 42 && common.IsHexAddress(s) {
		return common.BytesToHash(common.HexToAddress(s).Bytes()), nil
	}
	if s, ok := value.(string); ok && len(s) == 66 && strings.HasPrefix(s, "0x") {
		return common.HexToHash(s), nil
	}
	n, err := codec.AsBigInt(value)
	if err != nil {
		return common.Hash{}, err
	}
	if n.Sign() < 0 {
		return common.Hash{}, fmt.Errorf("negative slot %s", n)
	}
	return common.BigToHash(n), nil
}

func storageValue(word common.Hash, returnType string) model.Value {
	switch returnType {
	case "address":
		return common.BytesToAddress(word.Bytes()[12:]).Hex()
	case "uint":
		return word.Big().String()
	default:
		return word.Hex()
	}
}
